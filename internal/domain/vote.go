package domain

import "sort"

// ComputeRanking returns the videos ordered by descending vote count.
// The sort is stable: ties keep their insertion order.
func ComputeRanking(videos []*Video) []*Video {
	ranked := append([]*Video{}, videos...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return len(ranked[i].Votes) > len(ranked[j].Votes)
	})
	return ranked
}

// Winners returns the leading subset of an already-computed ranking. A round
// where nothing got a vote has no winner; callers must render that as "no
// votes", not as a degenerate single winner.
func Winners(ranking []*Video) []*Video {
	if len(ranking) == 0 {
		return nil
	}
	max := len(ranking[0].Votes)
	if max == 0 {
		return nil
	}
	var out []*Video
	for _, v := range ranking {
		if len(v.Votes) == max {
			out = append(out, v)
		}
	}
	return out
}

// CurrentVote reports which video currently holds uid's vote, or nil.
// Pure query over a replica; used to decide whether a vote action is an
// unvote before sending the intent.
func CurrentVote(videos []*Video, uid UserID) *Video {
	for _, v := range videos {
		if v.hasVote(uid) {
			return v
		}
	}
	return nil
}

// HasVideoBy reports whether someone already has a video credited to them
// in the current round. Backs the one-video-per-submitter policy variant.
func HasVideoBy(videos []*Video, addedBy string) bool {
	for _, v := range videos {
		if v.AddedBy == addedBy {
			return true
		}
	}
	return false
}
