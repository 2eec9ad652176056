package domain

// Video is one candidate in the room playlist. ID is the provider-assigned
// id and must be unique within a room. Votes holds the ids of users whose
// current vote is this video.
type Video struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Thumbnail string   `json:"thumbnail"`
	Author    string   `json:"author"`
	AddedBy   string   `json:"addedBy"`
	Votes     []UserID `json:"votes"`
}

func (v *Video) clone() *Video {
	c := *v
	c.Votes = append([]UserID(nil), v.Votes...)
	return &c
}

func (v *Video) hasVote(uid UserID) bool {
	for _, id := range v.Votes {
		if id == uid {
			return true
		}
	}
	return false
}
