package domain

import "errors"

type RoomName string

// Phase governs which intents are currently valid.
type Phase string

const (
	PhaseAdding  Phase = "adding"
	PhaseVoting  Phase = "voting"
	PhaseResults Phase = "results"
)

var (
	ErrNoVideos      = errors.New("cannot start voting with no videos")
	ErrBadTransition = errors.New("invalid phase transition")
	ErrWrongPhase    = errors.New("action not allowed in current phase")
	ErrDuplicateID   = errors.New("video already in playlist")
	ErrAlreadyAdded  = errors.New("submitter already has a video this round")
)

// Room is the canonical document on the host and a disposable replica on a
// guest. Videos keep insertion order; that order is meaningful for display
// and for tie-breaking in the ranking.
type Room struct {
	Phase  Phase    `json:"phase"`
	Videos []*Video `json:"videos"`
	Users  []User   `json:"users"`
	Topic  string   `json:"topic,omitempty"`
}

func NewRoom() *Room {
	return &Room{Phase: PhaseAdding, Videos: []*Video{}, Users: []User{}}
}

// Clone deep-copies the room so callers can hand it out without aliasing
// the canonical document.
func (r *Room) Clone() *Room {
	c := &Room{Phase: r.Phase, Topic: r.Topic}
	c.Videos = make([]*Video, 0, len(r.Videos))
	for _, v := range r.Videos {
		c.Videos = append(c.Videos, v.clone())
	}
	c.Users = append([]User{}, r.Users...)
	return c
}

// UpsertUser adds the user on first join and renames on a repeat join.
// Reports whether the user was newly added.
func (r *Room) UpsertUser(id UserID, name string) bool {
	for i := range r.Users {
		if r.Users[i].ID == id {
			r.Users[i].Name = name
			return false
		}
	}
	r.Users = append(r.Users, User{ID: id, Name: name})
	return true
}

// RemoveUser drops the user entry. Votes already cast by the user stay on
// the videos; they are stripped only when the user votes again.
func (r *Room) RemoveUser(id UserID) bool {
	for i := range r.Users {
		if r.Users[i].ID == id {
			r.Users = append(r.Users[:i], r.Users[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Room) HasUser(id UserID) bool {
	for i := range r.Users {
		if r.Users[i].ID == id {
			return true
		}
	}
	return false
}

func (r *Room) FindVideo(id string) *Video {
	for _, v := range r.Videos {
		if v.ID == id {
			return v
		}
	}
	return nil
}

// AddVideo appends a video with an empty vote set. Only valid during the
// adding phase; a duplicate id is rejected whole.
func (r *Room) AddVideo(v Video) error {
	if r.Phase != PhaseAdding {
		return ErrWrongPhase
	}
	if r.FindVideo(v.ID) != nil {
		return ErrDuplicateID
	}
	v.Votes = []UserID{}
	r.Videos = append(r.Videos, &v)
	return nil
}

func (r *Room) RemoveVideo(id string) bool {
	for i, v := range r.Videos {
		if v.ID == id {
			r.Videos = append(r.Videos[:i], r.Videos[i+1:]...)
			return true
		}
	}
	return false
}

// CastVote strips the user's vote from every video, then re-adds it to the
// named video unless unvote is set. A missing video id is a no-op, not an
// error: the video may have been removed while the intent was in flight.
func (r *Room) CastVote(uid UserID, videoID string, unvote bool) error {
	if r.Phase != PhaseVoting {
		return ErrWrongPhase
	}
	for _, v := range r.Videos {
		kept := v.Votes[:0]
		for _, id := range v.Votes {
			if id != uid {
				kept = append(kept, id)
			}
		}
		v.Votes = kept
	}
	if unvote {
		return nil
	}
	if v := r.FindVideo(videoID); v != nil {
		v.Votes = append(v.Votes, uid)
	}
	return nil
}

// AdvancePhase moves adding→voting (guarded on a non-empty playlist) and
// voting→results. Any other transition is rejected without mutation;
// results only goes back to adding through ResetForNewRound.
func (r *Room) AdvancePhase() error {
	switch r.Phase {
	case PhaseAdding:
		if len(r.Videos) == 0 {
			return ErrNoVideos
		}
		r.Phase = PhaseVoting
	case PhaseVoting:
		r.Phase = PhaseResults
	default:
		return ErrBadTransition
	}
	return nil
}

// ResetForNewRound clears the playlist, keeps the users, and starts a new
// adding phase with an optional topic.
func (r *Room) ResetForNewRound(topic string) {
	r.Videos = []*Video{}
	r.Phase = PhaseAdding
	r.Topic = topic
}
