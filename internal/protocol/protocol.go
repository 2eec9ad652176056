// Package protocol defines the wire messages exchanged over a room data
// channel. The set is closed: guests send Join, AddVideo and Vote intents,
// the host answers with State snapshots and targeted Error messages.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/sryo/nombre-pendiente/internal/domain"
)

const (
	TypeJoin     = "join"
	TypeAddVideo = "add-video"
	TypeVote     = "vote"
	TypeState    = "state"
	TypeError    = "error"
)

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrBadPayload  = errors.New("bad payload")
)

var validate = validator.New()

// Message is the closed union of wire messages. Handlers dispatch with a
// type switch over the concrete pointer types.
type Message interface{ isMessage() }

// Join upserts the user on the host and cancels a pending departure.
type Join struct {
	UserID   domain.UserID `json:"userId" validate:"required,max=64"`
	Username string        `json:"username" validate:"required,max=36"`
}

// AddVideo asks the host to append a video during the adding phase.
type AddVideo struct {
	Video domain.Video `json:"video"`
}

// Vote moves (or clears, when Unvote) the user's single vote.
type Vote struct {
	UserID  domain.UserID `json:"userId" validate:"required,max=64"`
	VideoID string        `json:"videoId" validate:"required"`
	Unvote  bool          `json:"unvote"`
}

// State is the full-room snapshot the host broadcasts after every accepted
// mutation. A guest replaces its replica wholesale with Room.
type State struct {
	Room *domain.Room `json:"room"`
}

// Error is a targeted, human-readable rejection; it never changes state.
type Error struct {
	Message string `json:"message"`
}

func (*Join) isMessage()     {}
func (*AddVideo) isMessage() {}
func (*Vote) isMessage()     {}
func (*State) isMessage()    {}
func (*Error) isMessage()    {}

// Encode wraps the message with its type tag. The switch is exhaustive over
// the union; an unhandled type is a programming error.
func Encode(m Message) ([]byte, error) {
	switch v := m.(type) {
	case *Join:
		return json.Marshal(struct {
			Type string `json:"type"`
			*Join
		}{TypeJoin, v})
	case *AddVideo:
		return json.Marshal(struct {
			Type string `json:"type"`
			*AddVideo
		}{TypeAddVideo, v})
	case *Vote:
		return json.Marshal(struct {
			Type string `json:"type"`
			*Vote
		}{TypeVote, v})
	case *State:
		return json.Marshal(struct {
			Type string `json:"type"`
			*State
		}{TypeState, v})
	case *Error:
		return json.Marshal(struct {
			Type string `json:"type"`
			*Error
		}{TypeError, v})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, m)
	}
}

// Decode parses the envelope tag and unmarshals the matching concrete type.
// Intents are additionally validated so a malformed guest payload is
// rejected before it reaches any mutation path.
func Decode(data []byte) (Message, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	var m Message
	switch env.Type {
	case TypeJoin:
		m = &Join{}
	case TypeAddVideo:
		m = &AddVideo{}
	case TypeVote:
		m = &Vote{}
	case TypeState:
		m = &State{}
	case TypeError:
		m = &Error{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	switch v := m.(type) {
	case *Join, *Vote:
		if err := validate.Struct(m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
	case *AddVideo:
		if v.Video.ID == "" {
			return nil, fmt.Errorf("%w: video id missing", ErrBadPayload)
		}
	}
	return m, nil
}
