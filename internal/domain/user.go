// Package domain contains the room entities and the pure logic over them:
// phase transitions, vote application and ranking, room-name normalization.
package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const (
	MaxUserIDLen   = 64
	MaxUsernameLen = 36
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

type UserID string

// User identity is the ID; Name is mutable and may change on a re-join.
type User struct {
	ID   UserID `json:"id"`
	Name string `json:"name"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(name string) (*User, error) {
	if err := validateUsername(name); err != nil {
		return nil, err
	}
	return &User{ID: UserID(uuid.NewString()), Name: name}, nil
}

func (u *User) SetName(name string) error {
	if err := validateUsername(name); err != nil {
		return err
	}
	u.Name = name
	return nil
}

func validateUsername(name string) error {
	if len(strings.TrimSpace(name)) == 0 {
		return ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	return nil
}
