// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
	"time"
)

const MaxUsernameLen = 36

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

// User is the claimed identity of a participant. Usernames are not unique.
type User struct {
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joined_at"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(username string, now time.Time) (*User, error) {
	username = strings.TrimSpace(username)
	if len(username) == 0 {
		return nil, ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return nil, ErrUsernameTooLong
	}
	return &User{Username: username, JoinedAt: now}, nil
}
