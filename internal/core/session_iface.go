package core

import "time"

type SessionID string

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID       SessionID `json:"session_id"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joined_at"`
}
