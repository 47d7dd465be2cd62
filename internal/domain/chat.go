package domain

import "time"

type ChatMessage struct {
	SenderID  string    `json:"sender_id"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
	Body      string    `json:"body"`
}
