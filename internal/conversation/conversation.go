package conversation

import (
	"time"
)

// Turn authorship.
const (
	UserTurn      = "user"
	AssistantTurn = "assistant"
)

// Turn is a single conversation message.
type Turn struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	MessageType string    `json:"message_type"`
	Content     string    `json:"content"`
	Topics      []string  `json:"topics,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
