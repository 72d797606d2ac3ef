package summary

import (
	"time"
)

// Summary is a compacted window of conversation turns. Immutable after
// creation except for the activation and archival flags.
type Summary struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	Title     string   `json:"title,omitempty"`
	Text      string   `json:"summary"`
	KeyTopics []string `json:"key_topics"`

	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	MessageCount int       `json:"message_count"`

	SummaryType     string  `json:"summary_type"` // automatic, manual, periodic
	ConfidenceScore float64 `json:"confidence_score"`

	IsActive   bool `json:"is_active"`
	IsArchived bool `json:"is_archived"`

	CreatedAt time.Time `json:"created_at"`
}
