package profile

import (
	"time"

	"github.com/a-kowalski/mindkeep/internal/analysis"
	"github.com/a-kowalski/mindkeep/internal/conversation"
)

// Exponential moving average rates. Hand-tuned policy preserved for
// behavioral compatibility; see DESIGN.md.
const (
	FormalityAlpha     = 0.3
	MessageLengthAlpha = 0.2
)

// Profile is the running model of a single user, created lazily on their
// first message.
type Profile struct {
	UserID string `json:"user_id"`

	PersonalFacts            map[string]string `json:"personal_facts"`
	CommunicationPreferences map[string]string `json:"communication_preferences"`
	TopicsOfInterest         *StringSet        `json:"topics_of_interest"`
	ExpertiseAreas           *StringSet        `json:"expertise_areas"`

	AvgMessageLength        float64 `json:"avg_message_length"`
	FormalityScore          float64 `json:"formality_score"`
	PreferredResponseLength string  `json:"preferred_response_length"`

	TotalMessages      int `json:"total_messages"`
	TotalConversations int `json:"total_conversations"`

	CreatedAt       time.Time `json:"created_at"`
	LastUpdated     time.Time `json:"last_updated"`
	LastInteraction time.Time `json:"last_interaction"`
}

// New returns an empty profile with neutral starting metrics.
func New(userID string) *Profile {
	now := time.Now().UTC()
	return &Profile{
		UserID:                   userID,
		PersonalFacts:            map[string]string{},
		CommunicationPreferences: map[string]string{},
		TopicsOfInterest:         NewStringSet(),
		ExpertiseAreas:           NewStringSet(),
		FormalityScore:           0.5,
		PreferredResponseLength:  "medium",
		CreatedAt:                now,
		LastUpdated:              now,
		LastInteraction:          now,
	}
}

// ApplyAnalysis folds one analysis result into the profile: last-write-wins
// map merges, grow-only set unions, EMA on formality, and a plain overwrite
// of the preferred response length.
func (p *Profile) ApplyAnalysis(res *analysis.Result) {
	if res == nil {
		return
	}

	for key, value := range res.PersonalFacts {
		p.PersonalFacts[key] = value
	}
	for key, value := range res.CommunicationPreferences {
		p.CommunicationPreferences[key] = value
	}

	p.TopicsOfInterest.Union(res.TopicsOfInterest)
	p.ExpertiseAreas.Union(res.ExpertiseAreas)

	if res.FormalityScore != nil {
		p.FormalityScore = FormalityAlpha*(*res.FormalityScore) + (1-FormalityAlpha)*p.FormalityScore
	}
	if res.PreferredResponseLength != "" {
		p.PreferredResponseLength = res.PreferredResponseLength
	}

	p.LastUpdated = time.Now().UTC()
}

// UpdateMessageMetrics folds the current batch of user-authored turns into
// the rolling average message length.
func (p *Profile) UpdateMessageMetrics(turns []conversation.Turn) {
	totalLength := 0
	userTurns := 0
	for _, turn := range turns {
		if turn.MessageType == conversation.UserTurn {
			totalLength += len(turn.Content)
			userTurns++
		}
	}
	if userTurns == 0 {
		return
	}

	batchAvg := float64(totalLength) / float64(userTurns)
	p.AvgMessageLength = MessageLengthAlpha*batchAvg + (1-MessageLengthAlpha)*p.AvgMessageLength
	p.LastUpdated = time.Now().UTC()
}

// RecordInteraction bumps the message counter and interaction timestamp for
// each processed turn batch.
func (p *Profile) RecordInteraction(turnCount int) {
	p.TotalMessages += turnCount
	p.LastInteraction = time.Now().UTC()
}

// Reset clears everything learned. This is the one path allowed to shrink
// the grow-only sets.
func (p *Profile) Reset() {
	p.PersonalFacts = map[string]string{}
	p.CommunicationPreferences = map[string]string{}
	p.TopicsOfInterest.Reset()
	p.ExpertiseAreas.Reset()
	p.AvgMessageLength = 0.0
	p.FormalityScore = 0.5
	p.PreferredResponseLength = "medium"
	p.LastUpdated = time.Now().UTC()
}
