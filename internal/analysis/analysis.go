package analysis

import (
	"context"

	"github.com/a-kowalski/mindkeep/internal/conversation"
)

// Result is the structured outcome of analyzing a conversation window.
// A nil or empty result means "nothing learned this cycle".
type Result struct {
	PersonalFacts            map[string]string `json:"personal_facts"`
	CommunicationPreferences map[string]string `json:"communication_preferences"`
	TopicsOfInterest         []string          `json:"topics_of_interest"`
	ExpertiseAreas           []string          `json:"expertise_areas"`
	FormalityScore           *float64          `json:"formality_score,omitempty"`
	PreferredResponseLength  string            `json:"preferred_response_length,omitempty"`
}

// IsEmpty reports whether the analysis produced nothing actionable.
func (r *Result) IsEmpty() bool {
	if r == nil {
		return true
	}
	return len(r.PersonalFacts) == 0 &&
		len(r.CommunicationPreferences) == 0 &&
		len(r.TopicsOfInterest) == 0 &&
		len(r.ExpertiseAreas) == 0 &&
		r.FormalityScore == nil &&
		r.PreferredResponseLength == ""
}

// Analyzer extracts structured learning from a window of conversation turns.
// Implementations may fail (network, provider) or produce malformed output;
// callers treat either as an empty cycle, never as fatal.
type Analyzer interface {
	Analyze(ctx context.Context, turns []conversation.Turn) (*Result, error)
}
