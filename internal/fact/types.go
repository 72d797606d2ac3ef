package fact

import (
	"time"
)

// LearningType classifies what kind of knowledge a fact encodes
type LearningType string

const (
	PersonalFact            LearningType = "personal_fact"
	CommunicationPreference LearningType = "communication_preference"
	TopicInterest           LearningType = "topic_interest"
	ExpertiseArea           LearningType = "expertise_area"
	Feedback                LearningType = "feedback"
)

// IsValid reports whether the learning type is one of the known categories.
func (t LearningType) IsValid() bool {
	switch t {
	case PersonalFact, CommunicationPreference, TopicInterest, ExpertiseArea, Feedback:
		return true
	default:
		return false
	}
}

// DefaultConfidence returns the initial confidence for a newly created fact
// of this type. Stated facts start higher than inferred ones.
func (t LearningType) DefaultConfidence() float64 {
	switch t {
	case PersonalFact:
		return 0.8
	case CommunicationPreference:
		return 0.7
	case Feedback:
		return 0.9
	default:
		return 0.6
	}
}

// Fact is one atomic learned datum about a user. Identity is
// (UserID, LearningType, Key) and is not unique: duplicates accumulate
// between consolidation runs and are folded by the merge pass.
type Fact struct {
	ID     string       `json:"id"`
	UserID string       `json:"user_id"`
	Type   LearningType `json:"learning_type"`
	Key    string       `json:"key"`
	Value  string       `json:"value"`

	Confidence      float64 `json:"confidence"`
	ImportanceScore float64 `json:"importance_score"`

	SourceConversationID *string `json:"source_conversation_id,omitempty"`
	Context              string  `json:"context,omitempty"`
	ExtractionMethod     string  `json:"extraction_method"`

	TimesObserved     int `json:"times_observed"`
	TimesReinforced   int `json:"times_reinforced"`
	TimesContradicted int `json:"times_contradicted"`

	ValidationScore float64 `json:"validation_score"`

	LastObserved   time.Time `json:"last_observed"`
	LastReinforced time.Time `json:"last_reinforced"`

	IsActive     bool    `json:"is_active"`
	IsValidated  bool    `json:"is_validated"`
	SupersededBy *string `json:"superseded_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
