package learning

import (
	"fmt"
	"time"

	"github.com/a-kowalski/mindkeep/internal/fact"
	"github.com/a-kowalski/mindkeep/internal/summary"
)

// highConfidenceFloor is the strict bound for the high-confidence stat.
// A freshly created personal fact at 0.8 does not clear it; one round of
// reinforcement does.
const highConfidenceFloor = 0.8

// TypeStats aggregates the evidence counters for one learning type.
type TypeStats struct {
	Count             int     `json:"count"`
	AvgConfidence     float64 `json:"avg_confidence"`
	TotalReinforced   int     `json:"total_reinforced"`
	TotalContradicted int     `json:"total_contradicted"`
	Validated         int     `json:"validated"`
}

// Summary is the inspectable view of everything learned about one user.
type Summary struct {
	UserID string `json:"user_id"`

	PersonalFacts            map[string]string `json:"personal_facts"`
	CommunicationPreferences map[string]string `json:"communication_preferences"`
	TopicsOfInterest         []string          `json:"topics_of_interest"`
	ExpertiseAreas           []string          `json:"expertise_areas"`

	AvgMessageLength        float64 `json:"avg_message_length"`
	FormalityScore          float64 `json:"formality_score"`
	PreferredResponseLength string  `json:"preferred_response_length"`
	TotalMessages           int     `json:"total_messages"`

	FactsByType map[fact.LearningType]TypeStats `json:"facts_by_type"`

	LastUpdated time.Time `json:"last_updated"`
}

// Stats is the operational snapshot of a user's memory footprint.
type Stats struct {
	UserID                  string `json:"user_id"`
	TotalFacts              int    `json:"total_facts"`
	ActiveFacts             int    `json:"active_facts"`
	HighConfidenceFacts     int    `json:"high_confidence_facts"`
	Conversations           int    `json:"conversations"`
	Summaries               int    `json:"summaries"`
	ConsolidationRecommended bool  `json:"consolidation_recommended"`
}

// GetLearningSummary builds the full learned-state view: profile aggregates
// plus per-type evidence statistics over the active fact records.
func (s *Service) GetLearningSummary(userID string) (*Summary, error) {
	prof, err := s.profiles.GetOrCreate(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	facts, err := s.facts.ActiveByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load facts: %w", err)
	}

	byType := make(map[fact.LearningType]TypeStats)
	confidenceSums := make(map[fact.LearningType]float64)
	for _, f := range facts {
		stats := byType[f.Type]
		stats.Count++
		stats.TotalReinforced += f.TimesReinforced
		stats.TotalContradicted += f.TimesContradicted
		if f.IsValidated {
			stats.Validated++
		}
		byType[f.Type] = stats
		confidenceSums[f.Type] += f.Confidence
	}
	for learningType, stats := range byType {
		stats.AvgConfidence = confidenceSums[learningType] / float64(stats.Count)
		byType[learningType] = stats
	}

	return &Summary{
		UserID:                   userID,
		PersonalFacts:            prof.PersonalFacts,
		CommunicationPreferences: prof.CommunicationPreferences,
		TopicsOfInterest:         prof.TopicsOfInterest.Values(),
		ExpertiseAreas:           prof.ExpertiseAreas.Values(),
		AvgMessageLength:         prof.AvgMessageLength,
		FormalityScore:           prof.FormalityScore,
		PreferredResponseLength:  prof.PreferredResponseLength,
		TotalMessages:            prof.TotalMessages,
		FactsByType:              byType,
		LastUpdated:              prof.LastUpdated,
	}, nil
}

// GetStats reports the user's memory footprint and whether a consolidation
// run is due.
func (s *Service) GetStats(userID string) (*Stats, error) {
	all, err := s.facts.AllByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load facts: %w", err)
	}
	active := 0
	highConfidence := 0
	for _, f := range all {
		if f.IsActive {
			active++
			if f.Confidence > highConfidenceFloor {
				highConfidence++
			}
		}
	}

	conversations, err := s.turns.CountByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count conversations: %w", err)
	}
	summaries, err := s.summaries.CountByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count summaries: %w", err)
	}
	recommended, err := s.consolidator.ShouldConsolidate(userID)
	if err != nil {
		return nil, err
	}

	return &Stats{
		UserID:                   userID,
		TotalFacts:               len(all),
		ActiveFacts:              active,
		HighConfidenceFacts:      highConfidence,
		Conversations:            conversations,
		Summaries:                summaries,
		ConsolidationRecommended: recommended,
	}, nil
}

// RecentSummaries lists the newest active stored summaries.
func (s *Service) RecentSummaries(userID string, limit int) ([]summary.Summary, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.summaries.RecentActive(userID, limit)
}
