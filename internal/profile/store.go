package profile

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/a-kowalski/mindkeep/internal/storage"
)

// ErrNotFound is returned when a user has no profile yet.
var ErrNotFound = fmt.Errorf("profile not found")

// Store handles profile persistence
type Store struct {
	q storage.Querier
}

// NewStore creates a profile store over the database connection
func NewStore(db *storage.DB) *Store {
	return &Store{q: db.GetConnection()}
}

// WithTx returns a store bound to the given transaction
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{q: tx}
}

// Get retrieves a user's profile
func (s *Store) Get(userID string) (*Profile, error) {
	row := s.q.QueryRow(`
		SELECT user_id, personal_facts, communication_preferences,
			topics_of_interest, expertise_areas,
			avg_message_length, formality_score, preferred_response_length,
			total_messages, total_conversations,
			created_at, last_updated, last_interaction
		FROM profiles
		WHERE user_id = ?
	`, userID)

	var p Profile
	var personalFacts, preferences, topics, expertise string
	err := row.Scan(
		&p.UserID, &personalFacts, &preferences, &topics, &expertise,
		&p.AvgMessageLength, &p.FormalityScore, &p.PreferredResponseLength,
		&p.TotalMessages, &p.TotalConversations,
		&p.CreatedAt, &p.LastUpdated, &p.LastInteraction,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(personalFacts), &p.PersonalFacts); err != nil {
		return nil, fmt.Errorf("corrupt personal_facts for user %s: %w", userID, err)
	}
	if err := json.Unmarshal([]byte(preferences), &p.CommunicationPreferences); err != nil {
		return nil, fmt.Errorf("corrupt communication_preferences for user %s: %w", userID, err)
	}
	p.TopicsOfInterest = NewStringSet()
	if err := json.Unmarshal([]byte(topics), p.TopicsOfInterest); err != nil {
		return nil, fmt.Errorf("corrupt topics_of_interest for user %s: %w", userID, err)
	}
	p.ExpertiseAreas = NewStringSet()
	if err := json.Unmarshal([]byte(expertise), p.ExpertiseAreas); err != nil {
		return nil, fmt.Errorf("corrupt expertise_areas for user %s: %w", userID, err)
	}

	return &p, nil
}

// GetOrCreate retrieves a user's profile, creating an empty one if absent
func (s *Store) GetOrCreate(userID string) (*Profile, error) {
	p, err := s.Get(userID)
	if err == nil {
		return p, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	p = New(userID)
	_, err = s.q.Exec(`
		INSERT INTO profiles (user_id, created_at, last_updated, last_interaction)
		VALUES (?, ?, ?, ?)
	`, p.UserID, p.CreatedAt, p.LastUpdated, p.LastInteraction)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return p, nil
}

// Update persists the profile's aggregates and metrics
func (s *Store) Update(p *Profile) error {
	personalFacts, err := json.Marshal(p.PersonalFacts)
	if err != nil {
		return err
	}
	preferences, err := json.Marshal(p.CommunicationPreferences)
	if err != nil {
		return err
	}
	topics, err := json.Marshal(p.TopicsOfInterest)
	if err != nil {
		return err
	}
	expertise, err := json.Marshal(p.ExpertiseAreas)
	if err != nil {
		return err
	}

	result, err := s.q.Exec(`
		UPDATE profiles
		SET personal_facts = ?, communication_preferences = ?,
			topics_of_interest = ?, expertise_areas = ?,
			avg_message_length = ?, formality_score = ?, preferred_response_length = ?,
			total_messages = ?, total_conversations = ?,
			last_updated = ?, last_interaction = ?
		WHERE user_id = ?
	`,
		string(personalFacts), string(preferences), string(topics), string(expertise),
		p.AvgMessageLength, p.FormalityScore, p.PreferredResponseLength,
		p.TotalMessages, p.TotalConversations,
		time.Now().UTC(), p.LastInteraction,
		p.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
