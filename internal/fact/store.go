package fact

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/a-kowalski/mindkeep/internal/storage"
	"github.com/google/uuid"
)

// ErrNotFound is returned when no fact matches the lookup.
var ErrNotFound = fmt.Errorf("fact not found")

// Store handles fact persistence
type Store struct {
	q storage.Querier
}

// NewStore creates a fact store over the database connection
func NewStore(db *storage.DB) *Store {
	return &Store{q: db.GetConnection()}
}

// WithTx returns a store bound to the given transaction
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{q: tx}
}

const factColumns = `id, user_id, learning_type, key, value, confidence,
	source_conversation_id, context, extraction_method, importance_score,
	times_observed, times_reinforced, times_contradicted, validation_score,
	last_observed, last_reinforced, is_active, is_validated, superseded_by,
	created_at, updated_at`

// Create inserts a new fact record. ID and timestamps are assigned here;
// a fresh record always starts with one observation.
func (s *Store) Create(f *Fact) error {
	if !f.Type.IsValid() {
		return fmt.Errorf("invalid learning type %q", f.Type)
	}

	now := time.Now().UTC()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Confidence == 0 {
		f.Confidence = f.Type.DefaultConfidence()
	}
	if f.ImportanceScore == 0 {
		f.ImportanceScore = 0.5
	}
	if f.ExtractionMethod == "" {
		f.ExtractionMethod = "ai_analysis"
	}
	f.TimesObserved = 1
	f.TimesReinforced = 0
	f.TimesContradicted = 0
	f.LastObserved = now
	f.LastReinforced = now
	f.IsActive = true
	f.CreatedAt = now
	f.UpdatedAt = now

	_, err := s.q.Exec(`
		INSERT INTO facts (`+factColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		f.ID, f.UserID, string(f.Type), f.Key, f.Value, f.Confidence,
		f.SourceConversationID, f.Context, f.ExtractionMethod, f.ImportanceScore,
		f.TimesObserved, f.TimesReinforced, f.TimesContradicted, f.ValidationScore,
		f.LastObserved, f.LastReinforced, f.IsActive, f.IsValidated, f.SupersededBy,
		f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert fact: %w", err)
	}
	return nil
}

// Update persists the mutable portion of a fact record
func (s *Store) Update(f *Fact) error {
	result, err := s.q.Exec(`
		UPDATE facts
		SET value = ?, confidence = ?, context = ?, importance_score = ?,
			times_observed = ?, times_reinforced = ?, times_contradicted = ?,
			validation_score = ?, last_observed = ?, last_reinforced = ?,
			is_active = ?, is_validated = ?, superseded_by = ?, updated_at = ?
		WHERE id = ?
	`,
		f.Value, f.Confidence, f.Context, f.ImportanceScore,
		f.TimesObserved, f.TimesReinforced, f.TimesContradicted,
		f.ValidationScore, f.LastObserved, f.LastReinforced,
		f.IsActive, f.IsValidated, f.SupersededBy, f.UpdatedAt,
		f.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update fact: %w", err)
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

// Get retrieves a fact by ID, active or not
func (s *Store) Get(id string) (*Fact, error) {
	row := s.q.QueryRow(`SELECT `+factColumns+` FROM facts WHERE id = ?`, id)
	f, err := scanFact(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return f, err
}

// ActiveByUser retrieves all active facts for a user
func (s *Store) ActiveByUser(userID string) ([]*Fact, error) {
	return s.queryFacts(`
		SELECT `+factColumns+` FROM facts
		WHERE user_id = ? AND is_active = TRUE
		ORDER BY learning_type, key, created_at
	`, userID)
}

// ActiveByUserRanked retrieves active facts ordered by confidence then
// recency, bounded for relevance scoring.
func (s *Store) ActiveByUserRanked(userID string, limit int) ([]*Fact, error) {
	return s.queryFacts(`
		SELECT `+factColumns+` FROM facts
		WHERE user_id = ? AND is_active = TRUE
		ORDER BY confidence DESC, last_observed DESC
		LIMIT ?
	`, userID, limit)
}

// ActiveByIdentity finds the active fact with the given identity, preferring
// the most confident when duplicates exist between consolidation runs.
func (s *Store) ActiveByIdentity(userID string, learningType LearningType, key string) (*Fact, error) {
	row := s.q.QueryRow(`
		SELECT `+factColumns+` FROM facts
		WHERE user_id = ? AND learning_type = ? AND key = ? AND is_active = TRUE
		ORDER BY confidence DESC, created_at
		LIMIT 1
	`, userID, string(learningType), key)
	f, err := scanFact(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return f, err
}

// ActiveByIdentityValue finds the active fact matching identity and value
// both. Set-like types (topics, expertise) share a key across many values,
// so identity alone cannot address a single record for them.
func (s *Store) ActiveByIdentityValue(userID string, learningType LearningType, key, value string) (*Fact, error) {
	row := s.q.QueryRow(`
		SELECT `+factColumns+` FROM facts
		WHERE user_id = ? AND learning_type = ? AND key = ? AND value = ? AND is_active = TRUE
		ORDER BY confidence DESC, created_at
		LIMIT 1
	`, userID, string(learningType), key, value)
	f, err := scanFact(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return f, err
}

// AllByUser retrieves every fact for a user, including inactive history
func (s *Store) AllByUser(userID string) ([]*Fact, error) {
	return s.queryFacts(`
		SELECT `+factColumns+` FROM facts
		WHERE user_id = ?
		ORDER BY created_at DESC
	`, userID)
}

// CountActive returns the number of active facts for a user
func (s *Store) CountActive(userID string) (int, error) {
	var count int
	err := s.q.QueryRow(`
		SELECT COUNT(*) FROM facts WHERE user_id = ? AND is_active = TRUE
	`, userID).Scan(&count)
	return count, err
}

// CountActiveWithConfidenceAbove returns active facts above a confidence bar
func (s *Store) CountActiveWithConfidenceAbove(userID string, threshold float64) (int, error) {
	var count int
	err := s.q.QueryRow(`
		SELECT COUNT(*) FROM facts
		WHERE user_id = ? AND is_active = TRUE AND confidence > ?
	`, userID, threshold).Scan(&count)
	return count, err
}

// DeleteByUser removes all fact records for a user. Only the profile reset
// path uses this; consolidation never physically deletes.
func (s *Store) DeleteByUser(userID string) (int64, error) {
	result, err := s.q.Exec(`DELETE FROM facts WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete facts: %w", err)
	}
	return result.RowsAffected()
}

func (s *Store) queryFacts(query string, args ...interface{}) ([]*Fact, error) {
	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var facts []*Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFact(row rowScanner) (*Fact, error) {
	var f Fact
	var learningType string
	var sourceConversationID, supersededBy sql.NullString
	var context sql.NullString

	err := row.Scan(
		&f.ID, &f.UserID, &learningType, &f.Key, &f.Value, &f.Confidence,
		&sourceConversationID, &context, &f.ExtractionMethod, &f.ImportanceScore,
		&f.TimesObserved, &f.TimesReinforced, &f.TimesContradicted, &f.ValidationScore,
		&f.LastObserved, &f.LastReinforced, &f.IsActive, &f.IsValidated, &supersededBy,
		&f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	f.Type = LearningType(learningType)
	if sourceConversationID.Valid {
		f.SourceConversationID = &sourceConversationID.String
	}
	if context.Valid {
		f.Context = context.String
	}
	if supersededBy.Valid {
		f.SupersededBy = &supersededBy.String
	}
	return &f, nil
}
