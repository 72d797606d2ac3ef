package summary

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/a-kowalski/mindkeep/internal/storage"
	"github.com/google/uuid"
)

// Store handles conversation summary persistence
type Store struct {
	q storage.Querier
}

// NewStore creates a summary store over the database connection
func NewStore(db *storage.DB) *Store {
	return &Store{q: db.GetConnection()}
}

// WithTx returns a store bound to the given transaction
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{q: tx}
}

// Create persists a new summary
func (s *Store) Create(sum *Summary) error {
	if sum.ID == "" {
		sum.ID = uuid.NewString()
	}
	if sum.SummaryType == "" {
		sum.SummaryType = "automatic"
	}
	if sum.CreatedAt.IsZero() {
		sum.CreatedAt = time.Now().UTC()
	}
	sum.IsActive = true

	topics, err := json.Marshal(sum.KeyTopics)
	if err != nil {
		return err
	}

	_, err = s.q.Exec(`
		INSERT INTO summaries (id, user_id, title, summary, key_topics,
			start_time, end_time, message_count, summary_type, confidence_score,
			is_active, is_archived, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sum.ID, sum.UserID, sum.Title, sum.Text, string(topics),
		sum.StartTime, sum.EndTime, sum.MessageCount, sum.SummaryType, sum.ConfidenceScore,
		sum.IsActive, sum.IsArchived, sum.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert summary: %w", err)
	}
	return nil
}

// RecentActive returns the latest active summaries, newest window first
func (s *Store) RecentActive(userID string, limit int) ([]Summary, error) {
	rows, err := s.q.Query(`
		SELECT id, user_id, title, summary, key_topics,
			start_time, end_time, message_count, summary_type, confidence_score,
			is_active, is_archived, created_at
		FROM summaries
		WHERE user_id = ? AND is_active = TRUE
		ORDER BY end_time DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var sum Summary
		var topics string
		err := rows.Scan(
			&sum.ID, &sum.UserID, &sum.Title, &sum.Text, &topics,
			&sum.StartTime, &sum.EndTime, &sum.MessageCount, &sum.SummaryType, &sum.ConfidenceScore,
			&sum.IsActive, &sum.IsArchived, &sum.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(topics), &sum.KeyTopics); err != nil {
			return nil, fmt.Errorf("corrupt key_topics for summary %s: %w", sum.ID, err)
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// ExistsCovering reports whether any summary window starts after the cutoff.
// The consolidation pass uses this to avoid stacking duplicate summaries.
func (s *Store) ExistsCovering(userID string, cutoff time.Time) (bool, error) {
	var count int
	err := s.q.QueryRow(`
		SELECT COUNT(*) FROM summaries
		WHERE user_id = ? AND start_time > ?
	`, userID, cutoff).Scan(&count)
	return count > 0, err
}

// CountByUser returns the total number of summaries for a user
func (s *Store) CountByUser(userID string) (int, error) {
	var count int
	err := s.q.QueryRow(`
		SELECT COUNT(*) FROM summaries WHERE user_id = ?
	`, userID).Scan(&count)
	return count, err
}

// DeleteByUser removes all summaries for a user (profile reset only)
func (s *Store) DeleteByUser(userID string) (int64, error) {
	result, err := s.q.Exec(`DELETE FROM summaries WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete summaries: %w", err)
	}
	return result.RowsAffected()
}
