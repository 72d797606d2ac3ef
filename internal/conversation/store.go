package conversation

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/a-kowalski/mindkeep/internal/storage"
	"github.com/google/uuid"
)

// Store handles conversation turn persistence
type Store struct {
	q storage.Querier
}

// NewStore creates a conversation store over the database connection
func NewStore(db *storage.DB) *Store {
	return &Store{q: db.GetConnection()}
}

// WithTx returns a store bound to the given transaction
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{q: tx}
}

// Append persists a turn, assigning ID and timestamp if unset
func (s *Store) Append(turn *Turn) error {
	if turn.MessageType != UserTurn && turn.MessageType != AssistantTurn {
		return fmt.Errorf("invalid message type %q", turn.MessageType)
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}

	topics, err := json.Marshal(turn.Topics)
	if err != nil {
		return err
	}

	_, err = s.q.Exec(`
		INSERT INTO conversations (id, user_id, message_type, content, topics, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, turn.ID, turn.UserID, turn.MessageType, turn.Content, string(topics), turn.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}
	return nil
}

// RecentByUser returns the latest turns in chronological order
func (s *Store) RecentByUser(userID string, limit int) ([]Turn, error) {
	rows, err := s.q.Query(`
		SELECT id, user_id, message_type, content, topics, timestamp
		FROM conversations
		WHERE user_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	turns, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}

	// Newest-first from the query; callers want chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// Since returns all turns after the cutoff in chronological order
func (s *Store) Since(userID string, cutoff time.Time) ([]Turn, error) {
	rows, err := s.q.Query(`
		SELECT id, user_id, message_type, content, topics, timestamp
		FROM conversations
		WHERE user_id = ? AND timestamp > ?
		ORDER BY timestamp
	`, userID, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTurns(rows)
}

// CountSince returns the number of turns after the cutoff
func (s *Store) CountSince(userID string, cutoff time.Time) (int, error) {
	var count int
	err := s.q.QueryRow(`
		SELECT COUNT(*) FROM conversations
		WHERE user_id = ? AND timestamp > ?
	`, userID, cutoff).Scan(&count)
	return count, err
}

// CountByUser returns the total number of stored turns for a user
func (s *Store) CountByUser(userID string) (int, error) {
	var count int
	err := s.q.QueryRow(`
		SELECT COUNT(*) FROM conversations WHERE user_id = ?
	`, userID).Scan(&count)
	return count, err
}

func scanTurns(rows *sql.Rows) ([]Turn, error) {
	var turns []Turn
	for rows.Next() {
		var turn Turn
		var topics string
		if err := rows.Scan(&turn.ID, &turn.UserID, &turn.MessageType, &turn.Content, &topics, &turn.Timestamp); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(topics), &turn.Topics); err != nil {
			return nil, fmt.Errorf("corrupt topics for turn %s: %w", turn.ID, err)
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}
