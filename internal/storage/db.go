package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/a-kowalski/mindkeep/internal/config"

	_ "github.com/mattn/go-sqlite3"
)

const (
	SchemaVersion = 1
)

// DB represents the database connection
type DB struct {
	conn *sql.DB
}

// NewDB creates a new database connection
func NewDB(cfg *config.Config) (*DB, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_busy_timeout=10000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	database := &DB{conn: db}

	// Run migrations
	if err := database.migrate(); err != nil {
		return nil, err
	}

	return database, nil
}

// migrate applies database migrations
func (db *DB) migrate() error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Check current schema version
	var version int
	err = tx.QueryRow("PRAGMA user_version").Scan(&version)
	if err != nil {
		return err
	}

	// Apply migrations incrementally
	for version < SchemaVersion {
		version++
		switch version {
		case 1:
			if err := db.applySchemaV1(tx); err != nil {
				return fmt.Errorf("failed to apply schema v%d: %w", version, err)
			}
		default:
			return fmt.Errorf("unknown schema version: %d", version)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	return nil
}

// applySchemaV1 applies the initial schema
func (db *DB) applySchemaV1(tx *sql.Tx) error {
	// Learned facts. Identity (user_id, learning_type, key) is deliberately
	// not unique: duplicates accumulate between consolidation runs and are
	// folded by the merge pass.
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS facts (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			learning_type TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 0.5,
			source_conversation_id TEXT,
			context TEXT,
			extraction_method TEXT NOT NULL DEFAULT 'ai_analysis',
			importance_score REAL NOT NULL DEFAULT 0.5,
			times_observed INTEGER NOT NULL DEFAULT 1,
			times_reinforced INTEGER NOT NULL DEFAULT 0,
			times_contradicted INTEGER NOT NULL DEFAULT 0,
			validation_score REAL NOT NULL DEFAULT 0.0,
			last_observed DATETIME NOT NULL,
			last_reinforced DATETIME NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			is_validated BOOLEAN NOT NULL DEFAULT FALSE,
			superseded_by TEXT REFERENCES facts(id),
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		CREATE INDEX IF NOT EXISTS idx_facts_user_active
		ON facts(user_id, is_active)
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		CREATE INDEX IF NOT EXISTS idx_facts_identity
		ON facts(user_id, learning_type, key)
	`)
	if err != nil {
		return err
	}

	// One profile row per user, created lazily on first message.
	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS profiles (
			user_id TEXT PRIMARY KEY,
			personal_facts TEXT NOT NULL DEFAULT '{}',
			communication_preferences TEXT NOT NULL DEFAULT '{}',
			topics_of_interest TEXT NOT NULL DEFAULT '[]',
			expertise_areas TEXT NOT NULL DEFAULT '[]',
			avg_message_length REAL NOT NULL DEFAULT 0.0,
			formality_score REAL NOT NULL DEFAULT 0.5,
			preferred_response_length TEXT NOT NULL DEFAULT 'medium',
			total_messages INTEGER NOT NULL DEFAULT 0,
			total_conversations INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			last_updated DATETIME NOT NULL,
			last_interaction DATETIME NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Raw conversation turns; the analysis window, volume trigger, and
	// summaries all read from here.
	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			message_type TEXT NOT NULL CHECK(message_type IN ('user', 'assistant')),
			content TEXT NOT NULL,
			topics TEXT NOT NULL DEFAULT '[]',
			timestamp DATETIME NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		CREATE INDEX IF NOT EXISTS idx_conversations_user_time
		ON conversations(user_id, timestamp)
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS summaries (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT,
			summary TEXT NOT NULL,
			key_topics TEXT NOT NULL DEFAULT '[]',
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL,
			message_count INTEGER NOT NULL,
			summary_type TEXT NOT NULL DEFAULT 'automatic',
			confidence_score REAL NOT NULL DEFAULT 0.5,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			is_archived BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		CREATE INDEX IF NOT EXISTS idx_summaries_user_time
		ON summaries(user_id, start_time)
	`)
	if err != nil {
		return err
	}

	// Update schema version
	_, err = tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion))
	return err
}

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Stores are built over it so the same queries run standalone or inside a
// consolidation transaction.
type Querier interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// WithTx runs fn inside a transaction, committing on nil error and rolling
// back otherwise. Consolidation uses this so a failed pass leaves no partial
// state visible to readers.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	return tx.Commit()
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// GetConnection returns the underlying database connection
func (db *DB) GetConnection() *sql.DB {
	return db.conn
}
