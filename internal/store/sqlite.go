package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLite is the durable Store implementation. One file holds users, profile
// facts and conversation history.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			internal_id TEXT PRIMARY KEY,
			channel     TEXT NOT NULL,
			external_id TEXT NOT NULL,
			display     TEXT,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(channel, external_id)
		);

		CREATE TABLE IF NOT EXISTS facts (
			internal_id TEXT NOT NULL,
			key         TEXT NOT NULL,
			value       TEXT NOT NULL,
			updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY(internal_id, key)
		);

		CREATE TABLE IF NOT EXISTS conversations (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			internal_id TEXT NOT NULL,
			role        TEXT NOT NULL,
			message     TEXT NOT NULL,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_conversations_user
			ON conversations(internal_id, id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLite) GetOrCreateInternalID(ctx context.Context, platform, externalID, displayHint string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT internal_id FROM users WHERE channel = ? AND external_id = ?`,
		platform, externalID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("lookup user: %w", err)
	}

	id = uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (internal_id, channel, external_id, display) VALUES (?, ?, ?, ?)
		 ON CONFLICT(channel, external_id) DO NOTHING`,
		id, platform, externalID, displayHint)
	if err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}

	// A concurrent insert may have won the conflict; read back the winner.
	err = s.db.QueryRowContext(ctx,
		`SELECT internal_id FROM users WHERE channel = ? AND external_id = ?`,
		platform, externalID).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("reread user: %w", err)
	}
	return id, nil
}

func (s *SQLite) GetProfile(ctx context.Context, internalID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM facts WHERE internal_id = ?`, internalID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	defer rows.Close()

	profile := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		profile[k] = v
	}
	return profile, rows.Err()
}

func (s *SQLite) UpdateProfile(ctx context.Context, internalID string, patch map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for k, v := range patch {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO facts (internal_id, key, value) VALUES (?, ?, ?)
			 ON CONFLICT(internal_id, key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
			internalID, k, v); err != nil {
			return fmt.Errorf("upsert fact %s: %w", k, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) LoadRecent(ctx context.Context, internalID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	// Newest N rows, then reversed so callers get oldest first.
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, message FROM conversations
		 WHERE internal_id = ? ORDER BY id DESC LIMIT ?`,
		internalID, limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.Role, &t.Text); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (s *SQLite) Append(ctx context.Context, internalID, role, text string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (internal_id, role, message) VALUES (?, ?, ?)`,
		internalID, role, text)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
