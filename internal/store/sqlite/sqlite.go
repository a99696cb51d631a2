package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/relaychat/internal/store"
)

// memoryDSN keeps the backlog inside the process; nothing survives a restart.
const memoryDSN = ":memory:"

// Schema creates the tables used by SQLiteStore.
const Schema = `
CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	alias      TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates an in-memory SQLite store with the schema applied.
func New() (*SQLiteStore, error) {
	return NewWithSetup(memoryDSN, ApplySchema)
}

// ApplySchema creates the tables used by SQLiteStore.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// An in-memory database lives in exactly one connection; keep it open.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== MessageStore implementation ====

// SaveMessage records a relayed message.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO messages (alias, body, created_at)
		VALUES (?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, msg.Alias, msg.Body, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	msg.ID = id
	return nil
}

// ListMessages retrieves the most recent messages in chronological order.
func (s *SQLiteStore) ListMessages(ctx context.Context, limit int) ([]*store.Message, error) {
	query := `
		SELECT id, alias, body, created_at
		FROM messages
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.Alias, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}

	// Reverse to get chronological order
	for i := 0; i < len(messages)/2; i++ {
		messages[i], messages[len(messages)-1-i] = messages[len(messages)-1-i], messages[i]
	}

	return messages, rows.Err()
}

// PruneMessages keeps only the newest keep messages.
func (s *SQLiteStore) PruneMessages(ctx context.Context, keep int) error {
	if keep < 0 {
		keep = 0
	}

	query := `
		DELETE FROM messages
		WHERE id NOT IN (
			SELECT id FROM messages ORDER BY id DESC LIMIT ?
		)
	`
	if _, err := s.db.ExecContext(ctx, query, keep); err != nil {
		return fmt.Errorf("prune messages: %w", err)
	}
	return nil
}
