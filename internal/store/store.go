package store

import (
	"context"
	"time"
)

// Message represents a relayed chat line kept for the backlog.
type Message struct {
	ID        int64
	Alias     string
	Body      string
	CreatedAt time.Time
}

// MessageStore handles the chat backlog.
type MessageStore interface {
	// SaveMessage records a relayed message.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListMessages retrieves the most recent messages in chronological order.
	// Limit determines max number of messages to return.
	ListMessages(ctx context.Context, limit int) ([]*Message, error)

	// PruneMessages keeps only the newest keep messages.
	PruneMessages(ctx context.Context, keep int) error
}

// Store aggregates all storage interfaces.
type Store interface {
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
