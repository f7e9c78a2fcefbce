// Package store provides conversation persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/ollama-manager/internal/domain"
)

// HistoryStore is an append-only log of completed conversations.
type HistoryStore interface {
	// Append records a completed conversation and returns its assigned ID.
	// The record is durable when Append returns without error.
	Append(ctx context.Context, model string, messages []domain.Message) (int64, error)

	// MostRecent returns the messages of the newest record, or nil when the
	// store is empty.
	MostRecent(ctx context.Context) ([]domain.Message, error)

	// Latest returns the newest full record, or nil when the store is empty.
	Latest(ctx context.Context) (*domain.ConversationRecord, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
