// Package storage provides the persistence layer for the revive server.
// This package implements the repository pattern to keep the domain pure.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventRecord mirrors a lifecycle event for persistence.
type EventRecord struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	EventType string         `json:"event_type"`
	ActorID   string         `json:"actor_id"`
	TargetID  string         `json:"target_id"`
	Payload   map[string]any `json:"payload"`
	Tick      int64          `json:"tick"`
}

// EventRepository defines the interface for event persistence.
type EventRepository interface {
	// Append adds a new event to the immutable ledger.
	Append(ctx context.Context, event EventRecord) error

	// GetByEntity retrieves events where the entity is actor or target, oldest first.
	GetByEntity(ctx context.Context, entityID string) ([]EventRecord, error)

	// GetRecent retrieves the newest events, newest first.
	GetRecent(ctx context.Context, limit int) ([]EventRecord, error)
}

// DocumentRepository stores entity save documents. It satisfies
// persistence.DocumentStore.
type DocumentRepository interface {
	Save(ctx context.Context, id uuid.UUID, data []byte) error
	Load(ctx context.Context, id uuid.UUID) ([]byte, bool, error)
	List(ctx context.Context) ([]uuid.UUID, error)
}
