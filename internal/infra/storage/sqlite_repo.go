package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gqrshy/tacticalrevive/internal/events"
)

// SQLiteEventRepository implements EventRepository for SQLite.
type SQLiteEventRepository struct {
	db *sql.DB
}

func NewSQLiteEventRepository(db *sql.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

func (r *SQLiteEventRepository) Append(ctx context.Context, event EventRecord) error {
	payloadBytes, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO downed_events (id, timestamp, event_type, actor_id, target_id, payload, tick)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		event.ID, toMillis(event.Timestamp), event.EventType, event.ActorID,
		event.TargetID, string(payloadBytes), event.Tick,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (r *SQLiteEventRepository) getMany(ctx context.Context, query string, args ...any) ([]EventRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var e EventRecord
		var ts int64
		var payloadStr string
		if err := rows.Scan(&e.ID, &ts, &e.EventType, &e.ActorID, &e.TargetID, &payloadStr, &e.Tick); err != nil {
			return nil, err
		}
		e.Timestamp = fromMillis(ts)
		if err := json.Unmarshal([]byte(payloadStr), &e.Payload); err != nil {
			return nil, fmt.Errorf("event %s: bad payload: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteEventRepository) GetByEntity(ctx context.Context, entityID string) ([]EventRecord, error) {
	query := `SELECT id, timestamp, event_type, actor_id, target_id, payload, tick FROM downed_events WHERE target_id = ? OR actor_id = ? ORDER BY timestamp ASC, tick ASC, rowid ASC`
	return r.getMany(ctx, query, entityID, entityID)
}

func (r *SQLiteEventRepository) GetRecent(ctx context.Context, limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, timestamp, event_type, actor_id, target_id, payload, tick FROM downed_events ORDER BY timestamp DESC, tick DESC, rowid DESC LIMIT ?`
	return r.getMany(ctx, query, limit)
}

// EventPersister adapts an EventRepository to the in-memory event log.
type EventPersister struct {
	repo    EventRepository
	timeout time.Duration
}

func NewEventPersister(repo EventRepository) *EventPersister {
	return &EventPersister{repo: repo, timeout: 5 * time.Second}
}

// Append implements events.EventPersister.
func (p *EventPersister) Append(e events.Event) error {
	rec, err := ToRecord(e)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return p.repo.Append(ctx, rec)
}

// ToRecord flattens an event payload to a JSON object.
func ToRecord(e events.Event) (EventRecord, error) {
	rec := EventRecord{
		ID:        e.ID,
		Timestamp: e.Timestamp,
		EventType: string(e.Type),
		ActorID:   e.ActorID,
		TargetID:  e.TargetID,
		Tick:      e.Tick,
		Payload:   map[string]any{},
	}
	if e.Payload == nil {
		return rec, nil
	}
	b, err := json.Marshal(e.Payload)
	if err != nil {
		return rec, fmt.Errorf("failed to marshal payload: %w", err)
	}
	if err := json.Unmarshal(b, &rec.Payload); err != nil {
		// Scalars and arrays are wrapped.
		rec.Payload = map[string]any{"value": json.RawMessage(b)}
	}
	return rec, nil
}

// ---------------------------------------------------------
// SQLiteDocumentRepository
// ---------------------------------------------------------

type SQLiteDocumentRepository struct {
	db *sql.DB
}

func NewSQLiteDocumentRepository(db *sql.DB) *SQLiteDocumentRepository {
	return &SQLiteDocumentRepository{db: db}
}

func (r *SQLiteDocumentRepository) Save(ctx context.Context, id uuid.UUID, data []byte) error {
	query := `
		INSERT INTO entity_documents (entity_id, document, last_updated)
		VALUES (?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			document=excluded.document,
			last_updated=excluded.last_updated
	`
	if _, err := r.db.ExecContext(ctx, query, id.String(), data, toMillis(time.Now())); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

func (r *SQLiteDocumentRepository) Load(ctx context.Context, id uuid.UUID) ([]byte, bool, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, `SELECT document FROM entity_documents WHERE entity_id = ?`, id.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load document: %w", err)
	}
	return data, true, nil
}

func (r *SQLiteDocumentRepository) List(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT entity_id FROM entity_documents ORDER BY entity_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("bad entity id %q: %w", raw, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
