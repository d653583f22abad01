// Package events provides the append-only log of downed-state lifecycle events.
// Every knock-down, revive and termination leaves a record here.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gqrshy/tacticalrevive/internal/platform/logger"
	"github.com/gqrshy/tacticalrevive/internal/platform/metrics"
)

// EventType defines the category of a lifecycle event.
type EventType string

const (
	EventTypeDowned         EventType = "DOWNED"
	EventTypeRevived        EventType = "REVIVED"
	EventTypeTerminated     EventType = "TERMINATED"
	EventTypeHelperAssigned EventType = "HELPER_ASSIGNED"
	EventTypeHelperReleased EventType = "HELPER_RELEASED"
	EventTypeGiveUp         EventType = "GIVE_UP"
	EventTypeRestored       EventType = "RESTORED"
	EventTypeRespawned      EventType = "RESPAWNED"
)

// Event is an immutable record of a lifecycle transition.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	ActorID   string    `json:"actor_id"`  // who caused it
	TargetID  string    `json:"target_id"` // the downed entity
	Payload   any       `json:"payload"`
	Tick      int64     `json:"tick"`
}

// DownedPayload is attached to DOWNED events.
type DownedPayload struct {
	Cause    string `json:"cause,omitempty"`
	TimeLeft int    `json:"time_left"`
}

// ExitPayload is attached to REVIVED and TERMINATED events.
type ExitPayload struct {
	TimeLeft       int     `json:"time_left"`
	DownedTime     int     `json:"downed_time"`
	ReviveProgress float32 `json:"revive_progress"`
	Cause          string  `json:"cause,omitempty"`
	Helpers        int     `json:"helpers"`
}

// HelperPayload is attached to HELPER_* events.
type HelperPayload struct {
	Reason string `json:"reason,omitempty"`
}

// EventPersister defines how an event is durably stored.
type EventPersister interface {
	Append(event Event) error
}

// EventLog is the in-memory append-only log. A persister, when present, is
// fed by a background writer.
type EventLog struct {
	mu     sync.RWMutex
	events []Event

	persister EventPersister
	queue     chan Event
	done      chan struct{}
	closeOnce sync.Once
	closed    bool

	logger  *logger.Logger
	metrics *metrics.Collector
}

// NewEventLog creates an in-memory log without durable storage.
func NewEventLog() *EventLog {
	return &EventLog{events: make([]Event, 0)}
}

// NewPersistentEventLog creates a log that writes through to persister.
// buffer bounds the pending writes; when full, Append persists inline and
// write order is no longer guaranteed.
func NewPersistentEventLog(persister EventPersister, buffer int, log *logger.Logger, m *metrics.Collector) *EventLog {
	if buffer <= 0 {
		buffer = 1
	}
	el := &EventLog{
		events:    make([]Event, 0),
		persister: persister,
		queue:     make(chan Event, buffer),
		done:      make(chan struct{}),
		logger:    log,
		metrics:   m,
	}
	go el.writer()
	return el
}

// Append adds a new event to the log. Events are immutable once appended.
func (el *EventLog) Append(event Event) {
	if event.ID == "" {
		event.ID = GenerateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	el.mu.Lock()
	el.events = append(el.events, event)
	inline := false
	if el.persister != nil && !el.closed {
		select {
		case el.queue <- event:
		default:
			inline = true
		}
	}
	el.mu.Unlock()

	if inline {
		el.persist(event)
	}
}

func (el *EventLog) writer() {
	defer close(el.done)
	for e := range el.queue {
		el.persist(e)
	}
}

func (el *EventLog) persist(e Event) {
	start := time.Now()
	err := el.persister.Append(e)
	el.metrics.RecordEventWrite(time.Since(start), err)
	if err != nil && el.logger != nil {
		el.logger.Error("Failed to persist lifecycle event",
			zap.String("event_id", e.ID), zap.String("type", string(e.Type)), zap.Error(err))
	}
}

// Close flushes pending writes and stops the writer. Appends after Close
// are kept in memory only.
func (el *EventLog) Close() {
	if el.persister == nil {
		return
	}
	el.closeOnce.Do(func() {
		el.mu.Lock()
		el.closed = true
		el.mu.Unlock()
		close(el.queue)
		<-el.done
	})
}

// GetByTarget returns all events concerning a specific entity.
func (el *EventLog) GetByTarget(targetID string) []Event {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []Event
	for _, e := range el.events {
		if e.TargetID == targetID || e.ActorID == targetID {
			result = append(result, e)
		}
	}
	return result
}

// GetByType returns all events of one type.
func (el *EventLog) GetByType(t EventType) []Event {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []Event
	for _, e := range el.events {
		if e.Type == t {
			result = append(result, e)
		}
	}
	return result
}

// Replay returns a copy of the full history.
func (el *EventLog) Replay() []Event {
	el.mu.RLock()
	defer el.mu.RUnlock()
	out := make([]Event, len(el.events))
	copy(out, el.events)
	return out
}

// Len returns the number of events held in memory.
func (el *EventLog) Len() int {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return len(el.events)
}

// GenerateEventID creates a unique event identifier.
func GenerateEventID() string {
	return uuid.NewString()
}
