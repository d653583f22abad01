// Package storage - reconstructor.go
// Rebuilds a per-entity downed history from the event ledger.
package storage

import (
	"context"
	"fmt"

	"github.com/gqrshy/tacticalrevive/internal/events"
)

// Reconstructor folds the event ledger into per-entity summaries. Used by
// the inspect command and the history endpoint.
type Reconstructor struct {
	eventRepo EventRepository
}

// NewReconstructor creates a new reconstructor.
func NewReconstructor(eventRepo EventRepository) *Reconstructor {
	return &Reconstructor{eventRepo: eventRepo}
}

// Recap counts what happened to and around one entity.
type Recap struct {
	EntityID      string `json:"entity_id"`
	Downs         int    `json:"downs"`
	Revives       int    `json:"revives"`
	Deaths        int    `json:"deaths"`
	GiveUps       int    `json:"give_ups"`
	HelpsGiven    int    `json:"helps_given"`
	HelpsGot      int    `json:"helps_received"`
	CurrentlyDown bool   `json:"currently_down"`
}

// RecapEvent is a readable line of the timeline.
type RecapEvent struct {
	Timestamp string `json:"timestamp"`
	Tick      int64  `json:"tick"`
	EventType string `json:"event_type"`
	Summary   string `json:"summary"`
	Impact    string `json:"impact"` // "POSITIVE", "NEGATIVE", "NEUTRAL"
}

// Rebuild computes the recap of entityID.
func (r *Reconstructor) Rebuild(ctx context.Context, entityID string) (*Recap, error) {
	evs, err := r.eventRepo.GetByEntity(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to get events for entity: %w", err)
	}

	recap := &Recap{EntityID: entityID}
	for _, e := range evs {
		r.apply(recap, e)
	}
	return recap, nil
}

// Timeline returns the readable history of entityID.
func (r *Reconstructor) Timeline(ctx context.Context, entityID string) ([]RecapEvent, error) {
	evs, err := r.eventRepo.GetByEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}

	out := make([]RecapEvent, 0, len(evs))
	for _, e := range evs {
		out = append(out, RecapEvent{
			Timestamp: e.Timestamp.Format("2006-01-02 15:04:05"),
			Tick:      e.Tick,
			EventType: e.EventType,
			Summary:   summarize(e, entityID),
			Impact:    impact(e, entityID),
		})
	}
	return out, nil
}

func (r *Reconstructor) apply(recap *Recap, e EventRecord) {
	self := e.TargetID == recap.EntityID
	switch events.EventType(e.EventType) {
	case events.EventTypeDowned:
		if self {
			recap.Downs++
			recap.CurrentlyDown = true
		}
	case events.EventTypeRevived:
		if self {
			recap.Revives++
			recap.CurrentlyDown = false
		}
	case events.EventTypeTerminated:
		if self {
			recap.Deaths++
			recap.CurrentlyDown = false
		}
	case events.EventTypeRespawned:
		if self {
			recap.CurrentlyDown = false
		}
	case events.EventTypeGiveUp:
		if self {
			recap.GiveUps++
		}
	case events.EventTypeHelperAssigned:
		if e.ActorID == recap.EntityID {
			recap.HelpsGiven++
		} else if self {
			recap.HelpsGot++
		}
	}
}

func summarize(e EventRecord, observerID string) string {
	self := e.TargetID == observerID
	switch events.EventType(e.EventType) {
	case events.EventTypeDowned:
		if cause, ok := e.Payload["cause"].(string); ok && cause != "" {
			return "Downed by " + cause + "."
		}
		return "Downed."
	case events.EventTypeRevived:
		if self {
			return "Revived by allies."
		}
		return "Helped revive " + e.TargetID + "."
	case events.EventTypeTerminated:
		return "Bled out."
	case events.EventTypeGiveUp:
		return "Gave up."
	case events.EventTypeHelperAssigned:
		if self {
			return e.ActorID + " started helping."
		}
		return "Started helping " + e.TargetID + "."
	case events.EventTypeHelperReleased:
		if self {
			return e.ActorID + " stopped helping."
		}
		return "Stopped helping " + e.TargetID + "."
	case events.EventTypeRestored:
		return "Downed state restored after load."
	case events.EventTypeRespawned:
		return "Respawned."
	default:
		return "Unknown event " + e.EventType + "."
	}
}

func impact(e EventRecord, observerID string) string {
	switch events.EventType(e.EventType) {
	case events.EventTypeDowned, events.EventTypeTerminated, events.EventTypeGiveUp:
		return "NEGATIVE"
	case events.EventTypeRevived:
		return "POSITIVE"
	case events.EventTypeHelperAssigned:
		if e.TargetID == observerID {
			return "POSITIVE"
		}
		return "NEUTRAL"
	default:
		return "NEUTRAL"
	}
}
