// Package network - history.go
// Downed-state history endpoints over the lifecycle event log.
package network

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/gqrshy/tacticalrevive/internal/events"
	"github.com/gqrshy/tacticalrevive/internal/infra/storage"
	"github.com/gqrshy/tacticalrevive/internal/platform/logger"
)

// RecapSource rebuilds per-entity summaries from durable storage.
type RecapSource interface {
	Rebuild(ctx context.Context, entityID string) (*storage.Recap, error)
}

// HistoryHandler provides the history API.
type HistoryHandler struct {
	eventLog *events.EventLog
	recaps   RecapSource
	logger   *logger.Logger
}

// NewHistoryHandler creates a new history handler. recaps may be nil.
func NewHistoryHandler(el *events.EventLog, recaps RecapSource, log *logger.Logger) *HistoryHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &HistoryHandler{
		eventLog: el,
		recaps:   recaps,
		logger:   log,
	}
}

// HistoryEvent is an event prepared for display.
type HistoryEvent struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Tick      int64  `json:"tick"`
	Type      string `json:"type"`
	Actor     string `json:"actor"`
	Target    string `json:"target"`
	Summary   string `json:"summary"`
	Impact    string `json:"impact"`
	Details   any    `json:"details,omitempty"`
}

// HistoryResponse is the API response for an entity history.
type HistoryResponse struct {
	EntityID    string         `json:"entity_id"`
	TotalEvents int            `json:"total_events"`
	FilteredBy  string         `json:"filtered_by,omitempty"`
	GeneratedAt string         `json:"generated_at"`
	Events      []HistoryEvent `json:"events"`
}

// HandleHistory returns every event an entity took part in.
// GET /api/downed/history?entity_id=X&type=DOWNED&since_tick=N
func (hh *HistoryHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		hh.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entityID := r.URL.Query().Get("entity_id")
	if entityID == "" {
		hh.jsonError(w, "Missing entity_id", http.StatusBadRequest)
		return
	}

	eventType := r.URL.Query().Get("type")
	var sinceTick int64
	if s := r.URL.Query().Get("since_tick"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			hh.jsonError(w, "Invalid since_tick", http.StatusBadRequest)
			return
		}
		sinceTick = n
	}

	filterDesc := ""
	if eventType != "" {
		filterDesc = "type " + eventType
	}

	out := []HistoryEvent{}
	for _, e := range hh.eventLog.Replay() {
		if e.ActorID != entityID && e.TargetID != entityID {
			continue
		}
		if eventType != "" && string(e.Type) != eventType {
			continue
		}
		if e.Tick < sinceTick {
			continue
		}
		out = append(out, convert(e, entityID))
	}

	hh.logger.Debug("History served", zap.String("entity", entityID), zap.Int("events", len(out)))

	hh.writeJSON(w, HistoryResponse{
		EntityID:    entityID,
		TotalEvents: len(out),
		FilteredBy:  filterDesc,
		GeneratedAt: time.Now().Format(time.RFC3339),
		Events:      out,
	})
}

// HandleEventDetail returns one event with its payload.
// GET /api/downed/event?event_id=X
func (hh *HistoryHandler) HandleEventDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		hh.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	eventID := r.URL.Query().Get("event_id")
	if eventID == "" {
		hh.jsonError(w, "Missing event_id", http.StatusBadRequest)
		return
	}

	for _, e := range hh.eventLog.Replay() {
		if e.ID == eventID {
			detail := convert(e, e.TargetID)
			detail.Details = e.Payload
			hh.writeJSON(w, detail)
			return
		}
	}

	hh.jsonError(w, "Event not found", http.StatusNotFound)
}

// HandleStats returns event counts by type.
// GET /api/downed/stats
func (hh *HistoryHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		hh.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	all := hh.eventLog.Replay()
	stats := map[string]int{"total_events": len(all)}
	for _, e := range all {
		stats[string(e.Type)]++
	}

	hh.writeJSON(w, map[string]any{
		"generated_at": time.Now().Format(time.RFC3339),
		"stats":        stats,
	})
}

// HandleRecap returns the durable recap of an entity.
// GET /api/downed/recap?entity_id=X
func (hh *HistoryHandler) HandleRecap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		hh.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if hh.recaps == nil {
		hh.jsonError(w, "Recaps unavailable", http.StatusServiceUnavailable)
		return
	}

	entityID := r.URL.Query().Get("entity_id")
	if entityID == "" {
		hh.jsonError(w, "Missing entity_id", http.StatusBadRequest)
		return
	}

	recap, err := hh.recaps.Rebuild(r.Context(), entityID)
	if err != nil {
		hh.logger.Error("Failed to rebuild recap", zap.String("entity", entityID), zap.Error(err))
		hh.jsonError(w, "Failed to rebuild recap", http.StatusInternalServerError)
		return
	}
	hh.writeJSON(w, recap)
}

// RegisterRoutes sets up the history API routes.
func (hh *HistoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/downed/history", hh.HandleHistory)
	mux.HandleFunc("/api/downed/event", hh.HandleEventDetail)
	mux.HandleFunc("/api/downed/stats", hh.HandleStats)
	mux.HandleFunc("/api/downed/recap", hh.HandleRecap)
}

// convert prepares e for display from the point of view of observer.
func convert(e events.Event, observer string) HistoryEvent {
	return HistoryEvent{
		ID:        e.ID,
		Timestamp: e.Timestamp.Format("15:04:05"),
		Tick:      e.Tick,
		Type:      string(e.Type),
		Actor:     e.ActorID,
		Target:    e.TargetID,
		Summary:   summarize(e, observer),
		Impact:    determineImpact(e, observer),
	}
}

func summarize(e events.Event, observer string) string {
	self := e.TargetID == observer
	switch e.Type {
	case events.EventTypeDowned:
		if p, ok := e.Payload.(events.DownedPayload); ok && p.Cause != "" {
			return "Downed by " + p.Cause + "."
		}
		return "Downed."
	case events.EventTypeRevived:
		if self {
			return "Revived by allies."
		}
		return "Helped revive " + e.TargetID + "."
	case events.EventTypeTerminated:
		if p, ok := e.Payload.(events.ExitPayload); ok && p.Cause != "" {
			return "Died to " + p.Cause + "."
		}
		return "Bled out."
	case events.EventTypeGiveUp:
		return "Gave up."
	case events.EventTypeHelperAssigned:
		if self {
			return e.ActorID + " started helping."
		}
		return "Started helping " + e.TargetID + "."
	case events.EventTypeHelperReleased:
		reason := ""
		if p, ok := e.Payload.(events.HelperPayload); ok && p.Reason != "" {
			reason = " (" + p.Reason + ")"
		}
		if self {
			return e.ActorID + " stopped helping" + reason + "."
		}
		return "Stopped helping " + e.TargetID + reason + "."
	case events.EventTypeRestored:
		return "Downed state restored after load."
	case events.EventTypeRespawned:
		return "Respawned."
	default:
		return "Unknown event " + string(e.Type) + "."
	}
}

func determineImpact(e events.Event, observer string) string {
	switch e.Type {
	case events.EventTypeDowned, events.EventTypeTerminated, events.EventTypeGiveUp:
		return "NEGATIVE"
	case events.EventTypeRevived:
		return "POSITIVE"
	case events.EventTypeHelperAssigned:
		if e.TargetID == observer {
			return "POSITIVE"
		}
		return "NEUTRAL"
	default:
		return "NEUTRAL"
	}
}

func (hh *HistoryHandler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hh.logger.Warn("Failed to write response", zap.Error(err))
	}
}

// jsonError sends an error response.
func (hh *HistoryHandler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
