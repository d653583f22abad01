package network

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/gqrshy/tacticalrevive/internal/replication"
)

// StatusEntry is one downed entity as observers currently see it.
type StatusEntry struct {
	EntityID       string  `json:"entity_id"`
	TimeLeft       int     `json:"time_left"`
	ReviveProgress float32 `json:"revive_progress"`
}

// StatusHandler serves the mirrored downed set.
type StatusHandler struct {
	mirror *replication.Mirror
}

// NewStatusHandler creates a handler over mirror.
func NewStatusHandler(mirror *replication.Mirror) *StatusHandler {
	return &StatusHandler{mirror: mirror}
}

// ServeHTTP handles GET /api/downed and GET /api/downed?entity_id=X.
func (sh *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if raw := r.URL.Query().Get("entity_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, "Invalid entity_id", http.StatusBadRequest)
			return
		}
		s, ok := sh.mirror.Get(id)
		if !ok {
			writeError(w, "Entity is not downed", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entry(s))
		return
	}

	all := sh.mirror.All()
	out := make([]StatusEntry, 0, len(all))
	for _, s := range all {
		out = append(out, entry(s))
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"generated_at": time.Now().Format(time.RFC3339),
		"downed":       out,
	})
}

func entry(s replication.Snapshot) StatusEntry {
	return StatusEntry{
		EntityID:       s.Target.String(),
		TimeLeft:       s.TimeLeft,
		ReviveProgress: s.ReviveProgress,
	}
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
