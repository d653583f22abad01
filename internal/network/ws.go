package network

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // observers connect from anywhere
	},
}

// ServeWs upgrades r and binds the connection to the entity named by the
// entity_id query parameter, or to a fresh one.
func ServeWs(hub *Hub, router *Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entity := uuid.New()
		if raw := r.URL.Query().Get("entity_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				http.Error(w, "invalid entity_id", http.StatusBadRequest)
				return
			}
			entity = id
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.metrics.RecordWSError()
			hub.logger.Error("Failed to upgrade websocket connection", zap.Error(err))
			return
		}

		client := NewClient(hub, conn, entity, router)
		if !client.Register() {
			conn.Close()
			return
		}
		if router != nil {
			if err := router.Join(entity); err != nil {
				hub.logger.Warn("Failed to queue join", zap.String("entity", entity.String()), zap.Error(err))
			}
		}

		// Allow collection of memory referenced by the caller by doing all work in
		// new goroutines.
		go client.WritePump()
		go client.ReadPump()
	}
}
