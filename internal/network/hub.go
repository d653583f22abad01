package network

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gqrshy/tacticalrevive/internal/domain/downed"
	"github.com/gqrshy/tacticalrevive/internal/engine"
	"github.com/gqrshy/tacticalrevive/internal/platform/logger"
	"github.com/gqrshy/tacticalrevive/internal/platform/metrics"
	"github.com/gqrshy/tacticalrevive/internal/platform/optimization"
	"github.com/gqrshy/tacticalrevive/internal/protocol"
	"github.com/gqrshy/tacticalrevive/internal/replication"
)

// frame is one outbound websocket message.
type frame struct {
	kind int // websocket.TextMessage or websocket.BinaryMessage
	data []byte
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan frame
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.Mutex

	// Snapshots that did not fit in broadcast, latest per target. While it
	// is non-empty every snapshot goes here so per-target order holds.
	pendingMu sync.Mutex
	pending   map[downed.EntityID]replication.Snapshot
	wake      chan struct{}

	tuning  *optimization.Config
	catchup func() []replication.Snapshot
	logger  *logger.Logger
	metrics *metrics.Collector
}

var (
	_ replication.Sink = (*Hub)(nil)
	_ engine.Notifier  = (*Hub)(nil)
)

// NewHub initializes a new WebSocket Hub. tuning may be nil.
func NewHub(tuning *optimization.Config, log *logger.Logger, m *metrics.Collector) *Hub {
	if tuning == nil {
		tuning = optimization.DefaultConfig()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Hub{
		broadcast:  make(chan frame, tuning.BroadcastChannelBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		wake:       make(chan struct{}, 1),
		pending:    make(map[downed.EntityID]replication.Snapshot),
		clients:    make(map[*Client]bool),
		tuning:     tuning,
		logger:     log,
		metrics:    m,
	}
}

// SetCatchup installs the source of the snapshots a new client receives on
// connect, usually a replication.Mirror's All. Call before Run.
func (h *Hub) SetCatchup(fn func() []replication.Snapshot) {
	h.catchup = fn
}

// Run starts the Hub's main loop to handle client connections and broadcasts.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket hub shutting down")
			return
		case client := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= h.tuning.MaxClients {
				h.mu.Unlock()
				close(client.send)
				h.logger.Warn("Client limit reached, refusing connection", zap.Int("max", h.tuning.MaxClients))
				continue
			}
			h.clients[client] = true
			h.mu.Unlock()
			h.metrics.RecordWSConnection(1)
			h.welcome(client)
			h.logger.Info("New WebSocket client connected", zap.String("entity", client.entity.String()))
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.metrics.RecordWSConnection(-1)
				h.logger.Info("WebSocket client disconnected", zap.String("entity", client.entity.String()))
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.deliver(message)
		case <-h.wake:
			h.flush()
		}
	}
}

// deliver sends message to every client, dropping the ones that cannot keep up.
func (h *Hub) deliver(message frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- message:
			h.metrics.RecordWSMessage(false)
		default:
			close(client.send)
			delete(h.clients, client)
			h.metrics.RecordWSConnection(-1)
			h.metrics.RecordWSError()
			h.logger.Warn("Slow client dropped", zap.String("entity", client.entity.String()))
		}
	}
}

// flush delivers whatever is still queued, then the overflowed snapshots.
// Publish cannot reach the queue while pending is non-empty, so the drain
// terminates and everything queued is older than the pending snapshots.
func (h *Hub) flush() {
drain:
	for {
		select {
		case message := <-h.broadcast:
			h.deliver(message)
		default:
			break drain
		}
	}

	h.pendingMu.Lock()
	batch := h.pending
	h.pending = make(map[downed.EntityID]replication.Snapshot)
	h.pendingMu.Unlock()

	ids := make([]downed.EntityID, 0, len(batch))
	for id := range batch {
		ids = append(ids, id)
	}
	downed.SortIDs(ids)
	for _, id := range ids {
		h.deliver(frame{kind: websocket.BinaryMessage, data: protocol.EncodeUpdate(batch[id].Update())})
	}
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// welcome tells a fresh client who it is and replays the downed entities it
// cannot have seen yet.
func (h *Hub) welcome(c *Client) {
	if b, err := protocol.EncodeNotice(protocol.NoticeJoined, c.entity); err == nil {
		c.offer(frame{kind: websocket.TextMessage, data: b})
	}
	if h.catchup == nil {
		return
	}
	for _, s := range h.catchup() {
		c.offer(frame{kind: websocket.BinaryMessage, data: protocol.EncodeUpdate(s.Update())})
	}
}

// Publish implements replication.Sink. It runs on the tick thread and never
// blocks. When the broadcast queue is full the snapshot is held back and
// replaces any older held snapshot of the same target; Run delivers it once
// the queue has drained.
func (h *Hub) Publish(s replication.Snapshot) {
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()
	if len(h.pending) == 0 {
		select {
		case h.broadcast <- frame{kind: websocket.BinaryMessage, data: protocol.EncodeUpdate(s.Update())}:
			return
		default:
		}
	}
	if _, ok := h.pending[s.Target]; ok {
		h.metrics.RecordSnapshot(true)
	}
	h.pending[s.Target] = s
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of snapshots waiting for the broadcast queue.
func (h *Hub) Pending() int {
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()
	return len(h.pending)
}

// Notify implements engine.Notifier.
func (h *Hub) Notify(kind string, id downed.EntityID) {
	b, err := protocol.EncodeNotice(kind, id)
	if err != nil {
		h.logger.Error("Failed to encode notice", zap.String("kind", kind), zap.Error(err))
		return
	}
	h.enqueue(frame{kind: websocket.TextMessage, data: b})
}

func (h *Hub) enqueue(f frame) {
	select {
	case h.broadcast <- f:
	default:
		h.metrics.RecordSnapshot(true)
		h.logger.Debug("Broadcast queue full, frame dropped")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
