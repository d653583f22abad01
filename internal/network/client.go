package network

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gqrshy/tacticalrevive/internal/domain/downed"
	"github.com/gqrshy/tacticalrevive/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// Client is one observer connection bound to the entity it controls.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan frame
	entity downed.EntityID
	router *Router

	windowStart time.Time
	windowCount int
}

// NewClient creates a new WebSocket client for entity.
func NewClient(hub *Hub, conn *websocket.Conn, entity downed.EntityID, router *Router) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan frame, hub.tuning.ClientSendBuffer),
		entity: entity,
		router: router,
	}
}

// Entity returns the entity this client acts as.
func (c *Client) Entity() downed.EntityID { return c.entity }

// Register adds the client to the hub. It reports false once the hub has
// stopped.
func (c *Client) Register() bool {
	return c.hub.add(c)
}

// offer queues f without blocking. Only the hub loop calls it.
func (c *Client) offer(f frame) {
	select {
	case c.send <- f:
	default:
	}
}

// ReadPump pumps commands from the websocket connection to the router.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.remove(c)
		if c.router != nil {
			if err := c.router.Leave(c.entity); err != nil {
				c.hub.logger.Warn("Failed to queue disconnect", zap.String("entity", c.entity.String()), zap.Error(err))
			}
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.metrics.RecordWSError()
				c.hub.logger.Warn("WebSocket read failed", zap.String("entity", c.entity.String()), zap.Error(err))
			}
			break
		}
		c.hub.metrics.RecordWSMessage(true)

		if !c.allow(time.Now()) {
			c.hub.logger.Warn("Rate limit exceeded", zap.String("entity", c.entity.String()))
			continue
		}

		cmd, err := protocol.DecodeCommand(message)
		if err != nil {
			c.hub.logger.Warn("Failed to parse command", zap.String("entity", c.entity.String()), zap.Error(err))
			continue
		}
		// A connection only ever acts as its own entity.
		cmd.EntityID = c.entity

		if c.router == nil {
			continue
		}
		if err := c.router.Route(cmd); err != nil {
			c.hub.metrics.RecordWSError()
			c.hub.logger.Warn("Command rejected",
				zap.String("entity", c.entity.String()),
				zap.String("type", cmd.Type),
				zap.Error(err),
			)
		}
	}
}

// allow enforces MaxMessagesPerSecond over one-second windows.
func (c *Client) allow(now time.Time) bool {
	limit := c.hub.tuning.MaxMessagesPerSecond
	if limit <= 0 {
		return true
	}
	if now.Sub(c.windowStart) >= time.Second {
		c.windowStart = now
		c.windowCount = 0
	}
	c.windowCount++
	return c.windowCount <= limit
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// Binary packets have a fixed layout, so frames are never batched.
			if err := c.conn.WriteMessage(message.kind, message.data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
