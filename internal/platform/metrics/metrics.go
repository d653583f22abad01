// Package metrics provides observability for the revive server.
// Every method is safe on a nil *Collector so components can run without one.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Collector gathers runtime counters.
type Collector struct {
	// Tick
	tickCount      atomic.Int64
	tickLatencySum atomic.Int64 // nanoseconds
	tickLatencyMax atomic.Int64
	downedGauge    atomic.Int64

	// Lifecycle
	knockOuts    atomic.Int64
	revives      atomic.Int64
	terminations atomic.Int64
	giveUps      atomic.Int64

	// Replication
	snapshotsSent    atomic.Int64
	snapshotsDropped atomic.Int64

	// Commands
	commandsQueued  atomic.Int64
	commandsDropped atomic.Int64

	// Event persistence
	eventsWritten    atomic.Int64
	eventWriteLatSum atomic.Int64
	eventWriteLatMax atomic.Int64
	eventWriteErrors atomic.Int64

	// WebSocket
	wsConnections atomic.Int64
	wsMessagesIn  atomic.Int64
	wsMessagesOut atomic.Int64
	wsErrors      atomic.Int64

	mu           sync.RWMutex
	lastTickTime time.Time
	suppressed   map[string]int64
	startTime    time.Time
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		suppressed: make(map[string]int64),
		startTime:  time.Now(),
	}
}

func storeMax(v *atomic.Int64, n int64) {
	for {
		cur := v.Load()
		if n <= cur || v.CompareAndSwap(cur, n) {
			return
		}
	}
}

// RecordTick records one authoritative tick and the downed population after it.
func (c *Collector) RecordTick(latency time.Duration, downed int) {
	if c == nil {
		return
	}
	c.tickCount.Add(1)
	c.tickLatencySum.Add(int64(latency))
	storeMax(&c.tickLatencyMax, int64(latency))
	c.downedGauge.Store(int64(downed))

	c.mu.Lock()
	c.lastTickTime = time.Now()
	c.mu.Unlock()
}

func (c *Collector) RecordKnockOut() {
	if c != nil {
		c.knockOuts.Add(1)
	}
}

func (c *Collector) RecordRevive() {
	if c != nil {
		c.revives.Add(1)
	}
}

func (c *Collector) RecordTermination() {
	if c != nil {
		c.terminations.Add(1)
	}
}

func (c *Collector) RecordGiveUp() {
	if c != nil {
		c.giveUps.Add(1)
	}
}

// RecordSuppressed counts a suppressed hit by gate reason.
func (c *Collector) RecordSuppressed(reason string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.suppressed[reason]++
	c.mu.Unlock()
}

// RecordSnapshot counts an outbound replication snapshot.
func (c *Collector) RecordSnapshot(dropped bool) {
	if c == nil {
		return
	}
	if dropped {
		c.snapshotsDropped.Add(1)
		return
	}
	c.snapshotsSent.Add(1)
}

// RecordCommand counts a command submitted to the tick thread.
func (c *Collector) RecordCommand(dropped bool) {
	if c == nil {
		return
	}
	if dropped {
		c.commandsDropped.Add(1)
		return
	}
	c.commandsQueued.Add(1)
}

// RecordEventWrite records an event write to the database.
func (c *Collector) RecordEventWrite(latency time.Duration, err error) {
	if c == nil {
		return
	}
	c.eventsWritten.Add(1)
	c.eventWriteLatSum.Add(int64(latency))
	storeMax(&c.eventWriteLatMax, int64(latency))
	if err != nil {
		c.eventWriteErrors.Add(1)
	}
}

// RecordWSConnection records WebSocket connection changes.
func (c *Collector) RecordWSConnection(delta int64) {
	if c != nil {
		c.wsConnections.Add(delta)
	}
}

// RecordWSMessage records WebSocket messages.
func (c *Collector) RecordWSMessage(incoming bool) {
	if c == nil {
		return
	}
	if incoming {
		c.wsMessagesIn.Add(1)
	} else {
		c.wsMessagesOut.Add(1)
	}
}

// RecordWSError records a WebSocket error.
func (c *Collector) RecordWSError() {
	if c != nil {
		c.wsErrors.Add(1)
	}
}

// Snapshot is a point-in-time copy of the collector.
type Snapshot struct {
	UptimeSeconds float64 `json:"uptime_seconds"`

	Tick struct {
		Count        int64   `json:"count"`
		AvgLatencyMs float64 `json:"avg_latency_ms"`
		MaxLatencyMs float64 `json:"max_latency_ms"`
		LastTick     string  `json:"last_tick"`
		Downed       int64   `json:"downed"`
	} `json:"tick"`

	Lifecycle struct {
		KnockOuts    int64            `json:"knock_outs"`
		Revives      int64            `json:"revives"`
		Terminations int64            `json:"terminations"`
		GiveUps      int64            `json:"give_ups"`
		Suppressed   map[string]int64 `json:"suppressed"`
	} `json:"lifecycle"`

	Replication struct {
		Sent    int64 `json:"sent"`
		Dropped int64 `json:"dropped"`
	} `json:"replication"`

	Commands struct {
		Queued  int64 `json:"queued"`
		Dropped int64 `json:"dropped"`
	} `json:"commands"`

	Events struct {
		Written       int64   `json:"written"`
		AvgWriteLatMs float64 `json:"avg_write_lat_ms"`
		MaxWriteLatMs float64 `json:"max_write_lat_ms"`
		Errors        int64   `json:"errors"`
	} `json:"events"`

	WebSocket struct {
		ActiveConnections int64 `json:"active_connections"`
		MessagesIn        int64 `json:"messages_in"`
		MessagesOut       int64 `json:"messages_out"`
		Errors            int64 `json:"errors"`
	} `json:"websocket"`
}

// Snapshot returns the current metrics.
func (c *Collector) Snapshot() Snapshot {
	var s Snapshot
	if c == nil {
		return s
	}

	s.UptimeSeconds = time.Since(c.startTime).Seconds()

	s.Tick.Count = c.tickCount.Load()
	if s.Tick.Count > 0 {
		s.Tick.AvgLatencyMs = float64(c.tickLatencySum.Load()) / float64(s.Tick.Count) / 1e6
	}
	s.Tick.MaxLatencyMs = float64(c.tickLatencyMax.Load()) / 1e6
	s.Tick.Downed = c.downedGauge.Load()

	s.Lifecycle.KnockOuts = c.knockOuts.Load()
	s.Lifecycle.Revives = c.revives.Load()
	s.Lifecycle.Terminations = c.terminations.Load()
	s.Lifecycle.GiveUps = c.giveUps.Load()

	s.Replication.Sent = c.snapshotsSent.Load()
	s.Replication.Dropped = c.snapshotsDropped.Load()
	s.Commands.Queued = c.commandsQueued.Load()
	s.Commands.Dropped = c.commandsDropped.Load()

	s.Events.Written = c.eventsWritten.Load()
	if s.Events.Written > 0 {
		s.Events.AvgWriteLatMs = float64(c.eventWriteLatSum.Load()) / float64(s.Events.Written) / 1e6
	}
	s.Events.MaxWriteLatMs = float64(c.eventWriteLatMax.Load()) / 1e6
	s.Events.Errors = c.eventWriteErrors.Load()

	s.WebSocket.ActiveConnections = c.wsConnections.Load()
	s.WebSocket.MessagesIn = c.wsMessagesIn.Load()
	s.WebSocket.MessagesOut = c.wsMessagesOut.Load()
	s.WebSocket.Errors = c.wsErrors.Load()

	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.lastTickTime.IsZero() {
		s.Tick.LastTick = c.lastTickTime.Format(time.RFC3339)
	}
	s.Lifecycle.Suppressed = make(map[string]int64, len(c.suppressed))
	for k, v := range c.suppressed {
		s.Lifecycle.Suppressed[k] = v
	}
	return s
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		json.NewEncoder(w).Encode(c.Snapshot())
	}
}

// PrometheusHandler returns metrics in Prometheus text format.
func (c *Collector) PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		s := c.Snapshot()

		metric := func(name, kind, help string, value any) {
			fmt.Fprintf(w, "# HELP %s %s\n", name, help)
			fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
			fmt.Fprintf(w, "%s %v\n\n", name, value)
		}

		metric("revive_tick_count", "counter", "Total authoritative ticks", s.Tick.Count)
		metric("revive_tick_latency_max_ms", "gauge", "Maximum tick latency", fmt.Sprintf("%.2f", s.Tick.MaxLatencyMs))
		metric("revive_downed_entities", "gauge", "Entities currently downed", s.Tick.Downed)

		metric("revive_knock_outs_total", "counter", "Entities knocked down", s.Lifecycle.KnockOuts)
		metric("revive_revives_total", "counter", "Entities revived", s.Lifecycle.Revives)
		metric("revive_terminations_total", "counter", "Entities that bled out or gave up", s.Lifecycle.Terminations)
		metric("revive_give_ups_total", "counter", "Completed give-up holds", s.Lifecycle.GiveUps)

		fmt.Fprintf(w, "# HELP revive_suppressed_hits_total Hits suppressed by the damage gate\n")
		fmt.Fprintf(w, "# TYPE revive_suppressed_hits_total counter\n")
		reasons := make([]string, 0, len(s.Lifecycle.Suppressed))
		for r := range s.Lifecycle.Suppressed {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		for _, r := range reasons {
			fmt.Fprintf(w, "revive_suppressed_hits_total{reason=%q} %d\n", r, s.Lifecycle.Suppressed[r])
		}
		fmt.Fprintln(w)

		fmt.Fprintf(w, "# HELP revive_snapshots_total Replication snapshots\n")
		fmt.Fprintf(w, "# TYPE revive_snapshots_total counter\n")
		fmt.Fprintf(w, "revive_snapshots_total{result=\"sent\"} %d\n", s.Replication.Sent)
		fmt.Fprintf(w, "revive_snapshots_total{result=\"dropped\"} %d\n\n", s.Replication.Dropped)

		metric("revive_events_written", "counter", "Lifecycle events persisted", s.Events.Written)
		metric("revive_event_write_errors", "counter", "Lifecycle event write errors", s.Events.Errors)

		metric("revive_ws_connections", "gauge", "Active WebSocket connections", s.WebSocket.ActiveConnections)
		fmt.Fprintf(w, "# HELP revive_ws_messages_total Total WebSocket messages\n")
		fmt.Fprintf(w, "# TYPE revive_ws_messages_total counter\n")
		fmt.Fprintf(w, "revive_ws_messages_total{direction=\"in\"} %d\n", s.WebSocket.MessagesIn)
		fmt.Fprintf(w, "revive_ws_messages_total{direction=\"out\"} %d\n", s.WebSocket.MessagesOut)
	}
}
