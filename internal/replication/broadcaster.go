// Package replication turns downed-state mutations into outbound snapshots
// and applies them on the observer side.
package replication

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/gqrshy/tacticalrevive/internal/domain/downed"
	"github.com/gqrshy/tacticalrevive/internal/platform/logger"
	"github.com/gqrshy/tacticalrevive/internal/platform/metrics"
	"github.com/gqrshy/tacticalrevive/internal/protocol"
)

// Snapshot is the replicated view of one entity.
type Snapshot struct {
	Target         downed.EntityID `json:"target"`
	Bleeding       bool            `json:"bleeding"`
	TimeLeft       int             `json:"time_left"`
	ReviveProgress float32         `json:"revive_progress"`
}

// FromView builds a snapshot from a state view.
func FromView(v downed.View) Snapshot {
	return Snapshot{
		Target:         v.ID,
		Bleeding:       v.Bleeding,
		TimeLeft:       v.TimeLeft,
		ReviveProgress: v.ReviveProgress,
	}
}

// Update converts to the wire form.
func (s Snapshot) Update() protocol.Update {
	timeLeft := s.TimeLeft
	if timeLeft < 0 {
		timeLeft = 0
	}
	return protocol.Update{
		EntityID:       s.Target,
		Bleeding:       s.Bleeding,
		TimeLeft:       uint32(timeLeft),
		ReviveProgress: s.ReviveProgress,
	}
}

// FromUpdate converts from the wire form.
func FromUpdate(u protocol.Update) Snapshot {
	return Snapshot{
		Target:         u.EntityID,
		Bleeding:       u.Bleeding,
		TimeLeft:       int(u.TimeLeft),
		ReviveProgress: u.ReviveProgress,
	}
}

// Sink receives snapshots. Publish must not block the tick thread.
type Sink interface {
	Publish(s Snapshot)
}

// SinkFunc adapts a plain function.
type SinkFunc func(s Snapshot)

func (f SinkFunc) Publish(s Snapshot) { f(s) }

// Broadcaster fans snapshots out to its sinks.
type Broadcaster struct {
	sinks    []Sink
	interval int
	logger   *logger.Logger
	metrics  *metrics.Collector
}

// NewBroadcaster creates a broadcaster emitting heartbeats every interval
// ticks of downed time.
func NewBroadcaster(interval int, log *logger.Logger, m *metrics.Collector, sinks ...Sink) *Broadcaster {
	if interval <= 0 {
		interval = 1
	}
	return &Broadcaster{
		sinks:    sinks,
		interval: interval,
		logger:   log,
		metrics:  m,
	}
}

// Subscribe adds a sink. Not safe to call concurrently with publishing.
func (b *Broadcaster) Subscribe(s Sink) {
	b.sinks = append(b.sinks, s)
}

// Changed publishes the state after a mutation.
func (b *Broadcaster) Changed(v downed.View) Snapshot {
	s := FromView(v)
	b.publish(s)
	return s
}

// Heartbeat republishes a downed entity every interval ticks so late
// observers catch up. Reports whether it published.
func (b *Broadcaster) Heartbeat(v downed.View) bool {
	if !v.Bleeding || v.DownedTime%b.interval != 0 {
		return false
	}
	b.publish(FromView(v))
	return true
}

func (b *Broadcaster) publish(s Snapshot) {
	for _, sink := range b.sinks {
		b.deliver(sink, s)
	}
	b.metrics.RecordSnapshot(false)
}

func (b *Broadcaster) deliver(sink Sink, s Snapshot) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.Error("Snapshot sink panicked",
				zap.String("target", s.Target.String()),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()
	sink.Publish(s)
}
