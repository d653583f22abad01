package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gqrshy/tacticalrevive/internal/platform/logger"
)

// DefaultTickInterval is the authoritative tick period (20 ticks per second).
const DefaultTickInterval = 50 * time.Millisecond

// Ticker manages the authoritative heartbeat. It only knows time: each
// period it runs step once, never overlapping.
type Ticker struct {
	interval time.Duration
	step     func()
	logger   *logger.Logger
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewTicker creates a ticker calling step every interval.
func NewTicker(interval time.Duration, step func(), log *logger.Logger) *Ticker {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Ticker{
		interval: interval,
		step:     step,
		logger:   log,
		stopChan: make(chan struct{}),
	}
}

// Start runs the loop until ctx is done or Stop is called. Call in a goroutine.
func (t *Ticker) Start(ctx context.Context) {
	t.logger.Info("Engine ticker started", zap.Duration("interval", t.interval))

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Engine ticker stopped by context")
			return
		case <-t.stopChan:
			t.logger.Info("Engine ticker stopped manually")
			return
		case <-ticker.C:
			t.step()
		}
	}
}

// Stop gracefully stops the ticker. Safe to call more than once.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() { close(t.stopChan) })
}

// Start spawns the engine's ticker and returns it so the caller can stop it.
func (e *Engine) Start(ctx context.Context, interval time.Duration) *Ticker {
	t := NewTicker(interval, e.Step, e.logger)
	go t.Start(ctx)
	return t
}
