package engine

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/gqrshy/tacticalrevive/internal/config"
	"github.com/gqrshy/tacticalrevive/internal/domain/damage"
	"github.com/gqrshy/tacticalrevive/internal/domain/downed"
	"github.com/gqrshy/tacticalrevive/internal/events"
	"github.com/gqrshy/tacticalrevive/internal/persistence"
	"github.com/gqrshy/tacticalrevive/internal/platform/logger"
	"github.com/gqrshy/tacticalrevive/internal/platform/metrics"
	"github.com/gqrshy/tacticalrevive/internal/replication"
)

var tracer = otel.Tracer("github.com/gqrshy/tacticalrevive/internal/engine")

// ErrQueueFull is returned by Submit when the command queue has no room.
var ErrQueueFull = errors.New("engine: command queue full")

// Options wires an Engine. Host is required and doubles as the Locator when
// it implements one. Without any Locator helpers cannot be placed and are
// pruned on the next tick; everything else has a default.
type Options struct {
	Revive   config.Revive
	Host     Host
	Render   RenderHook
	Notifier Notifier
	Locator  downed.Locator

	// Classifier overrides the double-fire classifier. When nil it is
	// resolved once from Revive.ForeignDamageCompat.
	Classifier damage.Classifier
	Sinks      []replication.Sink

	EventLog        *events.EventLog
	Metrics         *metrics.Collector
	Logger          *logger.Logger
	CommandBuffer   int
	InvariantChecks bool
}

// Engine is the authoritative driver. Step must only be called from one
// goroutine at a time (the Ticker, or a test); everything else reaches the
// tick thread through Submit.
type Engine struct {
	cfg      config.Revive
	host     Host
	logger   *logger.Logger
	metrics  *metrics.Collector
	eventLog *events.EventLog

	store       *downed.Store
	helpers     *downed.HelperTracker
	guard       *GuardSet
	broadcaster *replication.Broadcaster
	manager     *Manager
	gate        *Gate

	commands chan Command
	holds    map[downed.EntityID]int

	tickNumber      int64
	invariantChecks bool
}

// New builds the engine and all of its components.
func New(opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	el := opts.EventLog
	if el == nil {
		el = events.NewEventLog()
	}
	classifier := opts.Classifier
	if classifier == nil {
		if opts.Revive.ForeignDamageCompat {
			classifier = damage.NewGunClassifier()
		} else {
			classifier = damage.Nop{}
		}
	}
	buffer := opts.CommandBuffer
	if buffer <= 0 {
		buffer = 256
	}

	locator := opts.Locator
	if l, ok := opts.Host.(downed.Locator); ok && locator == nil {
		locator = l
	}
	if locator == nil {
		log.Warn("No locator configured, helpers will never be in range")
	}

	store := downed.NewStore()
	helpers := downed.NewHelperTracker(store, locator, opts.Revive.MaxHelperDistance)
	guard := NewGuardSet()
	bc := replication.NewBroadcaster(opts.Revive.SyncIntervalTicks, log, opts.Metrics, opts.Sinks...)

	e := &Engine{
		cfg:             opts.Revive,
		host:            opts.Host,
		logger:          log,
		metrics:         opts.Metrics,
		eventLog:        el,
		store:           store,
		helpers:         helpers,
		guard:           guard,
		broadcaster:     bc,
		commands:        make(chan Command, buffer),
		holds:           make(map[downed.EntityID]int),
		invariantChecks: opts.InvariantChecks,
	}
	e.manager = NewManager(opts.Revive, ManagerDeps{
		Store:   store,
		Helpers: helpers,
		Guard:   guard,
		Collaborators: Collaborators{
			Host:     opts.Host,
			Render:   opts.Render,
			Notifier: opts.Notifier,
		},
		Broadcaster: bc,
		EventLog:    el,
		Metrics:     opts.Metrics,
		Logger:      log,
	})
	e.gate = NewGate(opts.Revive, store, guard, opts.Host, classifier, log)
	return e
}

// Manager exposes the lifecycle manager. Tick thread only.
func (e *Engine) Manager() *Manager { return e.manager }

// Gate exposes the damage gate. Tick thread only.
func (e *Engine) Gate() *Gate { return e.gate }

// EventLog returns the lifecycle event log.
func (e *Engine) EventLog() *events.EventLog { return e.eventLog }

// Subscribe adds a snapshot sink. Call before the ticker starts.
func (e *Engine) Subscribe(s replication.Sink) { e.broadcaster.Subscribe(s) }

// TickNumber returns the number of completed steps. Tick thread only.
func (e *Engine) TickNumber() int64 { return e.tickNumber }

// Submit enqueues a command without blocking.
func (e *Engine) Submit(cmd Command) error {
	select {
	case e.commands <- cmd:
		e.metrics.RecordCommand(false)
		return nil
	default:
		e.metrics.RecordCommand(true)
		return ErrQueueFull
	}
}

// Do runs fn on the tick thread and waits for it to finish.
func (e *Engine) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := e.Submit(Exec{Fn: func() {
		defer close(done)
		fn()
	}}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Step runs one authoritative tick.
func (e *Engine) Step() {
	start := time.Now()
	e.tickNumber++
	e.manager.setTick(e.tickNumber)

	_, span := tracer.Start(context.Background(), "engine.step")
	defer span.End()

	e.drain()
	e.advanceHolds()

	ids := e.store.Downed()
	for _, id := range ids {
		e.manager.Tick(id)
	}

	if e.invariantChecks {
		if err := e.store.Check(e.cfg.RequiredProgress); err != nil {
			e.logger.Error("Invariant violated", zap.Int64("tick", e.tickNumber), zap.Error(err))
		}
	}

	span.SetAttributes(attribute.Int64("tick", e.tickNumber), attribute.Int("downed", len(ids)))
	e.metrics.RecordTick(time.Since(start), len(e.store.Downed()))
}

// drain applies only the commands queued when the step began, so a
// command that enqueues another cannot stall the tick.
func (e *Engine) drain() {
	for n := len(e.commands); n > 0; n-- {
		cmd := <-e.commands
		cmd.apply(e)
	}
}

func (e *Engine) advanceHolds() {
	if len(e.holds) == 0 {
		return
	}
	ids := make([]downed.EntityID, 0, len(e.holds))
	for id := range e.holds {
		ids = append(ids, id)
	}
	downed.SortIDs(ids)

	for _, id := range ids {
		if !e.store.IsBleeding(id) {
			delete(e.holds, id)
			continue
		}
		e.holds[id]++
		if e.holds[id] >= e.cfg.GiveUpHoldTicks {
			delete(e.holds, id)
			e.manager.GiveUp(id)
		}
	}
}

// Damage runs a hit through the gate and acts on a knock-down verdict.
// The caller applies or cancels the hit according to the verdict.
// Tick thread only.
func (e *Engine) Damage(hit damage.Hit) Decision {
	d := e.gate.Evaluate(hit)
	switch d.Verdict {
	case damage.BeginDowned:
		src := hit.Source
		e.manager.KnockOut(hit.Target, &src)
	case damage.Suppress:
		e.metrics.RecordSuppressed(d.Reason)
		e.logger.Debug("Hit suppressed",
			zap.String("target", hit.Target.String()),
			zap.String("source", hit.Source.Type),
			zap.String("reason", d.Reason))
	}
	return d
}

// IsBleeding reports whether id is downed. Tick thread only.
func (e *Engine) IsBleeding(id downed.EntityID) bool {
	return e.store.IsBleeding(id)
}

// View returns a copy of id's state. Tick thread only.
func (e *Engine) View(id downed.EntityID) downed.View {
	return e.store.Get(id).View(id)
}

// Holding reports whether id has an active give-up hold. Tick thread only.
func (e *Engine) Holding(id downed.EntityID) bool {
	_, ok := e.holds[id]
	return ok
}

// Terminating returns the number of entities inside a termination. It is
// zero whenever the tick thread is idle.
func (e *Engine) Terminating() int {
	return e.guard.Len()
}

// SavedRecord pairs an entity with its persisted state.
type SavedRecord struct {
	ID     downed.EntityID
	Record persistence.Record
}

// Capture returns the records of every downed entity, sorted by id.
// Tick thread only.
func (e *Engine) Capture() []SavedRecord {
	recs := e.manager.Records()
	out := make([]SavedRecord, 0, len(recs))
	for id, rec := range recs {
		out = append(out, SavedRecord{ID: id, Record: rec})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Adopt loads a persisted record for id. Tick thread only.
func (e *Engine) Adopt(id downed.EntityID, rec persistence.Record) {
	delete(e.holds, id)
	e.manager.Load(id, rec)
}

// Save writes id's state into its save document. Tick thread only; the
// store call blocks on I/O.
func (e *Engine) Save(ctx context.Context, store persistence.DocumentStore, id downed.EntityID) error {
	return persistence.Save(ctx, store, id, e.Record(id))
}

// Record returns the persisted form of id's state; the baseline when id is
// not tracked. Tick thread only.
func (e *Engine) Record(id downed.EntityID) persistence.Record {
	st, ok := e.store.Lookup(id)
	if !ok {
		return persistence.Record{}
	}
	return persistence.FromState(st)
}

// LoadFrom reads id's record from store and adopts it. A missing or corrupt
// record yields the healthy baseline; the error is returned for logging.
func (e *Engine) LoadFrom(ctx context.Context, store persistence.DocumentStore, id downed.EntityID) error {
	rec, err := persistence.Load(ctx, store, id)
	e.Adopt(id, rec)
	return err
}
