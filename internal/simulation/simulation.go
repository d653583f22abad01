// Package simulation - shadow mode for the downed-state lifecycle.
// Replays the reference scenarios against a real world and engine, in
// process, and reports which ones hold.
package simulation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gqrshy/tacticalrevive/internal/config"
	"github.com/gqrshy/tacticalrevive/internal/domain/damage"
	"github.com/gqrshy/tacticalrevive/internal/domain/downed"
	"github.com/gqrshy/tacticalrevive/internal/engine"
	"github.com/gqrshy/tacticalrevive/internal/events"
	"github.com/gqrshy/tacticalrevive/internal/platform/logger"
	"github.com/gqrshy/tacticalrevive/internal/replication"
	"github.com/gqrshy/tacticalrevive/internal/world"
)

// Result captures the outcome of one scenario.
type Result struct {
	Scenario    string        `json:"scenario"`
	Description string        `json:"description"`
	Passed      bool          `json:"passed"`
	Reason      string        `json:"reason,omitempty"`
	Ticks       int64         `json:"ticks"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Scenario is one reproducible check. Run returns nil when it holds.
type Scenario struct {
	Name        string
	Description string
	Configure   func(cfg *config.Revive)
	Run         func(a *Arena) error
}

// Arena is a fresh world and engine for one scenario. Everything runs on
// the caller's goroutine, which acts as the tick thread.
type Arena struct {
	Config config.Revive
	World  *world.World
	Engine *engine.Engine

	// OnSnapshot, when set, sees every published snapshot synchronously.
	OnSnapshot func(s replication.Snapshot)
	snapshots  []replication.Snapshot
}

// NewArena builds an arena with invariant checks on.
func NewArena(cfg config.Revive, log *logger.Logger) *Arena {
	a := &Arena{Config: cfg}
	a.World = world.New(world.Options{Glow: cfg.Glow, Logger: log})
	a.Engine = engine.New(engine.Options{
		Revive: cfg,
		Host:   a.World,
		Render: a.World,
		Sinks: []replication.Sink{replication.SinkFunc(func(s replication.Snapshot) {
			a.snapshots = append(a.snapshots, s)
			if a.OnSnapshot != nil {
				a.OnSnapshot(s)
			}
		})},
		Logger:          log,
		InvariantChecks: true,
	})
	a.World.SetPipeline(a.Engine)
	return a
}

// Spawn places a new entity at x on the X axis.
func (a *Arena) Spawn(x float64) (downed.EntityID, error) {
	id := uuid.New()
	return id, a.World.Spawn(id, downed.Position{X: x})
}

// KnockOut deals a lethal mob hit to id and checks it was downed.
func (a *Arena) KnockOut(id downed.EntityID) error {
	src := damage.Source{Type: damage.TypeMobAttack, AttackerKind: damage.AttackerMob}
	if v := a.World.Damage(id, src, 1000); v != damage.BeginDowned {
		return fmt.Errorf("lethal hit gave %v, want %v", v, damage.BeginDowned)
	}
	return nil
}

// Step advances the engine and the world n times.
func (a *Arena) Step(n int) {
	for i := 0; i < n; i++ {
		a.Engine.Step()
		a.World.Step()
	}
}

// Snapshots returns the snapshots published for id so far.
func (a *Arena) Snapshots(id downed.EntityID) []replication.Snapshot {
	var out []replication.Snapshot
	for _, s := range a.snapshots {
		if s.Target == id {
			out = append(out, s)
		}
	}
	return out
}

// Count returns how many events of type t targeted id.
func (a *Arena) Count(t events.EventType, id downed.EntityID) int {
	n := 0
	for _, e := range a.Engine.EventLog().GetByType(t) {
		if e.TargetID == id.String() {
			n++
		}
	}
	return n
}

// Runner executes scenarios in fresh arenas.
type Runner struct {
	base   config.Revive
	logger *logger.Logger
}

// NewRunner creates a runner over the given base configuration.
func NewRunner(base config.Revive, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.NewNop()
	}
	return &Runner{base: base, logger: log}
}

// Run executes every scenario in order. A cancelled ctx stops before the
// next scenario.
func (r *Runner) Run(ctx context.Context, scenarios []Scenario) []Result {
	results := make([]Result, 0, len(scenarios))
	for _, sc := range scenarios {
		if ctx.Err() != nil {
			break
		}
		res := r.runOne(sc)
		if res.Passed {
			r.logger.Info("Scenario passed", zap.String("scenario", sc.Name), zap.Int64("ticks", res.Ticks))
		} else {
			r.logger.Error("Scenario failed", zap.String("scenario", sc.Name), zap.String("reason", res.Reason))
		}
		results = append(results, res)
	}
	return results
}

func (r *Runner) runOne(sc Scenario) (res Result) {
	cfg := r.base
	cfg.BypassDamageTypes = append([]string(nil), r.base.BypassDamageTypes...)
	if sc.Configure != nil {
		sc.Configure(&cfg)
	}
	arena := NewArena(cfg, r.logger)

	res = Result{Scenario: sc.Name, Description: sc.Description}
	start := time.Now()
	defer func() {
		res.Elapsed = time.Since(start)
		res.Ticks = arena.Engine.TickNumber()
		if p := recover(); p != nil {
			res.Passed = false
			res.Reason = fmt.Sprintf("panic: %v", p)
		}
	}()

	if err := sc.Run(arena); err != nil {
		res.Reason = err.Error()
		return res
	}
	res.Passed = true
	return res
}

// Summary counts passed and failed results.
func Summary(results []Result) (passed, failed int) {
	for _, r := range results {
		if r.Passed {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}
