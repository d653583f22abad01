package engine

import (
	"github.com/google/uuid"

	"github.com/gqrshy/tacticalrevive/internal/config"
	"github.com/gqrshy/tacticalrevive/internal/domain/damage"
	"github.com/gqrshy/tacticalrevive/internal/domain/downed"
	"github.com/gqrshy/tacticalrevive/internal/replication"
)

// fakeHost is a minimal world: it routes Hurt back through the engine the
// way a real damage pipeline would.
type fakeHost struct {
	e *Engine

	health       map[downed.EntityID]float32
	pos          map[downed.EntityID]downed.Position
	effects      map[downed.EntityID]bool
	ineligible   map[downed.EntityID]bool
	participants int

	hurts  int
	kills  int
	deaths map[downed.EntityID]int

	// onHurt runs inside Hurt, before the hit is evaluated.
	onHurt func(id downed.EntityID)
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		health:       make(map[downed.EntityID]float32),
		pos:          make(map[downed.EntityID]downed.Position),
		effects:      make(map[downed.EntityID]bool),
		ineligible:   make(map[downed.EntityID]bool),
		deaths:       make(map[downed.EntityID]int),
		participants: 2,
	}
}

func (h *fakeHost) spawn(x float64) downed.EntityID {
	id := uuid.New()
	h.health[id] = 20
	h.pos[id] = downed.Position{X: x}
	return id
}

func (h *fakeHost) SetHealth(id downed.EntityID, health float32) { h.health[id] = health }
func (h *fakeHost) ApplyDownedEffects(id downed.EntityID)        { h.effects[id] = true }
func (h *fakeHost) ClearDownedEffects(id downed.EntityID)        { delete(h.effects, id) }
func (h *fakeHost) Eligible(id downed.EntityID) bool             { return !h.ineligible[id] }
func (h *fakeHost) Participants() int                            { return h.participants }

func (h *fakeHost) Hurt(id downed.EntityID, src damage.Source, amount float32) {
	h.hurts++
	if h.onHurt != nil {
		h.onHurt(id)
	}
	h.attack(id, src, amount)
}

// attack is the host damage pipeline: ask the engine, then apply.
func (h *fakeHost) attack(id downed.EntityID, src damage.Source, amount float32) damage.Verdict {
	d := h.e.Damage(damage.Hit{Target: id, Source: src, Amount: amount, Lethal: amount >= h.health[id]})
	if d.Verdict != damage.AllowLethal {
		return d.Verdict
	}
	h.health[id] -= amount
	if h.health[id] <= 0 {
		h.health[id] = 0
		h.deaths[id]++
	}
	return d.Verdict
}

func (h *fakeHost) Kill(id downed.EntityID) {
	h.kills++
	h.health[id] = 0
	h.deaths[id]++
}

func (h *fakeHost) Resolve(id downed.EntityID) (downed.Position, bool) {
	p, ok := h.pos[id]
	return p, ok
}

type recordedNotice struct {
	kind string
	id   downed.EntityID
}

type fakeNotifier struct{ notices []recordedNotice }

func (n *fakeNotifier) Notify(kind string, id downed.EntityID) {
	n.notices = append(n.notices, recordedNotice{kind, id})
}

type fakeRender struct{ views []downed.View }

func (r *fakeRender) Render(v downed.View) { r.views = append(r.views, v) }

// testRevive returns the settings the lifecycle properties are stated with.
func testRevive() config.Revive {
	cfg := config.DefaultRevive()
	cfg.BleedingTimeTicks = 1200
	cfg.RequiredProgress = 100
	cfg.ProgressPerHelper = 1
	cfg.MaxHelperDistance = 3.0
	cfg.HaltCountdownWhileHelped = false
	cfg.ResetProgressOnHelperLoss = true
	return cfg
}

type harness struct {
	e         *Engine
	host      *fakeHost
	notifier  *fakeNotifier
	render    *fakeRender
	snapshots []replication.Snapshot
}

func newHarness(cfg config.Revive) *harness {
	h := &harness{host: newFakeHost(), notifier: &fakeNotifier{}, render: &fakeRender{}}
	h.e = New(Options{
		Revive:          cfg,
		Host:            h.host,
		Render:          h.render,
		Notifier:        h.notifier,
		Sinks:           []replication.Sink{replication.SinkFunc(func(s replication.Snapshot) { h.snapshots = append(h.snapshots, s) })},
		InvariantChecks: true,
	})
	h.host.e = h.e
	return h
}

var mobHit = damage.Source{Type: damage.TypeMobAttack, Attacker: uuid.New(), AttackerKind: damage.AttackerMob}

// down knocks id out with a lethal mob hit.
func (h *harness) down(id downed.EntityID) {
	h.host.attack(id, mobHit, 100)
}

func lethal(id downed.EntityID) damage.Hit {
	return damage.Hit{Target: id, Source: mobHit, Amount: 1000, Lethal: true}
}

func (h *harness) steps(n int) {
	for i := 0; i < n; i++ {
		h.e.Step()
	}
}

func (h *harness) snapshotsFor(id downed.EntityID, bleeding bool) int {
	n := 0
	for _, s := range h.snapshots {
		if s.Target == id && s.Bleeding == bleeding {
			n++
		}
	}
	return n
}
