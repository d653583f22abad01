package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gqrshy/tacticalrevive/internal/domain/downed"
	"github.com/gqrshy/tacticalrevive/internal/events"
	"github.com/gqrshy/tacticalrevive/internal/persistence"
	"github.com/gqrshy/tacticalrevive/internal/platform/metrics"
)

func TestRequestHelpThroughQueue(t *testing.T) {
	h := newHarness(testRevive())
	a := h.host.spawn(0)
	helper := h.host.spawn(1)
	h.down(a)

	for _, cmd := range []Command{
		RequestHelp{Helper: a, Target: a},
		RequestHelp{Helper: helper, Target: helper},
		RequestHelp{Helper: helper, Target: uuid.New()},
		RequestHelp{Helper: helper, Target: a},
	} {
		if err := h.e.Submit(cmd); err != nil {
			t.Fatal(err)
		}
	}
	h.steps(1)

	v := h.e.View(a)
	if len(v.Helpers) != 1 || v.Helpers[0] != helper {
		t.Fatalf("helpers = %v", v.Helpers)
	}
	if v.ReviveProgress != 1 {
		t.Errorf("progress = %v, want 1 (help applies in the same tick)", v.ReviveProgress)
	}
	if got := h.e.EventLog().GetByType(events.EventTypeHelperAssigned); len(got) != 1 {
		t.Errorf("HELPER_ASSIGNED events = %d", len(got))
	}

	h.e.Submit(StopHelping{Helper: helper})
	h.steps(1)
	if len(h.e.View(a).Helpers) != 0 {
		t.Error("StopHelping did not release")
	}
}

func TestHelperSwitchesTarget(t *testing.T) {
	h := newHarness(testRevive())
	a := h.host.spawn(0)
	b := h.host.spawn(2)
	helper := h.host.spawn(1)
	h.down(a)
	h.down(b)

	h.e.Submit(RequestHelp{Helper: helper, Target: a})
	h.e.Submit(RequestHelp{Helper: helper, Target: b})
	h.steps(1)

	if len(h.e.View(a).Helpers) != 0 || len(h.e.View(b).Helpers) != 1 {
		t.Errorf("a=%v b=%v", h.e.View(a).Helpers, h.e.View(b).Helpers)
	}
	if h.e.View(a).ReviveProgress != 0 || h.e.View(b).ReviveProgress != 1 {
		t.Error("progress credited to the wrong target")
	}
}

func TestGiveUpHold(t *testing.T) {
	cfg := testRevive()
	cfg.GiveUpHoldTicks = 3
	h := newHarness(cfg)
	a := h.host.spawn(0)
	h.down(a)

	h.e.Submit(RequestGiveUp{Entity: a, Holding: true})
	h.steps(2)
	if !h.e.IsBleeding(a) || !h.e.Holding(a) {
		t.Fatal("gave up before the hold completed")
	}
	h.steps(1)
	if h.e.IsBleeding(a) {
		t.Fatal("hold completed but entity still downed")
	}
	if h.host.deaths[a] != 1 {
		t.Errorf("deaths = %d", h.host.deaths[a])
	}
	if len(h.e.EventLog().GetByType(events.EventTypeGiveUp)) != 1 {
		t.Error("GIVE_UP not logged")
	}
	if h.e.Holding(a) {
		t.Error("hold not cleared")
	}
}

func TestGiveUpReleasedEarly(t *testing.T) {
	cfg := testRevive()
	cfg.GiveUpHoldTicks = 3
	h := newHarness(cfg)
	a := h.host.spawn(0)
	h.down(a)

	h.e.Submit(RequestGiveUp{Entity: a, Holding: true})
	h.steps(2)
	h.e.Submit(RequestGiveUp{Entity: a, Holding: false})
	h.steps(5)

	if !h.e.IsBleeding(a) {
		t.Error("released hold still terminated")
	}
}

func TestGiveUpIgnoredWhenHealthy(t *testing.T) {
	h := newHarness(testRevive())
	a := h.host.spawn(0)
	h.e.Submit(RequestGiveUp{Entity: a, Holding: true})
	h.steps(1)
	if h.e.Holding(a) {
		t.Error("healthy entity should not hold")
	}
}

func TestDisconnect(t *testing.T) {
	h := newHarness(testRevive())
	a := h.host.spawn(0)
	helper := h.host.spawn(1)
	h.down(a)
	h.e.Manager().AssignHelper(a, helper)

	h.e.Submit(Disconnect{Entity: helper})
	h.steps(1)
	if len(h.e.View(a).Helpers) != 0 {
		t.Error("disconnected helper still credited")
	}

	h.e.Submit(Disconnect{Entity: a})
	h.steps(1)
	if h.e.IsBleeding(a) || h.host.deaths[a] != 1 {
		t.Error("disconnecting while downed should terminate")
	}
}

func TestDisconnectThenRunsAfterTermination(t *testing.T) {
	h := newHarness(testRevive())
	a := h.host.spawn(0)
	h.down(a)

	var bleedingThen *bool
	h.e.Submit(Disconnect{Entity: a, Then: func() {
		b := h.e.IsBleeding(a)
		bleedingThen = &b
	}})
	h.steps(1)

	if bleedingThen == nil {
		t.Fatal("Then did not run")
	}
	if *bleedingThen {
		t.Error("Then ran before the termination")
	}
}

func TestDisconnectKeepsDownedWhenConfigured(t *testing.T) {
	cfg := testRevive()
	cfg.TerminateOnDisconnect = false
	h := newHarness(cfg)
	a := h.host.spawn(0)
	helper := h.host.spawn(1)
	h.down(a)
	h.e.Manager().AssignHelper(a, helper)

	// The host forgets the entity; its helpers are pruned next tick.
	delete(h.host.pos, a)
	h.e.Submit(Disconnect{Entity: a})
	h.steps(1)

	if !h.e.IsBleeding(a) {
		t.Fatal("entity should stay downed")
	}
	if len(h.e.View(a).Helpers) != 0 {
		t.Error("helpers of an unresolvable target should be pruned")
	}
}

func TestRestrictions(t *testing.T) {
	h := newHarness(testRevive())
	a := h.host.spawn(0)

	if !h.e.Allowed(a, ActionAttack) || !h.e.Pushable(a) || !h.e.Targetable(a) {
		t.Fatal("healthy entity should be unrestricted")
	}
	h.down(a)

	for _, act := range []Action{ActionAttack, ActionDropItem, ActionInteractEntity, ActionGunFire, ActionGunReload, ActionGunMelee} {
		if h.e.Allowed(a, act) {
			t.Errorf("%v allowed while downed", act)
		}
	}
	if !h.e.Allowed(a, ActionMove) || !h.e.Allowed(a, ActionInteractPlayer) {
		t.Error("downed entity should still crawl and reach players")
	}
	if h.e.Pushable(a) {
		t.Error("downed entity is pushable")
	}
	if h.e.Targetable(a) {
		t.Error("mobs should ignore a freshly downed entity")
	}
	h.steps(10)
	if !h.e.Targetable(a) {
		t.Error("grace window over, entity should be targetable")
	}
}

func TestAttackCommand(t *testing.T) {
	h := newHarness(testRevive())
	a := h.host.spawn(0)
	b := h.host.spawn(1)

	h.e.Submit(Attack{Attacker: a, Target: b, Amount: 5})
	h.steps(1)
	if h.host.health[b] != 15 {
		t.Fatalf("health = %v, want 15", h.host.health[b])
	}

	h.e.Submit(Attack{Attacker: a, Target: b, Amount: 50})
	h.steps(1)
	if !h.e.IsBleeding(b) {
		t.Fatal("lethal attack should knock out")
	}

	// A downed attacker is refused.
	hurts := h.host.hurts
	h.e.Submit(Attack{Attacker: b, Target: a, Amount: 5})
	h.steps(1)
	if h.host.hurts != hurts {
		t.Error("downed entity attacked")
	}
}

func TestSubmitQueueFull(t *testing.T) {
	m := metrics.NewCollector()
	e := New(Options{Revive: testRevive(), Host: newFakeHost(), CommandBuffer: 1, Metrics: m})
	if err := e.Submit(Exec{}); err != nil {
		t.Fatal(err)
	}
	if err := e.Submit(Exec{}); err != ErrQueueFull {
		t.Errorf("err = %v, want ErrQueueFull", err)
	}
	if s := m.Snapshot(); s.Commands.Dropped != 1 || s.Commands.Queued != 1 {
		t.Errorf("command metrics = %+v", s.Commands)
	}
}

func TestDoRunsOnTickThread(t *testing.T) {
	h := newHarness(testRevive())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ticker := h.e.Start(ctx, time.Millisecond)
	defer ticker.Stop()

	var ran atomic.Bool
	wctx, wcancel := context.WithTimeout(ctx, 2*time.Second)
	defer wcancel()
	if err := h.e.Do(wctx, func() { ran.Store(true) }); err != nil {
		t.Fatal(err)
	}
	if !ran.Load() {
		t.Error("fn did not run")
	}
}

func TestAdoptRestoresWithoutHelpers(t *testing.T) {
	cfg := testRevive()
	h := newHarness(cfg)
	a := h.host.spawn(0)
	helper := h.host.spawn(1)
	h.down(a)
	h.e.Manager().AssignHelper(a, helper)
	h.steps(10)

	saved := h.e.Capture()
	if len(saved) != 1 || saved[0].ID != a {
		t.Fatalf("Capture = %+v", saved)
	}

	// A fresh process loads the record.
	h2 := newHarness(cfg)
	h2.host.health[a] = 20
	h2.host.pos[a] = downed.Position{}
	h2.e.Adopt(a, saved[0].Record)

	v := h2.e.View(a)
	if !v.Bleeding || v.TimeLeft != 1190 || v.DownedTime != 10 || v.ReviveProgress != 10 {
		t.Errorf("adopted view = %+v", v)
	}
	if len(v.Helpers) != 0 {
		t.Error("helpers must come back empty")
	}
	if h2.host.health[a] != cfg.BleedingHealth || !h2.host.effects[a] {
		t.Error("presentation not restored")
	}
	if len(h2.e.EventLog().GetByType(events.EventTypeRestored)) != 1 {
		t.Error("RESTORED not logged")
	}

	// Loading a healthy record over a downed one resets it fully.
	h2.e.Adopt(a, persistence.Record{})
	if h2.e.IsBleeding(a) {
		t.Error("baseline record left entity downed")
	}
}

type memDocs map[uuid.UUID][]byte

func (m memDocs) Save(_ context.Context, id uuid.UUID, data []byte) error {
	m[id] = data
	return nil
}

func (m memDocs) Load(_ context.Context, id uuid.UUID) ([]byte, bool, error) {
	b, ok := m[id]
	return b, ok, nil
}

func TestSaveAndLoadFrom(t *testing.T) {
	ctx := context.Background()
	docs := memDocs{}
	h := newHarness(testRevive())
	a := h.host.spawn(0)
	h.down(a)
	h.steps(3)

	if err := h.e.Save(ctx, docs, a); err != nil {
		t.Fatal(err)
	}

	h2 := newHarness(testRevive())
	if err := h2.e.LoadFrom(ctx, docs, a); err != nil {
		t.Fatal(err)
	}
	if v := h2.e.View(a); !v.Bleeding || v.DownedTime != 3 {
		t.Errorf("loaded %+v", v)
	}

	docs[a] = []byte{0xc1}
	if err := h2.e.LoadFrom(ctx, docs, a); err == nil {
		t.Error("corrupt document should report an error")
	}
	if h2.e.IsBleeding(a) {
		t.Error("corrupt document must fail closed")
	}
}

func TestInvariantsHoldUnderMixedLoad(t *testing.T) {
	h := newHarness(testRevive())
	var ids []downed.EntityID
	for i := 0; i < 8; i++ {
		ids = append(ids, h.host.spawn(float64(i)))
	}
	for i, id := range ids {
		if i%2 == 0 {
			h.down(id)
		}
	}
	for tick := 0; tick < 400; tick++ {
		helper := ids[(tick*3+1)%len(ids)]
		target := ids[(tick*5)%len(ids)]
		h.e.Submit(RequestHelp{Helper: helper, Target: target})
		if tick%37 == 0 {
			h.e.Submit(StopHelping{Helper: helper})
		}
		h.steps(1)
		if err := h.e.store.Check(100); err != nil {
			t.Fatalf("tick %d: %v", tick, err)
		}
		if h.e.guard.Len() != 0 {
			t.Fatalf("tick %d: guard leaked", tick)
		}
	}
}
