package world

import (
	"testing"

	"github.com/google/uuid"

	"github.com/gqrshy/tacticalrevive/internal/config"
	"github.com/gqrshy/tacticalrevive/internal/domain/damage"
	"github.com/gqrshy/tacticalrevive/internal/domain/downed"
	"github.com/gqrshy/tacticalrevive/internal/engine"
)

func newLinked(t *testing.T, cfg config.Revive) (*World, *engine.Engine) {
	t.Helper()
	w := New(Options{Glow: true})
	e := engine.New(engine.Options{Revive: cfg, Host: w, Render: w})
	w.SetPipeline(e)
	return w, e
}

func spawn(t *testing.T, w *World, x float64) downed.EntityID {
	t.Helper()
	id := uuid.New()
	if err := w.Spawn(id, downed.Position{X: x}); err != nil {
		t.Fatal(err)
	}
	return id
}

var zombie = damage.Source{Type: damage.TypeMobAttack, AttackerKind: damage.AttackerMob}

func TestSpawnAndDuplicate(t *testing.T) {
	w := New(Options{})
	id := spawn(t, w, 0)
	if err := w.Spawn(id, downed.Position{}); err != ErrDuplicate {
		t.Errorf("err = %v, want ErrDuplicate", err)
	}
	info, ok := w.Info(id)
	if !ok || info.Health != DefaultMaxHealth || !info.Online {
		t.Errorf("info = %+v", info)
	}
	w.Despawn(id)
	if w.Has(id) || w.Len() != 0 {
		t.Error("despawn left the entity behind")
	}
}

func TestDamageWithoutPipeline(t *testing.T) {
	w := New(Options{})
	id := spawn(t, w, 0)

	w.Damage(id, zombie, 5)
	if info, _ := w.Info(id); info.Health != 15 {
		t.Fatalf("health = %v", info.Health)
	}
	w.Damage(id, zombie, 50)
	if info, _ := w.Info(id); !info.Dead || info.Health != 0 {
		t.Fatalf("info = %+v", info)
	}
	if w.Damage(id, zombie, 1) != damage.Suppress {
		t.Error("dead entities take no damage")
	}
	if w.Deaths() != 1 {
		t.Errorf("deaths = %d", w.Deaths())
	}
}

func TestLethalHitDownsInsteadOfKilling(t *testing.T) {
	cfg := config.DefaultRevive()
	w, e := newLinked(t, cfg)
	a := spawn(t, w, 0)
	spawn(t, w, 1)

	if v := w.Damage(a, zombie, 100); v != damage.BeginDowned {
		t.Fatalf("verdict = %v", v)
	}
	info, _ := w.Info(a)
	if info.Dead || info.Health != cfg.BleedingHealth {
		t.Errorf("info = %+v", info)
	}
	if !info.Pose.Downed || !info.Pose.Glow || info.Effects.Slowness == 0 || info.Effects.Glowing == 0 {
		t.Errorf("presentation = %+v / %+v", info.Pose, info.Effects)
	}
	if !e.IsBleeding(a) {
		t.Error("engine did not record the knock-down")
	}
}

func TestSoloPlayerDiesOutright(t *testing.T) {
	w, e := newLinked(t, config.DefaultRevive())
	a := spawn(t, w, 0)

	w.Damage(a, zombie, 100)
	if info, _ := w.Info(a); !info.Dead {
		t.Error("a lone entity should die")
	}
	if e.IsBleeding(a) {
		t.Error("a lone entity should not be downed")
	}
}

func TestExemptAndOffline(t *testing.T) {
	w := New(Options{})
	a := spawn(t, w, 0)
	b := spawn(t, w, 1)
	if w.Participants() != 2 {
		t.Fatalf("participants = %d", w.Participants())
	}

	w.SetExempt(a, true)
	if w.Eligible(a) || w.Participants() != 1 {
		t.Error("exempt entity should be ineligible and not counted")
	}
	w.SetExempt(a, false)

	w.SetOnline(b, false)
	if _, ok := w.Resolve(b); ok {
		t.Error("offline entity resolved")
	}
	if w.Participants() != 1 {
		t.Errorf("participants = %d", w.Participants())
	}
	if err := w.SetOnline(uuid.New(), true); err != ErrUnknownEntity {
		t.Errorf("err = %v", err)
	}
}

func TestTerminationRoutesThroughPipeline(t *testing.T) {
	cfg := config.DefaultRevive()
	cfg.BleedingTimeTicks = 20
	w, e := newLinked(t, cfg)
	a := spawn(t, w, 0)
	spawn(t, w, 10)

	w.Damage(a, zombie, 100)
	for i := 0; i < 20; i++ {
		e.Step()
		w.Step()
	}

	info, _ := w.Info(a)
	if !info.Dead {
		t.Fatalf("bleed-out did not kill: %+v", info)
	}
	if info.Pose.Downed || info.Effects.Active() {
		t.Error("pose and effects should be cleared on death")
	}
	if e.IsBleeding(a) {
		t.Error("terminal hit was reinterpreted as a knock-down")
	}
	if w.Deaths() != 1 {
		t.Errorf("deaths = %d", w.Deaths())
	}
}

func TestReviveInWorld(t *testing.T) {
	cfg := config.DefaultRevive()
	cfg.RequiredProgress = 10
	w, e := newLinked(t, cfg)
	a := spawn(t, w, 0)
	helper := spawn(t, w, 2)

	w.Damage(a, zombie, 100)
	e.Submit(engine.RequestHelp{Helper: helper, Target: a})
	for i := 0; i < 10; i++ {
		e.Step()
	}

	info, _ := w.Info(a)
	if e.IsBleeding(a) || info.Dead || info.Health != cfg.HealthAfterRevive {
		t.Errorf("after revive: %+v", info)
	}
	if info.Pose.Downed {
		t.Error("pose not cleared")
	}
}

func TestEffectsDecay(t *testing.T) {
	w := New(Options{})
	a := spawn(t, w, 0)
	w.ApplyDownedEffects(a)
	for i := 0; i < effectTicks; i++ {
		w.Step()
	}
	if info, _ := w.Info(a); info.Effects.Active() {
		t.Errorf("effects = %+v", info.Effects)
	}
}

func TestSetHealthCapsAtMax(t *testing.T) {
	w := New(Options{})
	a := spawn(t, w, 0)
	w.SetHealth(a, 999)
	if info, _ := w.Info(a); info.Health != DefaultMaxHealth {
		t.Errorf("health = %v", info.Health)
	}
}

func TestRespawnAfterDeath(t *testing.T) {
	w := New(Options{})
	a := spawn(t, w, 0)
	w.Kill(a)
	if err := w.Move(a, downed.Position{X: 5}); err != nil {
		t.Fatal(err)
	}
	if info, _ := w.Info(a); info.Position.X != 0 {
		t.Error("dead entity moved")
	}
	if err := w.Respawn(a, downed.Position{X: 5}); err != nil {
		t.Fatal(err)
	}
	info, _ := w.Info(a)
	if info.Dead || info.Health != DefaultMaxHealth || info.Position.X != 5 {
		t.Errorf("info = %+v", info)
	}
}
