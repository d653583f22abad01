// Package world is the ECS host the downed-state engine runs against. It owns
// health, position, presence, pose and status effects; the engine only sees
// it through engine.Host, engine.RenderHook and downed.Locator.
//
// A World is not safe for concurrent use. All calls happen on the tick thread.
package world

import (
	"errors"

	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/filter"
	"go.uber.org/zap"

	"github.com/gqrshy/tacticalrevive/internal/domain/damage"
	"github.com/gqrshy/tacticalrevive/internal/domain/downed"
	"github.com/gqrshy/tacticalrevive/internal/engine"
	"github.com/gqrshy/tacticalrevive/internal/platform/logger"
)

var (
	ErrUnknownEntity = errors.New("world: unknown entity")
	ErrDuplicate     = errors.New("world: entity already spawned")
)

// DefaultMaxHealth is the health of a freshly spawned entity.
const DefaultMaxHealth float32 = 20

// effectTicks is how long a downed effect lasts once applied. The engine
// re-applies every tick, so it only matters for decay after a reset.
const effectTicks = 40

// Pipeline evaluates hits before the world applies them.
type Pipeline interface {
	Damage(hit damage.Hit) engine.Decision
}

// Options configure a World.
type Options struct {
	// Glow adds the glowing effect to downed entities.
	Glow   bool
	Logger *logger.Logger
}

// World is a donburi-backed arena of combat entities.
type World struct {
	ecs      donburi.World
	index    map[downed.EntityID]donburi.Entity
	pipeline Pipeline
	glow     bool
	logger   *logger.Logger

	online *donburi.Query
	deaths int
}

var (
	_ engine.Host       = (*World)(nil)
	_ engine.RenderHook = (*World)(nil)
	_ downed.Locator    = (*World)(nil)
)

// New creates an empty world.
func New(opts Options) *World {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &World{
		ecs:    donburi.NewWorld(),
		index:  make(map[downed.EntityID]donburi.Entity),
		glow:   opts.Glow,
		logger: log,
		online: donburi.NewQuery(filter.And(
			filter.Contains(Identity, Health, Online),
			filter.Not(filter.Contains(Exempt)),
		)),
	}
}

// SetPipeline installs the damage pipeline. Until one is set every hit is
// applied as is.
func (w *World) SetPipeline(p Pipeline) {
	w.pipeline = p
}

// Spawn creates an online entity at pos with full health.
func (w *World) Spawn(id downed.EntityID, pos downed.Position) error {
	if _, ok := w.index[id]; ok {
		return ErrDuplicate
	}
	ent := w.ecs.Create(Identity, Health, Position, Pose, Effects, Online)
	entry := w.ecs.Entry(ent)
	Identity.SetValue(entry, IdentityData{ID: id})
	Health.SetValue(entry, HealthData{Current: DefaultMaxHealth, Max: DefaultMaxHealth})
	Position.SetValue(entry, PositionData{X: pos.X, Y: pos.Y, Z: pos.Z})
	w.index[id] = ent
	w.logger.Debug("Entity spawned", zap.String("entity", id.String()))
	return nil
}

// Despawn removes an entity entirely.
func (w *World) Despawn(id downed.EntityID) {
	ent, ok := w.index[id]
	if !ok {
		return
	}
	w.ecs.Remove(ent)
	delete(w.index, id)
}

// Has reports whether id is spawned.
func (w *World) Has(id downed.EntityID) bool {
	_, ok := w.entry(id)
	return ok
}

func (w *World) entry(id downed.EntityID) (*donburi.Entry, bool) {
	ent, ok := w.index[id]
	if !ok || !w.ecs.Valid(ent) {
		return nil, false
	}
	return w.ecs.Entry(ent), true
}

// Move teleports id. Dead entities cannot move.
func (w *World) Move(id downed.EntityID, pos downed.Position) error {
	entry, ok := w.entry(id)
	if !ok {
		return ErrUnknownEntity
	}
	if Health.Get(entry).Dead {
		return nil
	}
	Position.SetValue(entry, PositionData{X: pos.X, Y: pos.Y, Z: pos.Z})
	return nil
}

// SetOnline toggles presence. Offline entities cannot be located.
func (w *World) SetOnline(id downed.EntityID, online bool) error {
	return w.setTag(id, Online, online)
}

// SetExempt toggles whether id may be downed.
func (w *World) SetExempt(id downed.EntityID, exempt bool) error {
	return w.setTag(id, Exempt, exempt)
}

func (w *World) setTag(id downed.EntityID, tag donburi.IComponentType, on bool) error {
	entry, ok := w.entry(id)
	if !ok {
		return ErrUnknownEntity
	}
	switch has := entry.HasComponent(tag); {
	case on && !has:
		entry.AddComponent(tag)
	case !on && has:
		entry.RemoveComponent(tag)
	}
	return nil
}

// Damage deals amount to target through the pipeline and returns the verdict.
func (w *World) Damage(target downed.EntityID, src damage.Source, amount float32) damage.Verdict {
	entry, ok := w.entry(target)
	if !ok || Health.Get(entry).Dead {
		return damage.Suppress
	}

	hit := damage.Hit{
		Target: target,
		Source: src,
		Amount: amount,
		Lethal: amount >= Health.Get(entry).Current,
	}
	verdict := damage.AllowLethal
	if w.pipeline != nil {
		verdict = w.pipeline.Damage(hit).Verdict
	}
	if verdict != damage.AllowLethal {
		return verdict
	}

	// The pipeline may have changed the entity; look it up again.
	entry, ok = w.entry(target)
	if !ok {
		return verdict
	}
	h := Health.Get(entry)
	if h.Dead {
		return verdict
	}
	h.Current -= amount
	if h.Current <= 0 {
		w.die(target, entry, src.Type)
	}
	return verdict
}

func (w *World) die(id downed.EntityID, entry *donburi.Entry, cause string) {
	h := Health.Get(entry)
	h.Current = 0
	h.Dead = true
	*Effects.Get(entry) = EffectsData{}
	w.deaths++
	w.logger.Event("DEATH", id.String(), "cause="+cause)
}

// Respawn brings a dead entity back at pos with full health.
func (w *World) Respawn(id downed.EntityID, pos downed.Position) error {
	entry, ok := w.entry(id)
	if !ok {
		return ErrUnknownEntity
	}
	h := Health.Get(entry)
	h.Current = h.Max
	h.Dead = false
	Position.SetValue(entry, PositionData{X: pos.X, Y: pos.Y, Z: pos.Z})
	Pose.SetValue(entry, PoseData{})
	Effects.SetValue(entry, EffectsData{})
	return nil
}

// Deaths returns the number of deaths so far.
func (w *World) Deaths() int { return w.deaths }

// Hurt implements engine.Host. It re-enters the pipeline.
func (w *World) Hurt(id downed.EntityID, src damage.Source, amount float32) {
	w.Damage(id, src, amount)
}

// Kill implements engine.Host. It bypasses the pipeline.
func (w *World) Kill(id downed.EntityID) {
	entry, ok := w.entry(id)
	if !ok || Health.Get(entry).Dead {
		return
	}
	w.die(id, entry, "kill")
}

// SetHealth implements engine.Host.
func (w *World) SetHealth(id downed.EntityID, health float32) {
	entry, ok := w.entry(id)
	if !ok {
		return
	}
	h := Health.Get(entry)
	if health > h.Max {
		health = h.Max
	}
	h.Current = health
}

// ApplyDownedEffects implements engine.Host.
func (w *World) ApplyDownedEffects(id downed.EntityID) {
	entry, ok := w.entry(id)
	if !ok {
		return
	}
	fx := Effects.Get(entry)
	fx.Slowness = effectTicks
	fx.Weakness = effectTicks
	fx.Blindness = effectTicks
	if w.glow {
		fx.Glowing = effectTicks
	}
}

// ClearDownedEffects implements engine.Host.
func (w *World) ClearDownedEffects(id downed.EntityID) {
	if entry, ok := w.entry(id); ok {
		Effects.SetValue(entry, EffectsData{})
	}
}

// Eligible implements engine.Host.
func (w *World) Eligible(id downed.EntityID) bool {
	entry, ok := w.entry(id)
	if !ok {
		return false
	}
	return entry.HasComponent(Online) && !entry.HasComponent(Exempt) && !Health.Get(entry).Dead
}

// Participants implements engine.Host.
func (w *World) Participants() int {
	n := 0
	w.online.Each(w.ecs, func(entry *donburi.Entry) {
		if !Health.Get(entry).Dead {
			n++
		}
	})
	return n
}

// Resolve implements downed.Locator. Offline and dead entities are gone.
func (w *World) Resolve(id downed.EntityID) (downed.Position, bool) {
	entry, ok := w.entry(id)
	if !ok || !entry.HasComponent(Online) || Health.Get(entry).Dead {
		return downed.Position{}, false
	}
	p := Position.Get(entry)
	return downed.Position{X: p.X, Y: p.Y, Z: p.Z}, true
}

// Render implements engine.RenderHook.
func (w *World) Render(v downed.View) {
	entry, ok := w.entry(v.ID)
	if !ok {
		return
	}
	Pose.SetValue(entry, PoseData{
		Downed:   v.Bleeding,
		Glow:     v.Bleeding && w.glow,
		TimeLeft: v.TimeLeft,
		Progress: v.ReviveProgress,
	})
}

// Step decays effect timers by one tick.
func (w *World) Step() {
	Effects.Each(w.ecs, func(entry *donburi.Entry) {
		fx := Effects.Get(entry)
		if !fx.Active() {
			return
		}
		fx.Slowness = decay(fx.Slowness)
		fx.Weakness = decay(fx.Weakness)
		fx.Blindness = decay(fx.Blindness)
		fx.Glowing = decay(fx.Glowing)
	})
}

func decay(n int) int {
	if n > 0 {
		return n - 1
	}
	return 0
}

// EntityInfo is a copy of one entity's host-side state.
type EntityInfo struct {
	ID       downed.EntityID `json:"id"`
	Health   float32         `json:"health"`
	Dead     bool            `json:"dead"`
	Online   bool            `json:"online"`
	Position PositionData    `json:"position"`
	Pose     PoseData        `json:"pose"`
	Effects  EffectsData     `json:"effects"`
}

// Info returns a copy of id's state.
func (w *World) Info(id downed.EntityID) (EntityInfo, bool) {
	entry, ok := w.entry(id)
	if !ok {
		return EntityInfo{}, false
	}
	h := Health.Get(entry)
	return EntityInfo{
		ID:       id,
		Health:   h.Current,
		Dead:     h.Dead,
		Online:   entry.HasComponent(Online),
		Position: *Position.Get(entry),
		Pose:     *Pose.Get(entry),
		Effects:  *Effects.Get(entry),
	}, true
}

// Entities returns every spawned id in a stable order.
func (w *World) Entities() []downed.EntityID {
	ids := make([]downed.EntityID, 0, len(w.index))
	for id := range w.index {
		ids = append(ids, id)
	}
	downed.SortIDs(ids)
	return ids
}

// Len returns the number of spawned entities.
func (w *World) Len() int { return len(w.index) }
