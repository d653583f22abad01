package engine

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/gqrshy/tacticalrevive/internal/config"
	"github.com/gqrshy/tacticalrevive/internal/domain/damage"
	"github.com/gqrshy/tacticalrevive/internal/domain/downed"
	"github.com/gqrshy/tacticalrevive/internal/events"
	"github.com/gqrshy/tacticalrevive/internal/persistence"
	"github.com/gqrshy/tacticalrevive/internal/platform/logger"
	"github.com/gqrshy/tacticalrevive/internal/platform/metrics"
	"github.com/gqrshy/tacticalrevive/internal/protocol"
	"github.com/gqrshy/tacticalrevive/internal/replication"
)

// SystemActor is the actor id of events the server causes on its own.
const SystemActor = "SYSTEM"

// Outcome is the exit a tick produced, if any.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeRevived
	OutcomeTerminated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRevived:
		return "revived"
	case OutcomeTerminated:
		return "terminated"
	default:
		return "none"
	}
}

// ManagerDeps are the components a Manager mutates or reports to.
type ManagerDeps struct {
	Store   *downed.Store
	Helpers *downed.HelperTracker
	Guard   *GuardSet
	Collaborators

	Broadcaster *replication.Broadcaster
	EventLog    *events.EventLog
	Metrics     *metrics.Collector
	Logger      *logger.Logger
}

// Manager is the downed-state machine: knock-down, per-tick update, revive
// and terminate. It must only be driven from the authoritative tick thread.
//
// Operations whose precondition does not hold are silent no-ops returning
// false; several triggers may call them for the same entity.
type Manager struct {
	cfg config.Revive
	ManagerDeps

	tick int64
}

// NewManager creates a lifecycle manager.
func NewManager(cfg config.Revive, deps ManagerDeps) *Manager {
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if deps.EventLog == nil {
		deps.EventLog = events.NewEventLog()
	}
	if deps.Broadcaster == nil {
		deps.Broadcaster = replication.NewBroadcaster(cfg.SyncIntervalTicks, deps.Logger, deps.Metrics)
	}
	return &Manager{cfg: cfg, ManagerDeps: deps}
}

func (m *Manager) setTick(n int64) { m.tick = n }

// IsBleeding reports whether id is downed.
func (m *Manager) IsBleeding(id downed.EntityID) bool {
	return m.Store.IsBleeding(id)
}

// View returns an immutable copy of id's state.
func (m *Manager) View(id downed.EntityID) downed.View {
	return m.Store.Get(id).View(id)
}

// KnockOut puts a healthy entity into the downed state. cause may be nil.
func (m *Manager) KnockOut(id downed.EntityID, cause *damage.Source) bool {
	if m.Guard.Held(id) {
		return false
	}
	st := m.Store.Get(id)
	if st.Bleeding {
		return false
	}

	// A downed entity cannot keep helping someone else.
	if target, ok := m.Helpers.Remove(id); ok {
		m.record(events.EventTypeHelperReleased, id.String(), target, events.HelperPayload{Reason: "helper-downed"})
	}

	st.Reset()
	st.Bleeding = true
	st.TimeLeft = m.cfg.BleedingTimeTicks
	if cause != nil {
		c := *cause
		st.Cause = &c
	}

	safeCall(m.Logger, "SetHealth", id, func() { m.Host.SetHealth(id, m.cfg.BleedingHealth) })
	view := st.View(id)
	m.present(view)
	m.Broadcaster.Changed(view)

	actor := SystemActor
	causeType := ""
	if cause != nil {
		causeType = cause.Type
		if cause.Attacker != (downed.EntityID{}) {
			actor = cause.Attacker.String()
		}
	}
	m.record(events.EventTypeDowned, actor, id, events.DownedPayload{Cause: causeType, TimeLeft: st.TimeLeft})
	m.notify(protocol.NoticeDowned, id)
	m.Metrics.RecordKnockOut()
	m.Logger.Event("DOWNED", id.String(), fmt.Sprintf("cause=%q timeLeft=%d", causeType, st.TimeLeft))
	return true
}

// Tick advances one downed entity by one tick and fires at most one exit.
func (m *Manager) Tick(id downed.EntityID) Outcome {
	st, ok := m.Store.Lookup(id)
	if !ok || !st.Bleeding {
		return OutcomeNone
	}

	st.DownedTime++
	m.present(st.View(id))

	for _, h := range m.Helpers.Prune(id) {
		m.record(events.EventTypeHelperReleased, h.String(), id, events.HelperPayload{Reason: "out-of-range"})
	}

	if n := st.HelperCount(); n > 0 {
		st.ReviveProgress += float32(n) * m.cfg.ProgressPerHelper
		if !m.cfg.HaltCountdownWhileHelped {
			st.TimeLeft--
		}
	} else {
		st.TimeLeft--
		if m.cfg.ResetProgressOnHelperLoss {
			st.ReviveProgress = 0
		}
	}
	if st.TimeLeft < 0 {
		st.TimeLeft = 0
	}

	if st.ReviveProgress >= m.cfg.RequiredProgress {
		if m.Revive(id) {
			return OutcomeRevived
		}
		return OutcomeNone
	}
	if st.TimeLeft == 0 {
		if m.Terminate(id) {
			return OutcomeTerminated
		}
		return OutcomeNone
	}

	m.Broadcaster.Heartbeat(st.View(id))
	return OutcomeNone
}

// Revive ends the downed state favorably.
func (m *Manager) Revive(id downed.EntityID) bool {
	st, ok := m.Store.Lookup(id)
	if !ok || !st.Bleeding {
		return false
	}

	exit := exitPayload(st)
	m.Helpers.ReleaseTarget(id)
	st.Reset()

	safeCall(m.Logger, "SetHealth", id, func() { m.Host.SetHealth(id, m.cfg.HealthAfterRevive) })
	safeCall(m.Logger, "ClearDownedEffects", id, func() { m.Host.ClearDownedEffects(id) })
	view := st.View(id)
	m.render(view)
	m.Broadcaster.Changed(view)

	m.record(events.EventTypeRevived, SystemActor, id, exit)
	m.notify(protocol.NoticeRevived, id)
	m.Metrics.RecordRevive()
	m.Logger.Event("REVIVED", id.String(), fmt.Sprintf("progress=%.1f helpers=%d", exit.ReviveProgress, exit.Helpers))
	return true
}

// Terminate ends the downed state by killing the entity. The guard is held
// for the whole call so the terminal damage re-entering the damage gate is
// let through, and a nested Terminate or KnockOut is a no-op.
func (m *Manager) Terminate(id downed.EntityID) bool {
	if !m.Guard.Acquire(id) {
		return false
	}
	defer m.Guard.Release(id)

	st, ok := m.Store.Lookup(id)
	if !ok || !st.Bleeding {
		return false
	}

	_, span := tracer.Start(context.Background(), "downed.terminate",
		trace.WithAttributes(attribute.String("entity.id", id.String()), attribute.Int64("tick", m.tick)))
	defer span.End()

	exit := exitPayload(st)
	cause := st.Cause
	m.Helpers.ReleaseTarget(id)
	st.Reset()

	view := st.View(id)
	m.render(view)
	safeCall(m.Logger, "ClearDownedEffects", id, func() { m.Host.ClearDownedEffects(id) })
	if cause != nil {
		src := *cause
		safeCall(m.Logger, "Hurt", id, func() { m.Host.Hurt(id, src, math.MaxFloat32) })
	} else {
		safeCall(m.Logger, "Kill", id, func() { m.Host.Kill(id) })
	}

	m.Broadcaster.Changed(view)
	m.record(events.EventTypeTerminated, SystemActor, id, exit)
	m.notify(protocol.NoticeDied, id)
	m.Metrics.RecordTermination()
	m.Logger.Event("TERMINATED", id.String(), fmt.Sprintf("cause=%q downedTime=%d", exit.Cause, exit.DownedTime))
	return true
}

// GiveUp terminates a downed entity at its own request.
func (m *Manager) GiveUp(id downed.EntityID) bool {
	if !m.Store.IsBleeding(id) || m.Guard.Held(id) {
		return false
	}
	m.record(events.EventTypeGiveUp, id.String(), id, nil)
	m.Metrics.RecordGiveUp()
	return m.Terminate(id)
}

// ForceBleedOut drops the countdown to zero. The next tick terminates
// unless enough progress accrues in that same tick.
func (m *Manager) ForceBleedOut(id downed.EntityID) bool {
	st, ok := m.Store.Lookup(id)
	if !ok || !st.Bleeding {
		return false
	}
	st.TimeLeft = 0
	m.Broadcaster.Changed(st.View(id))
	m.Logger.Event("BLEED_OUT_FORCED", id.String(), "")
	return true
}

// Respawn resets the entity to healthy without any lethal side effect.
func (m *Manager) Respawn(id downed.EntityID) bool {
	m.Helpers.Remove(id)
	st, ok := m.Store.Lookup(id)
	if !ok || !st.Bleeding {
		return false
	}
	m.Helpers.ReleaseTarget(id)
	st.Reset()
	safeCall(m.Logger, "ClearDownedEffects", id, func() { m.Host.ClearDownedEffects(id) })
	view := st.View(id)
	m.render(view)
	m.Broadcaster.Changed(view)
	m.record(events.EventTypeRespawned, SystemActor, id, nil)
	return true
}

// Load replaces id's state with a persisted record. Helpers always start
// empty. A downed record re-applies presentation and is re-broadcast.
func (m *Manager) Load(id downed.EntityID, rec persistence.Record) {
	m.Helpers.Remove(id)
	m.Helpers.ReleaseTarget(id)
	st := m.Store.Get(id)
	wasBleeding := st.Bleeding
	rec.Apply(st)
	if st.Bleeding {
		m.Restore(id)
		return
	}
	view := st.View(id)
	if wasBleeding {
		safeCall(m.Logger, "ClearDownedEffects", id, func() { m.Host.ClearDownedEffects(id) })
		m.render(view)
	}
	m.Broadcaster.Changed(view)
}

// Restore re-applies health floor, effects and pose to a downed entity,
// typically after it was loaded or re-joined.
func (m *Manager) Restore(id downed.EntityID) bool {
	st, ok := m.Store.Lookup(id)
	if !ok || !st.Bleeding {
		return false
	}
	safeCall(m.Logger, "SetHealth", id, func() { m.Host.SetHealth(id, m.cfg.BleedingHealth) })
	view := st.View(id)
	m.present(view)
	m.Broadcaster.Changed(view)
	m.record(events.EventTypeRestored, SystemActor, id, events.DownedPayload{TimeLeft: st.TimeLeft})
	return true
}

// AssignHelper credits helper to target.
func (m *Manager) AssignHelper(target, helper downed.EntityID) error {
	moved, hadTarget := m.Helpers.TargetOf(helper)
	changed, err := m.Helpers.Assign(target, helper)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if hadTarget && moved != target {
		m.record(events.EventTypeHelperReleased, helper.String(), moved, events.HelperPayload{Reason: "switched-target"})
	}
	m.record(events.EventTypeHelperAssigned, helper.String(), target, nil)
	m.Logger.Debug("Helper assigned", zap.String("helper", helper.String()), zap.String("target", target.String()))
	return nil
}

// ReleaseHelper stops helper from helping anyone.
func (m *Manager) ReleaseHelper(helper downed.EntityID, reason string) bool {
	target, ok := m.Helpers.Remove(helper)
	if !ok {
		return false
	}
	m.record(events.EventTypeHelperReleased, helper.String(), target, events.HelperPayload{Reason: reason})
	return true
}

// Records captures every non-baseline state for saving.
func (m *Manager) Records() map[downed.EntityID]persistence.Record {
	out := make(map[downed.EntityID]persistence.Record)
	for _, id := range m.Store.Downed() {
		st, _ := m.Store.Lookup(id)
		out[id] = persistence.FromState(st)
	}
	return out
}

func (m *Manager) present(v downed.View) {
	safeCall(m.Logger, "ApplyDownedEffects", v.ID, func() { m.Host.ApplyDownedEffects(v.ID) })
	m.render(v)
}

func (m *Manager) render(v downed.View) {
	if m.Render == nil {
		return
	}
	safeCall(m.Logger, "Render", v.ID, func() { m.Render.Render(v) })
}

func (m *Manager) notify(kind string, id downed.EntityID) {
	if m.Notifier == nil || !m.cfg.ShowBleedingMessage {
		return
	}
	safeCall(m.Logger, "Notify", id, func() { m.Notifier.Notify(kind, id) })
}

func (m *Manager) record(t events.EventType, actor string, target downed.EntityID, payload any) {
	m.EventLog.Append(events.Event{
		Type:     t,
		ActorID:  actor,
		TargetID: target.String(),
		Payload:  payload,
		Tick:     m.tick,
	})
}

func exitPayload(st *downed.State) events.ExitPayload {
	p := events.ExitPayload{
		TimeLeft:       st.TimeLeft,
		DownedTime:     st.DownedTime,
		ReviveProgress: st.ReviveProgress,
		Helpers:        st.HelperCount(),
	}
	if st.Cause != nil {
		p.Cause = st.Cause.Type
	}
	return p
}

// errIsHelperRejection reports errors AssignHelper returns for requests that
// are simply not allowed right now.
func errIsHelperRejection(err error) bool {
	return errors.Is(err, downed.ErrSelfHelp) ||
		errors.Is(err, downed.ErrTargetNotDowned) ||
		errors.Is(err, downed.ErrHelperDowned)
}
