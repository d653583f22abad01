package engine

import (
	"go.uber.org/zap"

	"github.com/gqrshy/tacticalrevive/internal/domain/damage"
	"github.com/gqrshy/tacticalrevive/internal/domain/downed"
)

// Command is a request from an I/O goroutine, applied on the tick thread.
type Command interface {
	apply(e *Engine)
}

// RequestHelp credits Helper toward reviving Target.
type RequestHelp struct {
	Helper downed.EntityID
	Target downed.EntityID
}

func (c RequestHelp) apply(e *Engine) {
	if err := e.manager.AssignHelper(c.Target, c.Helper); err != nil {
		fields := []zap.Field{
			zap.String("helper", c.Helper.String()),
			zap.String("target", c.Target.String()),
			zap.Error(err),
		}
		if errIsHelperRejection(err) {
			e.logger.Debug("Help request rejected", fields...)
			return
		}
		e.logger.Warn("Help request failed", fields...)
	}
}

// StopHelping withdraws Helper from its current target.
type StopHelping struct {
	Helper downed.EntityID
}

func (c StopHelping) apply(e *Engine) {
	e.manager.ReleaseHelper(c.Helper, "stopped")
}

// RequestGiveUp starts or cancels the give-up hold of a downed entity.
type RequestGiveUp struct {
	Entity  downed.EntityID
	Holding bool
}

func (c RequestGiveUp) apply(e *Engine) {
	if !c.Holding {
		delete(e.holds, c.Entity)
		return
	}
	if !e.store.IsBleeding(c.Entity) {
		return
	}
	if _, ok := e.holds[c.Entity]; !ok {
		e.holds[c.Entity] = 0
	}
	if e.cfg.GiveUpHoldTicks <= 0 {
		delete(e.holds, c.Entity)
		e.manager.GiveUp(c.Entity)
	}
}

// Disconnect handles an entity leaving the session. Then, when set, runs
// on the tick thread right after the disconnect has been applied.
type Disconnect struct {
	Entity downed.EntityID
	Then   func()
}

func (c Disconnect) apply(e *Engine) {
	e.manager.ReleaseHelper(c.Entity, "disconnected")
	delete(e.holds, c.Entity)
	if e.cfg.TerminateOnDisconnect {
		e.manager.Terminate(c.Entity)
	}
	if c.Then != nil {
		c.Then()
	}
}

// Respawn resets an entity to healthy.
type Respawn struct {
	Entity downed.EntityID
}

func (c Respawn) apply(e *Engine) {
	delete(e.holds, c.Entity)
	e.manager.Respawn(c.Entity)
}

// Attack deals player damage to Target through the host. A downed attacker
// is refused.
type Attack struct {
	Attacker downed.EntityID
	Target   downed.EntityID
	Amount   float32
}

func (c Attack) apply(e *Engine) {
	if !e.Allowed(c.Attacker, ActionAttack) {
		e.logger.Debug("Attack refused", zap.String("attacker", c.Attacker.String()))
		return
	}
	if c.Amount <= 0 || c.Attacker == c.Target {
		return
	}
	src := damage.Source{
		Type:         damage.TypePlayerAttack,
		Attacker:     c.Attacker,
		AttackerKind: damage.AttackerPlayer,
	}
	safeCall(e.logger, "Hurt", c.Target, func() { e.host.Hurt(c.Target, src, c.Amount) })
}

// Exec runs an arbitrary function on the tick thread.
type Exec struct {
	Fn func()
}

func (c Exec) apply(e *Engine) {
	if c.Fn != nil {
		c.Fn()
	}
}
