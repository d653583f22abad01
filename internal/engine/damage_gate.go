package engine

import (
	"go.uber.org/zap"

	"github.com/gqrshy/tacticalrevive/internal/config"
	"github.com/gqrshy/tacticalrevive/internal/domain/damage"
	"github.com/gqrshy/tacticalrevive/internal/domain/downed"
	"github.com/gqrshy/tacticalrevive/internal/platform/logger"
)

// Decision reasons. They label the suppressed-hit metric.
const (
	ReasonTerminating  = "terminating"
	ReasonGraceWindow  = "grace-window"
	ReasonDoubleFire   = "double-fire"
	ReasonBledOut      = "bled-out"
	ReasonMobFilter    = "mob-damage-disabled"
	ReasonPlayerFilter = "player-damage-disabled"
	ReasonDowned       = "downed"
	ReasonNotLethal    = "not-lethal"
	ReasonIneligible   = "ineligible"
	ReasonAlone        = "alone"
	ReasonBypassType   = "bypass-type"
	ReasonKnockOut     = "knock-out"
)

// Decision is the gate's verdict on one hit.
type Decision struct {
	Verdict damage.Verdict
	Reason  string
}

// Gate decides what happens to incoming damage. It reads state but never
// mutates it; the caller acts on the verdict.
type Gate struct {
	cfg        config.Revive
	store      *downed.Store
	guard      *GuardSet
	host       Host
	classifier damage.Classifier
	logger     *logger.Logger
}

// NewGate creates a damage gate. A nil classifier matches nothing.
func NewGate(cfg config.Revive, store *downed.Store, guard *GuardSet, host Host, classifier damage.Classifier, log *logger.Logger) *Gate {
	if log == nil {
		log = logger.NewNop()
	}
	return &Gate{
		cfg:        cfg,
		store:      store,
		guard:      guard,
		host:       host,
		classifier: classifier,
		logger:     log,
	}
}

// Evaluate classifies a hit. Checks run in a fixed order and the first
// match wins.
func (g *Gate) Evaluate(hit damage.Hit) Decision {
	id := hit.Target

	if g.guard.Held(id) {
		return Decision{damage.AllowLethal, ReasonTerminating}
	}

	if st, ok := g.store.Lookup(id); ok && st.Bleeding {
		return g.evaluateDowned(st, hit)
	}

	if !hit.Lethal {
		return Decision{damage.AllowLethal, ReasonNotLethal}
	}
	if !g.eligible(id) {
		return Decision{damage.AllowLethal, ReasonIneligible}
	}
	if g.cfg.RequireOtherParticipants && g.participants() <= 1 {
		return Decision{damage.AllowLethal, ReasonAlone}
	}
	if g.cfg.Bypasses(hit.Source.Type) {
		return Decision{damage.AllowLethal, ReasonBypassType}
	}
	return Decision{damage.BeginDowned, ReasonKnockOut}
}

func (g *Gate) evaluateDowned(st *downed.State, hit damage.Hit) Decision {
	if st.DownedTime < g.cfg.InitialInvulnerabilityTicks {
		return Decision{damage.Suppress, ReasonGraceWindow}
	}

	matched, err := damage.SafeDoubleFire(g.classifier, hit.Source)
	if err != nil {
		g.logger.Debug("Damage classifier failed",
			zap.String("target", hit.Target.String()),
			zap.String("source", hit.Source.Type),
			zap.Error(err))
	}
	if matched {
		return Decision{damage.Suppress, ReasonDoubleFire}
	}

	if st.HasBledOut() {
		return Decision{damage.AllowLethal, ReasonBledOut}
	}
	if g.cfg.DisableMobDamageWhileDowned && hit.Source.IsMob() {
		return Decision{damage.Suppress, ReasonMobFilter}
	}
	if g.cfg.DisablePlayerDamageWhileDowned && hit.Source.IsPlayer() {
		return Decision{damage.Suppress, ReasonPlayerFilter}
	}
	return Decision{damage.Suppress, ReasonDowned}
}

// eligible treats a failing host as ineligible so the hit proceeds normally.
func (g *Gate) eligible(id downed.EntityID) bool {
	var ok bool
	if !safeCall(g.logger, "Eligible", id, func() { ok = g.host.Eligible(id) }) {
		return false
	}
	return ok
}

func (g *Gate) participants() int {
	n := 0
	safeCall(g.logger, "Participants", downed.EntityID{}, func() { n = g.host.Participants() })
	return n
}
