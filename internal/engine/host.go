package engine

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/gqrshy/tacticalrevive/internal/domain/damage"
	"github.com/gqrshy/tacticalrevive/internal/domain/downed"
	"github.com/gqrshy/tacticalrevive/internal/platform/logger"
)

// Host is the world that owns health, effects and death. The lifecycle
// manager never assumes anything else about an entity.
type Host interface {
	SetHealth(id downed.EntityID, health float32)
	// ApplyDownedEffects (re)applies the downed status effects. Idempotent.
	ApplyDownedEffects(id downed.EntityID)
	ClearDownedEffects(id downed.EntityID)
	// Hurt deals damage through the host's own damage pipeline, so it
	// re-enters the damage gate.
	Hurt(id downed.EntityID, src damage.Source, amount float32)
	// Kill removes the entity without any damage pipeline.
	Kill(id downed.EntityID)
	// Eligible reports whether the entity may be downed at all.
	Eligible(id downed.EntityID) bool
	// Participants counts online entities that could take part in a revive.
	Participants() int
}

// RenderHook receives read-only views to drive presentation. A not-bleeding
// view clears the forced pose.
type RenderHook interface {
	Render(v downed.View)
}

// Notifier broadcasts short lifecycle notices ("downed", "revived", "died").
type Notifier interface {
	Notify(kind string, id downed.EntityID)
}

// Collaborators bundles the outward-facing dependencies of the manager.
// Render and Notifier may be nil.
type Collaborators struct {
	Host     Host
	Render   RenderHook
	Notifier Notifier
}

// safeCall runs fn and logs a panic instead of propagating it. A failing
// collaborator has no effect on the state machine.
func safeCall(log *logger.Logger, what string, id downed.EntityID, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			if log != nil {
				log.Error("Collaborator call failed",
					zap.String("call", what),
					zap.String("entity", id.String()),
					zap.String("panic", fmt.Sprint(r)))
			}
		}
	}()
	fn()
	return true
}
