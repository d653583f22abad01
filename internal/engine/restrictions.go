package engine

import "github.com/gqrshy/tacticalrevive/internal/domain/downed"

// Action is something an entity may try to do.
type Action int

const (
	ActionAttack Action = iota
	ActionDropItem
	ActionInteractEntity
	ActionInteractPlayer
	ActionGunFire
	ActionGunReload
	ActionGunMelee
	ActionMove
)

var actionNames = [...]string{
	ActionAttack:         "attack",
	ActionDropItem:       "drop-item",
	ActionInteractEntity: "interact-entity",
	ActionInteractPlayer: "interact-player",
	ActionGunFire:        "gun-fire",
	ActionGunReload:      "gun-reload",
	ActionGunMelee:       "gun-melee",
	ActionMove:           "move",
}

func (a Action) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return "unknown"
	}
	return actionNames[a]
}

// Allowed reports whether actor may perform action. A downed entity may
// still crawl and interact with other players (to ask for help), nothing else.
func (e *Engine) Allowed(actor downed.EntityID, action Action) bool {
	if !e.store.IsBleeding(actor) {
		return true
	}
	switch action {
	case ActionMove, ActionInteractPlayer:
		return true
	default:
		return false
	}
}

// Pushable reports whether other entities may shove id.
func (e *Engine) Pushable(id downed.EntityID) bool {
	return !e.store.IsBleeding(id)
}

// Targetable reports whether hostile mobs may pick id as a target. A freshly
// downed entity is ignored for the grace window.
func (e *Engine) Targetable(id downed.EntityID) bool {
	st, ok := e.store.Lookup(id)
	if !ok || !st.Bleeding {
		return true
	}
	return st.DownedTime >= e.cfg.InitialInvulnerabilityTicks
}
