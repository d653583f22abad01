package downed

import "errors"

var (
	ErrSelfHelp        = errors.New("an entity cannot help itself")
	ErrTargetNotDowned = errors.New("target is not downed")
	ErrHelperDowned    = errors.New("a downed entity cannot help")
)

// Position is a point in world space.
type Position struct {
	X, Y, Z float64
}

// DistanceSq returns the squared euclidean distance to o.
func (p Position) DistanceSq(o Position) float64 {
	dx := p.X - o.X
	dy := p.Y - o.Y
	dz := p.Z - o.Z
	return dx*dx + dy*dy + dz*dz
}

// Locator resolves an entity's position. ok is false when the entity is gone
// or disconnected.
type Locator interface {
	Resolve(id EntityID) (pos Position, ok bool)
}

// Nowhere is a Locator that resolves nothing. Every helper it sees is
// pruned as unreachable.
type Nowhere struct{}

func (Nowhere) Resolve(EntityID) (Position, bool) { return Position{}, false }

// HelperTracker keeps each helper credited to at most one target.
type HelperTracker struct {
	store         *Store
	locator       Locator
	maxDistanceSq float64

	// helper -> target
	owner map[EntityID]EntityID
}

// NewHelperTracker creates a tracker over store. A nil locator behaves like
// Nowhere.
func NewHelperTracker(store *Store, locator Locator, maxDistance float64) *HelperTracker {
	if locator == nil {
		locator = Nowhere{}
	}
	return &HelperTracker{
		store:         store,
		locator:       locator,
		maxDistanceSq: maxDistance * maxDistance,
		owner:         make(map[EntityID]EntityID),
	}
}

// TargetOf returns the target helper is currently credited to.
func (t *HelperTracker) TargetOf(helper EntityID) (EntityID, bool) {
	target, ok := t.owner[helper]
	return target, ok
}

// Assign credits helper to target, first taking it away from any other target.
// Returns false without error when helper was already credited to target.
func (t *HelperTracker) Assign(target, helper EntityID) (bool, error) {
	if target == helper {
		return false, ErrSelfHelp
	}
	if !t.store.IsBleeding(target) {
		return false, ErrTargetNotDowned
	}
	if t.store.IsBleeding(helper) {
		return false, ErrHelperDowned
	}
	if prev, ok := t.owner[helper]; ok {
		if prev == target {
			return false, nil
		}
		t.detach(prev, helper)
	}
	t.store.Get(target).addHelper(helper)
	t.owner[helper] = target
	return true, nil
}

// Remove takes helper off whichever target holds it.
func (t *HelperTracker) Remove(helper EntityID) (EntityID, bool) {
	target, ok := t.owner[helper]
	if !ok {
		return EntityID{}, false
	}
	t.detach(target, helper)
	return target, true
}

// ReleaseTarget drops every helper credited to target. Called before the
// target's record is reset.
func (t *HelperTracker) ReleaseTarget(target EntityID) []EntityID {
	st, ok := t.store.Lookup(target)
	if !ok || len(st.Helpers) == 0 {
		return nil
	}
	released := make([]EntityID, 0, len(st.Helpers))
	for h := range st.Helpers {
		released = append(released, h)
		if t.owner[h] == target {
			delete(t.owner, h)
		}
	}
	st.Helpers = nil
	SortIDs(released)
	return released
}

// Prune removes helpers that are unresolvable or out of range of target.
// If target itself cannot be located every helper goes.
func (t *HelperTracker) Prune(target EntityID) []EntityID {
	st, ok := t.store.Lookup(target)
	if !ok || len(st.Helpers) == 0 {
		return nil
	}
	targetPos, ok := t.locator.Resolve(target)
	if !ok {
		return t.ReleaseTarget(target)
	}

	var pruned []EntityID
	for h := range st.Helpers {
		pos, ok := t.locator.Resolve(h)
		if !ok || pos.DistanceSq(targetPos) > t.maxDistanceSq {
			pruned = append(pruned, h)
		}
	}
	for _, h := range pruned {
		t.detach(target, h)
	}
	SortIDs(pruned)
	return pruned
}

// Len returns the number of credited helpers across all targets.
func (t *HelperTracker) Len() int {
	return len(t.owner)
}

func (t *HelperTracker) detach(target, helper EntityID) {
	if st, ok := t.store.Lookup(target); ok {
		st.removeHelper(helper)
	}
	if t.owner[helper] == target {
		delete(t.owner, helper)
	}
}
