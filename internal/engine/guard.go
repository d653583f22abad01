package engine

import (
	"sync"

	"github.com/gqrshy/tacticalrevive/internal/domain/downed"
)

// GuardSet marks entities whose termination is in progress. While an id is
// held, lethal damage against it is let through untouched and knock-downs
// are refused.
type GuardSet struct {
	mu   sync.Mutex
	held map[downed.EntityID]struct{}
}

// NewGuardSet creates an empty guard set.
func NewGuardSet() *GuardSet {
	return &GuardSet{held: make(map[downed.EntityID]struct{})}
}

// Acquire marks id. It returns false when id is already held.
func (g *GuardSet) Acquire(id downed.EntityID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.held[id]; ok {
		return false
	}
	g.held[id] = struct{}{}
	return true
}

// Release unmarks id.
func (g *GuardSet) Release(id downed.EntityID) {
	g.mu.Lock()
	delete(g.held, id)
	g.mu.Unlock()
}

// Held reports whether id is marked.
func (g *GuardSet) Held(id downed.EntityID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.held[id]
	return ok
}

// Len returns the number of marked ids.
func (g *GuardSet) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.held)
}
