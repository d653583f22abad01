package replication

import (
	"sync"

	"github.com/gqrshy/tacticalrevive/internal/domain/downed"
)

// Mirror is the observer-side copy of replicated downed state. Only downed
// entities are held; a not-bleeding snapshot removes the entry.
type Mirror struct {
	mu      sync.RWMutex
	entries map[downed.EntityID]Snapshot
}

// NewMirror creates an empty mirror.
func NewMirror() *Mirror {
	return &Mirror{entries: make(map[downed.EntityID]Snapshot)}
}

// Publish implements Sink so a mirror can sit next to the hub in-process.
func (m *Mirror) Publish(s Snapshot) {
	m.Apply(s)
}

// Apply folds s into the mirror and reports whether it was accepted.
// Within one downed episode the countdown never rises, so a bleeding
// snapshot with more time left than the applied one is stale.
func (m *Mirror) Apply(s Snapshot) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !s.Bleeding {
		delete(m.entries, s.Target)
		return true
	}
	if cur, ok := m.entries[s.Target]; ok && s.TimeLeft > cur.TimeLeft {
		return false
	}
	m.entries[s.Target] = s
	return true
}

// Get returns the mirrored state of id.
func (m *Mirror) Get(id downed.EntityID) (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.entries[id]
	return s, ok
}

// IsBleeding reports whether id is mirrored as downed.
func (m *Mirror) IsBleeding(id downed.EntityID) bool {
	_, ok := m.Get(id)
	return ok
}

// All returns every mirrored entry in a stable order.
func (m *Mirror) All() []Snapshot {
	m.mu.RLock()
	ids := make([]downed.EntityID, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	downed.SortIDs(ids)
	out := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		if s, ok := m.Get(id); ok {
			out = append(out, s)
		}
	}
	return out
}

// Len returns the number of mirrored downed entities.
func (m *Mirror) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
