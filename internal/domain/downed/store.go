package downed

import (
	"errors"
	"fmt"
)

// Store owns one State per entity. Records are created lazily on first
// reference and never destroyed.
type Store struct {
	states map[EntityID]*State
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{states: make(map[EntityID]*State)}
}

// Get returns the record for id, creating a healthy one if needed.
func (s *Store) Get(id EntityID) *State {
	st, ok := s.states[id]
	if !ok {
		st = &State{}
		s.states[id] = st
	}
	return st
}

// Lookup returns the record for id without creating it.
func (s *Store) Lookup(id EntityID) (*State, bool) {
	st, ok := s.states[id]
	return st, ok
}

// IsBleeding reports whether id is downed. Unknown ids are healthy.
func (s *Store) IsBleeding(id EntityID) bool {
	st, ok := s.states[id]
	return ok && st.Bleeding
}

// Downed returns the ids of all downed entities in a stable order.
func (s *Store) Downed() []EntityID {
	ids := make([]EntityID, 0)
	for id, st := range s.states {
		if st.Bleeding {
			ids = append(ids, id)
		}
	}
	SortIDs(ids)
	return ids
}

// Len returns the number of tracked records.
func (s *Store) Len() int {
	return len(s.states)
}

// Views copies every downed record.
func (s *Store) Views() []View {
	ids := s.Downed()
	out := make([]View, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.states[id].View(id))
	}
	return out
}

// Check verifies the store-wide invariants and returns every violation found.
// Progress at or past requiredProgress is only legal between a tick's accrual
// and its exit evaluation, so Check must run outside of a tick.
func (s *Store) Check(requiredProgress float32) error {
	var errs []error
	seen := make(map[EntityID]EntityID)

	for id, st := range s.states {
		if !st.Bleeding {
			if st.TimeLeft != 0 || st.DownedTime != 0 || st.ReviveProgress != 0 || len(st.Helpers) != 0 || st.Cause != nil {
				errs = append(errs, fmt.Errorf("entity %s: partially reset record", id))
			}
			continue
		}
		if st.TimeLeft < 0 || st.DownedTime < 0 {
			errs = append(errs, fmt.Errorf("entity %s: negative counter", id))
		}
		if st.ReviveProgress < 0 {
			errs = append(errs, fmt.Errorf("entity %s: negative progress", id))
		}
		if st.ReviveProgress >= requiredProgress {
			errs = append(errs, fmt.Errorf("entity %s: progress %.2f reached %.2f without revive", id, st.ReviveProgress, requiredProgress))
		}
		for h := range st.Helpers {
			if h == id {
				errs = append(errs, fmt.Errorf("entity %s: helps itself", id))
			}
			if other, dup := seen[h]; dup {
				errs = append(errs, fmt.Errorf("helper %s credited to both %s and %s", h, other, id))
			}
			seen[h] = id
		}
	}
	return errors.Join(errs...)
}
