// Package downed holds the per-entity downed state and the helper registry.
// This package is PURE: it never logs, never touches the network and never
// knows what a tick is. The engine drives it.
package downed

import (
	"bytes"
	"slices"

	"github.com/google/uuid"

	"github.com/gqrshy/tacticalrevive/internal/domain/damage"
)

// EntityID identifies a combat entity for its whole lifetime.
type EntityID = uuid.UUID

// State is the downed record of one entity.
type State struct {
	Bleeding       bool
	TimeLeft       int
	DownedTime     int
	ReviveProgress float32
	Helpers        map[EntityID]struct{}
	Cause          *damage.Source
}

// Reset returns the record to the healthy baseline. All fields at once.
func (s *State) Reset() {
	s.Bleeding = false
	s.TimeLeft = 0
	s.DownedTime = 0
	s.ReviveProgress = 0
	s.Helpers = nil
	s.Cause = nil
}

// HasBledOut reports a downed entity whose countdown already reached zero.
func (s *State) HasBledOut() bool {
	return s.Bleeding && s.TimeLeft <= 0
}

// HelperCount returns the number of credited helpers.
func (s *State) HelperCount() int {
	return len(s.Helpers)
}

// HasHelper reports whether helper is credited to this record.
func (s *State) HasHelper(helper EntityID) bool {
	_, ok := s.Helpers[helper]
	return ok
}

func (s *State) addHelper(helper EntityID) {
	if s.Helpers == nil {
		s.Helpers = make(map[EntityID]struct{})
	}
	s.Helpers[helper] = struct{}{}
}

func (s *State) removeHelper(helper EntityID) {
	delete(s.Helpers, helper)
}

// View is an immutable copy of a State, safe to hand to other goroutines.
type View struct {
	ID             EntityID
	Bleeding       bool
	TimeLeft       int
	DownedTime     int
	ReviveProgress float32
	Helpers        []EntityID
	Cause          *damage.Source
}

// View copies the record. Helpers are sorted so views compare stably.
func (s *State) View(id EntityID) View {
	v := View{
		ID:             id,
		Bleeding:       s.Bleeding,
		TimeLeft:       s.TimeLeft,
		DownedTime:     s.DownedTime,
		ReviveProgress: s.ReviveProgress,
	}
	if len(s.Helpers) > 0 {
		v.Helpers = make([]EntityID, 0, len(s.Helpers))
		for h := range s.Helpers {
			v.Helpers = append(v.Helpers, h)
		}
		SortIDs(v.Helpers)
	}
	if s.Cause != nil {
		cause := *s.Cause
		v.Cause = &cause
	}
	return v
}

// SortIDs orders ids by their byte representation.
func SortIDs(ids []EntityID) {
	slices.SortFunc(ids, func(a, b EntityID) int {
		return bytes.Compare(a[:], b[:])
	})
}
