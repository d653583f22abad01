package simulation

import (
	"errors"
	"fmt"
	"slices"

	"github.com/gqrshy/tacticalrevive/internal/config"
	"github.com/gqrshy/tacticalrevive/internal/domain/downed"
	"github.com/gqrshy/tacticalrevive/internal/events"
	"github.com/gqrshy/tacticalrevive/internal/persistence"
	"github.com/gqrshy/tacticalrevive/internal/replication"
)

// Scenarios returns the reference scenarios A to F.
func Scenarios() []Scenario {
	return []Scenario{
		{
			Name:        "A-expiry",
			Description: "an unhelped downed entity dies exactly when the countdown ends",
			Configure:   func(cfg *config.Revive) { cfg.BleedingTimeTicks = 1200 },
			Run:         scenarioExpiry,
		},
		{
			Name:        "B-revive",
			Description: "one helper revives after exactly requiredProgress ticks",
			Configure: func(cfg *config.Revive) {
				cfg.RequiredProgress = 100
				cfg.ProgressPerHelper = 1
			},
			Run: scenarioRevive,
		},
		{
			Name:        "C-helper-pruning",
			Description: "a helper moving out of range stops accrual and resets progress",
			Configure: func(cfg *config.Revive) {
				cfg.MaxHelperDistance = 3.0
				cfg.ResetProgressOnHelperLoss = true
			},
			Run: scenarioPruning,
		},
		{
			Name:        "D-global-uniqueness",
			Description: "a helper switching targets is held by exactly one of them",
			Run:         scenarioUniqueness,
		},
		{
			Name:        "E-reentrant-termination",
			Description: "a nested terminate applies lethal damage and broadcasts once",
			Run:         scenarioReentrant,
		},
		{
			Name:        "F-persistence-round-trip",
			Description: "a saved record decodes exactly and helpers come back empty",
			Run:         scenarioRoundTrip,
		},
	}
}

// pair spawns a target at the origin and a second entity at x.
func pair(a *Arena, x float64) (target, other downed.EntityID, err error) {
	if target, err = a.Spawn(0); err != nil {
		return
	}
	other, err = a.Spawn(x)
	return
}

func scenarioExpiry(a *Arena) error {
	target, _, err := pair(a, 50)
	if err != nil {
		return err
	}
	if err := a.KnockOut(target); err != nil {
		return err
	}

	total := a.Config.BleedingTimeTicks
	a.Step(total - 1)
	if !a.Engine.IsBleeding(target) {
		return fmt.Errorf("terminated before tick %d", total)
	}
	a.Step(1)

	if a.Engine.IsBleeding(target) {
		return fmt.Errorf("still bleeding after %d ticks", total)
	}
	if n := a.Count(events.EventTypeTerminated, target); n != 1 {
		return fmt.Errorf("terminate fired %d times, want 1", n)
	}
	if info, _ := a.World.Info(target); !info.Dead {
		return errors.New("entity survived the bleed-out")
	}
	return nil
}

func scenarioRevive(a *Arena) error {
	target, helper, err := pair(a, 2)
	if err != nil {
		return err
	}
	if err := a.KnockOut(target); err != nil {
		return err
	}
	if err := a.Engine.Manager().AssignHelper(target, helper); err != nil {
		return err
	}

	need := int(a.Config.RequiredProgress / a.Config.ProgressPerHelper)
	a.Step(need - 1)
	if !a.Engine.IsBleeding(target) {
		return fmt.Errorf("revived before tick %d", need)
	}
	a.Step(1)

	if a.Engine.IsBleeding(target) {
		return fmt.Errorf("not revived at tick %d", need)
	}
	revived := a.Engine.EventLog().GetByType(events.EventTypeRevived)
	if len(revived) != 1 || revived[0].Tick != int64(need) {
		return fmt.Errorf("revive events = %+v, want one at tick %d", revived, need)
	}
	exit, ok := revived[0].Payload.(events.ExitPayload)
	if !ok || exit.ReviveProgress != a.Config.RequiredProgress {
		return fmt.Errorf("exit payload = %+v", revived[0].Payload)
	}
	info, _ := a.World.Info(target)
	if info.Health != a.Config.HealthAfterRevive {
		return fmt.Errorf("health = %v, want %v", info.Health, a.Config.HealthAfterRevive)
	}
	return nil
}

func scenarioPruning(a *Arena) error {
	target, helper, err := pair(a, 2.9)
	if err != nil {
		return err
	}
	if err := a.KnockOut(target); err != nil {
		return err
	}
	if err := a.Engine.Manager().AssignHelper(target, helper); err != nil {
		return err
	}

	a.Step(1)
	before := a.Engine.View(target).ReviveProgress
	if before <= 0 {
		return errors.New("helper in range accrued nothing")
	}

	if err := a.World.Move(helper, downed.Position{X: 3.1}); err != nil {
		return err
	}
	a.Step(1)

	v := a.Engine.View(target)
	if len(v.Helpers) != 0 {
		return fmt.Errorf("out-of-range helper kept: %v", v.Helpers)
	}
	if v.ReviveProgress != 0 {
		return fmt.Errorf("progress = %v, want reset to 0", v.ReviveProgress)
	}
	return nil
}

func scenarioUniqueness(a *Arena) error {
	targetA, helper, err := pair(a, 1)
	if err != nil {
		return err
	}
	targetB, err := a.Spawn(2)
	if err != nil {
		return err
	}
	for _, id := range []downed.EntityID{targetA, targetB} {
		if err := a.KnockOut(id); err != nil {
			return err
		}
	}

	m := a.Engine.Manager()
	if err := m.AssignHelper(targetA, helper); err != nil {
		return err
	}
	if err := m.AssignHelper(targetB, helper); err != nil {
		return err
	}

	if slices.Contains(a.Engine.View(targetA).Helpers, helper) {
		return errors.New("helper still listed on its old target")
	}
	if !slices.Contains(a.Engine.View(targetB).Helpers, helper) {
		return errors.New("helper missing from its new target")
	}
	occurrences := 0
	for _, id := range []downed.EntityID{targetA, targetB} {
		for _, h := range a.Engine.View(id).Helpers {
			if h == helper {
				occurrences++
			}
		}
	}
	if occurrences != 1 {
		return fmt.Errorf("helper held %d times, want 1", occurrences)
	}
	return nil
}

func scenarioReentrant(a *Arena) error {
	target, _, err := pair(a, 50)
	if err != nil {
		return err
	}
	if err := a.KnockOut(target); err != nil {
		return err
	}
	m := a.Engine.Manager()

	// The exit broadcast fires while the termination is still running; a
	// subscriber reacting to it triggers the nested call.
	nested := 0
	a.OnSnapshot = func(s replication.Snapshot) {
		if s.Target == target && !s.Bleeding && nested == 0 {
			nested++
			m.Terminate(target)
			m.KnockOut(target, nil)
		}
	}

	if !m.Terminate(target) {
		return errors.New("first terminate was refused")
	}
	if m.Terminate(target) {
		return errors.New("second terminate ran")
	}
	a.OnSnapshot = nil

	if nested != 1 {
		return fmt.Errorf("nested trigger ran %d times", nested)
	}
	if n := a.World.Deaths(); n != 1 {
		return fmt.Errorf("lethal damage applied %d times", n)
	}
	exits := 0
	for _, s := range a.Snapshots(target) {
		if !s.Bleeding {
			exits++
		}
	}
	if exits != 1 {
		return fmt.Errorf("%d exit broadcasts, want 1", exits)
	}
	if a.Engine.IsBleeding(target) {
		return errors.New("nested knock-out re-downed a dying entity")
	}
	if n := a.Engine.Terminating(); n != 0 {
		return fmt.Errorf("guard set holds %d entries", n)
	}
	return nil
}

func scenarioRoundTrip(a *Arena) error {
	target, helper, err := pair(a, 1)
	if err != nil {
		return err
	}
	if err := a.KnockOut(target); err != nil {
		return err
	}
	if err := a.Engine.Manager().AssignHelper(target, helper); err != nil {
		return err
	}

	want := persistence.Record{Bleeding: true, TimeLeft: 500, DownedTime: 10, ReviveProgress: 42.0}
	doc := persistence.Document{}
	if err := doc.Put(want); err != nil {
		return err
	}
	b, err := doc.Encode()
	if err != nil {
		return err
	}
	decoded, err := persistence.DecodeDocument(b)
	if err != nil {
		return err
	}
	got, err := decoded.ReadRecord()
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("decoded %+v, want %+v", got, want)
	}

	a.Engine.Adopt(target, got)
	v := a.Engine.View(target)
	if !v.Bleeding || v.TimeLeft != 500 || v.DownedTime != 10 || v.ReviveProgress != 42 {
		return fmt.Errorf("adopted view = %+v", v)
	}
	if len(v.Helpers) != 0 {
		return fmt.Errorf("helpers after load = %v, want none", v.Helpers)
	}
	return nil
}
