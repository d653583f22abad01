package simulation

import (
	"context"
	"errors"
	"testing"

	"github.com/gqrshy/tacticalrevive/internal/config"
)

func TestReferenceScenariosPass(t *testing.T) {
	results := NewRunner(config.DefaultRevive(), nil).Run(context.Background(), Scenarios())
	if len(results) != 6 {
		t.Fatalf("ran %d scenarios, want 6", len(results))
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("%s: %s", r.Scenario, r.Reason)
		}
	}
}

func TestScenariosHoldWithHaltedCountdown(t *testing.T) {
	cfg := config.DefaultRevive()
	cfg.HaltCountdownWhileHelped = true
	for _, r := range NewRunner(cfg, nil).Run(context.Background(), Scenarios()) {
		if !r.Passed {
			t.Errorf("%s: %s", r.Scenario, r.Reason)
		}
	}
}

func TestRunnerReportsFailuresAndPanics(t *testing.T) {
	scenarios := []Scenario{
		{Name: "fails", Run: func(*Arena) error { return errors.New("nope") }},
		{Name: "panics", Run: func(*Arena) error { panic("boom") }},
		{Name: "passes", Run: func(a *Arena) error { a.Step(3); return nil }},
	}
	results := NewRunner(config.DefaultRevive(), nil).Run(context.Background(), scenarios)

	passed, failed := Summary(results)
	if passed != 1 || failed != 2 {
		t.Fatalf("passed=%d failed=%d", passed, failed)
	}
	if results[0].Reason != "nope" || results[1].Reason != "panic: boom" {
		t.Errorf("reasons = %q, %q", results[0].Reason, results[1].Reason)
	}
	if results[2].Ticks != 3 {
		t.Errorf("ticks = %d", results[2].Ticks)
	}
}

func TestRunnerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if results := NewRunner(config.DefaultRevive(), nil).Run(ctx, Scenarios()); len(results) != 0 {
		t.Errorf("ran %d scenarios after cancel", len(results))
	}
}
