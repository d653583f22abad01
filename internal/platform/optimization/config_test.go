package optimization

import (
	"testing"

	"github.com/gqrshy/tacticalrevive/internal/platform/metrics"
)

func TestForProfile(t *testing.T) {
	for _, name := range []string{"", "default", "stress", "low"} {
		if _, err := ForProfile(name); err != nil {
			t.Errorf("profile %q: %v", name, err)
		}
	}
	if _, err := ForProfile("turbo"); err == nil {
		t.Error("expected unknown profile error")
	}
}

func TestAnalyzeDroppedCommands(t *testing.T) {
	var s metrics.Snapshot
	s.Commands.Dropped = 3
	s.Tick.MaxLatencyMs = 80

	rec := Analyze(s, 50)
	if !rec.IncreaseCommandBuffer {
		t.Error("expected command buffer increase")
	}
	if len(rec.Notes) != 2 {
		t.Errorf("notes = %v", rec.Notes)
	}

	cfg := LowResourceConfig()
	ApplyRecommendations(cfg, rec)
	if cfg.CommandQueueBuffer != 128 {
		t.Errorf("command buffer = %d, want 128", cfg.CommandQueueBuffer)
	}
}

func TestAnalyzeHealthy(t *testing.T) {
	var s metrics.Snapshot
	s.Tick.MaxLatencyMs = 5
	if rec := Analyze(s, 50); len(rec.Notes) != 0 {
		t.Errorf("expected no notes, got %v", rec.Notes)
	}
}
