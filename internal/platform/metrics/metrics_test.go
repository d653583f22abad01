package metrics

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.RecordTick(time.Millisecond, 3)
	c.RecordSuppressed("grace-window")
	c.RecordSnapshot(true)
	c.RecordEventWrite(time.Millisecond, errors.New("disk full"))

	if s := c.Snapshot(); s.Tick.Count != 0 {
		t.Errorf("nil collector snapshot should be empty, got %+v", s.Tick)
	}
}

func TestSnapshotAggregates(t *testing.T) {
	c := NewCollector()
	c.RecordTick(2*time.Millisecond, 1)
	c.RecordTick(4*time.Millisecond, 2)
	c.RecordKnockOut()
	c.RecordRevive()
	c.RecordSuppressed("grace-window")
	c.RecordSuppressed("grace-window")
	c.RecordSuppressed("double-fire")
	c.RecordSnapshot(false)
	c.RecordSnapshot(true)

	s := c.Snapshot()
	if s.Tick.Count != 2 || s.Tick.Downed != 2 {
		t.Errorf("tick = %+v", s.Tick)
	}
	if s.Tick.AvgLatencyMs != 3 || s.Tick.MaxLatencyMs != 4 {
		t.Errorf("latency avg=%v max=%v", s.Tick.AvgLatencyMs, s.Tick.MaxLatencyMs)
	}
	if s.Lifecycle.Suppressed["grace-window"] != 2 || s.Lifecycle.Suppressed["double-fire"] != 1 {
		t.Errorf("suppressed = %v", s.Lifecycle.Suppressed)
	}
	if s.Replication.Sent != 1 || s.Replication.Dropped != 1 {
		t.Errorf("replication = %+v", s.Replication)
	}
}

func TestHandlers(t *testing.T) {
	c := NewCollector()
	c.RecordTermination()
	c.RecordSuppressed("downed")

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))
	var s Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.Lifecycle.Terminations != 1 {
		t.Errorf("terminations = %d, want 1", s.Lifecycle.Terminations)
	}

	rec = httptest.NewRecorder()
	c.PrometheusHandler()(rec, httptest.NewRequest("GET", "/metrics/prometheus", nil))
	body := rec.Body.String()
	if !strings.Contains(body, "revive_terminations_total 1") {
		t.Errorf("missing termination counter in:\n%s", body)
	}
	if !strings.Contains(body, `revive_suppressed_hits_total{reason="downed"} 1`) {
		t.Errorf("missing suppressed counter in:\n%s", body)
	}
}
