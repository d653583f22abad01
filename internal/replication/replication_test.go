package replication

import (
	"testing"

	"github.com/google/uuid"

	"github.com/gqrshy/tacticalrevive/internal/domain/downed"
	"github.com/gqrshy/tacticalrevive/internal/platform/logger"
	"github.com/gqrshy/tacticalrevive/internal/platform/metrics"
	"github.com/gqrshy/tacticalrevive/internal/protocol"
)

type recorder struct {
	got []Snapshot
}

func (r *recorder) Publish(s Snapshot) { r.got = append(r.got, s) }

func TestHeartbeatInterval(t *testing.T) {
	rec := &recorder{}
	b := NewBroadcaster(5, logger.NewNop(), nil, rec)
	id := uuid.New()

	for dt := 1; dt <= 20; dt++ {
		b.Heartbeat(downed.View{ID: id, Bleeding: true, DownedTime: dt, TimeLeft: 1200 - dt})
	}
	if len(rec.got) != 4 {
		t.Fatalf("heartbeats = %d, want 4", len(rec.got))
	}
	if rec.got[0].TimeLeft != 1195 {
		t.Errorf("first heartbeat timeLeft = %d, want 1195", rec.got[0].TimeLeft)
	}

	if b.Heartbeat(downed.View{ID: id, DownedTime: 0}) {
		t.Error("healthy entities never heartbeat")
	}
}

func TestPanickingSinkDoesNotStopOthers(t *testing.T) {
	rec := &recorder{}
	m := metrics.NewCollector()
	b := NewBroadcaster(5, logger.NewNop(), m,
		SinkFunc(func(Snapshot) { panic("observer gone") }),
		rec,
	)
	b.Changed(downed.View{ID: uuid.New(), Bleeding: true, TimeLeft: 10})

	if len(rec.got) != 1 {
		t.Errorf("second sink got %d snapshots, want 1", len(rec.got))
	}
	if m.Snapshot().Replication.Sent != 1 {
		t.Error("expected one sent snapshot")
	}
}

func TestMirrorDiscardsSupersededSnapshot(t *testing.T) {
	m := NewMirror()
	id := uuid.New()

	m.Apply(Snapshot{Target: id, Bleeding: true, TimeLeft: 1200})
	m.Apply(Snapshot{Target: id, Bleeding: true, TimeLeft: 1195, ReviveProgress: 5})

	if m.Apply(Snapshot{Target: id, Bleeding: true, TimeLeft: 1200}) {
		t.Error("late snapshot from earlier in the episode should be discarded")
	}
	s, _ := m.Get(id)
	if s.TimeLeft != 1195 || s.ReviveProgress != 5 {
		t.Errorf("mirror = %+v", s)
	}

	// Duplicate delivery is a no-op overwrite.
	if !m.Apply(s) {
		t.Error("duplicate snapshot should be accepted")
	}
	if got, _ := m.Get(id); got != s {
		t.Errorf("duplicate changed state: %+v", got)
	}
}

func TestMirrorEndsEpisode(t *testing.T) {
	m := NewMirror()
	id := uuid.New()
	m.Apply(Snapshot{Target: id, Bleeding: true, TimeLeft: 3})
	m.Apply(Snapshot{Target: id, Bleeding: false})

	if m.IsBleeding(id) || m.Len() != 0 {
		t.Fatal("not-bleeding snapshot should clear the entry")
	}

	// A new episode starts from a full countdown again.
	if !m.Apply(Snapshot{Target: id, Bleeding: true, TimeLeft: 1200}) {
		t.Error("new episode should be accepted")
	}
}

func TestSnapshotWireConversion(t *testing.T) {
	s := Snapshot{Target: uuid.New(), Bleeding: true, TimeLeft: 500, ReviveProgress: 42}
	u, err := protocol.DecodeUpdate(protocol.EncodeUpdate(s.Update()))
	if err != nil {
		t.Fatal(err)
	}
	if FromUpdate(u) != s {
		t.Errorf("got %+v, want %+v", FromUpdate(u), s)
	}
}
