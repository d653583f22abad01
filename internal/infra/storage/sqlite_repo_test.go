package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gqrshy/tacticalrevive/internal/events"
	"github.com/gqrshy/tacticalrevive/internal/persistence"
	"github.com/gqrshy/tacticalrevive/internal/platform/optimization"
)

func openTestDB(t *testing.T) *SQLiteEventRepository {
	t.Helper()
	db, err := InitSQLite(filepath.Join(t.TempDir(), "nested", "revive.db"), optimization.LowResourceConfig())
	if err != nil {
		t.Fatalf("init sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLiteEventRepository(db)
}

func TestDocumentRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := InitSQLite(filepath.Join(t.TempDir(), "revive.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	repo := NewSQLiteDocumentRepository(db)
	id := uuid.New()

	if _, found, err := repo.Load(ctx, id); err != nil || found {
		t.Fatalf("empty load: found=%v err=%v", found, err)
	}

	want := persistence.Record{Bleeding: true, TimeLeft: 500, DownedTime: 10, ReviveProgress: 42}
	if err := persistence.Save(ctx, repo, id, want); err != nil {
		t.Fatal(err)
	}
	got, err := persistence.Load(ctx, repo, id)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("loaded %+v, want %+v", got, want)
	}

	// Overwrite in place.
	if err := persistence.Save(ctx, repo, id, persistence.Record{}); err != nil {
		t.Fatal(err)
	}
	ids, err := repo.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != id {
		t.Errorf("List = %v", ids)
	}
	if got, _ := persistence.Load(ctx, repo, id); got.Bleeding {
		t.Error("expected healthy record after overwrite")
	}
}

func TestEventRepositoryQueries(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t)
	a, h := uuid.NewString(), uuid.NewString()
	base := time.Now()

	for i, e := range []EventRecord{
		{ID: "1", EventType: string(events.EventTypeDowned), ActorID: "SYSTEM", TargetID: a, Payload: map[string]any{"cause": "mob_attack"}},
		{ID: "2", EventType: string(events.EventTypeHelperAssigned), ActorID: h, TargetID: a},
		{ID: "3", EventType: string(events.EventTypeRevived), ActorID: "SYSTEM", TargetID: a},
		{ID: "4", EventType: string(events.EventTypeDowned), ActorID: "SYSTEM", TargetID: uuid.NewString()},
	} {
		e.Timestamp = base.Add(time.Duration(i) * time.Second)
		e.Tick = int64(i)
		if err := repo.Append(ctx, e); err != nil {
			t.Fatalf("append %s: %v", e.ID, err)
		}
	}

	got, err := repo.GetByEntity(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].ID != "1" || got[2].ID != "3" {
		t.Fatalf("GetByEntity = %+v", got)
	}
	if got[0].Payload["cause"] != "mob_attack" {
		t.Errorf("payload = %v", got[0].Payload)
	}

	asHelper, _ := repo.GetByEntity(ctx, h)
	if len(asHelper) != 1 {
		t.Errorf("helper events = %d, want 1", len(asHelper))
	}

	recent, err := repo.GetRecent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].ID != "4" {
		t.Errorf("GetRecent = %+v", recent)
	}
}

func TestPersisterAndReconstructor(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t)
	p := NewEventPersister(repo)
	a, h := uuid.NewString(), uuid.NewString()

	seq := []events.Event{
		{Type: events.EventTypeDowned, ActorID: "SYSTEM", TargetID: a, Payload: events.DownedPayload{Cause: "tacz:bullet", TimeLeft: 1200}},
		{Type: events.EventTypeHelperAssigned, ActorID: h, TargetID: a},
		{Type: events.EventTypeRevived, ActorID: "SYSTEM", TargetID: a, Payload: events.ExitPayload{ReviveProgress: 100}},
		{Type: events.EventTypeDowned, ActorID: "SYSTEM", TargetID: a},
		{Type: events.EventTypeGiveUp, ActorID: a, TargetID: a},
		{Type: events.EventTypeTerminated, ActorID: "SYSTEM", TargetID: a},
	}
	base := time.Now()
	for i, e := range seq {
		e.ID = events.GenerateEventID()
		e.Timestamp = base.Add(time.Duration(i) * time.Millisecond)
		e.Tick = int64(i)
		if err := p.Append(e); err != nil {
			t.Fatalf("persist: %v", err)
		}
	}

	r := NewReconstructor(repo)
	recap, err := r.Rebuild(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if recap.Downs != 2 || recap.Revives != 1 || recap.Deaths != 1 || recap.GiveUps != 1 || recap.HelpsGot != 1 {
		t.Errorf("recap = %+v", recap)
	}
	if recap.CurrentlyDown {
		t.Error("entity should not be down after termination")
	}

	helper, _ := r.Rebuild(ctx, h)
	if helper.HelpsGiven != 1 {
		t.Errorf("helper recap = %+v", helper)
	}

	timeline, err := r.Timeline(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if len(timeline) != len(seq) {
		t.Fatalf("timeline = %d entries", len(timeline))
	}
	if timeline[0].Summary != "Downed by tacz:bullet." {
		t.Errorf("summary = %q", timeline[0].Summary)
	}
	if timeline[2].Impact != "POSITIVE" {
		t.Errorf("revive impact = %q", timeline[2].Impact)
	}
}

func TestToRecordWrapsScalarPayload(t *testing.T) {
	rec, err := ToRecord(events.Event{ID: "x", Type: events.EventTypeRestored, Payload: 42})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := rec.Payload["value"]; !ok {
		t.Errorf("payload = %v", rec.Payload)
	}
}
