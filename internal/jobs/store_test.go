package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustCreate(t *testing.T, s *Store, source string, createdAt time.Time) *Job {
	t.Helper()
	j, err := NewJob(CreateParams{Source: source})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	j.CreatedAt = createdAt.UTC()
	if err := s.Create(context.Background(), j); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return j
}

func TestStore_CreateGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	two := 2
	j, err := NewJob(CreateParams{Source: "/tmp/a.wav", Model: "Small", Diarize: true, MaxSpeakers: &two})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if err := s.Create(ctx, j); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Get(ctx, j.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusQueued {
		t.Fatalf("status = %s, want queued", got.Status)
	}
	if got.ModelConfig != "small" || !got.DiarizeRequested {
		t.Fatalf("unexpected params: model=%s diarize=%v", got.ModelConfig, got.DiarizeRequested)
	}
	if got.MaxSpeakers == nil || *got.MaxSpeakers != 2 || got.MinSpeakers != nil {
		t.Fatalf("unexpected speaker hints: %v %v", got.MinSpeakers, got.MaxSpeakers)
	}
	if got.StartedAt != nil || got.ResultText != nil {
		t.Fatalf("expected empty run fields")
	}
}

func TestStore_CreateDuplicateID(t *testing.T) {
	s := openTestStore(t)
	j := mustCreate(t, s, "/tmp/a.wav", time.Now())

	dup := &Job{ID: j.ID, Status: StatusQueued, Source: "/tmp/b.wav", ModelConfig: "base"}
	if err := s.Create(context.Background(), dup); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_UpdateMissing(t *testing.T) {
	s := openTestStore(t)
	j := &Job{ID: "01J0000000000000000000000X", Status: StatusQueued}
	if err := s.Update(context.Background(), j); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_UpdateKeepsRequestParams(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	j := mustCreate(t, s, "/tmp/a.wav", time.Now())

	// a stale copy with tampered request fields must not leak into the row
	j.Source = "/tmp/other.wav"
	j.ModelConfig = "large"
	now := time.Now().UTC()
	j.Status = StatusProcessing
	j.StartedAt = &now
	if err := s.Update(ctx, j); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.Get(ctx, j.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Source != "/tmp/a.wav" || got.ModelConfig != "base" {
		t.Fatalf("request params changed: %s %s", got.Source, got.ModelConfig)
	}
	if got.Status != StatusProcessing || got.StartedAt == nil {
		t.Fatalf("run fields not written: %s %v", got.Status, got.StartedAt)
	}

	// clearing a field writes NULL
	got.StartedAt = nil
	got.Status = StatusQueued
	if err := s.Update(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	again, _ := s.Get(ctx, j.ID)
	if again.StartedAt != nil {
		t.Fatalf("expected started_at cleared, got %v", again.StartedAt)
	}
}

func TestStore_ActionableOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	c := mustCreate(t, s, "c", base.Add(3*time.Second))
	a := mustCreate(t, s, "a", base.Add(1*time.Second))
	done := mustCreate(t, s, "done", base)
	b := mustCreate(t, s, "b", base.Add(2*time.Second))

	done.Status = StatusCompleted
	if err := s.Update(ctx, done); err != nil {
		t.Fatalf("update: %v", err)
	}
	b.Status = StatusDownloading
	if err := s.Update(ctx, b); err != nil {
		t.Fatalf("update: %v", err)
	}

	list, err := s.ListActionable(ctx)
	if err != nil {
		t.Fatalf("list actionable: %v", err)
	}
	want := []string{a.ID, b.ID, c.ID}
	if len(list) != len(want) {
		t.Fatalf("got %d actionable jobs, want %d", len(list), len(want))
	}
	for i, id := range want {
		if list[i].ID != id {
			t.Fatalf("position %d: got %s (%s), want %s", i, list[i].ID, list[i].Source, id)
		}
	}

	next, err := s.NextActionable(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if next == nil || next.ID != a.ID {
		t.Fatalf("next = %v, want %s", next, a.ID)
	}
}

func TestStore_SameTimestampUsesIDOrder(t *testing.T) {
	s := openTestStore(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	first := mustCreate(t, s, "first", at)
	second := mustCreate(t, s, "second", at)

	next, err := s.NextActionable(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if next.ID != first.ID {
		t.Fatalf("next = %s, want %s (second=%s)", next.ID, first.ID, second.ID)
	}
}

func TestStore_NextActionableEmpty(t *testing.T) {
	s := openTestStore(t)
	next, err := s.NextActionable(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if next != nil {
		t.Fatalf("expected nil, got %+v", next)
	}
}

func TestStore_ListAllNewestFirstWithFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	old := mustCreate(t, s, "old", base)
	mid := mustCreate(t, s, "mid", base.Add(time.Minute))
	newest := mustCreate(t, s, "new", base.Add(2*time.Minute))

	mid.Status = StatusError
	msg := "boom"
	mid.ErrorMessage = &msg
	if err := s.Update(ctx, mid); err != nil {
		t.Fatalf("update: %v", err)
	}

	all, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 || all[0].ID != newest.ID || all[2].ID != old.ID {
		t.Fatalf("unexpected order: %+v", all)
	}

	queued, err := s.ListAll(ctx, StatusQueued)
	if err != nil {
		t.Fatalf("list queued: %v", err)
	}
	if len(queued) != 2 {
		t.Fatalf("got %d queued, want 2", len(queued))
	}
	for _, j := range queued {
		if j.Status != StatusQueued {
			t.Fatalf("filter leaked status %s", j.Status)
		}
	}
}

func TestStore_ReopenKeepsJobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "jobs.db")
	s, err := OpenStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	j := mustCreate(t, s, "/tmp/a.wav", time.Now())
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := OpenStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if _, err := s2.Get(context.Background(), j.ID); err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
}
