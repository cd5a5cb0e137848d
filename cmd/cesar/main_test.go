package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/suPer8Hu/cesar/internal/jobs"
)

func run(t *testing.T, db string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--db", db}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSubmitListStatus(t *testing.T) {
	db := filepath.Join(t.TempDir(), "jobs.db")

	out, err := run(t, db, "submit", "--model", "small", "-d", "--max-speakers", "2", "talk.wav")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	id := strings.TrimSpace(out)
	if len(id) != 26 {
		t.Fatalf("submit printed %q", out)
	}

	out, err = run(t, db, "list", "--status", "queued")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "queued") {
		t.Fatalf("list output:\n%s", out)
	}

	out, err = run(t, db, "status", id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, `"model_config": "small"`) || !strings.Contains(out, `"max_speakers": 2`) {
		t.Fatalf("status output:\n%s", out)
	}
	if !strings.Contains(out, filepath.Join(mustAbs(t, "."), "talk.wav")) {
		t.Fatalf("local source should be stored as an absolute path:\n%s", out)
	}
}

func TestSubmitRejectsBadModel(t *testing.T) {
	db := filepath.Join(t.TempDir(), "jobs.db")
	if _, err := run(t, db, "submit", "--model", "huge", "https://example.com/a.mp3"); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestRetryOnlyFromPartial(t *testing.T) {
	db := filepath.Join(t.TempDir(), "jobs.db")
	out, err := run(t, db, "submit", "https://example.com/a.mp3")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	id := strings.TrimSpace(out)

	if _, err := run(t, db, "retry", id); err == nil || !strings.Contains(err.Error(), "cannot retry") {
		t.Fatalf("retry of a queued job should fail, got %v", err)
	}

	store, err := jobs.OpenStore(db)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	j, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	j.Status = jobs.StatusPartial
	if err := store.Update(context.Background(), j); err != nil {
		t.Fatalf("update: %v", err)
	}
	_ = store.Close()

	out, err = run(t, db, "retry", id)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if strings.TrimSpace(out) != id+" queued" {
		t.Fatalf("retry output %q", out)
	}
}

func TestListRejectsUnknownStatus(t *testing.T) {
	db := filepath.Join(t.TempDir(), "jobs.db")
	if _, err := run(t, db, "list", "--status", "done"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

func TestTokenNeedsSecret(t *testing.T) {
	t.Setenv("CESAR_API_SECRET", "")
	db := filepath.Join(t.TempDir(), "jobs.db")
	if _, err := run(t, db, "token"); err == nil {
		t.Fatalf("expected error without secret")
	}

	t.Setenv("CESAR_API_SECRET", "k")
	out, err := run(t, db, "token", "--subject", "ops")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if strings.Count(strings.TrimSpace(out), ".") != 2 {
		t.Fatalf("token output %q", out)
	}
}

func mustAbs(t *testing.T, p string) string {
	t.Helper()
	abs, err := filepath.Abs(p)
	if err != nil {
		t.Fatalf("abs: %v", err)
	}
	return abs
}
