package runindex

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentctl/agentctl/internal/sandbox"
)

func TestUpsertAndHistory_NewestFirst(t *testing.T) {
	idx, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer idx.Close()

	older := sandbox.RunMeta{JobName: "nightly", RunID: "2026-01-01T00-00-00Z", Agent: "claude", Status: sandbox.StatusCompleted, StartedAt: "2026-01-01T00:00:00Z"}
	newer := sandbox.RunMeta{JobName: "nightly", RunID: "2026-01-02T00-00-00Z", Agent: "claude", Status: sandbox.StatusRunning, StartedAt: "2026-01-02T00:00:00Z"}
	if err := idx.Upsert(older); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := idx.Upsert(newer); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	history, err := idx.History("nightly", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("History() returned %d rows, want 2", len(history))
	}
	if history[0].RunID != newer.RunID {
		t.Errorf("History()[0].RunID = %q, want the newer run first", history[0].RunID)
	}
}

func TestUpsert_OverwritesOnConflict(t *testing.T) {
	idx, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer idx.Close()

	pid := 123
	running := sandbox.RunMeta{JobName: "j", RunID: "r1", Agent: "claude", PID: &pid, Status: sandbox.StatusRunning, StartedAt: "2026-01-01T00:00:00Z"}
	if err := idx.Upsert(running); err != nil {
		t.Fatal(err)
	}
	completedAt := "2026-01-01T00:05:00Z"
	exitCode := 0
	done := running
	done.Status = sandbox.StatusCompleted
	done.CompletedAt = &completedAt
	done.ExitCode = &exitCode
	if err := idx.Upsert(done); err != nil {
		t.Fatal(err)
	}

	history, err := idx.History("j", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Fatalf("History() returned %d rows, want 1 (upsert should overwrite, not duplicate)", len(history))
	}
	if history[0].Status != sandbox.StatusCompleted {
		t.Errorf("Status = %q, want completed after upsert", history[0].Status)
	}
}

func TestRebuild_WalksRunsDirectory(t *testing.T) {
	runsDir := t.TempDir()
	runDir := filepath.Join(runsDir, "nightly", "2026-01-01T00-00-00Z")
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		t.Fatal(err)
	}
	m := sandbox.RunMeta{JobName: "nightly", RunID: "2026-01-01T00-00-00Z", Agent: "claude", Status: sandbox.StatusCompleted, StartedAt: time.Now().UTC().Format(time.RFC3339)}
	if err := sandbox.WriteMeta(runDir, m); err != nil {
		t.Fatal(err)
	}

	idx, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer idx.Close()

	if err := idx.Rebuild(runsDir); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	history, err := idx.History("nightly", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Fatalf("History() after Rebuild() returned %d rows, want 1", len(history))
	}
}

func TestRebuild_MissingRunsDirIsNotAnError(t *testing.T) {
	idx, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer idx.Close()
	if err := idx.Rebuild(filepath.Join(t.TempDir(), "does-not-exist")); err != nil {
		t.Errorf("Rebuild() on a missing directory should be a no-op, got %v", err)
	}
}
