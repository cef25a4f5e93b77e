package sync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/agentctl/agentctl/internal/contextx"
)

func newTestSyncCtx(t *testing.T) *contextx.Context {
	t.Helper()
	home := t.TempDir()
	ctx := contextx.New(home, nil)
	if err := ctx.Store.EnsureLayout(); err != nil {
		t.Fatal(err)
	}
	return ctx
}

func TestSync_InstallsNewItemsWithoutPrompting(t *testing.T) {
	ctx := newTestSyncCtx(t)
	repo := t.TempDir()
	writeFile(t, filepath.Join(repo, "shared", "commands", "deploy.md"), "deploy body")

	result, err := Sync(ctx, repo, nil, Options{})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if len(result.Installed) != 1 || result.Installed[0].Name != "deploy" {
		t.Fatalf("Installed = %+v, want exactly the new deploy command", result.Installed)
	}
	if _, err := os.Stat(filepath.Join(ctx.Store.Layout.Commands(), "deploy.md")); err != nil {
		t.Errorf("expected deploy.md to be installed: %v", err)
	}
}

func TestSync_DryRunInstallsNothing(t *testing.T) {
	ctx := newTestSyncCtx(t)
	repo := t.TempDir()
	writeFile(t, filepath.Join(repo, "shared", "commands", "deploy.md"), "deploy body")

	result, err := Sync(ctx, repo, nil, Options{DryRun: true})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if len(result.Installed) != 1 {
		t.Fatalf("dry-run Installed = %+v, want one recorded (but not applied) change", result.Installed)
	}
	if _, err := os.Stat(filepath.Join(ctx.Store.Layout.Commands(), "deploy.md")); !os.IsNotExist(err) {
		t.Error("dry-run should not write anything to disk")
	}
}

func TestSync_DriftedItem_ForceOverwrites(t *testing.T) {
	ctx := newTestSyncCtx(t)
	repo := t.TempDir()
	writeFile(t, filepath.Join(repo, "shared", "commands", "deploy.md"), "new body")
	writeFile(t, filepath.Join(ctx.Store.Layout.Commands(), "deploy.md"), "old body")

	result, err := Sync(ctx, repo, nil, Options{Force: true})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if len(result.Installed) != 1 {
		t.Fatalf("Installed = %+v, want the drifted item overwritten", result.Installed)
	}
	data, _ := os.ReadFile(filepath.Join(ctx.Store.Layout.Commands(), "deploy.md"))
	if string(data) != "new body" {
		t.Errorf("content = %q, want overwritten to %q", data, "new body")
	}
}

func TestSync_DriftedItem_YesSkips(t *testing.T) {
	ctx := newTestSyncCtx(t)
	repo := t.TempDir()
	writeFile(t, filepath.Join(repo, "shared", "commands", "deploy.md"), "new body")
	writeFile(t, filepath.Join(ctx.Store.Layout.Commands(), "deploy.md"), "old body")

	result, err := Sync(ctx, repo, nil, Options{Yes: true})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if len(result.Skipped) != 1 {
		t.Fatalf("Skipped = %+v, want the drifted item skipped", result.Skipped)
	}
	data, _ := os.ReadFile(filepath.Join(ctx.Store.Layout.Commands(), "deploy.md"))
	if string(data) != "old body" {
		t.Errorf("content = %q, want left untouched", data)
	}
}

func TestSync_CancelAll_StopsBeforeDrifted(t *testing.T) {
	ctx := newTestSyncCtx(t)
	repo := t.TempDir()
	writeFile(t, filepath.Join(repo, "shared", "commands", "deploy.md"), "new body")
	writeFile(t, filepath.Join(ctx.Store.Layout.Commands(), "deploy.md"), "old body")

	result, err := Sync(ctx, repo, nil, Options{Prompt: func(Change) Decision { return DecisionCancel }})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if !result.Canceled {
		t.Error("Canceled = false, want true")
	}
	data, _ := os.ReadFile(filepath.Join(ctx.Store.Layout.Commands(), "deploy.md"))
	if string(data) != "old body" {
		t.Errorf("content = %q, a canceled sync must not apply the drifted item", data)
	}
}
