package sync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/agentctl/agentctl/internal/contextx"
	"github.com/agentctl/agentctl/internal/state"
)

type fakeTransport struct {
	commit string
}

func (f fakeTransport) CloneOrPull(source, targetDir, ref string) (string, bool, error) {
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return "", false, err
	}
	return f.commit, true, nil
}
func (f fakeTransport) CurrentCommit(targetDir string) (string, error) { return f.commit, nil }
func (f fakeTransport) Push(targetDir, message string) error           { return nil }

func TestBootstrap_ClonesSystemSlotWhenNoneConfigured(t *testing.T) {
	home := t.TempDir()
	ctx := contextx.New(home, nil)
	if err := ctx.Store.EnsureLayout(); err != nil {
		t.Fatal(err)
	}

	path, err := Bootstrap(ctx, fakeTransport{commit: "abc"}, "")
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if filepath.Base(path) != state.SlotSystem {
		t.Errorf("Bootstrap() path = %q, want the system slot", path)
	}

	meta, err := ctx.Store.ReadMeta()
	if err != nil {
		t.Fatal(err)
	}
	rec, ok := meta.GetRepo(state.SlotSystem)
	if !ok {
		t.Fatal("expected a system repo record after bootstrap")
	}
	if !rec.Readonly {
		t.Error("bootstrapped system slot should be readonly")
	}
	if rec.Priority != state.PrioritySystem {
		t.Errorf("Priority = %d, want %d", rec.Priority, state.PrioritySystem)
	}
}

func TestBootstrap_NoOpWhenAnyRepoAlreadyConfigured(t *testing.T) {
	home := t.TempDir()
	ctx := contextx.New(home, nil)
	if err := ctx.Store.EnsureLayout(); err != nil {
		t.Fatal(err)
	}
	if err := ctx.Store.SetRepo(state.SlotUser, state.RepoRecord{Source: "existing", Priority: state.PriorityUser}); err != nil {
		t.Fatal(err)
	}

	calls := 0
	transport := cloneCountingTransport{count: &calls}
	path, err := Bootstrap(ctx, transport, "")
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if calls != 0 {
		t.Error("Bootstrap() should not clone when a repo is already configured")
	}
	if filepath.Base(path) != state.SlotUser {
		t.Errorf("path = %q, want the already-configured user slot", path)
	}
}

type cloneCountingTransport struct {
	count *int
}

func (c cloneCountingTransport) CloneOrPull(source, targetDir, ref string) (string, bool, error) {
	*c.count++
	return "x", true, nil
}
func (c cloneCountingTransport) CurrentCommit(targetDir string) (string, error) { return "x", nil }
func (c cloneCountingTransport) Push(targetDir, message string) error           { return nil }
