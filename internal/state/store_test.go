package state

import (
	"os"
	"path/filepath"
	"testing"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return New(dir)
}

func TestReadMeta_AbsentFileReturnsEmpty(t *testing.T) {
	store := setupTestStore(t)

	m, err := store.ReadMeta()
	if err != nil {
		t.Fatalf("ReadMeta() error = %v", err)
	}
	if len(m.Repos) != 0 {
		t.Errorf("ReadMeta() on absent file = %d repos, want 0", len(m.Repos))
	}
}

func TestWriteMeta_ThenReadMetaRoundTrips(t *testing.T) {
	store := setupTestStore(t)

	m := NewMeta()
	m.SetAgentVersion("claude", "1.2.3")
	if err := m.SetRepo(SlotUser, RepoRecord{Source: "gh:alice/cfg", Priority: PriorityUser}); err != nil {
		t.Fatalf("SetRepo() error = %v", err)
	}

	if err := store.WriteMeta(m); err != nil {
		t.Fatalf("WriteMeta() error = %v", err)
	}

	got, err := store.ReadMeta()
	if err != nil {
		t.Fatalf("ReadMeta() error = %v", err)
	}
	if v, ok := got.AgentVersion("claude"); !ok || v != "1.2.3" {
		t.Errorf("AgentVersion(claude) = %q, %v; want 1.2.3, true", v, ok)
	}
	rec, ok := got.GetRepo(SlotUser)
	if !ok || rec.Source != "gh:alice/cfg" {
		t.Errorf("GetRepo(user) = %+v, %v; want source gh:alice/cfg", rec, ok)
	}
}

func TestWriteMeta_IsAtomic(t *testing.T) {
	store := setupTestStore(t)
	if err := store.EnsureLayout(); err != nil {
		t.Fatalf("EnsureLayout() error = %v", err)
	}

	m := NewMeta()
	if err := store.WriteMeta(m); err != nil {
		t.Fatalf("WriteMeta() error = %v", err)
	}

	tmp := store.Layout.MetaPath() + ".tmp"
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Errorf("temp file %s should not remain after WriteMeta()", tmp)
	}
}

func TestReadonlySlot_RejectsOverwrite(t *testing.T) {
	m := NewMeta()
	m.Repos[SlotSystem] = RepoRecord{Source: "gh:agentctl/default-config", Priority: PrioritySystem, Readonly: true}

	err := m.SetRepo(SlotSystem, RepoRecord{Source: "gh:someone/else", Priority: PrioritySystem})
	if err != ErrReadonlySlot {
		t.Errorf("SetRepo(readonly slot) error = %v, want ErrReadonlySlot", err)
	}

	err = m.RemoveRepo(SlotSystem)
	if err != ErrReadonlySlot {
		t.Errorf("RemoveRepo(readonly slot) error = %v, want ErrReadonlySlot", err)
	}
}

func TestReposByPriority_AscendingOrder(t *testing.T) {
	m := NewMeta()
	m.Repos[SlotProject] = RepoRecord{Source: "local:proj", Priority: PriorityProject}
	m.Repos[SlotSystem] = RepoRecord{Source: "gh:agentctl/default-config", Priority: PrioritySystem}
	m.Repos[SlotUser] = RepoRecord{Source: "gh:alice/cfg", Priority: PriorityUser}

	ordered := m.ReposByPriority()
	if len(ordered) != 3 {
		t.Fatalf("ReposByPriority() len = %d, want 3", len(ordered))
	}
	if ordered[0].Slot != SlotSystem || ordered[1].Slot != SlotUser || ordered[2].Slot != SlotProject {
		t.Errorf("ReposByPriority() order = %v", ordered)
	}

	highest, ok := m.HighestPriorityRepo()
	if !ok || highest.Slot != SlotProject {
		t.Errorf("HighestPriorityRepo() = %+v, %v; want project", highest, ok)
	}
}

func TestNextAdditionalPriority(t *testing.T) {
	m := NewMeta()
	m.Repos[SlotSystem] = RepoRecord{Priority: PrioritySystem}
	m.Repos[SlotUser] = RepoRecord{Priority: PriorityUser}
	m.Repos["team"] = RepoRecord{Priority: AdditionalSlotBase}

	if got := m.NextAdditionalPriority(); got != AdditionalSlotBase+1 {
		t.Errorf("NextAdditionalPriority() = %d, want %d", got, AdditionalSlotBase+1)
	}
}

func TestReadMeta_MigratesLegacyYAML(t *testing.T) {
	store := setupTestStore(t)
	if err := store.EnsureLayout(); err != nil {
		t.Fatalf("EnsureLayout() error = %v", err)
	}

	legacy := []byte(`
scopes:
  user:
    source: gh:alice/cfg
    priority: 10
versions:
  claude:
    default: "1.0.0"
`)
	if err := os.WriteFile(store.Layout.MetaPath(), legacy, 0o644); err != nil {
		t.Fatalf("failed writing legacy fixture: %v", err)
	}

	m, err := store.ReadMeta()
	if err != nil {
		t.Fatalf("ReadMeta() error = %v", err)
	}
	rec, ok := m.GetRepo(SlotUser)
	if !ok || rec.Source != "gh:alice/cfg" {
		t.Errorf("migrated GetRepo(user) = %+v, %v", rec, ok)
	}
	if v, ok := m.AgentVersion("claude"); !ok || v != "1.0.0" {
		t.Errorf("migrated AgentVersion(claude) = %q, %v; want 1.0.0, true", v, ok)
	}

	// Migration supersedes the legacy file: a second read sees current format.
	data, err := os.ReadFile(store.Layout.MetaPath())
	if err != nil {
		t.Fatalf("failed reading persisted meta: %v", err)
	}
	if filepath.Ext(store.Layout.MetaPath()) != ".yaml" {
		t.Fatalf("unexpected meta path: %s", store.Layout.MetaPath())
	}
	if len(data) == 0 {
		t.Error("expected migrated meta to be persisted non-empty")
	}
}

func TestReadMeta_MigratesLegacyJSON(t *testing.T) {
	store := setupTestStore(t)
	legacy := []byte(`{"source": "gh:alice/cfg", "branch": "main", "commit": "abc123"}`)
	if err := os.WriteFile(store.Layout.MetaPath(), legacy, 0o644); err != nil {
		t.Fatalf("failed writing legacy fixture: %v", err)
	}

	m, err := store.ReadMeta()
	if err != nil {
		t.Fatalf("ReadMeta() error = %v", err)
	}
	rec, ok := m.GetRepo(SlotUser)
	if !ok || rec.Source != "gh:alice/cfg" || rec.LastCommit != "abc123" {
		t.Errorf("migrated JSON GetRepo(user) = %+v, %v", rec, ok)
	}
}
