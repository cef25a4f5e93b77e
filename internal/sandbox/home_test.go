package sandbox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agentctl/agentctl/internal/agentkind"
	"github.com/agentctl/agentctl/internal/job"
)

func TestPrepareHome_Claude_WritesPermissions(t *testing.T) {
	jobsDir := t.TempDir()
	enabled := true
	spec := job.Spec{
		Name:    "nightly",
		Agent:   agentkind.Claude,
		Mode:    job.ModeEdit,
		Enabled: &enabled,
		Allow:   job.Allow{Tools: []string{"bash", "read"}, Dirs: []string{"~/project"}},
	}
	home := t.TempDir()
	if err := os.MkdirAll(filepath.Join(home, "project"), 0o755); err != nil {
		t.Fatal(err)
	}

	overlay, err := PrepareHome(jobsDir, "nightly", spec, home)
	if err != nil {
		t.Fatalf("PrepareHome() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(overlay, ".claude", "settings.json"))
	if err != nil {
		t.Fatalf("expected settings.json: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "Bash(*)") || !strings.Contains(content, "Read(*)") {
		t.Errorf("settings.json missing mapped tool permissions: %s", content)
	}
	if !strings.Contains(content, "Write(") || !strings.Contains(content, "Edit(") {
		t.Errorf("edit-mode settings.json should include Write/Edit for allow.dirs: %s", content)
	}

	linkPath := filepath.Join(overlay, "project")
	if fi, err := os.Lstat(linkPath); err != nil || fi.Mode()&os.ModeSymlink == 0 {
		t.Errorf("expected symlink at %s", linkPath)
	}
}

func TestPrepareHome_DestroysPreviousOverlay(t *testing.T) {
	jobsDir := t.TempDir()
	enabled := true
	spec := job.Spec{Name: "job1", Agent: agentkind.Gemini, Mode: job.ModePlan, Enabled: &enabled}

	overlay, err := PrepareHome(jobsDir, "job1", spec, t.TempDir())
	if err != nil {
		t.Fatalf("PrepareHome() error = %v", err)
	}
	stale := filepath.Join(overlay, "stale.txt")
	if err := os.WriteFile(stale, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	overlay2, err := PrepareHome(jobsDir, "job1", spec, t.TempDir())
	if err != nil {
		t.Fatalf("PrepareHome() second call error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(overlay2, "stale.txt")); !os.IsNotExist(err) {
		t.Error("expected stale file to be gone after re-prepare")
	}
}

func TestPrepareHome_Codex_WritesValidTOML(t *testing.T) {
	enabled := true
	spec := job.Spec{
		Name:    "sync",
		Agent:   agentkind.Codex,
		Mode:    job.ModePlan,
		Enabled: &enabled,
		Config:  map[string]string{"model": "gpt-5", "retries": "3", "verbose": "true"},
	}
	overlay, err := PrepareHome(t.TempDir(), "sync", spec, t.TempDir())
	if err != nil {
		t.Fatalf("PrepareHome() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(overlay, ".codex", "config.toml"))
	if err != nil {
		t.Fatalf("expected config.toml: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, `approval_mode = "suggest"`) {
		t.Errorf("expected suggest approval mode for plan: %s", content)
	}
	if !strings.Contains(content, "retries = 3") || !strings.Contains(content, "verbose = true") {
		t.Errorf("expected bare numeric/bool scalars: %s", content)
	}
}
