package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTPTimeoutSeconds != int(DefaultHTTPTimeout.Seconds()) {
		t.Errorf("HTTPTimeoutSeconds = %d, want default %d", cfg.HTTPTimeoutSeconds, int(DefaultHTTPTimeout.Seconds()))
	}
}

func TestLoad_StripsCommentsAndParses(t *testing.T) {
	dir := t.TempDir()
	content := `{
		// relocate the agents home for this machine
		"home": "/srv/agentctl",
		/* prefer JSON logs in CI */
		"json_logs": true
	}`
	if err := os.WriteFile(filepath.Join(dir, "config.jsonc"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HomeOverride != "/srv/agentctl" {
		t.Errorf("HomeOverride = %q, want /srv/agentctl", cfg.HomeOverride)
	}
	if !cfg.JSONLogs {
		t.Error("JSONLogs = false, want true")
	}
}

func TestFindConfigPath_PrefersExplicitDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.jsonc"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	path, err := FindConfigPath(dir)
	if err != nil {
		t.Fatalf("FindConfigPath() error = %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("path = %q, want a file under %q", path, dir)
	}
}

func TestFindConfigPath_NoneExistReturnsEmpty(t *testing.T) {
	path, err := FindConfigPath(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("FindConfigPath() error = %v", err)
	}
	if path != "" {
		t.Errorf("path = %q, want empty when nothing exists", path)
	}
}
