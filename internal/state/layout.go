// Package state implements Component A (the State Store): the single
// persisted Meta document and the fixed on-disk layout rooted at the agents
// home directory.
package state

import (
	"os"
	"path/filepath"
)

// Layout is the fixed directory tree rooted at the agents home.
type Layout struct {
	Home string
}

// NewLayout resolves a Layout for the given agents-home root.
func NewLayout(home string) Layout {
	return Layout{Home: home}
}

func (l Layout) Repos() string    { return filepath.Join(l.Home, "repos") }
func (l Layout) Packages() string { return filepath.Join(l.Home, "packages") }
func (l Layout) Shims() string    { return filepath.Join(l.Home, "shims") }
func (l Layout) Commands() string { return filepath.Join(l.Home, "commands") }
func (l Layout) Skills() string   { return filepath.Join(l.Home, "skills") }
func (l Layout) Hooks() string    { return filepath.Join(l.Home, "hooks") }
func (l Layout) Memory() string   { return filepath.Join(l.Home, "memory") }
func (l Layout) Jobs() string     { return filepath.Join(l.Home, "jobs") }
func (l Layout) Runs() string     { return filepath.Join(l.Home, "runs") }
func (l Layout) Drives() string   { return filepath.Join(l.Home, "drives") }
func (l Layout) Data() string     { return filepath.Join(l.Home, "data") }
func (l Layout) Logs() string     { return filepath.Join(l.Home, "data", "logs") }

func (l Layout) MetaPath() string { return filepath.Join(l.Home, "meta.yaml") }

// PIDFile is the daemon's single PID file (internal/daemon Component D).
func (l Layout) PIDFile() string { return filepath.Join(l.Data(), "daemon.pid") }

// DaemonLog is the daemon's append-only text log, distinct from the
// per-invocation slog output under Logs().
func (l Layout) DaemonLog() string { return filepath.Join(l.Data(), "daemon.log") }

// VersionsDir returns the directory holding every installed version of agent.
func (l Layout) VersionsDir(agent string) string {
	return filepath.Join(l.Home, "versions", agent)
}

// VersionDir returns the per-(agent,version) install directory.
func (l Layout) VersionDir(agent, version string) string {
	return filepath.Join(l.VersionsDir(agent), version)
}

// VersionHome returns the isolated home directory for (agent, version).
func (l Layout) VersionHome(agent, version string) string {
	return filepath.Join(l.VersionDir(agent, version), "home")
}

// RunDir returns the run directory for a given job invocation.
func (l Layout) RunDir(job, runID string) string {
	return filepath.Join(l.Runs(), job, runID)
}

// JobRunsDir returns the parent directory holding every run of a job.
func (l Layout) JobRunsDir(job string) string {
	return filepath.Join(l.Runs(), job)
}

// topLevelDirs lists every directory ensure_layout must create, per spec.md §4.A.
func (l Layout) topLevelDirs() []string {
	return []string{
		l.Repos(), l.Packages(), l.Shims(), l.Commands(), l.Skills(),
		l.Hooks(), l.Memory(), l.Jobs(), l.Runs(), l.Drives(), l.Data(), l.Logs(),
		filepath.Join(l.Home, "versions"),
	}
}

// EnsureLayout idempotently creates every top-level directory.
func (l Layout) EnsureLayout() error {
	for _, dir := range l.topLevelDirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// DefaultHome returns the conventional agents-home path (~/.agentctl),
// honoring the AGENTCTL_HOME environment variable override.
func DefaultHome() (string, error) {
	if h := os.Getenv("AGENTCTL_HOME"); h != "" {
		return h, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".agentctl"), nil
}
