package version

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentctl/agentctl/internal/agentkind"
	"github.com/agentctl/agentctl/internal/contextx"
	"github.com/agentctl/agentctl/internal/state"
)

// Manager owns install/list/remove/resolve for agent binary versions.
type Manager struct {
	ctx    *contextx.Context
	layout state.Layout
}

// New creates a Manager bound to a Context.
func New(ctx *contextx.Context) *Manager {
	return &Manager{ctx: ctx, layout: ctx.Store.Layout}
}

// BinaryPath is the deterministic single-source-of-truth path for whether
// (agent, version) is installed (spec.md §4.B).
func (m *Manager) BinaryPath(agent agentkind.ID, ver string) string {
	desc := agentkind.MustDescribe(agent)
	return filepath.Join(m.layout.VersionDir(string(agent), ver), "bin", desc.CLIName)
}

// HomePath is the isolated home directory for (agent, version).
func (m *Manager) HomePath(agent agentkind.ID, ver string) string {
	return m.layout.VersionHome(string(agent), ver)
}

// InstallResult is the outcome of InstallVersion.
type InstallResult struct {
	Success        bool
	ResolvedVersion string
	Error          error
}

// InstallVersion installs (agent, version), resolving "latest" to the real
// published version string by introspecting the installed package metadata.
// On any failure it destroys the partial directory and returns a readable
// error; it never leaves a half-installed version directory behind.
func (m *Manager) InstallVersion(agent agentkind.ID, ver string) InstallResult {
	desc, ok := agentkind.Describe(agent)
	if !ok {
		return InstallResult{Error: fmt.Errorf("version: unknown agent %q", agent)}
	}
	if desc.PackageName == "" {
		return InstallResult{Error: fmt.Errorf("version: agent %q has no installable package", agent)}
	}

	scratchVer := ver
	targetDir := m.layout.VersionDir(string(agent), scratchVer)

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return InstallResult{Error: fmt.Errorf("version: failed to create version dir: %w", err)}
	}

	if err := m.runInstaller(desc, targetDir, ver); err != nil {
		_ = os.RemoveAll(targetDir)
		return InstallResult{Error: fmt.Errorf("version: installer failed: %w", err)}
	}

	resolved := ver
	if ver == Latest {
		real, err := m.introspectInstalledVersion(targetDir, desc)
		if err != nil {
			_ = os.RemoveAll(targetDir)
			return InstallResult{Error: fmt.Errorf("version: failed to resolve installed version: %w", err)}
		}
		resolved = real

		finalDir := m.layout.VersionDir(string(agent), resolved)
		if finalDir != targetDir {
			if _, statErr := os.Stat(finalDir); statErr == nil {
				// Destination already exists: destroy the scratch install.
				_ = os.RemoveAll(targetDir)
			} else {
				if err := os.Rename(targetDir, finalDir); err != nil {
					_ = os.RemoveAll(targetDir)
					return InstallResult{Error: fmt.Errorf("version: failed to rename install dir: %w", err)}
				}
			}
		}
	}

	if err := m.ensureIsolatedHome(agent, resolved); err != nil {
		_ = os.RemoveAll(m.layout.VersionDir(string(agent), resolved))
		return InstallResult{Error: fmt.Errorf("version: failed preparing isolated home: %w", err)}
	}

	if err := m.maybeSetDefault(agent, resolved); err != nil {
		return InstallResult{Success: true, ResolvedVersion: resolved, Error: fmt.Errorf("version: installed but failed updating default: %w", err)}
	}

	return InstallResult{Success: true, ResolvedVersion: resolved}
}

// runInstaller invokes the upstream package installer as a subprocess,
// installing the package under targetDir (npm --prefix) and linking its
// binary into targetDir/bin, mirroring the teacher's
// pattern of shelling out to an external tool (internal/project.Manager's
// `git init`) and wrapping the combined output into the error on failure.
func (m *Manager) runInstaller(desc agentkind.Descriptor, targetDir, ver string) error {
	binDir := filepath.Join(targetDir, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}

	if m.ctx.Limiter != nil {
		_ = m.ctx.Limiter.Wait(context.Background(), "installer")
	}

	pkgSpec := desc.PackageName
	if ver != Latest {
		pkgSpec = fmt.Sprintf("%s@%s", desc.PackageName, ver)
	}

	cmd := m.ctx.Spawner.Command("npm", "install", "--prefix", targetDir, "--no-save", pkgSpec)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("%s", msg)
	}

	return m.linkInstalledBinary(desc, targetDir)
}

// linkInstalledBinary points bin/{cliName} at the package's actual installed
// entry point under node_modules/.bin, matching how npm-installed CLIs are
// laid out when installed with --prefix.
func (m *Manager) linkInstalledBinary(desc agentkind.Descriptor, targetDir string) error {
	src := filepath.Join(targetDir, "node_modules", ".bin", desc.CLIName)
	dst := filepath.Join(targetDir, "bin", desc.CLIName)
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("installed package did not produce expected binary at %s: %w", src, err)
	}
	_ = os.Remove(dst)
	return os.Symlink(src, dst)
}

// packageMetadata mirrors the subset of package.json this core reads to
// discover the real version string after a "latest" install.
type packageMetadata struct {
	Version string `json:"version"`
}

func (m *Manager) introspectInstalledVersion(targetDir string, desc agentkind.Descriptor) (string, error) {
	pkgJSON := filepath.Join(targetDir, "node_modules", desc.PackageName, "package.json")
	data, err := os.ReadFile(pkgJSON)
	if err != nil {
		return "", err
	}
	var meta packageMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return "", err
	}
	if meta.Version == "" {
		return "", fmt.Errorf("package.json at %s has no version field", pkgJSON)
	}
	return meta.Version, nil
}

func (m *Manager) ensureIsolatedHome(agent agentkind.ID, ver string) error {
	home := m.HomePath(agent, ver)
	desc := agentkind.MustDescribe(agent)
	return os.MkdirAll(filepath.Join(home, desc.ConfigDirName), 0o755)
}

func (m *Manager) maybeSetDefault(agent agentkind.ID, ver string) error {
	meta, err := m.ctx.Store.ReadMeta()
	if err != nil {
		return err
	}
	if _, ok := meta.AgentVersion(string(agent)); ok {
		return nil
	}
	meta.SetAgentVersion(string(agent), ver)
	return m.ctx.Store.WriteMeta(meta)
}

// RemoveVersion removes the install directory for (agent, version); if it
// was the global default, re-selects the highest installed version (or
// clears the default).
func (m *Manager) RemoveVersion(agent agentkind.ID, ver string) error {
	dir := m.layout.VersionDir(string(agent), ver)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("version: failed to remove %s@%s: %w", agent, ver, err)
	}
	return m.reselectDefaultIfNeeded(agent, ver)
}

// RemoveAllVersions removes every installed version of agent and clears its
// default.
func (m *Manager) RemoveAllVersions(agent agentkind.ID) error {
	if err := os.RemoveAll(m.layout.VersionsDir(string(agent))); err != nil {
		return fmt.Errorf("version: failed to remove all versions of %s: %w", agent, err)
	}
	meta, err := m.ctx.Store.ReadMeta()
	if err != nil {
		return err
	}
	meta.SetAgentVersion(string(agent), "")
	return m.ctx.Store.WriteMeta(meta)
}

func (m *Manager) reselectDefaultIfNeeded(agent agentkind.ID, removedVer string) error {
	meta, err := m.ctx.Store.ReadMeta()
	if err != nil {
		return err
	}
	current, hadDefault := meta.AgentVersion(string(agent))
	if !hadDefault || current != removedVer {
		return nil
	}

	installed := m.ListInstalled(agent)
	if len(installed) == 0 {
		meta.SetAgentVersion(string(agent), "")
	} else {
		meta.SetAgentVersion(string(agent), installed[len(installed)-1])
	}
	return m.ctx.Store.WriteMeta(meta)
}

// ListInstalled enumerates subdirectories of versions/{agent} and returns
// only those where the expected binary path exists, sorted ascending by the
// numeric-component comparator.
func (m *Manager) ListInstalled(agent agentkind.ID) []string {
	dir := m.layout.VersionsDir(string(agent))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		ver := e.Name()
		if _, err := os.Stat(m.BinaryPath(agent, ver)); err == nil {
			out = append(out, ver)
		}
	}
	SortVersions(out)
	return out
}

// IsInstalled reports whether (agent, version) satisfies the "installed"
// predicate: the expected binary path exists.
func (m *Manager) IsInstalled(agent agentkind.ID, ver string) bool {
	_, err := os.Stat(m.BinaryPath(agent, ver))
	return err == nil
}

// ResolveVersion walks cwd upward looking for .agents/agents.yaml; if found
// and it names the agent, returns that version. Otherwise returns the global
// default.
func (m *Manager) ResolveVersion(agent agentkind.ID, cwd string) (string, bool, error) {
	if ver, ok := resolveProjectPin(agent, cwd); ok {
		return ver, true, nil
	}
	meta, err := m.ctx.Store.ReadMeta()
	if err != nil {
		return "", false, err
	}
	ver, ok := meta.AgentVersion(string(agent))
	return ver, ok, nil
}

func resolveProjectPin(agent agentkind.ID, cwd string) (string, bool) {
	dir := cwd
	for {
		pinPath := filepath.Join(dir, ".agents", "agents.yaml")
		if data, err := os.ReadFile(pinPath); err == nil {
			if ver, ok := parseFlatAgentsPin(data, agent); ok {
				return ver, true
			}
			return "", false
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
