package sync

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/agentctl/agentctl/internal/agentkind"
	"github.com/agentctl/agentctl/internal/contextx"
	"github.com/agentctl/agentctl/internal/daemon"
	"github.com/agentctl/agentctl/internal/manifest"
	"github.com/agentctl/agentctl/internal/metrics"
	"github.com/agentctl/agentctl/internal/version"
)

// Applier performs the central install and per-version fan-out steps of
// spec.md §4.C, once the decision loop has resolved every drifted item.
type Applier struct {
	ctx       *contextx.Context
	versions  *version.Manager
	registrar *McpRegistrar
	converter version.MarkdownToTOML
}

// NewApplier builds an Applier bound to ctx.
func NewApplier(ctx *contextx.Context) *Applier {
	return &Applier{
		ctx:       ctx,
		versions:  version.New(ctx),
		registrar: NewMcpRegistrar(ctx),
		converter: NewMarkdownToTOML(),
	}
}

// InstallOne copies one accepted change into the central store: a file copy
// for commands/hooks/memory/jobs/file-drives, a directory copy for
// skills/dir-drives. Central storage is always the normalized source, never
// a symlink — per-version fan-out is what symlinks outward from here.
func (a *Applier) InstallOne(ch Change) error {
	var err error
	if ch.SourceDir {
		err = copyDirAtomic(ch.SourcePath, ch.TargetPath)
	} else {
		err = copyFileAtomic(ch.SourcePath, ch.TargetPath)
	}
	if err == nil {
		metrics.RecordSyncApply(string(ch.Category), string(ch.State))
	}
	return err
}

// FanOut surfaces the now-current central store to every agent this sync
// targets: per-version resource linking (commands/skills/hooks/memory) and
// MCP registration, per spec.md §4.C "per-version fan-out" and the MCP
// registration strategy table. agents, when non-empty, restricts the fan-out
// to that subset (the CLI's `--scope`/per-agent sync forms); nil means all
// known agents.
func (a *Applier) FanOut(m *manifest.Manifest, agents []agentkind.ID, clean bool) []error {
	var errs []error
	if len(agents) == 0 {
		agents = agentkind.All()
	}

	for _, agent := range agents {
		installed := a.versions.ListInstalled(agent)
		if len(installed) > 0 {
			for _, ver := range installed {
				if err := a.versions.SyncResourcesToVersion(agent, ver, a.converter); err != nil {
					errs = append(errs, fmt.Errorf("sync: resource link failed for %s@%s: %w", agent, ver, err))
				}
			}
		}
		errs = append(errs, a.applyMCP(agent, installed, m, clean)...)
	}
	return errs
}

// applyMCP registers every manifest MCP entry that applies to agent, per
// (agent, version) when version-managed, else against the real agent home;
// with --clean, also unregisters names the manifest no longer declares.
// Failures are collected, never abort the loop (spec.md §4.C failure
// semantics: "a failure to register one MCP for one agent does not stop
// registration for others").
func (a *Applier) applyMCP(agent agentkind.ID, installedVersions []string, m *manifest.Manifest, clean bool) []error {
	desc, ok := agentkind.Describe(agent)
	if !ok || !desc.HasCapability(agentkind.CapMCP) {
		return nil
	}

	var errs []error
	homes := []string{}
	if len(installedVersions) > 0 {
		for _, ver := range installedVersions {
			homes = append(homes, a.versions.HomePath(agent, ver))
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			homes = append(homes, home)
		}
	}

	for _, home := range homes {
		for _, name := range sortedMcpNames(m.MCP) {
			entry := m.MCP[name]
			if !entryAppliesToAgent(entry, agent) {
				continue
			}
			if err := a.registrar.Register(agent, name, entry, home); err != nil {
				errs = append(errs, fmt.Errorf("sync: mcp register %q for %s failed: %w", name, agent, err))
			}
		}
		if clean {
			errs = append(errs, a.cleanMCP(agent, home, m)...)
		}
	}
	return errs
}

// cleanMCP is a best-effort pass: it enumerates the "mcpServers" object of
// the agent's JSON settings file (the file the gemini/cursor strategy
// writes) and calls Unregister for every name there that the manifest no
// longer declares. Neither codex's TOML nor claude's own store is
// enumerated, so for those agents names found only there are not removed.
func (a *Applier) cleanMCP(agent agentkind.ID, home string, m *manifest.Manifest) []error {
	var errs []error
	known := loadJSONObject(geminiSettingsPathForClean(agent, home))
	servers, _ := known["mcpServers"].(map[string]any)
	for name := range servers {
		if _, ok := m.MCP[name]; ok {
			continue
		}
		if err := a.registrar.Unregister(agent, name, home); err != nil {
			errs = append(errs, fmt.Errorf("sync: mcp unregister %q for %s failed: %w", name, agent, err))
		}
	}
	return errs
}

func geminiSettingsPathForClean(agent agentkind.ID, home string) string {
	desc, ok := agentkind.Describe(agent)
	if !ok {
		return ""
	}
	return geminiSettingsPath(desc, home)
}

func entryAppliesToAgent(entry manifest.McpEntry, agent agentkind.ID) bool {
	if len(entry.Agents) == 0 {
		return true
	}
	for _, a := range entry.Agents {
		if agentkind.ID(a) == agent {
			return true
		}
	}
	return false
}

// InstallJob copies a validated job spec into jobs/{name}.yml and, if the
// scheduler daemon is running, signals it to reload (spec.md §4.C).
func InstallJob(d *daemon.Daemon, ch Change) error {
	if err := copyFileAtomic(ch.SourcePath, ch.TargetPath); err != nil {
		return err
	}
	running, err := d.IsRunning()
	if err != nil || !running {
		return nil
	}
	return d.SignalReload()
}

// copyFileAtomic reads source and writes it to target via write-tmp-then-
// rename, the same atomic-write pattern used throughout state/sandbox.
func copyFileAtomic(source, target string) error {
	data, err := os.ReadFile(source)
	if err != nil {
		return fmt.Errorf("sync: failed reading %s: %w", source, err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("sync: failed writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("sync: failed renaming into %s: %w", target, err)
	}
	return nil
}

// copyDirAtomic replaces target wholesale with a fresh recursive copy of
// source, used for skill directories and directory-form drives.
func copyDirAtomic(source, target string) error {
	tmp := target + ".tmp"
	_ = os.RemoveAll(tmp)
	if err := copyTree(source, tmp); err != nil {
		_ = os.RemoveAll(tmp)
		return err
	}
	_ = os.RemoveAll(target)
	if err := os.Rename(tmp, target); err != nil {
		_ = os.RemoveAll(tmp)
		return fmt.Errorf("sync: failed renaming %s into place: %w", target, err)
	}
	return nil
}

func copyTree(source, target string) error {
	return filepath.Walk(source, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(target, rel)
		if info.IsDir() {
			return os.MkdirAll(dst, 0o755)
		}
		return copyFilePlain(path, dst)
	})
}

func copyFilePlain(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
