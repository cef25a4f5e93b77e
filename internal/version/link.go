package version

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentctl/agentctl/internal/agentkind"
)

// MarkdownToTOML is the external collaborator spec.md §1 says is assumed to
// exist: "Markdown ⇄ TOML front-matter conversion for one of the agents".
// Component B depends only on this narrow interface, never on how the
// conversion itself is implemented.
type MarkdownToTOML interface {
	ToTOML(name, markdown string) (string, error)
}

// conventionalMemoryFile is the cross-agent default memory file name; when
// the central store uses this name, per-version linking rewrites it to the
// agent's own instructions file name (spec.md §4.B special case 2).
const conventionalMemoryFile = "AGENTS.md"

// SyncResourcesToVersion surfaces the central commands/skills/hooks/memory
// directories to (agent, version)'s isolated home, as if installed directly
// under home/.{agent}/…. A failed symlink is silently skipped so a
// subsequent run can recover (spec.md §4.B failure model).
func (m *Manager) SyncResourcesToVersion(agent agentkind.ID, ver string, converter MarkdownToTOML) error {
	desc, ok := agentkind.Describe(agent)
	if !ok {
		return fmt.Errorf("version: unknown agent %q", agent)
	}
	home := m.HomePath(agent, ver)
	agentConfigDir := filepath.Join(home, desc.ConfigDirName)
	if err := os.MkdirAll(agentConfigDir, 0o755); err != nil {
		return err
	}

	if err := m.linkCommands(desc, agentConfigDir, converter); err != nil {
		return err
	}
	relinkDir(filepath.Join(agentConfigDir, "skills"), m.layout.Skills())
	relinkDir(filepath.Join(agentConfigDir, "hooks"), m.layout.Hooks())
	m.linkMemory(desc, agentConfigDir)

	return nil
}

// linkCommands is the special case for TOML-format agents: instead of
// symlinking commands/ wholesale, a fresh directory of per-file TOML
// conversions is written.
func (m *Manager) linkCommands(desc agentkind.Descriptor, agentConfigDir string, converter MarkdownToTOML) error {
	target := filepath.Join(agentConfigDir, desc.CommandsSubdir)

	if desc.CommandFormat != agentkind.FormatTOML {
		relinkDir(target, m.layout.Commands())
		return nil
	}

	_ = os.RemoveAll(target)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return err
	}

	entries, err := os.ReadDir(m.layout.Commands())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		src := filepath.Join(m.layout.Commands(), e.Name())
		data, err := os.ReadFile(src)
		if err != nil {
			continue // skip, recoverable on next run
		}
		name := strings.TrimSuffix(e.Name(), ".md")
		toml, err := converter.ToTOML(name, string(data))
		if err != nil {
			continue // skip, recoverable on next run
		}
		dst := filepath.Join(target, name+".toml")
		_ = os.WriteFile(dst, []byte(toml), 0o644)
	}
	return nil
}

// linkMemory links memory files one-by-one, rewriting the conventional
// cross-agent default file name to the agent's own instructions file name.
func (m *Manager) linkMemory(desc agentkind.Descriptor, agentConfigDir string) {
	entries, err := os.ReadDir(m.layout.Memory())
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		srcName := e.Name()
		dstName := srcName
		if srcName == conventionalMemoryFile && desc.InstructionsFile != conventionalMemoryFile {
			dstName = desc.InstructionsFile
		}
		src := filepath.Join(m.layout.Memory(), srcName)
		dst := filepath.Join(agentConfigDir, dstName)
		_ = os.Remove(dst)
		_ = os.Symlink(src, dst) // best-effort: a failed symlink is skipped, spec.md §4.B
	}
}

// relinkDir removes any existing entry at target, then symlinks it at
// source. A failed symlink is silently skipped (spec.md §4.B failure model).
func relinkDir(target, source string) {
	_ = os.RemoveAll(target)
	_ = os.Symlink(source, target)
}
