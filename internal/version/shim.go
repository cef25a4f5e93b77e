package version

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/agentctl/agentctl/internal/agentkind"
)

// shimScriptTemplate is a table-driven POSIX-shell dispatcher: it asks
// agentctl to resolve the active version for the invoking cwd, then execs the
// real binary with HOME pointed at that version's isolated home. The same
// POSIX script is written on every platform; there is no Windows wrapper.
const shimScriptTemplate = `#!/bin/sh
# agentctl shim for %[1]s — generated by agentctl, do not edit by hand.
set -e
RESOLVED_HOME="$(%[2]s shim-resolve-home %[1]s)" || exit 1
export HOME="$RESOLVED_HOME"
exec "$RESOLVED_HOME/../bin/%[3]s" "$@"
`

// CreateShim writes an executable shim script at shims/{cli_name} for agent.
// selfExe is the path to the agentctl binary itself, used by the shim to
// resolve the active version at invocation time.
func (m *Manager) CreateShim(agent agentkind.ID, selfExe string) error {
	desc, ok := agentkind.Describe(agent)
	if !ok {
		return fmt.Errorf("version: unknown agent %q", agent)
	}
	if err := os.MkdirAll(m.layout.Shims(), 0o755); err != nil {
		return err
	}
	shimPath := filepath.Join(m.layout.Shims(), desc.CLIName)
	script := fmt.Sprintf(shimScriptTemplate, agent, selfExe, desc.CLIName)
	if err := os.WriteFile(shimPath, []byte(script), 0o755); err != nil {
		return fmt.Errorf("version: failed writing shim for %s: %w", agent, err)
	}
	return nil
}

// RemoveShim deletes the shim for agent, if present.
func (m *Manager) RemoveShim(agent agentkind.ID) error {
	desc, ok := agentkind.Describe(agent)
	if !ok {
		return fmt.Errorf("version: unknown agent %q", agent)
	}
	shimPath := filepath.Join(m.layout.Shims(), desc.CLIName)
	if err := os.Remove(shimPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("version: failed removing shim for %s: %w", agent, err)
	}
	return nil
}

// ShimsInPath reports whether the shims directory is present on $PATH.
func (m *Manager) ShimsInPath() bool {
	pathEnv := os.Getenv("PATH")
	sep := string(os.PathListSeparator)
	for _, entry := range strings.Split(pathEnv, sep) {
		if filepath.Clean(entry) == filepath.Clean(m.layout.Shims()) {
			return true
		}
	}
	return false
}

// PathSetupInstructions returns platform-appropriate shell instructions for
// adding the shims dir to PATH, for bash/zsh/fish (and a Windows note).
func (m *Manager) PathSetupInstructions() string {
	shims := m.layout.Shims()
	if runtime.GOOS == "windows" {
		return fmt.Sprintf("Add %q to your PATH environment variable (System Properties > Environment Variables).", shims)
	}
	return strings.Join([]string{
		"Add agentctl's shims directory to your PATH:",
		"",
		"  bash/zsh:",
		fmt.Sprintf("    echo 'export PATH=\"%s:$PATH\"' >> ~/.bashrc  # or ~/.zshrc", shims),
		"",
		"  fish:",
		fmt.Sprintf("    fish_add_path %s", shims),
		"",
		"Then restart your shell.",
	}, "\n")
}
