package job

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentctl/agentctl/internal/agentkind"
)

// argvTemplate is a per-agent base argv with a single {prompt} placeholder,
// per spec.md §4.D "table-driven per agent".
var argvTemplate = map[agentkind.ID][]string{
	agentkind.Claude: {"claude", "-p", "{prompt}"},
	agentkind.Codex:  {"codex", "exec", "{prompt}"},
	agentkind.Gemini: {"gemini", "-p", "{prompt}"},
}

// toolPermission is the closed mapping from allow.tools entries to Claude
// permission-table entries (spec.md §4.D); entries outside the table pass
// through unchanged.
var toolPermission = map[string]string{
	"web_search":     "WebSearch(*)",
	"web_fetch":      "WebFetch(*)",
	"bash":           "Bash(*)",
	"read":           "Read(*)",
	"write":          "Write(*)",
	"edit":           "Edit(*)",
	"glob":           "Glob(*)",
	"grep":           "Grep(*)",
	"notebook_edit":  "NotebookEdit(*)",
}

// BuildCommand assembles argv for s with its prompt already resolved,
// table-driven per agent (spec.md §4.D). Unsupported agents return an error.
func BuildCommand(s Spec, resolvedPrompt string) ([]string, error) {
	tmpl, ok := argvTemplate[s.Agent]
	if !ok {
		return nil, fmt.Errorf("job: agent %q is not supported for daemon jobs", s.Agent)
	}

	argv := make([]string, 0, len(tmpl)+8)
	for _, part := range tmpl {
		if part == "{prompt}" {
			argv = append(argv, resolvedPrompt)
			continue
		}
		argv = append(argv, part)
	}

	switch s.Agent {
	case agentkind.Claude:
		mode := "plan"
		if s.Mode == ModeEdit {
			mode = "acceptEdits"
		}
		argv = append(argv, "--permission-mode", mode)
		home, _ := os.UserHomeDir()
		for _, dir := range s.Allow.Dirs {
			argv = append(argv, "--add-dir", expandHome(dir, home))
		}
	case agentkind.Codex:
		if s.Mode == ModeEdit {
			argv = append(argv, "--full-auto")
		}
	case agentkind.Gemini:
		if s.Mode == ModeEdit {
			argv = append(argv, "--yolo")
		}
	}

	if model, ok := s.Config["model"]; ok && model != "" {
		argv = append(argv, "--model", model)
	}

	return argv, nil
}

// ClaudePermissions builds the `permissions.allow` list for a job's overlay
// .claude/settings.json (spec.md §4.D prepare_home step 2).
func ClaudePermissions(s Spec) []string {
	var allow []string
	for _, tool := range s.Allow.Tools {
		if mapped, ok := toolPermission[tool]; ok {
			allow = append(allow, mapped)
		} else {
			allow = append(allow, tool)
		}
	}
	home, _ := os.UserHomeDir()
	for _, dir := range s.Allow.Dirs {
		resolved := expandHome(dir, home)
		allow = append(allow, fmt.Sprintf("Read(%s/**)", resolved))
		if s.Mode == ModeEdit {
			allow = append(allow, fmt.Sprintf("Write(%s/**)", resolved))
			allow = append(allow, fmt.Sprintf("Edit(%s/**)", resolved))
		}
	}
	return allow
}

func expandHome(path, home string) string {
	if home == "" || !strings.HasPrefix(path, "~") {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
