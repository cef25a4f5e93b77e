// Package agentkind provides the closed set of AI coding agent CLIs that
// agentctl manages, and the static per-agent descriptor (config paths,
// command format, capabilities) used by every other component.
package agentkind

import "fmt"

// ID is a closed tagged variant of the five known agent kinds.
type ID string

const (
	Claude ID = "claude"
	Codex  ID = "codex"
	Gemini ID = "gemini"
	Aider  ID = "aider"
	Cursor ID = "cursor"
)

// CommandFormat is the file format an agent expects its command files in.
type CommandFormat string

const (
	FormatMarkdown CommandFormat = "markdown"
	FormatTOML     CommandFormat = "toml"
)

// Capability is one optional feature surface an agent supports.
type Capability string

const (
	CapHooks     Capability = "hooks"
	CapMCP       Capability = "mcp"
	CapSkills    Capability = "skills"
	CapAllowlist Capability = "allowlist"
)

// Descriptor is the static, compile-time-known description of an agent kind.
type Descriptor struct {
	ID               ID
	DisplayName      string
	CLIName          string // executable name on PATH
	PackageName      string // upstream installer package name, empty if not installable via this core
	ConfigDirName    string // e.g. ".claude"
	CommandsSubdir   string // e.g. "commands"
	InstructionsFile string // e.g. "CLAUDE.md"
	CommandFormat    CommandFormat
	Capabilities     map[Capability]bool
	// OneShot is true for agents that support non-interactive, programmatic
	// single-turn execution and can therefore be used as daemon job targets.
	OneShot bool
}

// HasCapability reports whether the descriptor declares a capability.
func (d Descriptor) HasCapability(c Capability) bool {
	return d.Capabilities[c]
}

var descriptors = map[ID]Descriptor{
	Claude: {
		ID:               Claude,
		DisplayName:      "Claude Code",
		CLIName:          "claude",
		PackageName:      "@anthropic-ai/claude-code",
		ConfigDirName:    ".claude",
		CommandsSubdir:   "commands",
		InstructionsFile: "CLAUDE.md",
		CommandFormat:    FormatMarkdown,
		Capabilities: map[Capability]bool{
			CapHooks: true, CapMCP: true, CapSkills: true, CapAllowlist: true,
		},
		OneShot: true,
	},
	Codex: {
		ID:               Codex,
		DisplayName:      "Codex CLI",
		CLIName:          "codex",
		PackageName:      "@openai/codex",
		ConfigDirName:    ".codex",
		CommandsSubdir:   "prompts",
		InstructionsFile: "AGENTS.md",
		CommandFormat:    FormatTOML,
		Capabilities: map[Capability]bool{
			CapMCP: true, CapAllowlist: true,
		},
		OneShot: true,
	},
	Gemini: {
		ID:               Gemini,
		DisplayName:      "Gemini CLI",
		CLIName:          "gemini",
		PackageName:      "@google/gemini-cli",
		ConfigDirName:    ".gemini",
		CommandsSubdir:   "commands",
		InstructionsFile: "GEMINI.md",
		CommandFormat:    FormatTOML,
		Capabilities: map[Capability]bool{
			CapMCP: true, CapSkills: true,
		},
		OneShot: true,
	},
	Aider: {
		ID:               Aider,
		DisplayName:      "Aider",
		CLIName:          "aider",
		PackageName:      "aider-chat",
		ConfigDirName:    ".aider",
		CommandsSubdir:   "commands",
		InstructionsFile: "CONVENTIONS.md",
		CommandFormat:    FormatMarkdown,
		Capabilities:     map[Capability]bool{},
		OneShot:          false,
	},
	Cursor: {
		ID:               Cursor,
		DisplayName:      "Cursor CLI",
		CLIName:          "cursor-agent",
		PackageName:      "",
		ConfigDirName:    ".cursor",
		CommandsSubdir:   "commands",
		InstructionsFile: "AGENTS.md",
		CommandFormat:    FormatMarkdown,
		Capabilities: map[Capability]bool{
			CapMCP: true, CapHooks: true,
		},
		OneShot: false,
	},
}

// All returns every known agent id in a stable order.
func All() []ID {
	return []ID{Claude, Codex, Gemini, Aider, Cursor}
}

// Describe looks up the static descriptor for an agent id.
func Describe(id ID) (Descriptor, bool) {
	d, ok := descriptors[id]
	return d, ok
}

// MustDescribe is Describe but panics for an unknown id; only safe to call
// with an id already validated by Parse.
func MustDescribe(id ID) Descriptor {
	d, ok := descriptors[id]
	if !ok {
		panic(fmt.Sprintf("agentkind: unknown id %q", id))
	}
	return d
}

// Parse validates a raw string against the closed set of agent ids.
func Parse(s string) (ID, bool) {
	id := ID(s)
	_, ok := descriptors[id]
	return id, ok
}

// OneShotAgents returns the ids that support programmatic one-shot execution
// and are therefore eligible as daemon job targets (spec §3 JobSpec.agent).
func OneShotAgents() []ID {
	var out []ID
	for _, id := range All() {
		if descriptors[id].OneShot {
			out = append(out, id)
		}
	}
	return out
}
