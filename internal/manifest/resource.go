package manifest

import "strings"

// ResourceCategory is one of the six file-backed categories (drives
// included) the Sync Engine classifies; MCP entries come from the manifest
// and have no category of their own.
type ResourceCategory string

const (
	CategoryCommand ResourceCategory = "command"
	CategorySkill   ResourceCategory = "skill"
	CategoryHook    ResourceCategory = "hook"
	CategoryMemory  ResourceCategory = "memory"
	CategoryJob     ResourceCategory = "job"
	CategoryDrive   ResourceCategory = "drive"
)

// CommandResource is a discovered command, normalized per spec.md §3.
type CommandResource struct {
	Name        string
	Description string
	SourcePath  string
	Shared      bool // true if sourced from shared/commands/, false if agent-specific
	ValidationOK bool
	ValidationErr string
}

// SkillResource is a discovered skill directory.
type SkillResource struct {
	Name       string
	SourcePath string
	Metadata   SkillMetadata
	RuleCount  int
}

// SkillMetadata is the front-matter-derived skill metadata.
type SkillMetadata struct {
	Description string   `yaml:"description,omitempty"`
	Author      string   `yaml:"author,omitempty"`
	Version     string   `yaml:"version,omitempty"`
	License     string   `yaml:"license,omitempty"`
	Keywords    []string `yaml:"keywords,omitempty"`
}

// HookResource is a discovered hook.
type HookResource struct {
	Name       string
	SourcePath string
	Agent      string // empty if shared across agents
}

// MemoryResource is a discovered per-agent memory/instructions file.
type MemoryResource struct {
	Agent      string
	SourcePath string
	FileName   string
}

// JobResource is a discovered job spec file.
type JobResource struct {
	Name       string
	SourcePath string
}

// DriveResource is a discovered drive (file or directory).
type DriveResource struct {
	Name       string
	SourcePath string
}

// NormalizeContent applies the CRLF->LF + outer-whitespace-trim rule used by
// the content-matches predicate (spec.md §4.C, §8): symmetric, reflexive.
func NormalizeContent(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(s)
}

// ContentMatches reports whether two blobs are equal after normalization.
func ContentMatches(a, b string) bool {
	return NormalizeContent(a) == NormalizeContent(b)
}
