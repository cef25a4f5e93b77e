// Package manifest defines the per-repo declarative document (agents.yaml)
// and the normalized DiscoveredResource records the Sync Engine discovers
// from a repo's fixed layout (spec.md §3, §4.C).
package manifest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest is the repo-root (and per-project) declarative document.
type Manifest struct {
	Agents   map[string]string    `yaml:"agents,omitempty"`
	MCP      map[string]McpEntry  `yaml:"mcp,omitempty"`
	Defaults *Defaults            `yaml:"defaults,omitempty"`
	Drives   map[string]DriveSpec `yaml:"drives,omitempty"`
}

// Defaults captures the manifest's optional defaults block.
type Defaults struct {
	Method string   `yaml:"method,omitempty"` // symlink|copy
	Scope  string   `yaml:"scope,omitempty"`  // global|project
	Agents []string `yaml:"agents,omitempty"`
}

// DriveSpec is a drive declaration inside a manifest.
type DriveSpec struct {
	Description string `yaml:"description,omitempty"`
	Project     string `yaml:"project,omitempty"`
}

// McpKind tags the McpEntry sum over stdio/http (spec.md §9: tagged variant,
// not an open map).
type McpKind string

const (
	McpStdio McpKind = "stdio"
	McpHTTP  McpKind = "http"
)

// McpEntry is a single declared MCP server registration.
type McpEntry struct {
	Kind McpKind

	// stdio fields
	Command string
	Args    []string

	// http fields
	URL     string
	Headers map[string]string

	Scope  string   // user|project
	Agents []string // agent ids this entry applies to
	Env    map[string]string
}

// rawMcpEntry mirrors the YAML shape before kind discrimination: a stdio
// entry requires "command", an http entry requires "url".
type rawMcpEntry struct {
	Command string            `yaml:"command,omitempty"`
	URL     string            `yaml:"url,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Scope   string            `yaml:"scope,omitempty"`
	Agents  []string          `yaml:"agents,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
}

// UnmarshalYAML discriminates stdio vs http by which required field is set.
func (m *McpEntry) UnmarshalYAML(node *yaml.Node) error {
	var raw rawMcpEntry
	if err := node.Decode(&raw); err != nil {
		return err
	}
	switch {
	case raw.Command != "":
		m.Kind = McpStdio
		m.Command = raw.Command
		m.Args = nil
	case raw.URL != "":
		m.Kind = McpHTTP
		m.URL = raw.URL
		m.Headers = raw.Headers
	default:
		return fmt.Errorf("manifest: mcp entry requires either 'command' (stdio) or 'url' (http)")
	}
	m.Scope = raw.Scope
	if m.Scope == "" {
		m.Scope = "user"
	}
	m.Agents = raw.Agents
	m.Env = raw.Env
	return nil
}

// MarshalYAML renders back to the raw shape, used by sync's writer paths.
func (m McpEntry) MarshalYAML() (interface{}, error) {
	raw := rawMcpEntry{Scope: m.Scope, Agents: m.Agents, Env: m.Env}
	switch m.Kind {
	case McpStdio:
		raw.Command = m.Command
	case McpHTTP:
		raw.URL = m.URL
		raw.Headers = m.Headers
	}
	return raw, nil
}

// Parse parses manifest YAML bytes.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: parse failed: %w", err)
	}
	return &m, nil
}

// Load reads and parses agents.yaml at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}
