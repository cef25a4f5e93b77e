package sync

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agentctl/agentctl/internal/agentkind"
	"github.com/agentctl/agentctl/internal/contextx"
	"github.com/agentctl/agentctl/internal/manifest"
)

// McpRegistrar applies (or removes) one MCP server declaration against one
// agent's config, per the small strategy table keyed by AgentId that
// spec.md §4.C calls for: some agents take registration through their own
// CLI subcommand, others through a config file this code writes directly.
type McpRegistrar struct {
	ctx *contextx.Context
}

// NewMcpRegistrar builds a registrar bound to ctx (for its Spawner).
func NewMcpRegistrar(ctx *contextx.Context) *McpRegistrar {
	return &McpRegistrar{ctx: ctx}
}

// Register installs name/entry into agent's config rooted at home (either a
// version's isolated home, or the real agent home for non-version-managed
// agents).
func (r *McpRegistrar) Register(agent agentkind.ID, name string, entry manifest.McpEntry, home string) error {
	desc, ok := agentkind.Describe(agent)
	if !ok || !desc.HasCapability(agentkind.CapMCP) {
		return fmt.Errorf("sync: agent %q does not support mcp registration", agent)
	}

	switch agent {
	case agentkind.Claude:
		return r.registerViaCLI(desc, name, entry, home)
	case agentkind.Codex:
		return r.registerCodexTOML(name, entry, home)
	case agentkind.Gemini, agentkind.Cursor:
		return r.registerJSONConfig(desc, name, entry, home)
	default:
		return fmt.Errorf("sync: no mcp registration strategy for agent %q", agent)
	}
}

// Unregister removes name from agent's config, used by sync --clean to drop
// entries no longer present in the manifest.
func (r *McpRegistrar) Unregister(agent agentkind.ID, name string, home string) error {
	desc, ok := agentkind.Describe(agent)
	if !ok {
		return fmt.Errorf("sync: unknown agent %q", agent)
	}

	switch agent {
	case agentkind.Claude:
		cmd := r.ctx.Spawner.Command(desc.CLIName, "mcp", "remove", name)
		cmd.Env = append(os.Environ(), "HOME="+home)
		_, err := cmd.CombinedOutput()
		return err
	case agentkind.Codex:
		return removeCodexTOMLEntry(name, home)
	case agentkind.Gemini, agentkind.Cursor:
		return removeJSONConfigEntry(desc, name, home)
	default:
		return fmt.Errorf("sync: no mcp unregistration strategy for agent %q", agent)
	}
}

// registerViaCLI invokes the agent's own "mcp add" subcommand, the strategy
// Claude Code documents and supports natively.
func (r *McpRegistrar) registerViaCLI(desc agentkind.Descriptor, name string, entry manifest.McpEntry, home string) error {
	args := []string{"mcp", "add", "--scope", scopeOrDefault(entry.Scope)}
	switch entry.Kind {
	case manifest.McpStdio:
		args = append(args, name, "--", entry.Command)
		args = append(args, entry.Args...)
	case manifest.McpHTTP:
		args = append(args, "--transport", "http", name, entry.URL)
	default:
		return fmt.Errorf("sync: unknown mcp entry kind %q", entry.Kind)
	}
	cmd := r.ctx.Spawner.Command(desc.CLIName, args...)
	cmd.Env = append(os.Environ(), "HOME="+home)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("sync: %s mcp add failed: %w: %s", desc.CLIName, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func scopeOrDefault(s string) string {
	if s == "" {
		return "user"
	}
	return s
}

// --- codex: ~/.codex/config.toml [mcp_servers.<name>] table ---

func registerCodexTOML(name string, entry manifest.McpEntry, home string) error {
	path := filepath.Join(home, ".codex", "config.toml")
	existing, _ := os.ReadFile(path)

	body := stripCodexMcpTable(string(existing), name)
	var b strings.Builder
	b.WriteString(body)
	if !strings.HasSuffix(body, "\n") && body != "" {
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\n[mcp_servers.%s]\n", name)
	switch entry.Kind {
	case manifest.McpStdio:
		fmt.Fprintf(&b, "command = %q\n", entry.Command)
		if len(entry.Args) > 0 {
			b.WriteString("args = [")
			for i, a := range entry.Args {
				if i > 0 {
					b.WriteString(", ")
				}
				fmt.Fprintf(&b, "%q", a)
			}
			b.WriteString("]\n")
		}
	case manifest.McpHTTP:
		fmt.Fprintf(&b, "url = %q\n", entry.URL)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func (r *McpRegistrar) registerCodexTOML(name string, entry manifest.McpEntry, home string) error {
	return registerCodexTOML(name, entry, home)
}

func removeCodexTOMLEntry(name, home string) error {
	path := filepath.Join(home, ".codex", "config.toml")
	existing, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	body := stripCodexMcpTable(string(existing), name)
	return os.WriteFile(path, []byte(body), 0o644)
}

// stripCodexMcpTable removes a "[mcp_servers.<name>]" table (and everything
// up to the next top-level "[" or end of file) from a TOML document. This
// narrow hand-rolled pass (rather than a full TOML AST edit) is sufficient
// because agentctl is the exclusive writer of these tables.
func stripCodexMcpTable(content, name string) string {
	header := "[mcp_servers." + name + "]"
	lines := strings.Split(content, "\n")
	var out []string
	skipping := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == header {
			skipping = true
			continue
		}
		if skipping && strings.HasPrefix(trimmed, "[") {
			skipping = false
		}
		if skipping {
			continue
		}
		out = append(out, line)
	}
	return strings.TrimRight(strings.Join(out, "\n"), "\n") + "\n"
}

// --- gemini / cursor: JSON settings with an "mcpServers" object ---

func geminiSettingsPath(desc agentkind.Descriptor, home string) string {
	if desc.ID == agentkind.Cursor {
		return filepath.Join(home, ".cursor", "mcp.json")
	}
	return filepath.Join(home, desc.ConfigDirName, "settings.json")
}

func (r *McpRegistrar) registerJSONConfig(desc agentkind.Descriptor, name string, entry manifest.McpEntry, home string) error {
	return registerJSONConfig(desc, name, entry, home)
}

func registerJSONConfig(desc agentkind.Descriptor, name string, entry manifest.McpEntry, home string) error {
	path := geminiSettingsPath(desc, home)
	doc := loadJSONObject(path)

	servers, _ := doc["mcpServers"].(map[string]any)
	if servers == nil {
		servers = map[string]any{}
	}
	server := map[string]any{}
	switch entry.Kind {
	case manifest.McpStdio:
		server["command"] = entry.Command
		if len(entry.Args) > 0 {
			server["args"] = entry.Args
		}
	case manifest.McpHTTP:
		server["url"] = entry.URL
		if len(entry.Headers) > 0 {
			server["headers"] = entry.Headers
		}
	}
	if len(entry.Env) > 0 {
		server["env"] = entry.Env
	}
	servers[name] = server
	doc["mcpServers"] = servers

	return writeJSONObject(path, doc)
}

func removeJSONConfigEntry(desc agentkind.Descriptor, name, home string) error {
	path := geminiSettingsPath(desc, home)
	doc := loadJSONObject(path)
	servers, _ := doc["mcpServers"].(map[string]any)
	if servers != nil {
		delete(servers, name)
		doc["mcpServers"] = servers
	}
	return writeJSONObject(path, doc)
}

func loadJSONObject(path string) map[string]any {
	data, err := os.ReadFile(path)
	if err != nil {
		return map[string]any{}
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return map[string]any{}
	}
	return doc
}

func writeJSONObject(path string, doc map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// sortedMcpNames returns m's keys sorted, used when iterating a manifest's
// MCP map to keep registration order deterministic.
func sortedMcpNames(m map[string]manifest.McpEntry) []string {
	out := make([]string, 0, len(m))
	for name := range m {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
