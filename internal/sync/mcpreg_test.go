package sync

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agentctl/agentctl/internal/agentkind"
	"github.com/agentctl/agentctl/internal/contextx"
	"github.com/agentctl/agentctl/internal/manifest"
)

// recordingSpawner captures every invocation instead of running a real CLI.
type recordingSpawner struct {
	calls *[][]string
}

func (r recordingSpawner) Command(name string, args ...string) *exec.Cmd {
	*r.calls = append(*r.calls, append([]string{name}, args...))
	return exec.Command("true")
}

func TestMcpRegistrar_Claude_InvokesCLI(t *testing.T) {
	var calls [][]string
	ctx := &contextx.Context{Spawner: recordingSpawner{calls: &calls}}
	r := NewMcpRegistrar(ctx)

	entry := manifest.McpEntry{Kind: manifest.McpStdio, Command: "my-server", Args: []string{"--flag"}, Scope: "user"}
	if err := r.Register(agentkind.Claude, "my-mcp", entry, t.TempDir()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected exactly one spawned command, got %d", len(calls))
	}
	got := strings.Join(calls[0], " ")
	if calls[0][0] != "claude" || !strings.Contains(got, "mcp add") || !strings.Contains(got, "my-mcp") {
		t.Errorf("unexpected claude invocation: %v", calls[0])
	}
}

func TestMcpRegistrar_Gemini_WritesJSONConfig(t *testing.T) {
	ctx := &contextx.Context{Spawner: contextx.ExecSpawner{}}
	r := NewMcpRegistrar(ctx)
	home := t.TempDir()

	entry := manifest.McpEntry{Kind: manifest.McpHTTP, URL: "https://mcp.example.invalid"}
	if err := r.Register(agentkind.Gemini, "remote-mcp", entry, home); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(home, ".gemini", "settings.json"))
	if err != nil {
		t.Fatalf("expected settings.json: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("settings.json is not valid json: %v", err)
	}
	servers, ok := doc["mcpServers"].(map[string]any)
	if !ok {
		t.Fatal("missing mcpServers object")
	}
	server, ok := servers["remote-mcp"].(map[string]any)
	if !ok {
		t.Fatal("missing remote-mcp entry")
	}
	if server["url"] != "https://mcp.example.invalid" {
		t.Errorf("url = %v", server["url"])
	}

	if err := r.Unregister(agentkind.Gemini, "remote-mcp", home); err != nil {
		t.Fatalf("Unregister() error = %v", err)
	}
	data, _ = os.ReadFile(filepath.Join(home, ".gemini", "settings.json"))
	_ = json.Unmarshal(data, &doc)
	servers, _ = doc["mcpServers"].(map[string]any)
	if _, ok := servers["remote-mcp"]; ok {
		t.Error("expected remote-mcp to be removed after Unregister")
	}
}

func TestMcpRegistrar_Codex_WritesTOMLTable(t *testing.T) {
	ctx := &contextx.Context{Spawner: contextx.ExecSpawner{}}
	r := NewMcpRegistrar(ctx)
	home := t.TempDir()

	entry := manifest.McpEntry{Kind: manifest.McpStdio, Command: "codex-mcp-server"}
	if err := r.Register(agentkind.Codex, "local-mcp", entry, home); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(home, ".codex", "config.toml"))
	if err != nil {
		t.Fatalf("expected config.toml: %v", err)
	}
	if !strings.Contains(string(data), "[mcp_servers.local-mcp]") {
		t.Errorf("config.toml missing mcp_servers table:\n%s", data)
	}

	if err := r.Unregister(agentkind.Codex, "local-mcp", home); err != nil {
		t.Fatalf("Unregister() error = %v", err)
	}
	data, _ = os.ReadFile(filepath.Join(home, ".codex", "config.toml"))
	if strings.Contains(string(data), "[mcp_servers.local-mcp]") {
		t.Errorf("config.toml still has the removed table:\n%s", data)
	}
}

func TestMcpRegistrar_UnsupportedAgent(t *testing.T) {
	ctx := &contextx.Context{Spawner: contextx.ExecSpawner{}}
	r := NewMcpRegistrar(ctx)
	entry := manifest.McpEntry{Kind: manifest.McpStdio, Command: "x"}
	if err := r.Register(agentkind.Aider, "x", entry, t.TempDir()); err == nil {
		t.Error("Register() on aider (no mcp capability) should error")
	}
}
