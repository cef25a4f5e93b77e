// Package sandbox implements the job runner's overlay-HOME preparation and
// child-process spawn/timeout/report-extraction semantics (spec.md §4.D).
// The default backend is a plain overlay HOME directory: containerization is
// explicitly a Non-goal as a security boundary, never the default.
package sandbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/agentctl/agentctl/internal/agentkind"
	"github.com/agentctl/agentctl/internal/job"
)

// PrepareHome computes the overlay HOME for jobName under jobsDir, destroys
// any previous overlay, creates a fresh one, writes the agent's config into
// it, and symlinks allow.dirs that fall within the real home (spec.md §4.D
// prepare_home).
func PrepareHome(jobsDir, jobName string, spec job.Spec, realHome string) (string, error) {
	overlay := filepath.Join(jobsDir, jobName, "home")
	if err := os.RemoveAll(overlay); err != nil {
		return "", fmt.Errorf("sandbox: failed clearing overlay: %w", err)
	}
	if err := os.MkdirAll(overlay, 0o755); err != nil {
		return "", fmt.Errorf("sandbox: failed creating overlay: %w", err)
	}

	if err := writeAgentConfig(overlay, spec); err != nil {
		return "", err
	}

	linkAllowedDirs(overlay, spec.Allow.Dirs, realHome)

	return overlay, nil
}

func writeAgentConfig(overlay string, spec job.Spec) error {
	switch spec.Agent {
	case agentkind.Claude:
		return writeClaudeSettings(overlay, spec)
	case agentkind.Codex:
		return writeCodexConfig(overlay, spec)
	case agentkind.Gemini:
		return writeGeminiSettings(overlay, spec)
	default:
		return fmt.Errorf("sandbox: agent %q has no sandbox config writer", spec.Agent)
	}
}

type claudePermissions struct {
	Allow []string `json:"allow"`
	Deny  []string `json:"deny"`
}

type claudeSettings struct {
	Permissions claudePermissions `json:"permissions"`
}

func writeClaudeSettings(overlay string, spec job.Spec) error {
	dir := filepath.Join(overlay, ".claude")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	settings := claudeSettings{
		Permissions: claudePermissions{
			Allow: job.ClaudePermissions(spec),
			Deny:  []string{},
		},
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "settings.json"), data, 0o644)
}

func writeCodexConfig(overlay string, spec job.Spec) error {
	dir := filepath.Join(overlay, ".codex")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	approvalMode := "suggest"
	if spec.Mode == job.ModeEdit {
		approvalMode = "full-auto"
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "approval_mode = %q\n", approvalMode)
	if model, ok := spec.Config["model"]; ok && model != "" {
		fmt.Fprintf(&buf, "model = %q\n", model)
	}
	for k, v := range spec.Config {
		if k == "model" {
			continue
		}
		buf.WriteString(k)
		buf.WriteString(" = ")
		buf.WriteString(tomlScalarLiteral(v))
		buf.WriteString("\n")
	}

	// Round-trip through the toml decoder to catch malformed scalar emission
	// before it reaches disk; BurntSushi/toml is used for the read-back
	// verification, mirroring its use elsewhere in this codebase for
	// decoding agent config documents.
	var probe map[string]any
	if err := toml.Unmarshal(buf.Bytes(), &probe); err != nil {
		return fmt.Errorf("sandbox: generated invalid codex config.toml: %w", err)
	}

	return os.WriteFile(filepath.Join(dir, "config.toml"), buf.Bytes(), 0o644)
}

// tomlScalarLiteral renders a stringly-typed config value as a TOML scalar:
// booleans and numbers are emitted bare, everything else is quoted
// (spec.md §4.D).
func tomlScalarLiteral(v string) string {
	if v == "true" || v == "false" {
		return v
	}
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		return v
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return v
	}
	return strconv.Quote(v)
}

func writeGeminiSettings(overlay string, spec job.Spec) error {
	dir := filepath.Join(overlay, ".gemini")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	merged := map[string]any{}
	for k, v := range spec.Config {
		merged[k] = v
	}
	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "settings.json"), data, 0o644)
}

// linkAllowedDirs symlinks each dir in dirs into the overlay at its
// real-home-relative path, if dir falls within realHome. Dirs outside
// realHome are silently skipped (spec.md §4.D step 3).
func linkAllowedDirs(overlay string, dirs []string, realHome string) {
	if realHome == "" {
		return
	}
	realHome = filepath.Clean(realHome)
	for _, dir := range dirs {
		resolved := dir
		if strings.HasPrefix(dir, "~") {
			resolved = filepath.Join(realHome, strings.TrimPrefix(dir, "~"))
		}
		resolved = filepath.Clean(resolved)

		rel, err := filepath.Rel(realHome, resolved)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue // outside real HOME: silently skipped
		}

		target := filepath.Join(overlay, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			continue
		}
		_ = os.Symlink(resolved, target)
	}
}
