package sync

import (
	"path/filepath"
	"testing"

	"github.com/agentctl/agentctl/internal/agentkind"
)

func TestDiscoverCommands_OverrideRule(t *testing.T) {
	repo := t.TempDir()
	writeFile(t, filepath.Join(repo, "shared", "commands", "deploy.md"), "shared deploy")
	writeFile(t, filepath.Join(repo, "claude", "commands", "deploy.md"), "claude-specific deploy")
	writeFile(t, filepath.Join(repo, "shared", "commands", "review.md"), "shared review")

	cmds := discoverCommands(repo)
	if len(cmds) != 2 {
		t.Fatalf("discoverCommands() returned %d entries, want 2 (no duplicate for deploy)", len(cmds))
	}

	found := false
	for _, c := range cmds {
		if c.Name == "deploy" {
			found = true
			if !c.Shared {
				t.Errorf("presentation list for %q should prefer the shared entry", "deploy")
			}
		}
	}
	if !found {
		t.Fatal("discoverCommands() did not surface \"deploy\"")
	}

	src, ok := resolveCommandSource(repo, "deploy", agentkind.Claude)
	if !ok {
		t.Fatal("resolveCommandSource() not found")
	}
	if filepath.Base(filepath.Dir(filepath.Dir(src))) != "claude" {
		t.Errorf("resolveCommandSource(claude) = %q, want the claude-specific override", src)
	}

	src, ok = resolveCommandSource(repo, "deploy", agentkind.Gemini)
	if !ok {
		t.Fatal("resolveCommandSource() not found")
	}
	if filepath.Base(filepath.Dir(filepath.Dir(src))) != "shared" {
		t.Errorf("resolveCommandSource(gemini) = %q, want the shared fallback", src)
	}
}

func TestDiscoverSkills_ParsesFrontMatter(t *testing.T) {
	repo := t.TempDir()
	writeFile(t, filepath.Join(repo, "skills", "reviewer", "SKILL.md"),
		"---\ndescription: reviews pull requests\nversion: \"1.2\"\n---\nSkill body.\n")
	writeFile(t, filepath.Join(repo, "skills", "reviewer", "rules", "style.md"), "style rule")

	skills := discoverSkills(repo)
	if len(skills) != 1 {
		t.Fatalf("discoverSkills() returned %d, want 1", len(skills))
	}
	s := skills[0]
	if s.Metadata.Description != "reviews pull requests" {
		t.Errorf("Metadata.Description = %q", s.Metadata.Description)
	}
	if s.RuleCount != 1 {
		t.Errorf("RuleCount = %d, want 1", s.RuleCount)
	}
}

func TestDiscover_MissingOptionalDirsAreEmpty(t *testing.T) {
	repo := t.TempDir()
	d, err := Discover(repo)
	if err != nil {
		t.Fatalf("Discover() on an empty repo should not error: %v", err)
	}
	if len(d.Commands) != 0 || len(d.Skills) != 0 || len(d.Hooks) != 0 ||
		len(d.Memory) != 0 || len(d.Jobs) != 0 || len(d.Drives) != 0 {
		t.Errorf("Discover() on an empty repo = %+v, want all empty", d)
	}
}

func TestSplitFrontMatter(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantFM   string
		wantBody string
	}{
		{
			name:     "with front matter",
			content:  "---\na: 1\n---\nbody text\n",
			wantFM:   "a: 1",
			wantBody: "body text\n",
		},
		{
			name:     "no front matter",
			content:  "just body\n",
			wantFM:   "",
			wantBody: "just body\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm, body := splitFrontMatter(tt.content)
			if fm != tt.wantFM {
				t.Errorf("frontMatter = %q, want %q", fm, tt.wantFM)
			}
			if body != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
		})
	}
}
