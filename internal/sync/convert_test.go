package sync

import (
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
)

func TestMarkdownToTOML_UsesFrontMatterDescription(t *testing.T) {
	converter := NewMarkdownToTOML()
	md := "---\ndescription: deploys the service\n---\nRun the deploy pipeline.\n"

	out, err := converter.ToTOML("deploy", md)
	if err != nil {
		t.Fatalf("ToTOML() error = %v", err)
	}

	var decoded tomlCommand
	if _, err := toml.Decode(out, &decoded); err != nil {
		t.Fatalf("generated toml did not decode: %v\n%s", err, out)
	}
	if decoded.Description != "deploys the service" {
		t.Errorf("Description = %q, want %q", decoded.Description, "deploys the service")
	}
	if !strings.Contains(decoded.Prompt, "Run the deploy pipeline.") {
		t.Errorf("Prompt = %q, missing body", decoded.Prompt)
	}
}

func TestMarkdownToTOML_FallsBackToFirstHeading(t *testing.T) {
	converter := NewMarkdownToTOML()
	md := "# Deploy Service\n\nRun the deploy pipeline.\n"

	out, err := converter.ToTOML("deploy", md)
	if err != nil {
		t.Fatalf("ToTOML() error = %v", err)
	}

	var decoded tomlCommand
	if _, err := toml.Decode(out, &decoded); err != nil {
		t.Fatalf("generated toml did not decode: %v", err)
	}
	if decoded.Description != "Deploy Service" {
		t.Errorf("Description = %q, want %q", decoded.Description, "Deploy Service")
	}
}

func TestFrontMatterField(t *testing.T) {
	fm := "description: hello world\nauthor: someone\n"
	if got := frontMatterField(fm, "description"); got != "hello world" {
		t.Errorf("frontMatterField(description) = %q", got)
	}
	if got := frontMatterField(fm, "missing"); got != "" {
		t.Errorf("frontMatterField(missing) = %q, want empty", got)
	}
}
