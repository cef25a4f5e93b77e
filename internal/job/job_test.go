package job

import (
	"strings"
	"testing"
	"time"

	"github.com/agentctl/agentctl/internal/agentkind"
)

func TestParse_AppliesDefaults(t *testing.T) {
	data := []byte("schedule: \"0 9 * * *\"\nagent: claude\nprompt: \"do the thing\"\n")
	s, err := Parse("daily-report", data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if s.Mode != DefaultMode || s.Effort != DefaultEffort || s.Timeout != DefaultTimeout {
		t.Errorf("defaults not applied: %+v", s)
	}
	if s.Enabled == nil || !*s.Enabled {
		t.Error("enabled should default true")
	}
}

func TestMarshal_OmitsDefaults(t *testing.T) {
	enabled := true
	s := Spec{
		Name:     "daily-report",
		Schedule: "0 9 * * *",
		Agent:    agentkind.Claude,
		Mode:     DefaultMode,
		Effort:   DefaultEffort,
		Timeout:  DefaultTimeout,
		Enabled:  &enabled,
		Prompt:   "do the thing",
	}
	data, err := Marshal(s)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	out := string(data)
	for _, field := range []string{"mode:", "effort:", "timeout:", "enabled:"} {
		if strings.Contains(out, field) {
			t.Errorf("Marshal() output should omit default field %q: %s", field, out)
		}
	}
}

func TestValidate_AccumulatesErrors(t *testing.T) {
	s := Spec{
		Name:     "",
		Schedule: "",
		Agent:    "aider",
		Mode:     "bogus",
		Timeout:  "not-a-duration",
		Prompt:   "",
	}
	errs := Validate(s)
	if len(errs) < 5 {
		t.Fatalf("Validate() = %d errors, want at least 5: %v", len(errs), errs)
	}
}

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"30m", 30 * time.Minute, false},
		{"1h", time.Hour, false},
		{"1h30m", 90 * time.Minute, false},
		{"0m", 0, true},
		{"bogus", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseTimeout(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTimeout(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseTimeout(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestResolvePrompt(t *testing.T) {
	s := Spec{Name: "daily-report", Prompt: "Report for {job_name} on {date}: {last_report}"}
	now := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	got := ResolvePrompt(s, now, "")
	want := "Report for daily-report on 2026-07-31: (no previous report)"
	if got != want {
		t.Errorf("ResolvePrompt() = %q, want %q", got, want)
	}
}

func TestBuildCommand_PerAgentFlags(t *testing.T) {
	claude := Spec{Agent: agentkind.Claude, Mode: ModeEdit, Config: map[string]string{"model": "opus"}}
	argv, err := BuildCommand(claude, "do it")
	if err != nil {
		t.Fatalf("BuildCommand(claude) error = %v", err)
	}
	if !contains(argv, "acceptEdits") || !contains(argv, "--model") || !contains(argv, "opus") {
		t.Errorf("BuildCommand(claude edit) = %v", argv)
	}

	codex := Spec{Agent: agentkind.Codex, Mode: ModeEdit}
	argv, err = BuildCommand(codex, "do it")
	if err != nil {
		t.Fatalf("BuildCommand(codex) error = %v", err)
	}
	if !contains(argv, "--full-auto") {
		t.Errorf("BuildCommand(codex edit) = %v, want --full-auto", argv)
	}

	gemini := Spec{Agent: agentkind.Gemini, Mode: ModePlan}
	argv, err = BuildCommand(gemini, "do it")
	if err != nil {
		t.Fatalf("BuildCommand(gemini) error = %v", err)
	}
	if contains(argv, "--yolo") {
		t.Errorf("BuildCommand(gemini plan) should not include --yolo: %v", argv)
	}

	if _, err := BuildCommand(Spec{Agent: "aider"}, "x"); err == nil {
		t.Error("expected error for unsupported agent")
	}
}

func contains(ss []string, target string) bool {
	for _, s := range ss {
		if s == target {
			return true
		}
	}
	return false
}
