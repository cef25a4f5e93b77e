// Package job implements the job-spec half of Component D: typed parsing,
// validation, prompt templating, and per-agent command assembly. Scheduling
// and process supervision live in internal/scheduler and internal/sandbox.
package job

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/agentctl/agentctl/internal/agentkind"
	"gopkg.in/yaml.v3"
)

// Mode is the plan/edit axis for a job's agent invocation.
type Mode string

const (
	ModePlan Mode = "plan"
	ModeEdit Mode = "edit"
)

// Effort is an informational hint builders may map to agent-specific flags.
type Effort string

const (
	EffortFast     Effort = "fast"
	EffortDefault  Effort = "default"
	EffortDetailed Effort = "detailed"
)

// defaults per spec.md §4.D.
const (
	DefaultMode    = ModePlan
	DefaultEffort  = EffortDefault
	DefaultTimeout = "30m"
)

// Allow is the permission surface granted to a job's agent invocation.
type Allow struct {
	Tools []string `yaml:"tools,omitempty"`
	Sites []string `yaml:"sites,omitempty"`
	Dirs  []string `yaml:"dirs,omitempty"`
}

// Spec is a parsed, defaulted job definition (spec.md §3 JobSpec).
type Spec struct {
	Name     string            `yaml:"-"` // derived from the file name, unique within jobs/
	Schedule string            `yaml:"schedule"`
	Agent    agentkind.ID      `yaml:"agent"`
	Mode     Mode              `yaml:"mode,omitempty"`
	Effort   Effort            `yaml:"effort,omitempty"`
	Timeout  string            `yaml:"timeout,omitempty"`
	Enabled  *bool             `yaml:"enabled,omitempty"`
	Prompt   string            `yaml:"prompt"`
	Allow    Allow             `yaml:"allow,omitempty"`
	Config   map[string]string `yaml:"config,omitempty"`
	Version  string            `yaml:"version,omitempty"`
	// Container opts a job into the docker-backed sandbox instead of the
	// default overlay-HOME exec path. Strictly opt-in; see internal/sandbox.
	Container bool `yaml:"container,omitempty"`
}

// rawSpec mirrors Spec field-for-field for YAML decode; kept distinct so
// Parse can apply defaults before exposing the strict Spec type.
type rawSpec struct {
	Schedule  string            `yaml:"schedule"`
	Agent     string            `yaml:"agent"`
	Mode      string            `yaml:"mode,omitempty"`
	Effort    string            `yaml:"effort,omitempty"`
	Timeout   string            `yaml:"timeout,omitempty"`
	Enabled   *bool             `yaml:"enabled,omitempty"`
	Prompt    string            `yaml:"prompt"`
	Allow     Allow             `yaml:"allow,omitempty"`
	Config    map[string]string `yaml:"config,omitempty"`
	Version   string            `yaml:"version,omitempty"`
	Container bool              `yaml:"container,omitempty"`
}

// Parse decodes a job spec from YAML, applying defaults for mode, effort,
// timeout, and enabled (spec.md §4.D).
func Parse(name string, data []byte) (Spec, error) {
	var raw rawSpec
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Spec{}, fmt.Errorf("job: failed to parse %s: %w", name, err)
	}

	enabled := true
	if raw.Enabled != nil {
		enabled = *raw.Enabled
	}

	s := Spec{
		Name:     name,
		Schedule: raw.Schedule,
		Agent:    agentkind.ID(raw.Agent),
		Mode:     Mode(raw.Mode),
		Effort:   Effort(raw.Effort),
		Timeout:  raw.Timeout,
		Enabled:  &enabled,
		Prompt:   raw.Prompt,
		Allow:    raw.Allow,
		Config:   raw.Config,
		Version:  raw.Version,
		Container: raw.Container,
	}
	if s.Mode == "" {
		s.Mode = DefaultMode
	}
	if s.Effort == "" {
		s.Effort = DefaultEffort
	}
	if s.Timeout == "" {
		s.Timeout = DefaultTimeout
	}
	return s, nil
}

// Marshal serializes s back to YAML, omitting fields that equal their
// default (spec.md §4.D "write-back omits fields that equal defaults").
func Marshal(s Spec) ([]byte, error) {
	raw := rawSpec{
		Schedule: s.Schedule,
		Agent:    string(s.Agent),
		Prompt:   s.Prompt,
		Allow:    s.Allow,
		Config:    s.Config,
		Version:   s.Version,
		Container: s.Container,
	}
	if s.Mode != DefaultMode {
		raw.Mode = string(s.Mode)
	}
	if s.Effort != DefaultEffort {
		raw.Effort = string(s.Effort)
	}
	if s.Timeout != DefaultTimeout {
		raw.Timeout = s.Timeout
	}
	if s.Enabled != nil && !*s.Enabled {
		v := false
		raw.Enabled = &v
	}
	return yaml.Marshal(raw)
}

// programmaticAgents is the closed set of agents that support one-shot
// programmatic invocation and are therefore eligible for daemon jobs.
var programmaticAgents = map[agentkind.ID]bool{
	agentkind.Claude: true,
	agentkind.Codex:  true,
	agentkind.Gemini: true,
}

// Validate accumulates every validation error rather than failing on the
// first (spec.md §3 invariant); a job with any error is rejected for write.
func Validate(s Spec) []error {
	var errs []error

	if strings.TrimSpace(s.Name) == "" {
		errs = append(errs, fmt.Errorf("job: name must not be empty"))
	}
	if strings.TrimSpace(s.Schedule) == "" {
		errs = append(errs, fmt.Errorf("job %s: schedule is required", s.Name))
	}
	if !programmaticAgents[s.Agent] {
		errs = append(errs, fmt.Errorf("job %s: agent %q is not supported for daemon jobs", s.Name, s.Agent))
	}
	if s.Mode != ModePlan && s.Mode != ModeEdit {
		errs = append(errs, fmt.Errorf("job %s: mode must be plan or edit, got %q", s.Name, s.Mode))
	}
	if _, err := ParseTimeout(s.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("job %s: %w", s.Name, err))
	}
	if strings.TrimSpace(s.Prompt) == "" {
		errs = append(errs, fmt.Errorf("job %s: prompt must not be empty", s.Name))
	}

	return errs
}

// LoadAll reads every *.yml/*.yaml file directly under jobsDir and parses it
// into a Spec, deriving Name from the file's base name (without extension).
// Files that fail to parse are skipped with their error collected rather
// than aborting the whole load, so one bad job file doesn't take every
// other job down with it.
func LoadAll(jobsDir string) ([]Spec, []error) {
	entries, err := os.ReadDir(jobsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, []error{fmt.Errorf("job: failed to read %s: %w", jobsDir, err)}
	}

	var specs []Spec
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yml" && ext != ".yaml" {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ext)
		data, err := os.ReadFile(filepath.Join(jobsDir, entry.Name()))
		if err != nil {
			errs = append(errs, fmt.Errorf("job: failed to read %s: %w", entry.Name(), err))
			continue
		}
		spec, err := Parse(name, data)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		specs = append(specs, spec)
	}

	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs, errs
}

// ParseTimeout parses the `NhNm` duration grammar (either or both units,
// non-zero).
func ParseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("timeout must not be empty")
	}

	var hours, minutes int
	rest := s
	if idx := strings.IndexByte(rest, 'h'); idx >= 0 {
		n, err := parseIntPrefix(rest[:idx])
		if err != nil {
			return 0, fmt.Errorf("invalid timeout %q: %w", s, err)
		}
		hours = n
		rest = rest[idx+1:]
	}
	if idx := strings.IndexByte(rest, 'm'); idx >= 0 {
		n, err := parseIntPrefix(rest[:idx])
		if err != nil {
			return 0, fmt.Errorf("invalid timeout %q: %w", s, err)
		}
		minutes = n
		rest = rest[idx+1:]
	}
	if strings.TrimSpace(rest) != "" {
		return 0, fmt.Errorf("invalid timeout %q: unexpected trailing %q", s, rest)
	}

	d := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute
	if d <= 0 {
		return 0, fmt.Errorf("invalid timeout %q: must be non-zero", s)
	}
	return d, nil
}

func parseIntPrefix(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("missing numeric component")
	}
	var n int
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%q is not numeric", s)
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}
