// Package config loads agentctl's own configuration file (config.jsonc),
// distinct from the per-repo agents.yaml Manifest that internal/manifest
// parses. Grounded on the teacher's internal/config (FindConfigPath's
// precedence search, StripJSONComments + json.Unmarshal, ApplyDefaults over
// a zero-valued struct), trimmed from oubliette's server/credentials/models
// sections down to the handful of settings agentctl actually has.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is agentctl's own settings, loaded from config.jsonc.
type Config struct {
	// HomeOverride relocates the agents home directory away from its default
	// (~/.agentctl). Empty means use the default.
	HomeOverride string `json:"home,omitempty"`

	// HTTPTimeoutSeconds sets the timeout of the Context's shared HTTP
	// client. Zero means use DefaultHTTPTimeout.
	HTTPTimeoutSeconds int `json:"http_timeout_seconds,omitempty"`

	// BootstrapRepoSource overrides the hard-coded system repo bootstrap
	// source (sync.DefaultSystemRepoSource) for organizations that mirror
	// it internally.
	BootstrapRepoSource string `json:"bootstrap_repo_source,omitempty"`

	// JSONLogs makes structured JSON the default log format instead of the
	// console handler, without setting AGENTCTL_JSON_LOGS=1 on every
	// invocation.
	JSONLogs bool `json:"json_logs,omitempty"`

	// Color controls ANSI color in terminal output; nil means auto-detect.
	Color *bool `json:"color,omitempty"`
}

// DefaultHTTPTimeout matches contextx.New's http.Client default.
const DefaultHTTPTimeout = 30 * time.Second

// ApplyDefaults fills zero-valued fields with agentctl's defaults, mirroring
// the teacher's DefaultConfigDefaults pattern of a separate defaults
// constructor merged over whatever the file actually specified.
func (c *Config) ApplyDefaults() {
	if c.HTTPTimeoutSeconds == 0 {
		c.HTTPTimeoutSeconds = int(DefaultHTTPTimeout.Seconds())
	}
}

// HTTPTimeout returns HTTPTimeoutSeconds as a time.Duration.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// FindConfigPath returns the first existing config.jsonc among, in order:
// an explicit configDir override, ./config.jsonc (project-local), and
// ~/.agentctl/config.jsonc (user global). Returns "" with no error if none
// exist — an absent config file is not an error, just "use defaults".
func FindConfigPath(configDir string) (string, error) {
	var candidates []string
	if configDir != "" {
		candidates = append(candidates, filepath.Join(configDir, "config.jsonc"))
	}
	candidates = append(candidates, "config.jsonc")
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".agentctl", "config.jsonc"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			abs, err := filepath.Abs(path)
			if err != nil {
				return path, nil
			}
			return abs, nil
		}
	}
	return "", nil
}

// Load reads and parses config.jsonc from configDir (or its default search
// path), applying defaults. A missing file yields a defaulted, empty Config.
func Load(configDir string) (*Config, error) {
	path, err := FindConfigPath(configDir)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if path == "" {
		cfg.ApplyDefaults()
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	stripped := StripJSONComments(raw)
	if err := json.Unmarshal(stripped, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}
