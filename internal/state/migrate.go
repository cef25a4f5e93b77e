package state

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// decodeWithMigration parses the on-disk bytes as either the current Meta
// format or one of the two legacy formats named in spec.md §4.A, returning
// the current-format Meta and whether a migration was applied.
func decodeWithMigration(data []byte) (*Meta, bool, error) {
	// Current format: a YAML document already using "repos"/"agents".
	var current Meta
	if err := yaml.Unmarshal(data, &current); err == nil && looksCurrent(data) {
		current.ensureMaps()
		return &current, false, nil
	}

	// Legacy (a): older YAML with "scopes" (-> "repos") and
	// "versions.{agent}.default" (-> "agents.{agent}").
	var legacyYAML legacyYAMLDoc
	if err := yaml.Unmarshal(data, &legacyYAML); err == nil && (len(legacyYAML.Scopes) > 0 || len(legacyYAML.Versions) > 0) {
		return legacyYAML.toMeta(), true, nil
	}

	// Legacy (b): older JSON state file -> synthesize a single "user" repo.
	var legacyJSON legacyJSONDoc
	if err := json.Unmarshal(data, &legacyJSON); err == nil && legacyJSON.Source != "" {
		return legacyJSON.toMeta(), true, nil
	}

	// Fall back: treat as current-format with whatever yaml.Unmarshal managed.
	current.ensureMaps()
	return &current, false, nil
}

func looksCurrent(data []byte) bool {
	var probe struct {
		Repos    map[string]any `yaml:"repos"`
		Scopes   map[string]any `yaml:"scopes"`
		Versions map[string]any `yaml:"versions"`
		Source   string         `yaml:"source"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return false
	}
	// Current format never has "scopes"/"versions" (legacy (a)) or a
	// top-level "source" (legacy (b); JSON parses as YAML too).
	return len(probe.Scopes) == 0 && len(probe.Versions) == 0 && probe.Source == ""
}

// legacyYAMLDoc mirrors the older YAML layout: "scopes" instead of "repos",
// and "versions.{agent}.default" instead of the flat "agents.{agent}".
type legacyYAMLDoc struct {
	Scopes   map[string]RepoRecord           `yaml:"scopes"`
	Versions map[string]legacyVersionDefault `yaml:"versions"`
}

type legacyVersionDefault struct {
	Default string `yaml:"default"`
}

func (l legacyYAMLDoc) toMeta() *Meta {
	m := NewMeta()
	for slot, rec := range l.Scopes {
		m.Repos[slot] = rec
	}
	for agent, v := range l.Versions {
		if v.Default != "" {
			m.Agents[agent] = v.Default
		}
	}
	return m
}

// legacyJSONDoc mirrors the even older JSON state file, which named only a
// single source; it synthesizes a single "user" repo record from it.
type legacyJSONDoc struct {
	Source string `json:"source"`
	Branch string `json:"branch"`
	Commit string `json:"commit"`
}

func (l legacyJSONDoc) toMeta() *Meta {
	m := NewMeta()
	m.Repos[SlotUser] = RepoRecord{
		Source:     l.Source,
		Branch:     l.Branch,
		LastCommit: l.Commit,
		Priority:   PriorityUser,
	}
	return m
}
