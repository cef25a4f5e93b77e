// Package sync implements Component C, the Sync Engine: discovery of a
// config repo's fixed layout, classification against the local install,
// an overwrite/skip/cancel-all decision loop, and an applier that installs
// centrally and fans resources out to every version-managed agent home.
//
// Grounded on the teacher's internal/project.Manager (directory-tree
// discovery and per-resource copy-in patterns) and internal/schedule's
// store-then-reconcile shape, generalized from "one project's container
// state" to "one repo's declared resources vs six local categories."
package sync

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agentctl/agentctl/internal/agentkind"
	"github.com/agentctl/agentctl/internal/manifest"
	"gopkg.in/yaml.v3"
)

// Discovered holds every resource found in a repo's fixed layout
// (spec.md §4.C): shared/commands/, {agent}/{commands_subdir}/, skills/,
// hooks/, memory/, jobs/, drives/, and agents.yaml at the root.
type Discovered struct {
	Manifest *manifest.Manifest
	Commands []manifest.CommandResource
	Skills   []manifest.SkillResource
	Hooks    []manifest.HookResource
	Memory   []manifest.MemoryResource
	Jobs     []manifest.JobResource
	Drives   []manifest.DriveResource
}

// Discover walks repoRoot and returns every declared resource. A missing
// optional subdirectory is simply empty, not an error; only I/O failures on
// directories that do exist are propagated.
func Discover(repoRoot string) (*Discovered, error) {
	d := &Discovered{Manifest: &manifest.Manifest{}}

	if m, err := manifest.Load(filepath.Join(repoRoot, "agents.yaml")); err == nil {
		d.Manifest = m
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	d.Commands = discoverCommands(repoRoot)
	d.Skills = discoverSkills(repoRoot)
	d.Hooks = discoverHooks(repoRoot)
	d.Memory = discoverMemory(repoRoot)
	d.Jobs = discoverJobs(repoRoot)
	d.Drives = discoverDrives(repoRoot)
	return d, nil
}

// discoverCommands applies the override rule: an agent-specific subdir
// entry wins over a shared/commands/ entry of the same name when resolving
// the source to install FOR THAT AGENT. Agents are walked in agentkind.All
// order so overrides are resolved deterministically when more than one
// agent declares the same command name with different content; the
// presentation list below shows each name once, preferring the shared
// source, per spec.md §4.C "discovery for presentation lists shared first
// and does not duplicate."
func discoverCommands(repoRoot string) []manifest.CommandResource {
	byName := make(map[string]manifest.CommandResource)

	sharedDir := filepath.Join(repoRoot, "shared", "commands")
	for _, e := range readMarkdownFiles(sharedDir) {
		name := strings.TrimSuffix(e, ".md")
		byName[name] = manifest.CommandResource{
			Name:       name,
			SourcePath: filepath.Join(sharedDir, e),
			Shared:     true,
		}
	}

	for _, agent := range agentkind.All() {
		desc, ok := agentkind.Describe(agent)
		if !ok {
			continue
		}
		agentDir := filepath.Join(repoRoot, string(agent), desc.CommandsSubdir)
		for _, e := range readMarkdownFiles(agentDir) {
			name := strings.TrimSuffix(e, ".md")
			if existing, ok := byName[name]; ok && existing.Shared {
				// Shared entry already covers presentation; the override
				// still wins at install time via resolveCommandSource.
				continue
			}
			byName[name] = manifest.CommandResource{
				Name:       name,
				SourcePath: filepath.Join(agentDir, e),
				Shared:     false,
			}
		}
	}

	out := make([]manifest.CommandResource, 0, len(byName))
	for _, c := range byName {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// resolveCommandSource returns the path that should be installed for name
// when syncing agent: an agent-specific override if present, else shared.
func resolveCommandSource(repoRoot, name string, agent agentkind.ID) (string, bool) {
	desc, ok := agentkind.Describe(agent)
	if ok {
		p := filepath.Join(repoRoot, string(agent), desc.CommandsSubdir, name+".md")
		if fileExists(p) {
			return p, true
		}
	}
	p := filepath.Join(repoRoot, "shared", "commands", name+".md")
	if fileExists(p) {
		return p, true
	}
	return "", false
}

func discoverSkills(repoRoot string) []manifest.SkillResource {
	dir := filepath.Join(repoRoot, "skills")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []manifest.SkillResource
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		skillDir := filepath.Join(dir, e.Name())
		meta := loadSkillMetadata(filepath.Join(skillDir, "SKILL.md"))
		ruleCount := 0
		if rules, err := os.ReadDir(filepath.Join(skillDir, "rules")); err == nil {
			for _, r := range rules {
				if !r.IsDir() {
					ruleCount++
				}
			}
		}
		out = append(out, manifest.SkillResource{
			Name:       e.Name(),
			SourcePath: skillDir,
			Metadata:   meta,
			RuleCount:  ruleCount,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func discoverHooks(repoRoot string) []manifest.HookResource {
	dir := filepath.Join(repoRoot, "hooks")
	var out []manifest.HookResource
	for _, e := range readAllFiles(dir) {
		out = append(out, manifest.HookResource{
			Name:       e,
			SourcePath: filepath.Join(dir, e),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func discoverMemory(repoRoot string) []manifest.MemoryResource {
	dir := filepath.Join(repoRoot, "memory")
	var out []manifest.MemoryResource
	for _, e := range readAllFiles(dir) {
		out = append(out, manifest.MemoryResource{
			SourcePath: filepath.Join(dir, e),
			FileName:   e,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileName < out[j].FileName })
	return out
}

func discoverJobs(repoRoot string) []manifest.JobResource {
	dir := filepath.Join(repoRoot, "jobs")
	var out []manifest.JobResource
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yml" && ext != ".yaml" {
			continue
		}
		out = append(out, manifest.JobResource{
			Name:       strings.TrimSuffix(e.Name(), ext),
			SourcePath: filepath.Join(dir, e.Name()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func discoverDrives(repoRoot string) []manifest.DriveResource {
	dir := filepath.Join(repoRoot, "drives")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []manifest.DriveResource
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() {
			name = strings.TrimSuffix(name, filepath.Ext(name))
		}
		out = append(out, manifest.DriveResource{
			Name:       name,
			SourcePath: filepath.Join(dir, e.Name()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func readMarkdownFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		out = append(out, e.Name())
	}
	return out
}

func readAllFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		out = append(out, e.Name())
	}
	return out
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// loadSkillMetadata reads SKILL.md's YAML front matter, if any. Parse
// failures yield zero-value metadata rather than an error: a malformed
// SKILL.md shouldn't stop discovery of every other skill.
func loadSkillMetadata(path string) manifest.SkillMetadata {
	var meta manifest.SkillMetadata
	data, err := os.ReadFile(path)
	if err != nil {
		return meta
	}
	fm, _ := splitFrontMatter(string(data))
	if fm == "" {
		return meta
	}
	_ = yaml.Unmarshal([]byte(fm), &meta)
	return meta
}

// splitFrontMatter splits a "---\n...\n---\nbody" document into its YAML
// front matter and body. Returns ("", content) when there is no front
// matter block.
func splitFrontMatter(content string) (frontMatter, body string) {
	const delim = "---"
	if !strings.HasPrefix(content, delim) {
		return "", content
	}
	rest := content[len(delim):]
	rest = strings.TrimPrefix(rest, "\n")
	idx := strings.Index(rest, "\n"+delim)
	if idx < 0 {
		return "", content
	}
	frontMatter = rest[:idx]
	body = strings.TrimPrefix(rest[idx+len("\n"+delim):], "\n")
	return frontMatter, body
}
