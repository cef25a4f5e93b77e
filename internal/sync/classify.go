package sync

import (
	"os"
	"path/filepath"

	"github.com/agentctl/agentctl/internal/manifest"
	"github.com/agentctl/agentctl/internal/state"
)

// State is one of {new, in_sync, drifted}, computed per discovered resource
// against its central-store target (spec.md §4.C classification).
type State string

const (
	StateNew     State = "new"
	StateInSync  State = "in_sync"
	StateDrifted State = "drifted"
)

// Change is one resource's classification against the local install, plus
// enough information for the applier to act on it.
type Change struct {
	Category   manifest.ResourceCategory
	Name       string
	SourcePath string
	TargetPath string
	SourceDir  bool // true for skill/drive directories
	State      State
}

// Classify compares every discovered resource against layout's central
// store and returns one Change per resource (spec.md §4.C).
func Classify(layout state.Layout, d *Discovered) []Change {
	var out []Change

	for _, c := range d.Commands {
		target := filepath.Join(layout.Commands(), c.Name+".md")
		out = append(out, classifyFile(manifest.CategoryCommand, c.Name, c.SourcePath, target))
	}
	for _, s := range d.Skills {
		target := filepath.Join(layout.Skills(), s.Name)
		out = append(out, classifyDir(manifest.CategorySkill, s.Name, s.SourcePath, target))
	}
	for _, h := range d.Hooks {
		target := filepath.Join(layout.Hooks(), h.Name)
		out = append(out, classifyFile(manifest.CategoryHook, h.Name, h.SourcePath, target))
	}
	for _, mres := range d.Memory {
		target := filepath.Join(layout.Memory(), mres.FileName)
		out = append(out, classifyFile(manifest.CategoryMemory, mres.FileName, mres.SourcePath, target))
	}
	for _, j := range d.Jobs {
		target := filepath.Join(layout.Jobs(), j.Name+".yml")
		out = append(out, classifyFile(manifest.CategoryJob, j.Name, j.SourcePath, target))
	}
	for _, dr := range d.Drives {
		target := filepath.Join(layout.Drives(), filepath.Base(dr.SourcePath))
		ch := classifyDirOrFile(manifest.CategoryDrive, dr.Name, dr.SourcePath, target)
		out = append(out, ch)
	}

	return out
}

func classifyFile(cat manifest.ResourceCategory, name, source, target string) Change {
	ch := Change{Category: cat, Name: name, SourcePath: source, TargetPath: target}
	targetData, err := os.ReadFile(target)
	if err != nil {
		ch.State = StateNew
		return ch
	}
	sourceData, err := os.ReadFile(source)
	if err != nil {
		ch.State = StateDrifted
		return ch
	}
	if manifest.ContentMatches(string(sourceData), string(targetData)) {
		ch.State = StateInSync
	} else {
		ch.State = StateDrifted
	}
	return ch
}

// classifyDir handles skill directories: in_sync only if every file in the
// source tree matches its target counterpart byte-for-byte (post
// normalization) and no extra/missing files exist.
func classifyDir(cat manifest.ResourceCategory, name, source, target string) Change {
	ch := Change{Category: cat, Name: name, SourcePath: source, TargetPath: target, SourceDir: true}
	if _, err := os.Stat(target); os.IsNotExist(err) {
		ch.State = StateNew
		return ch
	}
	if dirsMatch(source, target) {
		ch.State = StateInSync
	} else {
		ch.State = StateDrifted
	}
	return ch
}

func classifyDirOrFile(cat manifest.ResourceCategory, name, source, target string) Change {
	info, err := os.Stat(source)
	if err == nil && info.IsDir() {
		return classifyDir(cat, name, source, target)
	}
	return classifyFile(cat, name, source, target)
}

// dirsMatch walks source and compares every regular file's normalized
// content against the same relative path under target; any mismatch,
// missing file, or extra file under target counts as drifted.
func dirsMatch(source, target string) bool {
	sourceFiles := map[string]string{}
	if err := collectFiles(source, source, sourceFiles); err != nil {
		return false
	}
	targetFiles := map[string]string{}
	if err := collectFiles(target, target, targetFiles); err != nil {
		return false
	}
	if len(sourceFiles) != len(targetFiles) {
		return false
	}
	for rel, srcData := range sourceFiles {
		tgtData, ok := targetFiles[rel]
		if !ok || !manifest.ContentMatches(srcData, tgtData) {
			return false
		}
	}
	return true
}

func collectFiles(root, dir string, into map[string]string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		full := filepath.Join(dir, e.Name())
		if e.IsDir() {
			if err := collectFiles(root, full, into); err != nil {
				return err
			}
			continue
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, full)
		if err != nil {
			return err
		}
		into[rel] = string(data)
	}
	return nil
}
