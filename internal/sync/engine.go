package sync

import (
	"github.com/agentctl/agentctl/internal/agentkind"
	"github.com/agentctl/agentctl/internal/contextx"
	"github.com/agentctl/agentctl/internal/daemon"
	"github.com/agentctl/agentctl/internal/manifest"
)

// Decision is the user's (or flag-forced) resolution for one drifted item.
type Decision string

const (
	DecisionOverwrite Decision = "overwrite"
	DecisionSkip      Decision = "skip"
	DecisionCancel    Decision = "cancel-all"
)

// PromptFunc asks the operator how to resolve one drifted change; the CLI
// layer supplies the real interactive implementation, tests supply a
// canned sequence.
type PromptFunc func(Change) Decision

// Options controls one Sync invocation (spec.md §4.C, §6 CLI surface).
type Options struct {
	Force  bool // bypass the decision loop, always overwrite drifted items
	Yes    bool // bypass the decision loop, always skip drifted items
	DryRun bool // classify and report only, install nothing
	Clean  bool // unregister MCP names absent from the manifest
	Agents []agentkind.ID // empty means every known agent
	Prompt PromptFunc
}

// Result is the outcome of one Sync call.
type Result struct {
	Installed []Change
	Skipped   []Change
	Errors    []error
	Canceled  bool
}

// Sync runs discovery, classification, the decision loop, and the applier
// (including per-version fan-out) against repoRoot, per spec.md §4.C.
// d may be nil when no daemon is available to signal on job changes.
func Sync(ctx *contextx.Context, repoRoot string, d *daemon.Daemon, opts Options) (*Result, error) {
	discovered, err := Discover(repoRoot)
	if err != nil {
		return nil, err
	}
	changes := Classify(ctx.Store.Layout, discovered)
	applier := NewApplier(ctx)
	result := &Result{}

	var drifted []Change
	for _, ch := range changes {
		switch ch.State {
		case StateNew:
			applyOrRecord(applier, d, ch, opts.DryRun, result)
		case StateDrifted:
			drifted = append(drifted, ch)
		case StateInSync:
			// Nothing to do.
		}
	}

	for _, ch := range drifted {
		switch resolveDecision(ch, opts) {
		case DecisionCancel:
			result.Canceled = true
			return result, nil
		case DecisionSkip:
			result.Skipped = append(result.Skipped, ch)
		case DecisionOverwrite:
			applyOrRecord(applier, d, ch, opts.DryRun, result)
		}
	}

	if opts.DryRun {
		return result, nil
	}

	result.Errors = append(result.Errors, applier.FanOut(discovered.Manifest, opts.Agents, opts.Clean)...)
	return result, nil
}

func resolveDecision(ch Change, opts Options) Decision {
	if opts.Force {
		return DecisionOverwrite
	}
	if opts.Yes {
		return DecisionSkip
	}
	if opts.Prompt != nil {
		return opts.Prompt(ch)
	}
	return DecisionSkip
}

func applyOrRecord(applier *Applier, d *daemon.Daemon, ch Change, dryRun bool, result *Result) {
	if dryRun {
		result.Installed = append(result.Installed, ch)
		return
	}
	if err := installChange(applier, d, ch); err != nil {
		result.Errors = append(result.Errors, err)
		return
	}
	result.Installed = append(result.Installed, ch)
}

func installChange(applier *Applier, d *daemon.Daemon, ch Change) error {
	if ch.Category == manifest.CategoryJob && d != nil {
		return InstallJob(d, ch)
	}
	return applier.InstallOne(ch)
}
