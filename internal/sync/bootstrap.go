package sync

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/agentctl/agentctl/internal/contextx"
	"github.com/agentctl/agentctl/internal/state"
)

// DefaultSystemRepoSource is the hard-coded source cloned into the reserved
// "system" slot the first time a sync is invoked with no repo configured
// (spec.md §4.C Bootstrap). Overridable via config.jsonc (A.2).
const DefaultSystemRepoSource = "https://github.com/agentctl/agentctl-config-defaults.git"

// RepoPath is the on-disk clone location for a repo slot.
func RepoPath(layout state.Layout, slot string) string {
	return filepath.Join(layout.Repos(), slot)
}

// Bootstrap ensures the "system" repo slot exists, cloning defaultSource
// into it and marking it readonly the first time any sync operation runs
// with no repo configured at all. It is a no-op (returning the existing
// clone path) once the slot is populated.
func Bootstrap(ctx *contextx.Context, transport GitTransport, defaultSource string) (string, error) {
	if defaultSource == "" {
		defaultSource = DefaultSystemRepoSource
	}

	meta, err := ctx.Store.ReadMeta()
	if err != nil {
		return "", err
	}
	if _, ok := meta.GetRepo(state.SlotSystem); ok {
		return RepoPath(ctx.Store.Layout, state.SlotSystem), nil
	}
	if len(meta.Repos) > 0 {
		// Some other slot is configured; bootstrap only fires when nothing
		// at all is configured (spec.md §4.C: "if no repo is configured").
		if sr, ok := meta.HighestPriorityRepo(); ok {
			return RepoPath(ctx.Store.Layout, sr.Slot), nil
		}
	}

	target := RepoPath(ctx.Store.Layout, state.SlotSystem)
	commit, _, err := transport.CloneOrPull(defaultSource, target, "main")
	if err != nil {
		return "", fmt.Errorf("sync: bootstrap clone of %q failed: %w", defaultSource, err)
	}

	if meta.Repos == nil {
		meta.Repos = make(map[string]state.RepoRecord)
	}
	// Constructed directly rather than through Meta.SetRepo: a readonly slot
	// being created for the first time is the one case SetRepo's
	// already-readonly rejection must not apply to (state/meta.go).
	meta.Repos[state.SlotSystem] = state.RepoRecord{
		Source:       defaultSource,
		Branch:       "main",
		LastCommit:   commit,
		LastSyncedAt: ctx.Clock.Now().UTC().Format(time.RFC3339),
		Priority:     state.PrioritySystem,
		Readonly:     true,
	}
	if err := ctx.Store.WriteMeta(meta); err != nil {
		return "", err
	}
	return target, nil
}
