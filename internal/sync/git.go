package sync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentctl/agentctl/internal/contextx"
)

// GitTransport is the narrow external collaborator spec.md §1 assumes:
// clone_or_pull(source, target_dir) -> (commit, is_new), plus the porcelain
// a "push" operation needs. The Sync Engine depends only on this interface,
// never on how the clone/pull is actually performed.
type GitTransport interface {
	CloneOrPull(source, targetDir, ref string) (commit string, isNew bool, err error)
	CurrentCommit(targetDir string) (string, error)
	Push(targetDir, message string) error
}

// execGitTransport shells out to the system git binary through the same
// contextx.Spawner seam version.Manager uses for npm installers, so tests
// can substitute a fake spawner instead of a real git binary.
type execGitTransport struct {
	ctx *contextx.Context
}

// NewGitTransport returns the production GitTransport.
func NewGitTransport(ctx *contextx.Context) GitTransport {
	return execGitTransport{ctx: ctx}
}

func (t execGitTransport) CloneOrPull(source, targetDir, ref string) (string, bool, error) {
	if t.ctx.Limiter != nil {
		_ = t.ctx.Limiter.Wait(context.Background(), "registry")
	}
	if ref == "" {
		ref = "main"
	}
	isNew := false
	if _, err := os.Stat(filepath.Join(targetDir, ".git")); os.IsNotExist(err) {
		isNew = true
		if err := os.RemoveAll(targetDir); err != nil {
			return "", false, fmt.Errorf("sync: failed clearing target dir: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(targetDir), 0o755); err != nil {
			return "", false, err
		}
		cmd := t.ctx.Spawner.Command("git", "clone", "--branch", ref, "--depth", "1", source, targetDir)
		if out, err := cmd.CombinedOutput(); err != nil {
			return "", false, fmt.Errorf("sync: git clone failed: %w: %s", err, strings.TrimSpace(string(out)))
		}
	} else {
		cmd := t.ctx.Spawner.Command("git", "-C", targetDir, "pull", "--ff-only", "origin", ref)
		if out, err := cmd.CombinedOutput(); err != nil {
			return "", false, fmt.Errorf("sync: git pull failed: %w: %s", err, strings.TrimSpace(string(out)))
		}
	}

	commit, err := t.CurrentCommit(targetDir)
	if err != nil {
		return "", isNew, err
	}
	return commit, isNew, nil
}

func (t execGitTransport) CurrentCommit(targetDir string) (string, error) {
	cmd := t.ctx.Spawner.Command("git", "-C", targetDir, "rev-parse", "HEAD")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("sync: git rev-parse failed: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (t execGitTransport) Push(targetDir, message string) error {
	add := t.ctx.Spawner.Command("git", "-C", targetDir, "add", "-A")
	if out, err := add.CombinedOutput(); err != nil {
		return fmt.Errorf("sync: git add failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	if message == "" {
		message = "agentctl: sync push"
	}
	commit := t.ctx.Spawner.Command("git", "-C", targetDir, "commit", "-m", message)
	if out, err := commit.CombinedOutput(); err != nil {
		if strings.Contains(string(out), "nothing to commit") {
			return nil
		}
		return fmt.Errorf("sync: git commit failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	push := t.ctx.Spawner.Command("git", "-C", targetDir, "push")
	if out, err := push.CombinedOutput(); err != nil {
		return fmt.Errorf("sync: git push failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
