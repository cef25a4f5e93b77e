package drive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// mqTimeout bounds every mq subprocess call (spec.md §5).
const mqTimeout = 10 * time.Second

// mqAvailable reports whether the mq helper is on PATH.
func mqAvailable() bool {
	_, err := exec.LookPath("mq")
	return err == nil
}

// runMq invokes `mq {args...}` with a 10s timeout, returning stdout. A
// non-zero exit or timeout yields an error, per spec.md §4.E/§5.
func runMq(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, mqTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "mq", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("drive: mq timed out after %s", mqTimeout)
		}
		msg := stderr.String()
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("drive: mq failed: %s", msg)
	}
	return stdout.String(), nil
}

// outlineViaMq returns the structural outline of path using mq's tree query.
func outlineViaMq(ctx context.Context, path string) (string, error) {
	return runMq(ctx, path, `.tree("full")`)
}

// sectionViaMq extracts a named section from file using mq's section query.
func sectionViaMq(ctx context.Context, path, section string) (string, error) {
	return runMq(ctx, path, fmt.Sprintf(`.section(%q) | .text`, section))
}
