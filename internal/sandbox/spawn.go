package sandbox

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/agentctl/agentctl/internal/agentkind"
	"github.com/agentctl/agentctl/internal/contextx"
	"github.com/agentctl/agentctl/internal/job"
	"github.com/agentctl/agentctl/internal/metrics"
)

// safeEnvAllowlist is buildSpawnEnv's allowlist of "safe" environment
// variables; everything else (including provider credentials) is dropped
// from the child's environment (spec.md §4.D spawn semantics).
var safeEnvAllowlist = []string{"PATH", "SHELL", "LANG", "LC_ALL", "TERM", "TMPDIR", "USER"}

// buildSpawnEnv starts from the allowlist of safe vars, plus HOME pointed at
// the overlay; credentials (ANTHROPIC_API_KEY, AWS_*, OPENAI_API_KEY,
// SSH_AUTH_SOCK, etc.) are never copied in.
func buildSpawnEnv(overlayHome string) []string {
	env := []string{"HOME=" + overlayHome}
	for _, key := range safeEnvAllowlist {
		if v, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+v)
		}
	}
	return env
}

// Result is the outcome of a completed (or timed-out) job run.
type Result struct {
	Meta   RunMeta
	Report string
}

// killGracePeriod is how long waitWithTimeout waits after SIGTERM before
// escalating to SIGKILL.
const killGracePeriod = 5 * time.Second

// waitWithTimeout blocks on waitCh until it fires or timeout elapses. On
// timeout it SIGTERMs the process group rooted at pid, waits up to grace for
// a clean exit, and SIGKILLs the group if it's still alive. Split out of
// ExecuteJob so the kill escalation can be exercised with a short timeout/
// grace in tests without waiting out job.ParseTimeout's whole-minute grammar.
func waitWithTimeout(pid int, waitCh chan error, timeout, grace time.Duration) (waitErr error, timedOut bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case waitErr = <-waitCh:
		return waitErr, false
	case <-timer.C:
	}

	timedOut = true
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	select {
	case waitErr = <-waitCh:
	case <-time.After(grace):
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		waitErr = <-waitCh
	}
	return waitErr, timedOut
}

// ExecuteJob runs spec to completion: prepares the run directory, spawns the
// agent in its own process group with a filtered environment, tails stdout
// to a log file, enforces the job's timeout (SIGTERM, then SIGKILL after 5s),
// and extracts a report on exit (spec.md §4.D execute_job).
func ExecuteJob(ctx *contextx.Context, runDir string, spec job.Spec, argv []string, overlayHome, runID string) (Result, error) {
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("sandbox: failed creating run dir: %w", err)
	}

	if spec.Container {
		return executeContainerJob(ctx, runDir, spec, argv, overlayHome, runID)
	}

	logPath := filepath.Join(runDir, "stdout.log")
	logFile, err := os.Create(logPath)
	if err != nil {
		return Result{}, fmt.Errorf("sandbox: failed creating stdout.log: %w", err)
	}
	defer logFile.Close()

	startedAt := ctx.Clock.Now().UTC().Format(time.RFC3339)
	meta := RunMeta{JobName: spec.Name, RunID: runID, Agent: string(spec.Agent), Status: StatusRunning, StartedAt: startedAt}
	if err := WriteMeta(runDir, meta); err != nil {
		return Result{}, err
	}

	cmd := ctx.Spawner.Command(argv[0], argv[1:]...)
	cmd.Stdin = nil
	devNull, err := os.Open(os.DevNull)
	if err == nil {
		cmd.Stdin = devNull
		defer devNull.Close()
	}

	var captured bytes.Buffer
	cmd.Stdout = io.MultiWriter(logFile, &captured)
	cmd.Stderr = logFile
	cmd.Env = buildSpawnEnv(overlayHome)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		meta.Status = StatusFailed
		completed := ctx.Clock.Now().UTC().Format(time.RFC3339)
		meta.CompletedAt = &completed
		_ = WriteMeta(runDir, meta)
		return Result{Meta: meta}, fmt.Errorf("sandbox: failed to spawn job: %w", err)
	}

	pid := cmd.Process.Pid
	meta.PID = &pid
	_ = WriteMeta(runDir, meta)

	return finalizeRun(ctx, runDir, spec, meta, pid, func() io.Reader { return &captured }, waitCmd(cmd))
}

// waitCmd returns a channel that receives cmd.Wait()'s result exactly once,
// shared by ExecuteJob's synchronous wait and ExecuteJobDetached's
// background finalization.
func waitCmd(cmd *exec.Cmd) chan error {
	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()
	return waitCh
}

// finalizeRun waits (with timeout escalation) for a spawned job to exit,
// determines its terminal RunMeta status, extracts a report, persists the
// final meta, and records the run in metrics. Shared by ExecuteJob (which
// waits inline) and ExecuteJobDetached's background goroutine (which waits
// without blocking the caller) so both paths reach the same terminal state
// instead of leaving detached runs stuck at "running" for monitorRunningJobs
// to later mislabel as crashed. reportSource is only invoked once the wait
// completes, so a detached caller can defer reading stdout.log until the
// child has actually finished writing to it.
func finalizeRun(ctx *contextx.Context, runDir string, spec job.Spec, meta RunMeta, pid int, reportSource func() io.Reader, waitCh chan error) (Result, error) {
	timeout, err := job.ParseTimeout(spec.Timeout)
	if err != nil {
		timeout = 30 * time.Minute
	}

	startedAt, _ := time.Parse(time.RFC3339, meta.StartedAt)
	waitErr, timedOut := waitWithTimeout(pid, waitCh, timeout, killGracePeriod)

	completedAt := ctx.Clock.Now().UTC()
	completed := completedAt.Format(time.RFC3339)
	meta.CompletedAt = &completed

	switch {
	case timedOut:
		meta.Status = StatusTimeout
	case waitErr == nil:
		meta.Status = StatusCompleted
		code := 0
		meta.ExitCode = &code
	default:
		meta.Status = StatusFailed
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			code := exitErr.ExitCode()
			meta.ExitCode = &code
		}
	}

	var duration float64
	if !startedAt.IsZero() {
		duration = completedAt.Sub(startedAt).Seconds()
	}
	metrics.RecordRunTerminal(spec.Name, string(meta.Status), duration)

	report := ExtractReport(reportSource(), spec.Agent)
	if report != "" {
		reportPath := filepath.Join(runDir, "report.md")
		_ = os.WriteFile(reportPath, []byte(strings.TrimSpace(report)+"\n"), 0o644)
	}

	if err := WriteMeta(runDir, meta); err != nil {
		return Result{Meta: meta, Report: report}, err
	}
	return Result{Meta: meta, Report: report}, nil
}

// ExecuteJobDetached writes the initial RunMeta and spawns the child
// identically to ExecuteJob, but returns immediately after spawn without
// awaiting completion; a background goroutine waits for the child and writes
// the terminal state through finalizeRun. monitorRunningJobs (in
// internal/daemon) only reconciles runs whose process died before that.
func ExecuteJobDetached(ctx *contextx.Context, runDir string, spec job.Spec, argv []string, overlayHome, runID string) error {
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("sandbox: failed creating run dir: %w", err)
	}

	if spec.Container {
		go func() { _, _ = executeContainerJob(ctx, runDir, spec, argv, overlayHome, runID) }()
		return nil
	}

	logPath := filepath.Join(runDir, "stdout.log")
	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("sandbox: failed creating stdout.log: %w", err)
	}

	startedAt := ctx.Clock.Now().UTC().Format(time.RFC3339)
	meta := RunMeta{JobName: spec.Name, RunID: runID, Agent: string(spec.Agent), Status: StatusRunning, StartedAt: startedAt}
	if err := WriteMeta(runDir, meta); err != nil {
		logFile.Close()
		return err
	}

	cmd := ctx.Spawner.Command(argv[0], argv[1:]...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = buildSpawnEnv(overlayHome)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		logFile.Close()
		meta.Status = StatusFailed
		completed := ctx.Clock.Now().UTC().Format(time.RFC3339)
		meta.CompletedAt = &completed
		_ = WriteMeta(runDir, meta)
		return fmt.Errorf("sandbox: failed to spawn job: %w", err)
	}

	pid := cmd.Process.Pid
	meta.PID = &pid
	if err := WriteMeta(runDir, meta); err != nil {
		return err
	}

	// Detached: finalize in the background so the caller (the scheduler
	// tick) doesn't block on the job's own runtime. Without this, the run's
	// meta.json would sit at "running" until a later monitor tick observed
	// the (by-then long dead) pid and mislabeled a clean exit as a crash.
	go func() {
		defer logFile.Close()
		waitCh := waitCmd(cmd)
		readLog := func() io.Reader {
			data, err := os.ReadFile(logPath)
			if err != nil {
				return strings.NewReader("")
			}
			return bytes.NewReader(data)
		}
		if _, err := finalizeRun(ctx, runDir, spec, meta, pid, readLog, waitCh); err != nil {
			ctx.Logger.Error("finalize detached run failed", "job", spec.Name, "run_id", runID, "error", err)
		}
	}()

	return nil
}

// KillAlive reports whether pid is alive via a signal-0 probe.
func KillAlive(pid int) bool {
	return syscall.Kill(pid, syscall.Signal(0)) == nil
}
