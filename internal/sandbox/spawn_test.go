package sandbox

import (
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/agentctl/agentctl/internal/agentkind"
	"github.com/agentctl/agentctl/internal/contextx"
	"github.com/agentctl/agentctl/internal/job"
	"github.com/agentctl/agentctl/internal/state"
)

type scriptSpawner struct{ script string }

func (s scriptSpawner) Command(name string, args ...string) *exec.Cmd {
	return exec.Command("sh", "-c", s.script)
}

func newTestCtx(script string) *contextx.Context {
	home := "/tmp"
	return &contextx.Context{
		Store:   state.New(home),
		Clock:   contextx.RealClock{},
		Spawner: scriptSpawner{script: script},
	}
}

func testSpec(name string, timeout string) job.Spec {
	enabled := true
	return job.Spec{Name: name, Agent: agentkind.Claude, Mode: job.ModePlan, Enabled: &enabled, Timeout: timeout}
}

func TestExecuteJob_CompletedTranscribesReport(t *testing.T) {
	script := `echo '{"type":"assistant","message":{"content":[{"type":"text","text":"done"}]}}'`
	ctx := newTestCtx(script)
	runDir := filepath.Join(t.TempDir(), "run1")

	result, err := ExecuteJob(ctx, runDir, testSpec("j1", "30m"), []string{"agent"}, t.TempDir(), "run1")
	if err != nil {
		t.Fatalf("ExecuteJob() error = %v", err)
	}
	if result.Meta.Status != StatusCompleted {
		t.Errorf("status = %q, want completed", result.Meta.Status)
	}
	if result.Report != "done" {
		t.Errorf("report = %q, want done", result.Report)
	}

	persisted, err := ReadMeta(runDir)
	if err != nil {
		t.Fatalf("ReadMeta() error = %v", err)
	}
	if persisted.Status != StatusCompleted || persisted.ExitCode == nil || *persisted.ExitCode != 0 {
		t.Errorf("persisted meta = %+v", persisted)
	}
}

func TestExecuteJob_NonZeroExit_Failed(t *testing.T) {
	ctx := newTestCtx("exit 1")
	runDir := filepath.Join(t.TempDir(), "run2")

	result, err := ExecuteJob(ctx, runDir, testSpec("j2", "30m"), []string{"agent"}, t.TempDir(), "run2")
	if err != nil {
		t.Fatalf("ExecuteJob() error = %v", err)
	}
	if result.Meta.Status != StatusFailed {
		t.Errorf("status = %q, want failed", result.Meta.Status)
	}
	if result.Meta.ExitCode == nil || *result.Meta.ExitCode != 1 {
		t.Errorf("exit code = %v, want 1", result.Meta.ExitCode)
	}
}

// TestWaitWithTimeout_KillsProcessGroup exercises the SIGTERM/SIGKILL
// escalation directly, bypassing job.ParseTimeout's whole-minute grammar so
// the test doesn't wait out a real minute or leak a long-lived process.
func TestWaitWithTimeout_KillsProcessGroup(t *testing.T) {
	cmd := exec.Command("sh", "-c", "trap '' TERM; sleep 30")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start test process: %v", err)
	}
	pid := cmd.Process.Pid

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	start := time.Now()
	_, timedOut := waitWithTimeout(pid, waitCh, 50*time.Millisecond, 50*time.Millisecond)
	elapsed := time.Since(start)

	if !timedOut {
		t.Error("timedOut = false, want true")
	}
	if elapsed > 2*time.Second {
		t.Errorf("waitWithTimeout took %v, want it to return promptly after escalating to SIGKILL", elapsed)
	}
	if KillAlive(pid) {
		t.Error("process group leader still alive after waitWithTimeout returned")
	}
}

// TestWaitWithTimeout_CleanExitBeforeDeadline confirms the non-timeout path
// returns promptly with timedOut=false when the process exits on its own.
func TestWaitWithTimeout_CleanExitBeforeDeadline(t *testing.T) {
	cmd := exec.Command("sh", "-c", "exit 0")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start test process: %v", err)
	}
	pid := cmd.Process.Pid

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	waitErr, timedOut := waitWithTimeout(pid, waitCh, time.Second, time.Second)
	if timedOut {
		t.Error("timedOut = true, want false")
	}
	if waitErr != nil {
		t.Errorf("waitErr = %v, want nil", waitErr)
	}
}
