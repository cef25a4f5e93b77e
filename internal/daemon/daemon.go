package daemon

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/agentctl/agentctl/internal/agentkind"
	"github.com/agentctl/agentctl/internal/job"
	"github.com/agentctl/agentctl/internal/metrics"
	"github.com/agentctl/agentctl/internal/runindex"
	"github.com/agentctl/agentctl/internal/sandbox"
	"github.com/agentctl/agentctl/internal/scheduler"
	"github.com/agentctl/agentctl/internal/state"
)

// metricsAddr is where the daemon serves /metrics, local-only like the
// teacher's own metrics endpoint (no auth, no remote bind).
const metricsAddr = "127.0.0.1:9090"

// monitorInterval is how often run() reconciles stale run-meta against
// live pids (spec.md §4.D monitor_running_jobs, "60 s monitor tick").
const monitorInterval = 60 * time.Second

const killGrace = 5 * time.Second

// Daemon owns the PID file, append-only log, and the scheduler driving
// detached job execution. One Daemon exists per agents-home.
type Daemon struct {
	layout  state.Layout
	logger  *slog.Logger
	execute scheduler.ExecuteFunc
	index   *runindex.Index
}

// New constructs a Daemon. execute is the scheduler callback invoked for
// each due job; production wiring passes ExecuteJobDetached bound to a
// contextx.Context, tests can inject a recording stub.
func New(layout state.Layout, logger *slog.Logger, execute scheduler.ExecuteFunc) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	return &Daemon{layout: layout, logger: logger, execute: execute}
}

// IsRunning reports whether the PID file names a live process. A PID file
// whose process is gone is cleaned up as a side effect (spec.md §4.D
// is_running, §8 edge case 6 "stale state").
func (d *Daemon) IsRunning() (bool, error) {
	pid, ok, err := d.readPIDFile()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if sandbox.KillAlive(pid) {
		return true, nil
	}
	_ = os.Remove(d.layout.PIDFile())
	return false, nil
}

// Start brings the daemon up if it is not already running: it first tries
// the platform-native service host, then falls back to a detached spawn.
// It waits up to 3s for the PID file to appear.
func (d *Daemon) Start(execPath string) error {
	running, err := d.IsRunning()
	if err != nil {
		return err
	}
	if running {
		return nil
	}

	host := NewServiceHost()
	if err := host.Install(execPath); err == nil {
		if err := host.Start(); err == nil {
			if d.waitForPIDFile(3 * time.Second) {
				return nil
			}
		}
	}

	if err := SpawnDetached(execPath); err != nil {
		return fmt.Errorf("daemon: failed to start (service host and detached fallback both failed): %w", err)
	}
	if !d.waitForPIDFile(3 * time.Second) {
		return fmt.Errorf("daemon: started but PID file never appeared")
	}
	return nil
}

func (d *Daemon) waitForPIDFile(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, ok, _ := d.readPIDFile(); ok {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return false
}

// Stop tears down the platform service (best-effort) then signals the PID
// directly: SIGTERM, wait 5s, SIGKILL, then removes the PID file.
func (d *Daemon) Stop() error {
	host := NewServiceHost()
	_ = host.Stop()

	pid, ok, err := d.readPIDFile()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	_ = syscall.Kill(pid, syscall.SIGTERM)
	deadline := time.Now().Add(killGrace)
	for time.Now().Before(deadline) {
		if !sandbox.KillAlive(pid) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if sandbox.KillAlive(pid) {
		_ = syscall.Kill(pid, syscall.SIGKILL)
	}
	return os.Remove(d.layout.PIDFile())
}

// SignalReload sends SIGHUP to the running daemon, triggering ReloadAll.
func (d *Daemon) SignalReload() error {
	pid, ok, err := d.readPIDFile()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("daemon: not running")
	}
	return syscall.Kill(pid, syscall.SIGHUP)
}

// Run is the entry point for the `daemon _run` child: write its own PID,
// build the scheduler, load enabled jobs, start the monitor tick, and block
// until SIGTERM/SIGINT. SIGHUP triggers a full reload from disk.
func (d *Daemon) Run() error {
	if err := d.writePIDFile(os.Getpid()); err != nil {
		return err
	}
	defer os.Remove(d.layout.PIDFile())

	logFile, err := os.OpenFile(d.layout.DaemonLog(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("daemon: failed opening log: %w", err)
	}
	defer logFile.Close()
	d.appendLog(logFile, "daemon starting, pid=%d", os.Getpid())

	index, err := runindex.Open(d.layout.Data())
	if err != nil {
		d.appendLog(logFile, "run index open failed, history falls back to directory scan: %v", err)
	} else {
		defer index.Close()
		if err := index.Rebuild(d.layout.Runs()); err != nil {
			d.appendLog(logFile, "run index rebuild failed: %v", err)
		}
	}
	d.index = index

	metrics.DaemonUp.Set(1)
	defer metrics.DaemonUp.Set(0)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			d.appendLog(logFile, "metrics server stopped: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	sched := scheduler.New(d.execute, d.logger)

	specs, loadErrs := job.LoadAll(d.layout.Jobs())
	for _, e := range loadErrs {
		d.appendLog(logFile, "job load error: %v", e)
	}
	if errs := sched.LoadAll(specs); len(errs) > 0 {
		for _, e := range errs {
			d.appendLog(logFile, "job schedule error: %v", e)
		}
	}
	sched.Start()
	defer sched.Stop()
	metrics.ScheduledJobs.Set(float64(len(sched.ListScheduled())))

	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, syscall.SIGINT)

	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	d.appendLog(logFile, "daemon ready, %d job(s) scheduled", len(sched.ListScheduled()))

	for {
		select {
		case <-ticker.C:
			d.monitorRunningJobs(logFile)
		case <-sighup:
			d.appendLog(logFile, "received SIGHUP, reloading jobs")
			specs, loadErrs := job.LoadAll(d.layout.Jobs())
			for _, e := range loadErrs {
				d.appendLog(logFile, "job load error: %v", e)
			}
			for _, e := range sched.ReloadAll(specs) {
				d.appendLog(logFile, "job schedule error: %v", e)
			}
			metrics.ScheduledJobs.Set(float64(len(sched.ListScheduled())))
		case sig := <-shutdown:
			d.appendLog(logFile, "received %v, shutting down", sig)
			return nil
		}
	}
}

// monitorRunningJobs walks every run directory; any run whose RunMeta says
// status==running but whose pid is no longer alive is transitioned to
// failed with completed_at stamped and whatever report is available
// extracted from stdout.log (spec.md §4.D monitor_running_jobs).
func (d *Daemon) monitorRunningJobs(logFile *os.File) {
	jobDirs, err := os.ReadDir(d.layout.Runs())
	if err != nil {
		return
	}
	running := 0
	for _, jd := range jobDirs {
		if !jd.IsDir() {
			continue
		}
		runsDir := d.layout.JobRunsDir(jd.Name())
		runs, err := os.ReadDir(runsDir)
		if err != nil {
			continue
		}
		for _, rd := range runs {
			if !rd.IsDir() {
				continue
			}
			runDir := filepath.Join(runsDir, rd.Name())
			if d.reconcileRun(runDir, logFile) {
				running++
			}
			if d.index != nil {
				if meta, err := sandbox.ReadMeta(runDir); err == nil {
					_ = d.index.Upsert(meta)
				}
			}
		}
	}
	metrics.RunningJobs.Set(float64(running))
}

// reconcileRun reports whether the run is still genuinely running after
// reconciliation (used by monitorRunningJobs to maintain the running-jobs
// gauge). Most runs finalize their own RunMeta (see internal/sandbox's
// finalizeRun); this only catches runs whose pid died without a chance to
// write a terminal status, e.g. a daemon restart mid-run.
func (d *Daemon) reconcileRun(runDir string, logFile *os.File) bool {
	meta, err := sandbox.ReadMeta(runDir)
	if err != nil {
		return false
	}
	if meta.Status != sandbox.StatusRunning || meta.PID == nil {
		return false
	}
	if sandbox.KillAlive(*meta.PID) {
		return true
	}

	completed := time.Now().UTC().Format(time.RFC3339)
	meta.Status = sandbox.StatusFailed
	meta.CompletedAt = &completed

	if data, err := os.ReadFile(filepath.Join(runDir, "stdout.log")); err == nil {
		report := sandbox.ExtractReport(bytes.NewReader(data), agentkind.ID(meta.Agent))
		if report != "" {
			_ = os.WriteFile(filepath.Join(runDir, "report.md"), []byte(strings.TrimSpace(report)+"\n"), 0o644)
		}
	}

	if err := sandbox.WriteMeta(runDir, meta); err != nil {
		d.appendLog(logFile, "failed to persist reconciled meta for %s: %v", runDir, err)
		return false
	}
	metrics.RecordRunTerminal(meta.JobName, string(meta.Status), 0)
	if d.index != nil {
		if err := d.index.Upsert(meta); err != nil {
			d.appendLog(logFile, "failed to update run index for %s: %v", runDir, err)
		}
	}
	d.appendLog(logFile, "reconciled stale run %s (pid %d gone) -> failed", runDir, *meta.PID)
	return false
}

func (d *Daemon) readPIDFile() (int, bool, error) {
	data, err := os.ReadFile(d.layout.PIDFile())
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false, fmt.Errorf("daemon: corrupt PID file: %w", err)
	}
	return pid, true, nil
}

func (d *Daemon) writePIDFile(pid int) error {
	if err := os.MkdirAll(filepath.Dir(d.layout.PIDFile()), 0o755); err != nil {
		return err
	}
	path := d.layout.PIDFile()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (d *Daemon) appendLog(f *os.File, format string, args ...any) {
	line := fmt.Sprintf("%s "+format+"\n", append([]any{time.Now().UTC().Format(time.RFC3339)}, args...)...)
	_, _ = f.WriteString(line)
}
