package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/agentctl/agentctl/internal/contextx"
	"github.com/agentctl/agentctl/internal/job"
	"github.com/agentctl/agentctl/internal/metrics"
)

// executeContainerJob mirrors ExecuteJob's RunMeta/report bookkeeping around
// runContainerized, so spec.Container jobs are indistinguishable from
// host-exec jobs to jobs history and monitorRunningJobs.
func executeContainerJob(ctx *contextx.Context, runDir string, spec job.Spec, argv []string, overlayHome, runID string) (Result, error) {
	startAt := ctx.Clock.Now().UTC()
	startedAt := startAt.Format(time.RFC3339)
	meta := RunMeta{JobName: spec.Name, RunID: runID, Agent: string(spec.Agent), Status: StatusRunning, StartedAt: startedAt}
	if err := WriteMeta(runDir, meta); err != nil {
		return Result{}, err
	}

	code, stdout, err := runContainerized(ctx, runDir, spec, argv, overlayHome)
	completedAt := ctx.Clock.Now().UTC()
	completed := completedAt.Format(time.RFC3339)
	meta.CompletedAt = &completed
	duration := completedAt.Sub(startAt).Seconds()

	if err != nil {
		meta.Status = StatusFailed
		metrics.RecordRunTerminal(spec.Name, string(meta.Status), duration)
		_ = WriteMeta(runDir, meta)
		return Result{Meta: meta}, err
	}

	meta.Status = StatusCompleted
	if code != 0 {
		meta.Status = StatusFailed
	}
	meta.ExitCode = &code
	metrics.RecordRunTerminal(spec.Name, string(meta.Status), duration)

	report := ExtractReport(bytes.NewReader(stdout), spec.Agent)
	if report != "" {
		reportPath := filepath.Join(runDir, "report.md")
		_ = os.WriteFile(reportPath, []byte(strings.TrimSpace(report)+"\n"), 0o644)
	}

	if err := WriteMeta(runDir, meta); err != nil {
		return Result{Meta: meta, Report: report}, err
	}
	return Result{Meta: meta, Report: report}, nil
}

// containerImage is the default image a containerized job runs in. Jobs that
// set container: true but need a different toolchain can override it via
// spec.Config["container_image"].
const containerImage = "node:20-bookworm"

// runContainerized is ExecuteJob/ExecuteJobDetached's alternate path for
// spec.Container jobs: the overlay HOME is bind-mounted into a disposable
// container instead of becoming the real HOME of a host subprocess. Adapted
// from internal/container/docker.Runtime (Create/Start/Exec/Remove), trimmed
// from oubliette's long-lived per-session container pool down to a single
// create-run-remove cycle per job run, matching ExecuteJob's one-shot model.
//
// This is strictly opt-in (spec.md's Non-goals rule out containerization as
// a security boundary); the plain overlay-HOME exec path remains the default.
func runContainerized(ctx *contextx.Context, runDir string, spec job.Spec, argv []string, overlayHome string) (exitCode int, stdout []byte, err error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return -1, nil, fmt.Errorf("sandbox: failed to create docker client: %w", err)
	}
	defer cli.Close()

	dctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	image := containerImage
	if v, ok := spec.Config["container_image"]; ok && v != "" {
		image = v
	}

	resp, err := cli.ContainerCreate(dctx, &container.Config{
		Image:      image,
		Cmd:        argv,
		Env:        buildSpawnEnv(overlayHome),
		WorkingDir: "/home/job",
		Labels:     map[string]string{"agentctl.job": spec.Name},
	}, &container.HostConfig{
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: overlayHome,
			Target: "/home/job",
		}},
		AutoRemove: false,
	}, nil, nil, "agentctl-"+spec.Name+"-"+filepath.Base(runDir))
	if err != nil {
		return -1, nil, fmt.Errorf("sandbox: failed to create container: %w", err)
	}
	defer func() { _ = cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true}) }()

	if err := cli.ContainerStart(dctx, resp.ID, container.StartOptions{}); err != nil {
		return -1, nil, fmt.Errorf("sandbox: failed to start container: %w", err)
	}

	timeout, terr := job.ParseTimeout(spec.Timeout)
	if terr != nil {
		timeout = 30 * time.Minute
	}
	waitCtx, waitCancel := context.WithTimeout(context.Background(), timeout)
	defer waitCancel()

	statusCh, errCh := cli.ContainerWait(waitCtx, resp.ID, container.WaitConditionNotRunning)
	var waitStatus int64
	select {
	case err := <-errCh:
		if err != nil && waitCtx.Err() != nil {
			return -1, nil, fmt.Errorf("sandbox: container run timed out: %w", waitCtx.Err())
		}
	case st := <-statusCh:
		waitStatus = st.StatusCode
	}

	logs, err := cli.ContainerLogs(context.Background(), resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return int(waitStatus), nil, nil
	}
	defer logs.Close()

	var outBuf, errBuf bytes.Buffer
	_, _ = stdcopy.StdCopy(&outBuf, &errBuf, logs)

	logPath := filepath.Join(runDir, "stdout.log")
	_ = os.WriteFile(logPath, append(outBuf.Bytes(), errBuf.Bytes()...), 0o644)

	return int(waitStatus), outBuf.Bytes(), nil
}
