// Command agentctl is the thin CLI shell over the components in internal/:
// version management, config sync, the job runner/scheduler daemon, and the
// drive MCP server. Subcommand dispatch follows the teacher's
// cmd/server/main.go pattern (a switch on os.Args[1] before any flag
// parsing), generalized from oubliette's single server command to
// agentctl's many narrower subcommands.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/agentctl/agentctl/internal/agentkind"
	"github.com/agentctl/agentctl/internal/config"
	"github.com/agentctl/agentctl/internal/contextx"
	"github.com/agentctl/agentctl/internal/daemon"
	"github.com/agentctl/agentctl/internal/drive"
	"github.com/agentctl/agentctl/internal/job"
	"github.com/agentctl/agentctl/internal/logging"
	"github.com/agentctl/agentctl/internal/reporef"
	"github.com/agentctl/agentctl/internal/runindex"
	"github.com/agentctl/agentctl/internal/sandbox"
	"github.com/agentctl/agentctl/internal/scheduler"
	"github.com/agentctl/agentctl/internal/state"
	"github.com/agentctl/agentctl/internal/sync"
	"github.com/agentctl/agentctl/internal/version"
)

// buildVersion is set at build time via -ldflags "-X main.buildVersion=...".
var buildVersion = "dev"

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	switch args[0] {
	case "--version", "-v":
		fmt.Printf("agentctl %s\n", buildVersion)
	case "--help", "-h", "help":
		printUsage()
	case "status":
		cmdStatus(args[1:])
	case "add":
		cmdAdd(args[1:])
	case "remove":
		cmdRemove(args[1:])
	case "use":
		cmdUse(args[1:])
	case "list":
		cmdList(args[1:])
	case "pull":
		cmdPull(args[1:])
	case "push":
		cmdPush(args[1:])
	case "jobs":
		cmdJobs(args[1:])
	case "daemon":
		cmdDaemon(args[1:])
	case "mcp":
		cmdMCP(args[1:])
	case "shim-resolve-home":
		cmdShimResolveHome(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "agentctl: unknown command %q\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`agentctl - unified control plane for AI coding agent CLIs

Usage: agentctl <command> [options]

Commands:
  status [agent]                 show installed/active versions and sync state
  add <agent> <version>          install a version of an agent
  remove <agent> <version>       remove an installed version
  use <agent> <version>          set the global default version (no per-project pin)
  list <agent>                   list installed versions
  pull [source] [--yes|--force|--dry-run|--clean|--slot NAME]  sync config from a repo
  push [-m message]              push local central-store edits back to the repo
  jobs list|history <name>|validate <file>
  daemon start|stop|status|_run  control the scheduler daemon
  mcp                            serve the drive knowledge base over stdio MCP
`)
}

func newContext() *contextx.Context {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
		os.Exit(1)
	}

	home := cfg.HomeOverride
	if home == "" {
		home, err = state.DefaultHome()
		if err != nil {
			fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
			os.Exit(1)
		}
	}

	jsonLogs := cfg.JSONLogs || os.Getenv("AGENTCTL_JSON_LOGS") == "1"
	if err := logging.Init(state.NewLayout(home).Logs(), jsonLogs); err != nil {
		fmt.Fprintf(os.Stderr, "agentctl: failed to init logging: %v\n", err)
	}
	ctx := contextx.New(home, logging.Default())
	ctx.HTTP.Timeout = cfg.HTTPTimeout()
	if err := ctx.Store.EnsureLayout(); err != nil {
		fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
		os.Exit(1)
	}
	return ctx
}

func cmdStatus(args []string) {
	ctx := newContext()
	mgr := version.New(ctx)
	meta, err := ctx.Store.ReadMeta()
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tACTIVE\tINSTALLED")
	agents := agentkind.All()
	if len(args) > 0 {
		if id, ok := agentkind.Parse(args[0]); ok {
			agents = []agentkind.ID{id}
		}
	}
	for _, agent := range agents {
		active, _ := meta.AgentVersion(string(agent))
		if active == "" {
			active = "-"
		}
		installed := mgr.ListInstalled(agent)
		fmt.Fprintf(w, "%s\t%s\t%s\n", agent, active, strings.Join(installed, ", "))
	}
	w.Flush()
}

func cmdAdd(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: agentctl add <agent> <version>")
		os.Exit(1)
	}
	ctx := newContext()
	agent, ok := agentkind.Parse(args[0])
	if !ok {
		fmt.Fprintf(os.Stderr, "agentctl: unknown agent %q\n", args[0])
		os.Exit(1)
	}
	mgr := version.New(ctx)
	res := mgr.InstallVersion(agent, args[1])
	if res.Error != nil {
		fmt.Fprintf(os.Stderr, "agentctl: install failed: %v\n", res.Error)
		os.Exit(1)
	}
	fmt.Printf("installed %s %s\n", agent, res.ResolvedVersion)
}

func cmdRemove(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: agentctl remove <agent> <version>")
		os.Exit(1)
	}
	ctx := newContext()
	agent, ok := agentkind.Parse(args[0])
	if !ok {
		fmt.Fprintf(os.Stderr, "agentctl: unknown agent %q\n", args[0])
		os.Exit(1)
	}
	mgr := version.New(ctx)
	if err := mgr.RemoveVersion(agent, args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("removed %s %s\n", agent, args[1])
}

func cmdUse(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: agentctl use <agent> <version>")
		os.Exit(1)
	}
	ctx := newContext()
	agent, ok := agentkind.Parse(args[0])
	if !ok {
		fmt.Fprintf(os.Stderr, "agentctl: unknown agent %q\n", args[0])
		os.Exit(1)
	}
	meta, err := ctx.Store.ReadMeta()
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
		os.Exit(1)
	}
	meta.SetAgentVersion(string(agent), args[1])
	if err := ctx.Store.WriteMeta(meta); err != nil {
		fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("now using %s %s\n", agent, args[1])
}

func cmdList(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: agentctl list <agent>")
		os.Exit(1)
	}
	ctx := newContext()
	agent, ok := agentkind.Parse(args[0])
	if !ok {
		fmt.Fprintf(os.Stderr, "agentctl: unknown agent %q\n", args[0])
		os.Exit(1)
	}
	mgr := version.New(ctx)
	for _, v := range mgr.ListInstalled(agent) {
		fmt.Println(v)
	}
}

func cmdPull(args []string) {
	ctx := newContext()
	cfg, _ := config.Load("")
	opts := sync.Options{}
	var source, slot string
	slotRequested := false
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--yes":
			opts.Yes = true
		case a == "--force":
			opts.Force = true
		case a == "--dry-run":
			opts.DryRun = true
		case a == "--clean":
			opts.Clean = true
		case a == "--slot":
			slotRequested = true
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
				i++
				slot = args[i]
			}
		case !strings.HasPrefix(a, "--"):
			source = a
		}
	}
	if slotRequested && slot == "" {
		// No name given: generate a short anonymous slot id rather than
		// reusing a fixed name that would collide across repeated calls.
		slot = "slot-" + uuid.NewString()[:8]
	}
	if opts.Prompt == nil && !opts.Force && !opts.Yes {
		opts.Prompt = interactivePrompt
	}

	transport := sync.NewGitTransport(ctx)
	repoPath, err := sync.Bootstrap(ctx, transport, cfg.BootstrapRepoSource)
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentctl: bootstrap failed: %v\n", err)
		os.Exit(1)
	}
	if source != "" {
		ref, err := reporef.Parse(source)
		if err != nil {
			fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
			os.Exit(1)
		}
		// --slot adds an additional named repo beyond the three reserved
		// slots (system/user/project), synced independently of the central
		// repoPath; an unnamed --slot gets a short random slot id instead of
		// clobbering another anonymous additional repo.
		if slot != "" {
			if slot == state.SlotSystem || slot == state.SlotUser || slot == state.SlotProject {
				fmt.Fprintf(os.Stderr, "agentctl: %q is a reserved slot name\n", slot)
				os.Exit(1)
			}
			repoPath = sync.RepoPath(ctx.Store.Layout, slot)
		}
		commit, _, err := transport.CloneOrPull(ref.String(), repoPath, ref.Ref)
		if err != nil {
			fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
			os.Exit(1)
		}
		if slot != "" {
			meta, err := ctx.Store.ReadMeta()
			if err != nil {
				fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
				os.Exit(1)
			}
			if err := meta.SetRepo(slot, state.RepoRecord{
				Source:       ref.String(),
				Branch:       ref.Ref,
				LastCommit:   commit,
				LastSyncedAt: ctx.Clock.Now().UTC().Format(time.RFC3339),
				Priority:     meta.NextAdditionalPriority(),
			}); err != nil {
				fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
				os.Exit(1)
			}
			if err := ctx.Store.WriteMeta(meta); err != nil {
				fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
				os.Exit(1)
			}
		}
		fmt.Printf("synced to %s\n", commit)
	}

	d := daemon.New(ctx.Store.Layout, ctx.Logger, nil)
	result, err := sync.Sync(ctx, repoPath, d, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentctl: sync failed: %v\n", err)
		os.Exit(1)
	}
	if result.Canceled {
		fmt.Println("sync canceled")
		return
	}
	fmt.Printf("installed %d, skipped %d, errors %d\n", len(result.Installed), len(result.Skipped), len(result.Errors))
	for _, e := range result.Errors {
		fmt.Fprintf(os.Stderr, "  error: %v\n", e)
	}
}

func interactivePrompt(ch sync.Change) sync.Decision {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Printf("%s %q has drifted locally. [o]verwrite/[s]kip/[c]ancel-all? ", ch.Category, ch.Name)
		line, _ := reader.ReadString('\n')
		switch strings.TrimSpace(strings.ToLower(line)) {
		case "o", "overwrite":
			return sync.DecisionOverwrite
		case "s", "skip":
			return sync.DecisionSkip
		case "c", "cancel-all":
			return sync.DecisionCancel
		}
	}
}

func cmdPush(args []string) {
	ctx := newContext()
	message := ""
	for i, a := range args {
		if a == "-m" && i+1 < len(args) {
			message = args[i+1]
		}
	}
	slotRepo, ok, err := ctx.Store.HighestPriorityRepo()
	if err != nil || !ok {
		fmt.Fprintln(os.Stderr, "agentctl: no repo configured")
		os.Exit(1)
	}
	transport := sync.NewGitTransport(ctx)
	if err := transport.Push(sync.RepoPath(ctx.Store.Layout, slotRepo.Slot), message); err != nil {
		fmt.Fprintf(os.Stderr, "agentctl: push failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("pushed")
}

func cmdJobs(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: agentctl jobs list|history <name>|validate <file>")
		os.Exit(1)
	}
	ctx := newContext()
	switch args[0] {
	case "list":
		specs, errs := job.LoadAll(ctx.Store.Layout.Jobs())
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "agentctl: %v\n", e)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tAGENT\tSCHEDULE\tENABLED")
		for _, s := range specs {
			enabled := s.Enabled == nil || *s.Enabled
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", s.Name, s.Agent, s.Schedule, enabled)
		}
		w.Flush()
	case "history":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: agentctl jobs history <name> [--limit N]")
			os.Exit(1)
		}
		cmdJobsHistory(ctx, args[1:])
	case "validate":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: agentctl jobs validate <file>")
			os.Exit(1)
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
			os.Exit(1)
		}
		spec, err := job.Parse(strings.TrimSuffix(args[1], ".yml"), data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
			os.Exit(1)
		}
		if errs := job.Validate(spec); len(errs) > 0 {
			for _, e := range errs {
				fmt.Fprintf(os.Stderr, "  %v\n", e)
			}
			os.Exit(1)
		}
		fmt.Println("ok")
	default:
		fmt.Fprintf(os.Stderr, "agentctl: unknown jobs subcommand %q\n", args[0])
		os.Exit(1)
	}
}

// cmdJobsHistory prints a job's recent runs from the SQLite run index,
// rebuilding it from the runs/ directory tree first if it can't be opened
// (the directory tree, not the index, is the durable source of truth).
func cmdJobsHistory(ctx *contextx.Context, args []string) {
	name := args[0]
	limit := 20
	for i := 1; i < len(args); i++ {
		if args[i] == "--limit" && i+1 < len(args) {
			if n, err := strconv.Atoi(args[i+1]); err == nil {
				limit = n
			}
			i++
		}
	}

	index, err := runindex.Open(ctx.Store.Layout.Data())
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
		os.Exit(1)
	}
	defer index.Close()
	if err := index.Rebuild(ctx.Store.Layout.Runs()); err != nil {
		fmt.Fprintf(os.Stderr, "agentctl: failed to rebuild run index: %v\n", err)
		os.Exit(1)
	}

	runs, err := index.History(name, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
		os.Exit(1)
	}
	if len(runs) == 0 {
		fmt.Printf("no runs recorded for %q\n", name)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "RUN_ID\tSTATUS\tSTARTED_AT\tCOMPLETED_AT\tEXIT_CODE")
	for _, m := range runs {
		completed := "-"
		if m.CompletedAt != nil {
			completed = *m.CompletedAt
		}
		exitCode := "-"
		if m.ExitCode != nil {
			exitCode = strconv.Itoa(*m.ExitCode)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.RunID, m.Status, m.StartedAt, completed, exitCode)
	}
	w.Flush()
}

func cmdDaemon(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: agentctl daemon start|stop|status|_run")
		os.Exit(1)
	}
	ctx := newContext()
	d := daemon.New(ctx.Store.Layout, ctx.Logger, makeExecuteFunc(ctx))

	switch args[0] {
	case "start":
		exe, err := os.Executable()
		if err != nil {
			fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
			os.Exit(1)
		}
		if err := d.Start(exe); err != nil {
			fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("daemon started")
	case "stop":
		if err := d.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("daemon stopped")
	case "status":
		running, err := d.IsRunning()
		if err != nil {
			fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
			os.Exit(1)
		}
		if running {
			fmt.Println("running")
		} else {
			fmt.Println("stopped")
		}
	case "_run":
		if err := d.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "agentctl: daemon exited: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "agentctl: unknown daemon subcommand %q\n", args[0])
		os.Exit(1)
	}
}

// makeExecuteFunc binds the scheduler's callback to the real sandboxed job
// execution path (spec.md §4.D execute_job_detached).
func makeExecuteFunc(ctx *contextx.Context) scheduler.ExecuteFunc {
	return func(spec job.Spec) {
		runDetached(ctx, spec)
	}
}

func runDetached(ctx *contextx.Context, spec job.Spec) {
	layout := ctx.Store.Layout
	runID := sandbox.RunIDFromTime(ctx.Clock.Now().UTC().Format(time.RFC3339))
	runDir := layout.RunDir(spec.Name, runID)
	if _, err := os.Stat(runDir); err == nil {
		// Two triggers landed in the same second (a manual kick racing the
		// scheduler, or a sub-minute cron on a fast clock): disambiguate
		// with a short random suffix rather than clobbering the earlier run.
		runID = runID + "-" + uuid.NewString()[:8]
		runDir = layout.RunDir(spec.Name, runID)
	}

	realHome, _ := os.UserHomeDir()
	overlay, err := sandbox.PrepareHome(layout.Jobs(), spec.Name, spec, realHome)
	if err != nil {
		ctx.Logger.Error("prepare_home failed", "job", spec.Name, "error", err)
		return
	}

	prompt := job.ResolvePrompt(spec, ctx.Clock.Now(), latestReportPath(layout, spec.Name))
	argv, err := job.BuildCommand(spec, prompt)
	if err != nil {
		ctx.Logger.Error("build_command failed", "job", spec.Name, "error", err)
		return
	}

	if err := sandbox.ExecuteJobDetached(ctx, runDir, spec, argv, overlay, runID); err != nil {
		ctx.Logger.Error("execute_job_detached failed", "job", spec.Name, "error", err)
	}
}

// latestReportPath returns the report.md of jobName's most recent run, or ""
// if none exists. Run ids sort lexicographically by time (sandbox.RunIDFromTime),
// so the newest run is always the greatest directory name under runs/{job}/.
func latestReportPath(layout state.Layout, jobName string) string {
	entries, err := os.ReadDir(layout.JobRunsDir(jobName))
	if err != nil {
		return ""
	}
	latest := ""
	for _, e := range entries {
		if e.IsDir() && e.Name() > latest {
			latest = e.Name()
		}
	}
	if latest == "" {
		return ""
	}
	return filepath.Join(layout.RunDir(jobName, latest), "report.md")
}

func cmdShimResolveHome(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: agentctl shim-resolve-home <agent>")
		os.Exit(1)
	}
	ctx := newContext()
	agent, ok := agentkind.Parse(args[0])
	if !ok {
		fmt.Fprintf(os.Stderr, "agentctl: unknown agent %q\n", args[0])
		os.Exit(1)
	}
	mgr := version.New(ctx)
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
		os.Exit(1)
	}
	ver, ok, err := mgr.ResolveVersion(agent, cwd)
	if err != nil || !ok {
		fmt.Fprintf(os.Stderr, "agentctl: no version of %s selected\n", agent)
		os.Exit(1)
	}
	fmt.Println(mgr.HomePath(agent, ver))
}

// cmdMCP serves the drive knowledge base as a stdio JSON-RPC MCP server
// (spec.md §4.E), the mechanism agent CLIs register via internal/sync's
// per-agent McpRegistrar. Runs until stdin closes or the process is signaled.
func cmdMCP(args []string) {
	ctx := newContext()
	srv := drive.New(ctx)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sig
		cancel()
	}()

	if err := srv.Run(runCtx); err != nil && runCtx.Err() == nil {
		fmt.Fprintf(os.Stderr, "agentctl: mcp server error: %v\n", err)
		os.Exit(1)
	}
}
