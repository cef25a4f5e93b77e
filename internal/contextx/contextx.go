// Package contextx defines the dependency bundle threaded explicitly through
// a single CLI invocation, per the Design Note in spec.md §9: the Meta file
// is the only process-wide persistent state, held in memory only for the
// duration of one invocation, with everything else (HTTP client, clock,
// subprocess spawner, logger) passed down rather than reached for as a
// singleton. This generalizes the teacher's struct-of-dependencies pattern
// (internal/mcp.Server, internal/mcp.ServerConfig).
package contextx

import (
	"log/slog"
	"net/http"
	"os/exec"
	"time"

	"github.com/agentctl/agentctl/internal/state"
)

// Clock is the minimal time source a Context needs; production code uses
// RealClock, tests inject a fixed/advancing fake.
type Clock interface {
	Now() time.Time
}

// RealClock delegates to time.Now.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Spawner creates subprocess commands. Abstracting exec.Command behind an
// interface lets tests substitute a recording/fake spawner instead of
// exercising real installers, git, or agent binaries — the "no shared
// in-process mutable state" and "Context" design notes in spec.md §5/§9
// both assume this seam.
type Spawner interface {
	Command(name string, args ...string) *exec.Cmd
}

// ExecSpawner is the real os/exec-backed Spawner.
type ExecSpawner struct{}

func (ExecSpawner) Command(name string, args ...string) *exec.Cmd {
	return exec.Command(name, args...)
}

// Context bundles every external dependency a component needs, passed by
// value down the call chain for a single CLI invocation.
type Context struct {
	Store   *state.Store
	HTTP    *http.Client
	Clock   Clock
	Spawner Spawner
	Logger  *slog.Logger
	Limiter *OutboundLimiter
}

// New builds a production Context rooted at home.
func New(home string, logger *slog.Logger) *Context {
	return &Context{
		Store:   state.New(home),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Clock:   RealClock{},
		Spawner: ExecSpawner{},
		Logger:  logger,
		Limiter: DefaultOutboundLimiter(),
	}
}
