// Package scheduler wraps robfig/cron/v3 for Component D: one cron trigger
// per job name, reloadable as a unit, with callback invocation isolated from
// scheduler internals so a panicking or slow job never stops the ticker.
// Grounded on the teacher's internal/schedule package (cron.go's parser
// configuration, runner.go's recover-and-log callback discipline), adapted
// from the teacher's own poll-every-minute Runner to robfig/cron's Cron
// engine so each job gets an independent schedule instead of a shared tick.
package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/agentctl/agentctl/internal/job"
)

// cronParser matches the teacher's standard 5-field configuration (no
// seconds field, no predefined @every/@daily descriptors beyond what
// robfig/cron parses under this option set).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ExecuteFunc runs a due job. The cron engine starts a new goroutine for
// each firing, so a slow invocation does not delay other triggers; Stop and
// ReloadAll wait for running invocations to return.
type ExecuteFunc func(spec job.Spec)

// Entry describes one job's scheduling state for introspection.
type Entry struct {
	Name     string
	Schedule string
	Next     time.Time
	Prev     time.Time
}

// Scheduler maps job names to a single cron.Entry each, backed by one
// underlying cron.Cron engine.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	execute ExecuteFunc
	logger  *slog.Logger
	entries map[string]cron.EntryID
	specs   map[string]job.Spec
}

// New constructs a Scheduler. Call Start to begin firing triggers.
func New(execute ExecuteFunc, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithParser(cronParser)),
		execute: execute,
		logger:  logger,
		entries: make(map[string]cron.EntryID),
		specs:   make(map[string]job.Spec),
	}
}

// Start begins firing scheduled triggers in the background.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cron.Start()
}

// Stop halts the cron engine and waits for any in-flight invocation to
// return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.mu.Unlock()
	ctx := c.Stop()
	<-ctx.Done()
}

// LoadAll schedules every enabled job in specs, skipping disabled ones. Jobs
// that fail to schedule (invalid cron expression) are reported but do not
// stop the rest from loading.
func (s *Scheduler) LoadAll(specs []job.Spec) []error {
	var errs []error
	for _, spec := range specs {
		if spec.Enabled != nil && !*spec.Enabled {
			continue
		}
		if err := s.Schedule(spec); err != nil {
			errs = append(errs, fmt.Errorf("scheduler: job %s: %w", spec.Name, err))
		}
	}
	return errs
}

// Schedule installs (or replaces) the single trigger for spec.Name.
func (s *Scheduler) Schedule(spec job.Spec) error {
	sched, err := cronParser.Parse(spec.Schedule)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec.Schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[spec.Name]; ok {
		s.cron.Remove(id)
		delete(s.entries, spec.Name)
	}

	name := spec.Name
	id := s.cron.Schedule(sched, cron.FuncJob(func() { s.invoke(name) }))
	s.entries[name] = id
	s.specs[name] = spec
	return nil
}

// Unschedule removes name's trigger, if any. It is a no-op if name was never
// scheduled.
func (s *Scheduler) Unschedule(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
		delete(s.specs, name)
	}
}

// ReloadAll stops the current engine, discards every trigger, and reloads
// from specs. Used on SIGHUP and after jobs are added/edited/removed.
func (s *Scheduler) ReloadAll(specs []job.Spec) []error {
	s.mu.Lock()
	old := s.cron
	s.cron = cron.New(cron.WithParser(cronParser))
	s.entries = make(map[string]cron.EntryID)
	s.specs = make(map[string]job.Spec)
	s.mu.Unlock()

	stopCtx := old.Stop()
	<-stopCtx.Done()

	errs := s.LoadAll(specs)

	s.mu.Lock()
	s.cron.Start()
	s.mu.Unlock()

	return errs
}

// invoke runs the job's ExecuteFunc, recovering from panics so a single bad
// job can never take down the scheduler (teacher's runner.go recovers the
// same way around callback invocation, logged rather than propagated).
func (s *Scheduler) invoke(name string) {
	s.mu.Lock()
	spec, ok := s.specs[name]
	execute := s.execute
	s.mu.Unlock()
	if !ok || execute == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler: job callback panicked", "job", name, "panic", r)
		}
	}()
	execute(spec)
}

// NextRun returns the next scheduled time for name, if it is currently
// scheduled.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

// ListScheduled returns every currently-scheduled job, sorted by name via
// the caller (map iteration order is not stable).
func (s *Scheduler) ListScheduled() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for name, id := range s.entries {
		e := s.cron.Entry(id)
		out = append(out, Entry{
			Name:     name,
			Schedule: s.specs[name].Schedule,
			Next:     e.Next,
			Prev:     e.Prev,
		})
	}
	return out
}
