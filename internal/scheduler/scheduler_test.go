package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/agentctl/agentctl/internal/agentkind"
	"github.com/agentctl/agentctl/internal/job"
)

func everyMinuteSpec(name string) job.Spec {
	enabled := true
	return job.Spec{
		Name:     name,
		Schedule: "* * * * *",
		Agent:    agentkind.Claude,
		Mode:     job.ModePlan,
		Enabled:  &enabled,
		Timeout:  "30m",
		Prompt:   "do the thing",
	}
}

func TestSchedule_InvalidCronRejected(t *testing.T) {
	s := New(func(job.Spec) {}, nil)
	spec := everyMinuteSpec("bad")
	spec.Schedule = "not a cron"
	if err := s.Schedule(spec); err == nil {
		t.Error("Schedule() with invalid cron expression returned nil error")
	}
}

func TestSchedule_ReplacesExistingTrigger(t *testing.T) {
	s := New(func(job.Spec) {}, nil)
	if err := s.Schedule(everyMinuteSpec("job1")); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if err := s.Schedule(everyMinuteSpec("job1")); err != nil {
		t.Fatalf("Schedule() second call error = %v", err)
	}

	entries := s.ListScheduled()
	count := 0
	for _, e := range entries {
		if e.Name == "job1" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("found %d entries for job1, want exactly 1 (re-scheduling should replace, not duplicate)", count)
	}
}

func TestUnschedule_RemovesTrigger(t *testing.T) {
	s := New(func(job.Spec) {}, nil)
	if err := s.Schedule(everyMinuteSpec("job1")); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	s.Unschedule("job1")
	if _, ok := s.NextRun("job1"); ok {
		t.Error("NextRun() found job1 after Unschedule")
	}
	// Unscheduling a name that was never scheduled must not panic.
	s.Unschedule("never-scheduled")
}

func TestLoadAll_SkipsDisabledJobs(t *testing.T) {
	s := New(func(job.Spec) {}, nil)
	enabled := everyMinuteSpec("enabled-job")
	disabled := everyMinuteSpec("disabled-job")
	f := false
	disabled.Enabled = &f

	errs := s.LoadAll([]job.Spec{enabled, disabled})
	if len(errs) != 0 {
		t.Fatalf("LoadAll() errs = %v, want none", errs)
	}

	if _, ok := s.NextRun("enabled-job"); !ok {
		t.Error("expected enabled-job to be scheduled")
	}
	if _, ok := s.NextRun("disabled-job"); ok {
		t.Error("expected disabled-job to be skipped")
	}
}

func TestLoadAll_ReportsInvalidButContinues(t *testing.T) {
	s := New(func(job.Spec) {}, nil)
	good := everyMinuteSpec("good")
	bad := everyMinuteSpec("bad")
	bad.Schedule = "garbage"

	errs := s.LoadAll([]job.Spec{bad, good})
	if len(errs) != 1 {
		t.Fatalf("LoadAll() errs = %v, want exactly 1", errs)
	}
	if _, ok := s.NextRun("good"); !ok {
		t.Error("expected good job to still be scheduled despite bad sibling")
	}
}

func TestInvoke_FiresCallbackAndSurvivesPanic(t *testing.T) {
	var mu sync.Mutex
	var fired []string

	s := New(func(spec job.Spec) {
		if spec.Name == "panicky" {
			panic("boom")
		}
		mu.Lock()
		fired = append(fired, spec.Name)
		mu.Unlock()
	}, nil)

	if err := s.Schedule(everyMinuteSpec("panicky")); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if err := s.Schedule(everyMinuteSpec("calm")); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	// Exercise invoke() directly rather than waiting out a real minute.
	done := make(chan struct{})
	go func() {
		s.invoke("panicky")
		s.invoke("calm")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("invoke() did not return; a panicking job callback should be recovered, not left hanging")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(fired) != 1 || fired[0] != "calm" {
		t.Errorf("fired = %v, want [calm]", fired)
	}
}

func TestReloadAll_ReplacesEntireScheduleSet(t *testing.T) {
	s := New(func(job.Spec) {}, nil)
	if err := s.Schedule(everyMinuteSpec("old")); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	errs := s.ReloadAll([]job.Spec{everyMinuteSpec("new")})
	if len(errs) != 0 {
		t.Fatalf("ReloadAll() errs = %v, want none", errs)
	}
	if _, ok := s.NextRun("old"); ok {
		t.Error("expected old job to be gone after ReloadAll")
	}
	if _, ok := s.NextRun("new"); !ok {
		t.Error("expected new job to be scheduled after ReloadAll")
	}
	s.Stop()
}

func TestListScheduled_ReflectsCurrentState(t *testing.T) {
	s := New(func(job.Spec) {}, nil)
	_ = s.Schedule(everyMinuteSpec("a"))
	_ = s.Schedule(everyMinuteSpec("b"))

	entries := s.ListScheduled()
	if len(entries) != 2 {
		t.Fatalf("ListScheduled() len = %d, want 2", len(entries))
	}
	for _, e := range entries {
		if e.Schedule != "* * * * *" {
			t.Errorf("entry %s schedule = %q, want %q", e.Name, e.Schedule, "* * * * *")
		}
	}
}
