// Package metrics exposes the prometheus counters/gauges for agentctl's
// daemon, adapting the teacher's internal/metrics (promauto + handler
// pattern) from session/container metrics to job/scheduler/daemon metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RunsTotal counts completed job runs by job name and terminal status.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentctl_job_runs_total",
			Help: "Total number of job runs by terminal status",
		},
		[]string{"job", "status"},
	)

	// RunDuration tracks run wall-clock duration.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentctl_job_run_duration_seconds",
			Help:    "Job run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"job"},
	)

	// RunningJobs tracks jobs currently in the "running" state.
	RunningJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentctl_running_jobs",
			Help: "Number of job runs currently in the running state",
		},
	)

	// ScheduledJobs tracks the number of jobs currently armed in the scheduler.
	ScheduledJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentctl_scheduled_jobs",
			Help: "Number of jobs currently scheduled",
		},
	)

	// SchedulerFireDrift observes how late a cron trigger fired relative to
	// its computed next_run instant.
	SchedulerFireDrift = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agentctl_scheduler_fire_drift_seconds",
			Help:    "Seconds between a trigger's computed next_run and its actual fire time",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 15, 30, 60},
		},
	)

	// DaemonUp is 1 while the daemon process is alive.
	DaemonUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentctl_daemon_up",
			Help: "1 while the scheduler daemon process is alive",
		},
	)

	// SyncResourcesApplied counts resources applied by the sync engine by
	// category and classification outcome.
	SyncResourcesApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentctl_sync_resources_applied_total",
			Help: "Total number of sync resources applied, by category and classification",
		},
		[]string{"category", "classification"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRunTerminal records a run's terminal status and duration.
func RecordRunTerminal(job, status string, durationSeconds float64) {
	RunsTotal.WithLabelValues(job, status).Inc()
	RunDuration.WithLabelValues(job).Observe(durationSeconds)
}

// RecordSyncApply records one applied resource during a sync.
func RecordSyncApply(category, classification string) {
	SyncResourcesApplied.WithLabelValues(category, classification).Inc()
}
