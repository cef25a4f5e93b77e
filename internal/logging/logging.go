// Package logging bootstraps slog for agentctl, generalizing the teacher's
// internal/logger.InitSlog to the run/job-scoped keys the daemon needs
// instead of the teacher's request/session/project keys.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

var (
	global  *slog.Logger
	logFile *os.File
)

// Init initializes the global slog logger, writing to both stdout and a
// dated log file under logDir. jsonOutput selects JSON vs text handler.
func Init(logDir string, jsonOutput bool) error {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}

	logFileName := "agentctl-" + time.Now().Format("2006-01-02") + ".log"
	logFilePath := filepath.Join(logDir, logFileName)

	f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	logFile = f

	writer := io.MultiWriter(os.Stdout, logFile)

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if jsonOutput {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	global = slog.New(handler)
	slog.SetDefault(global)
	return nil
}

// Close closes the log file opened by Init, if any.
func Close() error {
	if logFile != nil {
		return logFile.Close()
	}
	return nil
}

// Default returns the process-wide logger, falling back to slog.Default()
// when Init was never called (e.g. in tests).
func Default() *slog.Logger {
	if global == nil {
		return slog.Default()
	}
	return global
}

type contextKey string

const (
	ContextKeyJobName contextKey = "job_name"
	ContextKeyRunID    contextKey = "run_id"
)

// WithJobRun returns a context carrying job/run identifiers for log scoping.
func WithJobRun(ctx context.Context, jobName, runID string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyJobName, jobName)
	return context.WithValue(ctx, ContextKeyRunID, runID)
}

// FromContext returns a logger with job_name/run_id fields attached, if present.
func FromContext(ctx context.Context) *slog.Logger {
	l := Default()
	if jobName, ok := ctx.Value(ContextKeyJobName).(string); ok {
		l = l.With("job_name", jobName)
	}
	if runID, ok := ctx.Value(ContextKeyRunID).(string); ok {
		l = l.With("run_id", runID)
	}
	return l
}
