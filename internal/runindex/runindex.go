// Package runindex is a derived, rebuildable SQLite cache over the
// directory-of-RunMeta truth under runs/{job}/{run_id}/meta.json, giving
// `jobs history` and the daemon's monitor tick fast lookups without walking
// the filesystem on every call. Grounded on internal/schedule.Store's SQLite
// setup (WAL mode, busy timeout, migrate-on-open); generalized from
// schedule rows to job run rows.
package runindex

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/agentctl/agentctl/internal/sandbox"
)

// Index is the SQLite-backed run history cache. The directory tree remains
// the durable record; Index is safe to delete and rebuild at any time.
type Index struct {
	db *sql.DB
}

// Open creates (or reopens) the index database under dataDir.
func Open(dataDir string) (*Index, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("runindex: failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "runindex.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("runindex: failed to open database: %w", err)
	}
	idx := &Index{db: db}
	if err := idx.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("runindex: failed to migrate database: %w", err)
	}
	return idx, nil
}

func (i *Index) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		job_name     TEXT NOT NULL,
		run_id       TEXT NOT NULL,
		agent        TEXT NOT NULL,
		pid          INTEGER,
		status       TEXT NOT NULL,
		started_at   TEXT NOT NULL,
		completed_at TEXT,
		exit_code    INTEGER,
		PRIMARY KEY (job_name, run_id)
	);
	CREATE INDEX IF NOT EXISTS idx_runs_job_started ON runs(job_name, started_at);
	`
	_, err := i.db.Exec(schema)
	return err
}

// Close closes the underlying database handle.
func (i *Index) Close() error { return i.db.Close() }

// Upsert records (or updates) one run's current RunMeta. Rebuild and the
// daemon's monitor tick and reconciliation call it, so the index tracks the
// directory truth as of the last tick.
func (i *Index) Upsert(m sandbox.RunMeta) error {
	_, err := i.db.Exec(`
		INSERT INTO runs (job_name, run_id, agent, pid, status, started_at, completed_at, exit_code)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (job_name, run_id) DO UPDATE SET
			agent = excluded.agent, pid = excluded.pid, status = excluded.status,
			started_at = excluded.started_at, completed_at = excluded.completed_at,
			exit_code = excluded.exit_code`,
		m.JobName, m.RunID, m.Agent, nullableInt(m.PID), string(m.Status), m.StartedAt,
		nullableString(m.CompletedAt), nullableInt(m.ExitCode),
	)
	if err != nil {
		return fmt.Errorf("runindex: failed to upsert run %s/%s: %w", m.JobName, m.RunID, err)
	}
	return nil
}

// History returns a job's runs, newest first by started_at (spec.md §3's
// lexicographic run_id ordering invariant holds for started_at too, since
// run ids are ISO-8601 timestamps).
func (i *Index) History(jobName string, limit int) ([]sandbox.RunMeta, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := i.db.Query(`
		SELECT job_name, run_id, agent, pid, status, started_at, completed_at, exit_code
		FROM runs WHERE job_name = ? ORDER BY started_at DESC LIMIT ?`, jobName, limit)
	if err != nil {
		return nil, fmt.Errorf("runindex: failed to query history for %q: %w", jobName, err)
	}
	defer rows.Close()

	var out []sandbox.RunMeta
	for rows.Next() {
		var m sandbox.RunMeta
		var pid, exitCode sql.NullInt64
		var completedAt sql.NullString
		var status string
		if err := rows.Scan(&m.JobName, &m.RunID, &m.Agent, &pid, &status, &m.StartedAt, &completedAt, &exitCode); err != nil {
			return nil, fmt.Errorf("runindex: failed scanning row: %w", err)
		}
		m.Status = sandbox.Status(status)
		if pid.Valid {
			p := int(pid.Int64)
			m.PID = &p
		}
		if completedAt.Valid {
			c := completedAt.String
			m.CompletedAt = &c
		}
		if exitCode.Valid {
			e := int(exitCode.Int64)
			m.ExitCode = &e
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Rebuild discards and repopulates the index by walking runsDir, the
// recovery path when the index is stale or missing (SPEC_FULL §C: "the
// SQLite index is a derived, rebuildable cache").
func (i *Index) Rebuild(runsDir string) error {
	if _, err := i.db.Exec(`DELETE FROM runs`); err != nil {
		return fmt.Errorf("runindex: failed clearing table for rebuild: %w", err)
	}
	jobDirs, err := os.ReadDir(runsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("runindex: failed reading %s: %w", runsDir, err)
	}
	for _, jobDir := range jobDirs {
		if !jobDir.IsDir() {
			continue
		}
		runDirs, err := os.ReadDir(filepath.Join(runsDir, jobDir.Name()))
		if err != nil {
			continue
		}
		for _, runDir := range runDirs {
			if !runDir.IsDir() {
				continue
			}
			m, err := sandbox.ReadMeta(filepath.Join(runsDir, jobDir.Name(), runDir.Name()))
			if err != nil {
				continue // a malformed/partial run directory is skipped, not fatal to the rebuild
			}
			if err := i.Upsert(m); err != nil {
				return err
			}
		}
	}
	return nil
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
