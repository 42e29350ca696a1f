// Package trace records scheduler events into SQLite so simulation
// runs can be replayed and summarized after the fact. Uses WAL mode for
// crash-safe writes and a single writer connection.
package trace

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"fairsched/internal/sched"
)

// Store wraps a SQLite connection holding recorded scheduler runs.
type Store struct {
	db *sql.DB
}

// Open creates or opens the trace database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create trace dir: %w", err)
		}
	}
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	// SQLite is single-writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close cleanly shuts down the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id         TEXT PRIMARY KEY,
			started_at INTEGER NOT NULL,
			cpus       INTEGER NOT NULL,
			label      TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS sched_events (
			run_id     TEXT NOT NULL REFERENCES runs(id),
			now_ns     INTEGER NOT NULL,
			kind       TEXT NOT NULL,
			cpu        INTEGER NOT NULL,
			task_id    INTEGER NOT NULL,
			generation INTEGER NOT NULL,
			vfinish    INTEGER NOT NULL,
			slice_ns   INTEGER NOT NULL,
			from_cpu   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_run ON sched_events(run_id, now_ns)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// BeginRun registers a new run and returns its ID.
func (s *Store) BeginRun(startedAt int64, cpus int, label string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(`INSERT INTO runs (id, started_at, cpus, label) VALUES (?, ?, ?, ?)`,
		id, startedAt, cpus, label)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// RecordBatch appends a batch of events for one run in a single
// transaction.
func (s *Store) RecordBatch(runID string, events []sched.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO sched_events
		(run_id, now_ns, kind, cpu, task_id, generation, vfinish, slice_ns, from_cpu)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()
	for _, ev := range events {
		if _, err := stmt.Exec(runID, ev.Now, ev.Kind.String(), int(ev.CPU),
			int64(ev.TaskID), int64(ev.Generation), ev.VirtualFinish,
			ev.TimesliceNS, int(ev.FromCPU)); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RunInfo describes one recorded run.
type RunInfo struct {
	ID        string
	StartedAt int64
	CPUs      int
	Label     string
	Events    int64
}

// Runs lists recorded runs, newest first.
func (s *Store) Runs() ([]RunInfo, error) {
	rows, err := s.db.Query(`
		SELECT r.id, r.started_at, r.cpus, r.label, COUNT(e.run_id)
		FROM runs r LEFT JOIN sched_events e ON e.run_id = r.id
		GROUP BY r.id ORDER BY r.started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()
	var out []RunInfo
	for rows.Next() {
		var ri RunInfo
		if err := rows.Scan(&ri.ID, &ri.StartedAt, &ri.CPUs, &ri.Label, &ri.Events); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, ri)
	}
	return out, rows.Err()
}

// TaskSummary aggregates one task's activity within a run.
type TaskSummary struct {
	TaskID     int64
	Switches   int64
	Preempts   int64
	Migrations int64
	Wakes      int64
}

// Summarize aggregates per-task event counts for a run, ordered by
// task ID.
func (s *Store) Summarize(runID string) ([]TaskSummary, error) {
	rows, err := s.db.Query(`
		SELECT task_id,
			SUM(kind = 'ContextSwitch'),
			SUM(kind = 'Preempt'),
			SUM(kind = 'Migrate'),
			SUM(kind = 'Wake')
		FROM sched_events WHERE run_id = ?
		GROUP BY task_id ORDER BY task_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()
	var out []TaskSummary
	for rows.Next() {
		var ts TaskSummary
		if err := rows.Scan(&ts.TaskID, &ts.Switches, &ts.Preempts, &ts.Migrations, &ts.Wakes); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

// ExportCSV writes a run's events as CSV.
func (s *Store) ExportCSV(runID string, w io.Writer) error {
	rows, err := s.db.Query(`
		SELECT now_ns, kind, cpu, task_id, generation, vfinish, slice_ns, from_cpu
		FROM sched_events WHERE run_id = ? ORDER BY now_ns`, runID)
	if err != nil {
		return fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"now_ns", "event", "cpu", "task_id", "generation", "vfinish", "slice_ns", "from_cpu"}); err != nil {
		return err
	}
	for rows.Next() {
		var now, taskID, gen, vfinish, slice int64
		var cpu, fromCPU int
		var kind string
		if err := rows.Scan(&now, &kind, &cpu, &taskID, &gen, &vfinish, &slice, &fromCPU); err != nil {
			return fmt.Errorf("scan event: %w", err)
		}
		rec := []string{
			strconv.FormatInt(now, 10),
			kind,
			strconv.Itoa(cpu),
			strconv.FormatInt(taskID, 10),
			strconv.FormatInt(gen, 10),
			strconv.FormatInt(vfinish, 10),
			strconv.FormatInt(slice, 10),
			strconv.Itoa(fromCPU),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
