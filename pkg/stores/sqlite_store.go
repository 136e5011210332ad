// Package stores persists run history in SQLite.
package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/infrapilot/infrapilot/pkg/agent"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore records runs and cycles in a SQLite database. It implements
// agent.Recorder.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a store for the given database file.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SQLiteStore{path: path}, nil
}

// Init opens the database, enables WAL mode, and verifies the connection.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs the embedded schema migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// SaveRun upserts the run summary. Called once per run, after the cycle loop
// finishes, so the insert path is the common one.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *agent.RunResult) error {
	query := `
		INSERT INTO runs (id, prompt, outcome, cycle_count, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			outcome = excluded.outcome,
			cycle_count = excluded.cycle_count,
			duration_ms = excluded.duration_ms
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Prompt,
		string(run.Outcome),
		len(run.Cycles),
		run.StartedAt,
		run.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	return nil
}

// SaveCycle appends one cycle record. The run row may not exist yet, so the
// cycle carries the run ID without a foreign key constraint.
func (s *SQLiteStore) SaveCycle(ctx context.Context, runID string, record *agent.CycleRecord) error {
	outputs, err := json.Marshal(record.DeploymentOutputs)
	if err != nil {
		return fmt.Errorf("failed to encode deployment outputs: %w", err)
	}
	pipelineBlob, err := json.Marshal(record.Pipeline)
	if err != nil {
		return fmt.Errorf("failed to encode pipeline result: %w", err)
	}

	query := `
		INSERT INTO cycles (
			run_id, idx, outcome, failure_class, error_summary,
			deployed, expectation_met, outputs, pipeline, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		runID,
		record.Index,
		string(record.Outcome),
		string(record.FailureClass),
		record.ErrorSummary,
		record.Deployed,
		record.ExpectationMet,
		string(outputs),
		string(pipelineBlob),
		record.StartedAt,
		record.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save cycle: %w", err)
	}

	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, prompt, outcome, cycle_count, started_at, duration_ms
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*RunSummary{}
	for rows.Next() {
		run := &RunSummary{}
		var durationMs int64
		if err := rows.Scan(&run.ID, &run.Prompt, &run.Outcome, &run.CycleCount, &run.StartedAt, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// GetCycles returns a run's cycle records in order.
func (s *SQLiteStore) GetCycles(ctx context.Context, runID string) ([]*CycleRow, error) {
	query := `
		SELECT run_id, idx, outcome, failure_class, error_summary,
		       deployed, expectation_met, outputs, pipeline, started_at, completed_at
		FROM cycles
		WHERE run_id = ?
		ORDER BY idx ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cycles: %w", err)
	}
	defer rows.Close()

	cycles := []*CycleRow{}
	for rows.Next() {
		cycle := &CycleRow{}
		err := rows.Scan(
			&cycle.RunID,
			&cycle.Index,
			&cycle.Outcome,
			&cycle.FailureClass,
			&cycle.ErrorSummary,
			&cycle.Deployed,
			&cycle.ExpectationMet,
			&cycle.Outputs,
			&cycle.Pipeline,
			&cycle.StartedAt,
			&cycle.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		cycles = append(cycles, cycle)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cycles: %w", err)
	}

	return cycles, nil
}
