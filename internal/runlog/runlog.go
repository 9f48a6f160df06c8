// Package runlog keeps one row per print run in SQLite.
package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var ErrRunNotFound = errors.New("run not found")

type Run struct {
	ID          string
	Controller  string
	Carton      string
	Side        string
	Status      Status
	Tasks       int
	Cycles      int
	StartedAt   time.Time
	CompletedAt *time.Time
	LastError   *string
}

// Duration is the wall time of a finished run, or zero while running.
func (r Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

type StartRequest struct {
	Controller string
	Carton     string
	Side       string
	Tasks      int
}

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Start records a new running run and returns its ID.
func (s *Store) Start(ctx context.Context, req StartRequest) (string, error) {
	if req.Controller == "" {
		return "", fmt.Errorf("controller is empty")
	}
	if req.Carton == "" {
		return "", fmt.Errorf("carton is empty")
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(ctx, `
INSERT INTO runs(id, controller, carton, side, status, tasks, started_at)
VALUES(?, ?, ?, ?, ?, ?, ?);
`, id, req.Controller, req.Carton, req.Side, StatusRunning, req.Tasks, now)
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	return id, nil
}

// Finish marks a run terminal. runErr, when set, is stored as last_error.
func (s *Store) Finish(ctx context.Context, id string, status Status, cycles int, runErr error) error {
	if id == "" {
		return fmt.Errorf("run id is empty")
	}
	if status != StatusSucceeded && status != StatusFailed && status != StatusCancelled {
		return fmt.Errorf("invalid terminal status: %q", status)
	}

	var lastError any
	if runErr != nil {
		lastError = runErr.Error()
	}
	completedAt := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(ctx, `
UPDATE runs
SET status = ?, cycles = ?, completed_at = ?, last_error = ?
WHERE id = ?;
`, status, cycles, completedAt, lastError, id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

// Get returns one run.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, controller, carton, side, status, tasks, cycles, started_at, completed_at, last_error
FROM runs
WHERE id = ?;
`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// List returns the most recent runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, controller, carton, side, status, tasks, cycles, started_at, completed_at, last_error
FROM runs
ORDER BY started_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		r            Run
		statusS      string
		startedAtS   string
		completedAtS sql.NullString
		lastError    sql.NullString
	)
	if err := row.Scan(&r.ID, &r.Controller, &r.Carton, &r.Side, &statusS, &r.Tasks, &r.Cycles,
		&startedAtS, &completedAtS, &lastError); err != nil {
		return nil, err
	}

	r.Status = Status(statusS)
	if t, err := time.Parse(time.RFC3339Nano, startedAtS); err == nil {
		r.StartedAt = t
	}
	if completedAtS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, completedAtS.String); err == nil {
			r.CompletedAt = &t
		}
	}
	if lastError.Valid {
		r.LastError = &lastError.String
	}
	return &r, nil
}
