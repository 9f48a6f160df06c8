package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLite writes samples to the telemetry_samples table, one transaction per
// flush.
type SQLite struct {
	db     *sql.DB
	runID  string
	insert string

	pending    []Sample
	bufferSize int
}

// NewSQLite records samples for runID into db. The schema comes from
// storage.BootstrapSQLite.
func NewSQLite(db *sql.DB, runID string) *SQLite {
	cols := append([]string{"run_id", "cycle"}, Header...)
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return &SQLite{
		db:         db,
		runID:      runID,
		insert:     fmt.Sprintf("INSERT INTO telemetry_samples (%s) VALUES (%s);", strings.Join(cols, ", "), marks),
		bufferSize: defaultBufferSize,
	}
}

func (r *SQLite) Record(s Sample) error {
	r.pending = append(r.pending, s)
	if len(r.pending) >= r.bufferSize {
		return r.Flush()
	}
	return nil
}

func (r *SQLite) Flush() error {
	if len(r.pending) == 0 {
		return nil
	}
	ctx := context.Background()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin telemetry batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, r.insert)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare telemetry insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range r.pending {
		args := make([]any, 0, len(Header)+2)
		args = append(args, r.runID, s.Cycle)
		for _, v := range s.Values() {
			args = append(args, v)
		}
		args = append(args, s.Printing)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert sample at cycle %d: %w", s.Cycle, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit telemetry batch: %w", err)
	}
	r.pending = r.pending[:0]
	return nil
}

// Close flushes; the database handle belongs to the caller.
func (r *SQLite) Close() error {
	return r.Flush()
}
