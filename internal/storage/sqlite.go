package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
		if err := RequireLocal(path, "database"); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == MemoryPath {
		// Each pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign_keys: %w", err)
	}
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates tables/indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
  id           TEXT PRIMARY KEY,
  controller   TEXT NOT NULL,
  carton       TEXT NOT NULL,
  side         TEXT NOT NULL,
  status       TEXT NOT NULL,
  tasks        INTEGER NOT NULL,
  cycles       INTEGER NOT NULL DEFAULT 0,
  started_at   TEXT NOT NULL,
  completed_at TEXT,
  last_error   TEXT
);`,
		`CREATE TABLE IF NOT EXISTS telemetry_samples (
  run_id TEXT NOT NULL,
  cycle  INTEGER NOT NULL,
  x      REAL NOT NULL,
  y      REAL NOT NULL,
  z      REAL NOT NULL,
  rx     REAL NOT NULL,
  ry     REAL NOT NULL,
  rz     REAL NOT NULL,
  q1     REAL NOT NULL,
  q2     REAL NOT NULL,
  q3     REAL NOT NULL,
  q4     REAL NOT NULL,
  q5     REAL NOT NULL,
  q6     REAL NOT NULL,
  vx     REAL NOT NULL,
  vy     REAL NOT NULL,
  vz     REAL NOT NULL,
  wx     REAL NOT NULL,
  wy     REAL NOT NULL,
  wz     REAL NOT NULL,
  vx_t   REAL NOT NULL,
  vy_t   REAL NOT NULL,
  vz_t   REAL NOT NULL,
  wx_t   REAL NOT NULL,
  wy_t   REAL NOT NULL,
  wz_t   REAL NOT NULL,
  print  INTEGER NOT NULL,
  PRIMARY KEY (run_id, cycle)
);`,
		`CREATE INDEX IF NOT EXISTS runs_started_at_idx ON runs(started_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
