// Package db owns the SQLite database under a project workspace. All state
// lives in a single file at <workspace>/.slipway/slipway.db.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	dataDir = ".slipway"
	dbFile  = "slipway.db"
)

type Config struct {
	Workspace string
}

// EnsureWorkspace creates the workspace data directory if missing and
// returns its path.
func EnsureWorkspace(workspace string) (string, error) {
	dir := filepath.Join(workspace, dataDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Open opens the workspace database. Foreign keys are enforced, and the
// pool is capped at a single connection: the engine serializes writes per
// project, and one connection keeps SQLite from returning busy errors
// under that lock. Anything running inside an open transaction must read
// through the transaction, never the pool.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", Path(cfg.Workspace))
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)
	return conn, nil
}

// Path returns the database file path for a workspace.
func Path(workspace string) string {
	ws := workspace
	if ws == "" {
		ws = "."
	}
	return filepath.Join(ws, dataDir, dbFile)
}
