// Package store is the persistence layer for gate schedules, overrides and
// the gate event log. It owns the write-time invariants the resolver relies
// on: non-overlapping schedule windows and at most one live override per
// (village, gate).
package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps sql.DB for the gate service.
type DB struct {
	*sql.DB
}

// Open opens the database at path and runs migrations.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := createTables(db); err != nil {
		return nil, err
	}
	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		// Recurring weekly windows. days_of_week is a comma-separated
		// day set, 0=Monday .. 6=Sunday.
		`CREATE TABLE IF NOT EXISTS gate_schedules (
			id TEXT PRIMARY KEY,
			village_id TEXT NOT NULL,
			gate_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			operation_mode TEXT NOT NULL,
			days_of_week TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			created_by TEXT
		)`,

		// Temporary overrides. The unique key makes the upsert race-free:
		// two concurrent requests can never both insert for one gate.
		`CREATE TABLE IF NOT EXISTS gate_overrides (
			id TEXT PRIMARY KEY,
			village_id TEXT NOT NULL,
			gate_id TEXT NOT NULL,
			operation_mode TEXT NOT NULL,
			expiry_time DATETIME NOT NULL,
			created_by TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(village_id, gate_id)
		)`,

		// Append-only log of observed transitions and access decisions.
		`CREATE TABLE IF NOT EXISTS gate_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			village_id TEXT NOT NULL,
			gate_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			mode TEXT,
			source TEXT,
			detail TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_schedules_gate ON gate_schedules(village_id, gate_id)`,
		`CREATE INDEX IF NOT EXISTS idx_overrides_expiry ON gate_overrides(expiry_time)`,
		`CREATE INDEX IF NOT EXISTS idx_events_gate_time ON gate_events(village_id, gate_id, created_at)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
