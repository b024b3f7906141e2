package db

import (
	"database/sql"
	"fmt"
	"strings"
)

// Migrate runs all schema migrations.
func Migrate(db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			// Tolerate "duplicate column name" errors from ALTER TABLE
			// since the migration system re-runs all statements.
			if strings.Contains(err.Error(), "duplicate column name") {
				continue
			}
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS machines (
		id                     TEXT PRIMARY KEY,
		name                   TEXT NOT NULL DEFAULT '',
		type                   TEXT NOT NULL,
		capabilities           TEXT NOT NULL DEFAULT '[]',
		is_active              INTEGER NOT NULL DEFAULT 1,
		work_start             TEXT,
		work_end               TEXT,
		working_days           TEXT,
		maintenance_windows    TEXT NOT NULL DEFAULT '[]',
		current_workload_hours REAL NOT NULL DEFAULT 0,
		hourly_rate            REAL
	)`,

	`CREATE TABLE IF NOT EXISTS schedule_entries (
		id                  TEXT PRIMARY KEY,
		machine_id          TEXT NOT NULL,
		process_instance_id TEXT NOT NULL,
		start_time          TEXT NOT NULL,
		end_time            TEXT NOT NULL,
		status              TEXT NOT NULL DEFAULT 'scheduled'
		                    CHECK(status IN ('scheduled','in_progress','completed','cancelled')),
		created_at          TEXT NOT NULL,
		updated_at          TEXT NOT NULL
	)`,

	// machine_id carries no foreign key: batches may schedule onto machines
	// supplied in the request that were never loaded into the registry.
	`CREATE INDEX IF NOT EXISTS idx_entries_machine_start ON schedule_entries(machine_id, start_time)`,
	`CREATE INDEX IF NOT EXISTS idx_entries_instance ON schedule_entries(process_instance_id)`,
	`CREATE INDEX IF NOT EXISTS idx_entries_status ON schedule_entries(status)`,

	`CREATE TABLE IF NOT EXISTS emergency_requests (
		id                  TEXT PRIMARY KEY,
		process_instance_id TEXT NOT NULL,
		level               TEXT NOT NULL
		                    CHECK(level IN ('urgent','safety_critical')),
		requested_by        TEXT NOT NULL,
		requested_at        TEXT NOT NULL,
		instance_json       TEXT NOT NULL DEFAULT '{}',
		window_start        TEXT NOT NULL,
		window_end          TEXT NOT NULL,
		duration_min        INTEGER NOT NULL,
		state               TEXT NOT NULL DEFAULT 'requested'
		                    CHECK(state IN ('requested','approved','rejected','scheduled')),
		required_approvals  INTEGER NOT NULL DEFAULT 0,
		created_at          TEXT NOT NULL,
		updated_at          TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_emergency_state ON emergency_requests(state)`,

	`CREATE TABLE IF NOT EXISTS emergency_approvals (
		request_id TEXT NOT NULL REFERENCES emergency_requests(id) ON DELETE CASCADE,
		actor      TEXT NOT NULL,
		acted_at   TEXT NOT NULL,
		approved   INTEGER NOT NULL,
		note       TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (request_id, actor)
	)`,

	// Assignment rules arrived after the first registry release.
	`ALTER TABLE machines ADD COLUMN assignment_rule TEXT NOT NULL DEFAULT ''`,

	// Free-text justification for emergency requests.
	`ALTER TABLE emergency_requests ADD COLUMN reason TEXT NOT NULL DEFAULT ''`,
}
