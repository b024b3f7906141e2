package db

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)

	// Re-running the full set must tolerate the ALTER TABLE statements.
	err := Migrate(db)
	require.NoError(t, err)

	err = Migrate(db)
	require.NoError(t, err)
}

func TestMigrate_CreatesAllTables(t *testing.T) {
	db := openTestDB(t)

	expected := []string{"machines", "schedule_entries", "emergency_requests", "emergency_approvals"}
	for _, table := range expected {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_CreatesIndexes(t *testing.T) {
	db := openTestDB(t)

	expected := []string{
		"idx_entries_machine_start",
		"idx_entries_instance",
		"idx_entries_status",
		"idx_emergency_state",
	}
	for _, idx := range expected {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='index' AND name=?`, idx).Scan(&name)
		require.NoError(t, err, "index %s should exist", idx)
	}
}

func TestMigrate_ForeignKeysEnabled(t *testing.T) {
	db := openTestDB(t)

	var fk int
	err := db.QueryRow(`PRAGMA foreign_keys`).Scan(&fk)
	require.NoError(t, err)
	assert.Equal(t, 1, fk, "foreign keys should be enabled")
}

func TestMigrate_WALModeRequested(t *testing.T) {
	// In-memory SQLite reports "memory"; WAL only applies to file DBs. This
	// verifies OpenDB issues the PRAGMA without failing.
	db := openTestDB(t)

	var mode string
	err := db.QueryRow(`PRAGMA journal_mode`).Scan(&mode)
	require.NoError(t, err)
	assert.Equal(t, "memory", mode)
}

func TestMigrate_EntryStatusCheckConstraint(t *testing.T) {
	db := openTestDB(t)

	_, err := db.Exec(`INSERT INTO schedule_entries (id, machine_id, process_instance_id, start_time, end_time, status, created_at, updated_at)
		VALUES ('e1', 'm1', 'pi1', '2025-06-16T08:00:00Z', '2025-06-16T09:00:00Z', 'INVALID', '2025-06-16T07:00:00Z', '2025-06-16T07:00:00Z')`)
	assert.Error(t, err, "invalid status should be rejected by CHECK constraint")

	_, err = db.Exec(`INSERT INTO schedule_entries (id, machine_id, process_instance_id, start_time, end_time, status, created_at, updated_at)
		VALUES ('e1', 'm1', 'pi1', '2025-06-16T08:00:00Z', '2025-06-16T09:00:00Z', 'scheduled', '2025-06-16T07:00:00Z', '2025-06-16T07:00:00Z')`)
	assert.NoError(t, err)
}

func TestMigrate_EmergencyLevelCheckConstraint(t *testing.T) {
	db := openTestDB(t)

	_, err := db.Exec(`INSERT INTO emergency_requests (id, process_instance_id, level, requested_by, requested_at, window_start, window_end, duration_min, state, created_at, updated_at)
		VALUES ('r1', 'pi1', 'mild', 'operator', '2025-06-16T07:00:00Z', '2025-06-16T07:00:00Z', '2025-06-17T07:00:00Z', 60, 'requested', '2025-06-16T07:00:00Z', '2025-06-16T07:00:00Z')`)
	assert.Error(t, err, "unknown emergency level should be rejected by CHECK constraint")

	_, err = db.Exec(`INSERT INTO emergency_requests (id, process_instance_id, level, requested_by, requested_at, window_start, window_end, duration_min, state, created_at, updated_at)
		VALUES ('r1', 'pi1', 'safety_critical', 'operator', '2025-06-16T07:00:00Z', '2025-06-16T07:00:00Z', '2025-06-17T07:00:00Z', 60, 'requested', '2025-06-16T07:00:00Z', '2025-06-16T07:00:00Z')`)
	assert.NoError(t, err)
}

func TestMigrate_MachineColumnsFromAlters(t *testing.T) {
	db := openTestDB(t)

	rows, err := db.Query(`PRAGMA table_info(machines)`)
	require.NoError(t, err)
	defer rows.Close()

	found := false
	for rows.Next() {
		var cid int
		var name, typ string
		var notNull, pk int
		var dflt sql.NullString
		require.NoError(t, rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk))
		if name == "assignment_rule" {
			found = true
		}
	}
	assert.True(t, found, "machines table should have assignment_rule column")
}

func TestMigrate_ApprovalsUniquePerActor(t *testing.T) {
	db := openTestDB(t)

	_, err := db.Exec(`INSERT INTO emergency_requests (id, process_instance_id, level, requested_by, requested_at, window_start, window_end, duration_min, state, created_at, updated_at)
		VALUES ('r1', 'pi1', 'urgent', 'operator', '2025-06-16T07:00:00Z', '2025-06-16T07:00:00Z', '2025-06-20T17:00:00Z', 60, 'requested', '2025-06-16T07:00:00Z', '2025-06-16T07:00:00Z')`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO emergency_approvals (request_id, actor, acted_at, approved) VALUES ('r1', 'lead', '2025-06-16T08:00:00Z', 1)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO emergency_approvals (request_id, actor, acted_at, approved) VALUES ('r1', 'lead', '2025-06-16T09:00:00Z', 0)`)
	assert.Error(t, err, "second decision by the same actor should violate the composite primary key")
}

func TestMigrate_ApprovalsCascadeOnRequestDelete(t *testing.T) {
	db := openTestDB(t)

	_, err := db.Exec(`INSERT INTO emergency_requests (id, process_instance_id, level, requested_by, requested_at, window_start, window_end, duration_min, state, created_at, updated_at)
		VALUES ('r1', 'pi1', 'urgent', 'operator', '2025-06-16T07:00:00Z', '2025-06-16T07:00:00Z', '2025-06-20T17:00:00Z', 60, 'requested', '2025-06-16T07:00:00Z', '2025-06-16T07:00:00Z')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO emergency_approvals (request_id, actor, acted_at, approved) VALUES ('r1', 'lead', '2025-06-16T08:00:00Z', 1)`)
	require.NoError(t, err)

	_, err = db.Exec(`DELETE FROM emergency_requests WHERE id = 'r1'`)
	require.NoError(t, err)

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM emergency_approvals WHERE request_id = 'r1'`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "approvals should cascade with their request")
}
