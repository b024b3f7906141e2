package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jspindler/takt/internal/db"
	"github.com/jspindler/takt/internal/domain"
)

// entryColumns is the canonical SELECT column list for schedule_entries.
const entryColumns = `id, machine_id, process_instance_id, start_time, end_time,
		status, created_at, updated_at`

// SQLiteScheduleStore implements ScheduleStore using a SQLite database.
type SQLiteScheduleStore struct {
	db db.DBTX
}

// NewSQLiteScheduleStore creates a new SQLiteScheduleStore.
func NewSQLiteScheduleStore(conn db.DBTX) *SQLiteScheduleStore {
	return &SQLiteScheduleStore{db: conn}
}

func (s *SQLiteScheduleStore) Create(ctx context.Context, e *domain.ScheduleEntry) error {
	query := `INSERT INTO schedule_entries (id, machine_id, process_instance_id,
		start_time, end_time, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		e.MachineID,
		e.ProcessInstanceID,
		timeToString(e.StartTime),
		timeToString(e.EndTime),
		string(e.Status),
		timeToString(e.CreatedAt),
		timeToString(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting schedule entry: %w", err)
	}
	return nil
}

func (s *SQLiteScheduleStore) GetByID(ctx context.Context, id string) (*domain.ScheduleEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM schedule_entries WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)
	return s.scanEntry(row)
}

func (s *SQLiteScheduleStore) Update(ctx context.Context, id string, patch EntryPatch) error {
	sets := []string{"updated_at = ?"}
	args := []any{nowUTC()}

	if patch.MachineID != nil {
		sets = append(sets, "machine_id = ?")
		args = append(args, *patch.MachineID)
	}
	if patch.StartTime != nil {
		sets = append(sets, "start_time = ?")
		args = append(args, timeToString(*patch.StartTime))
	}
	if patch.EndTime != nil {
		sets = append(sets, "end_time = ?")
		args = append(args, timeToString(*patch.EndTime))
	}
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	args = append(args, id)

	query := `UPDATE schedule_entries SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating schedule entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking updated rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("schedule entry %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteScheduleStore) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM schedule_entries WHERE id = ?`
	_, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deleting schedule entry: %w", err)
	}
	return nil
}

func (s *SQLiteScheduleStore) ListByMachine(ctx context.Context, machineID string, from, to time.Time) ([]*domain.ScheduleEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM schedule_entries
		WHERE machine_id = ? AND start_time < ? AND end_time > ?
		ORDER BY start_time`
	rows, err := s.db.QueryContext(ctx, query, machineID, timeToString(to), timeToString(from))
	if err != nil {
		return nil, fmt.Errorf("listing entries by machine: %w", err)
	}
	defer rows.Close()
	return s.scanEntries(rows)
}

func (s *SQLiteScheduleStore) ListByInstance(ctx context.Context, processInstanceID string) ([]*domain.ScheduleEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM schedule_entries
		WHERE process_instance_id = ?
		ORDER BY start_time`
	rows, err := s.db.QueryContext(ctx, query, processInstanceID)
	if err != nil {
		return nil, fmt.Errorf("listing entries by instance: %w", err)
	}
	defer rows.Close()
	return s.scanEntries(rows)
}

func (s *SQLiteScheduleStore) DetectConflicts(ctx context.Context, candidate *domain.ScheduleEntry) ([]*domain.ScheduleEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM schedule_entries
		WHERE machine_id = ?
		  AND id != ?
		  AND status != 'cancelled'
		  AND start_time < ? AND end_time > ?
		ORDER BY start_time`
	rows, err := s.db.QueryContext(ctx, query,
		candidate.MachineID,
		candidate.ID,
		timeToString(candidate.EndTime),
		timeToString(candidate.StartTime),
	)
	if err != nil {
		return nil, fmt.Errorf("detecting schedule conflicts: %w", err)
	}
	defer rows.Close()
	return s.scanEntries(rows)
}

// scanEntry scans a single entry from a *sql.Row.
func (s *SQLiteScheduleStore) scanEntry(row *sql.Row) (*domain.ScheduleEntry, error) {
	var e domain.ScheduleEntry
	var statusStr, startStr, endStr, createdStr, updatedStr string

	err := row.Scan(&e.ID, &e.MachineID, &e.ProcessInstanceID,
		&startStr, &endStr, &statusStr, &createdStr, &updatedStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("schedule entry: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("scanning schedule entry: %w", err)
	}
	return s.populateEntry(&e, statusStr, startStr, endStr, createdStr, updatedStr)
}

// scanEntries scans multiple entries from *sql.Rows.
func (s *SQLiteScheduleStore) scanEntries(rows *sql.Rows) ([]*domain.ScheduleEntry, error) {
	var entries []*domain.ScheduleEntry
	for rows.Next() {
		var e domain.ScheduleEntry
		var statusStr, startStr, endStr, createdStr, updatedStr string

		err := rows.Scan(&e.ID, &e.MachineID, &e.ProcessInstanceID,
			&startStr, &endStr, &statusStr, &createdStr, &updatedStr)
		if err != nil {
			return nil, fmt.Errorf("scanning schedule entry row: %w", err)
		}
		entry, err := s.populateEntry(&e, statusStr, startStr, endStr, createdStr, updatedStr)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schedule entries: %w", err)
	}
	return entries, nil
}

func (s *SQLiteScheduleStore) populateEntry(e *domain.ScheduleEntry, statusStr, startStr, endStr, createdStr, updatedStr string) (*domain.ScheduleEntry, error) {
	e.Status = domain.EntryStatus(statusStr)

	var parseErr error
	if e.StartTime, parseErr = time.Parse(time.RFC3339, startStr); parseErr != nil {
		return nil, fmt.Errorf("parsing start_time: %w", parseErr)
	}
	if e.EndTime, parseErr = time.Parse(time.RFC3339, endStr); parseErr != nil {
		return nil, fmt.Errorf("parsing end_time: %w", parseErr)
	}
	if e.CreatedAt, parseErr = time.Parse(time.RFC3339, createdStr); parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	if e.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedStr); parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}
	return e, nil
}
