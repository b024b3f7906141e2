package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jspindler/takt/internal/db"
	"github.com/jspindler/takt/internal/domain"
)

// machineColumns is the canonical SELECT column list for machines.
const machineColumns = `id, name, type, capabilities, is_active,
		work_start, work_end, working_days, maintenance_windows,
		current_workload_hours, hourly_rate, assignment_rule`

// SQLiteMachineRepo implements MachineRepo using a SQLite database.
// List-valued fields (capabilities, working days, maintenance windows) are
// stored as JSON text columns.
type SQLiteMachineRepo struct {
	db db.DBTX
}

// NewSQLiteMachineRepo creates a new SQLiteMachineRepo.
func NewSQLiteMachineRepo(conn db.DBTX) *SQLiteMachineRepo {
	return &SQLiteMachineRepo{db: conn}
}

func (r *SQLiteMachineRepo) Upsert(ctx context.Context, m *domain.Machine) error {
	caps, err := toJSON(m.Capabilities)
	if err != nil {
		return fmt.Errorf("encoding capabilities: %w", err)
	}
	windows, err := toJSON(m.MaintenanceWindows)
	if err != nil {
		return fmt.Errorf("encoding maintenance windows: %w", err)
	}

	var workStart, workEnd, workingDays interface{}
	if m.WorkingHours != nil {
		workStart = m.WorkingHours.Start
		workEnd = m.WorkingHours.End
		days, err := toJSON(m.WorkingHours.WorkingDays)
		if err != nil {
			return fmt.Errorf("encoding working days: %w", err)
		}
		workingDays = days
	}

	query := `INSERT OR REPLACE INTO machines (id, name, type, capabilities, is_active,
		work_start, work_end, working_days, maintenance_windows,
		current_workload_hours, hourly_rate, assignment_rule)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		m.ID,
		m.Name,
		m.Type,
		caps,
		boolToInt(m.IsActive),
		workStart,
		workEnd,
		workingDays,
		windows,
		m.CurrentWorkloadHours,
		nullableFloatToValue(m.HourlyRate),
		m.AssignmentRule,
	)
	if err != nil {
		return fmt.Errorf("upserting machine: %w", err)
	}
	return nil
}

func (r *SQLiteMachineRepo) GetByID(ctx context.Context, id string) (*domain.Machine, error) {
	query := `SELECT ` + machineColumns + ` FROM machines WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	return r.scanMachine(row)
}

func (r *SQLiteMachineRepo) List(ctx context.Context) ([]*domain.Machine, error) {
	query := `SELECT ` + machineColumns + ` FROM machines ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing machines: %w", err)
	}
	defer rows.Close()
	return r.scanMachines(rows)
}

func (r *SQLiteMachineRepo) ListActive(ctx context.Context) ([]*domain.Machine, error) {
	query := `SELECT ` + machineColumns + ` FROM machines WHERE is_active = 1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing active machines: %w", err)
	}
	defer rows.Close()
	return r.scanMachines(rows)
}

func (r *SQLiteMachineRepo) UpdateWorkload(ctx context.Context, id string, workloadHours float64) error {
	query := `UPDATE machines SET current_workload_hours = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, workloadHours, id)
	if err != nil {
		return fmt.Errorf("updating machine workload: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking updated rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("machine %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *SQLiteMachineRepo) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM machines WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deleting machine: %w", err)
	}
	return nil
}

// scanMachine scans a single machine from a *sql.Row.
func (r *SQLiteMachineRepo) scanMachine(row *sql.Row) (*domain.Machine, error) {
	var m domain.Machine
	var capsStr, windowsStr string
	var activeInt int
	var workStart, workEnd, workingDays sql.NullString
	var rate sql.NullFloat64

	err := row.Scan(&m.ID, &m.Name, &m.Type, &capsStr, &activeInt,
		&workStart, &workEnd, &workingDays, &windowsStr,
		&m.CurrentWorkloadHours, &rate, &m.AssignmentRule)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("machine: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("scanning machine: %w", err)
	}
	return r.populateMachine(&m, capsStr, windowsStr, activeInt, workStart, workEnd, workingDays, rate)
}

// scanMachines scans multiple machines from *sql.Rows.
func (r *SQLiteMachineRepo) scanMachines(rows *sql.Rows) ([]*domain.Machine, error) {
	var machines []*domain.Machine
	for rows.Next() {
		var m domain.Machine
		var capsStr, windowsStr string
		var activeInt int
		var workStart, workEnd, workingDays sql.NullString
		var rate sql.NullFloat64

		err := rows.Scan(&m.ID, &m.Name, &m.Type, &capsStr, &activeInt,
			&workStart, &workEnd, &workingDays, &windowsStr,
			&m.CurrentWorkloadHours, &rate, &m.AssignmentRule)
		if err != nil {
			return nil, fmt.Errorf("scanning machine row: %w", err)
		}
		machine, err := r.populateMachine(&m, capsStr, windowsStr, activeInt, workStart, workEnd, workingDays, rate)
		if err != nil {
			return nil, err
		}
		machines = append(machines, machine)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating machines: %w", err)
	}
	return machines, nil
}

func (r *SQLiteMachineRepo) populateMachine(m *domain.Machine, capsStr, windowsStr string, activeInt int, workStart, workEnd, workingDays sql.NullString, rate sql.NullFloat64) (*domain.Machine, error) {
	m.IsActive = intToBool(activeInt)

	if err := fromJSON(sql.NullString{String: capsStr, Valid: true}, &m.Capabilities); err != nil {
		return nil, fmt.Errorf("decoding capabilities: %w", err)
	}
	if err := fromJSON(sql.NullString{String: windowsStr, Valid: true}, &m.MaintenanceWindows); err != nil {
		return nil, fmt.Errorf("decoding maintenance windows: %w", err)
	}

	if workStart.Valid && workEnd.Valid {
		hours := &domain.WorkingHours{Start: workStart.String, End: workEnd.String}
		if err := fromJSON(workingDays, &hours.WorkingDays); err != nil {
			return nil, fmt.Errorf("decoding working days: %w", err)
		}
		m.WorkingHours = hours
	}
	if rate.Valid {
		v := rate.Float64
		m.HourlyRate = &v
	}
	return m, nil
}
