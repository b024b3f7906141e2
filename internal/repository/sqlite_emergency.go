package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jspindler/takt/internal/db"
	"github.com/jspindler/takt/internal/domain"
)

// emergencyColumns is the canonical SELECT column list for emergency_requests.
const emergencyColumns = `id, process_instance_id, level, requested_by, requested_at,
		instance_json, window_start, window_end, duration_min, state,
		required_approvals, reason, created_at, updated_at`

// SQLiteEmergencyRepo implements EmergencyRepo using a SQLite database.
// The approval trail lives in its own table keyed by (request_id, actor),
// which makes decision recording naturally idempotent.
type SQLiteEmergencyRepo struct {
	db db.DBTX
}

// NewSQLiteEmergencyRepo creates a new SQLiteEmergencyRepo.
func NewSQLiteEmergencyRepo(conn db.DBTX) *SQLiteEmergencyRepo {
	return &SQLiteEmergencyRepo{db: conn}
}

func (r *SQLiteEmergencyRepo) Create(ctx context.Context, req *domain.EmergencyRequest) error {
	instanceJSON, err := toJSON(req.Instance)
	if err != nil {
		return fmt.Errorf("encoding instance snapshot: %w", err)
	}

	query := `INSERT INTO emergency_requests (id, process_instance_id, level,
		requested_by, requested_at, instance_json, window_start, window_end,
		duration_min, state, required_approvals, reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		req.ID,
		req.ProcessInstanceID,
		string(req.Level),
		req.RequestedBy,
		timeToString(req.RequestedAt),
		instanceJSON,
		timeToString(req.WindowStart),
		timeToString(req.WindowEnd),
		req.DurationMin,
		string(req.State),
		req.RequiredApprovals,
		req.Reason,
		timeToString(req.CreatedAt),
		timeToString(req.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting emergency request: %w", err)
	}
	return nil
}

func (r *SQLiteEmergencyRepo) GetByID(ctx context.Context, id string) (*domain.EmergencyRequest, error) {
	query := `SELECT ` + emergencyColumns + ` FROM emergency_requests WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	req, err := r.scanRequest(row)
	if err != nil {
		return nil, err
	}
	if err := r.loadApprovals(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

func (r *SQLiteEmergencyRepo) UpdateState(ctx context.Context, id string, state domain.EmergencyState, updatedAt time.Time) error {
	query := `UPDATE emergency_requests SET state = ?, updated_at = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, string(state), timeToString(updatedAt), id)
	if err != nil {
		return fmt.Errorf("updating emergency request state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking updated rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("emergency request %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *SQLiteEmergencyRepo) RecordDecision(ctx context.Context, id string, a domain.ApprovalAction) error {
	// INSERT OR IGNORE on the (request_id, actor) primary key drops replayed
	// decisions without an error.
	query := `INSERT OR IGNORE INTO emergency_approvals (request_id, actor, acted_at, approved, note)
		VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		id,
		a.Actor,
		timeToString(a.At),
		boolToInt(a.Approved),
		a.Note,
	)
	if err != nil {
		return fmt.Errorf("recording emergency decision: %w", err)
	}
	return nil
}

func (r *SQLiteEmergencyRepo) ListByState(ctx context.Context, state domain.EmergencyState) ([]*domain.EmergencyRequest, error) {
	query := `SELECT ` + emergencyColumns + ` FROM emergency_requests
		WHERE state = ? ORDER BY requested_at`
	rows, err := r.db.QueryContext(ctx, query, string(state))
	if err != nil {
		return nil, fmt.Errorf("listing emergency requests: %w", err)
	}
	defer rows.Close()

	var reqs []*domain.EmergencyRequest
	for rows.Next() {
		req, err := r.scanRequestRow(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating emergency requests: %w", err)
	}
	for _, req := range reqs {
		if err := r.loadApprovals(ctx, req); err != nil {
			return nil, err
		}
	}
	return reqs, nil
}

func (r *SQLiteEmergencyRepo) loadApprovals(ctx context.Context, req *domain.EmergencyRequest) error {
	query := `SELECT actor, acted_at, approved, note FROM emergency_approvals
		WHERE request_id = ? ORDER BY acted_at`
	rows, err := r.db.QueryContext(ctx, query, req.ID)
	if err != nil {
		return fmt.Errorf("loading approval trail: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a domain.ApprovalAction
		var actedStr string
		var approvedInt int
		if err := rows.Scan(&a.Actor, &actedStr, &approvedInt, &a.Note); err != nil {
			return fmt.Errorf("scanning approval row: %w", err)
		}
		if a.At, err = time.Parse(time.RFC3339, actedStr); err != nil {
			return fmt.Errorf("parsing acted_at: %w", err)
		}
		a.Approved = intToBool(approvedInt)
		req.Approvals = append(req.Approvals, a)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating approvals: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLiteEmergencyRepo) scanRequest(row *sql.Row) (*domain.EmergencyRequest, error) {
	req, err := scanEmergency(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("emergency request: %w", ErrNotFound)
	}
	return req, err
}

func (r *SQLiteEmergencyRepo) scanRequestRow(rows *sql.Rows) (*domain.EmergencyRequest, error) {
	return scanEmergency(rows)
}

func scanEmergency(row rowScanner) (*domain.EmergencyRequest, error) {
	var req domain.EmergencyRequest
	var levelStr, stateStr string
	var requestedStr, windowStartStr, windowEndStr, createdStr, updatedStr string
	var instanceJSON sql.NullString

	err := row.Scan(&req.ID, &req.ProcessInstanceID, &levelStr, &req.RequestedBy,
		&requestedStr, &instanceJSON, &windowStartStr, &windowEndStr,
		&req.DurationMin, &stateStr, &req.RequiredApprovals, &req.Reason,
		&createdStr, &updatedStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scanning emergency request: %w", err)
	}

	req.Level = domain.EmergencyLevel(levelStr)
	req.State = domain.EmergencyState(stateStr)
	if err := fromJSON(instanceJSON, &req.Instance); err != nil {
		return nil, fmt.Errorf("decoding instance snapshot: %w", err)
	}

	var parseErr error
	if req.RequestedAt, parseErr = time.Parse(time.RFC3339, requestedStr); parseErr != nil {
		return nil, fmt.Errorf("parsing requested_at: %w", parseErr)
	}
	if req.WindowStart, parseErr = time.Parse(time.RFC3339, windowStartStr); parseErr != nil {
		return nil, fmt.Errorf("parsing window_start: %w", parseErr)
	}
	if req.WindowEnd, parseErr = time.Parse(time.RFC3339, windowEndStr); parseErr != nil {
		return nil, fmt.Errorf("parsing window_end: %w", parseErr)
	}
	if req.CreatedAt, parseErr = time.Parse(time.RFC3339, createdStr); parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	if req.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedStr); parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}
	return &req, nil
}
