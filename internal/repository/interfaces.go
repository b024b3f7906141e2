package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jspindler/takt/internal/domain"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// EntryPatch is a partial update for a schedule entry. Nil fields are
// left untouched.
type EntryPatch struct {
	MachineID *string
	StartTime *time.Time
	EndTime   *time.Time
	Status    *domain.EntryStatus
}

// ScheduleStore owns persisted schedule entries. The scheduling pipeline
// never mutates persisted state except through this interface.
type ScheduleStore interface {
	Create(ctx context.Context, e *domain.ScheduleEntry) error
	GetByID(ctx context.Context, id string) (*domain.ScheduleEntry, error)
	Update(ctx context.Context, id string, patch EntryPatch) error
	Delete(ctx context.Context, id string) error
	// ListByMachine returns the machine's entries intersecting the half-open
	// window [from, to), ordered by start time.
	ListByMachine(ctx context.Context, machineID string, from, to time.Time) ([]*domain.ScheduleEntry, error)
	ListByInstance(ctx context.Context, processInstanceID string) ([]*domain.ScheduleEntry, error)
	// DetectConflicts returns the blocking entries on the candidate's machine
	// whose [start, end) interval overlaps the candidate's. Cancelled entries
	// and the candidate itself are ignored.
	DetectConflicts(ctx context.Context, candidate *domain.ScheduleEntry) ([]*domain.ScheduleEntry, error)
}

// MachineRepo holds the machine registry.
type MachineRepo interface {
	Upsert(ctx context.Context, m *domain.Machine) error
	GetByID(ctx context.Context, id string) (*domain.Machine, error)
	List(ctx context.Context) ([]*domain.Machine, error)
	ListActive(ctx context.Context) ([]*domain.Machine, error)
	UpdateWorkload(ctx context.Context, id string, workloadHours float64) error
	Delete(ctx context.Context, id string) error
}

// EmergencyRepo persists emergency requests and their decision trail.
type EmergencyRepo interface {
	Create(ctx context.Context, r *domain.EmergencyRequest) error
	GetByID(ctx context.Context, id string) (*domain.EmergencyRequest, error)
	UpdateState(ctx context.Context, id string, state domain.EmergencyState, updatedAt time.Time) error
	// RecordDecision appends one approve/reject action. A second decision by
	// the same actor on the same request is ignored, keeping replays
	// idempotent.
	RecordDecision(ctx context.Context, id string, a domain.ApprovalAction) error
	ListByState(ctx context.Context, state domain.EmergencyState) ([]*domain.EmergencyRequest, error)
}
