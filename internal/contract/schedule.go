package contract

import (
	"context"
	"time"

	"github.com/jspindler/takt/internal/domain"
)

type ScheduleRequest struct {
	Instances []*domain.ProcessInstance
	Machines  []*domain.Machine
	Now       *time.Time
	DryRun    bool
	Explain   bool
}

func NewScheduleRequest(instances []*domain.ProcessInstance, machines []*domain.Machine) ScheduleRequest {
	return ScheduleRequest{
		Instances: instances,
		Machines:  machines,
		Explain:   true,
	}
}

type ScheduleMetrics struct {
	TotalScheduledJobs   int
	AverageUtilization   float64
	OnTimeDeliveryRate   float64
	SchedulingDurationMs int64
}

// InstanceScore is the per-instance priority breakdown returned when
// the caller asked for an explanation.
type InstanceScore struct {
	ProcessInstanceID string
	Score             float64
	Urgency           domain.UrgencyLevel
	OnCriticalPath    bool
	Reasons           []string
}

type ScheduleResponse struct {
	GeneratedAt time.Time
	Success     bool
	Entries     []*domain.ScheduleEntry
	Conflicts   []Conflict
	Metrics     ScheduleMetrics
	Scores      []InstanceScore
	Warnings    []string
}

type ScheduleUseCase interface {
	Schedule(ctx context.Context, req ScheduleRequest) (*ScheduleResponse, error)
}

type ScheduleErrorCode string

const (
	ErrEmptyBatch       ScheduleErrorCode = "EMPTY_BATCH"
	ErrNoActiveMachines ScheduleErrorCode = "NO_ACTIVE_MACHINES"
	ErrInternalError    ScheduleErrorCode = "INTERNAL_ERROR"
)

type ScheduleError struct {
	Code    ScheduleErrorCode
	Message string
}

func (e *ScheduleError) Error() string {
	return string(e.Code) + ": " + e.Message
}
