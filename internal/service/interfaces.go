package service

import (
	"context"
	"time"

	"github.com/jspindler/takt/internal/contract"
	"github.com/jspindler/takt/internal/domain"
)

// ScheduleService runs one scheduling pass over a batch of instances.
// AutoScheduler and EnhancedAutoScheduler both implement it.
type ScheduleService interface {
	Schedule(ctx context.Context, req contract.ScheduleRequest) (*contract.ScheduleResponse, error)
}

// EmergencyService drives the emergency request state machine.
type EmergencyService interface {
	Request(ctx context.Context, req contract.EmergencyScheduleRequest) (*contract.EmergencyResponse, error)
	Approve(ctx context.Context, req contract.EmergencyDecisionRequest) (*contract.EmergencyResponse, error)
	Reject(ctx context.Context, req contract.EmergencyDecisionRequest) (*contract.EmergencyResponse, error)
	Schedule(ctx context.Context, requestID string) (*contract.EmergencyResponse, error)
}

// MachineUtilization is one machine's booked share of its working minutes
// over a reporting window.
type MachineUtilization struct {
	Machine      *domain.Machine
	BookedMin    float64
	AvailableMin float64
	Ratio        float64
	EntryCount   int
}

// MachineService manages the machine registry.
type MachineService interface {
	Upsert(ctx context.Context, m *domain.Machine) error
	GetByID(ctx context.Context, id string) (*domain.Machine, error)
	List(ctx context.Context) ([]*domain.Machine, error)
	ListActive(ctx context.Context) ([]*domain.Machine, error)
	// UtilizationSnapshot reports per-machine utilization over [from, to).
	UtilizationSnapshot(ctx context.Context, from, to time.Time) ([]MachineUtilization, error)
}

// EntryService exposes schedule entry queries and status transitions.
type EntryService interface {
	GetByID(ctx context.Context, id string) (*domain.ScheduleEntry, error)
	ListByMachine(ctx context.Context, machineID string, from, to time.Time) ([]*domain.ScheduleEntry, error)
	// Transition moves an entry along scheduled -> in_progress ->
	// completed/cancelled, rejecting illegal moves.
	Transition(ctx context.Context, id string, to domain.EntryStatus) (*domain.ScheduleEntry, error)
}
