package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/jspindler/takt/internal/domain"
)

// Instance options
type InstanceOption func(*domain.ProcessInstance)

func WithDueDate(d time.Time) InstanceOption {
	return func(p *domain.ProcessInstance) {
		p.DueDate = &d
	}
}

func WithCustomerPriority(cp domain.CustomerPriority) InstanceOption {
	return func(p *domain.ProcessInstance) {
		p.CustomerPriority = cp
	}
}

func WithDependencies(ids ...string) InstanceOption {
	return func(p *domain.ProcessInstance) {
		p.Dependencies = ids
	}
}

func WithRequiredCapabilities(caps ...string) InstanceOption {
	return func(p *domain.ProcessInstance) {
		p.RequiredCapabilities = caps
	}
}

func WithTimes(setupMin, cycleMin, quantity int) InstanceOption {
	return func(p *domain.ProcessInstance) {
		p.SetupTimeMin = setupMin
		p.CycleTimeMin = cycleMin
		p.Quantity = quantity
	}
}

func WithOrderIndex(i int) InstanceOption {
	return func(p *domain.ProcessInstance) {
		p.OrderIndex = i
	}
}

// NewTestInstance builds a one-hour turning job: 30 min setup plus ten
// 3-minute cycles.
func NewTestInstance(id string, opts ...InstanceOption) *domain.ProcessInstance {
	p := &domain.ProcessInstance{
		ID:               id,
		DisplayName:      "Job " + id,
		MachineType:      "cnc_lathe",
		SetupTimeMin:     30,
		CycleTimeMin:     3,
		Quantity:         10,
		CustomerPriority: domain.PriorityMedium,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Machine options
type MachineOption func(*domain.Machine)

func WithMachineType(t string) MachineOption {
	return func(m *domain.Machine) {
		m.Type = t
	}
}

func WithCapabilities(caps ...string) MachineOption {
	return func(m *domain.Machine) {
		m.Capabilities = caps
	}
}

func WithWorkload(hours float64) MachineOption {
	return func(m *domain.Machine) {
		m.CurrentWorkloadHours = hours
	}
}

func WithHourlyRate(rate float64) MachineOption {
	return func(m *domain.Machine) {
		m.HourlyRate = &rate
	}
}

func WithWorkingHours(start, end string, days ...time.Weekday) MachineOption {
	return func(m *domain.Machine) {
		m.WorkingHours = &domain.WorkingHours{Start: start, End: end, WorkingDays: days}
	}
}

func WithMaintenanceWindow(w domain.TimeWindow) MachineOption {
	return func(m *domain.Machine) {
		m.MaintenanceWindows = append(m.MaintenanceWindows, w)
	}
}

func WithAssignmentRule(rule string) MachineOption {
	return func(m *domain.Machine) {
		m.AssignmentRule = rule
	}
}

func Inactive() MachineOption {
	return func(m *domain.Machine) {
		m.IsActive = false
	}
}

func NewTestMachine(id string, opts ...MachineOption) *domain.Machine {
	m := &domain.Machine{
		ID:           id,
		Name:         "Machine " + id,
		Type:         "cnc_lathe",
		Capabilities: []string{"turning"},
		IsActive:     true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Entry options
type EntryOption func(*domain.ScheduleEntry)

func WithEntryStatus(s domain.EntryStatus) EntryOption {
	return func(e *domain.ScheduleEntry) {
		e.Status = s
	}
}

func WithInstanceID(id string) EntryOption {
	return func(e *domain.ScheduleEntry) {
		e.ProcessInstanceID = id
	}
}

func NewTestEntry(machineID string, start, end time.Time, opts ...EntryOption) *domain.ScheduleEntry {
	now := time.Now().UTC()
	e := &domain.ScheduleEntry{
		ID:                uuid.New().String(),
		MachineID:         machineID,
		ProcessInstanceID: "pi-" + uuid.New().String()[:8],
		StartTime:         start,
		EndTime:           end,
		Status:            domain.EntryScheduled,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Emergency options
type EmergencyOption func(*domain.EmergencyRequest)

func WithEmergencyState(s domain.EmergencyState) EmergencyOption {
	return func(r *domain.EmergencyRequest) {
		r.State = s
	}
}

func WithRequiredApprovals(n int) EmergencyOption {
	return func(r *domain.EmergencyRequest) {
		r.RequiredApprovals = n
	}
}

func WithWindow(start, end time.Time) EmergencyOption {
	return func(r *domain.EmergencyRequest) {
		r.WindowStart = start
		r.WindowEnd = end
	}
}

func WithReason(reason string) EmergencyOption {
	return func(r *domain.EmergencyRequest) {
		r.Reason = reason
	}
}

func NewTestEmergency(level domain.EmergencyLevel, instance *domain.ProcessInstance, opts ...EmergencyOption) *domain.EmergencyRequest {
	now := time.Now().UTC()
	r := &domain.EmergencyRequest{
		ID:                uuid.New().String(),
		ProcessInstanceID: instance.ID,
		Level:             level,
		RequestedBy:       "operator",
		RequestedAt:       now,
		Instance:          instance,
		WindowStart:       now,
		WindowEnd:         now.Add(24 * time.Hour),
		DurationMin:       instance.TotalDurationMin(),
		State:             domain.EmergencyRequested,
		RequiredApprovals: 1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}
