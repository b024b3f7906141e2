package domain

import (
	"fmt"
	"time"
)

type ProcessInstance struct {
	ID                   string
	DisplayName          string
	MachineType          string
	RequiredCapabilities []string

	// Duration
	SetupTimeMin int
	CycleTimeMin int
	Quantity     int

	// Ordering
	Dependencies []string
	OrderIndex   int

	// Commercial constraints
	DueDate          *time.Time
	CustomerPriority CustomerPriority
}

// TotalDurationMin returns the full machining time for the instance:
// one setup plus the cycle time repeated across the quantity.
func (p *ProcessInstance) TotalDurationMin() int {
	return p.SetupTimeMin + p.CycleTimeMin*p.Quantity
}

// Validate checks the invariants an instance must satisfy on its own.
// Cross-instance rules (unknown references, cycles) belong to the
// dependency graph.
func (p *ProcessInstance) Validate() []error {
	var errs []error
	if p.ID == "" {
		errs = append(errs, fmt.Errorf("instance id is required"))
		return errs
	}
	if p.Quantity < 1 {
		errs = append(errs, fmt.Errorf("instance %s: quantity must be at least 1, got %d", p.ID, p.Quantity))
	}
	if p.SetupTimeMin < 0 {
		errs = append(errs, fmt.Errorf("instance %s: setup time must not be negative, got %d", p.ID, p.SetupTimeMin))
	}
	if p.CycleTimeMin < 0 {
		errs = append(errs, fmt.Errorf("instance %s: cycle time must not be negative, got %d", p.ID, p.CycleTimeMin))
	}
	if p.CustomerPriority != "" && !ValidCustomerPriorities[string(p.CustomerPriority)] {
		errs = append(errs, fmt.Errorf("instance %s: unknown customer priority %q", p.ID, p.CustomerPriority))
	}
	return errs
}

// Label returns the best human-readable identifier for display.
func (p *ProcessInstance) Label() string {
	return CoalesceStr(p.DisplayName, p.ID)
}
