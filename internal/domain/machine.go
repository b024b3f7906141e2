package domain

import (
	"strings"
	"time"
)

// WorkingHours describes a daily working window. Start and End use the
// 24-hour "HH:MM" form and are interpreted in the schedule's location.
type WorkingHours struct {
	Start       string
	End         string
	WorkingDays []time.Weekday
}

// IsWorkday reports whether d is one of the configured working days.
func (h WorkingHours) IsWorkday(d time.Weekday) bool {
	for _, wd := range h.WorkingDays {
		if wd == d {
			return true
		}
	}
	return false
}

// TimeWindow is a half-open interval [Start, End).
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Overlaps reports whether two windows intersect.
func (w TimeWindow) Overlaps(other TimeWindow) bool {
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

type Machine struct {
	ID           string
	Name         string
	Type         string
	Capabilities []string
	IsActive     bool

	// Calendar
	WorkingHours       *WorkingHours
	MaintenanceWindows []TimeWindow

	// Load and cost
	CurrentWorkloadHours float64
	HourlyRate           *float64

	// AssignmentRule is an optional boolean expression evaluated against a
	// candidate instance during matching. Empty means no extra constraint.
	AssignmentRule string
}

// HasCapability reports whether the machine advertises the named
// capability. Comparison is case-insensitive.
func (m *Machine) HasCapability(name string) bool {
	for _, c := range m.Capabilities {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

// HasAllCapabilities reports whether every required capability is present.
func (m *Machine) HasAllCapabilities(required []string) bool {
	for _, r := range required {
		if !m.HasCapability(r) {
			return false
		}
	}
	return true
}

// MissingCapabilities returns the required capabilities the machine lacks.
func (m *Machine) MissingCapabilities(required []string) []string {
	var missing []string
	for _, r := range required {
		if !m.HasCapability(r) {
			missing = append(missing, r)
		}
	}
	return missing
}

// Label returns the best human-readable identifier for display.
func (m *Machine) Label() string {
	return CoalesceStr(m.Name, m.ID)
}
