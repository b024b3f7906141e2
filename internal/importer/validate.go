package importer

import (
	"fmt"
	"time"

	"github.com/jspindler/takt/internal/domain"
)

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ValidateBatch checks the batch file for errors before conversion.
// Returns a slice of all validation errors found; cross-batch rules the
// scheduler owns (dependency cycles, capability matching) are not checked
// here.
func ValidateBatch(batch *BatchImport) []error {
	var errs []error

	if len(batch.Instances) == 0 {
		errs = append(errs, fmt.Errorf("instances: at least one instance is required"))
	}

	instanceIDs := make(map[string]bool)
	errs = append(errs, validateInstances(batch.Instances, instanceIDs)...)
	errs = append(errs, validateDependencyRefs(batch.Instances, instanceIDs)...)
	errs = append(errs, validateMachines(batch.Machines)...)

	return errs
}

func validateInstances(instances []InstanceImport, ids map[string]bool) []error {
	var errs []error

	for i, inst := range instances {
		prefix := fmt.Sprintf("instances[%d]", i)

		if inst.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else if ids[inst.ID] {
			errs = append(errs, fmt.Errorf("%s.id: duplicate id %q", prefix, inst.ID))
		} else {
			ids[inst.ID] = true
		}

		if inst.MachineType == "" {
			errs = append(errs, fmt.Errorf("%s.machine_type is required", prefix))
		}
		if inst.Quantity < 1 {
			errs = append(errs, fmt.Errorf("%s.quantity must be at least 1, got %d", prefix, inst.Quantity))
		}
		if inst.SetupTimeMin < 0 {
			errs = append(errs, fmt.Errorf("%s.setup_time_min must not be negative, got %d", prefix, inst.SetupTimeMin))
		}
		if inst.CycleTimeMin < 0 {
			errs = append(errs, fmt.Errorf("%s.cycle_time_min must not be negative, got %d", prefix, inst.CycleTimeMin))
		}

		if inst.CustomerPriority != "" && !domain.ValidCustomerPriorities[inst.CustomerPriority] {
			errs = append(errs, fmt.Errorf("%s.customer_priority: invalid value %q", prefix, inst.CustomerPriority))
		}
		errs = append(errs, validateOptionalDate(prefix+".due_date", inst.DueDate)...)
	}

	return errs
}

func validateDependencyRefs(instances []InstanceImport, ids map[string]bool) []error {
	var errs []error

	for i, inst := range instances {
		prefix := fmt.Sprintf("instances[%d]", i)
		for _, dep := range inst.Dependencies {
			if dep == inst.ID {
				errs = append(errs, fmt.Errorf("%s: self-dependency on %q", prefix, dep))
				continue
			}
			if !ids[dep] {
				errs = append(errs, fmt.Errorf("%s.dependencies: id %q not found in instances", prefix, dep))
			}
		}
	}

	return errs
}

func validateMachines(machines []MachineImport) []error {
	var errs []error

	ids := make(map[string]bool)
	for i, m := range machines {
		prefix := fmt.Sprintf("machines[%d]", i)

		if m.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else if ids[m.ID] {
			errs = append(errs, fmt.Errorf("%s.id: duplicate id %q", prefix, m.ID))
		} else {
			ids[m.ID] = true
		}

		if m.Type == "" {
			errs = append(errs, fmt.Errorf("%s.type is required", prefix))
		}
		if m.HourlyRate != nil && *m.HourlyRate < 0 {
			errs = append(errs, fmt.Errorf("%s.hourly_rate must not be negative", prefix))
		}

		if m.WorkingHours != nil {
			errs = append(errs, validateWorkingHours(prefix+".working_hours", m.WorkingHours)...)
		}
		for j, w := range m.MaintenanceWindows {
			errs = append(errs, validateTimeWindow(fmt.Sprintf("%s.maintenance_windows[%d]", prefix, j), w)...)
		}
	}

	return errs
}

func validateWorkingHours(prefix string, h *WorkingHoursImport) []error {
	var errs []error

	start, startErr := time.Parse("15:04", h.Start)
	if startErr != nil {
		errs = append(errs, fmt.Errorf("%s.start: invalid clock time %q (expected HH:MM)", prefix, h.Start))
	}
	end, endErr := time.Parse("15:04", h.End)
	if endErr != nil {
		errs = append(errs, fmt.Errorf("%s.end: invalid clock time %q (expected HH:MM)", prefix, h.End))
	}
	if startErr == nil && endErr == nil && !end.After(start) {
		errs = append(errs, fmt.Errorf("%s: end %q must be after start %q", prefix, h.End, h.Start))
	}

	if len(h.Days) == 0 {
		errs = append(errs, fmt.Errorf("%s.days: at least one working day is required", prefix))
	}
	for _, d := range h.Days {
		if _, ok := weekdayNames[d]; !ok {
			errs = append(errs, fmt.Errorf("%s.days: unknown weekday %q", prefix, d))
		}
	}

	return errs
}

func validateTimeWindow(prefix string, w TimeWindowImport) []error {
	var errs []error

	start, startErr := time.Parse(time.RFC3339, w.Start)
	if startErr != nil {
		errs = append(errs, fmt.Errorf("%s.start: invalid timestamp %q (expected RFC 3339)", prefix, w.Start))
	}
	end, endErr := time.Parse(time.RFC3339, w.End)
	if endErr != nil {
		errs = append(errs, fmt.Errorf("%s.end: invalid timestamp %q (expected RFC 3339)", prefix, w.End))
	}
	if startErr == nil && endErr == nil && !end.After(start) {
		errs = append(errs, fmt.Errorf("%s: end %q must be after start %q", prefix, w.End, w.Start))
	}

	return errs
}

func validateOptionalDate(field string, dateStr *string) []error {
	if dateStr == nil || *dateStr == "" {
		return nil
	}
	if _, err := parseDate(*dateStr); err != nil {
		return []error{fmt.Errorf("%s: invalid date %q (expected YYYY-MM-DD or RFC 3339)", field, *dateStr)}
	}
	return nil
}

// parseDate accepts a plain date or a full RFC 3339 timestamp. Plain dates
// resolve to end of day UTC so a job finishing any time that day is on time.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.Add(24*time.Hour - time.Second), nil
}
