package importer

import (
	"fmt"
	"time"

	"github.com/jspindler/takt/internal/domain"
)

// Convert transforms a validated batch into domain objects ready for
// scheduling. Call ValidateBatch first; Convert assumes the batch is valid.
func Convert(batch *BatchImport) ([]*domain.ProcessInstance, []*domain.Machine, error) {
	instances := make([]*domain.ProcessInstance, 0, len(batch.Instances))
	for i, in := range batch.Instances {
		inst := &domain.ProcessInstance{
			ID:                   in.ID,
			DisplayName:          in.DisplayName,
			MachineType:          in.MachineType,
			RequiredCapabilities: in.RequiredCapabilities,
			SetupTimeMin:         in.SetupTimeMin,
			CycleTimeMin:         in.CycleTimeMin,
			Quantity:             in.Quantity,
			Dependencies:         in.Dependencies,
			OrderIndex:           in.OrderIndex,
			CustomerPriority:     domain.CustomerPriority(in.CustomerPriority),
		}
		// Batch position is the default ordering.
		if inst.OrderIndex == 0 {
			inst.OrderIndex = i
		}
		if in.DueDate != nil && *in.DueDate != "" {
			due, err := parseDate(*in.DueDate)
			if err != nil {
				return nil, nil, fmt.Errorf("instances[%d].due_date: %w", i, err)
			}
			inst.DueDate = &due
		}
		instances = append(instances, inst)
	}

	machines := make([]*domain.Machine, 0, len(batch.Machines))
	for i, m := range batch.Machines {
		machine := &domain.Machine{
			ID:             m.ID,
			Name:           m.Name,
			Type:           m.Type,
			Capabilities:   m.Capabilities,
			IsActive:       true,
			HourlyRate:     m.HourlyRate,
			AssignmentRule: m.AssignmentRule,
		}
		if m.Active != nil {
			machine.IsActive = *m.Active
		}
		if m.WorkingHours != nil {
			machine.WorkingHours = convertWorkingHours(m.WorkingHours)
		}
		for j, w := range m.MaintenanceWindows {
			win, err := convertTimeWindow(w)
			if err != nil {
				return nil, nil, fmt.Errorf("machines[%d].maintenance_windows[%d]: %w", i, j, err)
			}
			machine.MaintenanceWindows = append(machine.MaintenanceWindows, win)
		}
		machines = append(machines, machine)
	}

	return instances, machines, nil
}

func convertWorkingHours(h *WorkingHoursImport) *domain.WorkingHours {
	days := make([]time.Weekday, 0, len(h.Days))
	for _, d := range h.Days {
		if wd, ok := weekdayNames[d]; ok {
			days = append(days, wd)
		}
	}
	return &domain.WorkingHours{Start: h.Start, End: h.End, WorkingDays: days}
}

func convertTimeWindow(w TimeWindowImport) (domain.TimeWindow, error) {
	start, err := time.Parse(time.RFC3339, w.Start)
	if err != nil {
		return domain.TimeWindow{}, fmt.Errorf("parsing start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, w.End)
	if err != nil {
		return domain.TimeWindow{}, fmt.Errorf("parsing end: %w", err)
	}
	return domain.TimeWindow{Start: start, End: end}, nil
}
