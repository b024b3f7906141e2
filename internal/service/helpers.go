package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jspindler/takt/internal/contract"
	"github.com/jspindler/takt/internal/domain"
	"github.com/jspindler/takt/internal/scheduler"
)

func nowOrDefault(override *time.Time) time.Time {
	if override != nil {
		return override.UTC()
	}
	return time.Now().UTC()
}

// validateBatch collects per-instance validation conflicts. Any conflict
// fails the whole batch closed.
func validateBatch(instances []*domain.ProcessInstance) []contract.Conflict {
	var conflicts []contract.Conflict
	for _, inst := range instances {
		for _, err := range inst.Validate() {
			conflicts = append(conflicts, contract.Conflict{
				Code:        contract.ConflictValidation,
				Message:     err.Error(),
				AffectedIDs: []string{inst.ID},
				Resolution:  "correct the instance data and resubmit the batch",
			})
		}
	}
	return conflicts
}

func referenceConflict(err error) contract.Conflict {
	return contract.Conflict{
		Code:       contract.ConflictDependencyRef,
		Message:    err.Error(),
		Resolution: "fix the dependency references and resubmit the batch",
	}
}

func cycleConflict(graph *scheduler.DependencyGraph) contract.Conflict {
	return contract.Conflict{
		Code:        contract.ConflictDependencyCycle,
		Message:     fmt.Sprintf("dependency cycle detected: %s", graph.CycleError()),
		AffectedIDs: append([]string(nil), graph.CyclePath...),
		Resolution:  "break the cycle by removing one of the listed dependencies",
	}
}

func machineUnavailableConflict(inst *domain.ProcessInstance, exclusions []string) contract.Conflict {
	msg := fmt.Sprintf("no capable machine for %s (type %s", inst.Label(), inst.MachineType)
	if len(inst.RequiredCapabilities) > 0 {
		msg += ", requires " + strings.Join(inst.RequiredCapabilities, ", ")
	}
	msg += ")"
	resolution := "add a machine of the required type or extend an existing machine's capabilities"
	if len(exclusions) > 0 {
		resolution += "; excluded: " + strings.Join(exclusions, "; ")
	}
	return contract.Conflict{
		Code:        contract.ConflictMachineUnavailable,
		Message:     msg,
		AffectedIDs: []string{inst.ID},
		Resolution:  resolution,
	}
}

func slotNotFoundConflict(inst *domain.ProcessInstance, candidates int) contract.Conflict {
	return contract.Conflict{
		Code: contract.ConflictSlotNotFound,
		Message: fmt.Sprintf("no feasible slot for %s (%d min) on any of %d candidate machines within the search horizon",
			inst.Label(), inst.TotalDurationMin(), candidates),
		AffectedIDs: []string{inst.ID},
		Resolution:  "extend the search horizon, free machine capacity, or allow after-hours work",
	}
}

func persistenceConflict(inst *domain.ProcessInstance, entry *domain.ScheduleEntry, err error) contract.Conflict {
	return contract.Conflict{
		Code: contract.ConflictPersistence,
		Message: fmt.Sprintf("failed to persist entry for %s on machine %s: %v",
			inst.Label(), entry.MachineID, err),
		AffectedIDs: []string{inst.ID, entry.ID},
		Resolution:  "the reported entry is unconfirmed; verify the store and reschedule the instance",
	}
}

func internalConflict(cause any) contract.Conflict {
	return contract.Conflict{
		Code:       contract.ConflictInternal,
		Message:    fmt.Sprintf("scheduling aborted by internal error: %v", cause),
		Resolution: "report the error; no further instances were scheduled",
	}
}

// visitingOrder flattens the graph's topological levels into the order
// instances are scheduled: level by level, critical-path members first
// within a level, then descending priority score, ties keeping batch order.
func visitingOrder(graph *scheduler.DependencyGraph, scores []scheduler.PriorityScore) []string {
	scoreByID := make(map[string]float64, len(scores))
	for _, s := range scores {
		scoreByID[s.ProcessInstanceID] = s.Score
	}

	var order []string
	for _, level := range graph.Levels {
		members := append([]string(nil), level...)
		sort.SliceStable(members, func(i, j int) bool {
			a, b := graph.Node(members[i]), graph.Node(members[j])
			if a.OnCriticalPath != b.OnCriticalPath {
				return a.OnCriticalPath
			}
			return scoreByID[members[i]] > scoreByID[members[j]]
		})
		order = append(order, members...)
	}
	return order
}

// runMetrics derives the response metrics from one run's outcome.
func runMetrics(entries []*domain.ScheduleEntry, instances []*domain.ProcessInstance,
	avail *scheduler.AvailabilityCalculator, now time.Time, elapsed time.Duration) contract.ScheduleMetrics {

	m := contract.ScheduleMetrics{
		TotalScheduledJobs:   len(entries),
		SchedulingDurationMs: elapsed.Milliseconds(),
	}
	if len(entries) == 0 {
		return m
	}

	instanceByID := make(map[string]*domain.ProcessInstance, len(instances))
	for _, inst := range instances {
		instanceByID[inst.ID] = inst
	}

	// Utilization: booked minutes per machine over the span from now to the
	// machine's last entry end.
	bookedMin := make(map[string]float64)
	lastEnd := make(map[string]time.Time)
	for _, e := range entries {
		bookedMin[e.MachineID] += float64(e.DurationMin())
		if e.EndTime.After(lastEnd[e.MachineID]) {
			lastEnd[e.MachineID] = e.EndTime
		}
	}
	var utilSum float64
	for id, booked := range bookedMin {
		span := lastEnd[id].Sub(now).Minutes()
		if span > 0 {
			ratio := booked / span
			if ratio > 1 {
				ratio = 1
			}
			utilSum += ratio
		}
	}
	m.AverageUtilization = utilSum / float64(len(bookedMin))

	// On-time rate: buffered completion estimate against the due date.
	// Instances without a due date count as on time.
	onTime := 0
	for _, e := range entries {
		inst := instanceByID[e.ProcessInstanceID]
		if inst == nil || inst.DueDate == nil {
			onTime++
			continue
		}
		estimate := avail.EstimateCompletionTime(e.StartTime, float64(inst.TotalDurationMin()))
		if !estimate.After(*inst.DueDate) {
			onTime++
		}
	}
	m.OnTimeDeliveryRate = float64(onTime) / float64(len(entries))
	return m
}
