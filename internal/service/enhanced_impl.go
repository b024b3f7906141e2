package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jspindler/takt/internal/config"
	"github.com/jspindler/takt/internal/contract"
	"github.com/jspindler/takt/internal/domain"
	"github.com/jspindler/takt/internal/event"
	"github.com/jspindler/takt/internal/metrics"
	"github.com/jspindler/takt/internal/repository"
	"github.com/jspindler/takt/internal/scheduler"
)

// EnhancedAutoScheduler is the full scheduling pipeline: dependency graph
// and critical path, priority scoring, machine matching, calendar-aware
// slot search, and persistence through the schedule store.
//
// One call is one sequential run: instances are placed strictly in
// visiting order because a later instance's earliest start depends on the
// true end time of dependencies placed earlier in the same run.
type EnhancedAutoScheduler struct {
	cfg      config.FacilityConfig
	store    repository.ScheduleStore
	matcher  *scheduler.MachineMatcher
	avail    *scheduler.AvailabilityCalculator
	bus      *event.Bus
	observer RunObserver
}

// NewEnhancedAutoScheduler wires the pipeline. bus may be nil when no one
// listens for run events.
func NewEnhancedAutoScheduler(cfg config.FacilityConfig, store repository.ScheduleStore, bus *event.Bus, observers ...RunObserver) *EnhancedAutoScheduler {
	return &EnhancedAutoScheduler{
		cfg:      cfg,
		store:    store,
		matcher:  scheduler.NewMachineMatcher(cfg.MatchWeights),
		avail:    scheduler.NewAvailabilityCalculator(cfg, store),
		bus:      bus,
		observer: runObserverOrNoop(observers),
	}
}

func (s *EnhancedAutoScheduler) Schedule(ctx context.Context, req contract.ScheduleRequest) (resp *contract.ScheduleResponse, err error) {
	started := time.Now()
	now := nowOrDefault(req.Now)
	runID := uuid.New().String()

	resp = &contract.ScheduleResponse{GeneratedAt: now}

	// The orchestrator boundary converts panics into a failed result with
	// one synthetic conflict instead of propagating them raw.
	defer func() {
		if r := recover(); r != nil {
			resp = &contract.ScheduleResponse{
				GeneratedAt: now,
				Success:     false,
				Conflicts:   []contract.Conflict{internalConflict(r)},
			}
			err = nil
		}
		s.finishRun(ctx, runID, started, resp, err)
	}()

	if len(req.Instances) == 0 {
		return nil, &contract.ScheduleError{Code: contract.ErrEmptyBatch, Message: "at least one instance is required"}
	}
	active := activeMachines(req.Machines)
	if len(active) == 0 {
		return nil, &contract.ScheduleError{Code: contract.ErrNoActiveMachines, Message: "no active machines available"}
	}

	s.publish(event.Event{Type: event.RunStarted, RunID: runID, At: now})

	// (a) validate the batch; malformed data fails closed with zero entries.
	if conflicts := validateBatch(req.Instances); len(conflicts) > 0 {
		resp.Conflicts = conflicts
		return resp, nil
	}

	// (b) dependency analysis. Reference errors and cycles abort before any
	// persistence call.
	graph, refErrs := scheduler.BuildGraph(req.Instances)
	if len(refErrs) > 0 {
		for _, refErr := range refErrs {
			resp.Conflicts = append(resp.Conflicts, referenceConflict(refErr))
		}
		return resp, nil
	}
	if graph.HasCycle {
		resp.Conflicts = append(resp.Conflicts, cycleConflict(graph))
		return resp, nil
	}

	// (c) priority scores.
	calc := scheduler.NewPriorityCalculator(s.cfg.PriorityWeights)
	if warning := calc.WeightWarning(); warning != "" {
		resp.Warnings = append(resp.Warnings, warning)
	}
	scores := calc.ScoreInstances(req.Instances, graph, now)
	if req.Explain {
		for _, sc := range scores {
			resp.Scores = append(resp.Scores, contract.InstanceScore{
				ProcessInstanceID: sc.ProcessInstanceID,
				Score:             sc.Score,
				Urgency:           sc.Urgency,
				OnCriticalPath:    sc.OnCriticalPath,
				Reasons:           sc.Reasons,
			})
		}
	}

	// (d) + (e) place instances in visiting order.
	instanceByID := make(map[string]*domain.ProcessInstance, len(req.Instances))
	for _, inst := range req.Instances {
		instanceByID[inst.ID] = inst
	}
	endTimes := make(map[string]time.Time, len(req.Instances))

	p := &placer{
		cfg:     s.cfg,
		store:   s.store,
		matcher: s.matcher,
		avail:   s.avail,
		dryRun:  req.DryRun,
	}

	for _, id := range visitingOrder(graph, scores) {
		inst := instanceByID[id]

		earliest := now
		for _, dep := range inst.Dependencies {
			if end, ok := endTimes[dep]; ok && end.After(earliest) {
				earliest = end
			}
		}

		entry, conflict := p.place(ctx, inst, active, now, earliest)
		if entry != nil {
			resp.Entries = append(resp.Entries, entry)
			endTimes[inst.ID] = entry.EndTime
			metrics.InstancesScheduledTotal.Inc()
			s.publish(event.Event{
				Type: event.InstanceScheduled, RunID: runID, At: now,
				ProcessInstanceID: inst.ID, MachineID: entry.MachineID, EntryID: entry.ID,
			})
		}
		if conflict != nil {
			resp.Conflicts = append(resp.Conflicts, *conflict)
			metrics.ConflictsTotal.WithLabelValues(string(conflict.Code)).Inc()
			s.publish(event.Event{
				Type: event.InstanceConflict, RunID: runID, At: now,
				ProcessInstanceID: inst.ID, Detail: conflict.Message,
			})
		}
	}

	// (f) aggregate metrics.
	resp.Metrics = runMetrics(resp.Entries, req.Instances, s.avail, now, time.Since(started))
	resp.Success = len(resp.Conflicts) == 0
	return resp, nil
}

func (s *EnhancedAutoScheduler) publish(e event.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}

func (s *EnhancedAutoScheduler) finishRun(ctx context.Context, runID string, started time.Time, resp *contract.ScheduleResponse, err error) {
	elapsed := time.Since(started)
	success := err == nil && resp != nil && resp.Success

	outcome := "conflict"
	if success {
		outcome = "success"
	}
	metrics.RunsTotal.WithLabelValues(outcome).Inc()
	metrics.RunDuration.Observe(elapsed.Seconds())

	fields := map[string]any{"run_id": runID}
	if resp != nil {
		fields["entries"] = len(resp.Entries)
		fields["conflicts"] = len(resp.Conflicts)
	}
	s.observer.ObserveRun(ctx, RunEvent{
		Name:      "schedule.enhanced",
		Duration:  elapsed,
		Success:   success,
		Err:       err,
		Fields:    fields,
		StartedAt: started,
	})
	if resp != nil {
		s.publish(event.Event{
			Type: event.RunCompleted, RunID: runID, At: time.Now().UTC(),
			Detail: fmt.Sprintf("%d scheduled, %d conflicts", len(resp.Entries), len(resp.Conflicts)),
		})
	}
}

func activeMachines(machines []*domain.Machine) []*domain.Machine {
	var active []*domain.Machine
	for _, m := range machines {
		if m.IsActive {
			active = append(active, m)
		}
	}
	return active
}

// placer runs the per-instance half of the pipeline: ranked candidate
// machines, slot search at/after the earliest allowed start, conflict
// guard, and persistence. Shared by both orchestrators.
type placer struct {
	cfg     config.FacilityConfig
	store   repository.ScheduleStore
	matcher *scheduler.MachineMatcher
	avail   *scheduler.AvailabilityCalculator
	dryRun  bool
}

// place returns the created entry and/or a per-instance conflict. Both can
// be non-nil at once: a store failure still reports the candidate entry,
// flagged unconfirmed through the conflict.
func (p *placer) place(ctx context.Context, inst *domain.ProcessInstance, machines []*domain.Machine, now, earliest time.Time) (*domain.ScheduleEntry, *contract.Conflict) {
	matches, exclusions := p.matcher.Match(inst, machines)
	if len(matches) == 0 {
		c := machineUnavailableConflict(inst, exclusions)
		return nil, &c
	}

	duration := float64(inst.TotalDurationMin())
	for _, match := range matches {
		slots, err := p.avail.FindSlots(ctx, match.Machine, duration, now, scheduler.SlotOptions{EarliestStart: earliest})
		if err != nil {
			// A failing store read on one machine does not end the search;
			// the next candidate may be served by a healthy partition.
			continue
		}
		for _, slot := range slots {
			entry := &domain.ScheduleEntry{
				ID:                uuid.New().String(),
				MachineID:         match.Machine.ID,
				ProcessInstanceID: inst.ID,
				StartTime:         slot.Start,
				EndTime:           slot.End,
				Status:            domain.EntryScheduled,
				CreatedAt:         now,
				UpdatedAt:         now,
			}

			// The store is the final overlap authority; fallback slots in
			// particular are synthesized without a booking check.
			conflicts, err := p.store.DetectConflicts(ctx, entry)
			if err != nil {
				c := persistenceConflict(inst, entry, err)
				return nil, &c
			}
			if len(conflicts) > 0 {
				continue
			}

			if !p.dryRun {
				if err := p.store.Create(ctx, entry); err != nil {
					// No retry: report the candidate entry as unconfirmed.
					c := persistenceConflict(inst, entry, err)
					return entry, &c
				}
			}
			match.Machine.CurrentWorkloadHours += duration / 60
			return entry, nil
		}
	}

	c := slotNotFoundConflict(inst, len(matches))
	return nil, &c
}
