package service

import (
	"context"
	"sort"
	"time"

	"github.com/jspindler/takt/internal/config"
	"github.com/jspindler/takt/internal/contract"
	"github.com/jspindler/takt/internal/domain"
	"github.com/jspindler/takt/internal/repository"
	"github.com/jspindler/takt/internal/scheduler"
)

// AutoScheduler is the degraded-mode strategy: it orders the batch
// strictly by OrderIndex and skips the dependency graph and priority
// pipeline entirely. It exists for operator-curated batches where the
// sequence is already decided on paper; it is deliberately kept separate
// from the dependency-aware path rather than merged into it.
type AutoScheduler struct {
	cfg      config.FacilityConfig
	store    repository.ScheduleStore
	matcher  *scheduler.MachineMatcher
	avail    *scheduler.AvailabilityCalculator
	observer RunObserver
}

func NewAutoScheduler(cfg config.FacilityConfig, store repository.ScheduleStore, observers ...RunObserver) *AutoScheduler {
	return &AutoScheduler{
		cfg:      cfg,
		store:    store,
		matcher:  scheduler.NewMachineMatcher(cfg.MatchWeights),
		avail:    scheduler.NewAvailabilityCalculator(cfg, store),
		observer: runObserverOrNoop(observers),
	}
}

func (s *AutoScheduler) Schedule(ctx context.Context, req contract.ScheduleRequest) (resp *contract.ScheduleResponse, err error) {
	started := time.Now()
	now := nowOrDefault(req.Now)

	resp = &contract.ScheduleResponse{GeneratedAt: now}

	defer func() {
		if r := recover(); r != nil {
			resp = &contract.ScheduleResponse{
				GeneratedAt: now,
				Success:     false,
				Conflicts:   []contract.Conflict{internalConflict(r)},
			}
			err = nil
		}
		elapsed := time.Since(started)
		success := err == nil && resp != nil && resp.Success
		fields := map[string]any{}
		if resp != nil {
			fields["entries"] = len(resp.Entries)
			fields["conflicts"] = len(resp.Conflicts)
		}
		s.observer.ObserveRun(ctx, RunEvent{
			Name: "schedule.order_index", Duration: elapsed, Success: success,
			Err: err, Fields: fields, StartedAt: started,
		})
	}()

	if len(req.Instances) == 0 {
		return nil, &contract.ScheduleError{Code: contract.ErrEmptyBatch, Message: "at least one instance is required"}
	}
	active := activeMachines(req.Machines)
	if len(active) == 0 {
		return nil, &contract.ScheduleError{Code: contract.ErrNoActiveMachines, Message: "no active machines available"}
	}

	if conflicts := validateBatch(req.Instances); len(conflicts) > 0 {
		resp.Conflicts = conflicts
		return resp, nil
	}

	ordered := append([]*domain.ProcessInstance(nil), req.Instances...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].OrderIndex < ordered[j].OrderIndex
	})

	p := &placer{
		cfg:     s.cfg,
		store:   s.store,
		matcher: s.matcher,
		avail:   s.avail,
		dryRun:  req.DryRun,
	}

	// Dependency end times are still respected when the dependency happens
	// to be placed earlier in the operator's ordering; what degraded mode
	// gives up is the analysis, not feasibility.
	endTimes := make(map[string]time.Time, len(ordered))
	for _, inst := range ordered {
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
		}
		if conflict != nil {
			resp.Conflicts = append(resp.Conflicts, *conflict)
		}
	}

	resp.Metrics = runMetrics(resp.Entries, req.Instances, s.avail, now, time.Since(started))
	resp.Success = len(resp.Conflicts) == 0
	return resp, nil
}
