package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jspindler/takt/internal/config"
	"github.com/jspindler/takt/internal/contract"
	"github.com/jspindler/takt/internal/db"
	"github.com/jspindler/takt/internal/domain"
	"github.com/jspindler/takt/internal/event"
	"github.com/jspindler/takt/internal/metrics"
	"github.com/jspindler/takt/internal/repository"
	"github.com/jspindler/takt/internal/scheduler"
)

// emergencyTransitions is the legal state machine:
// requested -> approved -> scheduled, requested -> rejected, and
// requested -> scheduled directly when no approval is required.
var emergencyTransitions = map[domain.EmergencyState]map[domain.EmergencyState]bool{
	domain.EmergencyRequested: {
		domain.EmergencyApproved:  true,
		domain.EmergencyRejected:  true,
		domain.EmergencyScheduled: true,
	},
	domain.EmergencyApproved: {
		domain.EmergencyScheduled: true,
	},
}

func canTransition(from, to domain.EmergencyState) bool {
	return emergencyTransitions[from][to]
}

// EmergencyScheduler places out-of-band work with widened calendar
// constraints, gated behind an approval trail when policy demands one.
type EmergencyScheduler struct {
	cfg      config.FacilityConfig
	requests repository.EmergencyRepo
	machines repository.MachineRepo
	store    repository.ScheduleStore
	// uow makes the entry insert and the request state flip one atomic
	// write. Nil for non-transactional backends; the flip then happens
	// after the insert and a crash in between leaves a re-runnable request.
	uow      db.UnitOfWork
	matcher  *scheduler.MachineMatcher
	avail    *scheduler.AvailabilityCalculator
	bus      *event.Bus
	validate *validator.Validate
	observer RunObserver
}

func NewEmergencyScheduler(
	cfg config.FacilityConfig,
	requests repository.EmergencyRepo,
	machines repository.MachineRepo,
	store repository.ScheduleStore,
	uow db.UnitOfWork,
	bus *event.Bus,
	observers ...RunObserver,
) *EmergencyScheduler {
	return &EmergencyScheduler{
		cfg:      cfg,
		requests: requests,
		machines: machines,
		store:    store,
		uow:      uow,
		matcher:  scheduler.NewMachineMatcher(cfg.MatchWeights),
		avail:    scheduler.NewAvailabilityCalculator(cfg, store),
		bus:      bus,
		validate: validator.New(),
		observer: runObserverOrNoop(observers),
	}
}

func (s *EmergencyScheduler) Request(ctx context.Context, req contract.EmergencyScheduleRequest) (*contract.EmergencyResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, &contract.EmergencyError{Code: contract.EmergencyErrValidation, Message: err.Error()}
	}
	if errs := req.Instance.Validate(); len(errs) > 0 {
		return nil, &contract.EmergencyError{Code: contract.EmergencyErrValidation, Message: errs[0].Error()}
	}

	now := nowOrDefault(req.Now)
	level := domain.EmergencyLevel(req.Level)
	duration := req.Instance.TotalDurationMin()

	request := &domain.EmergencyRequest{
		ID:                uuid.New().String(),
		ProcessInstanceID: req.Instance.ID,
		Level:             level,
		RequestedBy:       req.RequestedBy,
		RequestedAt:       now,
		Reason:            req.Reason,
		Instance:          req.Instance,
		DurationMin:       duration,
		State:             domain.EmergencyRequested,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	// Safety-critical requests get the widest constraints: a 24-hour window
	// and two approvals. Urgent requests stay inside the current working
	// week with a single approval.
	if level == domain.EmergencySafetyCritical {
		request.WindowStart = now
		request.WindowEnd = now.Add(24 * time.Hour)
		request.RequiredApprovals = 2
	} else {
		request.WindowStart = now
		request.WindowEnd = s.endOfWorkingWeek(now)
		request.RequiredApprovals = 1
	}

	requiresApproval := s.cfg.Emergency.AlwaysRequireApproval ||
		level == domain.EmergencySafetyCritical ||
		request.TouchesWeekend() ||
		float64(duration) > s.cfg.Emergency.MaxUnapprovedHours*60
	if !requiresApproval {
		request.RequiredApprovals = 0
	}

	if err := s.requests.Create(ctx, request); err != nil {
		return nil, fmt.Errorf("creating emergency request: %w", err)
	}
	metrics.EmergencyRequestsTotal.WithLabelValues(string(domain.EmergencyRequested)).Inc()
	s.publish(event.Event{
		Type: event.EmergencyRequested, At: now,
		EmergencyID: request.ID, ProcessInstanceID: request.ProcessInstanceID,
		Detail: string(level),
	})
	s.observe(ctx, "emergency.request", now, true, nil, request)

	if requiresApproval {
		return &contract.EmergencyResponse{
			Request:          request,
			RequiresApproval: true,
			Message: fmt.Sprintf("approval required (%d approvals) before scheduling",
				request.RequiredApprovals),
		}, nil
	}

	// No approval needed: place it right away.
	return s.scheduleRequest(ctx, request, now)
}

func (s *EmergencyScheduler) Approve(ctx context.Context, req contract.EmergencyDecisionRequest) (*contract.EmergencyResponse, error) {
	return s.decide(ctx, req, true)
}

func (s *EmergencyScheduler) Reject(ctx context.Context, req contract.EmergencyDecisionRequest) (*contract.EmergencyResponse, error) {
	return s.decide(ctx, req, false)
}

func (s *EmergencyScheduler) decide(ctx context.Context, req contract.EmergencyDecisionRequest, approved bool) (*contract.EmergencyResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, &contract.EmergencyError{Code: contract.EmergencyErrValidation, Message: err.Error()}
	}
	now := nowOrDefault(req.Now)

	request, err := s.requests.GetByID(ctx, req.RequestID)
	if err != nil {
		return nil, &contract.EmergencyError{
			Code:    contract.EmergencyErrNotFound,
			Message: fmt.Sprintf("emergency request %s not found", req.RequestID),
		}
	}

	// Replaying the same actor's decision is a no-op, not an error.
	if request.HasActed(req.Actor) {
		return &contract.EmergencyResponse{
			Request: request,
			Message: fmt.Sprintf("decision by %s already recorded", req.Actor),
		}, nil
	}

	target := domain.EmergencyApproved
	if !approved {
		target = domain.EmergencyRejected
	}
	if request.State != domain.EmergencyRequested {
		return nil, &contract.EmergencyError{
			Code:    contract.EmergencyErrInvalidState,
			Message: fmt.Sprintf("cannot decide request in state %q", request.State),
		}
	}

	action := domain.ApprovalAction{Actor: req.Actor, At: now, Approved: approved, Note: req.Note}
	if err := s.requests.RecordDecision(ctx, request.ID, action); err != nil {
		return nil, fmt.Errorf("recording decision: %w", err)
	}
	request.Approvals = append(request.Approvals, action)

	message := fmt.Sprintf("decision recorded, %d of %d approvals",
		request.ApprovalCount(), request.RequiredApprovals)

	transition := !approved || request.ApprovalCount() >= request.RequiredApprovals
	if transition && canTransition(request.State, target) {
		if err := s.requests.UpdateState(ctx, request.ID, target, now); err != nil {
			return nil, fmt.Errorf("updating request state: %w", err)
		}
		request.State = target
		request.UpdatedAt = now
		metrics.EmergencyRequestsTotal.WithLabelValues(string(target)).Inc()

		evType := event.EmergencyApproved
		message = "request fully approved, ready to schedule"
		if !approved {
			evType = event.EmergencyRejected
			message = "request rejected"
		}
		s.publish(event.Event{
			Type: evType, At: now,
			EmergencyID: request.ID, ProcessInstanceID: request.ProcessInstanceID,
			Detail: req.Actor,
		})
	}

	s.observe(ctx, "emergency.decide", now, true, nil, request)
	return &contract.EmergencyResponse{Request: request, Message: message}, nil
}

func (s *EmergencyScheduler) Schedule(ctx context.Context, requestID string) (*contract.EmergencyResponse, error) {
	now := time.Now().UTC()

	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, &contract.EmergencyError{
			Code:    contract.EmergencyErrNotFound,
			Message: fmt.Sprintf("emergency request %s not found", requestID),
		}
	}

	switch request.State {
	case domain.EmergencyApproved:
	case domain.EmergencyRequested:
		if request.RequiredApprovals > 0 {
			return nil, &contract.EmergencyError{
				Code: contract.EmergencyErrNotApproved,
				Message: fmt.Sprintf("request needs %d approvals, has %d",
					request.RequiredApprovals, request.ApprovalCount()),
			}
		}
	default:
		return nil, &contract.EmergencyError{
			Code:    contract.EmergencyErrInvalidState,
			Message: fmt.Sprintf("cannot schedule request in state %q", request.State),
		}
	}

	return s.scheduleRequest(ctx, request, now)
}

// scheduleRequest places the snapshotted instance inside the request
// window with emergency calendar relaxations, then flips the request to
// scheduled.
func (s *EmergencyScheduler) scheduleRequest(ctx context.Context, request *domain.EmergencyRequest, now time.Time) (*contract.EmergencyResponse, error) {
	if request.Instance == nil {
		return nil, &contract.EmergencyError{
			Code:    contract.EmergencyErrInternal,
			Message: "request carries no instance snapshot",
		}
	}

	machines, err := s.machines.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading machine registry: %w", err)
	}
	matches, exclusions := s.matcher.Match(request.Instance, machines)
	if len(matches) == 0 {
		return nil, &contract.EmergencyError{
			Code: contract.EmergencyErrInternal,
			Message: fmt.Sprintf("no capable active machine for %s: %v",
				request.Instance.Label(), exclusions),
		}
	}

	// Emergency placement widens the calendar: safety-critical work may
	// run around the clock, and any request whose window covers a weekend
	// may use it.
	opts := scheduler.SlotOptions{
		AllowAfterHours: request.Level == domain.EmergencySafetyCritical,
		AllowWeekends:   request.Level == domain.EmergencySafetyCritical || request.TouchesWeekend(),
		EarliestStart:   request.WindowStart,
	}

	var entry *domain.ScheduleEntry
	for _, match := range matches {
		slots, err := s.avail.FindSlots(ctx, match.Machine, float64(request.DurationMin), now, opts)
		if err != nil {
			continue
		}
		for _, slot := range slots {
			if slot.Start.After(request.WindowEnd) {
				continue
			}
			candidate := &domain.ScheduleEntry{
				ID:                uuid.New().String(),
				MachineID:         match.Machine.ID,
				ProcessInstanceID: request.ProcessInstanceID,
				StartTime:         slot.Start,
				EndTime:           slot.End,
				Status:            domain.EntryScheduled,
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			conflicts, err := s.store.DetectConflicts(ctx, candidate)
			if err != nil || len(conflicts) > 0 {
				continue
			}
			entry = candidate
			break
		}
		if entry != nil {
			break
		}
	}
	if entry == nil {
		return nil, &contract.EmergencyError{
			Code: contract.EmergencyErrInternal,
			Message: fmt.Sprintf("no feasible slot inside the emergency window ending %s",
				request.WindowEnd.Format(time.RFC3339)),
		}
	}

	if err := s.persistPlacement(ctx, request, entry, now); err != nil {
		return nil, fmt.Errorf("persisting emergency placement: %w", err)
	}
	request.State = domain.EmergencyScheduled
	request.UpdatedAt = now

	metrics.EmergencyRequestsTotal.WithLabelValues(string(domain.EmergencyScheduled)).Inc()
	s.publish(event.Event{
		Type: event.EmergencyScheduled, At: now,
		EmergencyID: request.ID, ProcessInstanceID: request.ProcessInstanceID,
		MachineID: entry.MachineID, EntryID: entry.ID,
	})
	s.observe(ctx, "emergency.schedule", now, true, nil, request)

	return &contract.EmergencyResponse{
		Request: request,
		Entry:   entry,
		Message: fmt.Sprintf("scheduled on %s from %s", entry.MachineID, entry.StartTime.Format(time.RFC3339)),
	}, nil
}

// persistPlacement writes the entry and the state flip atomically when a
// unit of work is available.
func (s *EmergencyScheduler) persistPlacement(ctx context.Context, request *domain.EmergencyRequest, entry *domain.ScheduleEntry, now time.Time) error {
	if s.uow == nil {
		if err := s.store.Create(ctx, entry); err != nil {
			return err
		}
		return s.requests.UpdateState(ctx, request.ID, domain.EmergencyScheduled, now)
	}
	return s.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		txStore := repository.NewSQLiteScheduleStore(tx)
		txRequests := repository.NewSQLiteEmergencyRepo(tx)
		if err := txStore.Create(ctx, entry); err != nil {
			return err
		}
		return txRequests.UpdateState(ctx, request.ID, domain.EmergencyScheduled, now)
	})
}

// endOfWorkingWeek returns the end of the last facility working day in
// now's week, the scheduling bound for urgent (non-safety) requests.
func (s *EmergencyScheduler) endOfWorkingWeek(now time.Time) time.Time {
	hours := s.cfg.DefaultWorkingHours()
	endOfDay, err := time.Parse("15:04", hours.End)
	if err != nil {
		endOfDay = time.Date(0, 1, 1, 17, 0, 0, 0, time.UTC)
	}

	atEndOfDay := func(d time.Time) time.Time {
		return time.Date(d.Year(), d.Month(), d.Day(),
			endOfDay.Hour(), endOfDay.Minute(), 0, 0, now.Location())
	}

	// Walk to the last working day before the week wraps. A request landing
	// after that day's end (a weekend, or Friday evening) rolls into the
	// next week so the window always ends after now.
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var end time.Time
	for i := 0; i < 14; i++ {
		d := day.AddDate(0, 0, i)
		if hours.IsWorkday(d.Weekday()) {
			end = atEndOfDay(d)
		}
		if d.Weekday() == time.Sunday && i > 0 && end.After(now) {
			break
		}
	}
	if end.IsZero() {
		return atEndOfDay(day)
	}
	return end
}

func (s *EmergencyScheduler) publish(e event.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}

func (s *EmergencyScheduler) observe(ctx context.Context, name string, at time.Time, success bool, err error, request *domain.EmergencyRequest) {
	fields := map[string]any{}
	if request != nil {
		fields["request_id"] = request.ID
		fields["state"] = string(request.State)
		fields["level"] = string(request.Level)
	}
	s.observer.ObserveRun(ctx, RunEvent{
		Name: name, Success: success, Err: err, Fields: fields, StartedAt: at,
	})
}
