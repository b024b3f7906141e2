package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jspindler/takt/internal/domain"
	"github.com/jspindler/takt/internal/event"
	"github.com/jspindler/takt/internal/repository"
)

type entryService struct {
	store repository.ScheduleStore
	bus   *event.Bus
}

func NewEntryService(store repository.ScheduleStore, bus *event.Bus) EntryService {
	return &entryService{store: store, bus: bus}
}

func (s *entryService) GetByID(ctx context.Context, id string) (*domain.ScheduleEntry, error) {
	return s.store.GetByID(ctx, id)
}

func (s *entryService) ListByMachine(ctx context.Context, machineID string, from, to time.Time) ([]*domain.ScheduleEntry, error) {
	return s.store.ListByMachine(ctx, machineID, from, to)
}

// Transition validates the status move against the entry lifecycle before
// persisting it. Domain methods own the legality rules.
func (s *entryService) Transition(ctx context.Context, id string, to domain.EntryStatus) (*domain.ScheduleEntry, error) {
	entry, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	switch to {
	case domain.EntryInProgress:
		err = entry.MarkInProgress(now)
	case domain.EntryCompleted:
		err = entry.MarkCompleted(now)
	case domain.EntryCancelled:
		err = entry.Cancel(now)
	default:
		err = fmt.Errorf("unknown target status %q", to)
	}
	if err != nil {
		return nil, err
	}

	if err := s.store.Update(ctx, id, repository.EntryPatch{Status: &entry.Status}); err != nil {
		return nil, fmt.Errorf("persisting status transition: %w", err)
	}

	if s.bus != nil {
		s.bus.Publish(event.Event{
			Type: event.EntryStatusChanged, At: now,
			EntryID: entry.ID, MachineID: entry.MachineID,
			ProcessInstanceID: entry.ProcessInstanceID,
			Detail:            string(entry.Status),
		})
	}
	return entry, nil
}
