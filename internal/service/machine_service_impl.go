package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jspindler/takt/internal/config"
	"github.com/jspindler/takt/internal/domain"
	"github.com/jspindler/takt/internal/metrics"
	"github.com/jspindler/takt/internal/repository"
)

type machineService struct {
	cfg      config.FacilityConfig
	machines repository.MachineRepo
	store    repository.ScheduleStore
}

func NewMachineService(cfg config.FacilityConfig, machines repository.MachineRepo, store repository.ScheduleStore) MachineService {
	return &machineService{cfg: cfg, machines: machines, store: store}
}

func (s *machineService) Upsert(ctx context.Context, m *domain.Machine) error {
	if m.ID == "" {
		return fmt.Errorf("machine id is required")
	}
	if m.Type == "" {
		return fmt.Errorf("machine %s: type is required", m.ID)
	}
	return s.machines.Upsert(ctx, m)
}

func (s *machineService) GetByID(ctx context.Context, id string) (*domain.Machine, error) {
	return s.machines.GetByID(ctx, id)
}

func (s *machineService) List(ctx context.Context) ([]*domain.Machine, error) {
	return s.machines.List(ctx)
}

func (s *machineService) ListActive(ctx context.Context) ([]*domain.Machine, error) {
	return s.machines.ListActive(ctx)
}

// UtilizationSnapshot measures each machine's booked minutes against its
// available working minutes over [from, to), and refreshes the
// utilization gauge as a side effect.
func (s *machineService) UtilizationSnapshot(ctx context.Context, from, to time.Time) ([]MachineUtilization, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("snapshot window must not be empty")
	}
	machines, err := s.machines.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading machines: %w", err)
	}

	var snapshot []MachineUtilization
	for _, m := range machines {
		entries, err := s.store.ListByMachine(ctx, m.ID, from, to)
		if err != nil {
			return nil, fmt.Errorf("loading entries for %s: %w", m.ID, err)
		}

		u := MachineUtilization{Machine: m, AvailableMin: s.availableMinutes(m, from, to)}
		for _, e := range entries {
			if !e.Blocking() {
				continue
			}
			u.BookedMin += overlapMinutes(e.StartTime, e.EndTime, from, to)
			u.EntryCount++
		}
		if u.AvailableMin > 0 {
			u.Ratio = u.BookedMin / u.AvailableMin
			if u.Ratio > 1 {
				u.Ratio = 1
			}
		}
		metrics.MachineUtilization.WithLabelValues(m.ID).Set(u.Ratio)
		snapshot = append(snapshot, u)
	}
	return snapshot, nil
}

// availableMinutes sums the machine's daily working minutes across the
// working days the window covers.
func (s *machineService) availableMinutes(m *domain.Machine, from, to time.Time) float64 {
	hours := s.cfg.DefaultWorkingHours()
	if m.WorkingHours != nil {
		hours = *m.WorkingHours
	}
	start, err1 := time.Parse("15:04", hours.Start)
	end, err2 := time.Parse("15:04", hours.End)
	if err1 != nil || err2 != nil {
		return 0
	}
	daily := end.Sub(start).Minutes()
	for _, b := range s.cfg.Breaks {
		bs, err1 := time.Parse("15:04", b.Start)
		be, err2 := time.Parse("15:04", b.End)
		if err1 == nil && err2 == nil {
			daily -= be.Sub(bs).Minutes()
		}
	}
	if daily <= 0 {
		return 0
	}

	var total float64
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	for ; day.Before(to); day = day.AddDate(0, 0, 1) {
		if hours.IsWorkday(day.Weekday()) {
			total += daily
		}
	}
	return total
}

func overlapMinutes(aStart, aEnd, bStart, bEnd time.Time) float64 {
	start := aStart
	if bStart.After(start) {
		start = bStart
	}
	end := aEnd
	if bEnd.Before(end) {
		end = bEnd
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start).Minutes()
}
