package domain

import (
	"fmt"
	"time"
)

type ScheduleEntry struct {
	ID                string
	MachineID         string
	ProcessInstanceID string
	StartTime         time.Time
	EndTime           time.Time
	Status            EntryStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// DurationMin returns the entry length in whole minutes.
func (e *ScheduleEntry) DurationMin() int {
	return int(e.EndTime.Sub(e.StartTime) / time.Minute)
}

// Window returns the entry's occupied interval.
func (e *ScheduleEntry) Window() TimeWindow {
	return TimeWindow{Start: e.StartTime, End: e.EndTime}
}

// Overlaps reports whether two entries occupy intersecting half-open
// [start, end) intervals. Machine identity is the caller's concern.
func (e *ScheduleEntry) Overlaps(other *ScheduleEntry) bool {
	return e.StartTime.Before(other.EndTime) && other.StartTime.Before(e.EndTime)
}

// Blocking reports whether the entry still occupies its machine.
// Cancelled entries release their window.
func (e *ScheduleEntry) Blocking() bool {
	return e.Status != EntryCancelled
}

// IsTerminal reports whether the entry can no longer change status.
func (e *ScheduleEntry) IsTerminal() bool {
	return e.Status == EntryCompleted || e.Status == EntryCancelled
}

// MarkInProgress transitions a scheduled entry to in_progress.
// Calling it on an entry already in progress is a no-op.
func (e *ScheduleEntry) MarkInProgress(now time.Time) error {
	switch e.Status {
	case EntryInProgress:
		return nil
	case EntryScheduled:
		e.Status = EntryInProgress
		e.UpdatedAt = now
		return nil
	default:
		return fmt.Errorf("cannot start entry in status %q", e.Status)
	}
}

// MarkCompleted transitions a scheduled or running entry to completed.
func (e *ScheduleEntry) MarkCompleted(now time.Time) error {
	switch e.Status {
	case EntryCompleted:
		return nil
	case EntryScheduled, EntryInProgress:
		e.Status = EntryCompleted
		e.UpdatedAt = now
		return nil
	default:
		return fmt.Errorf("cannot complete entry in status %q", e.Status)
	}
}

// Cancel releases the entry's window. Completed entries cannot be cancelled.
func (e *ScheduleEntry) Cancel(now time.Time) error {
	switch e.Status {
	case EntryCancelled:
		return nil
	case EntryScheduled, EntryInProgress:
		e.Status = EntryCancelled
		e.UpdatedAt = now
		return nil
	default:
		return fmt.Errorf("cannot cancel entry in status %q", e.Status)
	}
}
