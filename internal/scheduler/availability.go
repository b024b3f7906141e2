package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jspindler/takt/internal/config"
	"github.com/jspindler/takt/internal/domain"
)

// TimeSlot is a candidate placement on one machine. End already accounts
// for breaks and day boundaries the job spans, so End-Start can exceed
// DurationMin of working time.
type TimeSlot struct {
	Start       time.Time
	End         time.Time
	DurationMin float64
	// SpanDays counts the working days the slot touches.
	SpanDays int
	// Fallback marks a slot synthesized after the horizon search came up
	// empty. It is a best-effort suggestion, not a verified opening.
	Fallback bool
}

// SlotOptions relax the facility calendar for emergency placement.
type SlotOptions struct {
	// AllowAfterHours opens the full 24h day and suppresses breaks.
	AllowAfterHours bool
	// AllowWeekends treats every day of the week as a working day.
	AllowWeekends bool
	// EarliestStart is a lower bound on slot starts, typically the latest
	// finish among the instance's dependencies. Zero means no bound.
	EarliestStart time.Time
}

// ScheduleView is the read side of the schedule store that slot discovery
// needs.
type ScheduleView interface {
	ListByMachine(ctx context.Context, machineID string, from, to time.Time) ([]*domain.ScheduleEntry, error)
}

// AvailabilityCalculator finds open slots on a machine's calendar within
// the configured horizon.
type AvailabilityCalculator struct {
	cfg   config.FacilityConfig
	store ScheduleView
}

func NewAvailabilityCalculator(cfg config.FacilityConfig, store ScheduleView) *AvailabilityCalculator {
	return &AvailabilityCalculator{cfg: cfg, store: store}
}

// FindSlots returns up to MaxSlotCandidates openings for durationMin
// working minutes on machine, earliest first. A job longer than one
// working day yields a single slot spanning consecutive working days.
// When nothing fits inside the horizon the result is a single Fallback
// slot on the next working day.
func (c *AvailabilityCalculator) FindSlots(ctx context.Context, machine *domain.Machine, durationMin float64, now time.Time, opts SlotOptions) ([]TimeSlot, error) {
	if durationMin <= 0 {
		return nil, fmt.Errorf("slot duration must be positive, got %.1f", durationMin)
	}
	shape, err := c.dayShapeFor(machine, opts)
	if err != nil {
		return nil, err
	}

	earliest := now
	if opts.EarliestStart.After(earliest) {
		earliest = opts.EarliestStart
	}
	horizonEnd := now.AddDate(0, 0, c.cfg.HorizonDays)

	// The day scan admits the whole of the horizon's last calendar day, so
	// the busy set must cover it through midnight, not just up to the
	// horizon instant.
	busy, err := c.busyWindows(ctx, machine, now, startOfDay(horizonEnd).AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("loading machine schedule: %w", err)
	}

	daily := shape.capacityMin()
	if durationMin > daily {
		if slot, ok := c.findSpanningSlot(durationMin, earliest, horizonEnd, shape, daily, busy); ok {
			return []TimeSlot{slot}, nil
		}
		return []TimeSlot{c.fallbackSlot(durationMin, earliest, shape)}, nil
	}

	var slots []TimeSlot
	for day := startOfDay(earliest); day.Before(horizonEnd) && len(slots) < c.cfg.MaxSlotCandidates; day = day.AddDate(0, 0, 1) {
		if !shape.isWorkday(day.Weekday()) {
			continue
		}
		for _, gap := range freeWindows(day, shape, busy, earliest) {
			end, ok := fitInDay(day, shape, busy, gap.Start, durationMin)
			if !ok {
				continue
			}
			slots = append(slots, TimeSlot{
				Start:       gap.Start,
				End:         end,
				DurationMin: durationMin,
				SpanDays:    1,
			})
			if len(slots) >= c.cfg.MaxSlotCandidates {
				break
			}
		}
	}
	if len(slots) == 0 {
		return []TimeSlot{c.fallbackSlot(durationMin, earliest, shape)}, nil
	}
	return slots, nil
}

// EstimateCompletionTime projects a delivery estimate from a slot start by
// padding the working duration with the configured buffer. Booked entries
// keep the unpadded window; the buffer feeds on-time metrics only.
func (c *AvailabilityCalculator) EstimateCompletionTime(start time.Time, durationMin float64) time.Time {
	buffered := durationMin * (1 + c.cfg.BufferPct)
	return start.Add(minutesDur(buffered))
}

// dayShape is one machine's working day reduced to minutes from midnight,
// with calendar relaxations already applied.
type dayShape struct {
	startMin int
	endMin   int
	breaks   [][2]int
	days     []time.Weekday
}

func (c *AvailabilityCalculator) dayShapeFor(machine *domain.Machine, opts SlotOptions) (dayShape, error) {
	hours := c.cfg.DefaultWorkingHours()
	if machine.WorkingHours != nil {
		hours = *machine.WorkingHours
	}

	days := hours.WorkingDays
	if opts.AllowWeekends {
		days = []time.Weekday{
			time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
			time.Thursday, time.Friday, time.Saturday,
		}
	}
	if len(days) == 0 {
		return dayShape{}, fmt.Errorf("machine %s has no working days", machine.ID)
	}

	shape := dayShape{days: days}
	if opts.AllowAfterHours {
		shape.startMin, shape.endMin = 0, 24*60
		return shape, nil
	}

	var err error
	if shape.startMin, err = minutesFromMidnight(hours.Start); err != nil {
		return dayShape{}, fmt.Errorf("parsing working hours start: %w", err)
	}
	if shape.endMin, err = minutesFromMidnight(hours.End); err != nil {
		return dayShape{}, fmt.Errorf("parsing working hours end: %w", err)
	}
	if shape.endMin <= shape.startMin {
		return dayShape{}, fmt.Errorf("working hours end %q is not after start %q", hours.End, hours.Start)
	}

	for _, br := range c.cfg.Breaks {
		bs, err := minutesFromMidnight(br.Start)
		if err != nil {
			return dayShape{}, fmt.Errorf("parsing break start: %w", err)
		}
		be, err := minutesFromMidnight(br.End)
		if err != nil {
			return dayShape{}, fmt.Errorf("parsing break end: %w", err)
		}
		if bs < shape.startMin {
			bs = shape.startMin
		}
		if be > shape.endMin {
			be = shape.endMin
		}
		if be > bs {
			shape.breaks = append(shape.breaks, [2]int{bs, be})
		}
	}
	sort.Slice(shape.breaks, func(i, j int) bool { return shape.breaks[i][0] < shape.breaks[j][0] })
	return shape, nil
}

func (s dayShape) isWorkday(d time.Weekday) bool {
	for _, wd := range s.days {
		if wd == d {
			return true
		}
	}
	return false
}

// capacityMin is the working minutes in one shaped day.
func (s dayShape) capacityMin() float64 {
	capacity := s.endMin - s.startMin
	for _, br := range s.breaks {
		capacity -= br[1] - br[0]
	}
	return float64(capacity)
}

// workingWindows renders the shape onto a concrete day (midnight in the
// schedule's location), split at breaks.
func (s dayShape) workingWindows(day time.Time) []domain.TimeWindow {
	at := func(minute int) time.Time { return day.Add(time.Duration(minute) * time.Minute) }
	var wins []domain.TimeWindow
	cur := s.startMin
	for _, br := range s.breaks {
		if br[0] > cur {
			wins = append(wins, domain.TimeWindow{Start: at(cur), End: at(br[0])})
		}
		if br[1] > cur {
			cur = br[1]
		}
	}
	if s.endMin > cur {
		wins = append(wins, domain.TimeWindow{Start: at(cur), End: at(s.endMin)})
	}
	return wins
}

// busyWindows collects the machine's blocking entries and maintenance
// windows over [from, to), merged into a sorted non-overlapping set.
func (c *AvailabilityCalculator) busyWindows(ctx context.Context, machine *domain.Machine, from, to time.Time) ([]domain.TimeWindow, error) {
	entries, err := c.store.ListByMachine(ctx, machine.ID, from, to)
	if err != nil {
		return nil, err
	}
	var busy []domain.TimeWindow
	for _, e := range entries {
		if e.Blocking() {
			busy = append(busy, e.Window())
		}
	}
	rng := domain.TimeWindow{Start: from, End: to}
	for _, w := range machine.MaintenanceWindows {
		if w.Overlaps(rng) {
			busy = append(busy, w)
		}
	}
	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })
	return mergeWindows(busy), nil
}

// findSpanningSlot places a job longer than one working day across
// consecutive working days. The first day must be at least half free and
// the slot starts at its first opening; each later day must also be at
// least half free to absorb the spillover.
func (c *AvailabilityCalculator) findSpanningSlot(durationMin float64, earliest, horizonEnd time.Time, shape dayShape, daily float64, busy []domain.TimeWindow) (TimeSlot, bool) {
	for day := startOfDay(earliest); day.Before(horizonEnd); day = day.AddDate(0, 0, 1) {
		if !shape.isWorkday(day.Weekday()) {
			continue
		}
		frees := freeWindows(day, shape, busy, earliest)
		if len(frees) == 0 || windowMinutes(frees) < daily/2 {
			continue
		}
		start := frees[0].Start
		end, span, ok := spanWorkingTime(start, durationMin, shape, daily, busy, horizonEnd)
		if !ok {
			continue
		}
		return TimeSlot{Start: start, End: end, DurationMin: durationMin, SpanDays: span}, true
	}
	return TimeSlot{}, false
}

// spanWorkingTime consumes durationMin of working minutes from start,
// skipping breaks and non-working days, and returns the wall-clock end
// plus the working days touched. Days after the first must be half free.
func spanWorkingTime(start time.Time, durationMin float64, shape dayShape, daily float64, busy []domain.TimeWindow, bound time.Time) (time.Time, int, bool) {
	remaining := durationMin
	span := 0
	for day := startOfDay(start); ; day = day.AddDate(0, 0, 1) {
		if day.After(bound) {
			return time.Time{}, 0, false
		}
		if !shape.isWorkday(day.Weekday()) {
			continue
		}
		if span > 0 && windowMinutes(freeWindows(day, shape, busy, time.Time{})) < daily/2 {
			return time.Time{}, 0, false
		}
		worked := false
		for _, w := range shape.workingWindows(day) {
			ws := w.Start
			if span == 0 && ws.Before(start) {
				ws = start
			}
			if !ws.Before(w.End) {
				continue
			}
			worked = true
			avail := w.End.Sub(ws).Minutes()
			if avail >= remaining {
				return ws.Add(minutesDur(remaining)), span + 1, true
			}
			remaining -= avail
		}
		if worked {
			span++
		}
	}
}

// fallbackSlot synthesizes a placement on the next working day after the
// horizon search failed. Existing bookings are ignored on purpose; the
// orchestrator re-checks conflicts before persisting.
func (c *AvailabilityCalculator) fallbackSlot(durationMin float64, earliest time.Time, shape dayShape) TimeSlot {
	day := startOfDay(earliest).AddDate(0, 0, 1)
	for !shape.isWorkday(day.Weekday()) {
		day = day.AddDate(0, 0, 1)
	}
	start := day.Add(time.Duration(shape.startMin) * time.Minute)
	end, span, ok := spanWorkingTime(start, durationMin, shape, shape.capacityMin(), nil, day.AddDate(1, 0, 0))
	if !ok {
		end, span = start.Add(minutesDur(durationMin)), 1
	}
	return TimeSlot{Start: start, End: end, DurationMin: durationMin, SpanDays: span, Fallback: true}
}

// fitInDay checks whether durationMin working minutes starting at s fit
// inside day without touching a busy window. Breaks may be straddled;
// other bookings may not.
func fitInDay(day time.Time, shape dayShape, busy []domain.TimeWindow, s time.Time, durationMin float64) (time.Time, bool) {
	remaining := durationMin
	for _, w := range shape.workingWindows(day) {
		ws := w.Start
		if ws.Before(s) {
			ws = s
		}
		if !ws.Before(w.End) {
			continue
		}
		seg := domain.TimeWindow{Start: ws, End: w.End}
		avail := w.End.Sub(ws).Minutes()
		if avail >= remaining {
			seg.End = ws.Add(minutesDur(remaining))
		}
		for _, b := range busy {
			if b.Overlaps(seg) {
				return time.Time{}, false
			}
		}
		if avail >= remaining {
			return seg.End, true
		}
		remaining -= avail
	}
	return time.Time{}, false
}

// freeWindows returns day's working windows clamped to earliest with the
// busy set subtracted, in chronological order.
func freeWindows(day time.Time, shape dayShape, busy []domain.TimeWindow, earliest time.Time) []domain.TimeWindow {
	var frees []domain.TimeWindow
	for _, w := range shape.workingWindows(day) {
		if !w.End.After(earliest) {
			continue
		}
		if w.Start.Before(earliest) {
			w.Start = earliest
		}
		frees = append(frees, w)
	}
	for _, b := range busy {
		frees = subtractWindow(frees, b)
	}
	return frees
}

// subtractWindow removes b from every window in frees, splitting where b
// lands in the middle.
func subtractWindow(frees []domain.TimeWindow, b domain.TimeWindow) []domain.TimeWindow {
	var out []domain.TimeWindow
	for _, f := range frees {
		if !f.Overlaps(b) {
			out = append(out, f)
			continue
		}
		if b.Start.After(f.Start) {
			out = append(out, domain.TimeWindow{Start: f.Start, End: b.Start})
		}
		if b.End.Before(f.End) {
			out = append(out, domain.TimeWindow{Start: b.End, End: f.End})
		}
	}
	return out
}

// mergeWindows coalesces a start-sorted window list, joining touching and
// overlapping intervals.
func mergeWindows(wins []domain.TimeWindow) []domain.TimeWindow {
	if len(wins) == 0 {
		return wins
	}
	merged := wins[:1]
	for _, w := range wins[1:] {
		last := &merged[len(merged)-1]
		if !w.Start.After(last.End) {
			if w.End.After(last.End) {
				last.End = w.End
			}
			continue
		}
		merged = append(merged, w)
	}
	return merged
}

func windowMinutes(wins []domain.TimeWindow) float64 {
	var total float64
	for _, w := range wins {
		total += w.End.Sub(w.Start).Minutes()
	}
	return total
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func minutesDur(min float64) time.Duration {
	return time.Duration(min * float64(time.Minute))
}

// minutesFromMidnight parses "HH:MM" into minutes since midnight. "24:00"
// is accepted as the exclusive end of day.
func minutesFromMidnight(hhmm string) (int, error) {
	if hhmm == "24:00" {
		return 24 * 60, nil
	}
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, fmt.Errorf("parsing clock time %q: %w", hhmm, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
