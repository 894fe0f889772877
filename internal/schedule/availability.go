package schedule

import (
	"errors"
	"time"

	"github.com/pranav271103/smart-scheduler-ai-agent/internal/domain"
)

// Defaults for the working window and candidate granularity. Deployments
// override these through Planner configuration, not by editing code.
const (
	DefaultDayStartMinute    = 9 * 60
	DefaultDayEndMinute      = 18 * 60
	DefaultGranularityMinute = 15
)

var errInvalidDuration = errors.New("schedule: duration must be positive")

// Planner generates candidate slots within a day's working window. All
// computation happens in a single fixed timezone.
type Planner struct {
	Loc         *time.Location
	DayStart    int // minutes from midnight, inclusive
	DayEnd      int // minutes from midnight, exclusive
	Granularity int // candidate step in minutes
}

// NewPlanner builds a Planner with the standard 09:00-18:00 window and
// 15-minute granularity in the given zone.
func NewPlanner(loc *time.Location) *Planner {
	return &Planner{
		Loc:         loc,
		DayStart:    DefaultDayStartMinute,
		DayEnd:      DefaultDayEndMinute,
		Granularity: DefaultGranularityMinute,
	}
}

// Window returns the working-window bounds for the given day, optionally
// narrowed to [startHour, endHour) when narrow is true.
func (p *Planner) Window(day time.Time, narrow bool, startHour, endHour int) (time.Time, time.Time) {
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, p.Loc)
	start := midnight.Add(time.Duration(p.DayStart) * time.Minute)
	end := midnight.Add(time.Duration(p.DayEnd) * time.Minute)
	if narrow {
		ns := midnight.Add(time.Duration(startHour) * time.Hour)
		ne := midnight.Add(time.Duration(endHour) * time.Hour)
		if ns.After(start) {
			start = ns
		}
		if ne.Before(end) {
			end = ne
		}
	}
	return start, end
}

// FreeSlots returns every non-conflicting candidate slot of the requested
// duration on the given day, earliest first. Candidate starts advance at
// the configured granularity independent of the duration, and a candidate
// is kept only if [start, start+duration) overlaps no existing event.
func (p *Planner) FreeSlots(day time.Time, durationMinutes int, events []domain.CalendarEvent) ([]domain.TimeSlot, error) {
	return p.FreeSlotsWithin(day, durationMinutes, events, false, 0, 0)
}

// FreeSlotsWithin is FreeSlots with an optional narrowed hour range, used
// when the user constrained the search ("between 9 and 12").
func (p *Planner) FreeSlotsWithin(day time.Time, durationMinutes int, events []domain.CalendarEvent, narrow bool, startHour, endHour int) ([]domain.TimeSlot, error) {
	if durationMinutes <= 0 {
		return nil, errInvalidDuration
	}
	windowStart, windowEnd := p.Window(day, narrow, startHour, endHour)
	duration := time.Duration(durationMinutes) * time.Minute
	step := time.Duration(p.Granularity) * time.Minute

	var free []domain.TimeSlot
	for start := windowStart; !start.Add(duration).After(windowEnd); start = start.Add(step) {
		slot := domain.TimeSlot{Start: start, End: start.Add(duration)}
		if !HasConflict(slot, events) {
			free = append(free, slot)
		}
	}
	return free, nil
}
