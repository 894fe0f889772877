package schedule

import (
	"sort"
	"time"

	"github.com/pranav271103/smart-scheduler-ai-agent/internal/domain"
)

// Overlaps reports whether the slot and event intersect as half-open
// intervals. Touching endpoints do not count as overlap.
func Overlaps(slot domain.TimeSlot, ev domain.CalendarEvent) bool {
	return !(slot.End.Before(ev.Start) || slot.End.Equal(ev.Start) ||
		slot.Start.After(ev.End) || slot.Start.Equal(ev.End))
}

// HasConflict reports whether the proposed slot overlaps any existing event.
func HasConflict(slot domain.TimeSlot, events []domain.CalendarEvent) bool {
	for _, ev := range events {
		if Overlaps(slot, ev) {
			return true
		}
	}
	return false
}

// RankAlternatives orders free slots by ascending distance of their start
// from the requested instant and returns the top k. Ties keep chronological
// order, so the earlier of two equally distant slots comes first.
func RankAlternatives(free []domain.TimeSlot, requested time.Time, k int) []domain.TimeSlot {
	ranked := make([]domain.TimeSlot, len(free))
	copy(ranked, free)
	sort.SliceStable(ranked, func(i, j int) bool {
		return absDistance(ranked[i].Start, requested) < absDistance(ranked[j].Start, requested)
	})
	if k >= 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

func absDistance(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}
