package domain

import (
	"strings"
	"time"
)

// MeetingRequest accumulates meeting attributes across conversation turns.
// Zero values mean "not yet known"; Duration uses a pointer so a merge can
// distinguish "unset" from an explicit value.
type MeetingRequest struct {
	Title     string
	Duration  *int   // minutes
	Day       string // raw day reference as the user said it, e.g. "tomorrow"
	Time      string // raw time-of-day, e.g. "2pm"
	TimeRange string // optional "9-12" style constraint on the search window
	Attendees []string
	Reminders []string
	Language  string
}

// Merge folds newly extracted fields into the request. Known fields are
// never overwritten with empty values; attendees are appended in insertion
// order with duplicates dropped.
func (r *MeetingRequest) Merge(in MeetingRequest) {
	if in.Title != "" {
		r.Title = in.Title
	}
	if in.Duration != nil && *in.Duration > 0 {
		d := *in.Duration
		r.Duration = &d
	}
	if in.Day != "" {
		r.Day = in.Day
	}
	if in.Time != "" {
		r.Time = in.Time
	}
	if in.TimeRange != "" {
		r.TimeRange = in.TimeRange
	}
	for _, a := range in.Attendees {
		r.AddAttendee(a)
	}
	r.Reminders = append(r.Reminders, in.Reminders...)
	if in.Language != "" {
		r.Language = in.Language
	}
}

// AddAttendee appends an attendee email, preserving insertion order and
// ignoring duplicates (case-insensitive).
func (r *MeetingRequest) AddAttendee(email string) {
	email = strings.TrimSpace(email)
	if email == "" {
		return
	}
	for _, existing := range r.Attendees {
		if strings.EqualFold(existing, email) {
			return
		}
	}
	r.Attendees = append(r.Attendees, email)
}

// Equal reports whether two requests carry the same booking fields.
// Reminders and language are conversation-level and do not count.
func (r *MeetingRequest) Equal(other MeetingRequest) bool {
	if r.Title != other.Title || r.Day != other.Day || r.Time != other.Time || r.TimeRange != other.TimeRange {
		return false
	}
	if (r.Duration == nil) != (other.Duration == nil) {
		return false
	}
	if r.Duration != nil && *r.Duration != *other.Duration {
		return false
	}
	if len(r.Attendees) != len(other.Attendees) {
		return false
	}
	for i := range r.Attendees {
		if !strings.EqualFold(r.Attendees[i], other.Attendees[i]) {
			return false
		}
	}
	return true
}

// Complete reports whether the request carries everything needed to search
// for a slot. Attendees and title may stay empty.
func (r *MeetingRequest) Complete() bool {
	return r.Duration != nil && r.Day != "" && r.Time != ""
}

// MissingFields lists the required fields still unset, in the fixed order
// duration, day, time.
func (r *MeetingRequest) MissingFields() []string {
	var missing []string
	if r.Duration == nil {
		missing = append(missing, "duration")
	}
	if r.Day == "" {
		missing = append(missing, "day")
	}
	if r.Time == "" {
		missing = append(missing, "time")
	}
	return missing
}

// Reset clears the request for the next booking attempt, preserving the
// conversation language.
func (r *MeetingRequest) Reset() {
	lang := r.Language
	*r = MeetingRequest{Language: lang}
}

// DurationMinutes returns the requested duration, or def when unset.
func (r *MeetingRequest) DurationMinutes(def int) int {
	if r.Duration == nil {
		return def
	}
	return *r.Duration
}

// TimeSlot is an immutable candidate window. Both bounds are zoned
// instants; the interval is half-open [Start, End).
type TimeSlot struct {
	Start time.Time
	End   time.Time
}

// CalendarEvent is an existing event read from the calendar, used only for
// overlap testing.
type CalendarEvent struct {
	Start   time.Time
	End     time.Time
	Summary string
}

// BookedEvent is the result of a successful calendar write.
type BookedEvent struct {
	ID       string
	HTMLLink string
	MeetLink string
}
