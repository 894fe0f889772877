package schedule

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Resolution failures are surfaced as missing fields, never as defaults.
var (
	ErrUnresolvableDay  = errors.New("schedule: cannot resolve day reference")
	ErrUnresolvableTime = errors.New("schedule: cannot resolve time of day")
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var (
	clockRe   = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	meridemRe = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(am|pm)$`)
	militRe   = regexp.MustCompile(`^(\d{3,4})$`)
	rangeRe   = regexp.MustCompile(`^(\d{1,2})\s*-\s*(\d{1,2})$`)
)

// ResolveDay turns a day reference ("today", "tomorrow", "tuesday",
// "next tuesday", "2026-09-03") into midnight of that date in the
// planner's zone. Weekday names resolve to the next strictly-future
// occurrence. An unrecognized reference fails with ErrUnresolvableDay.
func (p *Planner) ResolveDay(ref string, now time.Time) (time.Time, error) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if ref == "" {
		return time.Time{}, ErrUnresolvableDay
	}
	now = now.In(p.Loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, p.Loc)

	switch ref {
	case "today":
		return midnight, nil
	case "tomorrow":
		return midnight.AddDate(0, 0, 1), nil
	case "day after tomorrow":
		return midnight.AddDate(0, 0, 2), nil
	}

	for _, prefix := range []string{"next ", "this ", "on "} {
		if rest, ok := strings.CutPrefix(ref, prefix); ok {
			ref = rest
			break
		}
	}

	if wd, ok := weekdays[ref]; ok {
		// Weekday names always mean the next strictly-future occurrence;
		// "tuesday" said on a Tuesday is a week out.
		ahead := (int(wd) - int(now.Weekday()) + 7) % 7
		if ahead == 0 {
			ahead = 7
		}
		return midnight.AddDate(0, 0, ahead), nil
	}

	if d, err := time.ParseInLocation("2006-01-02", ref, p.Loc); err == nil {
		return d, nil
	}
	if d, err := time.ParseInLocation("January 2", titleWords(ref), p.Loc); err == nil {
		d = time.Date(now.Year(), d.Month(), d.Day(), 0, 0, 0, 0, p.Loc)
		if d.Before(midnight) {
			d = d.AddDate(1, 0, 0)
		}
		return d, nil
	}
	return time.Time{}, ErrUnresolvableDay
}

// titleWords capitalizes each word so month names survive the lowercase
// normalization above ("september 3" parses as "September 3").
func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// ResolveTimeOfDay parses a clock reference ("14:00", "2pm", "2:30 pm",
// "1430", "noon") into hour and minute. Unrecognized input fails with
// ErrUnresolvableTime.
func ResolveTimeOfDay(ref string) (hour, minute int, err error) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	ref = strings.TrimPrefix(ref, "at ")

	switch ref {
	case "noon", "midday":
		return 12, 0, nil
	case "midnight":
		return 0, 0, nil
	}

	if m := clockRe.FindStringSubmatch(ref); m != nil {
		hour, _ = strconv.Atoi(m[1])
		minute, _ = strconv.Atoi(m[2])
		if hour > 23 || minute > 59 {
			return 0, 0, ErrUnresolvableTime
		}
		return hour, minute, nil
	}
	if m := meridemRe.FindStringSubmatch(ref); m != nil {
		hour, _ = strconv.Atoi(m[1])
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if hour < 1 || hour > 12 || minute > 59 {
			return 0, 0, ErrUnresolvableTime
		}
		if hour == 12 {
			hour = 0
		}
		if m[3] == "pm" {
			hour += 12
		}
		return hour, minute, nil
	}
	if m := militRe.FindStringSubmatch(ref); m != nil {
		n, _ := strconv.Atoi(m[1])
		hour, minute = n/100, n%100
		if hour > 23 || minute > 59 {
			return 0, 0, ErrUnresolvableTime
		}
		return hour, minute, nil
	}
	return 0, 0, ErrUnresolvableTime
}

// ResolveInstant combines a day reference and a time-of-day reference into
// a zoned instant.
func (p *Planner) ResolveInstant(dayRef, timeRef string, now time.Time) (time.Time, error) {
	day, err := p.ResolveDay(dayRef, now)
	if err != nil {
		return time.Time{}, err
	}
	hour, minute, err := ResolveTimeOfDay(timeRef)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, p.Loc), nil
}

// ParseHourRange parses a "9-12" style constraint into start and end
// hours. Malformed or inverted ranges are ignored by the caller.
func ParseHourRange(s string) (startHour, endHour int, ok bool) {
	m := rangeRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, false
	}
	startHour, _ = strconv.Atoi(m[1])
	endHour, _ = strconv.Atoi(m[2])
	if startHour >= endHour || endHour > 24 {
		return 0, 0, false
	}
	return startHour, endHour, true
}
