// Package prefs tracks how often each attendee ends up in meetings at a
// given day-and-time, so the assistant can suggest times people actually
// pick. The table is loaded once at startup and written back after every
// successful booking; the dialogue controller is the only writer.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Preferences is the persisted preference document.
type Preferences struct {
	UsualTimes        map[string]Counts `json:"usual_meeting_times"`
	PreferredLanguage string            `json:"preferred_language"`
	DefaultReminders  []string          `json:"default_reminders"`
	FavoriteTimes     []string          `json:"favorite_times"`
}

// DefaultPreferences mirrors the document created on first run.
func DefaultPreferences() *Preferences {
	return &Preferences{
		UsualTimes:        map[string]Counts{},
		PreferredLanguage: "en",
		DefaultReminders:  []string{"email", "10"},
		FavoriteTimes:     []string{"10:00", "14:00", "15:30"},
	}
}

// Store abstracts preference persistence. The whole document is loaded and
// stored atomically; there is no partial update.
type Store interface {
	Load(ctx context.Context) (*Preferences, error)
	Save(ctx context.Context, p *Preferences) error
}

// Tracker owns the in-memory preference table between load and save.
type Tracker struct {
	store  Store
	logger *slog.Logger
	data   *Preferences
}

// NewTracker creates a Tracker over the given store. Call Load before use.
func NewTracker(store Store, logger *slog.Logger) (*Tracker, error) {
	if store == nil {
		return nil, errors.New("prefs: store must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: store, logger: logger}, nil
}

// Load reads the persisted document, falling back to defaults when the
// store has nothing yet.
func (t *Tracker) Load(ctx context.Context) error {
	p, err := t.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("prefs: load: %w", err)
	}
	if p == nil {
		p = DefaultPreferences()
	}
	if p.UsualTimes == nil {
		p.UsualTimes = map[string]Counts{}
	}
	t.data = p
	return nil
}

// Preferences exposes the loaded document (language, default reminders).
func (t *Tracker) Preferences() *Preferences {
	if t.data == nil {
		t.data = DefaultPreferences()
	}
	return t.data
}

// Suggest merges the frequency tables of every listed attendee by summing
// counts per label and returns the most frequent label. Ties break toward
// the label seen first. Returns false when no attendee has any history.
func (t *Tracker) Suggest(attendees []string) (string, bool) {
	if t.data == nil || len(attendees) == 0 {
		return "", false
	}
	var merged Counts
	for _, a := range attendees {
		merged = merged.Add(t.data.UsualTimes[a])
	}
	return merged.Top()
}

// Record increments the (attendee, label) counter for every attendee of a
// just-booked meeting and persists the table. It must run exactly once per
// successful booking, after the calendar write succeeds.
func (t *Tracker) Record(ctx context.Context, attendees []string, label string) error {
	if t.data == nil {
		t.data = DefaultPreferences()
	}
	if label == "" {
		return errors.New("prefs: record: empty label")
	}
	for _, a := range attendees {
		t.data.UsualTimes[a] = t.data.UsualTimes[a].Increment(label)
	}
	if err := t.store.Save(ctx, t.data); err != nil {
		return fmt.Errorf("prefs: save: %w", err)
	}
	t.logger.Debug("recorded meeting preference", "label", label, "attendees", len(attendees))
	return nil
}

// LabelFor buckets an instant into a preference label, e.g. "Tuesday 14:00".
func LabelFor(ts time.Time) string {
	return fmt.Sprintf("%s %02d:%02d", ts.Weekday(), ts.Hour(), ts.Minute())
}

// SplitLabel breaks a label back into its day and time parts. The day part
// is a weekday name the schedule resolver understands.
func SplitLabel(label string) (day, clock string, ok bool) {
	var wd string
	var h, m int
	if _, err := fmt.Sscanf(label, "%s %d:%d", &wd, &h, &m); err != nil {
		return "", "", false
	}
	return wd, fmt.Sprintf("%02d:%02d", h, m), true
}
