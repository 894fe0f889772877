package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pranav271103/smart-scheduler-ai-agent/internal/domain"
	"github.com/pranav271103/smart-scheduler-ai-agent/internal/schedule"
)

// Wednesday morning in the planner zone.
var testNow = time.Date(2026, 8, 26, 8, 0, 0, 0, time.UTC)

type jsonReply struct {
	raw string
	err error
}

type fakeLLM struct {
	jsonReplies  []jsonReply
	jsonCalls    int
	jsonMessages []domain.ChatMessage
	genReplies   []string
	genCalls     int
}

func (f *fakeLLM) GenerateJSON(_ context.Context, _ string, messages []domain.ChatMessage, _ json.RawMessage) (string, error) {
	f.jsonMessages = messages
	idx := f.jsonCalls
	f.jsonCalls++
	if idx >= len(f.jsonReplies) {
		return "{}", nil
	}
	return f.jsonReplies[idx].raw, f.jsonReplies[idx].err
}

func (f *fakeLLM) Generate(_ context.Context, _ string, _ []domain.ChatMessage) (string, error) {
	idx := f.genCalls
	f.genCalls++
	if idx >= len(f.genReplies) {
		return "unknown", nil
	}
	return f.genReplies[idx], nil
}

type createdCall struct {
	summary   string
	slot      domain.TimeSlot
	attendees []string
}

type fakeCalendar struct {
	events     []domain.CalendarEvent
	listErrs   []error
	listCalls  int
	created    []createdCall
	createErrs []error
	booked     domain.BookedEvent
	added      map[string][]string
}

func (f *fakeCalendar) ListEvents(_ context.Context, _, _ time.Time) ([]domain.CalendarEvent, error) {
	f.listCalls++
	if len(f.listErrs) > 0 {
		err := f.listErrs[0]
		f.listErrs = f.listErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.events, nil
}

func (f *fakeCalendar) CreateEvent(_ context.Context, summary string, slot domain.TimeSlot, attendees []string) (domain.BookedEvent, error) {
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return domain.BookedEvent{}, err
		}
	}
	f.created = append(f.created, createdCall{summary: summary, slot: slot, attendees: attendees})
	booked := f.booked
	if booked.ID == "" {
		booked.ID = fmt.Sprintf("evt-%d", len(f.created))
	}
	return booked, nil
}

func (f *fakeCalendar) AddAttendees(_ context.Context, eventID string, emails []string) error {
	if f.added == nil {
		f.added = map[string][]string{}
	}
	f.added[eventID] = append(f.added[eventID], emails...)
	return nil
}

type recordCall struct {
	attendees []string
	label     string
}

type fakeTracker struct {
	suggestion    string
	hasSuggestion bool
	recorded      []recordCall
}

func (f *fakeTracker) Suggest(_ []string) (string, bool) {
	return f.suggestion, f.hasSuggestion
}

func (f *fakeTracker) Record(_ context.Context, attendees []string, label string) error {
	f.recorded = append(f.recorded, recordCall{attendees: attendees, label: label})
	return nil
}

func newTestController(t *testing.T, llm *fakeLLM, cal *fakeCalendar, tracker *fakeTracker) *Controller {
	t.Helper()
	c, err := NewController(llm, cal, tracker, nil, schedule.NewPlanner(time.UTC), slog.Default(), Config{})
	require.NoError(t, err)
	c.now = func() time.Time { return testNow }
	return c
}

func extraction(raw string) jsonReply {
	return jsonReply{raw: raw}
}

func TestNewController_ValidatesDependencies(t *testing.T) {
	planner := schedule.NewPlanner(time.UTC)
	_, err := NewController(nil, &fakeCalendar{}, &fakeTracker{}, nil, planner, nil, Config{})
	require.Error(t, err)
	_, err = NewController(&fakeLLM{}, nil, &fakeTracker{}, nil, planner, nil, Config{})
	require.Error(t, err)
	_, err = NewController(&fakeLLM{}, &fakeCalendar{}, nil, nil, planner, nil, Config{})
	require.Error(t, err)
	_, err = NewController(&fakeLLM{}, &fakeCalendar{}, &fakeTracker{}, nil, nil, nil, Config{})
	require.Error(t, err)
}

func TestIsExitWord(t *testing.T) {
	for _, w := range []string{"exit", "QUIT", " bye ", "Goodbye"} {
		require.True(t, IsExitWord(w), w)
	}
	require.False(t, IsExitWord("exit the meeting"))
	require.False(t, IsExitWord("schedule"))
}

// A fully specified request in one turn goes straight to confirmation.
func TestFullySpecifiedRequestReachesConfirmation(t *testing.T) {
	llm := &fakeLLM{jsonReplies: []jsonReply{
		extraction(`{"title":"Project Sync","duration_minutes":30,"day":"tomorrow","time":"2pm"}`),
	}}
	cal := &fakeCalendar{booked: domain.BookedEvent{ID: "evt-1", MeetLink: "https://meet.google.com/abc"}}
	tracker := &fakeTracker{}
	c := newTestController(t, llm, cal, tracker)
	ctx := context.Background()

	reply := c.HandleTurn(ctx, "book a 30 minute project sync tomorrow at 2pm")
	require.Equal(t, StateConfirming, c.State())
	require.Contains(t, reply, "Shall I book it?")
	require.Contains(t, reply, "Thursday, August 27 at 2:00 PM")
	require.Empty(t, cal.created)

	reply = c.HandleTurn(ctx, "yes")
	require.Len(t, cal.created, 1)
	require.Equal(t, time.Date(2026, 8, 27, 14, 0, 0, 0, time.UTC), cal.created[0].slot.Start)
	require.Equal(t, time.Date(2026, 8, 27, 14, 30, 0, 0, time.UTC), cal.created[0].slot.End)
	require.Equal(t, "Project Sync", cal.created[0].summary)
	require.Contains(t, reply, "https://meet.google.com/abc")
	require.Equal(t, StateFollowUp, c.State())

	// No attendees, so no preference was recorded.
	require.Empty(t, tracker.recorded)

	reply = c.HandleTurn(ctx, "that's all")
	require.Contains(t, reply, "all set")
	require.Equal(t, StateCollecting, c.State())
	require.Nil(t, c.CurrentRequest().Duration)
}

// "Schedule a meeting" alone must draw a prompt for all three required
// fields, not a generic nudge.
func TestBareRequestAsksForAllMissingFields(t *testing.T) {
	llm := &fakeLLM{jsonReplies: []jsonReply{extraction(`{}`)}}
	cal := &fakeCalendar{}
	c := newTestController(t, llm, cal, &fakeTracker{})

	reply := c.HandleTurn(context.Background(), "schedule a meeting")
	require.Equal(t, StateCollecting, c.State())
	require.Contains(t, reply, "duration")
	require.Contains(t, reply, "day")
	require.Contains(t, reply, "time")
	require.Empty(t, cal.created)
}

func TestPartialThenCompleteAccumulates(t *testing.T) {
	llm := &fakeLLM{jsonReplies: []jsonReply{
		extraction(`{"duration_minutes":45,"day":"friday"}`),
		extraction(`{"time":"10:00"}`),
	}}
	c := newTestController(t, llm, &fakeCalendar{}, &fakeTracker{})
	ctx := context.Background()

	reply := c.HandleTurn(ctx, "I need 45 minutes with the team on friday")
	require.Contains(t, reply, "time")
	require.NotContains(t, reply, "duration")
	require.Equal(t, StateCollecting, c.State())

	c.HandleTurn(ctx, "10am works")
	require.Equal(t, StateConfirming, c.State())
	req := c.CurrentRequest()
	require.Equal(t, "friday", req.Day)
	require.Equal(t, 45, *req.Duration)
}

// An extraction result can never blank out a field that is already known.
func TestMergeNeverOverwritesWithEmpty(t *testing.T) {
	llm := &fakeLLM{jsonReplies: []jsonReply{
		extraction(`{"duration_minutes":45,"day":"friday","title":"Budget"}`),
		extraction(`{"day":"","title":""}`),
	}}
	c := newTestController(t, llm, &fakeCalendar{}, &fakeTracker{})
	ctx := context.Background()

	c.HandleTurn(ctx, "45 minutes on friday about the budget")
	c.HandleTurn(ctx, "hmm let me think")

	req := c.CurrentRequest()
	require.Equal(t, "friday", req.Day)
	require.Equal(t, "Budget", req.Title)
}

func conflictEvent(d time.Time) []domain.CalendarEvent {
	return []domain.CalendarEvent{{
		Start:   d.Add(10 * time.Hour),
		End:     d.Add(10*time.Hour + 30*time.Minute),
		Summary: "Standup",
	}}
}

func TestConflictFlow_PickAlternative(t *testing.T) {
	tomorrow := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	llm := &fakeLLM{jsonReplies: []jsonReply{
		extraction(`{"duration_minutes":30,"day":"tomorrow","time":"10:15"}`),
	}}
	cal := &fakeCalendar{events: conflictEvent(tomorrow)}
	c := newTestController(t, llm, cal, &fakeTracker{})
	ctx := context.Background()

	reply := c.HandleTurn(ctx, "30 minutes tomorrow at 10:15")
	require.Equal(t, StateResolvingConflict, c.State())
	require.Contains(t, reply, "overlaps an existing event")
	// Nearest alternatives first: 10:30, 10:45, then 9:30.
	require.Contains(t, reply, "1) 10:30 AM")
	require.Contains(t, reply, "2) 10:45 AM")
	require.Contains(t, reply, "3) 9:30 AM")

	reply = c.HandleTurn(ctx, "the second option")
	require.Equal(t, StateConfirming, c.State())
	require.Contains(t, reply, "10:45 AM")

	c.HandleTurn(ctx, "yes")
	require.Len(t, cal.created, 1)
	require.Equal(t, tomorrow.Add(10*time.Hour+45*time.Minute), cal.created[0].slot.Start)
}

func TestConflictFlow_ChoiceByTimeMention(t *testing.T) {
	tomorrow := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	llm := &fakeLLM{jsonReplies: []jsonReply{
		extraction(`{"duration_minutes":30,"day":"tomorrow","time":"10:15"}`),
	}}
	cal := &fakeCalendar{events: conflictEvent(tomorrow)}
	c := newTestController(t, llm, cal, &fakeTracker{})
	ctx := context.Background()

	c.HandleTurn(ctx, "30 minutes tomorrow at 10:15")
	reply := c.HandleTurn(ctx, "yes to 10:45 please")
	require.Equal(t, StateConfirming, c.State())
	require.Contains(t, reply, "10:45 AM")
}

// An ambiguous pick must re-prompt, never default to some alternative.
func TestConflictFlow_AmbiguousChoiceReprompts(t *testing.T) {
	tomorrow := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	llm := &fakeLLM{jsonReplies: []jsonReply{
		extraction(`{"duration_minutes":30,"day":"tomorrow","time":"10:15"}`),
	}}
	cal := &fakeCalendar{events: conflictEvent(tomorrow)}
	c := newTestController(t, llm, cal, &fakeTracker{})
	ctx := context.Background()

	c.HandleTurn(ctx, "30 minutes tomorrow at 10:15")
	reply := c.HandleTurn(ctx, "hmm whichever works for everyone")
	require.Equal(t, StateResolvingConflict, c.State())
	require.Contains(t, reply, "didn't catch which option")
	require.Empty(t, cal.created)
}

func TestConflictFlow_ForcedBookingDoubleBooks(t *testing.T) {
	tomorrow := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	llm := &fakeLLM{jsonReplies: []jsonReply{
		extraction(`{"duration_minutes":30,"day":"tomorrow","time":"10:15"}`),
	}}
	cal := &fakeCalendar{events: conflictEvent(tomorrow)}
	c := newTestController(t, llm, cal, &fakeTracker{})
	ctx := context.Background()

	c.HandleTurn(ctx, "30 minutes tomorrow at 10:15")
	reply := c.HandleTurn(ctx, "book it anyway")
	require.Equal(t, StateConfirming, c.State())
	require.Contains(t, reply, "double-booked")

	c.HandleTurn(ctx, "yes")
	require.Len(t, cal.created, 1)
	// The original conflicting time is booked, not a silently chosen
	// free slot.
	require.Equal(t, tomorrow.Add(10*time.Hour+15*time.Minute), cal.created[0].slot.Start)
}

func TestConflictFlow_DeclineCancels(t *testing.T) {
	tomorrow := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	llm := &fakeLLM{jsonReplies: []jsonReply{
		extraction(`{"duration_minutes":30,"day":"tomorrow","time":"10:15"}`),
	}}
	cal := &fakeCalendar{events: conflictEvent(tomorrow)}
	c := newTestController(t, llm, cal, &fakeTracker{})
	ctx := context.Background()

	c.HandleTurn(ctx, "30 minutes tomorrow at 10:15")
	reply := c.HandleTurn(ctx, "cancel")
	require.Equal(t, StateCollecting, c.State())
	require.Contains(t, reply, "dropped")
	require.Empty(t, cal.created)
	require.Nil(t, c.CurrentRequest().Duration)
	req := c.CurrentRequest()
	require.Len(t, req.MissingFields(), 3)
}

func TestSuggestionFlow_AcceptOverwritesDayAndTime(t *testing.T) {
	llm := &fakeLLM{jsonReplies: []jsonReply{
		extraction(`{"duration_minutes":30,"day":"tomorrow","time":"2pm","attendees":["a@example.com"]}`),
	}}
	cal := &fakeCalendar{}
	tracker := &fakeTracker{suggestion: "Tuesday 10:00", hasSuggestion: true}
	c := newTestController(t, llm, cal, tracker)
	ctx := context.Background()

	reply := c.HandleTurn(ctx, "30 minutes tomorrow 2pm with a@example.com")
	require.Equal(t, StateSuggesting, c.State())
	require.Contains(t, reply, "Tuesday 10:00")

	c.HandleTurn(ctx, "yes")
	require.Equal(t, StateConfirming, c.State())
	req := c.CurrentRequest()
	require.Equal(t, "Tuesday", req.Day)
	require.Equal(t, "10:00", req.Time)

	c.HandleTurn(ctx, "yes")
	require.Len(t, cal.created, 1)
	// Next Tuesday after Wednesday 2026-08-26 is September 1.
	require.Equal(t, time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC), cal.created[0].slot.Start)
	require.Equal(t, []recordCall{{attendees: []string{"a@example.com"}, label: "Tuesday 10:00"}}, tracker.recorded)
}

func TestSuggestionFlow_DeclineKeepsOriginal(t *testing.T) {
	llm := &fakeLLM{jsonReplies: []jsonReply{
		extraction(`{"duration_minutes":30,"day":"tomorrow","time":"2pm","attendees":["a@example.com"]}`),
	}}
	cal := &fakeCalendar{}
	tracker := &fakeTracker{suggestion: "Tuesday 10:00", hasSuggestion: true}
	c := newTestController(t, llm, cal, tracker)
	ctx := context.Background()

	c.HandleTurn(ctx, "30 minutes tomorrow 2pm with a@example.com")
	c.HandleTurn(ctx, "keep my time please")
	require.Equal(t, StateConfirming, c.State())

	c.HandleTurn(ctx, "yes")
	require.Len(t, cal.created, 1)
	require.Equal(t, time.Date(2026, 8, 27, 14, 0, 0, 0, time.UTC), cal.created[0].slot.Start)
}

func TestSuggestionSkippedWhenEqualToRequest(t *testing.T) {
	llm := &fakeLLM{jsonReplies: []jsonReply{
		extraction(`{"duration_minutes":30,"day":"tomorrow","time":"2pm","attendees":["a@example.com"]}`),
	}}
	// Thursday 14:00 is exactly what was asked for.
	tracker := &fakeTracker{suggestion: "Thursday 14:00", hasSuggestion: true}
	c := newTestController(t, llm, &fakeCalendar{}, tracker)

	c.HandleTurn(context.Background(), "30 minutes tomorrow 2pm with a@example.com")
	require.Equal(t, StateConfirming, c.State())
}

// Preferences are recorded only after the booking call succeeds.
func TestRecordOnlyAfterSuccessfulBooking(t *testing.T) {
	llm := &fakeLLM{jsonReplies: []jsonReply{
		extraction(`{"duration_minutes":30,"day":"tomorrow","time":"2pm","attendees":["a@example.com"]}`),
	}}
	cal := &fakeCalendar{createErrs: []error{errors.New("boom"), errors.New("boom again")}}
	tracker := &fakeTracker{}
	c := newTestController(t, llm, cal, tracker)
	ctx := context.Background()

	c.HandleTurn(ctx, "30 minutes tomorrow 2pm with a@example.com")
	require.Equal(t, StateConfirming, c.State())

	// The call and its single retry both fail: apology, state unchanged,
	// nothing recorded.
	reply := c.HandleTurn(ctx, "yes")
	require.Contains(t, reply, "Sorry")
	require.Equal(t, StateConfirming, c.State())
	require.Empty(t, cal.created)
	require.Empty(t, tracker.recorded)

	// A fresh confirmation succeeds and records exactly once.
	reply = c.HandleTurn(ctx, "yes")
	require.Len(t, cal.created, 1)
	require.Equal(t, []recordCall{{attendees: []string{"a@example.com"}, label: "Thursday 14:00"}}, tracker.recorded)
	require.Contains(t, reply, "Done!")
}

func TestConfirmation_NoDeclinesWithoutBooking(t *testing.T) {
	llm := &fakeLLM{jsonReplies: []jsonReply{
		extraction(`{"duration_minutes":30,"day":"tomorrow","time":"2pm"}`),
	}}
	cal := &fakeCalendar{}
	c := newTestController(t, llm, cal, &fakeTracker{})
	ctx := context.Background()

	c.HandleTurn(ctx, "30 minutes tomorrow at 2pm")
	reply := c.HandleTurn(ctx, "no")
	require.Contains(t, reply, "won't book")
	require.Empty(t, cal.created)
	require.Equal(t, StateCollecting, c.State())
	require.Nil(t, c.CurrentRequest().Duration)
}

// Repeated unrecognized confirmation replies are reprocessed as fresh
// collecting turns, and after a bounded number the attempt is abandoned.
func TestConfirmation_AmbiguousRepliesAreBounded(t *testing.T) {
	llm := &fakeLLM{jsonReplies: []jsonReply{
		extraction(`{"duration_minutes":30,"day":"tomorrow","time":"2pm"}`),
		extraction(`{}`),
		extraction(`{}`),
	}}
	cal := &fakeCalendar{}
	c := newTestController(t, llm, cal, &fakeTracker{})
	ctx := context.Background()

	c.HandleTurn(ctx, "30 minutes tomorrow at 2pm")
	require.Equal(t, StateConfirming, c.State())

	// The prompt narrows on re-entry.
	reply := c.HandleTurn(ctx, "the weather is nice")
	require.Equal(t, StateConfirming, c.State())
	require.Contains(t, reply, "Please answer yes or no.")

	reply = c.HandleTurn(ctx, "the weather is nice")
	require.Equal(t, StateConfirming, c.State())
	require.Contains(t, reply, "Please answer yes or no.")

	reply = c.HandleTurn(ctx, "the weather is nice")
	require.Equal(t, StateCollecting, c.State())
	require.Contains(t, reply, "set it aside")
	require.Empty(t, cal.created)
	require.Nil(t, c.CurrentRequest().Duration)
}

// A reply that changes a field during confirmation is applied, not lost.
func TestConfirmation_FieldChangeIsReprocessed(t *testing.T) {
	llm := &fakeLLM{jsonReplies: []jsonReply{
		extraction(`{"duration_minutes":30,"day":"tomorrow","time":"2pm"}`),
		extraction(`{"time":"4pm"}`),
	}}
	cal := &fakeCalendar{}
	c := newTestController(t, llm, cal, &fakeTracker{})
	ctx := context.Background()

	c.HandleTurn(ctx, "30 minutes tomorrow at 2pm")
	reply := c.HandleTurn(ctx, "make it 4pm instead")
	require.Equal(t, StateConfirming, c.State())
	require.Contains(t, reply, "4:00 PM")

	c.HandleTurn(ctx, "yes")
	require.Len(t, cal.created, 1)
	require.Equal(t, time.Date(2026, 8, 27, 16, 0, 0, 0, time.UTC), cal.created[0].slot.Start)
}

func TestExtractionFailureIsApologyNotCrash(t *testing.T) {
	boom := errors.New("upstream down")
	llm := &fakeLLM{jsonReplies: []jsonReply{{err: boom}, {err: boom}}}
	c := newTestController(t, llm, &fakeCalendar{}, &fakeTracker{})

	reply := c.HandleTurn(context.Background(), "schedule a meeting tomorrow")
	require.Contains(t, reply, "Sorry")
	require.Equal(t, StateCollecting, c.State())
	// The call and its single retry were both used.
	require.Equal(t, 2, llm.jsonCalls)
}

func TestExtractionRetriesOnceThenSucceeds(t *testing.T) {
	llm := &fakeLLM{jsonReplies: []jsonReply{
		{err: errors.New("blip")},
		extraction(`{"duration_minutes":30,"day":"tomorrow","time":"2pm"}`),
	}}
	c := newTestController(t, llm, &fakeCalendar{}, &fakeTracker{})

	c.HandleTurn(context.Background(), "30 minutes tomorrow at 2pm")
	require.Equal(t, StateConfirming, c.State())
}

func TestMalformedExtractionMeansNoNewInformation(t *testing.T) {
	llm := &fakeLLM{jsonReplies: []jsonReply{
		extraction(`this is not json`),
	}}
	c := newTestController(t, llm, &fakeCalendar{}, &fakeTracker{})

	reply := c.HandleTurn(context.Background(), "schedule a meeting")
	require.Equal(t, StateCollecting, c.State())
	require.Contains(t, reply, "duration")
}

func TestUnresolvableDayReprompts(t *testing.T) {
	llm := &fakeLLM{
		jsonReplies: []jsonReply{
			extraction(`{"duration_minutes":30,"day":"after my flight","time":"2pm"}`),
		},
		genReplies: []string{"unknown"},
	}
	c := newTestController(t, llm, &fakeCalendar{}, &fakeTracker{})

	reply := c.HandleTurn(context.Background(), "30 minutes after my flight at 2pm")
	require.Equal(t, StateCollecting, c.State())
	require.Contains(t, reply, "day")
	require.Empty(t, c.CurrentRequest().Day)
	// Duration and time survive the failed resolution.
	require.Equal(t, 30, *c.CurrentRequest().Duration)
	require.Equal(t, "2pm", c.CurrentRequest().Time)
}

func TestLLMResolvesRelativeDayPhrase(t *testing.T) {
	llm := &fakeLLM{
		jsonReplies: []jsonReply{
			extraction(`{"duration_minutes":30,"day":"after my flight","time":"2pm"}`),
		},
		genReplies: []string{"2026-08-28T00:00:00Z"},
	}
	cal := &fakeCalendar{}
	c := newTestController(t, llm, cal, &fakeTracker{})
	ctx := context.Background()

	c.HandleTurn(ctx, "30 minutes after my flight at 2pm")
	require.Equal(t, StateConfirming, c.State())

	c.HandleTurn(ctx, "yes")
	require.Len(t, cal.created, 1)
	require.Equal(t, time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC), cal.created[0].slot.Start)
}

func TestCalendarListFailureKeepsRequest(t *testing.T) {
	boom := errors.New("calendar down")
	llm := &fakeLLM{jsonReplies: []jsonReply{
		extraction(`{"duration_minutes":30,"day":"tomorrow","time":"2pm"}`),
	}}
	cal := &fakeCalendar{listErrs: []error{boom, boom}}
	c := newTestController(t, llm, cal, &fakeTracker{})

	reply := c.HandleTurn(context.Background(), "30 minutes tomorrow at 2pm")
	require.Contains(t, reply, "Sorry")
	require.Equal(t, StateCollecting, c.State())
	// The record survives for a retry on the next turn.
	require.Equal(t, 30, *c.CurrentRequest().Duration)
	require.Equal(t, 2, cal.listCalls)
}

func TestDirectQueriesAnsweredWithoutScheduling(t *testing.T) {
	llm := &fakeLLM{}
	c := newTestController(t, llm, &fakeCalendar{}, &fakeTracker{})
	ctx := context.Background()

	reply := c.HandleTurn(ctx, "what is the date today?")
	require.Contains(t, reply, "Wednesday, August 26, 2026")

	reply = c.HandleTurn(ctx, "what time is it?")
	require.Contains(t, reply, "8:00 AM")

	// Neither needed an LLM call.
	require.Zero(t, llm.jsonCalls)
}

func TestSmallTalkFallsBackToCompletion(t *testing.T) {
	llm := &fakeLLM{
		jsonReplies: []jsonReply{extraction(`{}`)},
		genReplies:  []string{"Happy to help with your calendar!"},
	}
	c := newTestController(t, llm, &fakeCalendar{}, &fakeTracker{})

	reply := c.HandleTurn(context.Background(), "hello there")
	require.Equal(t, "Happy to help with your calendar!", reply)
	require.Equal(t, StateCollecting, c.State())
}

func TestFollowUp_AddsAttendeesToBookedEvent(t *testing.T) {
	llm := &fakeLLM{jsonReplies: []jsonReply{
		extraction(`{"duration_minutes":30,"day":"tomorrow","time":"2pm"}`),
	}}
	cal := &fakeCalendar{booked: domain.BookedEvent{ID: "evt-42"}}
	c := newTestController(t, llm, cal, &fakeTracker{})
	ctx := context.Background()

	c.HandleTurn(ctx, "30 minutes tomorrow at 2pm")
	c.HandleTurn(ctx, "yes")
	require.Equal(t, StateFollowUp, c.State())

	reply := c.HandleTurn(ctx, "please also invite b@example.com")
	require.Contains(t, reply, "b@example.com")
	require.Equal(t, []string{"b@example.com"}, cal.added["evt-42"])
	require.Equal(t, StateCollecting, c.State())
}

func TestFollowUp_ReminderQuestion(t *testing.T) {
	llm := &fakeLLM{jsonReplies: []jsonReply{
		extraction(`{"duration_minutes":30,"day":"tomorrow","time":"2pm"}`),
	}}
	c := newTestController(t, llm, &fakeCalendar{}, &fakeTracker{})
	ctx := context.Background()

	c.HandleTurn(ctx, "30 minutes tomorrow at 2pm")
	c.HandleTurn(ctx, "yes")

	reply := c.HandleTurn(ctx, "will it remind me?")
	require.Contains(t, reply, "email a day before")
	require.Equal(t, StateCollecting, c.State())
}

// A stated hour range keeps all offered alternatives inside it.
func TestTimeRangeNarrowsAlternatives(t *testing.T) {
	tomorrow := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	llm := &fakeLLM{jsonReplies: []jsonReply{
		extraction(`{"duration_minutes":30,"day":"tomorrow","time":"11:45","time_range":"9-12"}`),
	}}
	cal := &fakeCalendar{events: []domain.CalendarEvent{{
		Start: tomorrow.Add(11*time.Hour + 30*time.Minute),
		End:   tomorrow.Add(12 * time.Hour),
	}}}
	c := newTestController(t, llm, cal, &fakeTracker{})

	reply := c.HandleTurn(context.Background(), "30 minutes tomorrow at 11:45, somewhere between 9 and 12")
	require.Equal(t, StateResolvingConflict, c.State())
	// Without the range, afternoon slots right after the event would be
	// the closest picks; the constraint keeps everything in the morning.
	require.Contains(t, reply, "11:00 AM")
	require.NotContains(t, reply, "PM")
}

type fakeTimeoutErr struct{}

func (fakeTimeoutErr) Error() string { return "timed out" }
func (fakeTimeoutErr) Timeout() bool { return true }

type scriptedIO struct {
	inputs  []string
	idx     int
	said    []string
	timeout bool
}

func (s *scriptedIO) Say(text string) {
	s.said = append(s.said, text)
}

func (s *scriptedIO) Listen(_ context.Context) (string, error) {
	if s.timeout {
		s.timeout = false
		return "", fakeTimeoutErr{}
	}
	if s.idx >= len(s.inputs) {
		return "", errors.New("input closed")
	}
	in := s.inputs[s.idx]
	s.idx++
	return in, nil
}

func TestRun_ExitWordEndsLoopFromAnyState(t *testing.T) {
	llm := &fakeLLM{jsonReplies: []jsonReply{
		extraction(`{"duration_minutes":30,"day":"tomorrow","time":"2pm"}`),
	}}
	cal := &fakeCalendar{}
	c := newTestController(t, llm, cal, &fakeTracker{})

	userIO := &scriptedIO{inputs: []string{"30 minutes tomorrow at 2pm", "bye"}}
	require.NoError(t, c.Run(context.Background(), userIO))

	require.Equal(t, StateConfirming, c.State())
	require.Empty(t, cal.created)
	require.Contains(t, userIO.said[len(userIO.said)-1], "Goodbye")
}

func TestRun_TimeoutIsHeardNothing(t *testing.T) {
	c := newTestController(t, &fakeLLM{}, &fakeCalendar{}, &fakeTracker{})

	userIO := &scriptedIO{inputs: []string{"quit"}, timeout: true}
	require.NoError(t, c.Run(context.Background(), userIO))
	require.Contains(t, userIO.said, "I didn't hear anything. Please try again.")
}

func TestRun_EndOfInputReturnsNil(t *testing.T) {
	c := newTestController(t, &fakeLLM{}, &fakeCalendar{}, &fakeTracker{})
	require.NoError(t, c.Run(context.Background(), &scriptedIO{}))
}

// hangingCalendar never answers; it only returns once its context is done.
type hangingCalendar struct {
	listCalls   int
	createCalls int
}

func (h *hangingCalendar) ListEvents(ctx context.Context, _, _ time.Time) ([]domain.CalendarEvent, error) {
	h.listCalls++
	<-ctx.Done()
	return nil, ctx.Err()
}

func (h *hangingCalendar) CreateEvent(ctx context.Context, _ string, _ domain.TimeSlot, _ []string) (domain.BookedEvent, error) {
	h.createCalls++
	<-ctx.Done()
	return domain.BookedEvent{}, ctx.Err()
}

func (h *hangingCalendar) AddAttendees(ctx context.Context, _ string, _ []string) error {
	<-ctx.Done()
	return ctx.Err()
}

// A calendar that hangs forever must surface as a service failure within
// the call timeout, never stall the conversation.
func TestHungCalendarCallIsBoundedByTimeout(t *testing.T) {
	llm := &fakeLLM{jsonReplies: []jsonReply{
		extraction(`{"duration_minutes":30,"day":"tomorrow","time":"2pm"}`),
	}}
	cal := &hangingCalendar{}
	c, err := NewController(llm, cal, &fakeTracker{}, nil, schedule.NewPlanner(time.UTC), slog.Default(),
		Config{CallTimeout: 5 * time.Millisecond})
	require.NoError(t, err)
	c.now = func() time.Time { return testNow }

	done := make(chan string, 1)
	go func() {
		done <- c.HandleTurn(context.Background(), "30 minutes tomorrow at 2pm")
	}()

	select {
	case reply := <-done:
		require.Contains(t, reply, "Sorry")
		require.Equal(t, StateCollecting, c.State())
		// Both the call and its retry were bounded.
		require.Equal(t, 2, cal.listCalls)
	case <-time.After(2 * time.Second):
		t.Fatal("turn did not complete; calendar call was not bounded")
	}
}

func TestHungBookingCallIsBoundedByTimeout(t *testing.T) {
	cal := &hangingCalendar{}
	c, err := NewController(&fakeLLM{}, cal, &fakeTracker{}, nil, schedule.NewPlanner(time.UTC), slog.Default(),
		Config{CallTimeout: 5 * time.Millisecond})
	require.NoError(t, err)
	c.now = func() time.Time { return testNow }

	d := 30
	c.request = domain.MeetingRequest{Day: "tomorrow", Time: "2pm", Duration: &d}
	c.requested = domain.TimeSlot{
		Start: time.Date(2026, 8, 27, 14, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 8, 27, 14, 30, 0, 0, time.UTC),
	}
	c.state = StateConfirming

	done := make(chan string, 1)
	go func() {
		done <- c.HandleTurn(context.Background(), "yes")
	}()

	select {
	case reply := <-done:
		require.Contains(t, reply, "Sorry")
		require.Equal(t, StateConfirming, c.State())
		require.Equal(t, 2, cal.createCalls)
	case <-time.After(2 * time.Second):
		t.Fatal("turn did not complete; booking call was not bounded")
	}
}

// Seeded turns from the hosted log flow into the extraction context.
func TestSeedHistoryFeedsPromptContext(t *testing.T) {
	llm := &fakeLLM{jsonReplies: []jsonReply{extraction(`{}`)}}
	c := newTestController(t, llm, &fakeCalendar{}, &fakeTracker{})

	c.SeedHistory([]domain.Turn{
		{Input: "we always meet on tuesdays", Response: "Noted."},
	})
	c.HandleTurn(context.Background(), "schedule a meeting")

	var seen bool
	for _, m := range llm.jsonMessages {
		if m.Content == "we always meet on tuesdays" {
			seen = true
		}
	}
	require.True(t, seen)
}

// A confirmation reached without a complete record resets instead of
// booking garbage.
func TestBookingGuardResetsIncompleteRequest(t *testing.T) {
	cal := &fakeCalendar{}
	c := newTestController(t, &fakeLLM{}, cal, &fakeTracker{})
	c.state = StateConfirming

	reply := c.HandleTurn(context.Background(), "yes")
	require.Contains(t, reply, "start over")
	require.Equal(t, StateCollecting, c.State())
	require.Empty(t, cal.created)
}

// A confirmation reply that changes a field restarts the no-progress
// count; only truly stalled turns accumulate toward abandonment.
func TestConfirmation_FieldChangeResetsNoProgressCap(t *testing.T) {
	llm := &fakeLLM{jsonReplies: []jsonReply{
		extraction(`{"duration_minutes":30,"day":"tomorrow","time":"2pm"}`),
		extraction(`{}`),
		extraction(`{"time":"4pm"}`),
		extraction(`{}`),
		extraction(`{}`),
	}}
	cal := &fakeCalendar{}
	c := newTestController(t, llm, cal, &fakeTracker{})
	ctx := context.Background()

	c.HandleTurn(ctx, "30 minutes tomorrow at 2pm")
	c.HandleTurn(ctx, "hmm")
	require.Equal(t, StateConfirming, c.State())

	// Changing the time is progress, not a stall.
	c.HandleTurn(ctx, "make it 4pm instead")
	require.Equal(t, StateConfirming, c.State())

	// Two further stalled turns stay under the restarted cap.
	c.HandleTurn(ctx, "hmm")
	c.HandleTurn(ctx, "hmm")
	require.Equal(t, StateConfirming, c.State())
	require.Equal(t, "4pm", c.CurrentRequest().Time)

	c.HandleTurn(ctx, "yes")
	require.Len(t, cal.created, 1)
	require.Equal(t, time.Date(2026, 8, 27, 16, 0, 0, 0, time.UTC), cal.created[0].slot.Start)
}
