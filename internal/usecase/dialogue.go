// Package usecase owns the scheduling dialogue: it accumulates a meeting
// request across turns, searches the calendar for a matching slot, walks
// the user through conflicts and confirmation, and books the meeting.
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pranav271103/smart-scheduler-ai-agent/internal/domain"
	"github.com/pranav271103/smart-scheduler-ai-agent/internal/prefs"
	"github.com/pranav271103/smart-scheduler-ai-agent/internal/schedule"
)

const (
	defaultModel           = "gemini-1.5-flash-latest"
	defaultDurationMinutes = 30
	defaultAlternatives    = 3
	defaultCallTimeout     = 15 * time.Second
	recentTurnContext      = 5
	maxUnrecognizedReplies = 3
)

// State identifies where the controller is in one booking attempt.
type State int

const (
	StateCollecting State = iota
	StateSuggesting
	StateResolvingConflict
	StateConfirming
	StateFollowUp
)

func (s State) String() string {
	switch s {
	case StateCollecting:
		return "collecting"
	case StateSuggesting:
		return "suggesting"
	case StateResolvingConflict:
		return "resolving_conflict"
	case StateConfirming:
		return "confirming"
	case StateFollowUp:
		return "follow_up"
	default:
		return "unknown"
	}
}

// LLMClient is the text-understanding and phrasing capability.
type LLMClient interface {
	Generate(ctx context.Context, model string, messages []domain.ChatMessage) (string, error)
	GenerateJSON(ctx context.Context, model string, messages []domain.ChatMessage, schema json.RawMessage) (string, error)
}

// CalendarClient is the calendar read/write capability.
type CalendarClient interface {
	ListEvents(ctx context.Context, from, to time.Time) ([]domain.CalendarEvent, error)
	CreateEvent(ctx context.Context, summary string, slot domain.TimeSlot, attendees []string) (domain.BookedEvent, error)
	AddAttendees(ctx context.Context, eventID string, emails []string) error
}

// PreferenceTracker biases suggestions toward times the attendees have
// booked before.
type PreferenceTracker interface {
	Suggest(attendees []string) (string, bool)
	Record(ctx context.Context, attendees []string, label string) error
}

// TurnStore persists completed turns in hosted deployments. May be nil;
// the in-memory log always exists.
type TurnStore interface {
	SaveTurn(ctx context.Context, conversationID string, turn domain.Turn) error
}

// UserIO is the voice or terminal front end. Listen errors satisfying
// interface{ Timeout() bool } are treated as "heard nothing", not failures.
type UserIO interface {
	Say(text string)
	Listen(ctx context.Context) (string, error)
}

// Config carries the deployment constants. Zero values fall back to the
// package defaults.
type Config struct {
	Model           string
	DefaultDuration int
	MaxAlternatives int
	Language        string
	// CallTimeout bounds each calendar call so a hung service surfaces
	// as a failure instead of stalling the conversation.
	CallTimeout time.Duration
}

// Controller runs the slot-filling dialogue. One controller serves one
// conversation at a time; each turn is fully resolved before the next.
type Controller struct {
	llm       LLMClient
	calendar  CalendarClient
	prefs     PreferenceTracker
	turnStore TurnStore
	planner   *schedule.Planner
	logger    *slog.Logger
	cfg       Config
	now       func() time.Time

	conversationID string
	history        []domain.Turn

	state           State
	request         domain.MeetingRequest
	requested       domain.TimeSlot
	forced          bool
	suggestion      string
	suggestionAsked bool
	alternatives    []domain.TimeSlot
	lastBooked      domain.BookedEvent
	noProgress      int
}

// NewController validates dependencies and prepares a fresh conversation.
// turnStore may be nil for purely local runs.
func NewController(llm LLMClient, calendar CalendarClient, tracker PreferenceTracker, turnStore TurnStore, planner *schedule.Planner, logger *slog.Logger, cfg Config) (*Controller, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if calendar == nil {
		return nil, errors.New("usecase: calendar client must not be nil")
	}
	if tracker == nil {
		return nil, errors.New("usecase: preference tracker must not be nil")
	}
	if planner == nil {
		return nil, errors.New("usecase: planner must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = defaultDurationMinutes
	}
	if cfg.MaxAlternatives <= 0 {
		cfg.MaxAlternatives = defaultAlternatives
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	return &Controller{
		llm:            llm,
		calendar:       calendar,
		prefs:          tracker,
		turnStore:      turnStore,
		planner:        planner,
		logger:         logger,
		cfg:            cfg,
		now:            time.Now,
		conversationID: uuid.NewString(),
		request:        domain.MeetingRequest{Language: cfg.Language},
	}, nil
}

// State exposes the current dialogue state.
func (c *Controller) State() State {
	return c.state
}

// CurrentRequest returns a copy of the in-progress record.
func (c *Controller) CurrentRequest() domain.MeetingRequest {
	return c.request
}

// SeedHistory preloads past turns, oldest first, so a resumed hosted
// conversation keeps its prompt context.
func (c *Controller) SeedHistory(turns []domain.Turn) {
	c.history = append([]domain.Turn(nil), turns...)
}

var exitWords = map[string]bool{
	"exit":    true,
	"quit":    true,
	"bye":     true,
	"goodbye": true,
}

// IsExitWord reports whether the input ends the conversation, from any state.
func IsExitWord(input string) bool {
	return exitWords[strings.ToLower(strings.TrimSpace(input))]
}

// Run drives the turn loop until an exit word, end of input, or context
// cancellation.
func (c *Controller) Run(ctx context.Context, userIO UserIO) error {
	userIO.Say("Hello! I'm your smart scheduling assistant. How can I help you schedule today?")
	for {
		input, err := userIO.Listen(ctx)
		if err != nil {
			if isTimeout(err) {
				userIO.Say("I didn't hear anything. Please try again.")
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			// Input stream ended (EOF or a broken reader).
			return nil
		}
		if input == "" {
			continue
		}
		if IsExitWord(input) {
			userIO.Say("Goodbye! Have a great day.")
			return nil
		}
		userIO.Say(c.HandleTurn(ctx, input))
	}
}

// HandleTurn processes one user turn and returns the assistant reply. All
// service failures are logged and converted to user-facing phrasing; no
// error crosses this boundary.
func (c *Controller) HandleTurn(ctx context.Context, input string) string {
	input = strings.TrimSpace(input)

	var reply string
	switch c.state {
	case StateSuggesting:
		reply = c.handleSuggestionReply(ctx, input)
	case StateResolvingConflict:
		reply = c.handleConflictReply(ctx, input)
	case StateConfirming:
		reply = c.handleConfirmationReply(ctx, input)
	case StateFollowUp:
		reply = c.handleFollowUpReply(ctx, input)
	default:
		reply = c.handleCollecting(ctx, input)
	}

	turn := domain.Turn{Input: input, Response: reply, At: c.now()}
	c.history = append(c.history, turn)
	if c.turnStore != nil {
		if err := c.turnStore.SaveTurn(ctx, c.conversationID, turn); err != nil {
			c.logger.Warn("failed to persist conversation turn", "err", err)
		}
	}
	return reply
}

// --- COLLECTING ---

func (c *Controller) handleCollecting(ctx context.Context, input string) string {
	if reply, ok := c.answerDirectQuery(input); ok {
		return reply
	}

	fields, err := c.extractFields(ctx, input)
	if err != nil {
		return c.apology(err)
	}
	if fields.empty() && len(c.request.MissingFields()) == 3 && !mentionsScheduling(input) {
		return c.smallTalk(ctx, input)
	}

	c.request.Merge(fields.toRequest())
	if missing := c.request.MissingFields(); len(missing) > 0 {
		return askForMissing(missing)
	}
	return c.advanceWithCompleteRequest(ctx)
}

// advanceWithCompleteRequest resolves the requested instant, offers a
// learned preference once per attempt, then moves on to conflict checking.
func (c *Controller) advanceWithCompleteRequest(ctx context.Context) string {
	instant, err := c.resolveRequestedInstant(ctx)
	switch {
	case errors.Is(err, schedule.ErrUnresolvableDay):
		c.request.Day = ""
		return "I couldn't pin down which day you mean. Which day should the meeting be on?"
	case errors.Is(err, schedule.ErrUnresolvableTime):
		c.request.Time = ""
		return "I couldn't work out the time of day. What time should the meeting start?"
	}

	duration := time.Duration(c.request.DurationMinutes(c.cfg.DefaultDuration)) * time.Minute
	c.requested = domain.TimeSlot{Start: instant, End: instant.Add(duration)}

	if !c.suggestionAsked && len(c.request.Attendees) > 0 {
		c.suggestionAsked = true
		if label, ok := c.prefs.Suggest(c.request.Attendees); ok && label != prefs.LabelFor(instant) {
			c.suggestion = label
			c.state = StateSuggesting
			return fmt.Sprintf("These attendees usually meet on %s. Should I aim for that instead of %s?",
				label, describeSlot(c.requested))
		}
	}
	return c.checkConflicts(ctx)
}

func (c *Controller) resolveRequestedInstant(ctx context.Context) (time.Time, error) {
	now := c.now()
	day, err := c.planner.ResolveDay(c.request.Day, now)
	if err != nil {
		ts, ok := c.resolveViaLLM(ctx, c.request.Day)
		if !ok {
			return time.Time{}, schedule.ErrUnresolvableDay
		}
		day = time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, c.planner.Loc)
	}
	hour, minute, err := schedule.ResolveTimeOfDay(c.request.Time)
	if err != nil {
		if ts, ok := c.resolveViaLLM(ctx, c.request.Day+" "+c.request.Time); ok {
			return ts, nil
		}
		return time.Time{}, schedule.ErrUnresolvableTime
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, c.planner.Loc), nil
}

// resolveViaLLM hands phrases the local resolver cannot parse ("after my
// 2pm meeting") to the language model. An "unknown" reply keeps the field
// missing.
func (c *Controller) resolveViaLLM(ctx context.Context, phrase string) (time.Time, bool) {
	raw, err := c.llm.Generate(ctx, c.cfg.Model, buildTimeResolutionMessages(phrase, c.now()))
	if err != nil {
		c.logger.Warn("llm time resolution failed", "phrase", phrase, "err", err)
		return time.Time{}, false
	}
	return parseResolvedTime(raw, c.planner.Loc)
}

// --- conflict checking ---

func (c *Controller) checkConflicts(ctx context.Context) string {
	day := c.requested.Start
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, c.planner.Loc)
	events, err := c.listEventsWithRetry(ctx, midnight, midnight.AddDate(0, 0, 1))
	if err != nil {
		return c.apology(err)
	}

	if !schedule.HasConflict(c.requested, events) {
		c.state = StateConfirming
		return c.confirmationPrompt()
	}

	narrow, startHour, endHour := false, 0, 0
	if c.request.TimeRange != "" {
		if s, e, ok := schedule.ParseHourRange(c.request.TimeRange); ok {
			narrow, startHour, endHour = true, s, e
		}
	}
	free, err := c.planner.FreeSlotsWithin(day, c.request.DurationMinutes(c.cfg.DefaultDuration), events, narrow, startHour, endHour)
	if err != nil {
		return c.apology(newError(ErrorInternal, "slot_search_error", err))
	}
	c.alternatives = schedule.RankAlternatives(free, c.requested.Start, c.cfg.MaxAlternatives)
	c.state = StateResolvingConflict

	if len(c.alternatives) == 0 {
		return fmt.Sprintf("%s overlaps an existing event and I couldn't find another free %d-minute slot that day. Say \"book it anyway\" to double-book, or \"cancel\".",
			describeSlot(c.requested), c.request.DurationMinutes(c.cfg.DefaultDuration))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s overlaps an existing event. The closest free times are:", describeSlot(c.requested))
	for i, s := range c.alternatives {
		fmt.Fprintf(&b, " %d) %s", i+1, s.Start.Format("3:04 PM"))
	}
	b.WriteString(". Pick one, say \"book it anyway\" to keep the original time, or \"cancel\".")
	return b.String()
}

func (c *Controller) listEventsWithRetry(ctx context.Context, from, to time.Time) ([]domain.CalendarEvent, error) {
	events, err := c.listEventsOnce(ctx, from, to)
	if err != nil {
		c.logger.Warn("calendar list failed, retrying once", "err", err)
		events, err = c.listEventsOnce(ctx, from, to)
		if err != nil {
			return nil, newError(ErrorUpstream, "calendar_list_error", err)
		}
	}
	return events, nil
}

// Each calendar call carries its own deadline; a hung service is a
// failure, never a stalled conversation.
func (c *Controller) listEventsOnce(ctx context.Context, from, to time.Time) ([]domain.CalendarEvent, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	return c.calendar.ListEvents(callCtx, from, to)
}

func (c *Controller) createEventOnce(ctx context.Context, title string) (domain.BookedEvent, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	return c.calendar.CreateEvent(callCtx, title, c.requested, c.request.Attendees)
}

// --- SUGGESTING ---

func (c *Controller) handleSuggestionReply(ctx context.Context, input string) string {
	if isAffirmative(input) {
		if day, clock, ok := prefs.SplitLabel(c.suggestion); ok {
			// Suggestion labels are machine-written ("Tuesday 10:00"),
			// so the local resolver always handles them.
			if instant, err := c.planner.ResolveInstant(day, clock, c.now()); err == nil {
				c.request.Day = day
				c.request.Time = clock
				duration := time.Duration(c.request.DurationMinutes(c.cfg.DefaultDuration)) * time.Minute
				c.requested = domain.TimeSlot{Start: instant, End: instant.Add(duration)}
			}
		}
	}
	// A negative or unrelated answer keeps the original request; either
	// way the attempt advances to conflict checking.
	c.suggestion = ""
	return c.checkConflicts(ctx)
}

// --- RESOLVING_CONFLICT ---

func (c *Controller) handleConflictReply(ctx context.Context, input string) string {
	if wantsForcedBooking(input) {
		// Explicitly forcing the original time double-books; the
		// controller never silently swaps in a free slot.
		c.forced = true
		c.state = StateConfirming
		return c.confirmationPrompt()
	}
	if isNegative(input) {
		c.resetAttempt()
		return "Okay, I've dropped that request. What else can I help you schedule?"
	}

	idx := parseAlternativeChoice(input, c.alternatives)
	if idx < 0 {
		if len(c.alternatives) == 0 {
			return "Say \"book it anyway\" to double-book the original time, or \"cancel\"."
		}
		var b strings.Builder
		b.WriteString("Sorry, I didn't catch which option you want. The choices are:")
		for i, s := range c.alternatives {
			fmt.Fprintf(&b, " %d) %s", i+1, s.Start.Format("3:04 PM"))
		}
		b.WriteString(". You can also say \"book it anyway\" or \"cancel\".")
		return b.String()
	}

	c.requested = c.alternatives[idx]
	c.request.Day = c.requested.Start.Format("2006-01-02")
	c.request.Time = c.requested.Start.Format("15:04")
	c.forced = false
	c.state = StateConfirming
	return c.confirmationPrompt()
}

// parseAlternativeChoice maps a free-text reply onto an alternative index,
// or -1 when no unambiguous selection can be made.
func parseAlternativeChoice(input string, alternatives []domain.TimeSlot) int {
	if len(alternatives) == 0 {
		return -1
	}
	norm := strings.ToLower(strings.TrimSpace(input))

	if isAffirmative(norm) && len(alternatives) == 1 {
		return 0
	}

	ordinals := map[string]int{
		"1": 0, "one": 0, "first": 0,
		"2": 1, "two": 1, "second": 1,
		"3": 2, "three": 2, "third": 2,
	}
	for _, token := range strings.FieldsFunc(norm, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '!' || r == '?'
	}) {
		if idx, ok := ordinals[token]; ok {
			if idx < len(alternatives) {
				return idx
			}
			return -1
		}
	}

	// "yes to 3pm": match a time mention against the alternatives.
	for _, token := range timeTokens(norm) {
		hour, minute, err := schedule.ResolveTimeOfDay(token)
		if err != nil {
			continue
		}
		for i, s := range alternatives {
			if s.Start.Hour() == hour && s.Start.Minute() == minute {
				return i
			}
		}
	}
	return -1
}

var timeTokenRe = regexp.MustCompile(`\d{1,2}(?::\d{2})?\s*(?:am|pm)|\d{1,2}:\d{2}`)

func timeTokens(s string) []string {
	return timeTokenRe.FindAllString(s, -1)
}

// --- CONFIRMING_BOOKING ---

func (c *Controller) handleConfirmationReply(ctx context.Context, input string) string {
	if isAffirmative(input) {
		return c.book(ctx)
	}
	if isNegative(input) {
		c.resetAttempt()
		return "Okay, I won't book it. What else can I help you with?"
	}

	// Anything else is reprocessed as a fresh collecting turn so the user
	// can still change fields, with a cap so the same ambiguous reply
	// cannot cycle forever.
	c.noProgress++
	if c.noProgress >= maxUnrecognizedReplies {
		c.resetAttempt()
		return "I still couldn't tell whether to book that meeting, so I've set it aside. Tell me again when you'd like to schedule it."
	}
	c.state = StateCollecting
	before := c.request
	reply := c.handleCollecting(ctx, input)
	// A reply that changed the record made progress; only truly stalled
	// turns count toward the cap.
	if !c.request.Equal(before) {
		c.noProgress = 0
	}
	return reply
}

func (c *Controller) book(ctx context.Context) string {
	if !c.request.Complete() {
		// Guarded by construction; a confirmation can only be reached
		// with a complete record.
		c.logger.Error("booking requested with incomplete record",
			"err", newError(ErrorInvalidInput, "incomplete_request", nil))
		c.resetAttempt()
		return "Something went wrong with that request, let's start over. What would you like to schedule?"
	}

	title := c.request.Title
	booked, err := c.createEventOnce(ctx, title)
	if err != nil {
		c.logger.Warn("calendar create failed, retrying once", "err", err)
		booked, err = c.createEventOnce(ctx, title)
		if err != nil {
			// State is unchanged: the user can confirm again or cancel.
			return c.apology(newError(ErrorUpstream, "calendar_create_error", err))
		}
	}

	// Preferences update only after the booking call succeeded.
	if len(c.request.Attendees) > 0 {
		if err := c.prefs.Record(ctx, c.request.Attendees, prefs.LabelFor(c.requested.Start)); err != nil {
			c.logger.Warn("failed to record meeting preference", "err", err)
		}
	}

	c.lastBooked = booked
	c.state = StateFollowUp
	c.noProgress = 0

	msg := fmt.Sprintf("Done! I've booked %s on %s for %d minutes.",
		describeTitle(title), describeSlot(c.requested), c.request.DurationMinutes(c.cfg.DefaultDuration))
	if booked.MeetLink != "" {
		msg += " Here's your Meet link: " + booked.MeetLink + "."
	}
	msg += " Would you like to invite anyone else, or is there anything about reminders?"
	return msg
}

// --- follow-up after booking ---

var emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

func (c *Controller) handleFollowUpReply(ctx context.Context, input string) string {
	defer c.resetAttempt()

	if emails := emailRe.FindAllString(input, -1); len(emails) > 0 && c.lastBooked.ID != "" {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
		if err := c.calendar.AddAttendees(callCtx, c.lastBooked.ID, emails); err != nil {
			c.logger.Warn("failed to add attendees after booking", "err", err)
			return "I couldn't update the invite just now, sorry. Anything else I can schedule?"
		}
		return fmt.Sprintf("Invited %s as well. Anything else I can schedule?", strings.Join(emails, ", "))
	}
	if strings.Contains(strings.ToLower(input), "remind") {
		return "Reminders are already set: an email a day before and a popup 30 minutes ahead. Anything else I can schedule?"
	}
	return "Great, you're all set. Anything else I can schedule?"
}

// --- shared helpers ---

// extractFields calls the LLM extraction once with a single retry on
// upstream failure. A malformed response counts as "no new information".
func (c *Controller) extractFields(ctx context.Context, input string) (extractedFields, error) {
	messages := buildExtractionMessages(input, c.history, c.now())
	raw, err := c.llm.GenerateJSON(ctx, c.cfg.Model, messages, extractionSchema)
	if err != nil {
		c.logger.Warn("extraction call failed, retrying once", "err", err)
		raw, err = c.llm.GenerateJSON(ctx, c.cfg.Model, messages, extractionSchema)
		if err != nil {
			if status, ok := upstreamStatusCode(err); ok && status == 429 {
				return extractedFields{}, newError(ErrorRateLimited, "extraction_rate_limited", err)
			}
			return extractedFields{}, newError(ErrorUpstream, "extraction_error", err)
		}
	}
	fields, perr := parseExtractedFields(raw)
	if perr != nil {
		c.logger.Warn("extraction returned malformed fields", "err", perr)
		return extractedFields{}, nil
	}
	return fields, nil
}

func (c *Controller) smallTalk(ctx context.Context, input string) string {
	reply, err := c.llm.Generate(ctx, c.cfg.Model, buildChatterMessages(input, c.history, c.now()))
	if err != nil {
		return c.apology(newError(ErrorUpstream, "completion_error", err))
	}
	return strings.TrimSpace(reply)
}

func (c *Controller) answerDirectQuery(input string) (string, bool) {
	l := strings.ToLower(input)
	if mentionsScheduling(l) {
		return "", false
	}
	now := c.now().In(c.planner.Loc)
	if strings.Contains(l, "time now") || strings.Contains(l, "current time") || strings.Contains(l, "what time is it") {
		return fmt.Sprintf("The current time is %s.", now.Format("3:04 PM")), true
	}
	if strings.Contains(l, "today") && (strings.Contains(l, "what") || strings.Contains(l, "date")) {
		return fmt.Sprintf("Today is %s.", now.Format("Monday, January 2, 2006")), true
	}
	return "", false
}

func (c *Controller) confirmationPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "To confirm: %s on %s for %d minutes",
		describeTitle(c.request.Title), describeSlot(c.requested), c.request.DurationMinutes(c.cfg.DefaultDuration))
	if len(c.request.Attendees) > 0 {
		fmt.Fprintf(&b, " with %s", strings.Join(c.request.Attendees, ", "))
	}
	b.WriteString(".")
	if c.forced {
		b.WriteString(" It overlaps an existing event, so you'd be double-booked.")
	}
	b.WriteString(" Shall I book it?")
	if c.noProgress > 0 {
		b.WriteString(" Please answer yes or no.")
	}
	return b.String()
}

func (c *Controller) apology(err error) string {
	c.logger.Error("service failure during turn", "state", c.state.String(), "err", err)
	var ucErr *Error
	if errors.As(err, &ucErr) && ucErr.Code == ErrorRateLimited {
		return "I'm being rate limited by my language service. Give me a moment and try again."
	}
	return "Sorry, I'm having trouble reaching my services right now. Could you try that again?"
}

// resetAttempt clears everything belonging to one booking attempt. The
// conversation (and its language) carries on.
func (c *Controller) resetAttempt() {
	c.request.Reset()
	c.requested = domain.TimeSlot{}
	c.forced = false
	c.suggestion = ""
	c.suggestionAsked = false
	c.alternatives = nil
	c.lastBooked = domain.BookedEvent{}
	c.noProgress = 0
	c.state = StateCollecting
}

func askForMissing(missing []string) string {
	named := make([]string, len(missing))
	for i, m := range missing {
		named[i] = "the " + m
	}
	var list string
	switch len(named) {
	case 1:
		list = named[0]
	case 2:
		list = named[0] + " and " + named[1]
	default:
		list = strings.Join(named[:len(named)-1], ", ") + ", and " + named[len(named)-1]
	}
	return fmt.Sprintf("I can set that up. Could you tell me %s for the meeting?", list)
}

func describeSlot(slot domain.TimeSlot) string {
	return slot.Start.Format("Monday, January 2 at 3:04 PM")
}

func describeTitle(title string) string {
	if title == "" {
		return "the meeting"
	}
	return fmt.Sprintf("%q", title)
}

func mentionsScheduling(s string) bool {
	l := strings.ToLower(s)
	for _, w := range []string{"schedule", "meeting", "appointment", "book", "call"} {
		if strings.Contains(l, w) {
			return true
		}
	}
	return false
}

func isAffirmative(s string) bool {
	norm := normalizeReply(s)
	switch norm {
	case "yes", "y", "yeah", "yep", "yup", "sure", "ok", "okay", "confirm", "go ahead", "please do", "sounds good", "do it":
		return true
	}
	return strings.HasPrefix(norm, "yes ") || strings.HasPrefix(norm, "yes,")
}

func isNegative(s string) bool {
	norm := normalizeReply(s)
	switch norm {
	case "no", "n", "nope", "nah", "cancel", "no thanks", "no thank you", "dont", "do not", "none", "neither":
		return true
	}
	return strings.HasPrefix(norm, "no ") || strings.HasPrefix(norm, "no,")
}

func wantsForcedBooking(s string) bool {
	l := strings.ToLower(s)
	for _, w := range []string{"anyway", "force", "double", "keep the original", "keep my time", "original time"} {
		if strings.Contains(l, w) {
			return true
		}
	}
	return false
}

func normalizeReply(s string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(s), ".!?"))
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

type timeouter interface {
	Timeout() bool
}

func isTimeout(err error) bool {
	var t timeouter
	return errors.As(err, &t) && t.Timeout()
}
