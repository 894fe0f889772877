package usecase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pranav271103/smart-scheduler-ai-agent/internal/domain"
)

// extractedFields is the JSON shape the extraction prompt asks for. Every
// field is optional; the model is instructed to omit anything it is not
// confident about rather than guess.
type extractedFields struct {
	Title           string   `json:"title"`
	DurationMinutes int      `json:"duration_minutes"`
	Day             string   `json:"day"`
	Time            string   `json:"time"`
	TimeRange       string   `json:"time_range"`
	Attendees       []string `json:"attendees"`
}

// extractionSchema constrains the structured-output mode of the LLM.
var extractionSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"title": {"type": "string"},
		"duration_minutes": {"type": "integer"},
		"day": {"type": "string"},
		"time": {"type": "string"},
		"time_range": {"type": "string"},
		"attendees": {"type": "array", "items": {"type": "string"}}
	}
}`)

func buildExtractionMessages(input string, history []domain.Turn, now time.Time) []domain.ChatMessage {
	messages := []domain.ChatMessage{
		{Role: "system", Content: extractionPolicy(now)},
	}
	for _, t := range domain.RecentTurns(history, recentTurnContext) {
		messages = append(messages,
			domain.ChatMessage{Role: "user", Content: t.Input},
			domain.ChatMessage{Role: "assistant", Content: t.Response},
		)
	}
	messages = append(messages, domain.ChatMessage{Role: "user", Content: input})
	return messages
}

func extractionPolicy(now time.Time) string {
	return strings.Join([]string{
		"Role:",
		"You extract meeting attributes from one user message in a scheduling conversation.",
		"",
		fmt.Sprintf("Current date: %s (%s). Timezone: %s.", now.Format("2006-01-02"), now.Weekday(), now.Location()),
		"",
		"Fields:",
		"- title: the meeting subject",
		"- duration_minutes: whole minutes",
		"- day: the day reference exactly as said (\"tomorrow\", \"next tuesday\", \"2026-09-03\")",
		"- time: the time of day as said (\"2pm\", \"14:30\")",
		"- time_range: an hour constraint like \"9-12\" if the user limited the search",
		"- attendees: email addresses only",
		"",
		"Behavior Rules:",
		"1) Include a field only when the message (with the conversation context) clearly states it.",
		"2) Never guess a missing field; omit it instead.",
		"3) Resolve references like \"same time as before\" from the conversation context.",
		"",
		"Output Contract:",
		"Return JSON only, with the subset of fields you are confident about.",
	}, "\n")
}

// parseExtractedFields strictly decodes the extraction response. Any decode
// failure means "no new information", never a hard error for the caller.
func parseExtractedFields(raw string) (extractedFields, error) {
	var out extractedFields
	dec := json.NewDecoder(bytes.NewBufferString(strings.TrimSpace(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return extractedFields{}, fmt.Errorf("usecase: decode extracted fields: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return extractedFields{}, errors.New("usecase: decode extracted fields: multiple JSON values")
		}
		return extractedFields{}, fmt.Errorf("usecase: decode extracted fields trailing data: %w", err)
	}
	return out, nil
}

func (e extractedFields) toRequest() domain.MeetingRequest {
	req := domain.MeetingRequest{
		Title:     strings.TrimSpace(e.Title),
		Day:       strings.TrimSpace(e.Day),
		Time:      strings.TrimSpace(e.Time),
		TimeRange: strings.TrimSpace(e.TimeRange),
	}
	if e.DurationMinutes > 0 {
		d := e.DurationMinutes
		req.Duration = &d
	}
	for _, a := range e.Attendees {
		req.AddAttendee(a)
	}
	return req
}

func (e extractedFields) empty() bool {
	return e.Title == "" && e.DurationMinutes == 0 && e.Day == "" &&
		e.Time == "" && e.TimeRange == "" && len(e.Attendees) == 0
}

// buildTimeResolutionMessages asks the LLM to pin down a relative phrase
// the local resolver could not handle ("after my 2pm meeting", "last
// weekday of this month").
func buildTimeResolutionMessages(phrase string, now time.Time) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: "system", Content: strings.Join([]string{
			"Interpret a time reference and return only the resolved date/time.",
			fmt.Sprintf("Current date: %s. Timezone: %s.", now.Format("2006-01-02"), now.Location()),
			"Consider relative dates, event-based references, calendar logic and time buffers.",
			"Return ONLY the resolved date/time in RFC 3339 format, or the single word \"unknown\".",
		}, "\n")},
		{Role: "user", Content: phrase},
	}
}

// parseResolvedTime accepts the time-resolution reply. "unknown" (or
// anything unparseable) resolves to ok=false, keeping the field missing.
func parseResolvedTime(raw string, loc *time.Location) (time.Time, bool) {
	raw = strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), "\"`"))
	if raw == "" || strings.EqualFold(raw, "unknown") {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts.In(loc), true
}

// buildChatterMessages phrases a reply for input that is not a scheduling
// request, grounded in the recent conversation.
func buildChatterMessages(input string, history []domain.Turn, now time.Time) []domain.ChatMessage {
	messages := []domain.ChatMessage{
		{Role: "system", Content: strings.Join([]string{
			"You are a concise, friendly meeting-scheduling assistant.",
			fmt.Sprintf("Current date: %s (%s). Timezone: %s.", now.Format("2006-01-02"), now.Weekday(), now.Location()),
			"Answer briefly and steer the user toward scheduling when it helps.",
		}, "\n")},
	}
	for _, t := range domain.RecentTurns(history, recentTurnContext) {
		messages = append(messages,
			domain.ChatMessage{Role: "user", Content: t.Input},
			domain.ChatMessage{Role: "assistant", Content: t.Response},
		)
	}
	return append(messages, domain.ChatMessage{Role: "user", Content: input})
}
