// Package gcal wraps the Google Calendar API behind the narrow read/write
// surface the dialogue controller needs: list a day's events, create an
// event with a Meet link, patch attendees onto an existing event.
package gcal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/pranav271103/smart-scheduler-ai-agent/internal/domain"
)

// Client provides an authenticated Google Calendar client bound to one
// calendar and one timezone.
type Client struct {
	service    *calendar.Service
	logger     *slog.Logger
	calendarID string
	loc        *time.Location
}

// NewClient loads the stored OAuth token and builds the calendar service.
// A missing or invalid token is an authentication failure the caller
// treats as fatal; it cannot be recovered mid-conversation.
func NewClient(ctx context.Context, logger *slog.Logger, clientID, clientSecret, tokenFile, calendarID string, loc *time.Location) (*Client, error) {
	config, err := OAuthConfig(clientID, clientSecret)
	if err != nil {
		return nil, fmt.Errorf("gcal: oauth config: %w", err)
	}
	token, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("gcal: load token %s: %w (run the 'auth' command first)", tokenFile, err)
	}
	httpClient := config.Client(ctx, token)
	// The oauth2 client ships without a timeout; a hung API call must
	// fail rather than block the conversation.
	httpClient.Timeout = 30 * time.Second
	service, err := calendar.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("gcal: create calendar service: %w", err)
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	return &Client{service: service, logger: logger, calendarID: calendarID, loc: loc}, nil
}

// ListEvents fetches the events between from and to, ordered by start time.
func (c *Client) ListEvents(ctx context.Context, from, to time.Time) ([]domain.CalendarEvent, error) {
	out, err := c.service.Events.List(c.calendarID).
		Context(ctx).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		OrderBy("startTime").
		Do()
	if err != nil {
		return nil, fmt.Errorf("gcal: list events: %w", err)
	}
	events := c.toDomainEvents(out.Items)
	c.logger.Debug("fetched calendar events", "count", len(events), "from", from, "to", to)
	return events, nil
}

// CreateEvent books the slot with a Google Meet conference attached and
// the standard reminder overrides (email a day ahead, popup 30 minutes).
func (c *Client) CreateEvent(ctx context.Context, summary string, slot domain.TimeSlot, attendees []string) (domain.BookedEvent, error) {
	if summary == "" {
		summary = "Meeting"
	}
	ev := &calendar.Event{
		Summary: summary,
		Start:   &calendar.EventDateTime{DateTime: slot.Start.Format(time.RFC3339), TimeZone: c.loc.String()},
		End:     &calendar.EventDateTime{DateTime: slot.End.Format(time.RFC3339), TimeZone: c.loc.String()},
		ConferenceData: &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId:             uuid.NewString(),
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		},
		Reminders: &calendar.EventReminders{
			UseDefault:      false,
			ForceSendFields: []string{"UseDefault"},
			Overrides: []*calendar.EventReminder{
				{Method: "email", Minutes: 24 * 60},
				{Method: "popup", Minutes: 30},
			},
		},
	}
	for _, email := range attendees {
		ev.Attendees = append(ev.Attendees, &calendar.EventAttendee{Email: email})
	}

	created, err := c.service.Events.Insert(c.calendarID, ev).
		Context(ctx).
		ConferenceDataVersion(1).
		Do()
	if err != nil {
		return domain.BookedEvent{}, fmt.Errorf("gcal: insert event: %w", err)
	}
	c.logger.Info("created calendar event", "id", created.Id, "start", slot.Start)
	return domain.BookedEvent{
		ID:       created.Id,
		HTMLLink: created.HtmlLink,
		MeetLink: created.HangoutLink,
	}, nil
}

// AddAttendees patches additional attendees onto an already-created event,
// used by the post-booking follow-up turn.
func (c *Client) AddAttendees(ctx context.Context, eventID string, emails []string) error {
	if eventID == "" {
		return errors.New("gcal: event id is required")
	}
	if len(emails) == 0 {
		return nil
	}
	existing, err := c.service.Events.Get(c.calendarID, eventID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gcal: get event %s: %w", eventID, err)
	}
	attendees := existing.Attendees
	for _, email := range emails {
		attendees = append(attendees, &calendar.EventAttendee{Email: email})
	}
	_, err = c.service.Events.Patch(c.calendarID, eventID, &calendar.Event{Attendees: attendees}).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("gcal: patch event %s: %w", eventID, err)
	}
	return nil
}

// toDomainEvents converts API events to the internal shape. All-day events
// carry no dateTime and are skipped; overlap testing only concerns timed
// events inside the working window.
func (c *Client) toDomainEvents(items []*calendar.Event) []domain.CalendarEvent {
	var events []domain.CalendarEvent
	for _, item := range items {
		if item.Start == nil || item.End == nil || item.Start.DateTime == "" || item.End.DateTime == "" {
			continue
		}
		start, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			c.logger.Warn("skipping event with unparseable start", "id", item.Id, "err", err)
			continue
		}
		end, err := time.Parse(time.RFC3339, item.End.DateTime)
		if err != nil {
			c.logger.Warn("skipping event with unparseable end", "id", item.Id, "err", err)
			continue
		}
		events = append(events, domain.CalendarEvent{
			Start:   start.In(c.loc),
			End:     end.In(c.loc),
			Summary: item.Summary,
		})
	}
	return events
}

// OAuthConfig returns the OAuth2 config for the desktop-app flow, from
// either explicit client credentials or a local credentials.json.
func OAuthConfig(clientID, clientSecret string) (*oauth2.Config, error) {
	if clientID != "" && clientSecret != "" {
		return &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
			Scopes:       []string{calendar.CalendarScope},
			Endpoint:     google.Endpoint,
		}, nil
	}
	b, err := os.ReadFile("credentials.json")
	if err != nil {
		return nil, errors.New("gcal: provide GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET or place credentials.json in the working directory")
	}
	config, err := google.ConfigFromJSON(b, calendar.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("gcal: parse credentials.json: %w", err)
	}
	config.RedirectURL = "urn:ietf:wg:oauth:2.0:oob"
	return config, nil
}

// ExchangeAuthCode completes the web flow with the code the user pasted.
func ExchangeAuthCode(ctx context.Context, config *oauth2.Config, authCode string) (*oauth2.Token, error) {
	return config.Exchange(ctx, authCode)
}

// SaveToken writes a token to the given path.
func SaveToken(path string, token *oauth2.Token) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("gcal: create token file: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}
