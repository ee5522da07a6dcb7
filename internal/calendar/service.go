// Package calendar lists a user's Google Calendar events using the refresh
// token stored at login.
package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"yakssok-api/internal/model"
	"yakssok-api/internal/store"
)

const (
	eventsURL = "https://www.googleapis.com/calendar/v3/calendars/primary/events"
	// trimmed to what the frontend renders
	eventFields = "items(id,status,summary,description,location,start,end,htmlLink,organizer,creator,attendees,updated),nextPageToken"

	DefaultMaxResults = 50
	MaxMaxResults     = 250
)

var ErrInvalidParams = errors.New("calendar: invalid parameters")

type Users interface {
	UserByID(ctx context.Context, id string) (*model.User, error)
}

type Opener interface {
	Open(sealed string) (string, error)
}

type TokenSourcer interface {
	TokenSource(ctx context.Context, refreshToken string) oauth2.TokenSource
	HTTPClient() *http.Client
}

type ListParams struct {
	TimeMin    *time.Time
	TimeMax    *time.Time
	MaxResults int
	PageToken  string
}

type Page struct {
	Events        []json.RawMessage `json:"events"`
	NextPageToken string            `json:"nextPageToken,omitempty"`
}

type Service struct {
	users     Users
	sealer    Opener
	google    TokenSourcer
	timeZone  string
	eventsURL string
}

type Option func(*Service)

func WithEventsURL(u string) Option {
	return func(s *Service) { s.eventsURL = u }
}

func NewService(users Users, sealer Opener, google TokenSourcer, timeZone string, opts ...Option) *Service {
	s := &Service{
		users:     users,
		sealer:    sealer,
		google:    google,
		timeZone:  timeZone,
		eventsURL: eventsURL,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AccessToken exchanges the user's stored grant for a fresh access token.
// A missing grant is CodeScopeMissing; a grant Google rejects is
// CodeRefreshFailed.
func (s *Service) AccessToken(ctx context.Context, userID string) (string, error) {
	u, err := s.users.UserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return "", scopeMissing(err)
	}
	if err != nil {
		return "", fmt.Errorf("loading user: %w", err)
	}
	if u.GoogleRefreshToken == "" {
		return "", scopeMissing(nil)
	}
	refresh, err := s.sealer.Open(u.GoogleRefreshToken)
	if err != nil {
		return "", scopeMissing(err)
	}

	tok, err := s.google.TokenSource(ctx, refresh).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.ErrorCode == "invalid_grant" {
			return "", &AuthError{Code: CodeRefreshFailed, Status: http.StatusUnauthorized, Err: err}
		}
		return "", &ProviderError{Err: fmt.Errorf("refreshing access token: %w", err)}
	}
	return tok.AccessToken, nil
}

// ListEvents returns one page of the user's primary calendar, with events
// passed through untouched.
func (s *Service) ListEvents(ctx context.Context, userID string, p ListParams) (*Page, error) {
	if p.MaxResults == 0 {
		p.MaxResults = DefaultMaxResults
	}
	if p.MaxResults < 1 || p.MaxResults > MaxMaxResults {
		return nil, fmt.Errorf("%w: max_results must be between 1 and %d", ErrInvalidParams, MaxMaxResults)
	}
	if p.TimeMin != nil && p.TimeMax != nil && !p.TimeMax.After(*p.TimeMin) {
		return nil, fmt.Errorf("%w: time_max must be after time_min", ErrInvalidParams)
	}

	access, err := s.AccessToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.listPrimaryEvents(ctx, access, p)
}

func (s *Service) listPrimaryEvents(ctx context.Context, access string, p ListParams) (*Page, error) {
	q := url.Values{}
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")
	q.Set("timeZone", s.timeZone)
	q.Set("maxResults", strconv.Itoa(p.MaxResults))
	q.Set("fields", eventFields)
	if p.TimeMin != nil {
		q.Set("timeMin", p.TimeMin.Format(time.RFC3339))
	}
	if p.TimeMax != nil {
		q.Set("timeMax", p.TimeMax.Format(time.RFC3339))
	}
	if p.PageToken != "" {
		q.Set("pageToken", p.PageToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.eventsURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+access)

	resp, err := s.google.HTTPClient().Do(req)
	if err != nil {
		return nil, &ProviderError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &ProviderError{Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, classify(resp.StatusCode, body)
	}

	var raw struct {
		Items         []json.RawMessage `json:"items"`
		NextPageToken string            `json:"nextPageToken"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ProviderError{Status: resp.StatusCode, Err: err}
	}
	page := &Page{Events: raw.Items, NextPageToken: raw.NextPageToken}
	if page.Events == nil {
		page.Events = []json.RawMessage{}
	}
	return page, nil
}
