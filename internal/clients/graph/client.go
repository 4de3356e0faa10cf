package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/tazhate/outlookcal/internal/dates"
)

const (
	BaseURL = "https://graph.microsoft.com/v1.0"

	// pageSize is the maximum events per calendar view page.
	pageSize = 1000

	// DefaultHorizonDays bounds the past and future fetch windows.
	DefaultHorizonDays = 365
)

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("graph error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("graph error %d: %s", e.StatusCode, e.Message)
}

// Client is a Microsoft Graph calendar client. One client is constructed
// per signed-in session and injected where needed; it performs no retries
// and caches nothing.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     oauth2.TokenSource

	// now is swapped in tests to pin the fetch windows.
	now func() time.Time
}

// NewClient creates a client that authorizes requests with tokens from ts.
func NewClient(ts oauth2.TokenSource) *Client {
	return &Client{
		baseURL: BaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		tokens: ts,
		now:    time.Now,
	}
}

// SetBaseURL points the client at a different endpoint. Used in tests.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = strings.TrimRight(u, "/")
}

func preferTimezone(tz string) string {
	return fmt.Sprintf("outlook.timezone=%q", tz)
}

// doRequest performs an authorized request against an absolute or
// service-relative URL and returns the raw response body.
func (c *Client) doRequest(ctx context.Context, method, rawURL string, prefer string, body interface{}) ([]byte, error) {
	if strings.HasPrefix(rawURL, "/") {
		rawURL = c.baseURL + rawURL
	}

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	tok, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	tok.SetAuthHeader(req)

	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
		var envelope apiError
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Error.Message != "" {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return nil, apiErr
	}

	return respBody, nil
}

// GetMe returns the signed-in user's profile and mailbox settings.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	path := "/me?$select=" + url.QueryEscape("displayName,mail,mailboxSettings,userPrincipalName")
	data, err := c.doRequest(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}

	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &user, nil
}

// CalendarView returns all events between start and end, ordered by start
// time ascending. Pagination is followed transparently: the caller always
// sees one flattened slice, however many pages the service returns.
func (c *Client) CalendarView(ctx context.Context, start, end time.Time, tz string) ([]Event, error) {
	q := url.Values{}
	q.Set("startDateTime", dates.FormatInstant(start))
	q.Set("endDateTime", dates.FormatInstant(end))
	q.Set("$select", "id,subject,start,end,isAllDay")
	q.Set("$orderby", "start/dateTime")
	q.Set("$top", fmt.Sprintf("%d", pageSize))

	next := "/me/calendarview?" + q.Encode()
	prefer := preferTimezone(tz)

	var events []Event
	for next != "" {
		data, err := c.doRequest(ctx, http.MethodGet, next, prefer, nil)
		if err != nil {
			return nil, err
		}

		var page eventsPage
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("unmarshal calendar view: %w", err)
		}

		events = append(events, page.Value...)
		next = page.NextLink
	}

	return events, nil
}

// FetchWeek returns the events of the current Sunday-to-Sunday week.
func (c *Client) FetchWeek(ctx context.Context, tz string) ([]Event, error) {
	loc, err := dates.LoadLocation(tz)
	if err != nil {
		return nil, err
	}
	w := dates.WeekWindow(c.now(), loc)
	return c.CalendarView(ctx, w.Start, w.End, tz)
}

// FetchPast returns events from horizonDays back up to the start of the
// current week. The window abuts the week window without overlapping it.
func (c *Client) FetchPast(ctx context.Context, tz string, horizonDays int) ([]Event, error) {
	loc, err := dates.LoadLocation(tz)
	if err != nil {
		return nil, err
	}
	w := dates.PastWindow(c.now(), loc, horizonDays)
	return c.CalendarView(ctx, w.Start, w.End, tz)
}

// FetchFuture returns events from the end of the current week out to
// horizonDays ahead.
func (c *Client) FetchFuture(ctx context.Context, tz string, horizonDays int) ([]Event, error) {
	loc, err := dates.LoadLocation(tz)
	if err != nil {
		return nil, err
	}
	w := dates.FutureWindow(c.now(), loc, horizonDays)
	return c.CalendarView(ctx, w.Start, w.End, tz)
}

// CreateEvent persists a new event and returns the service's version of
// it, including the assigned id.
func (c *Client) CreateEvent(ctx context.Context, ev *Event, tz string) (*Event, error) {
	data, err := c.doRequest(ctx, http.MethodPost, "/me/events", preferTimezone(tz), ev)
	if err != nil {
		return nil, err
	}

	var created Event
	if err := json.Unmarshal(data, &created); err != nil {
		return nil, fmt.Errorf("unmarshal created event: %w", err)
	}
	return &created, nil
}

// UpdateEvent applies ev on top of the stored event with the given id and
// returns the updated version.
func (c *Client) UpdateEvent(ctx context.Context, id string, ev *Event, tz string) (*Event, error) {
	data, err := c.doRequest(ctx, http.MethodPatch, "/me/events/"+url.PathEscape(id), preferTimezone(tz), ev)
	if err != nil {
		return nil, err
	}

	var updated Event
	if err := json.Unmarshal(data, &updated); err != nil {
		return nil, fmt.Errorf("unmarshal updated event: %w", err)
	}
	return &updated, nil
}

// DeleteEvent removes the event with the given id.
func (c *Client) DeleteEvent(ctx context.Context, id string, tz string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, "/me/events/"+url.PathEscape(id), preferTimezone(tz), nil)
	return err
}
