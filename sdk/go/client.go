package permitlinesdk

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
)

// Client is a minimal Permitline HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Permit represents the API permit model (partial).
type Permit struct {
	ID              string `json:"id"`
	OwnerID         string `json:"owner_id"`
	ApplicationRef  string `json:"application_ref"`
	PropertyAddress string `json:"property_address"`
	Postcode        string `json:"postcode"`
	Type            string `json:"type"`
	Status          string `json:"status"`
	CurrentStage    string `json:"current_stage"`
}

// Deadline is one upcoming-deadline row in a summary.
type Deadline struct {
	PermitID       string `json:"permit_id"`
	ApplicationRef string `json:"application_ref"`
	Kind           string `json:"kind"`
	Description    string `json:"description"`
	Date           string `json:"date"`
}

// Summary represents the portfolio summary.
type Summary struct {
	Total             int            `json:"total"`
	StatusCounts      map[string]int `json:"status_counts"`
	TypeCounts        map[string]int `json:"type_counts"`
	AvgProcessingDays int            `json:"avg_processing_days"`
	SuccessRate       int            `json:"success_rate"`
	PendingDecision   int            `json:"pending_decision"`
	UpcomingDeadlines []Deadline     `json:"upcoming_deadlines"`
}

// TimelineEvent is one row of a permit's chronological projection.
type TimelineEvent struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreatePermit creates a permit in draft.
func (c *Client) CreatePermit(ctx context.Context, address, postcode, permitType string) (Permit, error) {
	body := map[string]any{
		"property_address": address,
		"postcode":         postcode,
		"type":             permitType,
	}
	var resp Permit
	err := c.do(ctx, http.MethodPost, c.apiPath("permits"), body, &resp)
	return resp, err
}

// GetPermit fetches a permit by id.
func (c *Client) GetPermit(ctx context.Context, id string) (Permit, error) {
	var resp Permit
	err := c.do(ctx, http.MethodGet, c.apiPath("permits/"+url.PathEscape(id)), nil, &resp)
	return resp, err
}

// ListPermits returns the caller's permits.
func (c *Client) ListPermits(ctx context.Context) ([]Permit, error) {
	var resp []Permit
	err := c.do(ctx, http.MethodGet, c.apiPath("permits"), nil, &resp)
	return resp, err
}

// UpdateStatus moves a permit to a new status.
func (c *Client) UpdateStatus(ctx context.Context, id, status, note string) (Permit, error) {
	body := map[string]any{"status": status}
	if note != "" {
		body["note"] = note
	}
	var resp Permit
	endpoint := c.apiPath(fmt.Sprintf("permits/%s/status", url.PathEscape(id)))
	err := c.do(ctx, http.MethodPatch, endpoint, body, &resp)
	return resp, err
}

// Summary returns the caller's portfolio summary.
func (c *Client) Summary(ctx context.Context) (Summary, error) {
	var resp Summary
	err := c.do(ctx, http.MethodGet, c.apiPath("summary"), nil, &resp)
	return resp, err
}

// Timeline returns a permit's merged chronology.
func (c *Client) Timeline(ctx context.Context, id string) ([]TimelineEvent, error) {
	var resp []TimelineEvent
	endpoint := c.apiPath(fmt.Sprintf("permits/%s/timeline", url.PathEscape(id)))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent audit log entries.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := c.apiPath("events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) apiPath(p string) string {
	return "v1/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
