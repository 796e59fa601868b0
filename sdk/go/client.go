package peopleopssdk

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

// Client is a minimal PeopleOps HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BearerToken: token,
		Timeout:     10 * time.Second,
	}
}

// Request is one entry of the approval queue.
type Request struct {
	Kind        string `json:"kind"`
	ID          string `json:"id"`
	Title       string `json:"title"`
	SubmittedBy string `json:"submitted_by"`
	Summary     string `json:"summary"`
	Status      string `json:"status"`
}

// SourceStatus reports how one source contributed to the queue.
type SourceStatus struct {
	Kind    string `json:"kind"`
	Allowed bool   `json:"allowed"`
	Count   int    `json:"count"`
	Error   string `json:"error,omitempty"`
}

// Queue is the merged pending queue.
type Queue struct {
	Items    []Request      `json:"items"`
	Sources  []SourceStatus `json:"sources"`
	Degraded bool           `json:"degraded"`
}

// Approval is the audit record of a decision.
type Approval struct {
	ID          string `json:"id"`
	SourceKind  string `json:"source_kind"`
	SourceID    string `json:"source_id"`
	Title       string `json:"title"`
	SubmittedBy string `json:"submitted_by"`
	Summary     string `json:"summary"`
	Status      string `json:"status"`
	Note        string `json:"note"`
	DecidedBy   string `json:"decided_by"`
	DecidedAt   string `json:"decided_at"`
}

// Notification is one digest entry.
type Notification struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Source string `json:"source"`
	Label  string `json:"label"`
	Detail string `json:"detail"`
}

// Digest is the capped notification feed.
type Digest struct {
	Items    []Notification `json:"items"`
	Degraded []string       `json:"degraded,omitempty"`
}

// Assignment represents a training assignment (partial).
type Assignment struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Audience   string `json:"audience"`
	Department string `json:"department"`
	DueDate    string `json:"due_date,omitempty"`
	Completed  int    `json:"completed"`
	Total      int    `json:"total"`
	Passed     bool   `json:"passed"`
}

// Answer is the answer to one question, by zero-based index.
type Answer struct {
	Question int      `json:"question"`
	Values   []string `json:"values"`
	Multi    bool     `json:"multi,omitempty"`
}

// Response is a graded training submission.
type Response struct {
	ID           string   `json:"id"`
	AssignmentID string   `json:"assignment_id"`
	Answers      []Answer `json:"answers"`
	Score        *int     `json:"score"`
	Passed       bool     `json:"passed"`
	SubmittedAt  string   `json:"submitted_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// Pending returns the caller's approval queue.
func (c *Client) Pending(ctx context.Context) (Queue, error) {
	var resp Queue
	err := c.do(ctx, http.MethodGet, "v0/approvals", nil, &resp)
	return resp, err
}

// Decide approves or rejects a pending request.
func (c *Client) Decide(ctx context.Context, kind, id, action, note string) (Approval, error) {
	body := map[string]any{
		"action": action,
		"note":   note,
	}
	var resp Approval
	endpoint := fmt.Sprintf("v0/approvals/%s/%s/decision", url.PathEscape(kind), url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Completed returns the newest audit records.
func (c *Client) Completed(ctx context.Context, limit int) ([]Approval, error) {
	endpoint := "v0/approvals/completed"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp struct {
		Items []Approval `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Notifications returns the caller's digest.
func (c *Client) Notifications(ctx context.Context) (Digest, error) {
	var resp Digest
	err := c.do(ctx, http.MethodGet, "v0/notifications", nil, &resp)
	return resp, err
}

// Assignments lists training the caller is eligible for.
func (c *Client) Assignments(ctx context.Context) ([]Assignment, error) {
	var resp struct {
		Items []Assignment `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "v0/training/assignments", nil, &resp)
	return resp.Items, err
}

// Submit sends answers for grading.
func (c *Client) Submit(ctx context.Context, assignmentID string, answers []Answer) (Response, error) {
	body := map[string]any{"answers": answers}
	var resp Response
	endpoint := fmt.Sprintf("v0/training/assignments/%s/responses", url.PathEscape(assignmentID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "v0/events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
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

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
