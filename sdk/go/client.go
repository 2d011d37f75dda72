package ledgerlinesdk

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

// Client is a minimal Ledgerline HTTP API client. Responses arrive in an
// envelope; the data payload is unwrapped for the caller.
type Client struct {
	BaseURL     string
	OrgID       string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, orgID string) *Client {
	return &Client{
		BaseURL: baseURL,
		OrgID:   orgID,
		Timeout: 10 * time.Second,
	}
}

// Task represents the API task model (partial).
type Task struct {
	ID        string `json:"id"`
	OrgID     string `json:"org_id"`
	ProjectID string `json:"project_id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
}

// TimeEntry represents a logged block of work.
type TimeEntry struct {
	ID        string  `json:"id"`
	TaskID    string  `json:"task_id"`
	UserID    string  `json:"user_id"`
	StartedAt string  `json:"started_at"`
	EndedAt   *string `json:"ended_at,omitempty"`
	Minutes   int     `json:"minutes"`
	Billable  bool    `json:"billable"`
}

// InvoiceLine is one billed line.
type InvoiceLine struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Amount      float64 `json:"amount"`
}

// Invoice represents the API invoice model (partial).
type Invoice struct {
	ID        string        `json:"id"`
	InvoiceNo string        `json:"invoice_no"`
	ProjectID string        `json:"project_id"`
	Status    string        `json:"status"`
	Currency  string        `json:"currency"`
	Subtotal  float64       `json:"subtotal"`
	Tax       float64       `json:"tax"`
	Total     float64       `json:"total"`
	Lines     []InvoiceLine `json:"lines,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID       int64          `json:"id"`
	TS       string         `json:"ts"`
	Type     string         `json:"type"`
	OrgID    string         `json:"org_id"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Payload  map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status=%d message=%s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps event listings with a cursor.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateTask creates a task in a project.
func (c *Client) CreateTask(ctx context.Context, projectID, title string) (Task, error) {
	body := map[string]any{
		"project_id": projectID,
		"title":      title,
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, c.orgPath("tasks"), body, &resp)
	return resp, err
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, taskID string) (Task, error) {
	var resp Task
	endpoint := c.orgPath(fmt.Sprintf("tasks/%s", url.PathEscape(taskID)))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// SetTaskStatus updates a task's status.
func (c *Client) SetTaskStatus(ctx context.Context, taskID, status string) (Task, error) {
	var resp Task
	endpoint := c.orgPath(fmt.Sprintf("tasks/%s", url.PathEscape(taskID)))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"status": status}, &resp)
	return resp, err
}

// AddDependency makes task depend on another task.
func (c *Client) AddDependency(ctx context.Context, taskID, dependsOnTaskID string) error {
	endpoint := c.orgPath(fmt.Sprintf("tasks/%s/dependencies", url.PathEscape(taskID)))
	return c.do(ctx, http.MethodPost, endpoint, map[string]any{"depends_on_task_id": dependsOnTaskID}, nil)
}

// StartTimer starts a timer on a task for the authenticated user.
func (c *Client) StartTimer(ctx context.Context, taskID string) (TimeEntry, error) {
	var resp TimeEntry
	err := c.do(ctx, http.MethodPost, c.orgPath("timers/start"), map[string]any{"task_id": taskID}, &resp)
	return resp, err
}

// StopTimer stops the authenticated user's running timer on a task.
func (c *Client) StopTimer(ctx context.Context, taskID string) (TimeEntry, error) {
	var resp TimeEntry
	err := c.do(ctx, http.MethodPost, c.orgPath("timers/stop"), map[string]any{"task_id": taskID}, &resp)
	return resp, err
}

// GenerateInvoice generates an invoice for a project.
func (c *Client) GenerateInvoice(ctx context.Context, projectID string, timeEntryIDs []string) (Invoice, error) {
	body := map[string]any{
		"project_id": projectID,
	}
	if len(timeEntryIDs) > 0 {
		body["time_entry_ids"] = timeEntryIDs
	}
	var resp Invoice
	err := c.do(ctx, http.MethodPost, c.orgPath("invoices"), body, &resp)
	return resp, err
}

// GetInvoice fetches an invoice with its lines.
func (c *Client) GetInvoice(ctx context.Context, invoiceID string) (Invoice, error) {
	var resp Invoice
	endpoint := c.orgPath(fmt.Sprintf("invoices/%s", url.PathEscape(invoiceID)))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := c.orgPath("events")
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

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
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
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var env envelope
		if json.Unmarshal(raw, &env) == nil && env.Message != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: env.Message}
		}
		return &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return err
	}
	if len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func (c *Client) orgPath(p string) string {
	org := url.PathEscape(c.OrgID)
	return fmt.Sprintf("api/v1/orgs/%s/%s", org, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
