// Package sdk provides a Go client for the toastd notification service.
//
// Basic usage:
//
//	c := sdk.NewClient("http://localhost:8080", "edr-backend")
//	id, err := c.Alert(ctx, sdk.CreateRequest{
//		Severity: "critical",
//		Message:  "ransomware behaviour on host-7",
//		Agent:    "agent-7",
//	})
//
// Streaming lifecycle events:
//
//	err := c.Events(ctx, func(ev sdk.Event) {
//		fmt.Println(ev.Type, ev.Toast.ID)
//	})
package sdk

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SourceHeader names the producer of a request. toastd rate limits
// creation per source.
const SourceHeader = "X-Toastd-Source"

// Action is a button shown on a toast.
type Action struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// CreateRequest is sent to POST /v1/toasts and POST /v1/alerts.
type CreateRequest struct {
	Kind        string            `json:"kind,omitempty"`     // success, error, warning, info, alert
	Severity    string            `json:"severity,omitempty"` // critical, high, medium, low
	Title       string            `json:"title,omitempty"`
	Message     string            `json:"message"`
	Agent       string            `json:"agent,omitempty"`
	DurationMs  int64             `json:"duration_ms,omitempty"`
	Actions     []Action          `json:"actions,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CallbackURL string            `json:"callback_url,omitempty"`
}

// Toast is a live toast as reported by the service.
type Toast struct {
	ID          string            `json:"id"`
	Kind        string            `json:"kind"`
	Severity    string            `json:"severity,omitempty"`
	Title       string            `json:"title,omitempty"`
	Message     string            `json:"message"`
	Agent       string            `json:"agent,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	Actions     []Action          `json:"actions,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	State       string            `json:"state"` // queued, visible, exiting
	Paused      bool              `json:"paused"`
	DurationMs  int64             `json:"duration_ms"`
	RemainingMs int64             `json:"remaining_ms"`
	Progress    float64           `json:"progress"`
}

// Event is one lifecycle transition from GET /v1/events.
type Event struct {
	Type   string    `json:"type"`
	Toast  Toast     `json:"toast"`
	Reason string    `json:"reason,omitempty"`
	Action string    `json:"action,omitempty"`
	At     time.Time `json:"at"`
}

// HistoryEntry is one recorded lifecycle event.
type HistoryEntry struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	ToastID   string `json:"toast_id"`
	Kind      string `json:"kind"`
	Severity  string `json:"severity,omitempty"`
	Title     string `json:"title,omitempty"`
	Message   string `json:"message"`
	Agent     string `json:"agent,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Action    string `json:"action,omitempty"`
}

// HistoryQuery filters GET /v1/history.
type HistoryQuery struct {
	Event string
	Kind  string
	Agent string
	Limit int
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("toastd: %s (HTTP %d)", e.Message, e.StatusCode)
}

// IsNotFound reports whether err is a 404 from the service.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to a toastd server.
type Client struct {
	baseURL    string
	source     string
	httpClient *http.Client
	// streamClient has no overall timeout so SSE connections stay open.
	streamClient *http.Client
}

// NewClient creates a client. source identifies the producer for rate
// limiting and may be empty.
func NewClient(baseURL, source string) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		source:       source,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		streamClient: &http.Client{},
	}
}

// Push creates a toast and returns its id.
func (c *Client) Push(ctx context.Context, req CreateRequest) (string, error) {
	return c.create(ctx, "/v1/toasts", req)
}

// Alert creates an alert toast and returns its id.
func (c *Client) Alert(ctx context.Context, req CreateRequest) (string, error) {
	return c.create(ctx, "/v1/alerts", req)
}

func (c *Client) create(ctx context.Context, path string, req CreateRequest) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// List returns every live toast, oldest first.
func (c *Client) List(ctx context.Context) ([]Toast, error) {
	var toasts []Toast
	if err := c.do(ctx, http.MethodGet, "/v1/toasts", nil, &toasts); err != nil {
		return nil, err
	}
	return toasts, nil
}

// Visible returns the toasts currently rendered, in display order.
func (c *Client) Visible(ctx context.Context) ([]Toast, error) {
	var toasts []Toast
	if err := c.do(ctx, http.MethodGet, "/v1/toasts/visible", nil, &toasts); err != nil {
		return nil, err
	}
	return toasts, nil
}

// Get returns one toast.
func (c *Client) Get(ctx context.Context, id string) (*Toast, error) {
	var t Toast
	if err := c.do(ctx, http.MethodGet, "/v1/toasts/"+url.PathEscape(id), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Dismiss closes a toast through its exit transition. Unknown ids are
// not an error.
func (c *Client) Dismiss(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/toasts/"+url.PathEscape(id), nil, nil)
}

// Remove deletes a toast without the exit transition.
func (c *Client) Remove(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/toasts/"+url.PathEscape(id)+"?immediate=1", nil, nil)
}

// Hover reports the pointer entering (true) or leaving (false) a toast.
func (c *Client) Hover(ctx context.Context, id string, enter bool) error {
	state := "leave"
	if enter {
		state = "enter"
	}
	body := map[string]string{"state": state}
	return c.do(ctx, http.MethodPost, "/v1/toasts/"+url.PathEscape(id)+"/hover", body, nil)
}

// InvokeAction presses one of a toast's action buttons.
func (c *Client) InvokeAction(ctx context.Context, id, action string) error {
	path := "/v1/toasts/" + url.PathEscape(id) + "/actions/" + url.PathEscape(action)
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// History queries recorded lifecycle events, newest first.
func (c *Client) History(ctx context.Context, q HistoryQuery) ([]HistoryEntry, error) {
	v := url.Values{}
	if q.Event != "" {
		v.Set("event", q.Event)
	}
	if q.Kind != "" {
		v.Set("kind", q.Kind)
	}
	if q.Agent != "" {
		v.Set("agent", q.Agent)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	path := "/v1/history"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	var entries []HistoryEntry
	if err := c.do(ctx, http.MethodGet, path, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Health checks the service health endpoint.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	return &resp, nil
}

// Events streams lifecycle events to fn until ctx is cancelled or the
// server closes the stream. A cancelled ctx returns nil.
func (c *Client) Events(ctx context.Context, fn func(Event)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/events", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("opening event stream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	err = readSSE(resp.Body, func(data []byte) {
		var ev Event
		if json.Unmarshal(data, &ev) == nil {
			fn(ev)
		}
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// readSSE calls fn with the data payload of every event in r. Multi-line
// data fields are joined with newlines.
func readSSE(r io.Reader, fn func([]byte)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	var data []byte
	for sc.Scan() {
		line := sc.Bytes()
		switch {
		case len(line) == 0:
			if len(data) > 0 {
				fn(data)
				data = nil
			}
		case bytes.HasPrefix(line, []byte("data:")):
			chunk := bytes.TrimPrefix(bytes.TrimPrefix(line, []byte("data:")), []byte(" "))
			if len(data) > 0 {
				data = append(data, '\n')
			}
			data = append(data, chunk...)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading event stream: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.source != "" {
		req.Header.Set(SourceHeader, c.source)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response (HTTP %d): %w", resp.StatusCode, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&e); err != nil || e.Error == "" {
		e.Error = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
}
