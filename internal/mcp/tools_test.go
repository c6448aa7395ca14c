package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	mcplib "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oktsec/toastd/sdk"
)

type fakeBackend struct {
	mu        sync.Mutex
	created   []sdk.CreateRequest
	dismissed []string
	toasts    []sdk.Toast
	err       error
	visible   bool
}

func (f *fakeBackend) Notify(_ context.Context, req sdk.CreateRequest) (string, error) {
	return f.create(req)
}

func (f *fakeBackend) RaiseAlert(_ context.Context, req sdk.CreateRequest) (string, error) {
	return f.create(req)
}

func (f *fakeBackend) create(req sdk.CreateRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.created = append(f.created, req)
	return "t-1", nil
}

func (f *fakeBackend) List(_ context.Context, visibleOnly bool) ([]sdk.Toast, error) {
	f.visible = visibleOnly
	return f.toasts, f.err
}

func (f *fakeBackend) Dismiss(_ context.Context, id string) error {
	f.dismissed = append(f.dismissed, id)
	return f.err
}

func newTestHandlers(b Backend) *handlers {
	return &handlers{backend: b, logger: slog.New(slog.DiscardHandler)}
}

func makeRequest(args map[string]any) *mcplib.CallToolRequest {
	var raw json.RawMessage
	if args != nil {
		raw, _ = json.Marshal(args)
	}
	return &mcplib.CallToolRequest{Params: &mcplib.CallToolParamsRaw{Arguments: raw}}
}

func resultText(t *testing.T, r *mcplib.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, r.Content)
	tc, ok := r.Content[0].(*mcplib.TextContent)
	require.True(t, ok, "content is %T", r.Content[0])
	return tc.Text
}

// --- notify ---

func TestNotify(t *testing.T) {
	b := &fakeBackend{}
	h := newTestHandlers(b)

	res, err := h.handleNotify(context.Background(), makeRequest(map[string]any{
		"message":     "quarantine finished",
		"kind":        "success",
		"agent":       "agent-4",
		"duration_ms": 8000,
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "toast t-1 created", resultText(t, res))

	require.Len(t, b.created, 1)
	assert.Equal(t, "success", b.created[0].Kind)
	assert.Equal(t, "agent-4", b.created[0].Agent)
	assert.Equal(t, int64(8000), b.created[0].DurationMs)
}

func TestNotify_DefaultsToInfo(t *testing.T) {
	b := &fakeBackend{}
	_, err := newTestHandlers(b).handleNotify(context.Background(), makeRequest(map[string]any{"message": "m"}))
	require.NoError(t, err)
	assert.Equal(t, "info", b.created[0].Kind)
}

func TestNotify_Validation(t *testing.T) {
	h := newTestHandlers(&fakeBackend{})

	res, err := h.handleNotify(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = h.handleNotify(context.Background(), makeRequest(map[string]any{"message": "m", "kind": "alert"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestNotify_BackendError(t *testing.T) {
	h := newTestHandlers(&fakeBackend{err: errors.New("rate limit exceeded")})
	res, err := h.handleNotify(context.Background(), makeRequest(map[string]any{"message": "m"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

// --- raise_alert ---

func TestRaiseAlert(t *testing.T) {
	b := &fakeBackend{}
	res, err := newTestHandlers(b).handleRaiseAlert(context.Background(), makeRequest(map[string]any{
		"severity": "critical",
		"message":  "LSASS memory read",
		"agent":    "agent-2",
	}))
	require.NoError(t, err)
	assert.Equal(t, "alert t-1 raised", resultText(t, res))
	assert.Equal(t, "alert", b.created[0].Kind)
	assert.Equal(t, "critical", b.created[0].Severity)
}

func TestRaiseAlert_MissingSeverity(t *testing.T) {
	res, err := newTestHandlers(&fakeBackend{}).handleRaiseAlert(context.Background(), makeRequest(map[string]any{"message": "m"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

// --- list_toasts ---

func TestListToasts(t *testing.T) {
	b := &fakeBackend{toasts: []sdk.Toast{{ID: "a", Kind: "info", State: "visible"}}}
	res, err := newTestHandlers(b).handleListToasts(context.Background(), makeRequest(map[string]any{"visible_only": true}))
	require.NoError(t, err)
	assert.True(t, b.visible)

	var got []sdk.Toast
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}

func TestListToasts_Empty(t *testing.T) {
	res, err := newTestHandlers(&fakeBackend{}).handleListToasts(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "[]", resultText(t, res))
}

// --- dismiss_toast ---

func TestDismissToast(t *testing.T) {
	b := &fakeBackend{}
	h := newTestHandlers(b)

	res, err := h.handleDismissToast(context.Background(), makeRequest(map[string]any{"id": "t-9"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, []string{"t-9"}, b.dismissed)

	res, err = h.handleDismissToast(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

// --- server wiring ---

func connectInProcess(ctx context.Context, t *testing.T, srv *mcplib.Server) *mcplib.ClientSession {
	t.Helper()
	ct, st := mcplib.NewInMemoryTransports()

	_, err := srv.Connect(ctx, st, nil)
	require.NoError(t, err)

	c := mcplib.NewClient(&mcplib.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	cs, err := c.Connect(ctx, ct, nil)
	require.NoError(t, err)
	return cs
}

func TestServer_ListsAndCallsTools(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{}
	cs := connectInProcess(ctx, t, NewServer(b, "test", slog.New(slog.DiscardHandler)))
	defer func() { _ = cs.Close() }()

	tools, err := cs.ListTools(ctx, nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"notify", "raise_alert", "list_toasts", "dismiss_toast"}, names)

	res, err := cs.CallTool(ctx, &mcplib.CallToolParams{
		Name:      "raise_alert",
		Arguments: map[string]any{"severity": "high", "message": "beaconing to known C2"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	require.Len(t, b.created, 1)
	assert.Equal(t, "high", b.created[0].Severity)
}

func TestClientBackend(t *testing.T) {
	var paths []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"srv-1"}`))
		case http.MethodGet:
			_, _ = w.Write([]byte(`[]`))
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer ts.Close()

	ctx := context.Background()
	b := ClientBackend{Client: sdk.NewClient(ts.URL, "mcp")}

	id, err := b.Notify(ctx, sdk.CreateRequest{Message: "m"})
	require.NoError(t, err)
	assert.Equal(t, "srv-1", id)
	_, err = b.RaiseAlert(ctx, sdk.CreateRequest{Severity: "low", Message: "m"})
	require.NoError(t, err)
	_, err = b.List(ctx, true)
	require.NoError(t, err)
	_, err = b.List(ctx, false)
	require.NoError(t, err)
	require.NoError(t, b.Dismiss(ctx, "srv-1"))

	assert.Equal(t, []string{
		"POST /v1/toasts",
		"POST /v1/alerts",
		"GET /v1/toasts/visible",
		"GET /v1/toasts",
		"DELETE /v1/toasts/srv-1",
	}, paths)
}

func TestArgs(t *testing.T) {
	raw := json.RawMessage(`{"name":"alice","count":42,"on":true}`)
	assert.Equal(t, "alice", getString(raw, "name", ""))
	assert.Equal(t, "d", getString(raw, "count", "d"))
	assert.Equal(t, 42, getInt(raw, "count", 0))
	assert.Equal(t, 7, getInt(nil, "count", 7))
	assert.True(t, getBool(raw, "on", false))
	assert.False(t, getBool(json.RawMessage(`not json`), "on", false))
}
