package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	mcplib "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oktsec/toastd/internal/config"
	"github.com/oktsec/toastd/internal/toast"
	"github.com/oktsec/toastd/sdk"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *clock.Mock) {
	t.Helper()
	cfg := config.Defaults()
	cfg.History.DSN = filepath.Join(t.TempDir(), "history.db")
	cfg.History.RetentionDays = 0
	if mutate != nil {
		mutate(cfg)
	}
	mock := clock.NewMock()
	srv, err := NewServer(cfg, testLogger(),
		WithoutListener(),
		WithVersion("test"),
		WithManagerOptions(toast.WithClock(mock)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, mock
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func createToast(t *testing.T, h http.Handler, req sdk.CreateRequest) string {
	t.Helper()
	w := do(t, h, http.MethodPost, "/v1/toasts", req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["id"])
	return resp["id"]
}

func decodeToasts(t *testing.T, w *httptest.ResponseRecorder) []sdk.Toast {
	t.Helper()
	var toasts []sdk.Toast
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &toasts))
	return toasts
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	w := do(t, srv.Handler(), http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","version":"test"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestCreateAndList(t *testing.T) {
	srv, mock := newTestServer(t, nil)
	h := srv.Handler()

	a := createToast(t, h, sdk.CreateRequest{Kind: "success", Message: "scan complete", Agent: "agent-1"})
	b := createToast(t, h, sdk.CreateRequest{Kind: "bogus", Message: "falls back to info"})

	mock.Add(2500 * time.Millisecond)

	toasts := decodeToasts(t, do(t, h, http.MethodGet, "/v1/toasts", nil))
	require.Len(t, toasts, 2)
	assert.Equal(t, a, toasts[0].ID)
	assert.Equal(t, "success", toasts[0].Kind)
	assert.Equal(t, "agent-1", toasts[0].Agent)
	assert.Equal(t, "visible", toasts[0].State)
	assert.Equal(t, int64(5000), toasts[0].DurationMs)
	assert.Equal(t, int64(2500), toasts[0].RemainingMs)
	assert.InDelta(t, 0.5, toasts[0].Progress, 1e-9)
	assert.Equal(t, "info", toasts[1].Kind)

	w := do(t, h, http.MethodGet, "/v1/toasts/"+b, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got sdk.Toast
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "falls back to info", got.Message)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/toasts/missing", nil).Code)
}

func TestList_EmptyIsArray(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	w := do(t, srv.Handler(), http.MethodGet, "/v1/toasts", nil)
	assert.Equal(t, "[]\n", w.Body.String())
}

func TestCreate_Validation(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/toasts", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/v1/toasts", sdk.CreateRequest{Message: "m", DurationMs: -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/v1/toasts", sdk.CreateRequest{Message: "m", CallbackURL: "http://169.254.169.254/latest"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "callback_url")

	w = do(t, h, http.MethodPost, "/v1/toasts", sdk.CreateRequest{Message: "m", Actions: []sdk.Action{{Label: "no id"}}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Empty(t, srv.Manager().List())
}

func TestCreate_EmptyMessageAccepted(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	createToast(t, srv.Handler(), sdk.CreateRequest{Kind: "warning"})
	assert.Len(t, srv.Manager().List(), 1)
}

func TestCreateAlert_SeverityDurations(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Handler()

	for _, tc := range []struct {
		severity string
		title    string
		duration int64
	}{
		{"critical", "Critical alert", 10000},
		{"high", "High alert", 5000},
		{"unknown", "Low alert", 5000},
	} {
		w := do(t, h, http.MethodPost, "/v1/alerts", sdk.CreateRequest{Severity: tc.severity, Message: "m"})
		require.Equal(t, http.StatusCreated, w.Code)
		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

		v, ok := srv.Manager().Get(resp["id"])
		require.True(t, ok)
		assert.Equal(t, toast.KindAlert, v.Kind)
		assert.Equal(t, tc.title, v.Title, tc.severity)
		assert.Equal(t, tc.duration, v.DurationMs, tc.severity)
	}
}

func TestCreate_RateLimitedPerSource(t *testing.T) {
	srv, _ := newTestServer(t, func(c *config.Config) {
		c.RateLimit.PerSource = 2
		c.RateLimit.WindowS = 60
	})
	h := srv.Handler()
	body := sdk.CreateRequest{Message: "m"}

	assert.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/v1/toasts", body, sdk.SourceHeader, "edr").Code)
	assert.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/v1/alerts", body, sdk.SourceHeader, "edr").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodPost, "/v1/toasts", body, sdk.SourceHeader, "edr").Code)
	assert.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/v1/toasts", body, sdk.SourceHeader, "scanner").Code)
}

func TestVisible_CapAndOrder(t *testing.T) {
	srv, _ := newTestServer(t, func(c *config.Config) {
		c.Toasts.MaxVisible = 2
		c.Toasts.Order = string(toast.OrderNewestFirst)
	})
	h := srv.Handler()

	a := createToast(t, h, sdk.CreateRequest{Message: "A"})
	b := createToast(t, h, sdk.CreateRequest{Message: "B"})
	c := createToast(t, h, sdk.CreateRequest{Message: "C"})

	visible := decodeToasts(t, do(t, h, http.MethodGet, "/v1/toasts/visible", nil))
	require.Len(t, visible, 2)
	assert.Equal(t, []string{b, a}, []string{visible[0].ID, visible[1].ID})

	v, ok := srv.Manager().Get(c)
	require.True(t, ok)
	assert.Equal(t, toast.StateQueued, v.State)
}

func TestDismiss(t *testing.T) {
	srv, mock := newTestServer(t, nil)
	h := srv.Handler()
	id := createToast(t, h, sdk.CreateRequest{Message: "m"})

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/v1/toasts/"+id, nil).Code)
	v, ok := srv.Manager().Get(id)
	require.True(t, ok)
	assert.Equal(t, toast.StateExiting, v.State)

	mock.Add(toast.DefaultExitDelay)
	require.Eventually(t, func() bool {
		_, ok := srv.Manager().Get(id)
		return !ok
	}, time.Second, 5*time.Millisecond)

	// Unknown and already-removed ids are a no-op.
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/v1/toasts/"+id, nil).Code)
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/v1/toasts/never-existed", nil).Code)
}

func TestDismiss_Immediate(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Handler()
	id := createToast(t, h, sdk.CreateRequest{Message: "m"})

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/v1/toasts/"+id+"?immediate=1", nil).Code)
	_, ok := srv.Manager().Get(id)
	assert.False(t, ok)
}

func TestHover_PausesCountdown(t *testing.T) {
	srv, mock := newTestServer(t, nil)
	h := srv.Handler()
	id := createToast(t, h, sdk.CreateRequest{Message: "m"})

	mock.Add(time.Second)
	require.Equal(t, http.StatusNoContent, do(t, h, http.MethodPost, "/v1/toasts/"+id+"/hover", map[string]string{"state": "enter"}).Code)

	mock.Add(10 * time.Second)
	v, ok := srv.Manager().Get(id)
	require.True(t, ok, "paused toast must not expire")
	assert.True(t, v.Paused)
	assert.Equal(t, int64(4000), v.RemainingMs)

	require.Equal(t, http.StatusNoContent, do(t, h, http.MethodPost, "/v1/toasts/"+id+"/hover", map[string]string{"state": "leave"}).Code)
	v, _ = srv.Manager().Get(id)
	assert.False(t, v.Paused)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/v1/toasts/"+id+"/hover", map[string]string{"state": "hover"}).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/v1/toasts/missing/hover", map[string]string{"state": "enter"}).Code)
}

func TestAction(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Handler()
	id := createToast(t, h, sdk.CreateRequest{
		Kind:    "alert",
		Message: "m",
		Actions: []sdk.Action{{ID: "isolate", Label: "Isolate host"}, {ID: "ack"}},
	})

	v, _ := srv.Manager().Get(id)
	require.Len(t, v.Actions, 2)
	assert.Equal(t, "ack", v.Actions[1].Label, "label defaults to id")

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/v1/toasts/"+id+"/actions/reboot", nil).Code)
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodPost, "/v1/toasts/"+id+"/actions/isolate", nil).Code)

	v, ok := srv.Manager().Get(id)
	require.True(t, ok)
	assert.Equal(t, toast.StateExiting, v.State)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/v1/toasts/missing/actions/isolate", nil).Code)
}

func TestHistory(t *testing.T) {
	srv, _ := newTestServer(t, func(c *config.Config) { c.Toasts.ExitDelayMs = 0 })
	h := srv.Handler()

	id := createToast(t, h, sdk.CreateRequest{Kind: "error", Message: "driver load blocked", Agent: "agent-5"})
	do(t, h, http.MethodDelete, "/v1/toasts/"+id, nil)

	var entries []sdk.HistoryEntry
	require.Eventually(t, func() bool {
		w := do(t, h, http.MethodGet, "/v1/history?agent=agent-5", nil)
		entries = nil
		_ = json.Unmarshal(w.Body.Bytes(), &entries)
		return len(entries) == 2
	}, 2*time.Second, 20*time.Millisecond)

	events := map[string]string{}
	for _, e := range entries {
		events[e.Event] = e.Reason
	}
	assert.Contains(t, events, "added")
	assert.Equal(t, "dismissed", events["removed"])

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/history?limit=abc", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/history?since=yesterday", nil).Code)

	w := do(t, h, http.MethodGet, "/v1/history/stats", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"kind":"error"`)
}

func TestHistory_DisabledRouteMissing(t *testing.T) {
	srv, _ := newTestServer(t, func(c *config.Config) { c.History.Enabled = false })
	assert.Nil(t, srv.History())
	assert.Equal(t, http.StatusNotFound, do(t, srv.Handler(), http.MethodGet, "/v1/history", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Handler()
	createToast(t, h, sdk.CreateRequest{Kind: "warning", Message: "m"})

	require.Eventually(t, func() bool {
		body := do(t, h, http.MethodGet, "/metrics", nil).Body.String()
		return strings.Contains(body, `toastd_toasts_created_total{kind="warning"} 1`)
	}, 2*time.Second, 20*time.Millisecond)

	body := do(t, h, http.MethodGet, "/metrics", nil).Body.String()
	assert.Contains(t, body, "toastd_toasts_live 1")
	assert.Contains(t, body, `toastd_http_requests_total{code="201",route="POST /v1/toasts"} 1`)
}

func TestEventsStream(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []sdk.Event
	done := make(chan error, 1)
	go func() {
		done <- sdk.NewClient(ts.URL, "").Events(ctx, func(ev sdk.Event) {
			mu.Lock()
			got = append(got, ev)
			mu.Unlock()
		})
	}()

	// Subscription happens asynchronously; keep adding until one arrives.
	require.Eventually(t, func() bool {
		srv.Manager().AddInfo("ping")
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, 2*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.Equal(t, "added", got[0].Type)
	assert.Equal(t, "ping", got[0].Toast.Message)
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("event stream did not stop")
	}
}

func TestMCPEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx := context.Background()
	client := mcplib.NewClient(&mcplib.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	cs, err := client.Connect(ctx, &mcplib.StreamableClientTransport{Endpoint: ts.URL + "/mcp"}, nil)
	require.NoError(t, err)
	defer func() { _ = cs.Close() }()

	res, err := cs.CallTool(ctx, &mcplib.CallToolParams{
		Name:      "raise_alert",
		Arguments: map[string]any{"severity": "critical", "message": "credential theft", "agent": "agent-8"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	views := srv.Manager().List()
	require.Len(t, views, 1)
	assert.Equal(t, toast.SeverityCritical, views[0].Severity)
	assert.Equal(t, "agent-8", views[0].AgentRef)

	res, err = cs.CallTool(ctx, &mcplib.CallToolParams{Name: "list_toasts", Arguments: map[string]any{}})
	require.NoError(t, err)
	text := res.Content[0].(*mcplib.TextContent).Text
	assert.Contains(t, text, views[0].ID)
}

func TestReconfigure(t *testing.T) {
	srv, _ := newTestServer(t, func(c *config.Config) {
		c.Toasts.MaxVisible = 1
		c.RateLimit.PerSource = 1
	})
	h := srv.Handler()
	createToast(t, h, sdk.CreateRequest{Message: "A"})
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodPost, "/v1/toasts", sdk.CreateRequest{Message: "B"}).Code)

	cfg := config.Defaults()
	cfg.Toasts.MaxVisible = 3
	srv.Reconfigure(cfg)

	createToast(t, h, sdk.CreateRequest{Message: "B"})
	assert.Len(t, srv.Manager().Visible(), 2)
	assert.Equal(t, 3, srv.Manager().Settings().MaxVisible)
}

func TestNewServer_ListensOnFreePort(t *testing.T) {
	cfg := config.Defaults()
	cfg.History.Enabled = false
	cfg.Server.Port = 0

	srv, err := NewServer(cfg, testLogger())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	require.NotZero(t, srv.Port())
	c := sdk.NewClient("http://127.0.0.1:"+strconv.Itoa(srv.Port()), "")
	require.Eventually(t, func() bool {
		h, err := c.Health(context.Background())
		return err == nil && h.Status == "ok"
	}, 2*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.ErrorIs(t, <-errCh, http.ErrServerClosed)
}

func TestSourceOf(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/v1/toasts", nil)
	assert.Equal(t, "192.0.2.1", sourceOf(r))
	r.Header.Set(sdk.SourceHeader, "edr-backend")
	assert.Equal(t, "edr-backend", sourceOf(r))
}

func TestRecovery(t *testing.T) {
	h := recovery(testLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
