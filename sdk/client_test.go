package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	c := NewClient("http://localhost:8080/", "edr")
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("baseURL = %q", c.baseURL)
	}
	if c.source != "edr" {
		t.Errorf("source = %q", c.source)
	}
}

func TestPush_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/v1/toasts" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get(SourceHeader); got != "scanner" {
			t.Errorf("source header = %q", got)
		}

		var req CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Kind != "success" || req.Message != "scan complete" {
			t.Errorf("request = %+v", req)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "t-1"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "scanner")
	id, err := c.Push(context.Background(), CreateRequest{Kind: "success", Message: "scan complete"})
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if id != "t-1" {
		t.Errorf("id = %q, want t-1", id)
	}
}

func TestAlert_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/alerts" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.Alert(context.Background(), CreateRequest{Severity: "critical", Message: "x"})
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d", apiErr.StatusCode)
	}
	if apiErr.Message != "rate limit exceeded" {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestGet_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").Get(context.Background(), "missing")
	if !IsNotFound(err) {
		t.Errorf("IsNotFound(%v) = false", err)
	}
}

func TestListAndVisible(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/toasts":
			_, _ = fmt.Fprint(w, `[{"id":"a","kind":"info","message":"m","state":"visible","duration_ms":5000,"remaining_ms":2500,"progress":0.5},{"id":"b","kind":"alert","severity":"high","message":"n","state":"queued"}]`)
		case "/v1/toasts/visible":
			_, _ = fmt.Fprint(w, `[{"id":"a","kind":"info","message":"m","state":"visible"}]`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	all, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 || all[0].Progress != 0.5 || all[1].Severity != "high" {
		t.Errorf("List = %+v", all)
	}

	vis, err := c.Visible(context.Background())
	if err != nil {
		t.Fatalf("Visible: %v", err)
	}
	if len(vis) != 1 || vis[0].ID != "a" {
		t.Errorf("Visible = %+v", vis)
	}
}

func TestDismissRemoveHoverAction(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		line := r.Method + " " + r.URL.RequestURI()
		if r.URL.Path == "/v1/toasts/t1/hover" {
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			line += " " + body["state"]
		}
		got = append(got, line)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	ctx := context.Background()
	for _, err := range []error{
		c.Dismiss(ctx, "t1"),
		c.Remove(ctx, "t1"),
		c.Hover(ctx, "t1", true),
		c.Hover(ctx, "t1", false),
		c.InvokeAction(ctx, "t1", "isolate"),
	} {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	want := []string{
		"DELETE /v1/toasts/t1",
		"DELETE /v1/toasts/t1?immediate=1",
		"POST /v1/toasts/t1/hover enter",
		"POST /v1/toasts/t1/hover leave",
		"POST /v1/toasts/t1/actions/isolate",
	}
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("requests:\n%s\nwant:\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func TestHistory_Query(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("event") != "removed" || q.Get("agent") != "agent-1" || q.Get("limit") != "10" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		_, _ = fmt.Fprint(w, `[{"id":"h1","event":"removed","toast_id":"t1","kind":"info","message":"m","reason":"expired"}]`)
	}))
	defer srv.Close()

	entries, err := NewClient(srv.URL, "").History(context.Background(), HistoryQuery{Event: "removed", Agent: "agent-1", Limit: 10})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != 1 || entries[0].Reason != "expired" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"status":"ok","version":"1.0.0"}`)
	}))
	defer srv.Close()

	h, err := NewClient(srv.URL, "").Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if h.Status != "ok" {
		t.Errorf("status = %q", h.Status)
	}
}

func TestEvents_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, "data: {\"type\":\"added\",\"toast\":{\"id\":\"a\",\"kind\":\"info\"}}\n\n")
		_, _ = fmt.Fprint(w, ": keepalive\n\n")
		_, _ = fmt.Fprint(w, "data: not-json\n\n")
		_, _ = fmt.Fprint(w, "data: {\"type\":\"removed\",\"reason\":\"expired\",\"toast\":{\"id\":\"a\"}}\n\n")
	}))
	defer srv.Close()

	var events []Event
	err := NewClient(srv.URL, "").Events(context.Background(), func(ev Event) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != "added" || events[1].Reason != "expired" {
		t.Errorf("events = %+v", events)
	}
}

func TestEvents_CancelReturnsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := NewClient(srv.URL, "").Events(ctx, func(Event) {}); err != nil {
		t.Errorf("Events after cancel = %v, want nil", err)
	}
}

func TestReadSSE_MultiLineData(t *testing.T) {
	var got []string
	err := readSSE(strings.NewReader("data: a\ndata: b\n\ndata:c\n\n"), func(b []byte) {
		got = append(got, string(b))
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "a\nb" || got[1] != "c" {
		t.Errorf("got %q", got)
	}
}
