package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/oktsec/toastd/internal/history"
	"github.com/oktsec/toastd/internal/notify"
	"github.com/oktsec/toastd/internal/toast"
	"github.com/oktsec/toastd/sdk"
)

// maxBodyBytes caps request bodies on the write endpoints.
const maxBodyBytes = 64 << 10

var (
	errBadRequest   = errors.New("bad request")
	errShuttingDown = errors.New("toastd is shutting down")
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}

// handleCreate serves POST /v1/toasts and POST /v1/alerts.
func (s *Server) handleCreate(alert bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(sourceOf(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		var req sdk.CreateRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}

		id, err := s.create(req, alert)
		switch {
		case errors.Is(err, errBadRequest):
			writeError(w, http.StatusBadRequest, err.Error())
			return
		case errors.Is(err, errShuttingDown):
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
	}
}

// create validates req and adds it to the registry. Alerts go through
// AddAlert so they get a severity-derived title and duration.
func (s *Server) create(req sdk.CreateRequest, alert bool) (string, error) {
	if req.DurationMs < 0 {
		return "", fmt.Errorf("%w: duration_ms must be >= 0", errBadRequest)
	}
	if req.CallbackURL != "" {
		if err := notify.ValidateURL(req.CallbackURL); err != nil {
			return "", fmt.Errorf("%w: callback_url: %v", errBadRequest, err)
		}
	}

	kind := toast.ParseKind(req.Kind)
	if alert {
		kind = toast.KindAlert
	}

	var opts []toast.Option
	if req.Title != "" {
		opts = append(opts, toast.WithTitle(req.Title))
	}
	if req.Agent != "" {
		opts = append(opts, toast.WithAgent(req.Agent))
	}
	if req.DurationMs > 0 {
		opts = append(opts, toast.WithDuration(time.Duration(req.DurationMs)*time.Millisecond))
	}
	for _, a := range req.Actions {
		if a.ID == "" {
			return "", fmt.Errorf("%w: action id is required", errBadRequest)
		}
		label := a.Label
		if label == "" {
			label = a.ID
		}
		opts = append(opts, toast.WithActions(toast.Action{ID: a.ID, Label: label}))
	}
	for k, v := range req.Metadata {
		opts = append(opts, toast.WithMetadata(k, v))
	}
	if req.CallbackURL != "" {
		opts = append(opts, toast.WithActionHandler(s.callback(req.CallbackURL)))
	}

	var id string
	if kind == toast.KindAlert {
		id = s.manager.AddAlert(toast.Alert{
			Severity: toast.ParseSeverity(req.Severity),
			Title:    req.Title,
			Message:  req.Message,
			AgentRef: req.Agent,
		}, opts...)
	} else {
		in := toast.Input{Kind: kind, Message: req.Message}
		for _, opt := range opts {
			opt(&in)
		}
		id = s.manager.Add(in)
	}
	if id == "" {
		return "", errShuttingDown
	}
	return id, nil
}

// callback posts the pressed action to a toast's callback_url.
func (s *Server) callback(url string) toast.ActionFunc {
	return func(t toast.Toast, a toast.Action) {
		ev := toast.Event{
			Type:   toast.EventAction,
			Toast:  toast.View{Toast: t},
			Action: a.ID,
			At:     time.Now(),
		}
		s.notifier.NotifyURL(url, notify.PayloadFromEvent(notify.EventAction, ev))
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(s.manager.List()))
}

func (s *Server) handleVisible(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(s.manager.Visible()))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	v, ok := s.manager.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleDismiss always answers 204: removing an unknown toast is a no-op.
func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if immediate, _ := strconv.ParseBool(r.URL.Query().Get("immediate")); immediate {
		s.manager.Remove(id)
	} else {
		s.manager.Dismiss(id)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHover(w http.ResponseWriter, r *http.Request) {
	var body struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	id := r.PathValue("id")
	if _, ok := s.manager.Get(id); !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch body.State {
	case "enter":
		s.manager.Pause(id)
	case "leave":
		s.manager.Resume(id)
	default:
		writeError(w, http.StatusBadRequest, `state must be "enter" or "leave"`)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	err := s.manager.InvokeAction(r.PathValue("id"), r.PathValue("action"))
	switch {
	case errors.Is(err, toast.ErrNotFound), errors.Is(err, toast.ErrUnknownAction):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := history.QueryOpts{
		Event:   q.Get("event"),
		Kind:    q.Get("kind"),
		Agent:   q.Get("agent"),
		ToastID: q.Get("toast_id"),
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		opts.Since = t.UTC().Format(history.TimeLayout)
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 0 and 1000")
			return
		}
		opts.Limit = n
	}

	entries, err := s.history.Query(opts)
	if err != nil {
		s.logger.Error("history query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(entries))
}

func (s *Server) handleHistoryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.history.QueryKindStats()
	if err != nil {
		s.logger.Error("history stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "history stats failed")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(stats))
}

// sourceOf identifies the producer for rate limiting.
func sourceOf(r *http.Request) string {
	if src := r.Header.Get(sdk.SourceHeader); src != "" {
		return src
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Header already sent so the status code cannot change.
		slog.Default().Error("writeJSON: encode failed", "error", err)
	}
}
