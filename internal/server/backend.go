package server

import (
	"context"

	"github.com/oktsec/toastd/internal/toast"
	"github.com/oktsec/toastd/sdk"
)

// managerBackend serves the MCP tools straight from the in-process
// registry. Calls skip the HTTP rate limiter.
type managerBackend struct {
	s *Server
}

func (b managerBackend) Notify(_ context.Context, req sdk.CreateRequest) (string, error) {
	return b.s.create(req, false)
}

func (b managerBackend) RaiseAlert(_ context.Context, req sdk.CreateRequest) (string, error) {
	return b.s.create(req, true)
}

func (b managerBackend) List(_ context.Context, visibleOnly bool) ([]sdk.Toast, error) {
	var views []toast.View
	if visibleOnly {
		views = b.s.manager.Visible()
	} else {
		views = b.s.manager.List()
	}
	out := make([]sdk.Toast, 0, len(views))
	for _, v := range views {
		out = append(out, toSDK(v))
	}
	return out, nil
}

func (b managerBackend) Dismiss(_ context.Context, id string) error {
	b.s.manager.Dismiss(id)
	return nil
}

func toSDK(v toast.View) sdk.Toast {
	t := sdk.Toast{
		ID:          v.ID,
		Kind:        string(v.Kind),
		Severity:    string(v.Severity),
		Title:       v.Title,
		Message:     v.Message,
		Agent:       v.AgentRef,
		CreatedAt:   v.CreatedAt,
		Metadata:    v.Metadata,
		State:       string(v.State),
		Paused:      v.Paused,
		DurationMs:  v.DurationMs,
		RemainingMs: v.RemainingMs,
		Progress:    v.Progress,
	}
	for _, a := range v.Actions {
		t.Actions = append(t.Actions, sdk.Action{ID: a.ID, Label: a.Label})
	}
	return t
}
