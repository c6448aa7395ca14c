package mcp

import (
	"context"

	"github.com/oktsec/toastd/sdk"
)

// Backend is the toast registry the MCP tools act on. The HTTP server
// provides an in-process implementation; `toastd mcp` talks to a running
// server through ClientBackend.
type Backend interface {
	Notify(ctx context.Context, req sdk.CreateRequest) (string, error)
	RaiseAlert(ctx context.Context, req sdk.CreateRequest) (string, error)
	List(ctx context.Context, visibleOnly bool) ([]sdk.Toast, error)
	Dismiss(ctx context.Context, id string) error
}

// ClientBackend adapts an sdk.Client to Backend.
type ClientBackend struct {
	Client *sdk.Client
}

func (b ClientBackend) Notify(ctx context.Context, req sdk.CreateRequest) (string, error) {
	return b.Client.Push(ctx, req)
}

func (b ClientBackend) RaiseAlert(ctx context.Context, req sdk.CreateRequest) (string, error) {
	return b.Client.Alert(ctx, req)
}

func (b ClientBackend) List(ctx context.Context, visibleOnly bool) ([]sdk.Toast, error) {
	if visibleOnly {
		return b.Client.Visible(ctx)
	}
	return b.Client.List(ctx)
}

func (b ClientBackend) Dismiss(ctx context.Context, id string) error {
	return b.Client.Dismiss(ctx, id)
}
