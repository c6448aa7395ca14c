// Package mcp exposes the toast registry as Model Context Protocol tools
// so AI agents working an incident can raise and manage notifications.
package mcp

import (
	"context"
	"log/slog"
	"net/http"

	mcplib "github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewServer creates an MCP server exposing the toastd tools.
func NewServer(backend Backend, version string, logger *slog.Logger) *mcplib.Server {
	s := mcplib.NewServer(&mcplib.Implementation{
		Name:    "toastd",
		Version: version,
	}, &mcplib.ServerOptions{
		Instructions: "toastd shows transient notifications on the EDR dashboard. " +
			"Use these tools to notify the analyst, raise security alerts, " +
			"and inspect or dismiss what is on screen.",
	})

	h := &handlers{backend: backend, logger: logger}
	s.AddTool(notifyTool(), h.handleNotify)
	s.AddTool(raiseAlertTool(), h.handleRaiseAlert)
	s.AddTool(listToastsTool(), h.handleListToasts)
	s.AddTool(dismissToastTool(), h.handleDismissToast)
	return s
}

// HTTPHandler serves s over the streamable HTTP transport.
func HTTPHandler(s *mcplib.Server) http.Handler {
	return mcplib.NewStreamableHTTPHandler(func(*http.Request) *mcplib.Server { return s }, nil)
}

// ServeStdio runs s on stdin/stdout until ctx is cancelled or the client
// disconnects.
func ServeStdio(ctx context.Context, s *mcplib.Server) error {
	return s.Run(ctx, &mcplib.StdioTransport{})
}
