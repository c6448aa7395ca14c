package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcplib "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/oktsec/toastd/sdk"
)

type handlers struct {
	backend Backend
	logger  *slog.Logger
}

// --- Tool definitions ---

func notifyTool() *mcplib.Tool {
	return &mcplib.Tool{
		Name: "notify",
		Description: "Show a toast notification on the EDR dashboard. " +
			"Kinds: success, error, warning, info.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message":     map[string]any{"type": "string", "description": "Toast body"},
				"kind":        map[string]any{"type": "string", "enum": []string{"success", "error", "warning", "info"}},
				"title":       map[string]any{"type": "string", "description": "Optional heading"},
				"agent":       map[string]any{"type": "string", "description": "Endpoint agent id the toast refers to"},
				"duration_ms": map[string]any{"type": "integer", "description": "Lifetime override in milliseconds"},
			},
			"required": []string{"message"},
		},
	}
}

func raiseAlertTool() *mcplib.Tool {
	return &mcplib.Tool{
		Name: "raise_alert",
		Description: "Raise a security alert toast. Critical alerts stay on screen " +
			"twice as long as other toasts.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"severity": map[string]any{"type": "string", "enum": []string{"critical", "high", "medium", "low"}},
				"message":  map[string]any{"type": "string", "description": "What was detected"},
				"title":    map[string]any{"type": "string", "description": "Defaults to the severity, e.g. \"High alert\""},
				"agent":    map[string]any{"type": "string", "description": "Endpoint agent id"},
			},
			"required": []string{"severity", "message"},
		},
	}
}

func listToastsTool() *mcplib.Tool {
	return &mcplib.Tool{
		Name:        "list_toasts",
		Description: "List live toasts with their state and remaining time.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"visible_only": map[string]any{"type": "boolean", "description": "Only toasts currently on screen"},
			},
		},
	}
}

func dismissToastTool() *mcplib.Tool {
	return &mcplib.Tool{
		Name:        "dismiss_toast",
		Description: "Dismiss a toast by id. Dismissing an unknown id is not an error.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id": map[string]any{"type": "string", "description": "Toast id"},
			},
			"required": []string{"id"},
		},
	}
}

// --- Tool handlers ---

func (h *handlers) handleNotify(ctx context.Context, req *mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	args := req.Params.Arguments
	message := getString(args, "message", "")
	if message == "" {
		return errorResult("message is required"), nil
	}
	kind := getString(args, "kind", "info")
	if kind == "alert" {
		return errorResult("use raise_alert for alerts"), nil
	}

	id, err := h.backend.Notify(ctx, sdk.CreateRequest{
		Kind:       kind,
		Title:      getString(args, "title", ""),
		Message:    message,
		Agent:      getString(args, "agent", ""),
		DurationMs: int64(getInt(args, "duration_ms", 0)),
	})
	if err != nil {
		h.logger.Warn("mcp notify failed", "error", err)
		return errorResult(fmt.Sprintf("notify failed: %v", err)), nil
	}
	return textResult(fmt.Sprintf("toast %s created", id)), nil
}

func (h *handlers) handleRaiseAlert(ctx context.Context, req *mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	args := req.Params.Arguments
	severity := getString(args, "severity", "")
	message := getString(args, "message", "")
	if severity == "" || message == "" {
		return errorResult("severity and message are required"), nil
	}

	id, err := h.backend.RaiseAlert(ctx, sdk.CreateRequest{
		Kind:     "alert",
		Severity: severity,
		Title:    getString(args, "title", ""),
		Message:  message,
		Agent:    getString(args, "agent", ""),
	})
	if err != nil {
		h.logger.Warn("mcp raise_alert failed", "error", err)
		return errorResult(fmt.Sprintf("raise_alert failed: %v", err)), nil
	}
	return textResult(fmt.Sprintf("alert %s raised", id)), nil
}

func (h *handlers) handleListToasts(ctx context.Context, req *mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	toasts, err := h.backend.List(ctx, getBool(req.Params.Arguments, "visible_only", false))
	if err != nil {
		return errorResult(fmt.Sprintf("list failed: %v", err)), nil
	}
	if toasts == nil {
		toasts = []sdk.Toast{}
	}
	data, err := json.MarshalIndent(toasts, "", "  ")
	if err != nil {
		return nil, err
	}
	return textResult(string(data)), nil
}

func (h *handlers) handleDismissToast(ctx context.Context, req *mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id := getString(req.Params.Arguments, "id", "")
	if id == "" {
		return errorResult("id is required"), nil
	}
	if err := h.backend.Dismiss(ctx, id); err != nil {
		return errorResult(fmt.Sprintf("dismiss failed: %v", err)), nil
	}
	return textResult(fmt.Sprintf("toast %s dismissed", id)), nil
}
