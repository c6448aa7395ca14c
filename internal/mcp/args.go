package mcp

import (
	"encoding/json"
	"fmt"

	mcplib "github.com/modelcontextprotocol/go-sdk/mcp"
)

// getString extracts a string value from raw JSON tool arguments.
// Returns defaultVal if the key is absent or not a string.
func getString(raw json.RawMessage, key, defaultVal string) string {
	s, ok := parseArgs(raw)[key].(string)
	if !ok {
		return defaultVal
	}
	return s
}

// getInt extracts an integer value. JSON numbers are float64, so this
// truncates.
func getInt(raw json.RawMessage, key string, defaultVal int) int {
	f, ok := parseArgs(raw)[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(f)
}

func getBool(raw json.RawMessage, key string, defaultVal bool) bool {
	b, ok := parseArgs(raw)[key].(bool)
	if !ok {
		return defaultVal
	}
	return b
}

func textResult(text string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{&mcplib.TextContent{Text: text}},
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	var r mcplib.CallToolResult
	r.SetError(fmt.Errorf("%s", msg))
	return &r
}

func parseArgs(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
