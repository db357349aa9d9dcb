package mcpserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripgenie/tripgenie-backend/internal/logging"
	"github.com/tripgenie/tripgenie-backend/internal/tools"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := logging.Discard()
	gw := tools.NewGateway(tools.GatewayConfig{Timeout: time.Second, Logger: logger})
	gw.Register(tools.NewItinerary(nil))

	s, err := New(gw, "test", logger)
	require.NoError(t, err)
	return s
}

func callTool(name string, args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestHandler_ItinerarySuccess(t *testing.T) {
	s := newTestServer(t)

	res, err := s.handler(tools.ItineraryName)(context.Background(), callTool(tools.ItineraryName, map[string]interface{}{
		"destination": "Rome",
		"start_date":  "2025-07-05",
		"end_date":    "2025-07-07",
		"travelers":   2,
		"interests":   []interface{}{"history"},
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Rome")
}

func TestHandler_InvalidArgumentsAreToolErrors(t *testing.T) {
	s := newTestServer(t)

	res, err := s.handler(tools.ItineraryName)(context.Background(), callTool(tools.ItineraryName, map[string]interface{}{
		"destination": "Rome",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "missing required argument")
}

func TestListTools(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	s.MCP().HandleMessage(ctx, json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`))
	reply := s.MCP().HandleMessage(ctx, json.RawMessage(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))

	raw, err := json.Marshal(reply)
	require.NoError(t, err)

	var decoded struct {
		Result struct {
			Tools []struct {
				Name        string                 `json:"name"`
				InputSchema map[string]interface{} `json:"inputSchema"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded.Result.Tools, 1)
	assert.Equal(t, tools.ItineraryName, decoded.Result.Tools[0].Name)
	assert.Equal(t, "object", decoded.Result.Tools[0].InputSchema["type"])
}
