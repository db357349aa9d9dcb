// Package mcpserver exposes the tool gateway over the Model Context Protocol.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
	"github.com/tripgenie/tripgenie-backend/internal/tools"
)

// ServerName identifies this server to MCP clients
const ServerName = "tripgenie-tools"

// Server serves every registered gateway tool. Calls go through the gateway, so
// schema validation, timeouts and the circuit breaker apply as they do for turns.
type Server struct {
	gateway *tools.Gateway
	mcp     *server.MCPServer
	logger  *logrus.Logger
}

// New registers the gateway's tools on a fresh MCP server
func New(gw *tools.Gateway, version string, logger *logrus.Logger) (*Server, error) {
	s := &Server{
		gateway: gw,
		mcp: server.NewMCPServer(ServerName, version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		logger: logger,
	}

	for _, t := range gw.Tools() {
		schema, err := json.Marshal(t.Schema().JSONSchema())
		if err != nil {
			return nil, fmt.Errorf("failed to encode schema for %s: %w", t.Name(), err)
		}
		s.mcp.AddTool(mcp.NewToolWithRawSchema(t.Name(), t.Description(), schema), s.handler(t.Name()))
	}

	logger.WithField("tools", len(gw.Tools())).Info("MCP server ready")
	return s, nil
}

// MCP returns the underlying protocol server
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// Serve serves requests on arbitrary streams until ctx is done or in is closed
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := s.gateway.Invoke(ctx, name, tools.Args(req.GetArguments()))

		s.logger.WithFields(logrus.Fields{
			"tool":     name,
			"status":   result.Status,
			"duration": result.Duration,
		}).Debug("MCP tool call")

		if result.Failed() {
			return mcp.NewToolResultError(result.Content), nil
		}
		return mcp.NewToolResultText(result.Content), nil
	}
}
