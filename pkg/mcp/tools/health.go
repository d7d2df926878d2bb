package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ddsprasad/data-sense-ai/pkg/services"
)

type healthResult struct {
	Status   string           `json:"status"`
	Version  string           `json:"version"`
	Pipeline *services.Status `json:"pipeline,omitempty"`
}

// RegisterHealthTool adds a health check tool to the MCP server.
// With a resolver, the status is "degraded" until the schema catalog is built.
func RegisterHealthTool(s *server.MCPServer, version string, resolver services.ResolverService) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status and version"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		health := healthResult{Status: "ok", Version: version}
		if resolver != nil {
			status := resolver.Status()
			health.Pipeline = &status
			if !status.CatalogReady {
				health.Status = "degraded"
			}
		}

		result, err := json.Marshal(health)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal health result: %w", err)
		}
		return mcp.NewToolResultText(string(result)), nil
	})
}
