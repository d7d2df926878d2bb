// Package tools provides MCP tool implementations for data-sense-ai.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ddsprasad/data-sense-ai/pkg/services"
)

// ToolDeps contains dependencies for the question tools.
type ToolDeps struct {
	Resolver services.ResolverService
	Logger   *zap.Logger
}

// RegisterQuestionTools registers resolve_question and refresh_schema.
func RegisterQuestionTools(s *server.MCPServer, deps *ToolDeps) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	registerResolveQuestionTool(s, deps)
	registerRefreshSchemaTool(s, deps)
}

type resolveResponse struct {
	Question  string           `json:"question"`
	SQL       string           `json:"sql"`
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int              `json:"row_count"`
	RowsShown int              `json:"rows_shown"`
	Truncated bool             `json:"truncated"`
	Attempts  int              `json:"attempts"`
	Tables    []string         `json:"tables"`
	FollowUp  bool             `json:"follow_up"`
	Cached    bool             `json:"cached"`
}

func registerResolveQuestionTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"resolve_question",
		mcp.WithDescription(
			"Answer a business question by generating and running a read-only SQL query against the warehouse. "+
				"Returns the SQL, the column names, and up to display_rows rows. "+
				"For a follow-up, pass the previous question and its SQL so the new query refines it. "+
				"Example: resolve_question(question='total disbursed loans by branch in Q4 2024').",
		),
		mcp.WithString(
			"question",
			mcp.Required(),
			mcp.Description("The natural-language question"),
		),
		mcp.WithString(
			"prior_question",
			mcp.Description("Optional - The previous question when this is a follow-up"),
		),
		mcp.WithString(
			"prior_sql",
			mcp.Description("Optional - The SQL that answered the previous question"),
		),
		mcp.WithArray(
			"prior_tables",
			mcp.Description("Optional - Tables the previous query used"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return nil, err
		}
		question = trimString(question)
		if question == "" {
			return NewErrorResult("invalid_parameters", "parameter 'question' cannot be empty"), nil
		}

		var prior *services.PriorContext
		priorQuestion := getOptionalString(req, "prior_question")
		priorSQL := getOptionalString(req, "prior_sql")
		if priorQuestion != "" || priorSQL != "" {
			if priorQuestion == "" || priorSQL == "" {
				return NewErrorResult("invalid_parameters", "prior_question and prior_sql must be given together"), nil
			}
			prior = &services.PriorContext{
				Question: priorQuestion,
				SQL:      priorSQL,
				Tables:   getStringSlice(req, "prior_tables"),
			}
		}

		res := deps.Resolver.Resolve(ctx, question, prior)
		if !res.Succeeded() {
			deps.Logger.Debug("resolve_question failed",
				zap.String("task_id", res.TaskID),
				zap.String("outcome", string(res.Outcome)),
				zap.String("diagnostic", res.Diagnostic),
			)
			return NewErrorResultWithDetails(resolutionErrorCode(res), res.Diagnostic, map[string]any{
				"outcome":    res.Outcome,
				"attempts":   res.Attempts,
				"last_sql":   res.SQL,
				"last_error": res.LastError,
			}), nil
		}

		jsonResult, err := json.Marshal(newResolveResponse(res))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal resolve result: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

func newResolveResponse(res *services.Resolution) resolveResponse {
	columns := make([]string, len(res.Columns))
	for i, c := range res.Columns {
		columns[i] = c.Name
	}
	rows := res.Rows
	if res.DisplayRows > 0 && len(rows) > res.DisplayRows {
		rows = rows[:res.DisplayRows]
	}
	return resolveResponse{
		Question:  res.Question,
		SQL:       res.SQL,
		Columns:   columns,
		Rows:      rows,
		RowCount:  res.RowCount,
		RowsShown: len(rows),
		Truncated: res.Truncated,
		Attempts:  res.Attempts,
		Tables:    res.Tables,
		FollowUp:  res.FollowUp,
		Cached:    res.Cached,
	}
}

func registerRefreshSchemaTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"refresh_schema",
		mcp.WithDescription(
			"Rebuild the warehouse schema catalog. Use after tables or columns change. "+
				"If the rebuild fails the previous catalog stays in use.",
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := deps.Resolver.RefreshSchema(ctx); err != nil {
			deps.Logger.Warn("refresh_schema failed", zap.Error(err))
			return NewErrorResult("refresh_failed", err.Error()), nil
		}

		status := deps.Resolver.Status()
		jsonResult, err := json.Marshal(map[string]any{
			"refreshed": true,
			"tables":    status.CatalogTables,
			"built_at":  status.CatalogBuiltAt,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal refresh result: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}
