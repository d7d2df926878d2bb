package tools

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ddsprasad/data-sense-ai/pkg/apperrors"
	"github.com/ddsprasad/data-sense-ai/pkg/services"
)

// ErrorResponse represents a structured error in tool results.
// It is returned as a tool result rather than a protocol error so the
// calling model can read it and rephrase or retry.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for errors the caller can act on (bad arguments, a question that
// could not be answered). System failures should still return Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
//
// Example:
//
//	return NewErrorResultWithDetails(
//	    "exhausted",
//	    res.Diagnostic,
//	    map[string]any{"last_sql": res.SQL, "attempts": res.Attempts},
//	), nil
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// resolutionErrorCode maps a failed resolution to a stable error code.
func resolutionErrorCode(res *services.Resolution) string {
	if res.Outcome == services.OutcomeExhausted {
		return "exhausted"
	}
	switch {
	case res.Err == nil:
		return "rejected"
	case errors.Is(res.Err, apperrors.ErrCatalogUnavailable):
		return "catalog_unavailable"
	case errors.Is(res.Err, apperrors.ErrTransportFailure):
		return "service_unavailable"
	case errors.Is(res.Err, apperrors.ErrCancelled):
		return "cancelled"
	case errors.Is(res.Err, apperrors.ErrValidationFailure):
		return "invalid_sql"
	case errors.Is(res.Err, apperrors.ErrExtractionFailure):
		return "no_sql"
	}
	return "rejected"
}
