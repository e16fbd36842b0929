package tools

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/ekaya-discover/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-discover/pkg/logging"
)

// ErrorResponse represents a structured error in tool results.
// It is returned as tool content so the client sees the details instead of
// a bare protocol error.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for errors the caller can act on (bad arguments, unknown rule, no scan yet).
// System failures are still returned as Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
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

// serviceErrorCode returns the error code for an actionable service error,
// or "" when err is a system failure.
func serviceErrorCode(err error) string {
	switch {
	case apperrors.IsConfigurationError(err),
		errors.Is(err, apperrors.ErrInvalidFilter),
		errors.Is(err, apperrors.ErrInvalidThreshold):
		return "invalid_parameters"
	case errors.Is(err, apperrors.ErrRuleNotFound):
		return "rule_not_found"
	case errors.Is(err, apperrors.ErrUnknownDatasource):
		return "unknown_datasource"
	case errors.Is(err, apperrors.ErrNoScanResult):
		return "no_scan_result"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return ""
}

// serviceErrorResult converts a service error into a tool result when the caller
// can act on it. Other errors are returned sanitized as Go errors.
func serviceErrorResult(err error) (*mcp.CallToolResult, error) {
	msg := logging.SanitizeError(err)
	if code := serviceErrorCode(err); code != "" {
		return NewErrorResult(code, msg), nil
	}
	return nil, errors.New(msg)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(b)), nil
}
