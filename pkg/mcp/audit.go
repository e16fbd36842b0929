package mcp

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-discover/pkg/logging"
)

// maxParamSize bounds string arguments written to the log.
const maxParamSize = 1024

// sqlStringLiteralPattern matches SQL string literals, including '' escapes.
var sqlStringLiteralPattern = regexp.MustCompile(`'(?:[^']*(?:'')?)*[^']*'`)

// CallLogger logs every tool call with its sanitized arguments, outcome and duration.
type CallLogger struct {
	logger *zap.Logger

	// startTimes tracks when tool calls begin, keyed by request ID.
	startTimes sync.Map
}

// NewCallLogger creates a CallLogger writing to logger.
func NewCallLogger(logger *zap.Logger) *CallLogger {
	return &CallLogger{logger: logger.Named("mcp-calls")}
}

// Hooks returns mcp-go Hooks configured to capture tool call events.
func (c *CallLogger) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(c.beforeCallTool)
	hooks.AddAfterCallTool(c.afterCallTool)
	hooks.AddOnError(c.onError)
	return hooks
}

func (c *CallLogger) beforeCallTool(_ context.Context, id any, req *mcplib.CallToolRequest) {
	c.startTimes.Store(id, time.Now())
	c.logger.Debug("Tool call started",
		zap.String("tool", req.Params.Name),
		zap.Any("arguments", sanitizeParams(req.Params.Arguments)))
}

func (c *CallLogger) afterCallTool(_ context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	fields := []zap.Field{
		zap.String("tool", req.Params.Name),
		zap.Duration("duration", c.elapsed(id)),
	}

	if result != nil && result.IsError {
		fields = append(fields, zap.String("error", resultPreview(result)))
		c.logger.Warn("Tool call returned an error", fields...)
		return
	}
	c.logger.Info("Tool call completed", fields...)
}

func (c *CallLogger) onError(_ context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}
	tool := ""
	if req, ok := message.(*mcplib.CallToolRequest); ok {
		tool = req.Params.Name
	}
	c.logger.Error("Tool call failed",
		zap.String("tool", tool),
		zap.Duration("duration", c.elapsed(id)),
		zap.String("error", logging.SanitizeError(err)))
}

func (c *CallLogger) elapsed(id any) time.Duration {
	if v, ok := c.startTimes.LoadAndDelete(id); ok {
		return time.Since(v.(time.Time))
	}
	return 0
}

// sanitizeParams truncates long strings and redacts literals in template arguments.
func sanitizeParams(args any) map[string]any {
	params, ok := args.(map[string]any)
	if !ok || len(params) == 0 {
		return nil
	}

	sanitized := make(map[string]any, len(params))
	for k, v := range params {
		s, ok := v.(string)
		if !ok {
			sanitized[k] = v
			continue
		}
		if isSQLParam(k) {
			s = sqlStringLiteralPattern.ReplaceAllString(s, "'***'")
		}
		sanitized[k] = logging.TruncateString(s, maxParamSize)
	}
	return sanitized
}

// isSQLParam returns true if a parameter key likely contains SQL.
func isSQLParam(key string) bool {
	lower := strings.ToLower(key)
	return lower == "sql" || lower == "template" || strings.HasSuffix(lower, "_sql")
}

func resultPreview(result *mcplib.CallToolResult) string {
	for _, content := range result.Content {
		if tc, ok := content.(mcplib.TextContent); ok {
			return logging.TruncateString(tc.Text, 200)
		}
	}
	return ""
}
