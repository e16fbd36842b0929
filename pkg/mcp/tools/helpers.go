package tools

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// trimString removes leading and trailing whitespace from a string.
func trimString(s string) string {
	return strings.TrimSpace(s)
}

func arguments(req mcp.CallToolRequest) map[string]any {
	args, _ := req.Params.Arguments.(map[string]any)
	return args
}

// getOptionalString extracts an optional string argument from the request.
func getOptionalString(req mcp.CallToolRequest, key string) string {
	val, _ := arguments(req)[key].(string)
	return trimString(val)
}

// getOptionalFloat extracts an optional float argument from the request.
func getOptionalFloat(req mcp.CallToolRequest, key string) (float64, bool) {
	val, ok := arguments(req)[key].(float64)
	return val, ok
}

// getOptionalBool extracts an optional boolean argument from the request.
func getOptionalBool(req mcp.CallToolRequest, key string) (bool, bool) {
	val, ok := arguments(req)[key].(bool)
	return val, ok
}

// getOptionalStringList accepts either a JSON array of strings or a single
// comma separated string.
func getOptionalStringList(req mcp.CallToolRequest, key string) ([]string, error) {
	raw, ok := arguments(req)[key]
	if !ok || raw == nil {
		return nil, nil
	}

	var out []string
	switch v := raw.(type) {
	case string:
		for _, part := range strings.Split(v, ",") {
			if part = trimString(part); part != "" {
				out = append(out, part)
			}
		}
	case []any:
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string", key, i)
			}
			if s = trimString(s); s != "" {
				out = append(out, s)
			}
		}
	default:
		return nil, fmt.Errorf("%s must be an array of strings", key)
	}
	return out, nil
}
