package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-discover/pkg/services"
)

type healthResult struct {
	Status   string   `json:"status"`
	Version  string   `json:"version"`
	Catalogs []string `json:"catalogs"`
}

// RegisterHealthTool adds a health check tool reporting the version and the
// catalogs available to scan. datasources may be nil.
func RegisterHealthTool(s *server.MCPServer, version string, datasources services.DatasourceService) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status, version and the catalogs available to scan"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := healthResult{Status: "ok", Version: version, Catalogs: []string{}}
		if datasources != nil {
			for _, ds := range datasources.List() {
				result.Catalogs = append(result.Catalogs, ds.Name)
			}
		}
		return jsonResult(result)
	})
}
