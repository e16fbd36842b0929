package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-discover/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-discover/pkg/models"
	"github.com/ekaya-inc/ekaya-discover/pkg/repositories"
	"github.com/ekaya-inc/ekaya-discover/pkg/rules"
	"github.com/ekaya-inc/ekaya-discover/pkg/services"
)

// mockDiscoveryService is a configurable DiscoveryService for tool tests.
type mockDiscoveryService struct {
	registry *rules.Registry

	report  *services.ScanReport
	scanErr error
	lastReq services.ScanRequest

	latest    *services.ScanReport
	reclassed *models.ScanSummary
	reclassTh float64
	reclassPo models.ClassificationPolicy

	msql         *services.MsqlResult
	msqlErr      error
	msqlTemplate string
	msqlDryRun   bool
}

func (m *mockDiscoveryService) Scan(ctx context.Context, req services.ScanRequest, progress services.ProgressFunc) (*services.ScanReport, error) {
	m.lastReq = req
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	return m.report, nil
}

func (m *mockDiscoveryService) Msql(ctx context.Context, template string, dryRun bool) (*services.MsqlResult, error) {
	m.msqlTemplate, m.msqlDryRun = template, dryRun
	if m.msqlErr != nil {
		return nil, m.msqlErr
	}
	return m.msql, nil
}

func (m *mockDiscoveryService) Rules(sel rules.Selector) ([]models.Rule, error) {
	return m.registry.Rules(sel)
}

func (m *mockDiscoveryService) RulesInfo() []rules.RuleInfo {
	return m.registry.RulesInfo()
}

func (m *mockDiscoveryService) LatestScan() (*services.ScanReport, error) {
	if m.latest == nil {
		return nil, apperrors.ErrNoScanResult
	}
	return m.latest, nil
}

func (m *mockDiscoveryService) Reclassify(threshold float64, policy models.ClassificationPolicy) (*models.ScanSummary, error) {
	if m.latest == nil {
		return nil, apperrors.ErrNoScanResult
	}
	if threshold < 0 || threshold > 1 {
		return nil, apperrors.NewConfigurationError("column_type_classification_threshold", apperrors.ErrInvalidThreshold)
	}
	m.reclassTh, m.reclassPo = threshold, policy
	return m.reclassed, nil
}

func (m *mockDiscoveryService) Classifications(ctx context.Context, f repositories.ClassificationFilter) ([]models.ClassificationRecord, error) {
	return nil, nil
}

var _ services.DiscoveryService = (*mockDiscoveryService)(nil)

type toolResponse struct {
	Result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// callTool sends a tools/call request through the server and returns the decoded response.
func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) toolResponse {
	t.Helper()

	msg, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	require.NoError(t, err)

	result := s.HandleMessage(context.Background(), msg)
	resultBytes, err := json.Marshal(result)
	require.NoError(t, err)

	var resp toolResponse
	require.NoError(t, json.Unmarshal(resultBytes, &resp))
	return resp
}

// toolText returns the text of a successful tool call.
func toolText(t *testing.T, resp toolResponse) string {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected protocol error")
	require.NotEmpty(t, resp.Result.Content)
	return resp.Result.Content[0].Text
}

// toolError decodes a structured error result.
func toolError(t *testing.T, resp toolResponse) ErrorResponse {
	t.Helper()
	require.True(t, resp.Result.IsError, "expected an error result")
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(toolText(t, resp)), &errResp))
	return errResp
}
