package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-discover/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-discover/pkg/models"
	"github.com/ekaya-inc/ekaya-discover/pkg/services"
)

type scanEnvelope struct {
	Success bool                `json:"success"`
	Data    services.ScanReport `json:"data"`
}

func scansMux(m *mockDiscoveryService) *http.ServeMux {
	mux := http.NewServeMux()
	NewScansHandler(m, zap.NewNop()).RegisterRoutes(mux)
	return mux
}

func sampleReport() *services.ScanReport {
	return &services.ScanReport{
		Tables:    1,
		Succeeded: 1,
		Rules:     []string{"ip_v4"},
		Summary: &models.ScanSummary{
			Threshold: 0.95, Policy: models.ClassificationPolicyAll,
			ScannedColumns: 1, ClassifiedColumns: 1,
			RuleCounts: []models.RuleCount{{RuleName: "ip_v4", Columns: 1}},
			Classified: []models.ScanRow{{Catalog: "wh", Database: "public", Table: "t1", Column: "ip", RuleName: "ip_v4", Frequency: 1}},
		},
		Message: "Scanned 1 table.",
	}
}

func TestScansHandler_Scan(t *testing.T) {
	m := &mockDiscoveryService{report: sampleReport()}

	body := `{"tables": "t*", "rules": ["ip_v4", "email"], "sample_size": 100, "column_type_classification_threshold": 0.5}`
	rec := httptest.NewRecorder()
	scansMux(m).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/scans", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var env scanEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.True(t, env.Success)
	assert.Equal(t, 1, env.Data.Summary.ClassifiedColumns)

	assert.Equal(t, "t*", m.lastReq.Tables)
	assert.Equal(t, []string{"ip_v4", "email"}, m.lastReq.Rules)
	require.NotNil(t, m.lastReq.SampleSize)
	assert.Equal(t, 100, *m.lastReq.SampleSize)
	require.NotNil(t, m.lastReq.Threshold)
	assert.Equal(t, 0.5, *m.lastReq.Threshold)
}

func TestScansHandler_ScanEmptyBody(t *testing.T) {
	m := &mockDiscoveryService{report: sampleReport()}
	rec := httptest.NewRecorder()
	scansMux(m).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/scans", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, services.ScanRequest{}, m.lastReq)
}

func TestScansHandler_ScanErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	scansMux(&mockDiscoveryService{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/scans", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	m := &mockDiscoveryService{scanErr: apperrors.NewConfigurationError("column_type_classification_threshold", apperrors.ErrInvalidThreshold)}
	rec = httptest.NewRecorder()
	scansMux(m).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/scans", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "column_type_classification_threshold")
}

func TestScansHandler_Latest(t *testing.T) {
	m := &mockDiscoveryService{}
	rec := httptest.NewRecorder()
	scansMux(m).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/scans/latest", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	m.latest = sampleReport()
	rec = httptest.NewRecorder()
	scansMux(m).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/scans/latest", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var env scanEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Equal(t, "Scanned 1 table.", env.Data.Message)
}

func TestScansHandler_LatestReclassified(t *testing.T) {
	m := &mockDiscoveryService{
		latest:    sampleReport(),
		reclassed: &models.ScanSummary{Threshold: 0.99, Policy: models.ClassificationPolicyBest, ScannedColumns: 1},
	}

	rec := httptest.NewRecorder()
	scansMux(m).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/scans/latest?threshold=0.99&policy=best", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 0.99, m.reclassTh)
	assert.Equal(t, models.ClassificationPolicyBest, m.reclassPo)
	var env scanEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Equal(t, 0, env.Data.Summary.ClassifiedColumns)
	// The stored report is untouched.
	assert.Equal(t, 1, m.latest.Summary.ClassifiedColumns)

	rec = httptest.NewRecorder()
	scansMux(m).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/scans/latest?threshold=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	scansMux(m).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/scans/latest?threshold=3", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
