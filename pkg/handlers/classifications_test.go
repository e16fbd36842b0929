package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-discover/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-discover/pkg/models"
	"github.com/ekaya-inc/ekaya-discover/pkg/repositories"
)

func TestClassificationsHandler_List(t *testing.T) {
	m := &mockDiscoveryService{records: []models.ClassificationRecord{{
		TableCatalog: "wh", TableSchema: "public", TableName: "t1", ColumnName: "ip", ClassName: "ip_v4", Score: 0.99,
	}}}
	mux := http.NewServeMux()
	NewClassificationsHandler(m, zap.NewNop()).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/classifications?catalog=wh&table=t1&class=ip_v4", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, repositories.ClassificationFilter{Catalog: "wh", Table: "t1", ClassName: "ip_v4"}, m.lastFilter)
	var env struct {
		Data ClassificationsResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	require.Equal(t, 1, env.Data.Total)
	assert.Equal(t, "ip", env.Data.Classifications[0].ColumnName)
}

func TestClassificationsHandler_Empty(t *testing.T) {
	mux := http.NewServeMux()
	NewClassificationsHandler(&mockDiscoveryService{}, zap.NewNop()).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/classifications", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"classifications":[]`)

	mux = http.NewServeMux()
	NewClassificationsHandler(&mockDiscoveryService{recordsErr: apperrors.ErrNoScanResult}, zap.NewNop()).RegisterRoutes(mux)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/classifications", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}
