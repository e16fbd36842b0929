package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-discover/pkg/rules"
)

func TestRulesHandler_List(t *testing.T) {
	registry, err := rules.NewRegistry(nil)
	require.NoError(t, err)
	mux := http.NewServeMux()
	NewRulesHandler(&mockDiscoveryService{registry: registry}, zap.NewNop()).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rules?select=ip_*", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Data RulesListResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	require.Equal(t, 2, env.Data.Total)
	assert.Equal(t, "ip_v4", env.Data.Rules[0].Name)
	assert.Equal(t, "ip_v6", env.Data.Rules[1].Name)
	assert.NotEmpty(t, env.Data.Rules[0].Pattern)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rules", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Equal(t, len(registry.All()), env.Data.Total)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rules?select=ip_*,-", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
