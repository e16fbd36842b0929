package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-discover/pkg/logging"
	"github.com/ekaya-inc/ekaya-discover/pkg/models"
	"github.com/ekaya-inc/ekaya-discover/pkg/services"
)

// DatasourcesListResponse for GET /api/datasources
type DatasourcesListResponse struct {
	Datasources []*models.Datasource `json:"datasources"`
}

// DatasourcesHandler lists the configured catalogs and checks their connectivity.
type DatasourcesHandler struct {
	datasources services.DatasourceService
	logger      *zap.Logger
}

// NewDatasourcesHandler creates a new datasources handler.
func NewDatasourcesHandler(datasources services.DatasourceService, logger *zap.Logger) *DatasourcesHandler {
	return &DatasourcesHandler{datasources: datasources, logger: logger}
}

// RegisterRoutes registers the datasources handler's routes on the given mux.
func (h *DatasourcesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/datasources", h.List)
	mux.HandleFunc("POST /api/datasources/{name}/test", h.TestConnection)
}

// List handles GET /api/datasources
func (h *DatasourcesHandler) List(w http.ResponseWriter, r *http.Request) {
	writeOK(w, h.logger, DatasourcesListResponse{Datasources: h.datasources.List()})
}

// TestConnection handles POST /api/datasources/{name}/test
func (h *DatasourcesHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, err := h.datasources.Get(name); err != nil {
		writeServiceError(w, h.logger, "Test connection", err)
		return
	}

	if err := h.datasources.TestConnection(r.Context(), name); err != nil {
		msg := logging.SanitizeError(err)
		h.logger.Warn("Connection test failed", zap.String("catalog", name), zap.String("error", msg))
		if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: false, Error: "connection_failed", Message: msg}); err != nil {
			h.logger.Error("Failed to write response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "connection successful"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
