package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-discover/pkg/services"
)

// MsqlRequest for POST /api/msql
type MsqlRequest struct {
	Template string `json:"template"`
	DryRun   bool   `json:"dry_run"`
}

// MsqlHandler expands and runs msql templates.
type MsqlHandler struct {
	discovery services.DiscoveryService
	logger    *zap.Logger
}

// NewMsqlHandler creates a new msql handler.
func NewMsqlHandler(discovery services.DiscoveryService, logger *zap.Logger) *MsqlHandler {
	return &MsqlHandler{discovery: discovery, logger: logger}
}

// RegisterRoutes registers the msql handler's routes on the given mux.
func (h *MsqlHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/msql", h.Run)
}

// Run handles POST /api/msql
func (h *MsqlHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req MsqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Template) == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "template is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	result, err := h.discovery.Msql(r.Context(), req.Template, req.DryRun)
	if err != nil {
		writeServiceError(w, h.logger, "Run msql", err)
		return
	}

	writeOK(w, h.logger, result)
}
