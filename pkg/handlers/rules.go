package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-discover/pkg/models"
	"github.com/ekaya-inc/ekaya-discover/pkg/rules"
	"github.com/ekaya-inc/ekaya-discover/pkg/services"
)

// RulesListResponse for GET /api/rules
type RulesListResponse struct {
	Rules []models.Rule `json:"rules"`
	Total int           `json:"total"`
}

// RulesHandler lists the registered rules.
type RulesHandler struct {
	discovery services.DiscoveryService
	logger    *zap.Logger
}

// NewRulesHandler creates a new rules handler.
func NewRulesHandler(discovery services.DiscoveryService, logger *zap.Logger) *RulesHandler {
	return &RulesHandler{discovery: discovery, logger: logger}
}

// RegisterRoutes registers the rules handler's routes on the given mux.
func (h *RulesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/rules", h.List)
}

// List handles GET /api/rules?select=<glob>
func (h *RulesHandler) List(w http.ResponseWriter, r *http.Request) {
	sel, err := rules.ParseSelector(r.URL.Query().Get("select"))
	if err != nil {
		writeServiceError(w, h.logger, "List rules", err)
		return
	}

	selected, err := h.discovery.Rules(sel)
	if err != nil {
		writeServiceError(w, h.logger, "List rules", err)
		return
	}
	if selected == nil {
		selected = []models.Rule{}
	}

	writeOK(w, h.logger, RulesListResponse{Rules: selected, Total: len(selected)})
}
