package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-discover/pkg/models"
	"github.com/ekaya-inc/ekaya-discover/pkg/repositories"
	"github.com/ekaya-inc/ekaya-discover/pkg/services"
)

// ClassificationsResponse for GET /api/classifications
type ClassificationsResponse struct {
	Classifications []models.ClassificationRecord `json:"classifications"`
	Total           int                           `json:"total"`
}

// ClassificationsHandler serves the classification log.
type ClassificationsHandler struct {
	discovery services.DiscoveryService
	logger    *zap.Logger
}

// NewClassificationsHandler creates a new classifications handler.
func NewClassificationsHandler(discovery services.DiscoveryService, logger *zap.Logger) *ClassificationsHandler {
	return &ClassificationsHandler{discovery: discovery, logger: logger}
}

// RegisterRoutes registers the classifications handler's routes on the given mux.
func (h *ClassificationsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/classifications", h.List)
}

// List handles GET /api/classifications?catalog=&schema=&table=&class=
func (h *ClassificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repositories.ClassificationFilter{
		Catalog:   q.Get("catalog"),
		Schema:    q.Get("schema"),
		Table:     q.Get("table"),
		ClassName: q.Get("class"),
	}

	records, err := h.discovery.Classifications(r.Context(), f)
	if err != nil {
		writeServiceError(w, h.logger, "List classifications", err)
		return
	}
	if records == nil {
		records = []models.ClassificationRecord{}
	}

	writeOK(w, h.logger, ClassificationsResponse{Classifications: records, Total: len(records)})
}
