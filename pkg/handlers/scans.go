package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-discover/pkg/models"
	"github.com/ekaya-inc/ekaya-discover/pkg/services"
)

// ScansHandler runs scans and serves the latest report.
type ScansHandler struct {
	discovery services.DiscoveryService
	logger    *zap.Logger
}

// NewScansHandler creates a new scans handler.
func NewScansHandler(discovery services.DiscoveryService, logger *zap.Logger) *ScansHandler {
	return &ScansHandler{discovery: discovery, logger: logger}
}

// RegisterRoutes registers the scans handler's routes on the given mux.
func (h *ScansHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/scans", h.Scan)
	mux.HandleFunc("GET /api/scans/latest", h.Latest)
}

// Scan handles POST /api/scans. An empty body scans with the configured defaults.
func (h *ScansHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var req services.ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	report, err := h.discovery.Scan(r.Context(), req, nil)
	if err != nil {
		writeServiceError(w, h.logger, "Scan", err)
		return
	}

	writeOK(w, h.logger, report)
}

// Latest handles GET /api/scans/latest. The threshold and policy query parameters
// reclassify the stored result without rescanning.
func (h *ScansHandler) Latest(w http.ResponseWriter, r *http.Request) {
	report, err := h.discovery.LatestScan()
	if err != nil {
		writeServiceError(w, h.logger, "Get latest scan", err)
		return
	}

	q := r.URL.Query()
	thresholdParam, policyParam := q.Get("threshold"), q.Get("policy")
	if thresholdParam == "" && policyParam == "" {
		writeOK(w, h.logger, report)
		return
	}

	threshold := report.Summary.Threshold
	if thresholdParam != "" {
		threshold, err = strconv.ParseFloat(thresholdParam, 64)
		if err != nil {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "threshold must be a number"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
	}
	policy := report.Summary.Policy
	if policyParam != "" {
		policy = models.ClassificationPolicy(policyParam)
	}

	summary, err := h.discovery.Reclassify(threshold, policy)
	if err != nil {
		writeServiceError(w, h.logger, "Reclassify", err)
		return
	}

	reclassified := *report
	reclassified.Summary = summary
	reclassified.Message = services.DescribeSummary(summary, report.Succeeded, report.Skipped)
	writeOK(w, h.logger, &reclassified)
}
