package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-discover/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-discover/pkg/logging"
)

// ApiResponse is the envelope of every /api response.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// errorStatus maps a service error to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case apperrors.IsConfigurationError(err),
		errors.Is(err, apperrors.ErrInvalidFilter),
		errors.Is(err, apperrors.ErrInvalidThreshold):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, apperrors.ErrRuleNotFound):
		return http.StatusNotFound, "rule_not_found"
	case errors.Is(err, apperrors.ErrUnknownDatasource):
		return http.StatusNotFound, "unknown_datasource"
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrNoScanResult):
		return http.StatusConflict, "no_scan_result"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "cancelled"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeServiceError logs err (sanitized) and writes the mapped error response.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, action string, err error) {
	status, code := errorStatus(err)
	msg := logging.SanitizeError(err)
	if status >= http.StatusInternalServerError {
		logger.Error(action+" failed", zap.String("error", msg))
	} else {
		logger.Debug(action+" rejected", zap.Int("status", status), zap.String("error", msg))
	}
	if err := ErrorResponse(w, status, code, msg); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

func writeOK(w http.ResponseWriter, logger *zap.Logger, data any) {
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: data}); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}
