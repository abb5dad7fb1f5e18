package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-tracker/pkg/apperrors"
)

// maxRequestBodyBytes bounds JSON request bodies.
const maxRequestBodyBytes = 1 << 20

// ApiResponse wraps data in the format expected by the frontend.
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
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// writeData writes data wrapped in a successful ApiResponse.
func writeData(w http.ResponseWriter, logger *zap.Logger, statusCode int, data any) {
	if err := WriteJSON(w, statusCode, ApiResponse{Success: true, Data: data}); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}

// writeError writes an error response, logging any encoding failure.
func writeError(w http.ResponseWriter, logger *zap.Logger, statusCode int, errorCode, message string) {
	if err := ErrorResponse(w, statusCode, errorCode, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

// writeServiceError maps a service error to its HTTP status. A denial is
// always reported as 403 and never as an empty result.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, operation string, err error) {
	switch {
	case errors.Is(err, apperrors.ErrUnauthorized):
		writeError(w, logger, http.StatusForbidden, "forbidden", "You do not have access to this resource")
	case errors.Is(err, apperrors.ErrNotFound):
		writeError(w, logger, http.StatusNotFound, "not_found", "Resource not found")
	case errors.Is(err, apperrors.ErrValidation):
		writeError(w, logger, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, apperrors.ErrInvalidRole):
		writeError(w, logger, http.StatusBadRequest, "invalid_role", "Unknown role")
	case errors.Is(err, apperrors.ErrAlreadyMember):
		writeError(w, logger, http.StatusConflict, "already_member", "User is already a member of the project")
	case errors.Is(err, apperrors.ErrLastAdmin):
		writeError(w, logger, http.StatusConflict, "last_admin", "A project must keep at least one Admin")
	case errors.Is(err, apperrors.ErrConflict):
		writeError(w, logger, http.StatusConflict, "conflict", "The resource was modified by another request")
	default:
		logger.Error("Request failed",
			zap.String("operation", operation),
			zap.Bool("configuration_fault", errors.Is(err, apperrors.ErrConfiguration)),
			zap.Error(err))
		writeError(w, logger, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

// decodeJSON reads a bounded JSON body into dst, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, logger *zap.Logger, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, logger, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return false
	}
	return true
}
