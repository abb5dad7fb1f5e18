package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// ParseMemberID extracts the membership id from path parameter mid.
func ParseMemberID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (int64, bool) {
	return parseID(w, r, "mid", "invalid_member_id", "Invalid member ID format", logger)
}

// ParseTicketID extracts the ticket id from path parameter tid.
func ParseTicketID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (int64, bool) {
	return parseID(w, r, "tid", "invalid_ticket_id", "Invalid ticket ID format", logger)
}

// parseID parses a positive int64 path value, writing a 400 on failure.
func parseID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(pathParam), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, logger, http.StatusBadRequest, errorCode, errorMessage)
		return 0, false
	}
	return id, true
}
