package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/yourorg/bookingsystem/internal/domain"
)

// errorResponse is the machine-readable error envelope. Kind is stable;
// message text is not part of the contract and never echoes store
// internals.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeError maps domain errors onto stable statuses and kinds.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	var status int
	var kind, message string

	switch {
	case errors.Is(err, domain.ErrInvalidRange):
		status, kind = http.StatusBadRequest, "invalid_range"
		message = "start must be before end and not in the past"
	case errors.Is(err, domain.ErrAuthentication):
		status, kind = http.StatusUnauthorized, "authentication_failed"
	case errors.Is(err, domain.ErrForbidden):
		status, kind = http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrConflict):
		status, kind = http.StatusConflict, "conflict"
		message = "the requested window overlaps an active reservation"
	case errors.Is(err, domain.ErrItemUnavailable):
		status, kind = http.StatusUnprocessableEntity, "item_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		status, kind = http.StatusGatewayTimeout, "store_timeout"
	default:
		status, kind = http.StatusInternalServerError, "internal"
		if log != nil {
			log.Error("request failed", slog.String("error", err.Error()))
		}
	}

	writeJSON(w, status, errorResponse{Error: kind, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
