package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/yourorg/bookingsystem/internal/domain"
)

// IntervalResponse is one half-open window on the wire
type IntervalResponse struct {
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	ReservationID int64     `json:"reservationId,omitempty"`
}

// AvailabilityResponse holds an item's busy/free breakdown for a window
type AvailabilityResponse struct {
	ItemID int64              `json:"itemId"`
	From   time.Time          `json:"from"`
	To     time.Time          `json:"to"`
	Busy   []IntervalResponse `json:"busy"`
	Free   []IntervalResponse `json:"free"`
}

// AvailabilityHandler serves GET /api/items/{id}/availability?from=&to=
type AvailabilityHandler struct {
	engine BookingEngine
	logger *slog.Logger
}

// NewAvailabilityHandler creates an availability handler
func NewAvailabilityHandler(engine BookingEngine, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{engine: engine, logger: logger}
}

func (h *AvailabilityHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_body", Message: "item id must be an integer"})
		return
	}

	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, h.logger, domain.ErrInvalidRange)
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, h.logger, domain.ErrInvalidRange)
		return
	}

	busy, free, err := h.engine.ItemAvailability(r.Context(), itemID, from, to)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	resp := AvailabilityResponse{
		ItemID: itemID,
		From:   from,
		To:     to,
		Busy:   toIntervalResponses(busy),
		Free:   toIntervalResponses(free),
	}
	writeJSON(w, http.StatusOK, resp)
}

func toIntervalResponses(intervals []domain.Interval) []IntervalResponse {
	out := make([]IntervalResponse, 0, len(intervals))
	for _, iv := range intervals {
		out = append(out, IntervalResponse{
			Start:         iv.Start,
			End:           iv.End,
			ReservationID: iv.ReservationID,
		})
	}
	return out
}
