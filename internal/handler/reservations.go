package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/yourorg/bookingsystem/internal/domain"
	"github.com/yourorg/bookingsystem/internal/security/middleware"
	"github.com/yourorg/bookingsystem/internal/service"
)

// BookingEngine is the slice of the booking service the HTTP layer uses.
type BookingEngine interface {
	CreateReservation(ctx context.Context, caller *domain.AuthenticatedUser, in service.CreateReservationInput) (*domain.Reservation, error)
	UpdateReservation(ctx context.Context, caller *domain.AuthenticatedUser, reservationID int64, newStart, newEnd time.Time) (*domain.Reservation, error)
	CancelReservation(ctx context.Context, caller *domain.AuthenticatedUser, reservationID int64) error
	ListItemReservations(ctx context.Context, itemID int64, window *domain.Interval) ([]*domain.Reservation, error)
	ListUserReservations(ctx context.Context, caller *domain.AuthenticatedUser, userID uuid.UUID, window *domain.Interval) ([]*domain.Reservation, error)
	ItemAvailability(ctx context.Context, itemID int64, from, to time.Time) (busy, free []domain.Interval, err error)
}

// CreateReservationRequest is the booking request body
type CreateReservationRequest struct {
	ItemID int64     `json:"itemId"`
	UserID string    `json:"userId,omitempty"` // superuser booking on behalf of another user
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

// UpdateReservationRequest moves an existing reservation
type UpdateReservationRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ReservationResponse is the wire form of a reservation
type ReservationResponse struct {
	ID        int64     `json:"id"`
	ItemID    int64     `json:"itemId"`
	UserID    string    `json:"userId"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

func toReservationResponse(res *domain.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:        res.ID,
		ItemID:    res.ItemID,
		UserID:    res.UserID.String(),
		Start:     res.StartTime,
		End:       res.EndTime,
		IsActive:  res.IsActive,
		CreatedAt: res.CreatedAt,
	}
}

// ReservationsHandler serves the booking endpoints
type ReservationsHandler struct {
	engine BookingEngine
	logger *slog.Logger
}

// NewReservationsHandler creates a reservations handler
func NewReservationsHandler(engine BookingEngine, logger *slog.Logger) *ReservationsHandler {
	return &ReservationsHandler{engine: engine, logger: logger}
}

// Create handles POST /api/reservations
func (h *ReservationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_body"})
		return
	}
	if req.ItemID <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_body", Message: "itemId is required"})
		return
	}

	in := service.CreateReservationInput{
		ItemID: req.ItemID,
		Start:  req.Start,
		End:    req.End,
	}
	if req.UserID != "" {
		ownerID, err := uuid.Parse(req.UserID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_body", Message: "userId is not a valid UUID"})
			return
		}
		in.UserID = ownerID
	}

	caller := middleware.GetCallerFromContext(r.Context())
	res, err := h.engine.CreateReservation(r.Context(), caller, in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReservationResponse(res))
}

// Update handles PUT /api/reservations/{id}
func (h *ReservationsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_body", Message: "reservation id must be an integer"})
		return
	}

	var req UpdateReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_body"})
		return
	}

	caller := middleware.GetCallerFromContext(r.Context())
	res, err := h.engine.UpdateReservation(r.Context(), caller, id, req.Start, req.End)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationResponse(res))
}

// Cancel handles DELETE /api/reservations/{id}. Cancelling twice is a
// success both times.
func (h *ReservationsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_body", Message: "reservation id must be an integer"})
		return
	}

	caller := middleware.GetCallerFromContext(r.Context())
	if err := h.engine.CancelReservation(r.Context(), caller, id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// List handles GET /api/reservations?itemId=|userId=&from=&to=
func (h *ReservationsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	window, err := parseWindow(q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var reservations []*domain.Reservation
	switch {
	case q.Get("itemId") != "":
		itemID, parseErr := strconv.ParseInt(q.Get("itemId"), 10, 64)
		if parseErr != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_body", Message: "itemId must be an integer"})
			return
		}
		reservations, err = h.engine.ListItemReservations(r.Context(), itemID, window)
	case q.Get("userId") != "":
		userID, parseErr := uuid.Parse(q.Get("userId"))
		if parseErr != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_body", Message: "userId is not a valid UUID"})
			return
		}
		reservations, err = h.engine.ListUserReservations(r.Context(), middleware.GetCallerFromContext(r.Context()), userID, window)
	default:
		caller := middleware.GetCallerFromContext(r.Context())
		if caller == nil {
			writeError(w, h.logger, domain.ErrAuthentication)
			return
		}
		reservations, err = h.engine.ListUserReservations(r.Context(), caller, caller.ID, window)
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	out := make([]ReservationResponse, 0, len(reservations))
	for _, res := range reservations {
		out = append(out, toReservationResponse(res))
	}
	writeJSON(w, http.StatusOK, out)
}

// parseWindow builds an optional overlap filter from from/to query params.
func parseWindow(fromRaw, toRaw string) (*domain.Interval, error) {
	if fromRaw == "" && toRaw == "" {
		return nil, nil
	}
	from, err := time.Parse(time.RFC3339, fromRaw)
	if err != nil {
		return nil, domain.ErrInvalidRange
	}
	to, err := time.Parse(time.RFC3339, toRaw)
	if err != nil {
		return nil, domain.ErrInvalidRange
	}
	if !from.Before(to) {
		return nil, domain.ErrInvalidRange
	}
	return &domain.Interval{Start: from, End: to}, nil
}
