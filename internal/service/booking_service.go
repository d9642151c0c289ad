package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/yourorg/bookingsystem/internal/availability"
	"github.com/yourorg/bookingsystem/internal/domain"
	"github.com/yourorg/bookingsystem/internal/events"
	"github.com/yourorg/bookingsystem/internal/observability/metrics"
	"github.com/yourorg/bookingsystem/internal/reliability/retry"
	"github.com/yourorg/bookingsystem/pkg/config"
)

// BookingService is the booking engine. It validates requested windows,
// enforces ownership, and delegates the decisive conflict check to the
// reservation store, which runs it atomically under a per-item lock. The
// availability index only serves the read paths here.
type BookingService struct {
	reservations domain.ReservationStore
	items        domain.ItemRepository
	users        domain.UserRepository
	index        *availability.Index
	broker       *events.Broker
	logger       *slog.Logger
	cfg          *config.Config
	now          func() time.Time
}

// CreateReservationInput carries a validated booking request
type CreateReservationInput struct {
	ItemID int64
	// UserID is the booking owner. uuid.Nil means the caller books for
	// themselves; booking for someone else requires superuser.
	UserID uuid.UUID
	Start  time.Time
	End    time.Time
}

// NewBookingService creates the booking engine
func NewBookingService(
	reservations domain.ReservationStore,
	items domain.ItemRepository,
	users domain.UserRepository,
	index *availability.Index,
	broker *events.Broker,
	logger *slog.Logger,
	cfg *config.Config,
) *BookingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BookingService{
		reservations: reservations,
		items:        items,
		users:        users,
		index:        index,
		broker:       broker,
		logger:       logger,
		cfg:          cfg,
		now:          time.Now,
	}
}

// CreateReservation books [in.Start, in.End) on an item. Exactly one of
// two racing requests for overlapping windows succeeds; the loser gets
// ErrConflict from the store.
func (s *BookingService) CreateReservation(ctx context.Context, caller *domain.AuthenticatedUser, in CreateReservationInput) (res *domain.Reservation, err error) {
	defer s.observe("create", s.now(), &err)

	if caller == nil || !caller.Active {
		return nil, domain.ErrForbidden
	}
	owner := in.UserID
	if owner == uuid.Nil {
		owner = caller.ID
	}
	if !caller.CanActFor(owner) {
		return nil, domain.ErrForbidden
	}
	if err := s.validateWindow(in.Start, in.End); err != nil {
		return nil, err
	}

	// Fast-path rejections before touching the booking transaction. The
	// store re-checks the item under lock, so these are not load-bearing.
	item, err := s.items.GetByID(ctx, in.ItemID)
	if err != nil {
		return nil, err
	}
	if !item.Status {
		return nil, domain.ErrItemUnavailable
	}
	ownerUser, err := s.users.GetByID(ctx, owner)
	if err != nil {
		return nil, err
	}
	if !ownerUser.Active {
		return nil, domain.ErrForbidden
	}

	res = &domain.Reservation{
		ItemID:    in.ItemID,
		UserID:    owner,
		StartTime: in.Start,
		EndTime:   in.End,
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if err := s.reservations.Create(storeCtx, res); err != nil {
		return nil, err
	}

	s.afterWrite(ctx, events.TypeCreated, res)
	s.logger.Info("reservation created",
		slog.Int64("reservation_id", res.ID),
		slog.Int64("item_id", res.ItemID),
		slog.String("user_id", res.UserID.String()),
		slog.Time("start", res.StartTime),
		slog.Time("end", res.EndTime),
	)
	return res, nil
}

// UpdateReservation moves an active reservation to a new window after
// re-running the conflict check against all other active reservations on
// the item.
func (s *BookingService) UpdateReservation(ctx context.Context, caller *domain.AuthenticatedUser, reservationID int64, newStart, newEnd time.Time) (res *domain.Reservation, err error) {
	defer s.observe("update", s.now(), &err)

	if caller == nil || !caller.Active {
		return nil, domain.ErrForbidden
	}
	if err := s.validateWindow(newStart, newEnd); err != nil {
		return nil, err
	}

	existing, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if !existing.IsActive {
		return nil, domain.ErrNotFound
	}
	if !caller.CanActFor(existing.UserID) {
		return nil, domain.ErrForbidden
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	res, err = s.reservations.Reschedule(storeCtx, reservationID, newStart, newEnd)
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, events.TypeRescheduled, res)
	s.logger.Info("reservation rescheduled",
		slog.Int64("reservation_id", res.ID),
		slog.Time("start", res.StartTime),
		slog.Time("end", res.EndTime),
	)
	return res, nil
}

// CancelReservation deactivates a reservation. Cancelling one that is
// already cancelled succeeds without error so callers can retry blindly.
func (s *BookingService) CancelReservation(ctx context.Context, caller *domain.AuthenticatedUser, reservationID int64) (err error) {
	defer s.observe("cancel", s.now(), &err)

	if caller == nil || !caller.Active {
		return domain.ErrForbidden
	}

	existing, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return err
	}
	if !caller.CanActFor(existing.UserID) {
		return domain.ErrForbidden
	}
	if !existing.IsActive {
		return nil
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if err := s.reservations.SetActive(storeCtx, reservationID, false); err != nil {
		return err
	}

	existing.IsActive = false
	s.afterWrite(ctx, events.TypeCancelled, existing)
	s.logger.Info("reservation cancelled", slog.Int64("reservation_id", reservationID))
	return nil
}

// ListItemReservations returns an item's active reservations ordered by
// start, optionally only those overlapping [from, to).
func (s *BookingService) ListItemReservations(ctx context.Context, itemID int64, window *domain.Interval) ([]*domain.Reservation, error) {
	if _, err := s.items.GetByID(ctx, itemID); err != nil {
		return nil, err
	}
	return retry.Do(ctx, retry.ReadConfig(), s.logger, "reservations.list_by_item",
		func(ctx context.Context) ([]*domain.Reservation, error) {
			return s.reservations.ListByItem(ctx, itemID, window)
		})
}

// ListUserReservations returns a user's active reservations across items.
// Callers may only list their own unless they are superusers.
func (s *BookingService) ListUserReservations(ctx context.Context, caller *domain.AuthenticatedUser, userID uuid.UUID, window *domain.Interval) ([]*domain.Reservation, error) {
	if caller == nil || !caller.CanActFor(userID) {
		return nil, domain.ErrForbidden
	}
	return retry.Do(ctx, retry.ReadConfig(), s.logger, "reservations.list_by_user",
		func(ctx context.Context) ([]*domain.Reservation, error) {
			return s.reservations.ListByUser(ctx, userID, window)
		})
}

// ItemAvailability returns the busy intervals overlapping [from, to) and
// the free gaps between them, served from the availability index.
func (s *BookingService) ItemAvailability(ctx context.Context, itemID int64, from, to time.Time) (busy, free []domain.Interval, err error) {
	if !from.Before(to) {
		return nil, nil, domain.ErrInvalidRange
	}
	if _, err := s.items.GetByID(ctx, itemID); err != nil {
		return nil, nil, err
	}

	all, err := s.index.IntervalsFor(ctx, itemID)
	if err != nil {
		return nil, nil, err
	}
	for _, iv := range all {
		if iv.Overlaps(from, to) {
			busy = append(busy, iv)
		}
	}
	return busy, availability.FreeWindows(busy, from, to), nil
}

// validateWindow applies the range rules: strict start < end, start no
// further in the past than the grace window, and an optional length cap.
func (s *BookingService) validateWindow(start, end time.Time) error {
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return domain.ErrInvalidRange
	}
	if start.Before(s.now().Add(-s.cfg.BookingGrace)) {
		return fmt.Errorf("%w: start time is in the past", domain.ErrInvalidRange)
	}
	if s.cfg.BookingMaxDuration > 0 && end.Sub(start) > s.cfg.BookingMaxDuration {
		return fmt.Errorf("%w: window exceeds maximum duration", domain.ErrInvalidRange)
	}
	return nil
}

// afterWrite refreshes derived state once a change is durable: drop the
// item's cached intervals and notify stream subscribers.
func (s *BookingService) afterWrite(ctx context.Context, eventType string, res *domain.Reservation) {
	s.index.Invalidate(ctx, res.ItemID)
	if s.broker != nil {
		s.broker.Publish(events.Event{Type: eventType, Reservation: *res})
	}
}

func (s *BookingService) observe(op string, start time.Time, errp *error) {
	result := "success"
	switch {
	case *errp == nil:
	case errors.Is(*errp, domain.ErrConflict):
		result = "conflict"
		metrics.ObserveConflict()
	case errors.Is(*errp, domain.ErrInvalidRange):
		result = "invalid_range"
	case errors.Is(*errp, domain.ErrNotFound):
		result = "not_found"
	case errors.Is(*errp, domain.ErrForbidden):
		result = "forbidden"
	case errors.Is(*errp, domain.ErrItemUnavailable):
		result = "item_unavailable"
	default:
		result = "error"
	}
	metrics.ObserveBooking(op, result, s.now().Sub(start))
}
