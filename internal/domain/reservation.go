package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Reservation is the central entity: a claim on one item for a half-open
// time window [StartTime, EndTime). Cancellation flips IsActive instead of
// deleting the row, preserving booking history.
type Reservation struct {
	ID        int64
	ItemID    int64
	UserID    uuid.UUID
	StartTime time.Time
	EndTime   time.Time
	IsActive  bool
	CreatedAt time.Time
}

// Interval is an occupied half-open time window [Start, End) on an item,
// tagged with the reservation that owns it.
type Interval struct {
	ReservationID int64
	Start         time.Time
	End           time.Time
}

// Overlaps reports whether the interval shares any instant with [start, end).
// Half-open semantics: touching endpoints do not overlap.
func (iv Interval) Overlaps(start, end time.Time) bool {
	return iv.Start.Before(end) && start.Before(iv.End)
}

// FindConflict tests a candidate window against a set of active intervals
// and returns the first overlapping one. One hit is enough to reject a
// booking; callers wanting diagnostics get the offending interval back.
func FindConflict(intervals []Interval, start, end time.Time) (Interval, bool) {
	for _, iv := range intervals {
		if iv.Overlaps(start, end) {
			return iv, true
		}
	}
	return Interval{}, false
}

// ReservationStore defines durable access to reservations. Create and
// Reschedule run their conflict check and commit inside one storage
// transaction holding a per-item lock, so concurrent bookers of the same
// item serialize and at most one of two overlapping requests wins.
type ReservationStore interface {
	// Create validates the window against all active reservations for the
	// item and inserts atomically. Returns ErrNotFound for an unknown item
	// or user, ErrItemUnavailable for an unbookable item, ErrConflict on
	// overlap. On success the reservation ID and CreatedAt are filled in.
	Create(ctx context.Context, res *Reservation) error

	// Reschedule moves an active reservation to a new window, re-checking
	// conflicts against all other active reservations on the item.
	Reschedule(ctx context.Context, id int64, start, end time.Time) (*Reservation, error)

	// SetActive flips the active flag. Deactivating an already-inactive
	// reservation is a no-op.
	SetActive(ctx context.Context, id int64, active bool) error

	GetByID(ctx context.Context, id int64) (*Reservation, error)

	// ActiveIntervals returns the occupied windows of an item's active
	// reservations ordered by start time. excludeID > 0 omits that
	// reservation, for self-excluding update checks.
	ActiveIntervals(ctx context.Context, itemID int64, excludeID int64) ([]Interval, error)

	// ListByItem and ListByUser return active reservations ordered by start
	// time, optionally restricted to those overlapping the given window.
	ListByItem(ctx context.Context, itemID int64, window *Interval) ([]*Reservation, error)
	ListByUser(ctx context.Context, userID uuid.UUID, window *Interval) ([]*Reservation, error)

	// CountActiveAt returns how many reservations are active and in
	// progress at the given instant, for the reconcile gauge.
	CountActiveAt(ctx context.Context, at time.Time) (int, error)
}
