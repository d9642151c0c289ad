package domain

import "errors"

// Domain errors are expected outcomes of booking operations. Handlers map
// them to HTTP statuses with errors.Is; anything else is an infrastructure
// failure and surfaces as a 500-class response.
var (
	// ErrInvalidRange means the requested time window is malformed:
	// start >= end, or the start lies in the past beyond the grace window.
	ErrInvalidRange = errors.New("invalid time range")

	// ErrNotFound means a referenced user, item, or reservation does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict means the requested window overlaps an active reservation
	// on the same item.
	ErrConflict = errors.New("reservation conflict")

	// ErrForbidden means the caller lacks ownership or privilege.
	ErrForbidden = errors.New("forbidden")

	// ErrAuthentication means the bearer credential is missing or invalid.
	ErrAuthentication = errors.New("authentication failed")

	// ErrItemUnavailable means the item exists but is not bookable at all
	// (item status flag is off).
	ErrItemUnavailable = errors.New("item not available for booking")
)
