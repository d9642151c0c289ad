package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/yourorg/bookingsystem/internal/domain"
)

// Postgres error codes that the booking transaction can run into.
const (
	pqExclusionViolation  = "23P01" // overlap caught by the gist constraint
	pqForeignKeyViolation = "23503" // unknown item or user
	pqCheckViolation      = "23514" // start_time >= end_time
)

// PostgresReservationStore implements domain.ReservationStore. The
// check-then-commit sequence of Create and Reschedule runs inside one
// transaction that locks the item row first, so no two bookers of the
// same item can interleave between the conflict check and the insert.
type PostgresReservationStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresReservationStore creates a new reservation store
func NewPostgresReservationStore(db *sql.DB, logger *slog.Logger) *PostgresReservationStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresReservationStore{db: db, logger: logger}
}

// Create inserts a reservation after an in-transaction conflict check.
func (s *PostgresReservationStore) Create(ctx context.Context, res *domain.Reservation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.lockItem(ctx, tx, res.ItemID); err != nil {
		return err
	}

	intervals, err := activeIntervalsTx(ctx, tx, res.ItemID, 0)
	if err != nil {
		return err
	}
	if _, hit := domain.FindConflict(intervals, res.StartTime, res.EndTime); hit {
		return domain.ErrConflict
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO reservations (item_id, user_id, start_time, end_time, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING id, created_at
	`, res.ItemID, res.UserID, res.StartTime, res.EndTime).Scan(&res.ID, &res.CreatedAt)
	if err != nil {
		return translatePQError(err)
	}
	res.IsActive = true

	if err := tx.Commit(); err != nil {
		return translatePQError(err)
	}
	return nil
}

// Reschedule moves an active reservation, re-validating against all other
// active reservations on the same item.
func (s *PostgresReservationStore) Reschedule(ctx context.Context, id int64, start, end time.Time) (*domain.Reservation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res := &domain.Reservation{}
	err = tx.QueryRowContext(ctx, `
		SELECT id, item_id, user_id, start_time, end_time, is_active, created_at
		FROM reservations
		WHERE id = $1 AND is_active
	`, id).Scan(&res.ID, &res.ItemID, &res.UserID, &res.StartTime, &res.EndTime, &res.IsActive, &res.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("load reservation: %w", err)
	}

	if err := s.lockItem(ctx, tx, res.ItemID); err != nil {
		return nil, err
	}

	intervals, err := activeIntervalsTx(ctx, tx, res.ItemID, id)
	if err != nil {
		return nil, err
	}
	if _, hit := domain.FindConflict(intervals, start, end); hit {
		return nil, domain.ErrConflict
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE reservations SET start_time = $1, end_time = $2 WHERE id = $3
	`, start, end, id); err != nil {
		return nil, translatePQError(err)
	}
	res.StartTime = start
	res.EndTime = end

	if err := tx.Commit(); err != nil {
		return nil, translatePQError(err)
	}
	return res, nil
}

// SetActive flips the active flag. Deactivating a reservation that is
// already inactive affects zero rows and is treated as success, which
// gives cancellation its idempotent retry semantics.
func (s *PostgresReservationStore) SetActive(ctx context.Context, id int64, active bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE reservations SET is_active = $1 WHERE id = $2
	`, active, id)
	if err != nil {
		return translatePQError(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		// Distinguish "unknown id" from "already in the target state".
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM reservations WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check reservation exists: %w", err)
		}
		if !exists {
			return domain.ErrNotFound
		}
	}
	return nil
}

// GetByID retrieves a reservation by ID, active or not.
func (s *PostgresReservationStore) GetByID(ctx context.Context, id int64) (*domain.Reservation, error) {
	res := &domain.Reservation{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, item_id, user_id, start_time, end_time, is_active, created_at
		FROM reservations
		WHERE id = $1
	`, id).Scan(&res.ID, &res.ItemID, &res.UserID, &res.StartTime, &res.EndTime, &res.IsActive, &res.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return res, nil
}

// ActiveIntervals returns the occupied windows for an item, ordered by start.
func (s *PostgresReservationStore) ActiveIntervals(ctx context.Context, itemID int64, excludeID int64) ([]domain.Interval, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, start_time, end_time
		FROM reservations
		WHERE item_id = $1 AND is_active AND ($2 = 0 OR id <> $2)
		ORDER BY start_time
	`, itemID, excludeID)
	if err != nil {
		return nil, fmt.Errorf("query active intervals: %w", err)
	}
	defer rows.Close()

	var intervals []domain.Interval
	for rows.Next() {
		var iv domain.Interval
		if err := rows.Scan(&iv.ReservationID, &iv.Start, &iv.End); err != nil {
			return nil, fmt.Errorf("scan interval: %w", err)
		}
		intervals = append(intervals, iv)
	}
	return intervals, rows.Err()
}

// ListByItem returns active reservations for an item, optionally limited
// to those overlapping the window.
func (s *PostgresReservationStore) ListByItem(ctx context.Context, itemID int64, window *domain.Interval) ([]*domain.Reservation, error) {
	return s.list(ctx, `item_id = $1`, itemID, window)
}

// ListByUser returns a user's active reservations across all items.
func (s *PostgresReservationStore) ListByUser(ctx context.Context, userID uuid.UUID, window *domain.Interval) ([]*domain.Reservation, error) {
	return s.list(ctx, `user_id = $1`, userID, window)
}

func (s *PostgresReservationStore) list(ctx context.Context, cond string, arg any, window *domain.Interval) ([]*domain.Reservation, error) {
	query := `
		SELECT id, item_id, user_id, start_time, end_time, is_active, created_at
		FROM reservations
		WHERE ` + cond + ` AND is_active`
	args := []any{arg}
	if window != nil {
		// Half-open overlap with the query window.
		query += ` AND start_time < $3 AND $2 < end_time`
		args = append(args, window.Start, window.End)
	}
	query += ` ORDER BY start_time`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	var out []*domain.Reservation
	for rows.Next() {
		res := &domain.Reservation{}
		if err := rows.Scan(&res.ID, &res.ItemID, &res.UserID, &res.StartTime, &res.EndTime, &res.IsActive, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// CountActiveAt counts reservations active and in progress at an instant.
func (s *PostgresReservationStore) CountActiveAt(ctx context.Context, at time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reservations
		WHERE is_active AND start_time <= $1 AND $1 < end_time
	`, at).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active reservations: %w", err)
	}
	return count, nil
}

// lockItem takes a row-level exclusive lock on the item, serializing all
// booking transactions for that item until commit or rollback. It also
// resolves the item's existence and bookable status under the lock.
func (s *PostgresReservationStore) lockItem(ctx context.Context, tx *sql.Tx, itemID int64) error {
	var status bool
	err := tx.QueryRowContext(ctx, `
		SELECT status FROM items WHERE id = $1 FOR UPDATE
	`, itemID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("lock item row: %w", err)
	}
	if !status {
		return domain.ErrItemUnavailable
	}
	return nil
}

func activeIntervalsTx(ctx context.Context, tx *sql.Tx, itemID int64, excludeID int64) ([]domain.Interval, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, start_time, end_time
		FROM reservations
		WHERE item_id = $1 AND is_active AND ($2 = 0 OR id <> $2)
		ORDER BY start_time
	`, itemID, excludeID)
	if err != nil {
		return nil, fmt.Errorf("query active intervals: %w", err)
	}
	defer rows.Close()

	var intervals []domain.Interval
	for rows.Next() {
		var iv domain.Interval
		if err := rows.Scan(&iv.ReservationID, &iv.Start, &iv.End); err != nil {
			return nil, fmt.Errorf("scan interval: %w", err)
		}
		intervals = append(intervals, iv)
	}
	return intervals, rows.Err()
}

// translatePQError maps constraint violations onto domain errors. The
// exclusion constraint is the backstop for overlaps the locked check
// should already have caught.
func translatePQError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqExclusionViolation:
			return domain.ErrConflict
		case pqForeignKeyViolation:
			return domain.ErrNotFound
		case pqCheckViolation:
			return domain.ErrInvalidRange
		}
	}
	return fmt.Errorf("reservation store: %w", err)
}
