package service

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/bookingsystem/internal/availability"
	"github.com/yourorg/bookingsystem/internal/domain"
	"github.com/yourorg/bookingsystem/internal/events"
	"github.com/yourorg/bookingsystem/pkg/config"
)

// memReservationStore mimics the durable store's contract: conflict check
// and insert happen under one lock, so concurrent overlapping bookings
// resolve to exactly one winner.
type memReservationStore struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*domain.Reservation
	items  map[int64]bool // item id -> bookable
}

func newMemReservationStore(items map[int64]bool) *memReservationStore {
	return &memReservationStore{byID: map[int64]*domain.Reservation{}, items: items}
}

func (m *memReservationStore) activeIntervalsLocked(itemID, excludeID int64) []domain.Interval {
	var out []domain.Interval
	for _, r := range m.byID {
		if r.ItemID != itemID || !r.IsActive || r.ID == excludeID {
			continue
		}
		out = append(out, domain.Interval{ReservationID: r.ID, Start: r.StartTime, End: r.EndTime})
	}
	return out
}

func (m *memReservationStore) Create(ctx context.Context, res *domain.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bookable, ok := m.items[res.ItemID]
	if !ok {
		return domain.ErrNotFound
	}
	if !bookable {
		return domain.ErrItemUnavailable
	}
	if _, hit := domain.FindConflict(m.activeIntervalsLocked(res.ItemID, 0), res.StartTime, res.EndTime); hit {
		return domain.ErrConflict
	}

	m.nextID++
	res.ID = m.nextID
	res.IsActive = true
	res.CreatedAt = time.Now()
	stored := *res
	m.byID[res.ID] = &stored
	return nil
}

func (m *memReservationStore) Reschedule(ctx context.Context, id int64, start, end time.Time) (*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.byID[id]
	if !ok || !existing.IsActive {
		return nil, domain.ErrNotFound
	}
	if _, hit := domain.FindConflict(m.activeIntervalsLocked(existing.ItemID, id), start, end); hit {
		return nil, domain.ErrConflict
	}
	existing.StartTime = start
	existing.EndTime = end
	copied := *existing
	return &copied, nil
}

func (m *memReservationStore) SetActive(ctx context.Context, id int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	existing.IsActive = active
	return nil
}

func (m *memReservationStore) GetByID(ctx context.Context, id int64) (*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *existing
	return &copied, nil
}

func (m *memReservationStore) ActiveIntervals(ctx context.Context, itemID, excludeID int64) ([]domain.Interval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeIntervalsLocked(itemID, excludeID), nil
}

func (m *memReservationStore) ListByItem(ctx context.Context, itemID int64, window *domain.Interval) ([]*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Reservation
	for _, r := range m.byID {
		if r.ItemID != itemID || !r.IsActive {
			continue
		}
		if window != nil && !window.Overlaps(r.StartTime, r.EndTime) {
			continue
		}
		copied := *r
		out = append(out, &copied)
	}
	return out, nil
}

func (m *memReservationStore) ListByUser(ctx context.Context, userID uuid.UUID, window *domain.Interval) ([]*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Reservation
	for _, r := range m.byID {
		if r.UserID != userID || !r.IsActive {
			continue
		}
		if window != nil && !window.Overlaps(r.StartTime, r.EndTime) {
			continue
		}
		copied := *r
		out = append(out, &copied)
	}
	return out, nil
}

func (m *memReservationStore) CountActiveAt(ctx context.Context, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, r := range m.byID {
		if r.IsActive && !at.Before(r.StartTime) && at.Before(r.EndTime) {
			count++
		}
	}
	return count, nil
}

type memItemRepo struct {
	byID map[int64]*domain.Item
}

func (m *memItemRepo) GetByID(ctx context.Context, id int64) (*domain.Item, error) {
	if item, ok := m.byID[id]; ok {
		copied := *item
		return &copied, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memItemRepo) List(ctx context.Context) ([]*domain.Item, error) {
	var out []*domain.Item
	for _, item := range m.byID {
		copied := *item
		out = append(out, &copied)
	}
	return out, nil
}

func (m *memItemRepo) Create(ctx context.Context, item *domain.Item) error {
	item.ID = int64(len(m.byID) + 1)
	copied := *item
	m.byID[item.ID] = &copied
	return nil
}

func (m *memItemRepo) Update(ctx context.Context, item *domain.Item) error {
	copied := *item
	m.byID[item.ID] = &copied
	return nil
}

type memBookingUserRepo struct {
	byID map[uuid.UUID]*domain.User
}

func (m *memBookingUserRepo) Create(ctx context.Context, u *domain.User) error {
	m.byID[u.ID] = u
	return nil
}

func (m *memBookingUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memBookingUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memBookingUserRepo) Update(ctx context.Context, u *domain.User) error {
	m.byID[u.ID] = u
	return nil
}

func (m *memBookingUserRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	if u, ok := m.byID[id]; ok {
		u.Active = false
	}
	return nil
}

type bookingFixture struct {
	svc    *BookingService
	store  *memReservationStore
	alice  *domain.AuthenticatedUser
	bob    *domain.AuthenticatedUser
	admin  *domain.AuthenticatedUser
	frozen time.Time
}

func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()

	aliceID, bobID, adminID := uuid.New(), uuid.New(), uuid.New()
	users := &memBookingUserRepo{byID: map[uuid.UUID]*domain.User{
		aliceID: {ID: aliceID, Email: "alice@example.com", Active: true},
		bobID:   {ID: bobID, Email: "bob@example.com", Active: true},
		adminID: {ID: adminID, Email: "admin@example.com", Active: true, Superuser: true},
	}}
	items := &memItemRepo{byID: map[int64]*domain.Item{
		1: {ID: 1, ItemType: "meeting_room", Status: true},
		2: {ID: 2, ItemType: "projector", Status: false},
	}}
	store := newMemReservationStore(map[int64]bool{1: true, 2: false})

	cfg := &config.Config{
		BookingGrace:       5 * time.Minute,
		BookingMaxDuration: 720 * time.Hour,
		StoreTimeout:       5 * time.Second,
	}
	index := availability.New(store, nil, 30*time.Second, slog.Default())
	svc := NewBookingService(store, items, users, index, events.NewBroker(), slog.Default(), cfg)

	frozen := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return frozen }

	return &bookingFixture{
		svc:    svc,
		store:  store,
		alice:  &domain.AuthenticatedUser{ID: aliceID, Email: "alice@example.com", Active: true},
		bob:    &domain.AuthenticatedUser{ID: bobID, Email: "bob@example.com", Active: true},
		admin:  &domain.AuthenticatedUser{ID: adminID, Email: "admin@example.com", Active: true, Superuser: true},
		frozen: frozen,
	}
}

func (f *bookingFixture) at(hour int) time.Time {
	return time.Date(2026, 9, 1, hour, 0, 0, 0, time.UTC)
}

func TestCreateReservation(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	t.Run("books a free window", func(t *testing.T) {
		res, err := f.svc.CreateReservation(ctx, f.alice, CreateReservationInput{
			ItemID: 1, Start: f.at(10), End: f.at(12),
		})
		require.NoError(t, err)
		assert.NotZero(t, res.ID)
		assert.Equal(t, f.alice.ID, res.UserID)
		assert.True(t, res.IsActive)
	})

	t.Run("rejects an overlapping window regardless of user", func(t *testing.T) {
		_, err := f.svc.CreateReservation(ctx, f.bob, CreateReservationInput{
			ItemID: 1, Start: f.at(11), End: f.at(13),
		})
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("back-to-back windows both succeed", func(t *testing.T) {
		_, err := f.svc.CreateReservation(ctx, f.bob, CreateReservationInput{
			ItemID: 1, Start: f.at(12), End: f.at(14),
		})
		assert.NoError(t, err)
	})

	t.Run("rejects start at or after end", func(t *testing.T) {
		_, err := f.svc.CreateReservation(ctx, f.alice, CreateReservationInput{
			ItemID: 1, Start: f.at(15), End: f.at(15),
		})
		assert.ErrorIs(t, err, domain.ErrInvalidRange)

		_, err = f.svc.CreateReservation(ctx, f.alice, CreateReservationInput{
			ItemID: 1, Start: f.at(16), End: f.at(15),
		})
		assert.ErrorIs(t, err, domain.ErrInvalidRange)
	})

	t.Run("rejects start beyond the grace window", func(t *testing.T) {
		_, err := f.svc.CreateReservation(ctx, f.alice, CreateReservationInput{
			ItemID: 1, Start: f.frozen.Add(-10 * time.Minute), End: f.at(9),
		})
		assert.ErrorIs(t, err, domain.ErrInvalidRange)
	})

	t.Run("accepts start just inside the grace window", func(t *testing.T) {
		_, err := f.svc.CreateReservation(ctx, f.alice, CreateReservationInput{
			ItemID: 1, Start: f.frozen.Add(-4 * time.Minute), End: f.at(9),
		})
		assert.NoError(t, err)
	})

	t.Run("rejects unknown item", func(t *testing.T) {
		_, err := f.svc.CreateReservation(ctx, f.alice, CreateReservationInput{
			ItemID: 99, Start: f.at(10), End: f.at(11),
		})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("rejects unbookable item", func(t *testing.T) {
		_, err := f.svc.CreateReservation(ctx, f.alice, CreateReservationInput{
			ItemID: 2, Start: f.at(10), End: f.at(11),
		})
		assert.ErrorIs(t, err, domain.ErrItemUnavailable)
	})

	t.Run("non-superuser cannot book for another user", func(t *testing.T) {
		_, err := f.svc.CreateReservation(ctx, f.bob, CreateReservationInput{
			ItemID: 1, UserID: f.alice.ID, Start: f.at(18), End: f.at(19),
		})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("superuser books on behalf of another user", func(t *testing.T) {
		res, err := f.svc.CreateReservation(ctx, f.admin, CreateReservationInput{
			ItemID: 1, UserID: f.alice.ID, Start: f.at(18), End: f.at(19),
		})
		require.NoError(t, err)
		assert.Equal(t, f.alice.ID, res.UserID)
	})

	t.Run("nil caller is forbidden", func(t *testing.T) {
		_, err := f.svc.CreateReservation(ctx, nil, CreateReservationInput{
			ItemID: 1, Start: f.at(20), End: f.at(21),
		})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})
}

func TestUpdateReservation(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateReservation(ctx, f.alice, CreateReservationInput{
		ItemID: 1, Start: f.at(9), End: f.at(10),
	})
	require.NoError(t, err)
	second, err := f.svc.CreateReservation(ctx, f.bob, CreateReservationInput{
		ItemID: 1, Start: f.at(11), End: f.at(12),
	})
	require.NoError(t, err)

	t.Run("shrinking within the original window succeeds", func(t *testing.T) {
		res, err := f.svc.UpdateReservation(ctx, f.alice, first.ID, f.at(9), f.at(9).Add(30*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, f.at(9).Add(30*time.Minute), res.EndTime)
	})

	t.Run("moving onto another reservation conflicts", func(t *testing.T) {
		_, err := f.svc.UpdateReservation(ctx, f.alice, first.ID, f.at(11), f.at(13))
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("extending into own window is not a self-conflict", func(t *testing.T) {
		_, err := f.svc.UpdateReservation(ctx, f.bob, second.ID, f.at(11), f.at(13))
		assert.NoError(t, err)
	})

	t.Run("non-owner cannot move it", func(t *testing.T) {
		_, err := f.svc.UpdateReservation(ctx, f.alice, second.ID, f.at(14), f.at(15))
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("superuser can move anyone's reservation", func(t *testing.T) {
		_, err := f.svc.UpdateReservation(ctx, f.admin, second.ID, f.at(14), f.at(15))
		assert.NoError(t, err)
	})

	t.Run("unknown reservation", func(t *testing.T) {
		_, err := f.svc.UpdateReservation(ctx, f.alice, 9999, f.at(16), f.at(17))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestCancelReservation(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	res, err := f.svc.CreateReservation(ctx, f.alice, CreateReservationInput{
		ItemID: 1, Start: f.at(9), End: f.at(10),
	})
	require.NoError(t, err)

	t.Run("non-owner cannot cancel", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.CancelReservation(ctx, f.bob, res.ID), domain.ErrForbidden)
	})

	t.Run("owner cancels and the window frees up", func(t *testing.T) {
		require.NoError(t, f.svc.CancelReservation(ctx, f.alice, res.ID))

		_, err := f.svc.CreateReservation(ctx, f.bob, CreateReservationInput{
			ItemID: 1, Start: f.at(9), End: f.at(10),
		})
		assert.NoError(t, err)
	})

	t.Run("cancelling again is a no-op success", func(t *testing.T) {
		assert.NoError(t, f.svc.CancelReservation(ctx, f.alice, res.ID))
	})

	t.Run("cancelled reservation cannot be rescheduled", func(t *testing.T) {
		_, err := f.svc.UpdateReservation(ctx, f.alice, res.ID, f.at(20), f.at(21))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("unknown reservation is not found", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.CancelReservation(ctx, f.alice, 9999), domain.ErrNotFound)
	})
}

func TestConcurrentBookingSingleWinner(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	const bookers = 16
	var wg sync.WaitGroup
	errs := make([]error, bookers)

	start := make(chan struct{})
	for i := 0; i < bookers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.CreateReservation(ctx, f.alice, CreateReservationInput{
				ItemID: 1, Start: f.at(10), End: f.at(12),
			})
		}(i)
	}
	close(start)
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, domain.ErrConflict)
		}
	}
	assert.Equal(t, 1, winners, "exactly one of the racing bookings must win")
}

func TestListReservations(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateReservation(ctx, f.alice, CreateReservationInput{
		ItemID: 1, Start: f.at(9), End: f.at(10),
	})
	require.NoError(t, err)
	_, err = f.svc.CreateReservation(ctx, f.bob, CreateReservationInput{
		ItemID: 1, Start: f.at(14), End: f.at(16),
	})
	require.NoError(t, err)

	t.Run("by item", func(t *testing.T) {
		all, err := f.svc.ListItemReservations(ctx, 1, nil)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("by item with window filter", func(t *testing.T) {
		window := &domain.Interval{Start: f.at(8), End: f.at(11)}
		morning, err := f.svc.ListItemReservations(ctx, 1, window)
		require.NoError(t, err)
		require.Len(t, morning, 1)
		assert.Equal(t, f.alice.ID, morning[0].UserID)
	})

	t.Run("by user restricted to self", func(t *testing.T) {
		mine, err := f.svc.ListUserReservations(ctx, f.alice, f.alice.ID, nil)
		require.NoError(t, err)
		assert.Len(t, mine, 1)

		_, err = f.svc.ListUserReservations(ctx, f.alice, f.bob.ID, nil)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("superuser lists anyone", func(t *testing.T) {
		theirs, err := f.svc.ListUserReservations(ctx, f.admin, f.bob.ID, nil)
		require.NoError(t, err)
		assert.Len(t, theirs, 1)
	})

	t.Run("unknown item", func(t *testing.T) {
		_, err := f.svc.ListItemReservations(ctx, 99, nil)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestItemAvailability(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateReservation(ctx, f.alice, CreateReservationInput{
		ItemID: 1, Start: f.at(10), End: f.at(12),
	})
	require.NoError(t, err)

	t.Run("splits the window into busy and free", func(t *testing.T) {
		busy, free, err := f.svc.ItemAvailability(ctx, 1, f.at(9), f.at(14))
		require.NoError(t, err)

		require.Len(t, busy, 1)
		assert.Equal(t, f.at(10), busy[0].Start)
		assert.Equal(t, f.at(12), busy[0].End)

		require.Len(t, free, 2)
		assert.Equal(t, f.at(9), free[0].Start)
		assert.Equal(t, f.at(10), free[0].End)
		assert.Equal(t, f.at(12), free[1].Start)
		assert.Equal(t, f.at(14), free[1].End)
	})

	t.Run("reversed window is invalid", func(t *testing.T) {
		_, _, err := f.svc.ItemAvailability(ctx, 1, f.at(14), f.at(9))
		assert.ErrorIs(t, err, domain.ErrInvalidRange)
	})
}
