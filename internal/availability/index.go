// Package availability maintains the derived per-item view of occupied
// time windows. It answers read-path questions ("is [s, e) free on item
// I", "what does item I's calendar look like") from a Redis cache with a
// bounded TTL, falling back to the reservation store.
//
// The index is never authoritative for a commit decision: the write path
// re-derives the conflict set inside the store transaction while holding
// the item lock.
package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/yourorg/bookingsystem/internal/domain"
	redisclient "github.com/yourorg/bookingsystem/internal/infrastructure/redis"
	"github.com/yourorg/bookingsystem/internal/observability/metrics"
	"github.com/yourorg/bookingsystem/internal/reliability/circuitbreaker"
	"github.com/yourorg/bookingsystem/internal/reliability/retry"
)

// KeyPrefix namespaces the per-item interval lists in Redis.
const KeyPrefix = "avail:"

// Cache is the subset of the Redis client the index needs. Get reports
// a miss with an error satisfying redisclient.IsMiss.
type Cache interface {
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, keys ...string) error
}

// Index serves occupied-interval queries for items
type Index struct {
	store   domain.ReservationStore
	cache   Cache
	breaker *circuitbreaker.CircuitBreaker
	ttl     time.Duration
	logger  *slog.Logger
}

// New creates an availability index over a reservation store and a cache
func New(store domain.ReservationStore, cache Cache, ttl time.Duration, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		store:   store,
		cache:   cache,
		breaker: circuitbreaker.NewCircuitBreaker(5, 2, 30*time.Second),
		ttl:     ttl,
		logger:  logger,
	}
}

// IntervalsFor returns the item's occupied windows sorted by start time.
// Cache hits may be up to one TTL stale, which is acceptable on the read
// path only.
func (ix *Index) IntervalsFor(ctx context.Context, itemID int64) ([]domain.Interval, error) {
	key := cacheKey(itemID)

	if ix.cache != nil && ix.breaker.AllowRequest() {
		raw, err := ix.cache.Get(ctx, key)
		switch {
		case err == nil:
			ix.breaker.RecordSuccess()
			var intervals []domain.Interval
			if jsonErr := json.Unmarshal([]byte(raw), &intervals); jsonErr == nil {
				metrics.ObserveCacheLookup("hit")
				return intervals, nil
			}
			// Unparseable entry: drop it and fall through to the store.
			_ = ix.cache.Delete(ctx, key)
		case redisclient.IsMiss(err):
			ix.breaker.RecordSuccess()
			metrics.ObserveCacheLookup("miss")
		default:
			ix.breaker.RecordFailure()
			metrics.ObserveCacheLookup("error")
			ix.logger.Warn("availability cache read failed",
				slog.Int64("item_id", itemID),
				slog.String("error", err.Error()),
			)
		}
	}

	intervals, err := retry.Do(ctx, retry.ReadConfig(), ix.logger, "availability.intervals",
		func(ctx context.Context) ([]domain.Interval, error) {
			return ix.store.ActiveIntervals(ctx, itemID, 0)
		})
	if err != nil {
		return nil, fmt.Errorf("load active intervals: %w", err)
	}

	if ix.cache != nil && ix.breaker.AllowRequest() {
		if data, jsonErr := json.Marshal(intervals); jsonErr == nil {
			if err := ix.cache.Set(ctx, key, string(data), ix.ttl); err != nil {
				ix.breaker.RecordFailure()
			} else {
				ix.breaker.RecordSuccess()
			}
		}
	}
	return intervals, nil
}

// Conflicts reports whether [start, end) overlaps any active reservation
// on the item. excludeID > 0 ignores that reservation, for update checks
// against all others. Exclusion queries bypass the cache since the cached
// list has no exclusions applied.
func (ix *Index) Conflicts(ctx context.Context, itemID int64, start, end time.Time, excludeID int64) (bool, error) {
	var intervals []domain.Interval
	var err error
	if excludeID > 0 {
		intervals, err = ix.store.ActiveIntervals(ctx, itemID, excludeID)
	} else {
		intervals, err = ix.IntervalsFor(ctx, itemID)
	}
	if err != nil {
		return false, err
	}
	_, hit := domain.FindConflict(intervals, start, end)
	return hit, nil
}

// Invalidate drops the cached interval list for an item. Called after
// every committed write so readers converge immediately instead of
// waiting out the TTL.
func (ix *Index) Invalidate(ctx context.Context, itemID int64) {
	if ix.cache == nil {
		return
	}
	if err := ix.cache.Delete(ctx, cacheKey(itemID)); err != nil {
		ix.logger.Warn("availability cache invalidation failed",
			slog.Int64("item_id", itemID),
			slog.String("error", err.Error()),
		)
	}
}

// FreeWindows derives the unoccupied gaps within [from, to) from a sorted
// busy list. Busy intervals outside the window are clipped away.
func FreeWindows(busy []domain.Interval, from, to time.Time) []domain.Interval {
	var free []domain.Interval
	cursor := from
	for _, iv := range busy {
		if !iv.Overlaps(from, to) {
			continue
		}
		if cursor.Before(iv.Start) {
			free = append(free, domain.Interval{Start: cursor, End: iv.Start})
		}
		if iv.End.After(cursor) {
			cursor = iv.End
		}
	}
	if cursor.Before(to) {
		free = append(free, domain.Interval{Start: cursor, End: to})
	}
	return free
}

func cacheKey(itemID int64) string {
	return KeyPrefix + strconv.FormatInt(itemID, 10)
}
