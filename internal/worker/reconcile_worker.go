package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/yourorg/bookingsystem/internal/availability"
	"github.com/yourorg/bookingsystem/internal/domain"
	redisclient "github.com/yourorg/bookingsystem/internal/infrastructure/redis"
	"github.com/yourorg/bookingsystem/internal/observability/metrics"
)

// ReconcileWorker periodically re-derives the monitoring gauge from the
// store and sweeps the availability cache, bounding how long any cached
// interval list can drift from the durable state. It never influences a
// commit decision; the booking transaction does its own checking.
type ReconcileWorker struct {
	reservations domain.ReservationStore
	cache        *redisclient.Client
	logger       *slog.Logger
	interval     time.Duration
}

// NewReconcileWorker creates a new reconcile worker
func NewReconcileWorker(
	reservations domain.ReservationStore,
	cache *redisclient.Client,
	logger *slog.Logger,
	interval time.Duration,
) *ReconcileWorker {
	return &ReconcileWorker{
		reservations: reservations,
		cache:        cache,
		logger:       logger,
		interval:     interval,
	}
}

// Start begins the reconcile loop. It runs until the context is cancelled.
func (w *ReconcileWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("reconcile worker started", slog.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("reconcile worker stopped")
			return
		case <-ticker.C:
			w.reconcile(ctx)
		}
	}
}

func (w *ReconcileWorker) reconcile(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	count, err := w.reservations.CountActiveAt(runCtx, time.Now())
	if err != nil {
		w.logger.Error("failed to count active reservations", slog.String("error", err.Error()))
	} else {
		metrics.SetActiveReservations(count)
	}

	if w.cache != nil {
		if err := w.cache.DeleteByPattern(runCtx, availability.KeyPrefix+"*"); err != nil {
			w.logger.Warn("failed to sweep availability cache", slog.String("error", err.Error()))
		}
	}
}
