package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookingsystem_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bookingsystem_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	bookingAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookingsystem_booking_attempts_total",
		Help: "Booking engine operations by operation and result",
	}, []string{"operation", "result"})

	bookingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bookingsystem_booking_duration_seconds",
		Help:    "Duration of booking engine operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	conflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookingsystem_conflicts_total",
		Help: "Booking attempts rejected because the window overlapped an active reservation",
	})

	activeReservations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bookingsystem_active_reservations",
		Help: "Reservations currently active and in progress",
	})

	availabilityCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookingsystem_availability_cache_lookups_total",
		Help: "Availability index cache lookups by result",
	}, []string{"result"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveBooking records a booking engine operation with its result label.
func ObserveBooking(operation, result string, duration time.Duration) {
	bookingAttempts.WithLabelValues(operation, result).Inc()
	bookingDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveConflict counts a rejected overlapping booking attempt.
func ObserveConflict() {
	conflictsTotal.Inc()
}

// SetActiveReservations sets the in-progress reservation gauge.
func SetActiveReservations(count int) {
	if count < 0 {
		count = 0
	}
	activeReservations.Set(float64(count))
}

// ObserveCacheLookup records an availability cache lookup: hit, miss, or error.
func ObserveCacheLookup(result string) {
	availabilityCacheLookups.WithLabelValues(result).Inc()
}
