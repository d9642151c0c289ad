package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yourorg/bookingsystem/internal/availability"
	"github.com/yourorg/bookingsystem/internal/events"
	"github.com/yourorg/bookingsystem/internal/featureflags"
	"github.com/yourorg/bookingsystem/internal/handler"
	"github.com/yourorg/bookingsystem/internal/infrastructure/logger"
	redisclient "github.com/yourorg/bookingsystem/internal/infrastructure/redis"
	"github.com/yourorg/bookingsystem/internal/observability/metrics"
	"github.com/yourorg/bookingsystem/internal/observability/tracing"
	"github.com/yourorg/bookingsystem/internal/repository"
	"github.com/yourorg/bookingsystem/internal/security/audit"
	"github.com/yourorg/bookingsystem/internal/security/auth"
	"github.com/yourorg/bookingsystem/internal/security/middleware"
	"github.com/yourorg/bookingsystem/internal/security/ratelimit"
	"github.com/yourorg/bookingsystem/internal/service"
	"github.com/yourorg/bookingsystem/internal/worker"
	"github.com/yourorg/bookingsystem/migrations"
	"github.com/yourorg/bookingsystem/pkg/config"
	"github.com/yourorg/bookingsystem/pkg/database"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting bookingsystem server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Initialize tracing (no-op unless an OTLP endpoint is configured)
	shutdownTracing, err := tracing.Init(ctx, log, "bookingsystem", cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Connect to PostgreSQL and apply migrations
	pool, err := database.NewConnectionPool(ctx, cfg.DatabaseURL, nil, log)
	if err != nil {
		log.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	if err := migrations.Up(ctx, pool.GetDB()); err != nil {
		log.Error("failed to apply migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 5. Connect to Redis (availability cache)
	redisClient, err := redisclient.NewClient(cfg.RedisURL)
	if err != nil {
		log.Error("failed to connect to Redis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer redisClient.Close()

	// 6. Initialize repositories
	reservationStore := repository.NewPostgresReservationStore(pool.GetDB(), log)
	itemRepo := repository.NewPostgresItemRepository(pool.GetDB(), log)
	userRepo := repository.NewPostgresUserRepository(pool.GetDB(), log)

	// 7. Initialize derived state and services
	index := availability.New(reservationStore, redisClient, cfg.AvailabilityCacheTTL, log)
	broker := events.NewBroker()
	tokenManager := auth.NewTokenManager(os.Getenv("JWT_SECRET"), "bookingsystem")
	authService := service.NewAuthService(userRepo, tokenManager, log)
	bookingService := service.NewBookingService(reservationStore, itemRepo, userRepo, index, broker, log, cfg)

	// 8. Initialize handlers
	authHandler := handler.NewAuthHandler(authService, log)
	itemsHandler := handler.NewItemsHandler(itemRepo, log)
	reservationsHandler := handler.NewReservationsHandler(bookingService, log)
	availabilityHandler := handler.NewAvailabilityHandler(bookingService, log)
	streamHandler := handler.NewStreamHandler(broker, log, cfg.CORSAllowedOrigins)
	healthHandler := handler.NewHealthHandler(handler.PingerFunc(pool.Health), redisClient)

	// 8a. Initialize security components
	rateLimiter := ratelimit.NewLimiter(cfg.RateLimitPerMinute, time.Minute)
	auditLogger := audit.NewLogger(log)

	// 9. Setup HTTP routes
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/auth/password", authHandler.ChangePassword)
	mux.HandleFunc("GET /api/items", itemsHandler.List)
	mux.HandleFunc("GET /api/items/{id}", itemsHandler.Get)
	mux.HandleFunc("POST /api/items", itemsHandler.Create)
	mux.HandleFunc("PUT /api/items/{id}", itemsHandler.Update)
	mux.Handle("GET /api/items/{id}/availability", availabilityHandler)
	mux.HandleFunc("POST /api/reservations", reservationsHandler.Create)
	mux.HandleFunc("GET /api/reservations", reservationsHandler.List)
	mux.HandleFunc("PUT /api/reservations/{id}", reservationsHandler.Update)
	mux.HandleFunc("DELETE /api/reservations/{id}", reservationsHandler.Cancel)
	if !featureflags.Enabled("disable_event_stream") {
		mux.Handle("GET /ws/items/{id}/events", streamHandler)
	}
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", healthHandler.Live)
	mux.HandleFunc("GET /readyz", healthHandler.Ready)

	// CORS middleware honoring configured origins
	handlerWithCORS := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if originAllowed(cfg.CORSAllowedOrigins, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else if len(cfg.CORSAllowedOrigins) > 0 {
			w.Header().Set("Access-Control-Allow-Origin", cfg.CORSAllowedOrigins[0])
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		mux.ServeHTTP(w, r)
	})

	// Chain middleware: request ID -> metrics -> auth -> rate limit ->
	// audit -> content type -> CORS/mux. Auth runs before the limiter and
	// audit so both see the resolved caller.
	rootHandler := withRequestID(
		metrics.HTTPMetricsMiddleware(
			middleware.AuthMiddleware(authService, log)(
				middleware.RateLimitMiddleware(rateLimiter, log)(
					middleware.AuditMiddleware(auditLogger)(
						middleware.ValidateJSONContentType(log)(handlerWithCORS),
					),
				),
			),
		),
		log,
	)

	// 10. Start reconcile worker in background
	reconcileWorker := worker.NewReconcileWorker(reservationStore, redisClient, log, cfg.ReconcileInterval)
	go reconcileWorker.Start(ctx)

	// 11. Start HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      otelhttp.NewHandler(rootHandler, "bookingsystem.http"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.String("auth", "jwt"),
		slog.Int("rate_limit", cfg.RateLimitPerMinute),
		slog.String("rate_limit_window", "1m"),
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Info("shutdown signal received")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	cancel() // Stop reconcile worker
	rateLimiter.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracing shutdown error", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
}

type requestIDKey struct{}

// withRequestID attaches a request ID to the context and response headers for traceability
func withRequestID(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := generateRequestID()
		w.Header().Set("X-Request-ID", reqID)

		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		start := time.Now()

		next.ServeHTTP(w, r.WithContext(ctx))

		log.Info("request completed",
			slog.String("request_id", reqID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("duration_ms", time.Since(start)),
		)
	})
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

func generateRequestID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}
	return fmt.Sprintf("req-%d", time.Now().UnixNano())
}
