package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/guidedtours/reservation-backend/internal/config"
	"github.com/guidedtours/reservation-backend/internal/database"
	"github.com/guidedtours/reservation-backend/internal/database/memstore"
	"github.com/guidedtours/reservation-backend/internal/events"
	"github.com/guidedtours/reservation-backend/internal/handlers"
	"github.com/guidedtours/reservation-backend/internal/models"
	"github.com/guidedtours/reservation-backend/internal/services"
	"github.com/guidedtours/reservation-backend/pkg/jwt"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting Guided Tours Reservation Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Storage
	store, pinger, closeStore, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to open storage: %v", err)
	}
	defer closeStore()

	// Redis is optional: it backs the redemption rate limiter and the event stream
	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Fatalf("Invalid REDIS_URL: %v", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("Redis is not reachable; rate limiting fails open until it is")
		}
		cancel()
	}

	var publisher *events.Publisher
	if rdb != nil {
		publisher, err = events.NewRedisPublisher(rdb, logger)
		if err != nil {
			logger.Fatalf("Failed to create event publisher: %v", err)
		}
		logger.Info("Booking events go to Redis streams")
	} else {
		publisher, _ = events.NewInProcessPublisher(logger)
		logger.Info("Booking events stay in process (REDIS_URL not set)")
	}
	defer publisher.Close()

	// Payment gateway (mode fixed for the lifetime of the process)
	gateway, err := services.NewPaymentGateway(&cfg.Payment, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize payment gateway: %v", err)
	}
	logger.WithField("mode", gateway.Mode()).Info("Payment gateway initialized")

	// Initialize services
	logger.Info("Initializing services...")
	ledger := services.NewInventoryLedger(store.Tx, store.Tours, store.Ledger, store.Holds, logger)
	holds := services.NewHoldManager(store.Tx, ledger, store.Holds, cfg.Booking.HoldTTL, logger)
	codes := services.NewCodeIssuer(store.Codes, cfg.Booking.QRSigningKey, cfg.Booking.CodeMaxAttempts, logger)
	redemption := services.NewRedemptionValidator(store.Tx, store.Bookings, store.Redemptions, codes, logger)
	audits := services.NewPaymentAuditService(store.Audits, gateway.Mode(), logger)

	bookingService := services.NewBookingService(
		store, holds, ledger, codes, services.NewSettlementCalculator(),
		redemption, gateway, audits, publisher,
		services.BookingServiceConfig{
			HoldTTL:         cfg.Booking.HoldTTL,
			Retention:       cfg.Retention,
			DefaultCurrency: cfg.Booking.DefaultCurrency,
		},
		logger,
	)

	sweeper := services.NewHoldExpirationService(bookingService, holds, logger)
	cronService := services.NewCronService(sweeper, cfg.Booking.SweepSchedule, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}

	var rateLimiter *services.RateLimitService
	if rdb != nil && cfg.RateLimit.Enabled {
		rateLimiter = services.NewRateLimitService(rdb, cfg.RateLimit)
		logger.WithFields(logrus.Fields{
			"capacity": rateLimiter.Capacity(),
			"refill":   cfg.RateLimit.RefillInterval.String(),
		}).Info("Redemption rate limiting enabled")
	}

	// validation only; staff tokens are issued by the identity service
	jwtService := jwt.NewService(cfg.JWT.Secret, 0)
	logger.Info("Services initialized")

	router := handlers.NewRouter(handlers.RouterDeps{
		Bookings:    handlers.NewBookingHandler(bookingService, logger),
		Tours:       handlers.NewTourHandler(store.Tours, bookingService, logger),
		Payments:    handlers.NewPaymentHandler(bookingService, logger),
		Redemptions: handlers.NewRedemptionHandler(bookingService, logger),
		Settlements: handlers.NewSettlementHandler(bookingService, logger),
		System:      handlers.NewSystemHandler(pinger, cronService, string(gateway.Mode()), version),
		JWT:         jwtService,
		RateLimiter: rateLimiter,
		CORS:        cfg.CORS,
		Logger:      logger,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server listening on port %s", cfg.Server.Port)
		logger.Infof("Environment: %s", cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop the sweep first so it does not race the storage shutdown
	cronService.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// openStore returns the storage ports for the configured driver
func openStore(cfg *config.Config, logger *logrus.Logger) (services.Store, handlers.Pinger, func(), error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn("Using in-memory storage; data is lost on restart")
		s := memstore.New()
		if err := seedDemoTour(s, cfg.Booking.DefaultCurrency, logger); err != nil {
			return services.Store{}, nil, nil, err
		}
		store := services.Store{
			Tx: s, Tours: s, Ledger: s, Holds: s, Bookings: s,
			Codes: s, Redemptions: s, Transactions: s, Audits: s,
		}
		return store, s, func() {}, nil
	}

	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		return services.Store{}, nil, nil, err
	}
	logger.Info("Database connection established")

	bookings := database.NewBookingRepository(db)
	store := services.Store{
		Tx:           db,
		Tours:        database.NewTourRepository(db),
		Ledger:       database.NewLedgerRepository(db),
		Holds:        database.NewHoldRepository(db),
		Bookings:     bookings,
		Codes:        bookings,
		Redemptions:  database.NewRedemptionRepository(db),
		Transactions: database.NewTransactionRepository(db),
		Audits:       database.NewPaymentAuditRepository(db, logger),
	}
	return store, db, func() { db.Close() }, nil
}

func seedDemoTour(s *memstore.Store, currency string, logger *logrus.Logger) error {
	tour := &models.Tour{
		Name:     "Demo City Walk",
		Capacity: 20,
		Price:    models.Money(2500),
		Currency: currency,
		Status:   models.TourStatusActive,
	}
	if err := s.CreateTour(context.Background(), tour); err != nil {
		return fmt.Errorf("failed to seed demo tour: %w", err)
	}
	logger.WithField("tour_id", tour.ID).Info("Seeded demo tour")
	return nil
}
