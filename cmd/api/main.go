package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/consult-api/config"
	"github.com/jwalitptl/consult-api/internal/broker"
	"github.com/jwalitptl/consult-api/internal/email"
	bookingHandler "github.com/jwalitptl/consult-api/internal/handler/booking"
	"github.com/jwalitptl/consult-api/internal/handler/health"
	paymentHandler "github.com/jwalitptl/consult-api/internal/handler/payment"
	providerHandler "github.com/jwalitptl/consult-api/internal/handler/provider"
	"github.com/jwalitptl/consult-api/internal/middleware"
	"github.com/jwalitptl/consult-api/internal/repository"
	"github.com/jwalitptl/consult-api/internal/repository/memory"
	"github.com/jwalitptl/consult-api/internal/repository/postgres"
	"github.com/jwalitptl/consult-api/internal/router"
	availabilityService "github.com/jwalitptl/consult-api/internal/service/availability"
	bookingService "github.com/jwalitptl/consult-api/internal/service/booking"
	flagService "github.com/jwalitptl/consult-api/internal/service/flag"
	"github.com/jwalitptl/consult-api/internal/service/notification"
	providerService "github.com/jwalitptl/consult-api/internal/service/provider"
	"github.com/jwalitptl/consult-api/pkg/auth"
	"github.com/jwalitptl/consult-api/pkg/logger"
	"github.com/jwalitptl/consult-api/pkg/messaging"
	"github.com/jwalitptl/consult-api/pkg/metrics"
	"github.com/jwalitptl/consult-api/pkg/worker"
)

type repositories struct {
	providers    repository.ProviderRepository
	availability repository.AvailabilityRepository
	bookings     repository.BookingRepository
	outbox       repository.OutboxRepository
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level: logger.ParseLevel(cfg.Log.Level),
		JSON:  cfg.Log.JSON,
	})
	log.Logger = appLogger.Zerolog()

	if err := middleware.RegisterValidation(); err != nil {
		log.Fatal().Err(err).Msg("failed to register validators")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New("consult")
	if err := appMetrics.Register(registry); err != nil {
		log.Fatal().Err(err).Msg("failed to register metrics")
	}

	checks := map[string]health.Check{}
	var repos repositories

	switch cfg.Storage.Driver {
	case "postgres":
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		if cfg.Database.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				log.Fatal().Err(err).Msg("failed to migrate database")
			}
		}
		repos = postgresRepositories(db)
		checks["database"] = db.PingContext
	case "memory":
		store := memory.NewStore()
		repos = repositories{
			providers:    store.Providers(),
			availability: store.Availability(),
			bookings:     store.Bookings(),
			outbox:       store.Outbox(),
		}

		// Nothing else can see an in-memory outbox, so it is drained in-process.
		b, err := broker.Open(ctx, cfg, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to message broker")
		}
		defer b.Close()
		checks["broker"] = b.Ping

		if err := startOutboxWorkers(ctx, cfg, repos.outbox, b, appLogger, appMetrics); err != nil {
			log.Fatal().Err(err).Msg("failed to start outbox workers")
		}
	}

	providers := providerService.NewService(repos.providers, cfg.Booking.Currency, appLogger)
	calendar := availabilityService.NewService(
		repos.providers,
		repos.availability,
		repos.bookings,
		availabilityService.Config{
			Location: cfg.Booking.Location(),
			CacheTTL: cfg.Booking.CacheTTL,
		},
		appLogger,
		appMetrics,
	)
	bookings := bookingService.NewService(repos.bookings, appLogger, appMetrics)
	flags := flagService.NewService(repos.bookings, appLogger)

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.Security.AllowedOrigins
	corsConfig.AllowMethods = cfg.Security.AllowedMethods
	corsConfig.AllowHeaders = cfg.Security.AllowedHeaders

	routerConfig := router.RouterConfig{
		Mode:           cfg.Server.Mode,
		RequestTimeout: cfg.Server.RequestTimeout,
		CORSConfig:     corsConfig,
		MetricsPrefix:  "consult_http",
		Logger:         log.Logger,
		Registry:       registry,
	}
	if cfg.RateLimit.Enabled {
		routerConfig.RateLimit = rate.Limit(cfg.RateLimit.RequestsPerSecond)
		routerConfig.RateBurst = cfg.RateLimit.Burst
	}
	if cfg.Auth.Secret != "" {
		routerConfig.Tokens = auth.NewTokenParser(cfg.Auth.Secret)
	}

	r, err := router.NewRouter(routerConfig,
		health.NewHandler(checks),
		bookingHandler.NewHandler(bookings, flags),
		providerHandler.NewHandler(providers, calendar),
		paymentHandler.NewHandler(bookings),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build router")
	}
	r.Setup()

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        r.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("storage", cfg.Storage.Driver).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}
	log.Info().Msg("server exited")
}

func postgresRepositories(db *sqlx.DB) repositories {
	base := postgres.NewBaseRepository(db)
	return repositories{
		providers:    postgres.NewProviderRepository(base),
		availability: postgres.NewAvailabilityRepository(base),
		bookings:     postgres.NewBookingRepository(base),
		outbox:       postgres.NewOutboxRepository(base),
	}
}

func startOutboxWorkers(
	ctx context.Context,
	cfg *config.Config,
	outbox repository.OutboxRepository,
	b broker.Broker,
	appLogger *logger.Logger,
	appMetrics *metrics.Metrics,
) error {
	processor, err := worker.NewOutboxProcessor(outbox, b, cfg.Outbox.ToWorkerConfig(), appLogger, appMetrics)
	if err != nil {
		return err
	}
	cleanup := worker.NewOutboxCleanupWorker(outbox, cfg.Outbox.ToCleanupConfig(), appLogger, appMetrics)

	var sender email.Sender = email.NopSender{}
	if cfg.SMTP.Enabled {
		sender = email.NewSMTPSender(cfg.SMTP.ToSenderConfig())
	}
	notifier := notification.NewService(sender, appLogger, appMetrics)
	dispatcher := messaging.NewDispatcher(b, log.Logger)

	go processor.Start(ctx)
	go cleanup.Start(ctx)
	go func() {
		if err := dispatcher.Run(ctx, cfg.Broker.NotifyTopics, notifier.Handle); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("notification dispatcher stopped")
		}
	}()
	return nil
}
