package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/consult-api/config"
	"github.com/jwalitptl/consult-api/internal/broker"
	"github.com/jwalitptl/consult-api/internal/email"
	"github.com/jwalitptl/consult-api/internal/repository/postgres"
	"github.com/jwalitptl/consult-api/internal/service/notification"
	"github.com/jwalitptl/consult-api/pkg/logger"
	"github.com/jwalitptl/consult-api/pkg/messaging"
	"github.com/jwalitptl/consult-api/pkg/metrics"
	"github.com/jwalitptl/consult-api/pkg/worker"
)

// The worker drains the postgres outbox onto the broker, purges delivered
// events and e-mails booking contacts from the notify topics.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level: logger.ParseLevel(cfg.Log.Level),
		JSON:  cfg.Log.JSON,
	})
	log.Logger = appLogger.Zerolog()

	if cfg.Storage.Driver != "postgres" {
		log.Fatal().Str("driver", cfg.Storage.Driver).Msg("the worker needs postgres storage; the api drains in-memory outboxes itself")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New("consult")
	if err := appMetrics.Register(registry); err != nil {
		log.Fatal().Err(err).Msg("failed to register metrics")
	}

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	b, err := broker.Open(ctx, cfg, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create message broker")
	}
	defer b.Close()

	outboxRepo := postgres.NewOutboxRepository(postgres.NewBaseRepository(db))

	processor, err := worker.NewOutboxProcessor(outboxRepo, b, cfg.Outbox.ToWorkerConfig(), appLogger, appMetrics)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid outbox processor config")
	}
	cleanup := worker.NewOutboxCleanupWorker(outboxRepo, cfg.Outbox.ToCleanupConfig(), appLogger, appMetrics)

	var sender email.Sender = email.NopSender{}
	if cfg.SMTP.Enabled {
		sender = email.NewSMTPSender(cfg.SMTP.ToSenderConfig())
	}
	notifier := notification.NewService(sender, appLogger, appMetrics)
	dispatcher := messaging.NewDispatcher(b, log.Logger)

	srv := healthServer(cfg.Worker.Port, registry, map[string]func(context.Context) error{
		"database": db.PingContext,
		"broker":   b.Ping,
	})
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server failed")
			stop()
		}
	}()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		processor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		cleanup.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := dispatcher.Run(ctx, cfg.Broker.NotifyTopics, notifier.Handle); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("notification dispatcher stopped")
			stop()
		}
	}()

	log.Info().Str("broker", cfg.Broker.Driver).Strs("topics", cfg.Broker.NotifyTopics).Msg("worker started")
	<-ctx.Done()
	log.Info().Msg("shutting down...")

	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}
}

func healthServer(port int, gatherer prometheus.Gatherer, checks map[string]func(context.Context) error) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for name, check := range checks {
			if err := check(ctx); err != nil {
				http.Error(w, name+": "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
