package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	"github.com/jwalitptl/consult-api/pkg/logger"
	"github.com/jwalitptl/consult-api/pkg/messaging"
	"github.com/jwalitptl/consult-api/pkg/metrics"
)

type OutboxProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// RetryAttempts is the number of publish attempts per poll.
	RetryAttempts int
	RetryDelay    time.Duration
	// MaxDeliveries failed polls park the event as FAILED.
	MaxDeliveries int
}

type OutboxProcessor struct {
	repo    repository.OutboxRepository
	broker  messaging.Broker
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) (*OutboxProcessor, error) {
	if config.BatchSize <= 0 {
		return nil, errors.New("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		return nil, errors.New("PollInterval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		return nil, errors.New("RetryAttempts must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		return nil, errors.New("RetryDelay must be greater than 0")
	}
	if config.MaxDeliveries <= 0 {
		config.MaxDeliveries = 5
	}

	return &OutboxProcessor{
		repo:    repo,
		broker:  broker,
		config:  config,
		logger:  logger.With("outbox-processor"),
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
		}
	}
}

// ProcessBatch publishes one batch of due events and returns how many were claimed.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	n, err := p.repo.ProcessPending(ctx, p.config.BatchSize, p.processEvent)
	if err != nil {
		return n, fmt.Errorf("failed to process pending events: %w", err)
	}

	if pending, err := p.repo.CountPending(ctx); err == nil {
		p.metrics.OutboxQueueSize.Set(float64(pending))
	}
	return n, nil
}

func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) error {
	msg := messaging.Message{
		ID:         event.ID.String(),
		Type:       event.EventType,
		Key:        event.AggregateID.String(),
		OccurredAt: event.CreatedAt,
		Payload:    event.Payload,
	}

	attempt := 0
	err := retry(ctx, p.config.RetryAttempts, p.config.RetryDelay, func() error {
		if attempt > 0 {
			p.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()
		}
		attempt++
		return p.broker.Publish(ctx, event.EventType, msg)
	})

	if err != nil {
		p.metrics.OutboxEventsFailed.Inc()
		event.MarkFailed(err, p.now(), p.config.MaxDeliveries, p.config.PollInterval)
		p.logger.Error(err, "Failed to publish event",
			"event_id", event.ID.String(),
			"event_type", event.EventType,
			"retry_count", event.RetryCount)
		return nil
	}

	p.metrics.OutboxEventsProcessed.Inc()
	event.MarkProcessed(p.now())
	return nil
}

// Helper retry function
func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}
