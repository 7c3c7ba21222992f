package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/consult-api/internal/repository"
	"github.com/jwalitptl/consult-api/pkg/logger"
	"github.com/jwalitptl/consult-api/pkg/metrics"
)

type CleanupConfig struct {
	Interval  time.Duration
	Retention time.Duration
}

// OutboxCleanupWorker purges delivered outbox rows once they age past retention.
type OutboxCleanupWorker struct {
	repo    repository.OutboxRepository
	config  CleanupConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewOutboxCleanupWorker(repo repository.OutboxRepository, config CleanupConfig, logger *logger.Logger, metrics *metrics.Metrics) *OutboxCleanupWorker {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.Retention <= 0 {
		config.Retention = 7 * 24 * time.Hour
	}
	return &OutboxCleanupWorker{
		repo:    repo,
		config:  config,
		logger:  logger.With("outbox-cleanup"),
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (w *OutboxCleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Cleanup(ctx); err != nil {
				w.logger.Error(err, "Failed to clean up outbox")
			}
		}
	}
}

func (w *OutboxCleanupWorker) Cleanup(ctx context.Context) (int64, error) {
	cutoff := w.now().Add(-w.config.Retention)

	rows, err := w.repo.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup outbox events: %w", err)
	}

	w.metrics.OutboxEventsPurged.Add(float64(rows))
	if rows > 0 {
		w.logger.Info("Cleaned up outbox events", "rows", rows, "cutoff", cutoff)
	}
	return rows, nil
}
