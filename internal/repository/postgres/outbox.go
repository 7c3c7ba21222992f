package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
)

const outboxColumns = `id, aggregate_id, event_type, payload, status, error_message, retry_count, retry_at,
	processed_at, created_at, updated_at`

type outboxRepository struct {
	BaseRepository
}

func NewOutboxRepository(base BaseRepository) repository.OutboxRepository {
	return &outboxRepository{base}
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}
	return insertOutboxEvent(ctx, r.db, event)
}

// ProcessPending locks a batch with SKIP LOCKED so several workers can drain
// the outbox side by side without double delivery.
func (r *outboxRepository) ProcessPending(ctx context.Context, limit int, handle repository.OutboxHandler) (int, error) {
	var n int
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			SELECT ` + outboxColumns + `
			FROM outbox_events
			WHERE status = $1
			AND (retry_at IS NULL OR retry_at <= NOW())
			ORDER BY created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		`
		var events []*model.OutboxEvent
		if err := tx.SelectContext(ctx, &events, query, model.OutboxStatusPending, limit); err != nil {
			return fmt.Errorf("failed to get pending events: %w", err)
		}

		update := `
			UPDATE outbox_events
			SET status = $1,
				error_message = $2,
				retry_count = $3,
				retry_at = $4,
				processed_at = $5,
				updated_at = $6
			WHERE id = $7
		`
		for _, evt := range events {
			if err := handle(ctx, evt); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, update,
				evt.Status, evt.ErrorMessage, evt.RetryCount, evt.RetryAt, evt.ProcessedAt, evt.UpdatedAt, evt.ID,
			); err != nil {
				return fmt.Errorf("failed to update event status: %w", err)
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *outboxRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM outbox_events WHERE status = $1`, model.OutboxStatusPending); err != nil {
		return 0, fmt.Errorf("failed to count pending events: %w", err)
	}
	return n, nil
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM outbox_events
		WHERE status = $1
		AND processed_at < $2
	`
	result, err := r.db.ExecContext(ctx, query, model.OutboxStatusProcessed, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed events: %w", err)
	}

	return result.RowsAffected()
}
