package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
)

const providerColumns = `id, name, consultation_fee, currency, default_start_time, default_end_time, created_at, updated_at`

type providerRepository struct {
	BaseRepository
}

func NewProviderRepository(base BaseRepository) repository.ProviderRepository {
	return &providerRepository{base}
}

func (r *providerRepository) Get(ctx context.Context, id uuid.UUID) (*model.Provider, error) {
	var p model.Provider
	err := r.db.GetContext(ctx, &p, `SELECT `+providerColumns+` FROM providers WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, "provider")
	}
	return &p, nil
}

func (r *providerRepository) Upsert(ctx context.Context, provider *model.Provider, evt *model.OutboxEvent) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO providers (
				id, name, consultation_fee, currency, default_start_time, default_end_time, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				consultation_fee = EXCLUDED.consultation_fee,
				currency = EXCLUDED.currency,
				default_start_time = EXCLUDED.default_start_time,
				default_end_time = EXCLUDED.default_end_time,
				updated_at = EXCLUDED.updated_at
			RETURNING created_at, updated_at
		`
		err := tx.QueryRowxContext(ctx, query,
			provider.ID,
			provider.Name,
			provider.ConsultationFee,
			provider.Currency,
			provider.DefaultStartTime,
			provider.DefaultEndTime,
			now(),
		).Scan(&provider.CreatedAt, &provider.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert provider: %w", err)
		}
		return insertOutboxEvent(ctx, tx, evt)
	})
}

// lockProvider takes the row lock that serialises every ledger write for the provider.
func lockProvider(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*model.Provider, error) {
	var p model.Provider
	err := tx.GetContext(ctx, &p, `SELECT `+providerColumns+` FROM providers WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, notFound(err, "provider")
	}
	return &p, nil
}
