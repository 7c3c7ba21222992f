package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
)

type dayRow struct {
	ProviderID   uuid.UUID `db:"provider_id"`
	Date         string    `db:"date"`
	DisplayLabel string    `db:"display_label"`
	DayName      string    `db:"day_name"`
	IsAvailable  bool      `db:"is_available"`
	Slots        []byte    `db:"slots"`
}

func (r dayRow) toModel() (model.Day, error) {
	day := model.Day{
		ProviderID:   r.ProviderID,
		Date:         r.Date,
		DisplayLabel: r.DisplayLabel,
		DayName:      r.DayName,
		IsAvailable:  r.IsAvailable,
		Slots:        []model.Slot{},
	}
	if len(r.Slots) > 0 {
		if err := json.Unmarshal(r.Slots, &day.Slots); err != nil {
			return day, fmt.Errorf("failed to decode slots for %s: %w", r.Date, err)
		}
	}
	return day, nil
}

const dayColumns = `provider_id, date, display_label, day_name, is_available, slots`

type availabilityRepository struct {
	BaseRepository
}

func NewAvailabilityRepository(base BaseRepository) repository.AvailabilityRepository {
	return &availabilityRepository{base}
}

func (r *availabilityRepository) GetDay(ctx context.Context, providerID uuid.UUID, date string) (*model.Day, error) {
	return getDay(ctx, r.db, providerID, date)
}

func getDay(ctx context.Context, q sqlx.QueryerContext, providerID uuid.UUID, date string) (*model.Day, error) {
	var row dayRow
	err := sqlx.GetContext(ctx, q, &row,
		`SELECT `+dayColumns+` FROM availability_days WHERE provider_id = $1 AND date = $2`,
		providerID, date)
	if err != nil {
		return nil, notFound(err, "availability day")
	}
	day, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &day, nil
}

func (r *availabilityRepository) ListDays(ctx context.Context, providerID uuid.UUID, from, to string) ([]model.Day, error) {
	query := `
		SELECT ` + dayColumns + ` FROM availability_days
		WHERE provider_id = $1
		AND ($2 = '' OR date >= $2)
		AND ($3 = '' OR date <= $3)
		ORDER BY date ASC
	`
	var rows []dayRow
	if err := r.db.SelectContext(ctx, &rows, query, providerID, from, to); err != nil {
		return nil, fmt.Errorf("failed to list availability: %w", err)
	}

	days := make([]model.Day, 0, len(rows))
	for _, row := range rows {
		day, err := row.toModel()
		if err != nil {
			return nil, err
		}
		days = append(days, day)
	}
	return days, nil
}

func (r *availabilityRepository) ReplaceDates(ctx context.Context, providerID uuid.UUID, days []model.Day, evt *model.OutboxEvent) error {
	dates := make([]string, 0, len(days))
	for _, d := range days {
		dates = append(dates, d.Date)
	}
	return r.replace(ctx, providerID, days, evt,
		`DELETE FROM availability_days WHERE provider_id = $1 AND date = ANY($2)`, pq.Array(dates))
}

func (r *availabilityRepository) ReplaceFrom(ctx context.Context, providerID uuid.UUID, from string, days []model.Day, evt *model.OutboxEvent) error {
	return r.replace(ctx, providerID, days, evt,
		`DELETE FROM availability_days WHERE provider_id = $1 AND date >= $2`, from)
}

func (r *availabilityRepository) replace(ctx context.Context, providerID uuid.UUID, days []model.Day, evt *model.OutboxEvent, deleteQuery string, deleteArg interface{}) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := lockProvider(ctx, tx, providerID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, deleteQuery, providerID, deleteArg); err != nil {
			return fmt.Errorf("failed to clear availability: %w", err)
		}

		insert := `
			INSERT INTO availability_days (` + dayColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		for _, day := range days {
			slots, err := json.Marshal(day.Slots)
			if err != nil {
				return fmt.Errorf("failed to encode slots: %w", err)
			}
			if _, err := tx.ExecContext(ctx, insert,
				providerID, day.Date, day.DisplayLabel, day.DayName, day.IsAvailable, string(slots),
			); err != nil {
				return fmt.Errorf("failed to store availability for %s: %w", day.Date, err)
			}
		}
		return insertOutboxEvent(ctx, tx, evt)
	})
}
