package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	"github.com/jwalitptl/consult-api/pkg/errors"
)

const bookingColumns = `id, provider_id, requester_id, date, time, status, payment_status, amount, currency,
	reference, reason, name, email, phone, location, filled_by_other, created_at, updated_at`

const flagColumns = `id, booking_id, type, message, created_by, created_at`

type bookingRepository struct {
	BaseRepository
}

func NewBookingRepository(base BaseRepository) repository.BookingRepository {
	return &bookingRepository{base}
}

// ledgerTx is a provider-locked transaction.
type ledgerTx struct {
	tx       *sqlx.Tx
	provider *model.Provider
}

func (t *ledgerTx) Provider() *model.Provider {
	return t.provider
}

func (t *ledgerTx) GetDay(ctx context.Context, date string) (*model.Day, error) {
	return getDay(ctx, t.tx, t.provider.ID, date)
}

func (t *ledgerTx) FindActiveBooking(ctx context.Context, date, clock string) (*model.Booking, error) {
	var b model.Booking
	query := `
		SELECT ` + bookingColumns + ` FROM bookings
		WHERE provider_id = $1 AND date = $2 AND time = $3
		AND status IN ('pending', 'confirmed')
	`
	err := t.tx.GetContext(ctx, &b, query, t.provider.ID, date, clock)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to check slot: %w", err)
	}
	return &b, nil
}

func (t *ledgerTx) InsertBooking(ctx context.Context, b *model.Booking) error {
	ts := now()
	b.CreatedAt = ts
	b.UpdatedAt = ts

	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err := t.tx.ExecContext(ctx, query,
		b.ID, b.ProviderID, b.RequesterID, b.Date, b.Time, b.Status, b.PaymentStatus, b.Amount, b.Currency,
		b.Reference, b.Reason, b.Name, b.Email, b.Phone, b.Location, b.FilledByOther, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("This time slot is already booked", err)
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (t *ledgerTx) AddEvent(ctx context.Context, evt *model.OutboxEvent) error {
	return insertOutboxEvent(ctx, t.tx, evt)
}

func (r *bookingRepository) WithProviderLock(ctx context.Context, providerID uuid.UUID, fn func(tx repository.LedgerTx) error) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		provider, err := lockProvider(ctx, tx, providerID)
		if err != nil {
			return err
		}
		return fn(&ledgerTx{tx: tx, provider: provider})
	})
}

func (r *bookingRepository) Get(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	return r.getOne(ctx, r.db, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

func (r *bookingRepository) GetByReference(ctx context.Context, reference string) (*model.Booking, error) {
	return r.getOne(ctx, r.db,
		`SELECT `+bookingColumns+` FROM bookings WHERE reference = $1 AND reference <> '' ORDER BY created_at DESC LIMIT 1`,
		reference)
}

func (r *bookingRepository) getOne(ctx context.Context, q sqlx.QueryerContext, query string, args ...interface{}) (*model.Booking, error) {
	var b model.Booking
	if err := sqlx.GetContext(ctx, q, &b, query, args...); err != nil {
		return nil, notFound(err, "booking")
	}
	if err := loadFlags(ctx, q, []*model.Booking{&b}); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *bookingRepository) Mutate(ctx context.Context, id uuid.UUID, eventType string, fn repository.BookingMutation) (*model.Booking, error) {
	var updated *model.Booking
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		current, err := r.getOne(ctx, tx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			return err
		}

		working := current.Clone()
		if err := fn(working); err != nil {
			return err
		}
		working.UpdatedAt = now()

		_, err = tx.ExecContext(ctx,
			`UPDATE bookings SET status = $1, payment_status = $2, updated_at = $3 WHERE id = $4`,
			working.Status, working.PaymentStatus, working.UpdatedAt, working.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return errors.Conflict("This time slot is already booked", err)
			}
			return fmt.Errorf("failed to update booking: %w", err)
		}

		if err := syncFlags(ctx, tx, current.Flags, working.Flags); err != nil {
			return err
		}

		if eventType != "" {
			evt, err := model.NewOutboxEvent(eventType, working.ID, working)
			if err != nil {
				return errors.Internal(err)
			}
			if err := insertOutboxEvent(ctx, tx, evt); err != nil {
				return err
			}
		}
		updated = working
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// syncFlags inserts flags new in after and deletes those missing from it.
// Insertion order follows the slice, which the seq column preserves.
func syncFlags(ctx context.Context, tx *sqlx.Tx, before, after []model.Flag) error {
	kept := make(map[uuid.UUID]bool, len(after))
	for _, f := range after {
		kept[f.ID] = true
	}
	existing := make(map[uuid.UUID]bool, len(before))
	for _, f := range before {
		existing[f.ID] = true
		if !kept[f.ID] {
			if _, err := tx.ExecContext(ctx, `DELETE FROM booking_flags WHERE id = $1`, f.ID); err != nil {
				return fmt.Errorf("failed to delete flag: %w", err)
			}
		}
	}

	insert := `INSERT INTO booking_flags (` + flagColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	for _, f := range after {
		if existing[f.ID] {
			continue
		}
		if _, err := tx.ExecContext(ctx, insert, f.ID, f.BookingID, f.Type, f.Message, f.CreatedBy, f.CreatedAt); err != nil {
			return fmt.Errorf("failed to create flag: %w", err)
		}
	}
	return nil
}

func (r *bookingRepository) Delete(ctx context.Context, id uuid.UUID, eventType string) (*model.Booking, error) {
	var removed *model.Booking
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		b, err := r.getOne(ctx, tx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete booking: %w", err)
		}
		if eventType != "" {
			evt, err := model.NewOutboxEvent(eventType, b.ID, b)
			if err != nil {
				return errors.Internal(err)
			}
			if err := insertOutboxEvent(ctx, tx, evt); err != nil {
				return err
			}
		}
		removed = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (r *bookingRepository) list(ctx context.Context, query string, args ...interface{}) ([]*model.Booking, error) {
	bookings := []*model.Booking{}
	if err := r.db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	if err := loadFlags(ctx, r.db, bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *bookingRepository) ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]*model.Booking, error) {
	return r.list(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE requester_id = $1 ORDER BY date ASC, time ASC`,
		requesterID)
}

func (r *bookingRepository) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]*model.Booking, error) {
	return r.list(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE provider_id = $1 ORDER BY date ASC, time ASC`,
		providerID)
}

func (r *bookingRepository) ListActiveByProviderAndDate(ctx context.Context, providerID uuid.UUID, date string) ([]*model.Booking, error) {
	return r.list(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE provider_id = $1 AND date = $2 AND status IN ('pending', 'confirmed')
		ORDER BY time ASC`,
		providerID, date)
}

func (r *bookingRepository) Transactions(ctx context.Context, filter *model.TransactionFilter) (*model.TransactionPage, error) {
	filter.Normalize()

	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.StartDate != "" {
		add("date >= $%d", filter.StartDate)
	}
	if filter.EndDate != "" {
		add("date <= $%d", filter.EndDate)
	}
	if filter.PaymentStatus != "" {
		add("payment_status = $%d", filter.PaymentStatus)
	}
	if filter.ProviderID != nil {
		add("provider_id = $%d", *filter.ProviderID)
	}
	if filter.RequesterID != nil {
		add("requester_id = $%d", *filter.RequesterID)
	}
	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	page := &model.TransactionPage{}
	summaryQuery := `
		SELECT
			COALESCE(SUM(amount), 0) AS total_amount,
			COUNT(*) AS total_transactions,
			COUNT(*) FILTER (WHERE payment_status = 'completed') AS completed_transactions,
			COUNT(*) FILTER (WHERE payment_status = 'pending') AS pending_transactions,
			COUNT(*) FILTER (WHERE payment_status = 'failed') AS failed_transactions,
			COUNT(*) FILTER (WHERE payment_status = 'refunded') AS refunded_transactions
		FROM bookings ` + clause
	if err := r.db.GetContext(ctx, &page.Summary, summaryQuery, args...); err != nil {
		return nil, fmt.Errorf("failed to summarise transactions: %w", err)
	}
	page.Total = page.Summary.TotalTransactions

	// Sort column and direction come from a whitelist, never from the request.
	column := model.TransactionSortFields[filter.Field]
	dir := "DESC"
	if filter.Dir == "asc" {
		dir = "ASC"
	}
	order := fmt.Sprintf("%s %s", column, dir)
	if column == "date" {
		order += fmt.Sprintf(", time %s", dir)
	}

	pageArgs := append(append([]interface{}{}, args...), filter.PageSize, filter.Offset())
	pageQuery := fmt.Sprintf(`SELECT %s FROM bookings %s ORDER BY %s, id LIMIT $%d OFFSET $%d`,
		bookingColumns, clause, order, len(args)+1, len(args)+2)

	rows, err := r.list(ctx, pageQuery, pageArgs...)
	if err != nil {
		return nil, err
	}
	page.Transactions = rows
	return page, nil
}

// loadFlags attaches flags to bookings in one query.
func loadFlags(ctx context.Context, q sqlx.QueryerContext, bookings []*model.Booking) error {
	if len(bookings) == 0 {
		return nil
	}
	ids := make([]string, 0, len(bookings))
	byID := make(map[uuid.UUID]*model.Booking, len(bookings))
	for _, b := range bookings {
		b.Flags = []model.Flag{}
		ids = append(ids, b.ID.String())
		byID[b.ID] = b
	}

	var flags []model.Flag
	err := sqlx.SelectContext(ctx, q, &flags,
		`SELECT `+flagColumns+` FROM booking_flags WHERE booking_id = ANY($1::uuid[]) ORDER BY seq ASC`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load flags: %w", err)
	}
	for _, f := range flags {
		if b, ok := byID[f.BookingID]; ok {
			b.Flags = append(b.Flags, f)
		}
	}
	return nil
}
