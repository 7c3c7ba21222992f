package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	"github.com/jwalitptl/consult-api/pkg/errors"
)

type bookingRepository struct {
	s *Store
}

// ledgerTx stages writes until the callback succeeds.
type ledgerTx struct {
	s        *Store
	provider *model.Provider
	inserts  []*model.Booking
	events   []*model.OutboxEvent
}

func (t *ledgerTx) Provider() *model.Provider {
	return t.provider
}

func (t *ledgerTx) GetDay(ctx context.Context, date string) (*model.Day, error) {
	return t.s.getDay(t.provider.ID, date)
}

func (t *ledgerTx) FindActiveBooking(ctx context.Context, date, clock string) (*model.Booking, error) {
	match := func(b *model.Booking) bool {
		return b.ProviderID == t.provider.ID && b.Date == date && b.Time == clock && b.Status.IsActive()
	}
	for _, b := range t.inserts {
		if match(b) {
			return b.Clone(), nil
		}
	}
	for _, b := range t.s.bookings {
		if match(b) {
			return b.Clone(), nil
		}
	}
	return nil, nil
}

func (t *ledgerTx) InsertBooking(ctx context.Context, booking *model.Booking) error {
	if booking.Status.IsActive() {
		existing, _ := t.FindActiveBooking(ctx, booking.Date, booking.Time)
		if existing != nil {
			return errors.Conflict("slot already booked", nil)
		}
	}
	now := t.s.now()
	booking.CreatedAt = now
	booking.UpdatedAt = now
	t.inserts = append(t.inserts, booking.Clone())
	return nil
}

func (t *ledgerTx) AddEvent(ctx context.Context, evt *model.OutboxEvent) error {
	t.events = append(t.events, evt)
	return nil
}

func (r *bookingRepository) WithProviderLock(ctx context.Context, providerID uuid.UUID, fn func(tx repository.LedgerTx) error) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.providers[providerID]
	if !ok {
		return errors.NotFound("provider", nil)
	}
	cp := *p
	tx := &ledgerTx{s: r.s, provider: &cp}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, b := range tx.inserts {
		r.s.bookings[b.ID] = b
	}
	r.s.outbox = append(r.s.outbox, tx.events...)
	return nil
}

func (r *bookingRepository) Get(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.bookings[id]
	if !ok {
		return nil, errors.NotFound("booking", nil)
	}
	return b.Clone(), nil
}

func (r *bookingRepository) GetByReference(ctx context.Context, reference string) (*model.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, b := range r.s.bookings {
		if reference != "" && b.Reference == reference {
			return b.Clone(), nil
		}
	}
	return nil, errors.NotFound("booking", nil)
}

func (r *bookingRepository) Mutate(ctx context.Context, id uuid.UUID, eventType string, fn repository.BookingMutation) (*model.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.bookings[id]
	if !ok {
		return nil, errors.NotFound("booking", nil)
	}
	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.UpdatedAt = r.s.now()

	if eventType != "" {
		evt, err := model.NewOutboxEvent(eventType, working.ID, working)
		if err != nil {
			return nil, errors.Internal(err)
		}
		r.s.outbox = append(r.s.outbox, evt)
	}
	r.s.bookings[id] = working
	return working.Clone(), nil
}

func (r *bookingRepository) Delete(ctx context.Context, id uuid.UUID, eventType string) (*model.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.bookings[id]
	if !ok {
		return nil, errors.NotFound("booking", nil)
	}
	if eventType != "" {
		evt, err := model.NewOutboxEvent(eventType, b.ID, b)
		if err != nil {
			return nil, errors.Internal(err)
		}
		r.s.outbox = append(r.s.outbox, evt)
	}
	delete(r.s.bookings, id)
	return b.Clone(), nil
}

func (r *bookingRepository) list(match func(b *model.Booking) bool) []*model.Booking {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := []*model.Booking{}
	for _, b := range r.s.bookings {
		if match(b) {
			out = append(out, b.Clone())
		}
	}
	sortBookings(out)
	return out
}

func (r *bookingRepository) ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]*model.Booking, error) {
	return r.list(func(b *model.Booking) bool {
		return b.RequesterID != nil && *b.RequesterID == requesterID
	}), nil
}

func (r *bookingRepository) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]*model.Booking, error) {
	return r.list(func(b *model.Booking) bool {
		return b.ProviderID == providerID
	}), nil
}

func (r *bookingRepository) ListActiveByProviderAndDate(ctx context.Context, providerID uuid.UUID, date string) ([]*model.Booking, error) {
	return r.list(func(b *model.Booking) bool {
		return b.ProviderID == providerID && b.Date == date && b.Status.IsActive()
	}), nil
}

func (r *bookingRepository) Transactions(ctx context.Context, filter *model.TransactionFilter) (*model.TransactionPage, error) {
	filter.Normalize()
	rows := r.list(func(b *model.Booking) bool {
		switch {
		case filter.StartDate != "" && b.Date < filter.StartDate:
			return false
		case filter.EndDate != "" && b.Date > filter.EndDate:
			return false
		case filter.PaymentStatus != "" && b.PaymentStatus != filter.PaymentStatus:
			return false
		case filter.ProviderID != nil && b.ProviderID != *filter.ProviderID:
			return false
		case filter.RequesterID != nil && !b.SameRequester(filter.RequesterID):
			return false
		}
		return true
	})

	page := &model.TransactionPage{Total: int64(len(rows))}
	for _, b := range rows {
		page.Summary.Add(b)
	}

	less := transactionLess(filter.Field)
	sort.SliceStable(rows, func(i, j int) bool {
		if filter.Dir == "asc" {
			return less(rows[i], rows[j])
		}
		return less(rows[j], rows[i])
	})

	start := filter.Offset()
	if start > len(rows) {
		start = len(rows)
	}
	end := start + filter.PageSize
	if end > len(rows) {
		end = len(rows)
	}
	page.Transactions = rows[start:end]
	return page, nil
}

func transactionLess(field string) func(a, b *model.Booking) bool {
	switch field {
	case "amount":
		return func(a, b *model.Booking) bool { return a.Amount < b.Amount }
	case "time":
		return func(a, b *model.Booking) bool { return a.Time < b.Time }
	case "createdAt":
		return func(a, b *model.Booking) bool { return a.CreatedAt.Before(b.CreatedAt) }
	default:
		return func(a, b *model.Booking) bool {
			if a.Date != b.Date {
				return a.Date < b.Date
			}
			return a.Time < b.Time
		}
	}
}
