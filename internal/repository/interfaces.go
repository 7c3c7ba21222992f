package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/consult-api/internal/model"
)

// All repository interfaces in one file
type (
	ProviderRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Provider, error)
		// Upsert creates or replaces the provider and emits evt in the same transaction.
		Upsert(ctx context.Context, provider *model.Provider, evt *model.OutboxEvent) error
	}

	AvailabilityRepository interface {
		GetDay(ctx context.Context, providerID uuid.UUID, date string) (*model.Day, error)
		ListDays(ctx context.Context, providerID uuid.UUID, from, to string) ([]model.Day, error)
		// ReplaceDates swaps the stored records for exactly the dates in days.
		ReplaceDates(ctx context.Context, providerID uuid.UUID, days []model.Day, evt *model.OutboxEvent) error
		// ReplaceFrom drops every record dated on or after from and stores days.
		ReplaceFrom(ctx context.Context, providerID uuid.UUID, from string, days []model.Day, evt *model.OutboxEvent) error
	}

	// LedgerTx is the view of storage available while a provider's ledger is locked.
	LedgerTx interface {
		Provider() *model.Provider
		GetDay(ctx context.Context, date string) (*model.Day, error)
		// FindActiveBooking returns nil when no pending or confirmed booking holds the slot.
		FindActiveBooking(ctx context.Context, date, clock string) (*model.Booking, error)
		InsertBooking(ctx context.Context, booking *model.Booking) error
		AddEvent(ctx context.Context, evt *model.OutboxEvent) error
	}

	// BookingMutation edits a locked booking in place. Returning an error aborts the change.
	BookingMutation func(booking *model.Booking) error

	BookingRepository interface {
		// WithProviderLock runs fn while holding the provider's ledger lock.
		// Nothing fn writes is visible unless it returns nil.
		WithProviderLock(ctx context.Context, providerID uuid.UUID, fn func(tx LedgerTx) error) error
		Get(ctx context.Context, id uuid.UUID) (*model.Booking, error)
		GetByReference(ctx context.Context, reference string) (*model.Booking, error)
		// Mutate locks the booking, applies fn and persists status, payment status
		// and flag changes. A non-empty eventType emits an outbox event carrying
		// the updated booking.
		Mutate(ctx context.Context, id uuid.UUID, eventType string, fn BookingMutation) (*model.Booking, error)
		// Delete removes the booking and its flags, returning what was removed.
		Delete(ctx context.Context, id uuid.UUID, eventType string) (*model.Booking, error)
		ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]*model.Booking, error)
		ListByProvider(ctx context.Context, providerID uuid.UUID) ([]*model.Booking, error)
		ListActiveByProviderAndDate(ctx context.Context, providerID uuid.UUID, date string) ([]*model.Booking, error)
		Transactions(ctx context.Context, filter *model.TransactionFilter) (*model.TransactionPage, error)
	}

	// OutboxHandler settles one claimed event by calling MarkProcessed or
	// MarkFailed on it. A returned error aborts the batch.
	OutboxHandler func(ctx context.Context, evt *model.OutboxEvent) error

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// ProcessPending claims up to limit due events and persists whatever
		// state handle leaves on each of them.
		ProcessPending(ctx context.Context, limit int, handle OutboxHandler) (int, error)
		CountPending(ctx context.Context) (int64, error)
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
