package flag

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	"github.com/jwalitptl/consult-api/internal/repository/memory"
	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/logger"
)

func seedBooking(t *testing.T, store *memory.Store) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	providerID := uuid.New()
	require.NoError(t, store.Providers().Upsert(ctx, &model.Provider{ID: providerID, Name: "Dr. Wickramasinghe"}, nil))

	bookingID := uuid.New()
	err := store.Bookings().WithProviderLock(ctx, providerID, func(tx repository.LedgerTx) error {
		return tx.InsertBooking(ctx, &model.Booking{
			ID:            bookingID,
			ProviderID:    providerID,
			Date:          "2026-03-04",
			Time:          "09:00",
			Status:        model.BookingStatusPending,
			PaymentStatus: model.PaymentStatusPending,
		})
	})
	require.NoError(t, err)
	return bookingID
}

func TestAppendKeepsOrder(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store.Bookings(), logger.Nop())
	ctx := context.Background()
	bookingID := seedBooking(t, store)

	for _, msg := range []string{"first", "second", "third"} {
		_, err := svc.Append(ctx, bookingID, model.FlagTypeWarning, msg, "admin-1")
		require.NoError(t, err)
	}

	flags, err := svc.List(ctx, bookingID)
	require.NoError(t, err)
	require.Len(t, flags, 3)
	assert.Equal(t, "first", flags[0].Message)
	assert.Equal(t, "third", flags[2].Message)
	assert.Equal(t, "admin-1", flags[1].CreatedBy)
	assert.NotEqual(t, uuid.Nil, flags[1].ID)
	assert.False(t, flags[1].CreatedAt.IsZero())
}

func TestAppendValidation(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store.Bookings(), logger.Nop())
	ctx := context.Background()
	bookingID := seedBooking(t, store)

	_, err := svc.Append(ctx, bookingID, model.FlagType("critical"), "msg", "admin-1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidFlagType)

	_, err = svc.Append(ctx, bookingID, model.FlagTypeInfo, "   ", "admin-1")
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)

	_, err = svc.Append(ctx, bookingID, model.FlagTypeInfo, "msg", "")
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)

	_, err = svc.Append(ctx, uuid.New(), model.FlagTypeInfo, "msg", "admin-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRemoveTakesOnlyThatFlag(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store.Bookings(), logger.Nop())
	ctx := context.Background()
	bookingID := seedBooking(t, store)

	var ids []uuid.UUID
	for _, msg := range []string{"a", "b", "c"} {
		f, err := svc.Append(ctx, bookingID, model.FlagTypeInfo, msg, "admin-1")
		require.NoError(t, err)
		ids = append(ids, f.ID)
	}

	require.NoError(t, svc.Remove(ctx, bookingID, ids[1]))

	flags, err := svc.List(ctx, bookingID)
	require.NoError(t, err)
	require.Len(t, flags, 2)
	assert.Equal(t, ids[0], flags[0].ID)
	assert.Equal(t, ids[2], flags[1].ID)
}

func TestRemoveUnknownFlag(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store.Bookings(), logger.Nop())
	ctx := context.Background()
	bookingID := seedBooking(t, store)

	_, err := svc.Append(ctx, bookingID, model.FlagTypeSuccess, "paid", "admin-1")
	require.NoError(t, err)

	err = svc.Remove(ctx, bookingID, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	flags, err := svc.List(ctx, bookingID)
	require.NoError(t, err)
	assert.Len(t, flags, 1)
}
