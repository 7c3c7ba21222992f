package postgres_test

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/consult-api/config"
	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	"github.com/jwalitptl/consult-api/internal/repository/postgres"
	bookingService "github.com/jwalitptl/consult-api/internal/service/booking"
	flagService "github.com/jwalitptl/consult-api/internal/service/flag"
	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/logger"
	"github.com/jwalitptl/consult-api/pkg/metrics"
)

// Far enough ahead that no other data set shares it.
const slotDate = "2030-01-15"

type repos struct {
	providers    repository.ProviderRepository
	availability repository.AvailabilityRepository
	bookings     repository.BookingRepository
}

// setupDB connects to the database named by the CONSULT_DATABASE_* variables
// and applies the schema. The tests are skipped when no host is configured.
func setupDB(t *testing.T) *sqlx.DB {
	t.Helper()
	if os.Getenv("CONSULT_DATABASE_HOST") == "" {
		t.Skip("CONSULT_DATABASE_HOST not set")
	}

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, postgres.Migrate(ctx, db))
	return db
}

// seedProvider creates a fresh provider with two open slots on slotDate.
func seedProvider(t *testing.T, db *sqlx.DB) (repos, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	base := postgres.NewBaseRepository(db)
	r := repos{
		providers:    postgres.NewProviderRepository(base),
		availability: postgres.NewAvailabilityRepository(base),
		bookings:     postgres.NewBookingRepository(base),
	}

	providerID := uuid.New()
	require.NoError(t, r.providers.Upsert(ctx, &model.Provider{
		ID:               providerID,
		Name:             "Dr. Senanayake",
		ConsultationFee:  2500,
		Currency:         "LKR",
		DefaultStartTime: "09:00",
		DefaultEndTime:   "17:00",
	}, nil))
	require.NoError(t, r.availability.ReplaceDates(ctx, providerID, []model.Day{{
		Date:         slotDate,
		DisplayLabel: "Jan 15",
		DayName:      "Tuesday",
		IsAvailable:  true,
		Slots: []model.Slot{
			{StartTime: "09:00", EndTime: "09:30"},
			{StartTime: "09:30", EndTime: "10:00"},
			{StartTime: "10:00", EndTime: "10:30"},
		},
	}}, nil))
	return r, providerID
}

func createRequest(providerID uuid.UUID, clock string) *model.CreateBookingRequest {
	requester := uuid.New()
	return &model.CreateBookingRequest{
		ProviderID:  providerID,
		RequesterID: &requester,
		Date:        slotDate,
		Time:        clock,
		Name:        "Kamal Silva",
		Email:       "kamal@example.com",
		Phone:       "+94770000000",
	}
}

func TestConcurrentCreateSingleWinner(t *testing.T) {
	db := setupDB(t)
	r, providerID := seedProvider(t, db)
	svc := bookingService.NewService(r.bookings, logger.Nop(), metrics.New("test"))
	ctx := context.Background()

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(ctx, createRequest(providerID, "09:00"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case assert.ErrorIs(t, err, apperrors.ErrConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, attempts-1, conflicts)

	active, err := r.bookings.ListActiveByProviderAndDate(ctx, providerID, slotDate)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestActiveSlotIndexMapsToConflict(t *testing.T) {
	db := setupDB(t)
	r, providerID := seedProvider(t, db)
	ctx := context.Background()

	insert := func() error {
		return r.bookings.WithProviderLock(ctx, providerID, func(tx repository.LedgerTx) error {
			return tx.InsertBooking(ctx, &model.Booking{
				ID:            uuid.New(),
				ProviderID:    providerID,
				Date:          slotDate,
				Time:          "09:30",
				Status:        model.BookingStatusPending,
				PaymentStatus: model.PaymentStatusPending,
				Amount:        2500,
				Currency:      "LKR",
				Name:          "Kamal Silva",
				Email:         "kamal@example.com",
				Phone:         "+94770000000",
			})
		})
	}

	require.NoError(t, insert())
	// The second insert skips the application check and hits the partial unique index.
	assert.ErrorIs(t, insert(), apperrors.ErrConflict)
}

func TestTransactionsSummaryAndPaging(t *testing.T) {
	db := setupDB(t)
	r, providerID := seedProvider(t, db)
	svc := bookingService.NewService(r.bookings, logger.Nop(), metrics.New("test"))
	ctx := context.Background()

	refunded, err := svc.Create(ctx, createRequest(providerID, "09:00"))
	require.NoError(t, err)
	paid, err := svc.Create(ctx, createRequest(providerID, "09:30"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, createRequest(providerID, "10:00"))
	require.NoError(t, err)

	_, err = svc.Refund(ctx, &model.RefundRequest{BookingID: &refunded.ID})
	require.NoError(t, err)
	_, err = svc.UpdatePaymentStatus(ctx, paid.ID, model.PaymentStatusCompleted)
	require.NoError(t, err)

	filter := &model.TransactionFilter{
		ProviderID: &providerID,
		SortOrder:  model.SortOrder{Field: "time", Dir: "asc"},
		Pagination: model.Pagination{Page: 1, PageSize: 2},
	}
	page, err := svc.Transactions(ctx, filter)
	require.NoError(t, err)

	assert.EqualValues(t, 3, page.Total)
	require.Len(t, page.Transactions, 2)
	assert.Equal(t, "09:00", page.Transactions[0].Time)
	assert.Equal(t, "09:30", page.Transactions[1].Time)
	require.Len(t, page.Transactions[0].Flags, 1)
	assert.Equal(t, model.FlagTypeInfo, page.Transactions[0].Flags[0].Type)

	assert.Equal(t, model.TransactionSummary{
		TotalAmount:           7500,
		TotalTransactions:     3,
		CompletedTransactions: 1,
		PendingTransactions:   1,
		RefundedTransactions:  1,
	}, page.Summary)

	filter = &model.TransactionFilter{
		ProviderID:    &providerID,
		PaymentStatus: model.PaymentStatusRefunded,
	}
	page, err = svc.Transactions(ctx, filter)
	require.NoError(t, err)
	require.Len(t, page.Transactions, 1)
	assert.Equal(t, refunded.ID, page.Transactions[0].ID)
}

func TestFlagsKeepInsertionOrder(t *testing.T) {
	db := setupDB(t)
	r, providerID := seedProvider(t, db)
	ctx := context.Background()
	bookings := bookingService.NewService(r.bookings, logger.Nop(), metrics.New("test"))
	flags := flagService.NewService(r.bookings, logger.Nop())

	b, err := bookings.Create(ctx, createRequest(providerID, "10:00"))
	require.NoError(t, err)

	first, err := flags.Append(ctx, b.ID, model.FlagTypeWarning, "late payment", "admin")
	require.NoError(t, err)
	middle, err := flags.Append(ctx, b.ID, model.FlagTypeInfo, "called requester", "admin")
	require.NoError(t, err)
	last, err := flags.Append(ctx, b.ID, model.FlagTypeSuccess, "paid", "admin")
	require.NoError(t, err)

	require.NoError(t, flags.Remove(ctx, b.ID, middle.ID))

	list, err := flags.List(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, last.ID, list[1].ID)
}
