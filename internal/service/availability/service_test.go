package availability

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	"github.com/jwalitptl/consult-api/internal/repository/memory"
	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/logger"
	"github.com/jwalitptl/consult-api/pkg/metrics"
)

// Monday 2 March 2026, 10:10.
var fixedNow = time.Date(2026, 3, 2, 10, 10, 0, 0, time.UTC)

func setup(t *testing.T) (*Service, *memory.Store, uuid.UUID) {
	t.Helper()
	store := memory.NewStore()
	providerID := uuid.New()
	require.NoError(t, store.Providers().Upsert(context.Background(), &model.Provider{
		ID:               providerID,
		Name:             "Dr. Fernando",
		ConsultationFee:  2500,
		Currency:         "LKR",
		DefaultStartTime: "09:00",
		DefaultEndTime:   "12:00",
	}, nil))

	svc := NewService(store.Providers(), store.Availability(), store.Bookings(),
		Config{Location: time.UTC}, logger.Nop(), metrics.New("test"))
	svc.now = func() time.Time { return fixedNow }
	return svc, store, providerID
}

func morning() []model.Slot {
	slots, _ := GenerateSlots("09:00", "12:00")
	return slots
}

func TestReplaceWeekDerivesLabels(t *testing.T) {
	svc, _, providerID := setup(t)
	ctx := context.Background()

	_, err := svc.ReplaceWeek(ctx, providerID, []model.Day{
		{Date: "2026-03-02", IsAvailable: true, Slots: morning()},
	})
	require.NoError(t, err)

	day, err := svc.Lookup(ctx, providerID, "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, "Mon, Mar 2", day.DisplayLabel)
	assert.Equal(t, "Monday", day.DayName)
	assert.True(t, day.IsAvailable)
	assert.Len(t, day.Slots, 6)
}

func TestReplaceWeekTouchesOnlySubmittedDates(t *testing.T) {
	svc, _, providerID := setup(t)
	ctx := context.Background()

	_, err := svc.ReplaceWeek(ctx, providerID, []model.Day{
		{Date: "2026-03-02", IsAvailable: true, Slots: morning()},
		{Date: "2026-03-03", IsAvailable: true, Slots: morning()},
	})
	require.NoError(t, err)

	_, err = svc.ReplaceWeek(ctx, providerID, []model.Day{
		{Date: "2026-03-03", IsAvailable: true, Slots: []model.Slot{{StartTime: "14:00", EndTime: "14:30"}}},
	})
	require.NoError(t, err)

	monday, err := svc.Lookup(ctx, providerID, "2026-03-02")
	require.NoError(t, err)
	assert.Len(t, monday.Slots, 6)

	tuesday, err := svc.Lookup(ctx, providerID, "2026-03-03")
	require.NoError(t, err)
	assert.Equal(t, []model.Slot{{StartTime: "14:00", EndTime: "14:30"}}, tuesday.Slots)
}

func TestReplaceAllKeepsHistory(t *testing.T) {
	svc, store, providerID := setup(t)
	ctx := context.Background()

	require.NoError(t, store.Availability().ReplaceDates(ctx, providerID, []model.Day{
		{Date: "2026-02-20", IsAvailable: true, Slots: morning()},
	}, nil))
	_, err := svc.ReplaceWeek(ctx, providerID, []model.Day{
		{Date: "2026-03-02", IsAvailable: true, Slots: morning()},
	})
	require.NoError(t, err)

	_, err = svc.ReplaceAll(ctx, providerID, []model.Day{
		{Date: "2026-03-05", IsAvailable: true, Slots: morning()},
	})
	require.NoError(t, err)

	days, err := svc.ListDays(ctx, providerID, "", "")
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, "2026-02-20", days[0].Date)
	assert.Equal(t, "2026-03-05", days[1].Date)

	_, err = svc.Lookup(ctx, providerID, "2026-03-02")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestReplaceRejectsDatesOutsideWindow(t *testing.T) {
	svc, _, providerID := setup(t)
	ctx := context.Background()

	for _, date := range []string{"2026-03-01", "2027-01-04", "2026-3-05"} {
		_, err := svc.ReplaceWeek(ctx, providerID, []model.Day{{Date: date, IsAvailable: true, Slots: morning()}})
		assert.ErrorIs(t, err, apperrors.ErrBadRequest, date)
	}

	_, err := svc.ReplaceWeek(ctx, providerID, []model.Day{{Date: "2026-12-31", IsAvailable: true, Slots: morning()}})
	assert.NoError(t, err)
}

func TestReplaceValidatesDays(t *testing.T) {
	svc, _, providerID := setup(t)
	ctx := context.Background()

	_, err := svc.ReplaceWeek(ctx, providerID, []model.Day{{
		Date:        "2026-03-04",
		IsAvailable: true,
		Slots: []model.Slot{
			{StartTime: "09:00", EndTime: "10:00"},
			{StartTime: "09:30", EndTime: "10:30"},
		},
	}})
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)

	_, err = svc.ReplaceWeek(ctx, providerID, []model.Day{
		{Date: "2026-03-04", IsAvailable: true, Slots: morning()},
		{Date: "2026-03-04", IsAvailable: true, Slots: morning()},
	})
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)

	days, err := svc.ReplaceWeek(ctx, providerID, []model.Day{{Date: "2026-03-04", IsAvailable: true}})
	require.NoError(t, err)
	assert.False(t, days[0].IsAvailable)
	assert.NotNil(t, days[0].Slots)
}

func TestReplaceWeekUnknownProvider(t *testing.T) {
	svc, _, _ := setup(t)
	_, err := svc.ReplaceWeek(context.Background(), uuid.New(), []model.Day{{Date: "2026-03-04"}})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestReplaceWeekEmitsEvent(t *testing.T) {
	svc, store, providerID := setup(t)
	_, err := svc.ReplaceWeek(context.Background(), providerID, []model.Day{{Date: "2026-03-04", IsAvailable: true, Slots: morning()}})
	require.NoError(t, err)

	events := store.Events()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, model.EventAvailabilityReplaced, last.EventType)
	assert.Equal(t, providerID, last.AggregateID)
}

func TestLookupErrors(t *testing.T) {
	svc, _, providerID := setup(t)
	ctx := context.Background()

	_, err := svc.Lookup(ctx, providerID, "2026-03-09")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = svc.Lookup(ctx, providerID, "March 9")
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestLookupCacheIsInvalidatedOnReplace(t *testing.T) {
	svc, _, providerID := setup(t)
	ctx := context.Background()

	_, err := svc.ReplaceWeek(ctx, providerID, []model.Day{{Date: "2026-03-04", IsAvailable: true, Slots: morning()}})
	require.NoError(t, err)
	first, err := svc.Lookup(ctx, providerID, "2026-03-04")
	require.NoError(t, err)
	require.True(t, first.IsAvailable)

	_, err = svc.ReplaceWeek(ctx, providerID, []model.Day{{Date: "2026-03-04", IsAvailable: false}})
	require.NoError(t, err)
	second, err := svc.Lookup(ctx, providerID, "2026-03-04")
	require.NoError(t, err)
	assert.False(t, second.IsAvailable)
}

// racingDays runs onRead once, right after a GetDay has read the stored day.
type racingDays struct {
	repository.AvailabilityRepository
	onRead func()
}

func (r *racingDays) GetDay(ctx context.Context, providerID uuid.UUID, date string) (*model.Day, error) {
	day, err := r.AvailabilityRepository.GetDay(ctx, providerID, date)
	if hook := r.onRead; hook != nil {
		r.onRead = nil
		hook()
	}
	return day, err
}

func TestLookupDoesNotCacheDayReplacedDuringRead(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	providerID := uuid.New()
	require.NoError(t, store.Providers().Upsert(ctx, &model.Provider{
		ID: providerID, ConsultationFee: 2500, Currency: "LKR",
		DefaultStartTime: "09:00", DefaultEndTime: "12:00",
	}, nil))

	days := &racingDays{AvailabilityRepository: store.Availability()}
	svc := NewService(store.Providers(), days, store.Bookings(),
		Config{Location: time.UTC}, logger.Nop(), metrics.New("test"))
	svc.now = func() time.Time { return fixedNow }

	_, err := svc.ReplaceWeek(ctx, providerID, []model.Day{{Date: "2026-03-04", IsAvailable: true, Slots: morning()}})
	require.NoError(t, err)

	days.onRead = func() {
		_, err := svc.ReplaceWeek(ctx, providerID, []model.Day{{Date: "2026-03-04", IsAvailable: false}})
		require.NoError(t, err)
	}
	stale, err := svc.Lookup(ctx, providerID, "2026-03-04")
	require.NoError(t, err)
	require.True(t, stale.IsAvailable)

	fresh, err := svc.Lookup(ctx, providerID, "2026-03-04")
	require.NoError(t, err)
	assert.False(t, fresh.IsAvailable)
	assert.Empty(t, fresh.Slots)
}

func insertBooking(t *testing.T, store *memory.Store, providerID uuid.UUID, date, clock string, status model.BookingStatus) {
	t.Helper()
	err := store.Bookings().WithProviderLock(context.Background(), providerID, func(tx repository.LedgerTx) error {
		return tx.InsertBooking(context.Background(), &model.Booking{
			ID:            uuid.New(),
			ProviderID:    providerID,
			Date:          date,
			Time:          clock,
			Status:        status,
			PaymentStatus: model.PaymentStatusPending,
		})
	})
	require.NoError(t, err)
}

func TestOpenSlotsHidesTakenAndStartedSlots(t *testing.T) {
	svc, store, providerID := setup(t)
	ctx := context.Background()

	_, err := svc.ReplaceWeek(ctx, providerID, []model.Day{
		{Date: "2026-03-02", IsAvailable: true, Slots: morning()},
		{Date: "2026-03-03", IsAvailable: true, Slots: morning()},
	})
	require.NoError(t, err)
	insertBooking(t, store, providerID, "2026-03-02", "11:00", model.BookingStatusConfirmed)
	insertBooking(t, store, providerID, "2026-03-03", "09:00", model.BookingStatusPending)
	insertBooking(t, store, providerID, "2026-03-03", "09:30", model.BookingStatusCancelled)

	today, err := svc.OpenSlots(ctx, providerID, "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, []model.Slot{
		{StartTime: "10:30", EndTime: "11:00"},
		{StartTime: "11:30", EndTime: "12:00"},
	}, today)

	tomorrow, err := svc.OpenSlots(ctx, providerID, "2026-03-03")
	require.NoError(t, err)
	require.Len(t, tomorrow, 5)
	assert.Equal(t, "09:30", tomorrow[0].StartTime)
}

func TestOpenSlotsClosedDay(t *testing.T) {
	svc, _, providerID := setup(t)
	ctx := context.Background()

	_, err := svc.ReplaceWeek(ctx, providerID, []model.Day{{Date: "2026-03-04", IsAvailable: false, Slots: morning()}})
	require.NoError(t, err)

	slots, err := svc.OpenSlots(ctx, providerID, "2026-03-04")
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestBuildWeekUsesWorkingHours(t *testing.T) {
	svc, _, providerID := setup(t)

	week, err := svc.BuildWeek(context.Background(), providerID, "2026-03-01", []string{"2026-03-01", "2026-03-02", "2026-03-04"})
	require.NoError(t, err)
	require.Len(t, week, 7)

	assert.Equal(t, "2026-03-01", week[0].Date)
	assert.Equal(t, "Sunday", week[0].DayName)
	assert.False(t, week[0].IsAvailable, "past dates stay closed")

	assert.True(t, week[1].IsAvailable)
	assert.Len(t, week[1].Slots, 6)
	assert.False(t, week[2].IsAvailable)
	assert.Empty(t, week[2].Slots)
	assert.True(t, week[3].IsAvailable)
	assert.Equal(t, "Sat, Mar 7", week[6].DisplayLabel)
}

func TestBuildWeekUnknownProvider(t *testing.T) {
	svc, _, _ := setup(t)
	_, err := svc.BuildWeek(context.Background(), uuid.New(), "2026-03-02", nil)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
