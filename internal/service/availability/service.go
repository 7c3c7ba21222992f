package availability

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	"github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/logger"
	"github.com/jwalitptl/consult-api/pkg/metrics"
)

type Config struct {
	Location *time.Location
	CacheTTL time.Duration
}

// Service owns provider calendars: wholesale replacement, lookups and the
// open-slot view offered to requesters.
type Service struct {
	providers repository.ProviderRepository
	days      repository.AvailabilityRepository
	bookings  repository.BookingRepository
	cache     *cache.Cache
	loc       *time.Location
	now       func() time.Time
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewService(
	providers repository.ProviderRepository,
	days repository.AvailabilityRepository,
	bookings repository.BookingRepository,
	cfg Config,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Minute
	}
	return &Service{
		providers: providers,
		days:      days,
		bookings:  bookings,
		cache:     cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		loc:       cfg.Location,
		now:       time.Now,
		logger:    logger.With("availability"),
		metrics:   metrics,
	}
}

type replacedPayload struct {
	ProviderID uuid.UUID `json:"provider_id"`
	Scope      string    `json:"scope"`
	Dates      []string  `json:"dates"`
}

// ReplaceWeek overwrites the records for exactly the submitted dates.
func (s *Service) ReplaceWeek(ctx context.Context, providerID uuid.UUID, days []model.Day) ([]model.Day, error) {
	if len(days) == 0 {
		return nil, errors.BadRequest("at least one day is required", nil)
	}
	prepared, err := s.prepare(days)
	if err != nil {
		return nil, err
	}

	evt, err := model.NewOutboxEvent(model.EventAvailabilityReplaced, providerID, replacedPayload{
		ProviderID: providerID,
		Scope:      "week",
		Dates:      datesOf(prepared),
	})
	if err != nil {
		return nil, errors.Internal(err)
	}

	if err := s.days.ReplaceDates(ctx, providerID, prepared, evt); err != nil {
		return nil, err
	}
	s.invalidate(providerID)
	s.metrics.CalendarReplaces.WithLabelValues("week").Inc()
	s.logger.Info("availability week replaced", "provider_id", providerID.String(), "days", len(prepared))
	return prepared, nil
}

// ReplaceAll swaps the whole editable calendar. Days before today are history
// and stay as they are.
func (s *Service) ReplaceAll(ctx context.Context, providerID uuid.UUID, days []model.Day) ([]model.Day, error) {
	prepared, err := s.prepare(days)
	if err != nil {
		return nil, err
	}

	evt, err := model.NewOutboxEvent(model.EventAvailabilityReplaced, providerID, replacedPayload{
		ProviderID: providerID,
		Scope:      "all",
		Dates:      datesOf(prepared),
	})
	if err != nil {
		return nil, errors.Internal(err)
	}

	if err := s.days.ReplaceFrom(ctx, providerID, s.today().Format(model.DateLayout), prepared, evt); err != nil {
		return nil, err
	}
	s.invalidate(providerID)
	s.metrics.CalendarReplaces.WithLabelValues("all").Inc()
	s.logger.Info("availability replaced", "provider_id", providerID.String(), "days", len(prepared))
	return prepared, nil
}

// Lookup returns the stored Day for date, or NotFound.
func (s *Service) Lookup(ctx context.Context, providerID uuid.UUID, date string) (*model.Day, error) {
	if _, err := model.ParseDate(date, s.loc); err != nil {
		return nil, errors.BadRequest("invalid date", err)
	}

	// Entries are keyed by the provider's generation, so a read that races a
	// replace is stored under a key no later lookup will use.
	key := cacheKey(providerID, s.generation(providerID), date)
	if cached, ok := s.cache.Get(key); ok {
		s.metrics.CalendarCacheHits.WithLabelValues("hit").Inc()
		day := cached.(model.Day)
		day.Slots = append([]model.Slot(nil), day.Slots...)
		return &day, nil
	}
	s.metrics.CalendarCacheHits.WithLabelValues("miss").Inc()

	day, err := s.days.GetDay(ctx, providerID, date)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, *day)
	return day, nil
}

// ListDays returns the stored days between from and to inclusive. Empty bounds are open.
func (s *Service) ListDays(ctx context.Context, providerID uuid.UUID, from, to string) ([]model.Day, error) {
	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if _, err := model.ParseDate(d, s.loc); err != nil {
			return nil, errors.BadRequest("invalid date", err)
		}
	}
	if _, err := s.providers.Get(ctx, providerID); err != nil {
		return nil, err
	}
	return s.days.ListDays(ctx, providerID, from, to)
}

// OpenSlots lists the slots a requester can still pick on date: the day's
// slots minus those held by active bookings and, for today, minus those
// that have already started.
func (s *Service) OpenSlots(ctx context.Context, providerID uuid.UUID, date string) ([]model.Slot, error) {
	day, err := s.Lookup(ctx, providerID, date)
	if err != nil {
		return nil, err
	}

	open := []model.Slot{}
	today := s.today().Format(model.DateLayout)
	if !day.IsAvailable || date < today {
		return open, nil
	}

	active, err := s.bookings.ListActiveByProviderAndDate(ctx, providerID, date)
	if err != nil {
		return nil, err
	}
	taken := make(map[string]bool, len(active))
	for _, b := range active {
		taken[b.Time] = true
	}

	nowClock := s.now().In(s.loc).Format(model.ClockLayout)
	for _, slot := range day.Slots {
		if taken[slot.StartTime] {
			continue
		}
		if date == today && slot.StartTime <= nowClock {
			continue
		}
		open = append(open, slot)
	}
	return open, nil
}

// BuildWeek drafts seven days from weekStart using the provider's default
// working hours. Dates in openDates that fall inside the editable window are
// open; every other day is closed. Nothing is stored.
func (s *Service) BuildWeek(ctx context.Context, providerID uuid.UUID, weekStart string, openDates []string) ([]model.Day, error) {
	start, err := model.ParseDate(weekStart, s.loc)
	if err != nil {
		return nil, errors.BadRequest("invalid week start", err)
	}
	provider, err := s.providers.Get(ctx, providerID)
	if err != nil {
		return nil, err
	}
	slots, err := GenerateSlots(provider.DefaultStartTime, provider.DefaultEndTime)
	if err != nil {
		return nil, err
	}

	open := make(map[string]bool, len(openDates))
	for _, d := range openDates {
		open[d] = true
	}

	week := make([]model.Day, 0, 7)
	for i := 0; i < 7; i++ {
		t := start.AddDate(0, 0, i)
		date := t.Format(model.DateLayout)
		day := model.Day{
			Date:         date,
			DisplayLabel: t.Format(model.DisplayLayout),
			DayName:      t.Weekday().String(),
			Slots:        []model.Slot{},
		}
		if open[date] && s.inWindow(t) && len(slots) > 0 {
			day.IsAvailable = true
			day.Slots = append([]model.Slot(nil), slots...)
		}
		week = append(week, day)
	}
	return week, nil
}

// prepare validates and normalises a submission before it is stored.
func (s *Service) prepare(days []model.Day) ([]model.Day, error) {
	seen := make(map[string]bool, len(days))
	out := make([]model.Day, 0, len(days))
	for _, day := range days {
		t, err := model.ParseDate(day.Date, s.loc)
		if err != nil {
			return nil, errors.BadRequest("invalid date", err)
		}
		if seen[day.Date] {
			return nil, errors.BadRequest(fmt.Sprintf("date %s submitted twice", day.Date), nil)
		}
		seen[day.Date] = true

		if !s.inWindow(t) {
			return nil, errors.BadRequest(fmt.Sprintf("date %s is outside the editable window", day.Date), nil)
		}
		if err := validateSlots(day.Slots); err != nil {
			return nil, errors.BadRequest(fmt.Sprintf("invalid slots on %s", day.Date), err)
		}

		if day.Slots == nil {
			day.Slots = []model.Slot{}
		}
		if day.IsAvailable && len(day.Slots) == 0 {
			day.IsAvailable = false
		}
		if day.DisplayLabel == "" {
			day.DisplayLabel = t.Format(model.DisplayLayout)
		}
		if day.DayName == "" {
			day.DayName = t.Weekday().String()
		}
		out = append(out, day)
	}
	return out, nil
}

func validateSlots(slots []model.Slot) error {
	prevEnd := -1
	for _, slot := range slots {
		start, err := model.ParseClock(slot.StartTime)
		if err != nil {
			return err
		}
		end, err := model.ParseClock(slot.EndTime)
		if err != nil {
			return err
		}
		if end <= start {
			return fmt.Errorf("slot %s-%s ends before it starts", slot.StartTime, slot.EndTime)
		}
		if start < prevEnd {
			return fmt.Errorf("slot %s-%s overlaps or is out of order", slot.StartTime, slot.EndTime)
		}
		prevEnd = end
	}
	return nil
}

// inWindow reports whether t lies between today and the end of the current year.
func (s *Service) inWindow(t time.Time) bool {
	today := s.today()
	return !t.Before(today) && t.Year() == today.Year()
}

func (s *Service) today() time.Time {
	now := s.now().In(s.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
}

func (s *Service) invalidate(providerID uuid.UUID) {
	key := generationKey(providerID)
	// Add fails when the counter already exists; the increment below covers both cases.
	_ = s.cache.Add(key, uint64(0), cache.NoExpiration)
	if _, err := s.cache.IncrementUint64(key, 1); err != nil {
		s.logger.Error(err, "Failed to invalidate calendar cache", "provider_id", providerID.String())
	}
}

func (s *Service) generation(providerID uuid.UUID) uint64 {
	if v, ok := s.cache.Get(generationKey(providerID)); ok {
		return v.(uint64)
	}
	return 0
}

func generationKey(providerID uuid.UUID) string {
	return "gen|" + providerID.String()
}

func cacheKey(providerID uuid.UUID, generation uint64, date string) string {
	return providerID.String() + "|" + strconv.FormatUint(generation, 10) + "|" + date
}

func datesOf(days []model.Day) []string {
	dates := make([]string, 0, len(days))
	for _, d := range days {
		dates = append(dates, d.Date)
	}
	return dates
}
