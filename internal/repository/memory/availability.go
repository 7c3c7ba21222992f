package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/pkg/errors"
)

type availabilityRepository struct {
	s *Store
}

func (r *availabilityRepository) GetDay(ctx context.Context, providerID uuid.UUID, date string) (*model.Day, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.getDay(providerID, date)
}

func (s *Store) getDay(providerID uuid.UUID, date string) (*model.Day, error) {
	day, ok := s.days[providerID][date]
	if !ok {
		return nil, errors.NotFound("availability day", nil)
	}
	d := copyDay(day)
	return &d, nil
}

func (r *availabilityRepository) ListDays(ctx context.Context, providerID uuid.UUID, from, to string) ([]model.Day, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := []model.Day{}
	for date, day := range r.s.days[providerID] {
		if (from != "" && date < from) || (to != "" && date > to) {
			continue
		}
		out = append(out, copyDay(day))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (r *availabilityRepository) ReplaceDates(ctx context.Context, providerID uuid.UUID, days []model.Day, evt *model.OutboxEvent) error {
	return r.replace(providerID, days, evt, func(string) bool { return false })
}

func (r *availabilityRepository) ReplaceFrom(ctx context.Context, providerID uuid.UUID, from string, days []model.Day, evt *model.OutboxEvent) error {
	return r.replace(providerID, days, evt, func(date string) bool { return date >= from })
}

// replace builds the new calendar aside and swaps it in, so readers never see
// a half-written week.
func (r *availabilityRepository) replace(providerID uuid.UUID, days []model.Day, evt *model.OutboxEvent, drop func(string) bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.providers[providerID]; !ok {
		return errors.NotFound("provider", nil)
	}

	next := make(map[string]model.Day, len(r.s.days[providerID])+len(days))
	for date, day := range r.s.days[providerID] {
		if !drop(date) {
			next[date] = day
		}
	}
	for _, day := range days {
		day.ProviderID = providerID
		next[day.Date] = copyDay(day)
	}
	r.s.days[providerID] = next
	if evt != nil {
		r.s.outbox = append(r.s.outbox, evt)
	}
	return nil
}
