// Package memory keeps the ledger in process. It backs the test suites and
// the single-node `storage.driver: memory` mode.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
)

// Store serialises every write behind one mutex, which is also the
// per-provider ledger lock.
type Store struct {
	mu        sync.Mutex
	providers map[uuid.UUID]*model.Provider
	days      map[uuid.UUID]map[string]model.Day
	bookings  map[uuid.UUID]*model.Booking
	outbox    []*model.OutboxEvent
	claimed   map[uuid.UUID]struct{} // outbox events handled outside the lock
	now       func() time.Time
}

func NewStore() *Store {
	return &Store{
		providers: make(map[uuid.UUID]*model.Provider),
		days:      make(map[uuid.UUID]map[string]model.Day),
		bookings:  make(map[uuid.UUID]*model.Booking),
		claimed:   make(map[uuid.UUID]struct{}),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Providers() repository.ProviderRepository {
	return &providerRepository{s}
}

func (s *Store) Availability() repository.AvailabilityRepository {
	return &availabilityRepository{s}
}

func (s *Store) Bookings() repository.BookingRepository {
	return &bookingRepository{s}
}

func (s *Store) Outbox() repository.OutboxRepository {
	return &outboxRepository{s}
}

// Events returns a copy of every outbox event recorded so far.
func (s *Store) Events() []model.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.OutboxEvent, 0, len(s.outbox))
	for _, e := range s.outbox {
		out = append(out, *e)
	}
	return out
}

func copyDay(d model.Day) model.Day {
	d.Slots = append([]model.Slot(nil), d.Slots...)
	return d
}

func sortBookings(list []*model.Booking) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Date != list[j].Date {
			return list[i].Date < list[j].Date
		}
		return list[i].Time < list[j].Time
	})
}
