package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
)

type outboxRepository struct {
	s *Store
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.outbox = append(r.s.outbox, event)
	return nil
}

// ProcessPending claims due events under the lock and hands copies to handle
// with the lock released. Results are written back by id.
func (r *outboxRepository) ProcessPending(ctx context.Context, limit int, handle repository.OutboxHandler) (int, error) {
	batch := r.claim(limit)
	defer r.release(batch)

	processed := 0
	for _, evt := range batch {
		if err := handle(ctx, evt); err != nil {
			r.settle(batch[:processed])
			return processed, err
		}
		processed++
	}
	r.settle(batch)
	return processed, nil
}

func (r *outboxRepository) claim(limit int) []*model.OutboxEvent {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	var batch []*model.OutboxEvent
	for _, evt := range r.s.outbox {
		if len(batch) >= limit {
			break
		}
		if evt.Status != model.OutboxStatusPending || (evt.RetryAt != nil && evt.RetryAt.After(now)) {
			continue
		}
		if _, busy := r.s.claimed[evt.ID]; busy {
			continue
		}
		r.s.claimed[evt.ID] = struct{}{}
		working := *evt
		batch = append(batch, &working)
	}
	return batch
}

func (r *outboxRepository) settle(handled []*model.OutboxEvent) {
	if len(handled) == 0 {
		return
	}
	byID := make(map[uuid.UUID]*model.OutboxEvent, len(handled))
	for _, evt := range handled {
		byID[evt.ID] = evt
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, evt := range r.s.outbox {
		if done, ok := byID[evt.ID]; ok {
			*evt = *done
		}
	}
}

func (r *outboxRepository) release(batch []*model.OutboxEvent) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, evt := range batch {
		delete(r.s.claimed, evt.ID)
	}
}

func (r *outboxRepository) CountPending(ctx context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for _, evt := range r.s.outbox {
		if evt.Status == model.OutboxStatusPending {
			n++
		}
	}
	return n, nil
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	kept := r.s.outbox[:0]
	var removed int64
	for _, evt := range r.s.outbox {
		if evt.Status == model.OutboxStatusProcessed && evt.ProcessedAt != nil && evt.ProcessedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, evt)
	}
	r.s.outbox = kept
	return removed, nil
}
