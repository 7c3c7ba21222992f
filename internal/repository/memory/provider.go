package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/pkg/errors"
)

type providerRepository struct {
	s *Store
}

func (r *providerRepository) Get(ctx context.Context, id uuid.UUID) (*model.Provider, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.providers[id]
	if !ok {
		return nil, errors.NotFound("provider", nil)
	}
	cp := *p
	return &cp, nil
}

func (r *providerRepository) Upsert(ctx context.Context, provider *model.Provider, evt *model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	if existing, ok := r.s.providers[provider.ID]; ok {
		provider.CreatedAt = existing.CreatedAt
	} else {
		provider.CreatedAt = now
	}
	provider.UpdatedAt = now

	cp := *provider
	r.s.providers[provider.ID] = &cp
	if evt != nil {
		r.s.outbox = append(r.s.outbox, evt)
	}
	return nil
}
