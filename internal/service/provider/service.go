package provider

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	"github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/logger"
)

// Service mirrors the provider directory: the fee and working hours the
// ledger needs. Changing the fee never touches existing bookings.
type Service struct {
	repo            repository.ProviderRepository
	defaultCurrency string
	logger          *logger.Logger
}

func NewService(repo repository.ProviderRepository, defaultCurrency string, logger *logger.Logger) *Service {
	if defaultCurrency == "" {
		defaultCurrency = model.DefaultCurrency
	}
	return &Service{
		repo:            repo,
		defaultCurrency: defaultCurrency,
		logger:          logger.With("provider"),
	}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Provider, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Upsert(ctx context.Context, id uuid.UUID, req *model.UpsertProviderRequest) (*model.Provider, error) {
	p := &model.Provider{
		ID:               id,
		Name:             strings.TrimSpace(req.Name),
		ConsultationFee:  req.ConsultationFee,
		Currency:         strings.ToUpper(req.Currency),
		DefaultStartTime: req.DefaultStartTime,
		DefaultEndTime:   req.DefaultEndTime,
	}
	if p.Currency == "" {
		p.Currency = s.defaultCurrency
	}
	if p.DefaultStartTime == "" {
		p.DefaultStartTime = model.DefaultStartTime
	}
	if p.DefaultEndTime == "" {
		p.DefaultEndTime = model.DefaultEndTime
	}
	if p.ConsultationFee < 0 {
		return nil, errors.BadRequest("consultation fee cannot be negative", nil)
	}

	start, err := model.ParseClock(p.DefaultStartTime)
	if err != nil {
		return nil, errors.BadRequest("invalid default start time", err)
	}
	end, err := model.ParseClock(p.DefaultEndTime)
	if err != nil {
		return nil, errors.BadRequest("invalid default end time", err)
	}
	if end <= start {
		return nil, errors.BadRequest("working hours must end after they start", nil)
	}

	evt, err := model.NewOutboxEvent(model.EventProviderUpdated, id, p)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if err := s.repo.Upsert(ctx, p, evt); err != nil {
		return nil, err
	}

	s.logger.Info("provider synced", "provider_id", id.String(), "fee", p.ConsultationFee)
	return p, nil
}
