package provider

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository/memory"
	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/logger"
)

func TestUpsertAppliesDefaults(t *testing.T) {
	svc := NewService(memory.NewStore().Providers(), "LKR", logger.Nop())
	id := uuid.New()

	p, err := svc.Upsert(context.Background(), id, &model.UpsertProviderRequest{Name: " Dr. Perera ", ConsultationFee: 2500})
	require.NoError(t, err)
	assert.Equal(t, "Dr. Perera", p.Name)
	assert.Equal(t, "LKR", p.Currency)
	assert.Equal(t, model.DefaultStartTime, p.DefaultStartTime)
	assert.Equal(t, model.DefaultEndTime, p.DefaultEndTime)

	got, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), got.ConsultationFee)
}

func TestUpsertRejectsInvertedHours(t *testing.T) {
	svc := NewService(memory.NewStore().Providers(), "", logger.Nop())
	_, err := svc.Upsert(context.Background(), uuid.New(), &model.UpsertProviderRequest{
		Name:             "Dr. Silva",
		DefaultStartTime: "17:00",
		DefaultEndTime:   "09:00",
	})
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestGetUnknownProvider(t *testing.T) {
	svc := NewService(memory.NewStore().Providers(), "", logger.Nop())
	_, err := svc.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
