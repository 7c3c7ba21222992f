package memory

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/pkg/errors"
)

func pendingEvent(t *testing.T, s *Store) *model.OutboxEvent {
	t.Helper()
	evt, err := model.NewOutboxEvent(model.EventBookingCreated, uuid.New(), map[string]string{"k": "v"})
	require.NoError(t, err)
	require.NoError(t, s.Outbox().Create(context.Background(), evt))
	return evt
}

func TestProcessPendingDoesNotBlockLedger(t *testing.T) {
	s := NewStore()
	evt := pendingEvent(t, s)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan int, 1)
	go func() {
		n, _ := s.Outbox().ProcessPending(ctx, 10, func(ctx context.Context, e *model.OutboxEvent) error {
			close(started)
			<-release
			e.MarkProcessed(time.Now().UTC())
			return nil
		})
		done <- n
	}()
	<-started

	read := make(chan error, 1)
	go func() {
		_, err := s.Bookings().Get(ctx, uuid.New())
		read <- err
	}()

	select {
	case err := <-read:
		assert.ErrorIs(t, err, errors.ErrNotFound)
	case <-time.After(time.Second):
		t.Fatal("ledger read blocked while an outbox event was being handled")
	}

	// A second poll must not pick up the event already in flight.
	n, err := s.Outbox().ProcessPending(ctx, 10, func(ctx context.Context, e *model.OutboxEvent) error {
		t.Errorf("event %s claimed twice", e.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, n)

	close(release)
	assert.Equal(t, 1, <-done)

	events := s.Events()
	require.Len(t, events, 1)
	assert.Equal(t, evt.ID, events[0].ID)
	assert.Equal(t, model.OutboxStatusProcessed, events[0].Status)
	assert.NotNil(t, events[0].ProcessedAt)
}

func TestProcessPendingHandlerErrorReleasesRest(t *testing.T) {
	s := NewStore()
	first := pendingEvent(t, s)
	pendingEvent(t, s)
	ctx := context.Background()

	calls := 0
	n, err := s.Outbox().ProcessPending(ctx, 10, func(ctx context.Context, e *model.OutboxEvent) error {
		calls++
		if calls == 2 {
			return stderrors.New("boom")
		}
		e.MarkProcessed(time.Now().UTC())
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 1, n)

	pending, err := s.Outbox().CountPending(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)

	for _, e := range s.Events() {
		if e.ID == first.ID {
			assert.Equal(t, model.OutboxStatusProcessed, e.Status)
		}
	}

	// The unsettled event is claimable again.
	n, err = s.Outbox().ProcessPending(ctx, 10, func(ctx context.Context, e *model.OutboxEvent) error {
		e.MarkProcessed(time.Now().UTC())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDeleteProcessedBefore(t *testing.T) {
	s := NewStore()
	pendingEvent(t, s)
	ctx := context.Background()

	_, err := s.Outbox().ProcessPending(ctx, 10, func(ctx context.Context, e *model.OutboxEvent) error {
		e.MarkProcessed(time.Now().UTC().Add(-time.Hour))
		return nil
	})
	require.NoError(t, err)

	removed, err := s.Outbox().DeleteProcessedBefore(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)
	assert.Empty(t, s.Events())
}
