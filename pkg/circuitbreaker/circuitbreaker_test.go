package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker(Settings{Name: "test", MaxFailures: 2, Timeout: time.Minute})
	boom := errors.New("boom")

	assert.Equal(t, boom, cb.Execute(func() error { return boom }))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, boom, cb.Execute(func() error { return boom }))
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestCircuitBreakerHalfOpenRecovers(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(Settings{Name: "test", MaxFailures: 1, Timeout: time.Second})
	cb.now = func() time.Time { return now }

	_ = cb.Execute(func() error { return errors.New("boom") })
	assert.Equal(t, StateOpen, cb.State())

	now = now.Add(2 * time.Second)
	assert.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(Settings{Name: "test", MaxFailures: 3, Timeout: time.Second})
	cb.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errors.New("boom") })
	}
	now = now.Add(2 * time.Second)
	_ = cb.Execute(func() error { return errors.New("still down") })
	assert.Equal(t, StateOpen, cb.State())
}
