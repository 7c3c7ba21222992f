package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("CONSULT_SERVER_PORT", "9090")
	t.Setenv("CONSULT_STORAGE_DRIVER", "memory")
	t.Setenv("CONSULT_BROKER_DRIVER", "kafka")
	t.Setenv("CONSULT_KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "Asia/Colombo", cfg.Booking.Timezone)
	assert.Equal(t, "LKR", cfg.Booking.Currency)
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Outbox.PollInterval)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.ToBrokerConfig().Brokers)
}

func TestLoadConfig_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("CONSULT_STORAGE_DRIVER", "sqlite")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestBookingConfig_Location(t *testing.T) {
	loc := BookingConfig{Timezone: "Asia/Colombo"}.Location()
	assert.Equal(t, "Asia/Colombo", loc.String())

	assert.Equal(t, time.UTC, BookingConfig{Timezone: "Nowhere/City"}.Location())
}

func TestOutboxConfig_Converters(t *testing.T) {
	c := OutboxConfig{
		BatchSize:       10,
		PollInterval:    time.Second,
		RetryAttempts:   2,
		RetryDelay:      time.Millisecond,
		MaxDeliveries:   4,
		Retention:       time.Hour,
		CleanupInterval: time.Minute,
	}

	w := c.ToWorkerConfig()
	assert.Equal(t, 10, w.BatchSize)
	assert.Equal(t, 4, w.MaxDeliveries)

	cl := c.ToCleanupConfig()
	assert.Equal(t, time.Hour, cl.Retention)
	assert.Equal(t, time.Minute, cl.Interval)
}
