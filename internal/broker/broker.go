// Package broker opens the message broker selected in configuration.
package broker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/consult-api/config"
	"github.com/jwalitptl/consult-api/pkg/messaging"
	"github.com/jwalitptl/consult-api/pkg/messaging/kafka"
	"github.com/jwalitptl/consult-api/pkg/messaging/redis"
)

// Broker is a messaging.Broker that can report its own health.
type Broker interface {
	messaging.Broker
	Ping(ctx context.Context) error
}

func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Broker, error) {
	switch cfg.Broker.Driver {
	case "redis":
		return redis.NewRedisBroker(ctx, cfg.Redis.ToBrokerConfig(), logger)
	case "kafka":
		return kafka.NewKafkaBroker(cfg.Kafka.ToBrokerConfig(), logger)
	default:
		return nil, fmt.Errorf("unknown broker driver %q", cfg.Broker.Driver)
	}
}
