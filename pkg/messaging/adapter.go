package messaging

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Handler processes one delivered message.
type Handler func(ctx context.Context, msg Message) error

// Dispatcher fans messages from several topics into one handler.
type Dispatcher struct {
	broker Broker
	logger zerolog.Logger
}

func NewDispatcher(broker Broker, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{broker: broker, logger: logger}
}

// Run subscribes to every topic and blocks until ctx is done and all
// subscriptions have drained. Handler errors are logged and the message is
// dropped; delivery is at most once past this point.
func (d *Dispatcher) Run(ctx context.Context, topics []string, handler Handler) error {
	var wg sync.WaitGroup
	for _, topic := range topics {
		msgs, err := d.broker.Subscribe(ctx, topic)
		if err != nil {
			return err
		}

		wg.Add(1)
		go func(topic string, msgs <-chan Message) {
			defer wg.Done()
			for msg := range msgs {
				if err := handler(ctx, msg); err != nil {
					d.logger.Error().
						Err(err).
						Str("topic", topic).
						Str("message_id", msg.ID).
						Msg("failed to handle message")
				}
			}
		}(topic, msgs)
	}

	wg.Wait()
	return ctx.Err()
}
