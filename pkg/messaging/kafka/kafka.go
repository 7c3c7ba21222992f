package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/jwalitptl/consult-api/pkg/messaging"
)

type Config struct {
	Brokers []string
	GroupID string
}

// KafkaBroker writes every topic through one writer and opens a reader per subscription.
type KafkaBroker struct {
	cfg    Config
	writer *kafka.Writer
	logger zerolog.Logger
}

func NewKafkaBroker(cfg Config, logger zerolog.Logger) (*KafkaBroker, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers not configured")
	}
	return &KafkaBroker{
		cfg: cfg,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
			RequiredAcks:           kafka.RequireAll,
		},
		logger: logger.With().Str("component", "kafka-broker").Logger(),
	}, nil
}

func (b *KafkaBroker) Publish(ctx context.Context, topic string, msg messaging.Message) error {
	return b.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(msg.Key),
		Value: msg.Payload,
		Time:  msg.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(msg.ID)},
			{Key: "event_type", Value: []byte(msg.Type)},
		},
	})
}

func (b *KafkaBroker) Subscribe(ctx context.Context, topic string) (<-chan messaging.Message, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  b.cfg.Brokers,
		GroupID:  b.cfg.GroupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	msgChan := make(chan messaging.Message, 100)

	go func() {
		defer func() {
			reader.Close()
			close(msgChan)
		}()

		for {
			raw, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				b.logger.Error().Err(err).Str("topic", topic).Msg("kafka read error")
				time.Sleep(time.Second)
				continue
			}

			select {
			case msgChan <- fromKafka(raw):
			case <-ctx.Done():
				return
			}
		}
	}()

	return msgChan, nil
}

// Ping dials the first broker, which is enough for a readiness probe.
func (b *KafkaBroker) Ping(ctx context.Context) error {
	dialer := kafka.Dialer{Timeout: 2 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", b.cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("failed to reach kafka: %w", err)
	}
	return conn.Close()
}

func (b *KafkaBroker) Close() error {
	return b.writer.Close()
}

func fromKafka(raw kafka.Message) messaging.Message {
	msg := messaging.Message{
		ID:         HeaderValue(raw.Headers, "event_id"),
		Type:       HeaderValue(raw.Headers, "event_type"),
		Key:        string(raw.Key),
		OccurredAt: raw.Time,
		Payload:    json.RawMessage(raw.Value),
	}
	if msg.ID == "" {
		msg.ID = string(raw.Key)
	}
	if msg.Type == "" {
		msg.Type = raw.Topic
	}
	return msg
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
