// Package kafka publishes notification events for downstream consumers.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/storm-alert-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Publisher produces notification events to a Kafka topic.
// It implements pipeline.EventPublisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the given brokers and topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
		ErrorLogger:            writerErrorLogger(logger, topic),
	}
	return &Publisher{writer: w, logger: logger}
}

// writerErrorLogger routes the writer's internal errors, such as metadata
// and retry failures that never reach Publish, into slog.
func writerErrorLogger(logger *slog.Logger, topic string) kafkago.Logger {
	return kafkago.LoggerFunc(func(msg string, args ...any) {
		logger.Error("kafka writer error", "topic", topic, "detail", fmt.Sprintf(msg, args...))
	})
}

// Publish writes one event keyed by alert ID, so every event for an alert
// lands on the same partition.
func (p *Publisher) Publish(ctx context.Context, event domain.NotificationEvent) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish notification event %s: %w", event.AlertID, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func serializeToMessage(event domain.NotificationEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize notification event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.AlertID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event", Value: []byte(event.Event)},
			{Key: "status_code", Value: []byte(strconv.Itoa(event.StatusCode))},
			{Key: "notified_at", Value: []byte(event.NotifiedAt.Format(time.RFC3339))},
		},
	}, nil
}
