// Package kafka publishes production domain events to the event stream.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/panelworks/production-engine/internal/domain"
	"github.com/panelworks/production-engine/pkg/metrics"
)

// EventPublisher implements domain.EventPublisher on a Kafka topic.
// Publishing is best effort: a broker outage logs and counts the failure
// but never rolls back the state change that produced the event.
type EventPublisher struct {
	writer  *kafka.Writer
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewEventPublisher creates a publisher for the given brokers and topic
func NewEventPublisher(brokers []string, topic string, m *metrics.Metrics, logger *slog.Logger) *EventPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &EventPublisher{
		writer:  writer,
		metrics: m,
		logger:  logger.With("component", "event_publisher"),
	}
}

// PublishAll publishes the events in order. Per-event failures are
// aggregated; callers treat the error as advisory.
func (p *EventPublisher) PublishAll(ctx context.Context, events []domain.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			p.record(event.EventType(), "marshal_error")
			p.logger.Error("failed to marshal domain event",
				"eventType", event.EventType(), "error", err)
			continue
		}

		messages = append(messages, kafka.Message{
			Key:   []byte(event.Subject()),
			Value: data,
			Headers: []kafka.Header{
				{Key: "event-id", Value: []byte(uuid.NewString())},
				{Key: "event-type", Value: []byte(event.EventType())},
				{Key: "occurred-at", Value: []byte(event.OccurredAt().Format(time.RFC3339))},
				{Key: "content-type", Value: []byte("application/json")},
			},
			Time: event.OccurredAt(),
		})
	}

	if len(messages) == 0 {
		return nil
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		for _, event := range events {
			p.record(event.EventType(), "error")
		}
		p.logger.Error("failed to publish domain events",
			"count", len(messages), "error", err)
		return fmt.Errorf("failed to publish events: %w", err)
	}

	for _, event := range events {
		p.record(event.EventType(), "success")
	}
	return nil
}

// Close closes the underlying writer
func (p *EventPublisher) Close() error {
	return p.writer.Close()
}

func (p *EventPublisher) record(eventType, outcome string) {
	if p.metrics != nil {
		p.metrics.EventsPublished.WithLabelValues(eventType, outcome).Inc()
	}
}
