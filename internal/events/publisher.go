// Package events publishes identity events to Kafka so downstream services
// can react to resolution and merge outcomes.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/identity-resolution-service/internal/domain"
	"github.com/helixir/identity-resolution-service/internal/observability"
)

// Config holds configuration for the event publisher.
type Config struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic is the Kafka topic identity events are published to.
	Topic string
	// BatchTimeout is the maximum time the writer waits for a batch to fill.
	BatchTimeout time.Duration
}

// kafkaWriter is the subset of kafka.Writer the publisher uses.
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes identity events to Kafka. Messages are keyed by aggregate
// ID so every event for one person lands on the same partition in order.
type Publisher struct {
	writer  kafkaWriter
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewPublisher creates a Kafka-backed event publisher.
func NewPublisher(cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Publisher {
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: batchTimeout,
		RequiredAcks: kafka.RequireAll,
	}

	return &Publisher{
		writer:  writer,
		logger:  logger.With().Str("component", "event_publisher").Logger(),
		metrics: metrics,
	}
}

// Publish serializes and writes one identity event.
func (p *Publisher) Publish(ctx context.Context, event domain.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.EventType, err)
	}

	msg := kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.EventID.String())},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write event %s: %w", event.EventType, err)
	}

	p.metrics.EventsPublished.WithLabelValues(event.EventType).Inc()
	p.logger.Debug().
		Str("event_type", event.EventType).
		Str("aggregate_id", event.AggregateID).
		Msg("event published")

	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	p.logger.Info().Msg("closing event publisher")
	return p.writer.Close()
}
