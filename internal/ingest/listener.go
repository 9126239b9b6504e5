// Package ingest provides a Kafka listener that feeds extracted person
// candidates into the resolver.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/identity-resolution-service/internal/domain"
	"github.com/helixir/identity-resolution-service/internal/observability"
	"github.com/helixir/identity-resolution-service/internal/resolver"
)

// CandidateEvent is the message produced by the extraction pipeline for each
// person mention it pulls out of a document or event.
type CandidateEvent struct {
	ContextID          string                 `json:"context_id"`
	Name               string                 `json:"name"`
	Title              string                 `json:"title,omitempty"`
	Affiliation        string                 `json:"affiliation,omitempty"`
	PrimaryAffiliation string                 `json:"primary_affiliation,omitempty"`
	Bio                string                 `json:"bio,omitempty"`
	Role               string                 `json:"role,omitempty"`
	ExtractedInfo      map[string]interface{} `json:"extracted_info,omitempty"`
}

// Resolver is the subset of the resolver service the listener needs.
type Resolver interface {
	Resolve(ctx context.Context, c domain.Candidate) (*resolver.Resolution, error)
	LinkContext(ctx context.Context, contextID string, personID uuid.UUID, role string, info map[string]interface{}) (*domain.ContextLink, error)
}

// messageReader is the subset of kafka.Reader the listener uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Config holds configuration for the candidate listener.
type Config struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic is the Kafka topic carrying candidate events.
	Topic string
	// GroupID is the consumer group ID.
	GroupID string
}

// Listener consumes candidate events from Kafka and resolves each one.
type Listener struct {
	reader   messageReader
	resolver Resolver
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

// NewListener creates a new candidate event listener.
func NewListener(cfg Config, res Resolver, logger zerolog.Logger, metrics *observability.Metrics) *Listener {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  3 * time.Second,
	})

	return &Listener{
		reader:   reader,
		resolver: res,
		logger:   logger.With().Str("component", "ingest_listener").Logger(),
		metrics:  metrics,
	}
}

// Run starts the listener loop. Blocks until context is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info().Msg("starting candidate listener")

	for {
		msg, err := l.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info().Msg("candidate listener stopped via context cancellation")
				return ctx.Err()
			}
			l.logger.Error().Err(err).Msg("failed to read message from Kafka")
			continue
		}

		l.metrics.CandidatesConsumed.Inc()
		l.logger.Debug().
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("received candidate event")

		var event CandidateEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			l.metrics.CandidatesRejected.Inc()
			l.logger.Error().Err(err).
				Str("raw_value", string(msg.Value)).
				Msg("failed to unmarshal candidate event")
			continue
		}

		if err := l.handleCandidate(ctx, event); err != nil {
			l.logger.Error().Err(err).
				Str("context_id", event.ContextID).
				Str("name", event.Name).
				Msg("failed to handle candidate event")
		}
	}
}

// handleCandidate resolves one candidate and records its context link.
func (l *Listener) handleCandidate(ctx context.Context, event CandidateEvent) error {
	res, err := l.resolver.Resolve(ctx, domain.Candidate{
		Name:               event.Name,
		Title:              event.Title,
		Affiliation:        event.Affiliation,
		PrimaryAffiliation: event.PrimaryAffiliation,
		Bio:                event.Bio,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			// Malformed candidates are dropped, not retried.
			l.metrics.CandidatesRejected.Inc()
			l.logger.Warn().Err(err).
				Str("name", event.Name).
				Msg("dropping invalid candidate")
			return nil
		}
		return err
	}

	if event.ContextID == "" {
		return nil
	}

	_, err = l.resolver.LinkContext(ctx, event.ContextID, res.Person.ID, event.Role, event.ExtractedInfo)
	return err
}

// Close closes the Kafka reader.
func (l *Listener) Close() error {
	l.logger.Info().Msg("closing candidate listener")
	return l.reader.Close()
}
