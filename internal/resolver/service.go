// Package resolver implements incremental identity resolution: each incoming
// candidate either matches an existing person record, which absorbs the new
// information, or becomes a new record.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/identity-resolution-service/internal/domain"
	"github.com/helixir/identity-resolution-service/internal/match"
	"github.com/helixir/identity-resolution-service/internal/observability"
	"github.com/helixir/identity-resolution-service/internal/repository"
)

// EventPublisher publishes identity events after state changes commit.
// Publishing is best-effort; resolution never fails because of it.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// Resolution is the outcome of resolving one candidate.
type Resolution struct {
	// Person is the matched or newly created record.
	Person *domain.Person

	// Created reports whether a new record was created rather than matched.
	Created bool
}

// Service resolves incoming candidates against the known person population.
type Service struct {
	store   repository.Store
	events  EventPublisher
	logger  zerolog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewService creates a resolver service. The events publisher may be nil, in
// which case no events are emitted.
func NewService(store repository.Store, events EventPublisher, logger zerolog.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		store:   store,
		events:  events,
		logger:  logger.With().Str("component", "resolver").Logger(),
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Resolve matches a candidate against existing records or creates a new one.
//
// The method:
//  1. Rejects candidates whose name is empty after honorific stripping.
//  2. Defaults an absent primary affiliation from the free-text affiliation,
//     so the identity key can tell same-name people apart.
//  3. Loads all records sharing the candidate's normalized name key, ordered
//     by first_seen, walks them in order and takes the first whose affiliation
//     overlaps the candidate's; the matched record absorbs the candidate's
//     fields. Match and absorb run in one transaction.
//  4. Creates a new record when nothing matched.
//  5. Recovers from a concurrent create of the same record by re-running the
//     candidate lookup and matching again.
func (s *Service) Resolve(ctx context.Context, c domain.Candidate) (*Resolution, error) {
	start := s.now()

	if strings.TrimSpace(c.Name) == "" {
		s.metrics.Resolutions.WithLabelValues(observability.ResolutionOutcomeRejected).Inc()
		return nil, domain.NewValidationError("name", "name is required")
	}
	key := match.NameKey(c.Name)
	if key == "" {
		s.metrics.Resolutions.WithLabelValues(observability.ResolutionOutcomeRejected).Inc()
		return nil, domain.NewValidationError("name", "name contains only honorifics")
	}

	if c.PrimaryAffiliation == "" {
		c.PrimaryAffiliation = c.Affiliation
	}

	var matched *domain.Person
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		var txErr error
		matched, txErr = s.matchAndAbsorb(ctx, tx, key, c)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	if matched != nil {
		s.metrics.Resolutions.WithLabelValues(observability.ResolutionOutcomeMatched).Inc()
		s.metrics.ResolveDuration.Observe(s.now().Sub(start).Seconds())
		logger := observability.WithPersonContext(s.logger, matched.ID, matched.Name)
		logger.Debug().Msg("candidate matched existing person")
		s.publishResolved(ctx, matched, false)

		return &Resolution{Person: matched, Created: false}, nil
	}

	created, err := s.createPerson(ctx, key, c)
	if err != nil {
		return nil, err
	}

	s.metrics.ResolveDuration.Observe(s.now().Sub(start).Seconds())
	logger := observability.WithPersonContext(s.logger, created.Person.ID, created.Person.Name)
	logger.Debug().Bool("created", created.Created).Msg("candidate resolved")
	s.publishResolved(ctx, created.Person, created.Created)

	return created, nil
}

// matchAndAbsorb loads same-name-key records, takes the first whose
// affiliation overlaps the candidate's, and folds the candidate into it.
// Returns nil when no record matches.
func (s *Service) matchAndAbsorb(ctx context.Context, store repository.Store, key string, c domain.Candidate) (*domain.Person, error) {
	candidates, err := store.People().FindByNameKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("finding candidates for %q: %w", key, err)
	}
	s.metrics.ResolveCandidatesScanned.Observe(float64(len(candidates)))

	for _, existing := range candidates {
		if match.AffiliationsOverlap(existing.EffectiveAffiliation(), c.EffectiveAffiliation()) {
			return s.absorb(ctx, store, existing, c)
		}
	}
	return nil, nil
}

// absorbIdentityTwin folds the candidate into the record carrying its exact
// identity key, case-insensitive name plus primary affiliation. After a lost
// create race the winner always carries that key even when its free-text
// affiliation does not overlap the candidate's.
func (s *Service) absorbIdentityTwin(ctx context.Context, store repository.Store, key string, c domain.Candidate) (*domain.Person, error) {
	candidates, err := store.People().FindByNameKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("finding candidates for %q: %w", key, err)
	}

	name := strings.TrimSpace(c.Name)
	for _, existing := range candidates {
		if strings.EqualFold(existing.Name, name) &&
			strings.EqualFold(existing.PrimaryAffiliation, c.PrimaryAffiliation) {
			return s.absorb(ctx, store, existing, c)
		}
	}
	return nil, nil
}

func (s *Service) absorb(ctx context.Context, store repository.Store, existing *domain.Person, c domain.Candidate) (*domain.Person, error) {
	updated := domain.MergeOnResolve(*existing, c, s.now())
	if err := store.People().Update(ctx, &updated); err != nil {
		return nil, fmt.Errorf("updating matched person %s: %w", existing.ID, err)
	}
	return &updated, nil
}

// createPerson inserts a new record for the candidate. When a concurrent
// resolve created the same record first, the unique constraint fires and the
// candidate is re-matched against the fresh population instead. The re-match
// runs in its own transaction; the aborted insert cannot share one.
func (s *Service) createPerson(ctx context.Context, key string, c domain.Candidate) (*Resolution, error) {
	person := &domain.Person{
		Name:               strings.TrimSpace(c.Name),
		Title:              c.Title,
		Affiliation:        c.Affiliation,
		PrimaryAffiliation: c.PrimaryAffiliation,
		Bio:                c.Bio,
	}

	created, err := s.store.People().Create(ctx, person)
	if err == nil {
		s.metrics.Resolutions.WithLabelValues(observability.ResolutionOutcomeCreated).Inc()
		return &Resolution{Person: created, Created: true}, nil
	}
	if !errors.Is(err, domain.ErrAlreadyExists) {
		return nil, fmt.Errorf("creating person %q: %w", person.Name, err)
	}

	// Lost the race to a concurrent create. The winner is visible now:
	// either its affiliation overlaps the candidate's, or it holds the
	// candidate's identity key outright.
	var recovered *domain.Person
	txErr := s.store.WithinTx(ctx, func(tx repository.Store) error {
		var innerErr error
		recovered, innerErr = s.matchAndAbsorb(ctx, tx, key, c)
		if innerErr != nil || recovered != nil {
			return innerErr
		}
		recovered, innerErr = s.absorbIdentityTwin(ctx, tx, key, c)
		return innerErr
	})
	if txErr != nil {
		return nil, txErr
	}

	if recovered == nil {
		// The winner was deleted between the failed insert and the re-query.
		// The key is free again, so insert once more.
		retried, err := s.store.People().Create(ctx, person)
		if err != nil {
			return nil, fmt.Errorf("creating person %q after lost race: %w", person.Name, err)
		}
		s.metrics.Resolutions.WithLabelValues(observability.ResolutionOutcomeCreated).Inc()
		return &Resolution{Person: retried, Created: true}, nil
	}

	s.metrics.Resolutions.WithLabelValues(observability.ResolutionOutcomeRecovered).Inc()
	logger := observability.WithPersonContext(s.logger, recovered.ID, recovered.Name)
	logger.Info().Msg("recovered from concurrent create")

	return &Resolution{Person: recovered, Created: false}, nil
}

// LinkContext records that a person appeared in an external context. The link
// is idempotent per (context, person) pair; repeated calls refresh the role
// and extracted payload.
func (s *Service) LinkContext(ctx context.Context, contextID string, personID uuid.UUID, role string, info map[string]interface{}) (*domain.ContextLink, error) {
	if strings.TrimSpace(contextID) == "" {
		return nil, domain.NewValidationError("context_id", "context ID is required")
	}
	if personID == uuid.Nil {
		return nil, domain.NewValidationError("person_id", "person ID is required")
	}

	link, err := s.store.Links().Upsert(ctx, &domain.ContextLink{
		ContextID:     contextID,
		PersonID:      personID,
		Role:          role,
		ExtractedInfo: info,
	})
	if err != nil {
		return nil, fmt.Errorf("linking person %s to context %s: %w", personID, contextID, err)
	}

	s.metrics.LinksUpserted.Inc()
	logger := observability.WithLinkContext(s.logger, contextID, personID)
	logger.Debug().Str("role", role).Msg("context link upserted")

	if s.events != nil {
		event := domain.NewEvent(domain.EventTypePersonLinked, personID.String(), domain.PersonLinkedPayload{
			PersonID:  personID,
			ContextID: contextID,
			Role:      role,
		})
		if err := s.events.Publish(ctx, event); err != nil {
			s.logger.Warn().Err(err).Str("event_type", event.EventType).Msg("failed to publish event")
		}
	}

	return link, nil
}

// GetPerson retrieves a person record with its context links.
func (s *Service) GetPerson(ctx context.Context, id uuid.UUID) (*domain.Person, []*domain.ContextLink, error) {
	person, err := s.store.People().GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	links, err := s.store.Links().ListByPerson(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("listing links for person %s: %w", id, err)
	}

	return person, links, nil
}

// publishResolved emits a person.created or person.matched event.
func (s *Service) publishResolved(ctx context.Context, person *domain.Person, created bool) {
	if s.events == nil {
		return
	}

	eventType := domain.EventTypePersonMatched
	if created {
		eventType = domain.EventTypePersonCreated
	}
	event := domain.NewEvent(eventType, person.ID.String(), domain.PersonResolvedPayload{
		PersonID: person.ID,
		Name:     person.Name,
		Created:  created,
	})
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to publish event")
	}
}
