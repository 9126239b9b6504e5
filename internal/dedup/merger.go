package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/helixir/identity-resolution-service/internal/domain"
	"github.com/helixir/identity-resolution-service/internal/observability"
	"github.com/helixir/identity-resolution-service/internal/repository"
)

// EventPublisher publishes identity events after a merge commits.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// MergerConfig holds the configuration for the merge executor.
type MergerConfig struct {
	// GroupsPerSecond paces batch merges so a sweep never monopolizes the
	// database. Zero or negative disables pacing.
	GroupsPerSecond float64
}

// Merger collapses duplicate groups into single surviving records. Each group
// merges in its own transaction: either the survivor absorbs every loser and
// the losers disappear, or the group is left untouched.
type Merger struct {
	store   repository.Store
	events  EventPublisher
	logger  zerolog.Logger
	metrics *observability.Metrics
	limiter *rate.Limiter
	now     func() time.Time
}

// NewMerger creates a merge executor. The events publisher may be nil.
func NewMerger(store repository.Store, events EventPublisher, cfg MergerConfig, logger zerolog.Logger, metrics *observability.Metrics) *Merger {
	var limiter *rate.Limiter
	if cfg.GroupsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.GroupsPerSecond), 1)
	}
	return &Merger{
		store:   store,
		events:  events,
		logger:  logger.With().Str("component", "dedup_merger").Logger(),
		metrics: metrics,
		limiter: limiter,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// MergeGroup merges one duplicate group identified by member IDs.
//
// The survivor is the member with the highest completeness score, ties broken
// by earliest first_seen. Losers' fields fold into the survivor, their links
// move over (collapsing per-context duplicates), and the loser records are
// deleted, all in one transaction.
//
// With dryRun set, the returned result previews exactly what a real merge
// would do without touching any data.
func (m *Merger) MergeGroup(ctx context.Context, memberIDs []uuid.UUID, dryRun bool) (*domain.MergeResult, error) {
	if len(memberIDs) < 2 {
		return nil, domain.NewValidationError("member_ids", "a merge group needs at least two members")
	}
	if hasDuplicateIDs(memberIDs) {
		return nil, domain.NewValidationError("member_ids", "member IDs must be distinct")
	}

	start := m.now()

	if dryRun {
		return m.previewMerge(ctx, memberIDs)
	}

	// Members load inside the transaction so the folded fields come from the
	// same snapshot the merge writes to.
	var primaryID uuid.UUID
	var loserIDs []uuid.UUID
	var reassigned, collapsed int64
	err := m.store.WithinTx(ctx, func(s repository.Store) error {
		members, txErr := loadMembers(ctx, s, memberIDs)
		if txErr != nil {
			return txErr
		}

		primary, losers := choosePrimary(members)
		primaryID = primary.ID
		loserIDs = make([]uuid.UUID, len(losers))
		loserValues := make([]domain.Person, len(losers))
		for i, l := range losers {
			loserIDs[i] = l.ID
			loserValues[i] = *l
		}

		reassigned, collapsed, txErr = s.Links().ReassignToPrimary(ctx, loserIDs, primary.ID)
		if txErr != nil {
			return txErr
		}

		merged := domain.MergeGroup(*primary, loserValues, m.now())
		if txErr := s.People().Update(ctx, &merged); txErr != nil {
			return txErr
		}

		deleted, txErr := s.People().DeleteByIDs(ctx, loserIDs)
		if txErr != nil {
			return txErr
		}
		if deleted != int64(len(loserIDs)) {
			return fmt.Errorf("expected to delete %d records, deleted %d", len(loserIDs), deleted)
		}
		return nil
	})
	if err != nil {
		m.metrics.MergesFailed.Inc()
		m.logger.Error().Err(err).Msg("merge rolled back")
		return nil, &domain.MergeError{GroupIDs: memberIDs, Cause: err}
	}

	m.metrics.MergesExecuted.Inc()
	m.metrics.RecordsDeleted.Add(float64(len(loserIDs)))
	m.metrics.LinksReassigned.Add(float64(reassigned))
	m.metrics.LinksCollapsed.Add(float64(collapsed))
	m.metrics.MergeDuration.Observe(m.now().Sub(start).Seconds())

	logger := observability.WithMergeContext(m.logger, primaryID, len(memberIDs))
	logger.Info().
		Int("deleted", len(loserIDs)).
		Int64("links_reassigned", reassigned).
		Msg("merge committed")

	result := &domain.MergeResult{
		PrimaryID:       primaryID,
		DeletedIDs:      loserIDs,
		ReassignedLinks: int(reassigned),
	}
	m.publishMerged(ctx, result)

	return result, nil
}

// previewMerge computes a dry-run result without mutating anything.
func (m *Merger) previewMerge(ctx context.Context, memberIDs []uuid.UUID) (*domain.MergeResult, error) {
	members, err := loadMembers(ctx, m.store, memberIDs)
	if err != nil {
		return nil, &domain.MergeError{GroupIDs: memberIDs, Cause: err}
	}

	primary, losers := choosePrimary(members)
	loserIDs := make([]uuid.UUID, len(losers))
	for i, l := range losers {
		loserIDs[i] = l.ID
	}

	reassignable, err := m.store.Links().CountReassignable(ctx, loserIDs, primary.ID)
	if err != nil {
		return nil, &domain.MergeError{GroupIDs: memberIDs, Cause: err}
	}

	logger := observability.WithMergeContext(m.logger, primary.ID, len(members))
	logger.Info().Int64("links", reassignable).Msg("merge dry run")

	return &domain.MergeResult{
		PrimaryID:       primary.ID,
		DeletedIDs:      loserIDs,
		ReassignedLinks: int(reassignable),
		DryRun:          true,
	}, nil
}

// MergeAll merges a batch of groups, pacing between groups and isolating
// failures: a group that fails rolls back alone while the rest of the batch
// proceeds. Cancellation is honored between groups, never inside one, so a
// stopped sweep leaves every group either fully merged or untouched.
func (m *Merger) MergeAll(ctx context.Context, groups []Group, dryRun bool) ([]*domain.MergeResult, error) {
	var results []*domain.MergeResult
	var errs []error

	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if m.limiter != nil && !dryRun {
			if err := m.limiter.Wait(ctx); err != nil {
				errs = append(errs, err)
				break
			}
		}

		result, err := m.MergeGroup(ctx, group.IDs(), dryRun)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results = append(results, result)
	}

	return results, errors.Join(errs...)
}

// loadMembers fetches every group member, failing when any is missing.
func loadMembers(ctx context.Context, store repository.Store, ids []uuid.UUID) ([]*domain.Person, error) {
	members := make([]*domain.Person, 0, len(ids))
	for _, id := range ids {
		person, err := store.People().GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading group member %s: %w", id, err)
		}
		members = append(members, person)
	}
	return members, nil
}

// choosePrimary picks the survivor: highest completeness score, ties broken
// by earliest first_seen, then by ID for full determinism.
func choosePrimary(members []*domain.Person) (*domain.Person, []*domain.Person) {
	primary := members[0]
	primaryScore := domain.CompletenessScore(*primary)

	for _, candidate := range members[1:] {
		score := domain.CompletenessScore(*candidate)
		switch {
		case score > primaryScore:
			primary, primaryScore = candidate, score
		case score == primaryScore && candidate.FirstSeen.Before(primary.FirstSeen):
			primary = candidate
		case score == primaryScore && candidate.FirstSeen.Equal(primary.FirstSeen) &&
			candidate.ID.String() < primary.ID.String():
			primary = candidate
		}
	}

	losers := make([]*domain.Person, 0, len(members)-1)
	for _, member := range members {
		if member.ID != primary.ID {
			losers = append(losers, member)
		}
	}
	return primary, losers
}

func hasDuplicateIDs(ids []uuid.UUID) bool {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return true
		}
		seen[id] = struct{}{}
	}
	return false
}

// publishMerged emits a person.merged event.
func (m *Merger) publishMerged(ctx context.Context, result *domain.MergeResult) {
	if m.events == nil {
		return
	}

	event := domain.NewEvent(domain.EventTypePersonMerged, result.PrimaryID.String(), domain.PersonMergedPayload{
		PrimaryID:       result.PrimaryID,
		DeletedIDs:      result.DeletedIDs,
		ReassignedLinks: result.ReassignedLinks,
	})
	if err := m.events.Publish(ctx, event); err != nil {
		m.logger.Warn().Err(err).Str("event_type", event.EventType).Msg("failed to publish event")
	}
}
