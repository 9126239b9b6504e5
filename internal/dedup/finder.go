// Package dedup implements batch duplicate detection and group merging over
// the resolved person population.
package dedup

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/identity-resolution-service/internal/domain"
	"github.com/helixir/identity-resolution-service/internal/match"
	"github.com/helixir/identity-resolution-service/internal/observability"
	"github.com/helixir/identity-resolution-service/internal/repository"
)

// Group is a set of person records sharing one normalized name key. A group
// is only reported when it has at least two members; singletons are not
// duplicates.
type Group struct {
	// Key is the normalized, lowercased name shared by all members.
	Key string

	// Members are the group's records ordered by first_seen.
	Members []*domain.Person
}

// IDs returns the member IDs in member order.
func (g Group) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(g.Members))
	for i, m := range g.Members {
		ids[i] = m.ID
	}
	return ids
}

// Finder scans the whole person population and groups records by normalized
// name. Grouping is intentionally name-only: affiliation overlap is the
// resolver's incremental concern, while the batch pass surfaces every
// same-name cluster for the merge policy to collapse.
type Finder struct {
	store   repository.Store
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewFinder creates a duplicate group finder.
func NewFinder(store repository.Store, logger zerolog.Logger, metrics *observability.Metrics) *Finder {
	return &Finder{
		store:   store,
		logger:  logger.With().Str("component", "dedup_finder").Logger(),
		metrics: metrics,
	}
}

// FindGroups returns all duplicate groups in the population. Groups are
// ordered by their earliest member's first_seen, members within a group by
// first_seen, so repeated sweeps over an unchanged population produce
// identical output.
func (f *Finder) FindGroups(ctx context.Context) ([]Group, error) {
	people, err := f.store.People().ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing population: %w", err)
	}

	byKey := make(map[string][]*domain.Person)
	var keyOrder []string
	for _, p := range people {
		key := match.NameKey(p.Name)
		if key == "" {
			continue
		}
		if _, seen := byKey[key]; !seen {
			keyOrder = append(keyOrder, key)
		}
		byKey[key] = append(byKey[key], p)
	}

	var groups []Group
	for _, key := range keyOrder {
		members := byKey[key]
		if len(members) < 2 {
			continue
		}
		groups = append(groups, Group{Key: key, Members: members})
		f.metrics.DuplicateGroupsFound.Inc()
		f.metrics.GroupSize.Observe(float64(len(members)))
	}

	f.logger.Info().
		Int("population", len(people)).
		Int("groups", len(groups)).
		Msg("duplicate scan complete")

	return groups, nil
}
