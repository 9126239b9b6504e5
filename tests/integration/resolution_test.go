//go:build integration

package integration

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/identity-resolution-service/internal/dedup"
	"github.com/helixir/identity-resolution-service/internal/domain"
	"github.com/helixir/identity-resolution-service/internal/observability"
	"github.com/helixir/identity-resolution-service/internal/resolver"
)

var metricsSeq atomic.Int64

func newMetrics() *observability.Metrics {
	return observability.NewMetrics(fmt.Sprintf("test_integration_%d", metricsSeq.Add(1)))
}

func TestResolver_Integration(t *testing.T) {
	cleanTables(t, "context_links", "people")
	svc := resolver.NewService(testStore, nil, zerolog.Nop(), newMetrics())
	ctx := context.Background()

	t.Run("create then match across honorifics", func(t *testing.T) {
		first, err := svc.Resolve(ctx, domain.Candidate{
			Name:        "Dr. Jane Smith",
			Affiliation: "Harvard University",
		})
		require.NoError(t, err)
		assert.True(t, first.Created)

		second, err := svc.Resolve(ctx, domain.Candidate{
			Name:        "Prof. Jane Smith",
			Title:       "Professor of Physics",
			Affiliation: "Harvard",
		})
		require.NoError(t, err)
		assert.False(t, second.Created)
		assert.Equal(t, first.Person.ID, second.Person.ID)
		assert.Equal(t, "Professor of Physics", second.Person.Title)
	})

	t.Run("divergent affiliations create separate records", func(t *testing.T) {
		a, err := svc.Resolve(ctx, domain.Candidate{
			Name:               "John Doe",
			PrimaryAffiliation: "Stanford Medicine",
		})
		require.NoError(t, err)
		b, err := svc.Resolve(ctx, domain.Candidate{
			Name:               "John Doe",
			PrimaryAffiliation: "Oxford Economics",
		})
		require.NoError(t, err)
		assert.NotEqual(t, a.Person.ID, b.Person.ID)
	})

	t.Run("link context persists", func(t *testing.T) {
		res, err := svc.Resolve(ctx, domain.Candidate{Name: "Linked Speaker"})
		require.NoError(t, err)

		link, err := svc.LinkContext(ctx, "conf-2026", res.Person.ID, "speaker", map[string]interface{}{
			"session": "keynote",
		})
		require.NoError(t, err)
		assert.Equal(t, "conf-2026", link.ContextID)

		_, links, err := svc.GetPerson(ctx, res.Person.ID)
		require.NoError(t, err)
		require.Len(t, links, 1)
		assert.Equal(t, "keynote", links[0].ExtractedInfo["session"])
	})
}

func TestDuplicateSweep_Integration(t *testing.T) {
	cleanTables(t, "context_links", "people")
	ctx := context.Background()
	logger := zerolog.Nop()
	metrics := newMetrics()

	people := testStore.People()
	links := testStore.Links()

	sparse, err := people.Create(ctx, &domain.Person{Name: "Jane Smith"})
	require.NoError(t, err)
	rich, err := people.Create(ctx, &domain.Person{
		Name:               "Dr. Jane Smith",
		Title:              "Professor",
		Affiliation:        "Harvard University",
		PrimaryAffiliation: "Harvard University",
		Bio:                "Condensed matter physicist.",
	})
	require.NoError(t, err)
	_, err = people.Create(ctx, &domain.Person{Name: "Unrelated Person"})
	require.NoError(t, err)

	_, err = links.Upsert(ctx, &domain.ContextLink{ContextID: "event-1", PersonID: sparse.ID})
	require.NoError(t, err)
	_, err = links.Upsert(ctx, &domain.ContextLink{ContextID: "event-2", PersonID: rich.ID})
	require.NoError(t, err)

	finder := dedup.NewFinder(testStore, logger, metrics)
	merger := dedup.NewMerger(testStore, nil, dedup.MergerConfig{}, logger, metrics)

	groups, err := finder.FindGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "jane smith", groups[0].Key)

	t.Run("dry run leaves data untouched", func(t *testing.T) {
		result, err := merger.MergeGroup(ctx, groups[0].IDs(), true)
		require.NoError(t, err)
		assert.True(t, result.DryRun)
		assert.Equal(t, rich.ID, result.PrimaryID)
		assert.Equal(t, 1, result.ReassignedLinks)

		all, err := people.ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("merge keeps richest record and moves links", func(t *testing.T) {
		result, err := merger.MergeGroup(ctx, groups[0].IDs(), false)
		require.NoError(t, err)
		assert.Equal(t, rich.ID, result.PrimaryID)
		assert.Equal(t, []uuid.UUID{sparse.ID}, result.DeletedIDs)
		assert.Equal(t, 1, result.ReassignedLinks)

		_, err = people.GetByID(ctx, sparse.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		got, err := links.ListByPerson(ctx, rich.ID)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("merge with missing member rolls back", func(t *testing.T) {
		survivor, err := people.GetByID(ctx, rich.ID)
		require.NoError(t, err)

		_, err = merger.MergeGroup(ctx, []uuid.UUID{survivor.ID, uuid.New()}, false)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		// The survivor is untouched.
		got, err := people.GetByID(ctx, rich.ID)
		require.NoError(t, err)
		assert.Equal(t, survivor.LastUpdated, got.LastUpdated)
	})
}
