package dedup

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/identity-resolution-service/internal/domain"
	"github.com/helixir/identity-resolution-service/internal/repository"
)

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *capturePublisher) Publish(_ context.Context, event domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func newTestMerger(store repository.Store, events EventPublisher) *Merger {
	return NewMerger(store, events, MergerConfig{}, testLogger(), newTestMetrics())
}

func mustLink(t *testing.T, store repository.Store, contextID string, personID uuid.UUID) {
	t.Helper()
	_, err := store.Links().Upsert(context.Background(), &domain.ContextLink{
		ContextID: contextID,
		PersonID:  personID,
		Role:      "speaker",
	})
	require.NoError(t, err)
}

func TestMerger_MergeGroup(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	pub := &capturePublisher{}
	merger := newTestMerger(store, pub)

	// The richer record wins on completeness score.
	sparse := mustCreate(t, store, domain.Person{Name: "Jane Smith"})
	rich := mustCreate(t, store, domain.Person{
		Name:               "Dr. Jane Smith",
		Title:              "Economist",
		Affiliation:        "Harvard Kennedy School",
		PrimaryAffiliation: "Harvard University",
		Bio:                "Labor economist.",
	})

	mustLink(t, store, "shared-event", sparse.ID)
	mustLink(t, store, "shared-event", rich.ID)
	mustLink(t, store, "sparse-event", sparse.ID)

	result, err := merger.MergeGroup(ctx, []uuid.UUID{sparse.ID, rich.ID}, false)
	require.NoError(t, err)
	assert.Equal(t, rich.ID, result.PrimaryID)
	assert.Equal(t, []uuid.UUID{sparse.ID}, result.DeletedIDs)
	assert.Equal(t, 1, result.ReassignedLinks)
	assert.False(t, result.DryRun)
	assert.Equal(t, 1, result.MergedCount())

	// The loser is gone and its non-conflicting link moved over.
	_, err = store.People().GetByID(ctx, sparse.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	links, err := store.Links().ListByPerson(ctx, rich.ID)
	require.NoError(t, err)
	assert.Len(t, links, 2)

	require.Len(t, pub.events, 1)
	assert.Equal(t, domain.EventTypePersonMerged, pub.events[0].EventType)
}

func TestMerger_MergeGroup_FieldFolding(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	merger := newTestMerger(store, nil)

	primary := mustCreate(t, store, domain.Person{
		Name: "Jane Smith",
		Bio:  "A bio long enough to win the completeness score by a clear margin.",
	})
	loser := mustCreate(t, store, domain.Person{
		Name:               "Dr. Jane Smith",
		Title:              "Senior Fellow",
		Affiliation:        "Brookings Institution",
		PrimaryAffiliation: "Brookings",
	})

	result, err := merger.MergeGroup(ctx, []uuid.UUID{primary.ID, loser.ID}, false)
	require.NoError(t, err)
	require.Equal(t, primary.ID, result.PrimaryID)

	merged, err := store.People().GetByID(ctx, primary.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Smith", merged.Name)
	assert.Equal(t, "Senior Fellow", merged.Title)
	assert.Equal(t, "Brookings Institution", merged.Affiliation)
	assert.Equal(t, "Brookings", merged.PrimaryAffiliation)
	assert.Equal(t, primary.Bio, merged.Bio)
	assert.Equal(t, primary.FirstSeen, merged.FirstSeen)
}

func TestMerger_MergeGroup_TieBreakEarliestFirstSeen(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	merger := newTestMerger(store, nil)

	older := mustCreate(t, store, domain.Person{Name: "Jane Smith"})
	time.Sleep(2 * time.Millisecond)
	newer := mustCreate(t, store, domain.Person{Name: "Ms. Jane Smith", PrimaryAffiliation: ""})

	// Equal completeness scores: the earliest record survives.
	result, err := merger.MergeGroup(ctx, []uuid.UUID{newer.ID, older.ID}, false)
	require.NoError(t, err)
	assert.Equal(t, older.ID, result.PrimaryID)
}

func TestMerger_MergeGroup_DryRun(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	merger := newTestMerger(store, nil)

	a := mustCreate(t, store, domain.Person{Name: "Jane Smith"})
	b := mustCreate(t, store, domain.Person{
		Name:        "Dr. Jane Smith",
		Affiliation: "Harvard University",
	})
	mustLink(t, store, "event-1", a.ID)
	mustLink(t, store, "event-2", a.ID)

	preview, err := merger.MergeGroup(ctx, []uuid.UUID{a.ID, b.ID}, true)
	require.NoError(t, err)
	assert.True(t, preview.DryRun)
	assert.Equal(t, b.ID, preview.PrimaryID)
	assert.Equal(t, []uuid.UUID{a.ID}, preview.DeletedIDs)
	assert.Equal(t, 2, preview.ReassignedLinks)

	// Nothing was touched.
	all, err := store.People().ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// The real merge reports exactly what the preview promised.
	result, err := merger.MergeGroup(ctx, []uuid.UUID{a.ID, b.ID}, false)
	require.NoError(t, err)
	assert.Equal(t, preview.PrimaryID, result.PrimaryID)
	assert.Equal(t, preview.DeletedIDs, result.DeletedIDs)
	assert.Equal(t, preview.ReassignedLinks, result.ReassignedLinks)
}

func TestMerger_MergeGroup_Validation(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	merger := newTestMerger(store, nil)

	_, err := merger.MergeGroup(ctx, []uuid.UUID{uuid.New()}, false)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	id := uuid.New()
	_, err = merger.MergeGroup(ctx, []uuid.UUID{id, id}, false)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestMerger_MergeGroup_MissingMember(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	merger := newTestMerger(store, nil)

	existing := mustCreate(t, store, domain.Person{Name: "Jane Smith"})

	_, err := merger.MergeGroup(ctx, []uuid.UUID{existing.ID, uuid.New()}, false)
	require.Error(t, err)

	var mergeErr *domain.MergeError
	require.ErrorAs(t, err, &mergeErr)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// The surviving record is untouched.
	_, err = store.People().GetByID(ctx, existing.ID)
	assert.NoError(t, err)
}

// txGuardStore fails member loads issued outside WithinTx so tests can assert
// a live merge reads its group inside the merge transaction.
type txGuardStore struct {
	*repository.MemoryStore
	inTx atomic.Bool
}

func (s *txGuardStore) WithinTx(ctx context.Context, fn func(repository.Store) error) error {
	s.inTx.Store(true)
	defer s.inTx.Store(false)
	return s.MemoryStore.WithinTx(ctx, func(repository.Store) error { return fn(s) })
}

func (s *txGuardStore) People() repository.PersonRepository {
	return &guardedPersonRepository{inner: s.MemoryStore.People(), store: s}
}

type guardedPersonRepository struct {
	inner repository.PersonRepository
	store *txGuardStore
}

func (r *guardedPersonRepository) Create(ctx context.Context, person *domain.Person) (*domain.Person, error) {
	return r.inner.Create(ctx, person)
}

func (r *guardedPersonRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Person, error) {
	if !r.store.inTx.Load() {
		return nil, errors.New("member load outside transaction")
	}
	return r.inner.GetByID(ctx, id)
}

func (r *guardedPersonRepository) FindByNameKey(ctx context.Context, key string) ([]*domain.Person, error) {
	return r.inner.FindByNameKey(ctx, key)
}

func (r *guardedPersonRepository) Update(ctx context.Context, person *domain.Person) error {
	return r.inner.Update(ctx, person)
}

func (r *guardedPersonRepository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	return r.inner.DeleteByIDs(ctx, ids)
}

func (r *guardedPersonRepository) ListAll(ctx context.Context) ([]*domain.Person, error) {
	return r.inner.ListAll(ctx)
}

func TestMerger_MergeGroup_LoadsMembersInTransaction(t *testing.T) {
	ctx := context.Background()
	store := &txGuardStore{MemoryStore: repository.NewMemoryStore()}
	merger := newTestMerger(store, nil)

	a := mustCreate(t, store.MemoryStore, domain.Person{Name: "Jane Smith"})
	b := mustCreate(t, store.MemoryStore, domain.Person{
		Name:        "Dr. Jane Smith",
		Affiliation: "Harvard University",
	})

	result, err := merger.MergeGroup(ctx, []uuid.UUID{a.ID, b.ID}, false)
	require.NoError(t, err)
	assert.Equal(t, b.ID, result.PrimaryID)
	assert.Equal(t, []uuid.UUID{a.ID}, result.DeletedIDs)
}

func TestMerger_MergeAll_FailureIsolation(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	merger := newTestMerger(store, nil)

	a1 := mustCreate(t, store, domain.Person{Name: "Jane Smith"})
	a2 := mustCreate(t, store, domain.Person{Name: "Dr. Jane Smith", PrimaryAffiliation: "Harvard"})
	b1 := mustCreate(t, store, domain.Person{Name: "John Doe"})

	groups := []Group{
		{Key: "jane smith", Members: []*domain.Person{a1, a2}},
		{Key: "john doe", Members: []*domain.Person{b1, {ID: uuid.New(), Name: "John Doe"}}},
	}

	results, err := merger.MergeAll(ctx, groups, false)
	require.Error(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, a2.ID, results[0].PrimaryID)

	var mergeErr *domain.MergeError
	assert.ErrorAs(t, err, &mergeErr)

	// The failed group's surviving member is untouched.
	_, getErr := store.People().GetByID(ctx, b1.ID)
	assert.NoError(t, getErr)
}

func TestMerger_MergeAll_CancelledBetweenGroups(t *testing.T) {
	store := repository.NewMemoryStore()
	merger := newTestMerger(store, nil)

	a1 := mustCreate(t, store, domain.Person{Name: "Jane Smith"})
	a2 := mustCreate(t, store, domain.Person{Name: "Dr. Jane Smith", PrimaryAffiliation: "Harvard"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := merger.MergeAll(ctx, []Group{
		{Key: "jane smith", Members: []*domain.Person{a1, a2}},
	}, false)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)

	// Nothing merged after cancellation.
	all, listErr := store.People().ListAll(context.Background())
	require.NoError(t, listErr)
	assert.Len(t, all, 2)
}
