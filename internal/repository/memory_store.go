package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helixir/identity-resolution-service/internal/domain"
	"github.com/helixir/identity-resolution-service/internal/match"
)

// Compile-time interface verification.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store used by unit tests. It mirrors the
// PostgreSQL implementation's semantics: the unique constraint on normalized
// name plus primary affiliation, name-key candidate lookup, link upsert on
// (context_id, person_id), and merge-time link collapsing. WithinTx restores
// a snapshot when the callback fails, matching transaction rollback.
type MemoryStore struct {
	mu sync.Mutex

	people      map[uuid.UUID]*domain.Person
	peopleOrder []uuid.UUID

	links   []*memoryLink
	nextSeq int
}

// memoryLink pairs a stored link with an insertion sequence so tie-breaks on
// equal created_at stay deterministic, as row IDs do in SQL.
type memoryLink struct {
	link domain.ContextLink
	seq  int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		people: make(map[uuid.UUID]*domain.Person),
	}
}

// People returns the person repository view of the store.
func (s *MemoryStore) People() PersonRepository {
	return (*memoryPersonRepository)(s)
}

// Links returns the link repository view of the store.
func (s *MemoryStore) Links() LinkRepository {
	return (*memoryLinkRepository)(s)
}

// WithinTx executes fn and restores the pre-call state if it returns an error.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(Store) error) error {
	s.mu.Lock()
	snapPeople := make(map[uuid.UUID]*domain.Person, len(s.people))
	for id, p := range s.people {
		snapPeople[id] = clonePerson(p)
	}
	snapOrder := append([]uuid.UUID(nil), s.peopleOrder...)
	snapLinks := make([]*memoryLink, len(s.links))
	for i, l := range s.links {
		snapLinks[i] = &memoryLink{link: cloneLink(&l.link), seq: l.seq}
	}
	snapSeq := s.nextSeq
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.people = snapPeople
		s.peopleOrder = snapOrder
		s.links = snapLinks
		s.nextSeq = snapSeq
		s.mu.Unlock()
		return err
	}
	return nil
}

// memoryPersonRepository implements PersonRepository over MemoryStore.
type memoryPersonRepository MemoryStore

func (r *memoryPersonRepository) store() *MemoryStore { return (*MemoryStore)(r) }

func (r *memoryPersonRepository) Create(ctx context.Context, person *domain.Person) (*domain.Person, error) {
	if person == nil {
		return nil, domain.NewValidationError("person", "person cannot be nil")
	}
	if strings.TrimSpace(person.Name) == "" {
		return nil, domain.NewValidationError("name", "name is required")
	}

	s := r.store()
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.people {
		if strings.EqualFold(existing.Name, person.Name) &&
			strings.EqualFold(existing.PrimaryAffiliation, person.PrimaryAffiliation) {
			return nil, domain.NewAlreadyExistsError("person", person.Name)
		}
	}

	if person.ID == uuid.Nil {
		person.ID = uuid.New()
	}
	now := time.Now().UTC()
	person.FirstSeen = now
	person.LastUpdated = now

	s.people[person.ID] = clonePerson(person)
	s.peopleOrder = append(s.peopleOrder, person.ID)
	return person, nil
}

func (r *memoryPersonRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Person, error) {
	s := r.store()
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.people[id]
	if !ok {
		return nil, domain.NewNotFoundError("person", id.String())
	}
	return clonePerson(p), nil
}

func (r *memoryPersonRepository) FindByNameKey(ctx context.Context, key string) ([]*domain.Person, error) {
	if key == "" {
		return nil, domain.NewValidationError("key", "name key is required")
	}

	s := r.store()
	s.mu.Lock()
	defer s.mu.Unlock()

	var found []*domain.Person
	for _, id := range s.peopleOrder {
		p, ok := s.people[id]
		if !ok {
			continue
		}
		if match.NameKey(p.Name) == key {
			found = append(found, clonePerson(p))
		}
	}
	sortByFirstSeen(found)
	return found, nil
}

func (r *memoryPersonRepository) Update(ctx context.Context, person *domain.Person) error {
	if person == nil {
		return domain.NewValidationError("person", "person cannot be nil")
	}
	if person.ID == uuid.Nil {
		return domain.NewValidationError("id", "person ID is required")
	}

	s := r.store()
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.people[person.ID]
	if !ok {
		return domain.NewNotFoundError("person", person.ID.String())
	}

	person.FirstSeen = existing.FirstSeen
	person.LastUpdated = time.Now().UTC()
	s.people[person.ID] = clonePerson(person)
	return nil
}

func (r *memoryPersonRepository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	s := r.store()
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for _, id := range ids {
		if _, ok := s.people[id]; !ok {
			continue
		}
		delete(s.people, id)
		deleted++
	}

	if deleted > 0 {
		kept := s.peopleOrder[:0]
		for _, id := range s.peopleOrder {
			if _, ok := s.people[id]; ok {
				kept = append(kept, id)
			}
		}
		s.peopleOrder = kept
	}
	return deleted, nil
}

func (r *memoryPersonRepository) ListAll(ctx context.Context) ([]*domain.Person, error) {
	s := r.store()
	s.mu.Lock()
	defer s.mu.Unlock()

	people := make([]*domain.Person, 0, len(s.peopleOrder))
	for _, id := range s.peopleOrder {
		if p, ok := s.people[id]; ok {
			people = append(people, clonePerson(p))
		}
	}
	sortByFirstSeen(people)
	return people, nil
}

// memoryLinkRepository implements LinkRepository over MemoryStore.
type memoryLinkRepository MemoryStore

func (r *memoryLinkRepository) store() *MemoryStore { return (*MemoryStore)(r) }

func (r *memoryLinkRepository) Upsert(ctx context.Context, link *domain.ContextLink) (*domain.ContextLink, error) {
	if link == nil {
		return nil, domain.NewValidationError("link", "link cannot be nil")
	}
	if strings.TrimSpace(link.ContextID) == "" {
		return nil, domain.NewValidationError("context_id", "context ID is required")
	}
	if link.PersonID == uuid.Nil {
		return nil, domain.NewValidationError("person_id", "person ID is required")
	}

	s := r.store()
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.people[link.PersonID]; !ok {
		return nil, domain.NewNotFoundError("person", link.PersonID.String())
	}

	now := time.Now().UTC()
	for _, existing := range s.links {
		if existing.link.ContextID == link.ContextID && existing.link.PersonID == link.PersonID {
			existing.link.Role = link.Role
			if link.ExtractedInfo != nil {
				existing.link.ExtractedInfo = cloneInfo(link.ExtractedInfo)
			}
			existing.link.UpdatedAt = now
			result := cloneLink(&existing.link)
			*link = result
			return link, nil
		}
	}

	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}
	link.CreatedAt = now
	link.UpdatedAt = now
	s.links = append(s.links, &memoryLink{link: cloneLink(link), seq: s.nextSeq})
	s.nextSeq++
	return link, nil
}

func (r *memoryLinkRepository) ListByPerson(ctx context.Context, personID uuid.UUID) ([]*domain.ContextLink, error) {
	s := r.store()
	s.mu.Lock()
	defer s.mu.Unlock()

	var links []*domain.ContextLink
	for _, l := range s.links {
		if l.link.PersonID == personID {
			c := cloneLink(&l.link)
			links = append(links, &c)
		}
	}
	return links, nil
}

func (r *memoryLinkRepository) CountReassignable(ctx context.Context, loserIDs []uuid.UUID, primaryID uuid.UUID) (int64, error) {
	s := r.store()
	s.mu.Lock()
	defer s.mu.Unlock()

	reassigned, _ := s.planReassign(loserIDs, primaryID)
	return reassigned, nil
}

func (r *memoryLinkRepository) ReassignToPrimary(ctx context.Context, loserIDs []uuid.UUID, primaryID uuid.UUID) (int64, int64, error) {
	s := r.store()
	s.mu.Lock()
	defer s.mu.Unlock()

	reassigned, winners := s.planReassign(loserIDs, primaryID)
	var collapsed int64

	kept := s.links[:0]
	now := time.Now().UTC()
	for _, l := range s.links {
		if !containsID(loserIDs, l.link.PersonID) {
			kept = append(kept, l)
			continue
		}
		if _, wins := winners[l.seq]; !wins {
			collapsed++
			continue
		}
		l.link.PersonID = primaryID
		l.link.UpdatedAt = now
		kept = append(kept, l)
	}
	s.links = kept

	return reassigned, collapsed, nil
}

// planReassign computes which loser links survive a merge: one winner per
// context not already covered by the primary, oldest first. Returns the
// winner count and the set of winning sequence numbers.
func (s *MemoryStore) planReassign(loserIDs []uuid.UUID, primaryID uuid.UUID) (int64, map[int]struct{}) {
	primaryContexts := make(map[string]struct{})
	for _, l := range s.links {
		if l.link.PersonID == primaryID {
			primaryContexts[l.link.ContextID] = struct{}{}
		}
	}

	winners := make(map[int]struct{})
	best := make(map[string]*memoryLink)
	for _, l := range s.links {
		if !containsID(loserIDs, l.link.PersonID) {
			continue
		}
		if _, covered := primaryContexts[l.link.ContextID]; covered {
			continue
		}
		cur, ok := best[l.link.ContextID]
		if !ok || l.link.CreatedAt.Before(cur.link.CreatedAt) ||
			(l.link.CreatedAt.Equal(cur.link.CreatedAt) && l.seq < cur.seq) {
			best[l.link.ContextID] = l
		}
	}
	for _, l := range best {
		winners[l.seq] = struct{}{}
	}
	return int64(len(winners)), winners
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func sortByFirstSeen(people []*domain.Person) {
	sort.SliceStable(people, func(i, j int) bool {
		if !people[i].FirstSeen.Equal(people[j].FirstSeen) {
			return people[i].FirstSeen.Before(people[j].FirstSeen)
		}
		return people[i].ID.String() < people[j].ID.String()
	})
}

func clonePerson(p *domain.Person) *domain.Person {
	c := *p
	return &c
}

func cloneLink(l *domain.ContextLink) domain.ContextLink {
	c := *l
	c.ExtractedInfo = cloneInfo(l.ExtractedInfo)
	return c
}

func cloneInfo(info map[string]interface{}) map[string]interface{} {
	if info == nil {
		return nil
	}
	c := make(map[string]interface{}, len(info))
	for k, v := range info {
		c[k] = v
	}
	return c
}
