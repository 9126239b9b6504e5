// Package repository provides data access interfaces and implementations
// for the Identity Resolution Service.
//
// # Overview
//
// This package defines repository interfaces and their PostgreSQL implementations
// following the repository pattern to abstract data persistence from business logic.
//
// # Repository Interfaces
//
// The package provides the following repository interfaces:
//
//   - PersonRepository: Manages deduplicated person records
//   - LinkRepository: Manages person-to-context relationship links
//
// The Store interface bundles both repositories behind a single handle and adds
// transaction scoping, so services never deal with pgx types directly.
//
// # Thread Safety
//
// All repository implementations are safe for concurrent use by multiple goroutines.
// The underlying pgxpool handles connection pooling and synchronization.
//
// # Error Handling
//
// All methods return domain-specific errors from the domain package.
// Wrap database errors with context using fmt.Errorf with %w verb.
// Common errors include:
//
//   - domain.ErrNotFound: Resource does not exist
//   - domain.ErrAlreadyExists: Unique constraint violation
//   - domain.ErrInvalidInput: Invalid parameters provided
//
// # Transactions
//
// Use Store.WithinTx to run multiple repository calls atomically. The callback
// receives a Store bound to the transaction; every call through it commits or
// rolls back together.
//
// # Usage Pattern
//
// Stores are typically created at application startup and passed to services:
//
//	db, _ := database.New(ctx, cfg, logger)
//	store := repository.NewPgStore(db)
//	resolver := resolver.NewService(store, ...)
package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/helixir/identity-resolution-service/internal/database"
	"github.com/helixir/identity-resolution-service/internal/domain"
)

// DBTX is the database interface supporting both pool and transaction contexts.
// This allows repositories to work with both direct pool connections and transactions.
type DBTX = database.DBTX

// PersonRepository handles persistence of deduplicated person records.
type PersonRepository interface {
	// Create inserts a new person record. The caller provides the ID (a fresh
	// UUID is assigned when nil) and FirstSeen/LastUpdated are stamped here.
	// Returns domain.ErrAlreadyExists if a record with the same normalized
	// name and primary affiliation was inserted concurrently; callers recover
	// by re-querying candidates.
	Create(ctx context.Context, person *domain.Person) (*domain.Person, error)

	// GetByID retrieves a person by its UUID.
	// Returns domain.ErrNotFound if no matching record exists.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Person, error)

	// FindByNameKey retrieves all persons whose normalized, lowercased display
	// name equals key (see match.NameKey). Results are ordered by first_seen
	// ascending so resolution is deterministic under first-match-wins.
	FindByNameKey(ctx context.Context, key string) ([]*domain.Person, error)

	// Update persists the mutable fields of an existing person record and
	// stamps last_updated. Name and first_seen never change through Update,
	// except during a group merge where the surviving record absorbs loser
	// fields.
	// Returns domain.ErrNotFound if the record does not exist.
	Update(ctx context.Context, person *domain.Person) error

	// DeleteByIDs removes the given person records and returns how many rows
	// were deleted. Used by the merge executor to drop loser records after
	// their links have been reassigned.
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)

	// ListAll retrieves every person record ordered by first_seen ascending.
	// The duplicate finder streams the whole population; there is no
	// pagination because grouping needs every record anyway.
	ListAll(ctx context.Context) ([]*domain.Person, error)
}

// LinkRepository handles persistence of person-to-context relationship links.
type LinkRepository interface {
	// Upsert inserts a relationship link or, when a link for the same
	// (context_id, person_id) pair already exists, updates its role and
	// extracted payload in place. Returns the stored link.
	// Returns domain.ErrNotFound if the person does not exist.
	Upsert(ctx context.Context, link *domain.ContextLink) (*domain.ContextLink, error)

	// ListByPerson retrieves all links for a person ordered by created_at.
	ListByPerson(ctx context.Context, personID uuid.UUID) ([]*domain.ContextLink, error)

	// CountReassignable returns how many links owned by the loser records
	// would move to the primary during a merge. Links whose context the
	// primary already covers, and all but the oldest among loser links
	// sharing a context, collapse instead of moving. Used for dry-run
	// previews; the count matches what ReassignToPrimary would report.
	CountReassignable(ctx context.Context, loserIDs []uuid.UUID, primaryID uuid.UUID) (int64, error)

	// ReassignToPrimary moves all links owned by the loser records to the
	// primary record. Conflicting links (same context already linked to the
	// primary, or duplicated among the losers) are deleted rather than moved.
	// Returns the number of links reassigned and the number collapsed.
	ReassignToPrimary(ctx context.Context, loserIDs []uuid.UUID, primaryID uuid.UUID) (reassigned, collapsed int64, err error)
}

// Store bundles the repositories behind one handle and scopes transactions.
type Store interface {
	// People returns the person repository bound to this store's connection
	// or transaction.
	People() PersonRepository

	// Links returns the link repository bound to this store's connection or
	// transaction.
	Links() LinkRepository

	// WithinTx executes fn inside a database transaction. The Store passed to
	// fn is bound to that transaction; all repository calls through it commit
	// or roll back together. Calling WithinTx on an already transactional
	// store reuses the enclosing transaction.
	WithinTx(ctx context.Context, fn func(Store) error) error
}
