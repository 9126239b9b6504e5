package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/helixir/identity-resolution-service/internal/database"
)

// Compile-time interface verification.
var _ Store = (*PgStore)(nil)

// PgStore is the PostgreSQL implementation of Store. Outside a transaction it
// runs repository calls on the connection pool; WithinTx hands callers a store
// bound to a single transaction.
type PgStore struct {
	db     *database.DB // nil for transaction-bound stores
	people *PgPersonRepository
	links  *PgLinkRepository
}

// NewPgStore creates a Store backed by the given database pool.
func NewPgStore(db *database.DB) *PgStore {
	return &PgStore{
		db:     db,
		people: NewPgPersonRepository(db),
		links:  NewPgLinkRepository(db),
	}
}

// newTxStore creates a Store bound to an open transaction.
func newTxStore(tx pgx.Tx) *PgStore {
	return &PgStore{
		people: NewPgPersonRepository(tx),
		links:  NewPgLinkRepository(tx),
	}
}

// People returns the person repository.
func (s *PgStore) People() PersonRepository {
	return s.people
}

// Links returns the link repository.
func (s *PgStore) Links() LinkRepository {
	return s.links
}

// WithinTx executes fn inside a database transaction. When called on a store
// that is already transaction-bound, fn joins the enclosing transaction.
func (s *PgStore) WithinTx(ctx context.Context, fn func(Store) error) error {
	if s.db == nil {
		return fn(s)
	}
	return s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		return fn(newTxStore(tx))
	})
}
