package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/helixir/identity-resolution-service/internal/domain"
)

// Compile-time interface verification.
var _ PersonRepository = (*PgPersonRepository)(nil)

// nameKeyExpr computes the normalized, lowercased comparison key for a display
// name in SQL: leading honorific words (optionally followed by a period) are
// stripped, whitespace is collapsed, and the result is lowercased.
//
// This must stay in sync with match.NameKey; the resolver relies on both sides
// producing the same key so the candidate lookup can happen in the database.
const nameKeyExpr = `lower(regexp_replace(btrim(regexp_replace(btrim(name), '^((professor|ambassador|mrs|mr|ms|dr|prof|sir)\.?([[:space:]]+|$))+', '', 'i')), '[[:space:]]+', ' ', 'g'))`

// personColumns is the column list shared by every person SELECT.
const personColumns = `id, name, title, affiliation, primary_affiliation, bio, first_seen, last_updated`

// PgPersonRepository is a PostgreSQL implementation of PersonRepository.
type PgPersonRepository struct {
	db DBTX
}

// NewPgPersonRepository creates a new PostgreSQL person repository.
func NewPgPersonRepository(db DBTX) *PgPersonRepository {
	return &PgPersonRepository{db: db}
}

// Create inserts a new person record.
func (r *PgPersonRepository) Create(ctx context.Context, person *domain.Person) (*domain.Person, error) {
	if person == nil {
		return nil, domain.NewValidationError("person", "person cannot be nil")
	}
	if strings.TrimSpace(person.Name) == "" {
		return nil, domain.NewValidationError("name", "name is required")
	}

	if person.ID == uuid.Nil {
		person.ID = uuid.New()
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO people (
			id, name, title, affiliation, primary_affiliation, bio,
			first_seen, last_updated
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $7
		)
		RETURNING first_seen, last_updated`

	err := r.db.QueryRow(ctx, query,
		person.ID,
		person.Name,
		person.Title,
		person.Affiliation,
		person.PrimaryAffiliation,
		person.Bio,
		now,
	).Scan(&person.FirstSeen, &person.LastUpdated)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// A concurrent resolve created the same record first.
			return nil, domain.NewAlreadyExistsError("person", person.Name)
		}
		return nil, fmt.Errorf("failed to create person: %w", err)
	}

	return person, nil
}

// GetByID retrieves a person by its UUID.
func (r *PgPersonRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Person, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM people
		WHERE id = $1`, personColumns)

	row := r.db.QueryRow(ctx, query, id)
	person, err := scanPerson(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("person", id.String())
		}
		return nil, fmt.Errorf("failed to get person by ID: %w", err)
	}

	return person, nil
}

// FindByNameKey retrieves all persons sharing a normalized name key.
func (r *PgPersonRepository) FindByNameKey(ctx context.Context, key string) ([]*domain.Person, error) {
	if key == "" {
		return nil, domain.NewValidationError("key", "name key is required")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM people
		WHERE %s = $1
		ORDER BY first_seen, id`, personColumns, nameKeyExpr)

	rows, err := r.db.Query(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("failed to find persons by name key: %w", err)
	}
	defer rows.Close()

	people, err := collectPersons(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan persons by name key: %w", err)
	}

	return people, nil
}

// Update persists the mutable fields of an existing person record.
func (r *PgPersonRepository) Update(ctx context.Context, person *domain.Person) error {
	if person == nil {
		return domain.NewValidationError("person", "person cannot be nil")
	}
	if person.ID == uuid.Nil {
		return domain.NewValidationError("id", "person ID is required")
	}

	query := `
		UPDATE people
		SET name = $2,
			title = $3,
			affiliation = $4,
			primary_affiliation = $5,
			bio = $6,
			last_updated = $7
		WHERE id = $1`

	now := time.Now().UTC()
	result, err := r.db.Exec(ctx, query,
		person.ID,
		person.Name,
		person.Title,
		person.Affiliation,
		person.PrimaryAffiliation,
		person.Bio,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to update person: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("person", person.ID.String())
	}

	person.LastUpdated = now
	return nil
}

// DeleteByIDs removes the given person records.
func (r *PgPersonRepository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := `DELETE FROM people WHERE id = ANY($1)`

	result, err := r.db.Exec(ctx, query, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to delete persons: %w", err)
	}

	return result.RowsAffected(), nil
}

// ListAll retrieves every person record ordered by first_seen.
func (r *PgPersonRepository) ListAll(ctx context.Context) ([]*domain.Person, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM people
		ORDER BY first_seen, id`, personColumns)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list persons: %w", err)
	}
	defer rows.Close()

	people, err := collectPersons(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan persons: %w", err)
	}

	return people, nil
}

// scanPerson scans a single row into a Person.
func scanPerson(row pgx.Row) (*domain.Person, error) {
	var p domain.Person
	err := row.Scan(
		&p.ID, &p.Name, &p.Title, &p.Affiliation, &p.PrimaryAffiliation, &p.Bio,
		&p.FirstSeen, &p.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// collectPersons drains rows into a slice of Persons.
func collectPersons(rows pgx.Rows) ([]*domain.Person, error) {
	var people []*domain.Person
	for rows.Next() {
		person, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		people = append(people, person)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return people, nil
}
