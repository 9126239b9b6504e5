package repository

import (
	"context"
	"encoding/json"
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
var _ LinkRepository = (*PgLinkRepository)(nil)

// PgLinkRepository is a PostgreSQL implementation of LinkRepository.
type PgLinkRepository struct {
	db DBTX
}

// NewPgLinkRepository creates a new PostgreSQL link repository.
func NewPgLinkRepository(db DBTX) *PgLinkRepository {
	return &PgLinkRepository{db: db}
}

// Upsert inserts a relationship link or updates the existing one in place.
func (r *PgLinkRepository) Upsert(ctx context.Context, link *domain.ContextLink) (*domain.ContextLink, error) {
	if link == nil {
		return nil, domain.NewValidationError("link", "link cannot be nil")
	}
	if strings.TrimSpace(link.ContextID) == "" {
		return nil, domain.NewValidationError("context_id", "context ID is required")
	}
	if link.PersonID == uuid.Nil {
		return nil, domain.NewValidationError("person_id", "person ID is required")
	}

	var infoJSON []byte
	if link.ExtractedInfo != nil {
		var err error
		infoJSON, err = json.Marshal(link.ExtractedInfo)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal extracted info: %w", err)
		}
	}

	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO context_links (
			id, context_id, person_id, role, extracted_info, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $6
		)
		ON CONFLICT (context_id, person_id) DO UPDATE SET
			role = EXCLUDED.role,
			extracted_info = COALESCE(EXCLUDED.extracted_info, context_links.extracted_info),
			updated_at = NOW()
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		link.ID,
		link.ContextID,
		link.PersonID,
		link.Role,
		infoJSON,
		now,
	).Scan(&link.ID, &link.CreatedAt, &link.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, domain.NewNotFoundError("person", link.PersonID.String())
		}
		return nil, fmt.Errorf("failed to upsert link: %w", err)
	}

	return link, nil
}

// ListByPerson retrieves all links for a person ordered by created_at.
func (r *PgLinkRepository) ListByPerson(ctx context.Context, personID uuid.UUID) ([]*domain.ContextLink, error) {
	query := `
		SELECT id, context_id, person_id, role, extracted_info, created_at, updated_at
		FROM context_links
		WHERE person_id = $1
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, personID)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	var links []*domain.ContextLink
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating links: %w", err)
	}

	return links, nil
}

// CountReassignable returns how many loser links a merge would move to the primary.
func (r *PgLinkRepository) CountReassignable(ctx context.Context, loserIDs []uuid.UUID, primaryID uuid.UUID) (int64, error) {
	if len(loserIDs) == 0 {
		return 0, nil
	}

	// A loser link moves unless the primary already covers its context, or an
	// older loser link for the same context wins the dedupe.
	query := `
		SELECT COUNT(*)
		FROM context_links l
		WHERE l.person_id = ANY($1)
			AND NOT EXISTS (
				SELECT 1 FROM context_links k
				WHERE k.person_id = $2 AND k.context_id = l.context_id
			)
			AND NOT EXISTS (
				SELECT 1 FROM context_links k
				WHERE k.person_id = ANY($1) AND k.context_id = l.context_id
					AND (k.created_at < l.created_at
						OR (k.created_at = l.created_at AND k.id < l.id))
			)`

	var count int64
	if err := r.db.QueryRow(ctx, query, loserIDs, primaryID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count reassignable links: %w", err)
	}

	return count, nil
}

// ReassignToPrimary moves loser links to the primary, collapsing conflicts.
func (r *PgLinkRepository) ReassignToPrimary(ctx context.Context, loserIDs []uuid.UUID, primaryID uuid.UUID) (int64, int64, error) {
	if len(loserIDs) == 0 {
		return 0, 0, nil
	}

	// Drop loser links whose context the primary already covers.
	collapseQuery := `
		DELETE FROM context_links
		WHERE person_id = ANY($1)
			AND context_id IN (
				SELECT context_id FROM context_links WHERE person_id = $2
			)`

	result, err := r.db.Exec(ctx, collapseQuery, loserIDs, primaryID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to collapse conflicting links: %w", err)
	}
	collapsed := result.RowsAffected()

	// Among loser links sharing a context, keep the oldest and drop the rest.
	dedupeQuery := `
		DELETE FROM context_links a
		USING context_links b
		WHERE a.person_id = ANY($1) AND b.person_id = ANY($1)
			AND a.context_id = b.context_id AND a.id <> b.id
			AND (a.created_at > b.created_at
				OR (a.created_at = b.created_at AND a.id > b.id))`

	result, err = r.db.Exec(ctx, dedupeQuery, loserIDs)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to dedupe loser links: %w", err)
	}
	collapsed += result.RowsAffected()

	reassignQuery := `
		UPDATE context_links
		SET person_id = $2, updated_at = NOW()
		WHERE person_id = ANY($1)`

	result, err = r.db.Exec(ctx, reassignQuery, loserIDs, primaryID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to reassign links: %w", err)
	}

	return result.RowsAffected(), collapsed, nil
}

// scanLink scans the current row from pgx.Rows into a ContextLink.
func scanLink(rows pgx.Rows) (*domain.ContextLink, error) {
	var link domain.ContextLink
	var infoJSON []byte

	err := rows.Scan(
		&link.ID, &link.ContextID, &link.PersonID, &link.Role, &infoJSON,
		&link.CreatedAt, &link.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(infoJSON) > 0 {
		if err := json.Unmarshal(infoJSON, &link.ExtractedInfo); err != nil {
			return nil, fmt.Errorf("failed to unmarshal extracted info: %w", err)
		}
	}

	return &link, nil
}
