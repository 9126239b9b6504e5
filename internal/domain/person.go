// Package domain provides domain models and business logic for the Identity Resolution Service.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Person is a deduplicated record representing one real-world person.
// Optional text fields use the empty string for "not provided"; the resolver
// and merger treat empty as absent.
type Person struct {
	ID uuid.UUID

	// Name is the raw display name as ingested. It may still carry an
	// honorific prefix; comparisons always go through match.NormalizeName
	// and the normalized form is never persisted.
	Name string

	Title              string
	Affiliation        string
	PrimaryAffiliation string
	Bio                string

	// FirstSeen is set once at creation and never changes.
	FirstSeen time.Time
	// LastUpdated is stamped on every mutation.
	LastUpdated time.Time
}

// EffectiveAffiliation returns the affiliation string used for overlap
// matching: the free-text affiliation when present, otherwise the primary
// affiliation, otherwise "".
func (p *Person) EffectiveAffiliation() string {
	if p.Affiliation != "" {
		return p.Affiliation
	}
	return p.PrimaryAffiliation
}

// Candidate is an incoming person record extracted from an unstructured
// source, not yet resolved against the known population.
type Candidate struct {
	Name               string
	Title              string
	Affiliation        string
	PrimaryAffiliation string
	Bio                string
}

// EffectiveAffiliation mirrors Person.EffectiveAffiliation for the incoming side.
func (c Candidate) EffectiveAffiliation() string {
	if c.Affiliation != "" {
		return c.Affiliation
	}
	return c.PrimaryAffiliation
}

// ContextLink associates a Person with an external context (an event, a
// document, a meeting) in a given role. The (ContextID, PersonID) pair is
// unique; re-asserting a link updates role and payload in place.
type ContextLink struct {
	ID            uuid.UUID
	ContextID     string
	PersonID      uuid.UUID
	Role          string
	ExtractedInfo map[string]interface{}
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MergeResult describes the outcome (or dry-run preview) of merging one
// duplicate group into a single surviving record.
type MergeResult struct {
	PrimaryID       uuid.UUID
	DeletedIDs      []uuid.UUID
	ReassignedLinks int
	DryRun          bool
}

// MergedCount returns the number of loser records removed (or that would be
// removed, for a dry run).
func (r MergeResult) MergedCount() int {
	return len(r.DeletedIDs)
}
