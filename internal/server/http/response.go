package httpserver

import (
	"time"

	"github.com/helixir/identity-resolution-service/internal/dedup"
	"github.com/helixir/identity-resolution-service/internal/domain"
)

// Response types for JSON serialization.

type personResponse struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Title              string    `json:"title,omitempty"`
	Affiliation        string    `json:"affiliation,omitempty"`
	PrimaryAffiliation string    `json:"primary_affiliation,omitempty"`
	Bio                string    `json:"bio,omitempty"`
	FirstSeen          time.Time `json:"first_seen"`
	LastUpdated        time.Time `json:"last_updated"`
}

type linkResponse struct {
	ID            string                 `json:"id"`
	ContextID     string                 `json:"context_id"`
	PersonID      string                 `json:"person_id"`
	Role          string                 `json:"role,omitempty"`
	ExtractedInfo map[string]interface{} `json:"extracted_info,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

type resolveResponse struct {
	Person  personResponse `json:"person"`
	Created bool           `json:"created"`
}

type personDetailResponse struct {
	Person personResponse `json:"person"`
	Links  []linkResponse `json:"links"`
}

type duplicateGroupResponse struct {
	Key     string           `json:"key"`
	Members []personResponse `json:"members"`
}

type listDuplicatesResponse struct {
	Groups     []duplicateGroupResponse `json:"groups"`
	TotalCount int                      `json:"total_count"`
}

type mergeResultResponse struct {
	PrimaryID       string   `json:"primary_id"`
	DeletedIDs      []string `json:"deleted_ids"`
	ReassignedLinks int      `json:"reassigned_links"`
	DryRun          bool     `json:"dry_run"`
}

// Converter functions

func domainPersonToResponse(p *domain.Person) personResponse {
	return personResponse{
		ID:                 p.ID.String(),
		Name:               p.Name,
		Title:              p.Title,
		Affiliation:        p.Affiliation,
		PrimaryAffiliation: p.PrimaryAffiliation,
		Bio:                p.Bio,
		FirstSeen:          p.FirstSeen,
		LastUpdated:        p.LastUpdated,
	}
}

func domainLinkToResponse(l *domain.ContextLink) linkResponse {
	return linkResponse{
		ID:            l.ID.String(),
		ContextID:     l.ContextID,
		PersonID:      l.PersonID.String(),
		Role:          l.Role,
		ExtractedInfo: l.ExtractedInfo,
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
	}
}

func domainGroupToResponse(g dedup.Group) duplicateGroupResponse {
	members := make([]personResponse, len(g.Members))
	for i, m := range g.Members {
		members[i] = domainPersonToResponse(m)
	}
	return duplicateGroupResponse{
		Key:     g.Key,
		Members: members,
	}
}

func domainMergeResultToResponse(r *domain.MergeResult) mergeResultResponse {
	deleted := make([]string, len(r.DeletedIDs))
	for i, id := range r.DeletedIDs {
		deleted[i] = id.String()
	}
	return mergeResultResponse{
		PrimaryID:       r.PrimaryID.String(),
		DeletedIDs:      deleted,
		ReassignedLinks: r.ReassignedLinks,
		DryRun:          r.DryRun,
	}
}
