package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/helixir/identity-resolution-service/internal/domain"
)

// Request body limits.
const (
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
	maxMergeGroupSize  = 100
)

var validate = validator.New()

// resolveRequest is the JSON request body for resolving a candidate.
type resolveRequest struct {
	Name               string `json:"name" validate:"required"`
	Title              string `json:"title,omitempty"`
	Affiliation        string `json:"affiliation,omitempty"`
	PrimaryAffiliation string `json:"primary_affiliation,omitempty"`
	Bio                string `json:"bio,omitempty"`
}

// linkRequest is the JSON request body for linking a person to a context.
type linkRequest struct {
	Role          string                 `json:"role,omitempty"`
	ExtractedInfo map[string]interface{} `json:"extracted_info,omitempty"`
}

// mergeRequest is the JSON request body for merging one duplicate group.
type mergeRequest struct {
	MemberIDs []string `json:"member_ids" validate:"required,min=2"`
	DryRun    bool     `json:"dry_run,omitempty"`
}

// resolvePerson handles POST /api/v1/people/resolve.
// It matches the candidate against existing records or creates a new one.
func (s *Server) resolvePerson(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.resolver.Resolve(r.Context(), domain.Candidate{
		Name:               req.Name,
		Title:              req.Title,
		Affiliation:        req.Affiliation,
		PrimaryAffiliation: req.PrimaryAffiliation,
		Bio:                req.Bio,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, resolveResponse{
		Person:  domainPersonToResponse(res.Person),
		Created: res.Created,
	})
}

// getPerson handles GET /api/v1/people/{personID}.
func (s *Server) getPerson(w http.ResponseWriter, r *http.Request) {
	personID, ok := parseUUID(w, chi.URLParam(r, "personID"), "person_id")
	if !ok {
		return
	}

	person, links, err := s.resolver.GetPerson(r.Context(), personID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := personDetailResponse{
		Person: domainPersonToResponse(person),
		Links:  make([]linkResponse, len(links)),
	}
	for i, link := range links {
		resp.Links[i] = domainLinkToResponse(link)
	}
	writeJSON(w, http.StatusOK, resp)
}

// linkPerson handles PUT /api/v1/contexts/{contextID}/people/{personID}/link.
// The link is idempotent per (context, person) pair.
func (s *Server) linkPerson(w http.ResponseWriter, r *http.Request) {
	contextID := chi.URLParam(r, "contextID")
	personID, ok := parseUUID(w, chi.URLParam(r, "personID"), "person_id")
	if !ok {
		return
	}

	var req linkRequest
	if !decodeBody(w, r, &req) {
		return
	}

	link, err := s.resolver.LinkContext(r.Context(), contextID, personID, req.Role, req.ExtractedInfo)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, domainLinkToResponse(link))
}

// listDuplicates handles GET /api/v1/duplicates.
// It scans the whole population and reports every duplicate group.
func (s *Server) listDuplicates(w http.ResponseWriter, r *http.Request) {
	groups, err := s.finder.FindGroups(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := listDuplicatesResponse{
		Groups:     make([]duplicateGroupResponse, len(groups)),
		TotalCount: len(groups),
	}
	for i, group := range groups {
		resp.Groups[i] = domainGroupToResponse(group)
	}
	writeJSON(w, http.StatusOK, resp)
}

// mergeDuplicates handles POST /api/v1/duplicates/merge.
// With dry_run set, the response previews the merge without changing data.
func (s *Server) mergeDuplicates(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.MemberIDs) > maxMergeGroupSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("member_ids must have at most %d entries", maxMergeGroupSize))
		return
	}

	memberIDs := make([]uuid.UUID, len(req.MemberIDs))
	for i, raw := range req.MemberIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "member_ids must be valid UUIDs")
			return
		}
		memberIDs[i] = id
	}

	result, err := s.merger.MergeGroup(r.Context(), memberIDs, req.DryRun)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, domainMergeResultToResponse(result))
}

// decodeBody reads, unmarshals and validates a JSON request body. It writes
// an error response and returns false when the body is unusable.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}

	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}

	if err := validate.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid field: %s", fieldErrs[0].Field()))
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}

	return true
}

// writeDomainError maps domain errors to appropriate HTTP status codes and
// writes a JSON error response. Internal error details are not leaked to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var mergeErr *domain.MergeError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.As(err, &mergeErr) && errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "merge group member not found")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "resource already exists")
	case errors.As(err, &mergeErr):
		writeError(w, http.StatusConflict, "merge failed and was rolled back")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseUUID parses a UUID from a string, writing a 400 error response if invalid.
// The parse error details are not included to avoid echoing potentially malicious input.
func parseUUID(w http.ResponseWriter, s, fieldName string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a valid UUID", fieldName))
		return uuid.Nil, false
	}
	return id, true
}
