package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/identity-resolution-service/internal/domain"
)

// TestWriteDomainError_StatusMapping verifies the mapping from domain errors
// to HTTP status codes and that raw error text from dependencies is never
// reflected to clients.
func TestWriteDomainError_StatusMapping(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "validation error surfaces field message",
			err:            domain.NewValidationError("name", "must not be blank"),
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "validation error: name: must not be blank",
		},
		{
			name:           "not found",
			err:            domain.NewNotFoundError("person", uuid.NewString()),
			expectedStatus: http.StatusNotFound,
			expectedBody:   "resource not found",
		},
		{
			name:           "already exists",
			err:            domain.NewAlreadyExistsError("person", "jane smith"),
			expectedStatus: http.StatusConflict,
			expectedBody:   "resource already exists",
		},
		{
			name: "merge failure with missing member",
			err: &domain.MergeError{
				GroupIDs: []uuid.UUID{uuid.New(), uuid.New()},
				Cause:    domain.NewNotFoundError("person", uuid.NewString()),
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   "merge group member not found",
		},
		{
			name: "merge failure rolled back",
			err: &domain.MergeError{
				GroupIDs: []uuid.UUID{uuid.New(), uuid.New()},
				Cause:    fmt.Errorf("delete merged records: 1 of 2 rows deleted"),
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   "merge failed and was rolled back",
		},
		{
			name:           "generic error with DB details",
			err:            fmt.Errorf("FATAL: password authentication failed for user \"admin\""),
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   "internal server error",
		},
		{
			name:           "wrapped driver error",
			err:            fmt.Errorf("repository: %w", fmt.Errorf("pgx: connection refused to 10.0.0.5:5432")),
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   "internal server error",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeDomainError(rr, tc.err)

			assert.Equal(t, tc.expectedStatus, rr.Code)

			var resp map[string]string
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.Equal(t, tc.expectedBody, resp["error"])
		})
	}
}

// TestWriteDomainError_NilIsNoOp verifies that a nil error produces no
// response at all.
func TestWriteDomainError_NilIsNoOp(t *testing.T) {
	rr := httptest.NewRecorder()
	writeDomainError(rr, nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Body.String())
}

// TestWriteDomainError_NeverLeaksInternalDetails checks that internal error
// fragments (hosts, credentials, file paths) never appear in response bodies.
func TestWriteDomainError_NeverLeaksInternalDetails(t *testing.T) {
	sensitiveErrors := []struct {
		name      string
		err       error
		forbidden []string
	}{
		{
			name:      "postgres connection refused",
			err:       fmt.Errorf("pgx: connection refused to 10.0.0.5:5432"),
			forbidden: []string{"pgx", "connection refused", "10.0.0.5", "5432"},
		},
		{
			name:      "authentication failure",
			err:       fmt.Errorf("password authentication failed for user \"idres_user\""),
			forbidden: []string{"password", "idres_user", "authentication"},
		},
		{
			name:      "file path leak",
			err:       fmt.Errorf("open /etc/secrets/db_password: no such file or directory"),
			forbidden: []string{"/etc/secrets", "db_password"},
		},
	}

	for _, tc := range sensitiveErrors {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeDomainError(rr, tc.err)

			body := rr.Body.String()
			for _, fragment := range tc.forbidden {
				assert.NotContains(t, body, fragment)
			}
		})
	}
}

// TestJSONContentType verifies that API responses carry the JSON content type.
func TestJSONContentType(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/duplicates", nil)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)

	assert.True(t, strings.Contains(rr.Header().Get("Content-Type"), "application/json"))
}
