package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-release-gate/internal/domain"
)

func TestWriteError_SentinelMapping(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "invalid_argument", err: fmt.Errorf("%w: bad input", domain.ErrInvalidArgument), wantStatus: 400, wantCode: "INVALID_ARGUMENT"},
		{name: "not_found", err: fmt.Errorf("job: %w", domain.ErrNotFound), wantStatus: 404, wantCode: "NOT_FOUND"},
		{name: "conflict", err: fmt.Errorf("decision: %w", domain.ErrConflict), wantStatus: 409, wantCode: "CONFLICT"},
		{name: "rate_limited", err: domain.ErrRateLimited, wantStatus: 429, wantCode: "RATE_LIMITED"},
		{name: "upstream_timeout", err: fmt.Errorf("llm: %w", domain.ErrUpstreamTimeout), wantStatus: 503, wantCode: "UPSTREAM_TIMEOUT"},
		{name: "no_providers", err: domain.ErrNoProviders, wantStatus: 503, wantCode: "NO_PROVIDERS"},
		{name: "unknown_is_internal", err: errors.New("surprise"), wantStatus: 500, wantCode: "INTERNAL"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/x", nil)
			writeError(rec, r, tc.err, nil)

			require.Equal(t, tc.wantStatus, rec.Code)
			var env errorEnvelope
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
			assert.Equal(t, tc.wantCode, env.Error.Code)
			assert.Equal(t, tc.err.Error(), env.Error.Message)
		})
	}
}

func TestWriteError_CarriesDetails(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	writeError(rec, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), map[string]string{"author": "required"})

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	details := body["error"].(map[string]any)["details"].(map[string]any)
	assert.Equal(t, "required", details["author"])
}

func TestWriteJSON_SetsContentType(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusCreated, map[string]string{"k": "v"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestWriteUnauthorized(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	writeUnauthorized(rec, "invalid signature")

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var env errorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
	assert.Equal(t, "invalid signature", env.Error.Message)
}
