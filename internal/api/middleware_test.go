package api

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libris/libris-server/internal/audit"
	"github.com/libris/libris-server/internal/domain"
)

func TestRequestID(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/genres")
	require.Equal(t, http.StatusOK, resp.Code)
	generated := resp.Header().Get(requestIDHeader)
	assert.Regexp(t, `^req-`, generated)

	resp = ts.api.Get("/api/v1/genres", requestIDHeader+": trace-42")
	assert.Equal(t, "trace-42", resp.Header().Get(requestIDHeader))

	resp = ts.api.Get("/api/v1/genres", requestIDHeader+": not valid!")
	assert.NotEqual(t, "not valid!", resp.Header().Get(requestIDHeader))
}

func TestValidRequestID(t *testing.T) {
	tests := map[string]bool{
		"":                      false,
		"abc-123_XYZ":           true,
		"has space":             false,
		"semi;colon":            false,
		strings.Repeat("a", 65): false,
	}
	for in, want := range tests {
		assert.Equal(t, want, validRequestID(in), "%q", in)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name                      string
		trustProxy                bool
		forwarded, realIP, remote string
		want                      string
	}{
		{"headers ignored without proxy", false, "203.0.113.5", "198.51.100.7", "10.0.0.3:1234", "10.0.0.3"},
		{"forwarded first hop", true, "203.0.113.5, 10.0.0.1", "10.0.0.2", "10.0.0.3:1234", "203.0.113.5"},
		{"real ip", true, "", " 198.51.100.7 ", "10.0.0.3:1234", "198.51.100.7"},
		{"blank forwarded falls through", true, " , 10.0.0.1", "", "10.0.0.3:1234", "10.0.0.3"},
		{"peer without port", true, "", "", "192.0.2.1:5555", "192.0.2.1"},
		{"peer unparsable", false, "", "", "pipe", "pipe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Server{trustProxy: tt.trustProxy}
			assert.Equal(t, tt.want, s.clientIP(tt.forwarded, tt.realIP, tt.remote))
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/nowhere")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	env := decode[any](t, resp)
	assert.False(t, env.Success)
	assert.Equal(t, "NOT_FOUND", env.Code)
	assert.Equal(t, EnvelopeVersion, env.Version)
}

func TestAudit_RecordsRequests(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.setupAdmin(t)

	resp := ts.api.Get("/api/v1/genres?x=1", bearer(token), requestIDHeader+": audit-me")
	require.Equal(t, http.StatusOK, resp.Code)

	records, err := ts.audit.List(context.Background(), 10)
	require.NoError(t, err)
	require.NotEmpty(t, records)

	var found *audit.Record
	for _, r := range records {
		if r.RequestID == "audit-me" {
			found = r
		}
	}
	require.NotNil(t, found, "request was audited")
	assert.Equal(t, http.MethodGet, found.Method)
	assert.Equal(t, "/api/v1/genres", found.Path)
	assert.Equal(t, "x=1", found.Query)
	assert.Equal(t, http.StatusOK, found.Status)
	assert.Equal(t, string(domain.RoleAdmin), found.ActorRole)
	assert.NotEmpty(t, found.ActorID)
}

func TestListAudit(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.setupAdmin(t)
	_, readerToken := ts.registerReader(t, "alice")

	resp := ts.api.Get("/api/v1/admin/audit", bearer(readerToken))
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = ts.api.Get("/api/v1/admin/audit?limit=2", bearer(token))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	records := decode[[]audit.Record](t, resp).Data
	require.Len(t, records, 2)
	assert.Equal(t, http.StatusForbidden, records[0].Status, "newest first")

	resp = ts.api.Get("/api/v1/admin/audit?limit=0", bearer(token))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestListAudit_Disabled(t *testing.T) {
	ts := setupTestServer(t, func(o *Options) { o.Audit = nil })
	token := ts.setupAdmin(t)

	resp := ts.api.Get("/api/v1/admin/audit", bearer(token))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestHealth(t *testing.T) {
	ts := setupTestServer(t)
	token := ts.setupAdmin(t)
	ts.seedBook(t, token, "Dune", 1)

	resp := ts.api.Get("/api/v1/health")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	health := decode[HealthResponse](t, resp).Data
	assert.Equal(t, statusHealthy, health.Status)
	assert.Equal(t, statusHealthy, health.Components["database"].Status)
	assert.Equal(t, statusHealthy, health.Components["audit"].Status)
	assert.Equal(t, "1 book indexed", health.Components["search"].Message)
}

func TestHealth_OptionalComponentsDisabled(t *testing.T) {
	ts := setupTestServer(t, func(o *Options) {
		o.Audit = nil
		o.Search = nil
	})

	resp := ts.api.Get("/api/v1/health")
	require.Equal(t, http.StatusOK, resp.Code)

	health := decode[HealthResponse](t, resp).Data
	assert.Equal(t, statusHealthy, health.Status)
	assert.Equal(t, statusDisabled, health.Components["search"].Status)
	assert.Equal(t, statusDisabled, health.Components["audit"].Status)
}

func TestHealth_DatabaseDown(t *testing.T) {
	ts := setupTestServer(t)
	require.NoError(t, ts.store.Close())

	resp := ts.api.Get("/api/v1/health")
	require.Equal(t, http.StatusOK, resp.Code)
	health := decode[HealthResponse](t, resp).Data
	assert.Equal(t, statusUnhealthy, health.Status)
	assert.Equal(t, statusUnhealthy, health.Components["database"].Status)
}

func TestFormatDocCount(t *testing.T) {
	assert.Equal(t, "0 books indexed", formatDocCount(0))
	assert.Equal(t, "1 book indexed", formatDocCount(1))
	assert.Equal(t, "12 books indexed", formatDocCount(12))
}
