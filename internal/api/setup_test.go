package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/require"

	"github.com/libris/libris-server/internal/audit"
	"github.com/libris/libris-server/internal/auth"
	"github.com/libris/libris-server/internal/domain"
	"github.com/libris/libris-server/internal/ratelimit"
	"github.com/libris/libris-server/internal/search"
	"github.com/libris/libris-server/internal/service"
	"github.com/libris/libris-server/internal/store/sqlite"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const testPassword = "correct-horse-battery"

// testEnvelope decodes any response envelope.
type testEnvelope[T any] struct {
	Version int    `json:"v"`
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details"`
}

// testServer wraps the API server with everything behind it.
type testServer struct {
	*Server
	api   humatest.TestAPI
	store *sqlite.Store
	index *search.BookIndex
	audit *audit.Log
}

// setupTestServer creates a server over a temp-dir SQLite store, an in-memory
// search index, and an in-memory audit log. opts may adjust the options.
func setupTestServer(t *testing.T, opts ...func(*Options)) *testServer {
	t.Helper()

	st, err := sqlite.Open(filepath.Join(t.TempDir(), "libris.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	index, err := search.NewBookIndex(search.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	auditLog, err := audit.Open(audit.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = auditLog.Close() })

	tokens, err := auth.NewTokenService(bytes.Repeat([]byte{3}, 32), time.Hour)
	require.NoError(t, err)

	limiter := ratelimit.New(1000, 1000)
	t.Cleanup(limiter.Stop)

	services := &Services{
		Catalog: service.NewCatalogService(st, index, nil),
		Ledger:  service.NewLedgerService(st, nil),
		Readers: service.NewReaderService(st, nil),
		Auth:    service.NewAuthService(st, tokens, domain.DefaultQuota, nil),
	}

	o := Options{
		APIPrefix:   "/api",
		CORSOrigins: []string{"*"},
		Audit:       auditLog,
		Search:      index,
		AuthLimiter: limiter,
	}
	for _, fn := range opts {
		fn(&o)
	}

	s := NewServer(st, services, o, nil)
	return &testServer{
		Server: s,
		api:    humatest.Wrap(t, s.API()),
		store:  st,
		index:  index,
		audit:  auditLog,
	}
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) testEnvelope[T] {
	t.Helper()
	var env testEnvelope[T]
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env), resp.Body.String())
	return env
}

// postFrom sends a JSON POST from the given peer address.
func (ts *testServer) postFrom(t *testing.T, remoteAddr, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.RemoteAddr = remoteAddr
	req.Header.Set("Content-Type", "application/json")
	for _, h := range headers {
		name, value, _ := strings.Cut(h, ":")
		req.Header.Set(name, strings.TrimSpace(value))
	}
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) string {
	return "Authorization: Bearer " + token
}

// setupAdmin runs first-time setup and returns the admin's token.
func (ts *testServer) setupAdmin(t *testing.T) string {
	t.Helper()
	resp := ts.api.Post("/api/v1/auth/setup", map[string]any{
		"username": "root",
		"password": testPassword,
	})
	require.Equal(t, 200, resp.Code, resp.Body.String())
	return decode[service.AuthResult](t, resp).Data.Token
}

// registerReader registers a reader and returns their id and token.
func (ts *testServer) registerReader(t *testing.T, username string) (string, string) {
	t.Helper()
	resp := ts.api.Post("/api/v1/auth/register", map[string]any{
		"username": username,
		"password": testPassword,
		"role":     "reader",
	})
	require.Equal(t, 201, resp.Code, resp.Body.String())
	readerID := decode[domain.Principal](t, resp).Data.Reader.ID

	return readerID, ts.login(t, username, "reader")
}

func (ts *testServer) login(t *testing.T, username, role string) string {
	t.Helper()
	resp := ts.api.Post("/api/v1/auth/login", map[string]any{
		"username": username,
		"password": testPassword,
		"role":     role,
	})
	require.Equal(t, 200, resp.Code, resp.Body.String())
	return decode[service.AuthResult](t, resp).Data.Token
}

// seedBook creates a genre, an author, and a book by them, and returns the book.
func (ts *testServer) seedBook(t *testing.T, token, name string, copies int) *domain.Book {
	t.Helper()
	ts.api.Post("/api/v1/genres", bearer(token), map[string]any{"names": []string{"Science Fiction"}})
	ts.api.Post("/api/v1/authors", bearer(token), map[string]any{"username": "Frank Herbert"})

	resp := ts.api.Post("/api/v1/books", bearer(token), map[string]any{
		"name":            name,
		"count_available": copies,
		"author_names":    []string{"Frank Herbert"},
		"genre_names":     []string{"science fiction"},
	})
	require.Equal(t, 201, resp.Code, resp.Body.String())
	book := decode[domain.Book](t, resp).Data
	return &book
}
