// Package api exposes the catalog and lending engine over HTTP.
//
// Operations are registered with huma on a chi router. Every response body is
// wrapped in a versioned envelope (see EnvelopeTransformer) and every domain
// error is rendered through RegisterErrorHandler.
package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/libris/libris-server/internal/audit"
	"github.com/libris/libris-server/internal/ratelimit"
	"github.com/libris/libris-server/internal/service"
	"github.com/libris/libris-server/internal/store"
)

// APIVersion is the version segment every operation path carries.
const APIVersion = "v1"

// Services holds the services the handlers call into.
type Services struct {
	Catalog *service.CatalogService
	Ledger  *service.LedgerService
	Readers *service.ReaderService
	Auth    *service.AuthService
}

// SearchIndex is the part of the book index the health check looks at.
type SearchIndex interface {
	DocumentCount() (uint64, error)
}

// Options configures the optional parts of the server.
type Options struct {
	APIPrefix     string   // Path prefix in front of /v1, e.g. "/api"
	CORSOrigins   []string // Allowed origins; empty allows none
	SecureCookies bool     // Mark the access_token cookie Secure
	TrustProxy    bool     // Client address comes from forwarding headers

	Audit       *audit.Log                  // Nil disables request auditing
	Search      SearchIndex                 // Nil reports search as disabled
	AuthLimiter *ratelimit.KeyedRateLimiter // Nil disables auth throttling
}

// Server is the HTTP server.
type Server struct {
	store           store.Store
	services        *Services
	router          *chi.Mux
	api             huma.API
	logger          *slog.Logger
	audit           *audit.Log
	search          SearchIndex
	authRateLimiter *ratelimit.KeyedRateLimiter
	prefix          string
	secureCookies   bool
	trustProxy      bool
}

// NewServer creates the HTTP server with every route registered.
func NewServer(st store.Store, services *Services, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{
		store:           st,
		services:        services,
		router:          chi.NewRouter(),
		logger:          logger,
		audit:           opts.Audit,
		search:          opts.Search,
		authRateLimiter: opts.AuthLimiter,
		prefix:          strings.TrimRight(opts.APIPrefix, "/") + "/" + APIVersion,
		secureCookies:   opts.SecureCookies,
		trustProxy:      opts.TrustProxy,
	}

	// Middleware must be in place before humachi mounts its first route.
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestIDMiddleware)
	s.router.Use(corsMiddleware(opts.CORSOrigins))
	s.router.Use(s.authMiddleware)
	s.router.Use(s.recordRequest)

	humaConfig := huma.DefaultConfig("Libris API", "1.0.0")
	humaConfig.Info.Description = "Library catalog and lending service"
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)

	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()
	s.router.NotFound(notFound)

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.registerHealthRoutes()
	s.registerAuthRoutes()
	s.registerBookRoutes()
	s.registerAuthorRoutes()
	s.registerGenreRoutes()
	s.registerReaderRoutes()
	s.registerLoanRoutes()
	s.registerAdminRoutes()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API returns the underlying huma API, e.g. to dump the OpenAPI document.
func (s *Server) API() huma.API {
	return s.api
}

// path returns the full route for an operation path such as "/books".
func (s *Server) path(p string) string {
	return s.prefix + p
}

// bearerAuth marks an operation as requiring an access token in the OpenAPI document.
var bearerAuth = []map[string][]string{{"bearer": {}}}
