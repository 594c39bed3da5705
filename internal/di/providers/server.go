package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/libris/libris-server/internal/api"
	"github.com/libris/libris-server/internal/config"
	"github.com/libris/libris-server/internal/logger"
	"github.com/libris/libris-server/internal/service"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideAPIServer provides the HTTP handler with every route registered.
func ProvideAPIServer(i do.Injector) (*api.Server, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	auditHandle := do.MustInvoke[*AuditLogHandle](i)
	limiter := do.MustInvoke[*AuthRateLimiterHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	services := &api.Services{
		Catalog: do.MustInvoke[*service.CatalogService](i),
		Ledger:  do.MustInvoke[*service.LedgerService](i),
		Readers: do.MustInvoke[*service.ReaderService](i),
		Auth:    do.MustInvoke[*service.AuthService](i),
	}

	opts := api.Options{
		APIPrefix:     cfg.Server.APIPrefix,
		CORSOrigins:   cfg.Server.CORSOrigins,
		SecureCookies: cfg.App.Environment == "production",
		TrustProxy:    cfg.Server.TrustProxy,
		Audit:         auditHandle.Log,
		AuthLimiter:   limiter.KeyedRateLimiter,
	}
	// A nil *search.BookIndex must not become a non-nil interface.
	if indexHandle.BookIndex != nil {
		opts.Search = indexHandle.BookIndex
	}

	return api.NewServer(storeHandle.Store, services, opts, log.Logger), nil
}

// ProvideHTTPServer provides the HTTP server and starts it in the background.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	handler := do.MustInvoke[*api.Server](i)
	log := do.MustInvoke[*logger.Logger](i)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr, "api_prefix", cfg.Server.APIPrefix)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv}, nil
}
