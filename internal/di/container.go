// Package di provides dependency injection configuration for the Libris server.
package di

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/libris/libris-server/internal/api"
	"github.com/libris/libris-server/internal/auth"
	"github.com/libris/libris-server/internal/config"
	"github.com/libris/libris-server/internal/di/providers"
	"github.com/libris/libris-server/internal/logger"
	"github.com/libris/libris-server/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	registerCore(injector)

	// Server
	do.Provide(injector, providers.ProvideAuthRateLimiter)
	do.Provide(injector, providers.ProvideAuditPruneJob)
	do.Provide(injector, providers.ProvideAPIServer)
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// NewToolContainer creates a container with the store and services but no
// HTTP server or background jobs, around an already loaded config and logger.
// Used by the operator CLI.
func NewToolContainer(cfg *config.Config, log *logger.Logger) *do.RootScope {
	injector := do.New()
	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, log)
	registerCore(injector)
	return injector
}

func registerCore(injector do.Injector) {
	do.Provide(injector, providers.ProvideAuthKey)

	// Persistence
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideSearchIndex)
	do.Provide(injector, providers.ProvideAuditLog)

	// Auth layer
	do.Provide(injector, providers.ProvideTokenService)

	// Business services
	do.Provide(injector, providers.ProvideCatalogService)
	do.Provide(injector, providers.ProvideLedgerService)
	do.Provide(injector, providers.ProvideReaderService)
	do.Provide(injector, providers.ProvideAuthService)
}

// Bootstrap initializes all services and starts the HTTP server.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	// Invoke core services to trigger initialization
	cfg := do.MustInvoke[*config.Config](injector)
	log := do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[providers.AuthKey](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*providers.SearchIndexHandle](injector)
	_ = do.MustInvoke[*providers.AuditLogHandle](injector)
	_ = do.MustInvoke[*auth.TokenService](injector)

	// Business services
	_ = do.MustInvoke[*service.CatalogService](injector)
	_ = do.MustInvoke[*service.LedgerService](injector)
	_ = do.MustInvoke[*service.ReaderService](injector)
	authService := do.MustInvoke[*service.AuthService](injector)

	configured, err := authService.IsConfigured(context.Background())
	if err != nil {
		return err
	}
	if configured {
		log.Info("Server is configured and ready")
	} else {
		log.Warn("Server needs setup - no admin account exists",
			"setup_path", cfg.Server.APIPrefix+"/"+api.APIVersion+"/auth/setup",
		)
	}

	// Workers
	_ = do.MustInvoke[*providers.AuthRateLimiterHandle](injector)
	_ = do.MustInvoke[*providers.AuditPruneJob](injector)

	// Server
	_ = do.MustInvoke[*api.Server](injector)
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	// Trigger search reindex if needed
	providers.TriggerSearchReindexIfNeeded(injector)

	return nil
}
