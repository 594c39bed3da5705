package providers

import (
	"github.com/samber/do/v2"

	"github.com/libris/libris-server/internal/auth"
	"github.com/libris/libris-server/internal/config"
	"github.com/libris/libris-server/internal/logger"
	"github.com/libris/libris-server/internal/service"
)

// ProvideCatalogService provides the catalog service.
func ProvideCatalogService(i do.Injector) (*service.CatalogService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewCatalogService(storeHandle.Store, indexHandle.Index(), log.Logger), nil
}

// ProvideLedgerService provides the loan ledger.
func ProvideLedgerService(i do.Injector) (*service.LedgerService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewLedgerService(storeHandle.Store, log.Logger), nil
}

// ProvideReaderService provides the reader administration service.
func ProvideReaderService(i do.Injector) (*service.ReaderService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewReaderService(storeHandle.Store, log.Logger), nil
}

// ProvideAuthService provides the account and login service.
func ProvideAuthService(i do.Injector) (*service.AuthService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	tokens := do.MustInvoke[*auth.TokenService](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewAuthService(storeHandle.Store, tokens, cfg.Lending.DefaultQuota, log.Logger), nil
}
