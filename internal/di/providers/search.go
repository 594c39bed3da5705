package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/libris/libris-server/internal/config"
	"github.com/libris/libris-server/internal/logger"
	"github.com/libris/libris-server/internal/search"
	"github.com/libris/libris-server/internal/service"
)

// SearchIndexHandle wraps the search index with shutdown capability.
// BookIndex is nil when search is disabled.
type SearchIndexHandle struct {
	*search.BookIndex
}

// Shutdown implements do.Shutdownable.
func (h *SearchIndexHandle) Shutdown() error {
	if h.BookIndex == nil {
		return nil
	}
	return h.Close()
}

// Index returns the index for the catalog service, or a nil interface when disabled.
func (h *SearchIndexHandle) Index() service.BookIndex {
	if h.BookIndex == nil {
		return nil
	}
	return h.BookIndex
}

// ProvideSearchIndex provides the Bleve book index.
func ProvideSearchIndex(i do.Injector) (*SearchIndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.Search.Enabled {
		log.Info("Search index disabled by configuration")
		return &SearchIndexHandle{}, nil
	}

	index, err := search.NewBookIndex(search.Options{
		DataPath: cfg.SearchIndexPath(),
		Logger:   log.Logger,
	})
	if err != nil {
		return nil, err
	}

	docCount, _ := index.DocumentCount()
	log.Info("Search index initialized", "documents", docCount)

	return &SearchIndexHandle{BookIndex: index}, nil
}

// TriggerSearchReindexIfNeeded rebuilds an empty index when the catalog has books.
// Should be called after all services are wired.
func TriggerSearchReindexIfNeeded(i do.Injector) {
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	if indexHandle.BookIndex == nil {
		return
	}
	storeHandle := do.MustInvoke[*StoreHandle](i)
	catalog := do.MustInvoke[*service.CatalogService](i)
	log := do.MustInvoke[*logger.Logger](i)

	docCount, _ := indexHandle.DocumentCount()
	if docCount > 0 {
		return
	}

	ctx := context.Background()
	books, err := storeHandle.CountBooks(ctx)
	if err != nil || books == 0 {
		return
	}

	log.Info("Search index is empty but books exist, triggering initial reindex",
		"book_count", books,
	)

	go func() {
		n, err := catalog.RebuildIndex(context.Background())
		if err != nil {
			log.Error("Initial search reindex failed", "error", err, "indexed", n)
			return
		}
		log.Info("Initial search reindex completed", "documents", n)
	}()
}
