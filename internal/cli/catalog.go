package cli

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/ayounce80/sfmc-inv2/internal/cache"
	"github.com/ayounce80/sfmc-inv2/internal/config"
	"github.com/ayounce80/sfmc-inv2/internal/inventory"
)

// ErrNoCatalog is returned by live runs when no extractor catalog has been
// registered. Snapshot replays do not need one.
var ErrNoCatalog = errors.New("no live extractor catalog registered; use --from-snapshot")

// CatalogFactory builds the live extractor catalog and the loader behind its
// lookup caches for one configuration. The loader may be nil.
type CatalogFactory func(cfg *config.Config, logger *zap.Logger) (inventory.Catalog, cache.Loader, error)

var (
	catalogMu   sync.RWMutex
	liveCatalog CatalogFactory
)

// RegisterCatalog installs the factory used by live runs. Binaries that link
// API extractors call it before Execute.
func RegisterCatalog(f CatalogFactory) {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	liveCatalog = f
}

func registeredCatalog() CatalogFactory {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	return liveCatalog
}
