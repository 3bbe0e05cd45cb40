// Package replay serves a previously written snapshot as an extractor
// catalog, so runs can be repeated offline against known data.
package replay

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ayounce80/sfmc-inv2/internal/cache"
	"github.com/ayounce80/sfmc-inv2/internal/inventory"
	"github.com/ayounce80/sfmc-inv2/internal/registry"
	"github.com/ayounce80/sfmc-inv2/internal/snapshot"
)

// MetaReplayedFrom records the snapshot directory a replayed result came from.
const MetaReplayedFrom = "replayed_from"

// Catalog implements inventory.Catalog over a snapshot directory. Every
// registered extractor is available; those without stored objects return an
// empty successful result.
type Catalog struct {
	snap   *snapshot.Snapshot
	reg    *registry.Registry
	edges  map[string][]inventory.Edge // by source type
	logger *zap.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Catalog) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New opens the snapshot in dir and indexes its stored relationships.
func New(dir string, reg *registry.Registry, opts ...Option) (*Catalog, error) {
	snap, err := snapshot.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	g, err := snap.Graph()
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot graph: %w", err)
	}

	c := &Catalog{
		snap:   snap,
		reg:    reg,
		edges:  make(map[string][]inventory.Edge),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, e := range g.Edges() {
		c.edges[e.SourceType] = append(c.edges[e.SourceType], e)
	}

	c.logger.Debug("snapshot opened for replay",
		zap.String("dir", dir),
		zap.String("run_id", snap.Manifest.Metadata.RunID),
		zap.Int("relationships", g.EdgeCount()))
	return c, nil
}

// Snapshot returns the underlying snapshot.
func (c *Catalog) Snapshot() *snapshot.Snapshot {
	return c.snap
}

// Names returns every extractor the registry knows.
func (c *Catalog) Names() []string {
	return c.reg.ExtractorNames()
}

// Extractor returns a replaying extractor. Replayed data already carries the
// account tags of the original run, so replay extractors never fan out.
func (c *Catalog) Extractor(name, accountID string) (inventory.Extractor, error) {
	def, ok := c.reg.ByExtractor(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", inventory.ErrUnknownExtractor, name)
	}
	return inventory.ExtractorFunc{
		ExtractorName: name,
		Fn: func(ctx context.Context, opts inventory.Options) (*inventory.ExtractorResult, error) {
			return c.extract(ctx, name, def.Name, opts)
		},
	}, nil
}

func (c *Catalog) extract(ctx context.Context, name, objectType string, opts inventory.Options) (*inventory.ExtractorResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	items, err := c.snap.Objects(name)
	if err != nil {
		return nil, err
	}

	res := inventory.NewResult(name)
	res.Items = items
	res.Relationships = append([]inventory.Edge(nil), c.edges[objectType]...)
	res.Success = true
	res.SetMeta(MetaReplayedFrom, c.snap.Dir)
	opts.Report("replay", len(items), len(items))
	res.Complete()

	c.logger.Debug("extractor replayed",
		zap.String("extractor", name),
		zap.Int("items", len(items)),
		zap.Int("relationships", len(res.Relationships)))
	return res, nil
}

// definitionExtractors maps definition caches to the extractor whose items
// fill them.
var definitionExtractors = map[cache.Type]string{
	cache.Queries:        "queries",
	cache.Scripts:        "scripts",
	cache.Emails:         "classic_emails",
	cache.TriggeredSends: "triggered_sends",
}

// CacheLoader returns a loader that fills lookup caches from the snapshot.
// Folder caches take the stored folders whose contentType maps to them;
// definition caches take the stored items of the matching extractor.
func (c *Catalog) CacheLoader() cache.Loader {
	return cache.LoaderFunc(func(ctx context.Context, t cache.Type) (map[string]map[string]any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if name, ok := definitionExtractors[t]; ok {
			items, err := c.snap.Objects(name)
			if err != nil {
				return nil, err
			}
			return byID(items, nil), nil
		}

		folders, err := c.snap.Objects("folders")
		if err != nil {
			return nil, err
		}
		return byID(folders, func(it inventory.Item) bool {
			return cache.FolderContentTypes[strings.ToLower(it.String("contentType"))] == t
		}), nil
	})
}

func byID(items []inventory.Item, keep func(inventory.Item) bool) map[string]map[string]any {
	out := make(map[string]map[string]any, len(items))
	for _, it := range items {
		if it.ID == "" || (keep != nil && !keep(it)) {
			continue
		}
		out[it.ID] = it.Map()
	}
	return out
}
