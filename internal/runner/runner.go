package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ayounce80/sfmc-inv2/internal/cache"
	"github.com/ayounce80/sfmc-inv2/internal/graph"
	"github.com/ayounce80/sfmc-inv2/internal/inventory"
	"github.com/ayounce80/sfmc-inv2/internal/planner"
	"github.com/ayounce80/sfmc-inv2/internal/ratelimit"
	"github.com/ayounce80/sfmc-inv2/internal/registry"
)

// MetaCacheOnly marks results that ran only to feed dependents.
const MetaCacheOnly = "cache_only"

// CacheWarmer preloads lookup caches before a layer's extractors start.
type CacheWarmer interface {
	Warm(ctx context.Context, types []cache.Type) map[cache.Type]bool
}

// Runner executes extractors from a catalog, honoring type dependencies and
// fanning multi-account extractors out across child accounts.
type Runner struct {
	reg      *registry.Registry
	catalog  inventory.Catalog
	planner  *planner.Planner
	config   Config
	limiter  *ratelimit.Limiter
	accounts *ratelimit.Limiter
	observer ProgressObserver
	warmer   CacheWarmer
	logger   *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

func WithConfig(cfg Config) Option {
	return func(r *Runner) { r.config = cfg }
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithObserver(o ProgressObserver) Option {
	return func(r *Runner) {
		if o != nil {
			r.observer = o
		}
	}
}

func WithCacheWarmer(w CacheWarmer) Option {
	return func(r *Runner) { r.warmer = w }
}

// WithLimiter sets the limiter handed to extractors for their API calls.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(r *Runner) { r.limiter = l }
}

// New creates a runner. Extractor names resolve through catalog; type
// dependencies come from reg.
func New(reg *registry.Registry, catalog inventory.Catalog, opts ...Option) *Runner {
	r := &Runner{
		reg:      reg,
		catalog:  catalog,
		config:   DefaultConfig(),
		observer: NoOpObserver{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.limiter == nil {
		r.limiter = ratelimit.New(
			ratelimit.WithMaxConcurrent(r.config.MaxConcurrentRequests),
			ratelimit.WithBaseDelay(r.config.BaseDelay),
			ratelimit.WithMaxDelay(r.config.MaxDelay),
			ratelimit.WithLogger(r.logger),
		)
	}
	// Account fan-out is paced separately so an extractor holding a fan-out
	// slot never competes with its own API calls.
	r.accounts = ratelimit.New(
		ratelimit.WithMaxConcurrent(max(1, r.config.MaxConcurrentExtractors)),
		ratelimit.WithBaseDelay(r.config.BaseDelay),
		ratelimit.WithMaxDelay(r.config.MaxDelay),
		ratelimit.WithLogger(r.logger),
	)
	r.planner = planner.New(reg,
		planner.WithIncludeDependencies(r.config.IncludeDependencies),
		planner.WithLogger(r.logger))

	return r
}

// Plan returns the extraction plan for requested.
func (r *Runner) Plan(requested []string) *planner.Plan {
	return r.planner.Plan(requested)
}

// ExtractionOrder returns every extractor the plan for requested would run, in order.
func (r *Runner) ExtractionOrder(requested []string) []string {
	return r.planner.ExtractionOrder(requested)
}

// Run executes the requested extractors and builds the relationship graph.
//
// With the planner enabled, dependencies are added as cache-only steps and
// extractors run layer by layer; otherwise all requested extractors start at
// once. Extractor failures never abort the run. If ctx is cancelled, Run
// returns the partial result together with ctx.Err().
func (r *Runner) Run(ctx context.Context, requested []string) (*Result, error) {
	result := newResult(requested)
	cacheOnly := r.cacheOnlyNames()

	var layers [][]string
	if r.config.UsePlanner {
		plan := r.planner.Plan(requested)
		result.Plan = plan
		for _, name := range plan.CacheOnlyExtractorNames() {
			cacheOnly[name] = true
		}
		layers = r.layers(plan)

		r.logger.Info("using extraction plan",
			zap.Int("steps", len(plan.Steps)),
			zap.Int("output", len(plan.OutputExtractorNames())),
			zap.Int("cache_only", len(plan.CacheOnlyExtractorNames())),
			zap.Int("layers", len(layers)))
	} else if names := dedupe(requested); len(names) > 0 {
		layers = [][]string{names}
	}

	r.observer.OnRunStart(layers)
	for _, layer := range layers {
		for _, name := range layer {
			r.observer.OnExtractorState(name, StatePending, 0, 0)
		}
	}

	completed := r.execute(ctx, layers)

	var edges []inventory.Edge
	for _, layer := range layers {
		for _, name := range layer {
			res, ok := completed[name]
			if !ok {
				res = cancelledResult(name)
				r.observer.OnExtractorState(name, StateFailed, 0, 0)
			}
			if cacheOnly[name] {
				res.SetMeta(MetaCacheOnly, true)
				r.logger.Debug("extractor completed (cache-only)", zap.String("extractor", name))
			} else {
				result.Results[name] = res
			}
			edges = append(edges, res.Relationships...)
		}
	}
	if err := result.Graph.AddEdges(edges); err != nil {
		return nil, fmt.Errorf("failed to merge relationships: %w", err)
	}

	r.finalize(result)
	r.observer.OnRunComplete(result)

	r.logger.Info("run complete",
		zap.String("run_id", result.RunID.String()),
		zap.Int("extractors", len(result.Results)),
		zap.Int("relationships", result.Graph.EdgeCount()),
		zap.Duration("duration", result.Duration()))

	return result, ctx.Err()
}

// RunSequential runs names one at a time in the given order, without the
// planner. Every name is recorded in the result.
func (r *Runner) RunSequential(ctx context.Context, names []string) (*Result, error) {
	result := newResult(names)
	names = dedupe(names)
	r.observer.OnRunStart([][]string{names})

	var edges []inventory.Edge
	for _, name := range names {
		var res *inventory.ExtractorResult
		if ctx.Err() != nil {
			res = cancelledResult(name)
			r.observer.OnExtractorState(name, StateFailed, 0, 0)
		} else {
			res = r.runTask(ctx, name)
		}
		result.Results[name] = res
		edges = append(edges, res.Relationships...)
	}
	if err := result.Graph.AddEdges(edges); err != nil {
		return nil, fmt.Errorf("failed to merge relationships: %w", err)
	}

	r.finalize(result)
	r.observer.OnRunComplete(result)
	return result, ctx.Err()
}

// layers converts the plan's type layers into extractor names.
func (r *Runner) layers(plan *planner.Plan) [][]string {
	var out [][]string
	for _, types := range r.planner.Layers(plan.TypeNames()) {
		var names []string
		for _, t := range types {
			if step, ok := plan.Step(t); ok {
				names = append(names, step.ExtractorName)
			}
		}
		if len(names) > 0 {
			out = append(out, names)
		}
	}
	return out
}

// execute runs layers in order. Layer members run concurrently, bounded by
// one semaphore for the whole run. Tasks that never start are absent from
// the returned map.
func (r *Runner) execute(ctx context.Context, layers [][]string) map[string]*inventory.ExtractorResult {
	sem := semaphore.NewWeighted(int64(max(1, r.config.MaxConcurrentExtractors)))

	var mu sync.Mutex
	completed := make(map[string]*inventory.ExtractorResult)

	for i, names := range layers {
		if ctx.Err() != nil {
			break
		}
		r.observer.OnLayerStart(i, names)
		r.logger.Debug("starting layer", zap.Int("layer", i), zap.Strings("extractors", names))
		r.warm(ctx, names)

		var wg conc.WaitGroup
		for _, name := range names {
			wg.Go(func() {
				if err := sem.Acquire(ctx, 1); err != nil {
					return
				}
				defer sem.Release(1)
				if ctx.Err() != nil {
					return
				}

				res := r.runTask(ctx, name)

				mu.Lock()
				completed[name] = res
				mu.Unlock()
			})
		}
		wg.Wait()
	}

	return completed
}

// runTask runs one extractor and always returns a result. Errors and panics
// become a failed result carrying a RunnerError.
func (r *Runner) runTask(ctx context.Context, name string) *inventory.ExtractorResult {
	r.observer.OnExtractorState(name, StateRunning, 0, 0)
	started := time.Now()

	var (
		res *inventory.ExtractorResult
		err error
	)
	if recovered := panics.Try(func() { res, err = r.extract(ctx, name) }); recovered != nil {
		res, err = nil, recovered.AsError()
	}

	if err != nil {
		r.logger.Error("extractor failed", zap.String("extractor", name), zap.Error(err))
		res = inventory.NewResult(name)
		res.StartedAt = started
		res.AddError(inventory.ErrorTypeRunner, err.Error())
		res.Complete()
		r.observer.OnExtractorState(name, StateError, 0, 0)
		return res
	}

	if res.ExtractorName == "" {
		res.ExtractorName = name
	}
	if res.CompletedAt.IsZero() {
		res.Complete()
	}

	state := StateCompleted
	if !res.Success {
		state = StateFailed
	}
	r.observer.OnExtractorState(name, state, res.ItemCount(), res.ItemCount())
	return res
}

func (r *Runner) extract(ctx context.Context, name string) (*inventory.ExtractorResult, error) {
	opts := r.options(name)

	ex, err := r.catalog.Extractor(name, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create extractor %s: %w", name, err)
	}

	if accounts := r.config.childAccountIDs(); r.config.EnableMultiAccount && ex.SupportsMultiAccount() && len(accounts) > 0 {
		r.logger.Info("running extractor across child accounts",
			zap.String("extractor", name),
			zap.Int("accounts", len(accounts)))
		return r.runMultiAccount(ctx, name, opts, accounts), nil
	}

	res, err := ex.Extract(ctx, opts)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("extractor %s returned no result", name)
	}
	return res, nil
}

// options builds the extractor options from the run config and any
// per-extractor override.
func (r *Runner) options(name string) inventory.Options {
	opts := inventory.Options{
		PageSize:       r.config.PageSize,
		MaxPages:       r.config.MaxPages,
		IncludeDetails: r.config.IncludeDetails,
		IncludeContent: r.config.IncludeContent,
		MaxConcurrent:  r.config.MaxConcurrentRequests,
		Limiter:        r.limiter,
		Progress: func(_ string, current, total int) {
			r.observer.OnExtractorState(name, StateRunning, current, total)
		},
	}
	if o, ok := r.config.ExtractorOptions[name]; ok {
		o.apply(&opts)
	}
	return opts
}

func (r *Runner) warm(ctx context.Context, names []string) {
	if r.warmer == nil {
		return
	}

	types := make([]string, 0, len(names))
	for _, name := range names {
		types = append(types, r.reg.TypeForExtractor(name))
	}
	cacheTypes := cache.TypesForObjectTypes(types)
	if len(cacheTypes) == 0 {
		return
	}

	warmed := r.warmer.Warm(ctx, cacheTypes)
	for _, t := range cacheTypes {
		if !warmed[t] {
			r.logger.Warn("cache warm-up failed", zap.String("cache", string(t)))
		}
	}
}

// cacheOnlyNames resolves Config.CacheOnlyTypes to extractor names.
func (r *Runner) cacheOnlyNames() map[string]bool {
	out := make(map[string]bool, len(r.config.CacheOnlyTypes))
	for _, name := range r.config.CacheOnlyTypes {
		if def, ok := r.reg.Definition(name); ok {
			name = def.ExtractorName
		}
		out[name] = true
	}
	return out
}

// finalize detects orphans over the successful results and freezes the graph.
func (r *Runner) finalize(result *Result) {
	b := graph.NewBuilder(graph.WithLogger(r.logger))
	for _, name := range result.Names() {
		res := result.Results[name]
		if !res.Success {
			continue
		}
		b.IndexObjects(res.Items, r.reg.TypeForExtractor(name))
	}
	if err := b.MergeEdges(result.Graph.Edges()); err != nil {
		r.logger.Warn("failed to index relationships for orphan detection", zap.Error(err))
	}
	for _, o := range b.DetectAllOrphans() {
		result.Graph.AddOrphan(o)
	}

	result.Graph.Finalize()
	result.CompletedAt = time.Now()
}

func cancelledResult(name string) *inventory.ExtractorResult {
	res := inventory.NewResult(name)
	res.AddError(inventory.ErrorTypeCancelled, "run cancelled before the extractor started")
	res.Complete()
	return res
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
