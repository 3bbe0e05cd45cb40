package planner

import (
	"sort"

	"go.uber.org/zap"

	"github.com/ayounce80/sfmc-inv2/internal/registry"
)

const (
	ReasonRequested  = "Requested by user"
	ReasonDependency = "Dependency"
)

// Step is one entry of an extraction plan.
type Step struct {
	TypeName      string `json:"type_name"`
	ExtractorName string `json:"extractor_name"`
	// CacheOnly steps run to warm caches and resolve references; their output is not persisted.
	CacheOnly bool   `json:"cache_only"`
	Reason    string `json:"reason"`
}

// Plan is a topologically ordered list of steps.
type Plan struct {
	Steps           []Step   `json:"steps"`
	RequestedTypes  []string `json:"requested_types"`
	DependencyTypes []string `json:"dependency_types"`
}

// AllExtractorNames returns every step's extractor in plan order.
func (p *Plan) AllExtractorNames() []string {
	out := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		out = append(out, s.ExtractorName)
	}
	return out
}

// OutputExtractorNames returns the extractors whose results are persisted.
func (p *Plan) OutputExtractorNames() []string {
	var out []string
	for _, s := range p.Steps {
		if !s.CacheOnly {
			out = append(out, s.ExtractorName)
		}
	}
	return out
}

// CacheOnlyExtractorNames returns the extractors run only as dependencies.
func (p *Plan) CacheOnlyExtractorNames() []string {
	var out []string
	for _, s := range p.Steps {
		if s.CacheOnly {
			out = append(out, s.ExtractorName)
		}
	}
	return out
}

// TypeNames returns the type of each step in plan order.
func (p *Plan) TypeNames() []string {
	out := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		out = append(out, s.TypeName)
	}
	return out
}

// Step returns the step for a type name.
func (p *Plan) Step(typeName string) (Step, bool) {
	for _, s := range p.Steps {
		if s.TypeName == typeName {
			return s, true
		}
	}
	return Step{}, false
}

// Planner orders extractors so that dependencies always run first.
type Planner struct {
	reg                 *registry.Registry
	includeDependencies bool
	logger              *zap.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithIncludeDependencies controls whether the dependency closure is pulled in
// as cache-only steps. Enabled by default.
func WithIncludeDependencies(include bool) Option {
	return func(p *Planner) {
		p.includeDependencies = include
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Planner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a planner over the given registry.
func New(reg *registry.Registry, opts ...Option) *Planner {
	p := &Planner{
		reg:                 reg,
		includeDependencies: true,
		logger:              zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan builds an extraction plan for the requested extractor names.
//
// Unknown extractor names are dropped. Types listed in excludeFromCacheOnly are
// left out when they would only appear as dependencies; an explicitly requested
// type is always kept.
func (p *Planner) Plan(requested []string, excludeFromCacheOnly ...string) *Plan {
	requestedTypes := make(map[string]bool)
	for _, name := range requested {
		def, ok := p.reg.ByExtractor(name)
		if !ok {
			p.logger.Debug("skipping unknown extractor", zap.String("extractor", name))
			continue
		}
		requestedTypes[def.Name] = true
	}

	excluded := make(map[string]bool, len(excludeFromCacheOnly))
	for _, t := range excludeFromCacheOnly {
		excluded[t] = true
	}

	all := make(map[string]bool, len(requestedTypes))
	for t := range requestedTypes {
		all[t] = true
	}
	dependencyTypes := make(map[string]bool)

	if p.includeDependencies {
		queue := sortedKeys(requestedTypes)
		processed := make(map[string]bool)

		for len(queue) > 0 {
			typeName := queue[0]
			queue = queue[1:]
			if processed[typeName] {
				continue
			}
			processed[typeName] = true

			for _, dep := range p.reg.DependenciesOf(typeName) {
				all[dep] = true
				if !requestedTypes[dep] {
					dependencyTypes[dep] = true
				}
				if !processed[dep] {
					queue = append(queue, dep)
				}
			}
		}
	}

	plan := &Plan{
		RequestedTypes:  sortedKeys(requestedTypes),
		DependencyTypes: sortedKeys(dependencyTypes),
	}

	for _, typeName := range p.topologicalSort(all) {
		def, ok := p.reg.Definition(typeName)
		if !ok {
			continue
		}

		step := Step{TypeName: typeName, ExtractorName: def.ExtractorName}
		switch {
		case requestedTypes[typeName]:
			step.Reason = ReasonRequested
		case excluded[typeName]:
			continue
		default:
			step.CacheOnly = true
			step.Reason = ReasonDependency
		}
		plan.Steps = append(plan.Steps, step)
	}

	p.logger.Debug("extraction plan built",
		zap.Strings("requested", plan.RequestedTypes),
		zap.Strings("dependencies", plan.DependencyTypes),
		zap.Int("steps", len(plan.Steps)))

	return plan
}

// ExtractionOrder returns every extractor name of the plan for requested, in order.
func (p *Planner) ExtractionOrder(requested []string) []string {
	return p.Plan(requested).AllExtractorNames()
}

// ValidateDependencies reports, per extractor, the dependency extractors absent
// from extractorNames. Unknown extractors are ignored and extractors with no
// gaps are omitted.
func (p *Planner) ValidateDependencies(extractorNames []string) map[string][]string {
	present := make(map[string]bool, len(extractorNames))
	for _, name := range extractorNames {
		present[name] = true
	}

	missing := make(map[string][]string)
	for _, name := range extractorNames {
		def, ok := p.reg.ByExtractor(name)
		if !ok {
			continue
		}

		var gaps []string
		for _, dep := range def.Dependencies {
			depDef, ok := p.reg.Definition(dep)
			if ok && !present[depDef.ExtractorName] {
				gaps = append(gaps, depDef.ExtractorName)
			}
		}
		if len(gaps) > 0 {
			missing[name] = gaps
		}
	}
	return missing
}

// topologicalSort is Kahn's algorithm with a lexicographically ordered ready
// queue. Types left over by a cycle are appended in sorted order.
func (p *Planner) topologicalSort(types map[string]bool) []string {
	inDegree, dependents := p.buildEdges(types)

	var queue []string
	for t := range types {
		if inDegree[t] == 0 {
			queue = append(queue, t)
		}
	}
	sort.Strings(queue)

	result := make([]string, 0, len(types))
	emitted := make(map[string]bool, len(types))

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)
		emitted[current] = true

		for _, dependent := range dependents[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
		sort.Strings(queue)
	}

	if len(result) < len(types) {
		var remaining []string
		for t := range types {
			if !emitted[t] {
				remaining = append(remaining, t)
			}
		}
		sort.Strings(remaining)
		p.logger.Warn("dependency cycle detected, appending remaining types", zap.Strings("types", remaining))
		result = append(result, remaining...)
	}

	return result
}

// buildEdges returns in-degrees and dependent lists restricted to types.
// An edge A->B means B depends on A.
func (p *Planner) buildEdges(types map[string]bool) (map[string]int, map[string][]string) {
	inDegree := make(map[string]int, len(types))
	dependents := make(map[string][]string, len(types))

	for t := range types {
		for _, dep := range p.reg.DependenciesOf(t) {
			if types[dep] {
				dependents[dep] = append(dependents[dep], t)
				inDegree[t]++
			}
		}
	}
	return inDegree, dependents
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
