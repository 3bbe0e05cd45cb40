package graph

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ayounce80/sfmc-inv2/internal/inventory"
)

// Builder indexes extracted objects, collects relationship edges and answers
// usage questions over them.
type Builder struct {
	mu     sync.RWMutex
	graph  *Graph
	index  map[string]map[string]inventory.Item // object type -> id -> item
	refs   map[objectKey]int
	rules  []OrphanRule
	logger *zap.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithGraph makes the builder append to an existing graph.
func WithGraph(g *Graph) BuilderOption {
	return func(b *Builder) {
		if g != nil {
			b.graph = g
		}
	}
}

// WithOrphanRules replaces the default orphan rule table.
func WithOrphanRules(rules []OrphanRule) BuilderOption {
	return func(b *Builder) {
		b.rules = append([]OrphanRule(nil), rules...)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) BuilderOption {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBuilder creates a builder with its own empty graph.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		graph:  New(),
		index:  make(map[string]map[string]inventory.Item),
		refs:   make(map[objectKey]int),
		rules:  DefaultOrphanRules(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Graph returns the graph being built.
func (b *Builder) Graph() *Graph {
	return b.graph
}

// IndexObjects makes items of objectType available for lookups and orphan
// detection. Items without an id are skipped. Indexing a type with no items
// still marks the type as present.
func (b *Builder) IndexObjects(items []inventory.Item, objectType string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	byID, ok := b.index[objectType]
	if !ok {
		byID = make(map[string]inventory.Item, len(items))
		b.index[objectType] = byID
	}
	skipped := 0
	for _, it := range items {
		if it.ID == "" {
			skipped++
			continue
		}
		byID[it.ID] = it
	}
	if skipped > 0 {
		b.logger.Debug("skipped items without id", zap.String("type", objectType), zap.Int("count", skipped))
	}
}

// AddEdge appends an edge and counts the reference to its target.
func (b *Builder) AddEdge(e inventory.Edge) error {
	if err := b.graph.AddEdge(e); err != nil {
		return err
	}
	b.mu.Lock()
	b.refs[objectKey{id: e.TargetID, objectType: e.TargetType}]++
	b.mu.Unlock()
	return nil
}

// MergeEdges appends edges produced by extractors.
func (b *Builder) MergeEdges(edges []inventory.Edge) error {
	if err := b.graph.AddEdges(edges); err != nil {
		return err
	}
	b.mu.Lock()
	for _, e := range edges {
		b.refs[objectKey{id: e.TargetID, objectType: e.TargetType}]++
	}
	b.mu.Unlock()
	return nil
}

// AddEdgeWithAccountTracking adds an edge annotated with shared-resource
// metadata. When target is known its flags decide sharing; otherwise the
// target name's prefix does, and a shared name is assumed to come from the
// parent account. Existing metadata on e is kept.
func (b *Builder) AddEdgeWithAccountTracking(e inventory.Edge, target *inventory.Item, sourceAccountID string) error {
	md := make(map[string]any, len(e.Metadata)+3)
	for k, v := range e.Metadata {
		md[k] = v
	}

	isShared, fromParent := false, false
	switch {
	case target != nil:
		if IsSharedItem(*target) {
			isShared = true
			fromParent = target.FromParentAccount
		}
	case e.TargetName != "":
		isShared = IsSharedName(e.TargetName)
		fromParent = isShared
	}

	if isShared {
		md[inventory.MetaIsShared] = true
	}
	if fromParent {
		md[inventory.MetaFromParentBU] = true
	}
	if sourceAccountID != "" {
		md[inventory.MetaAccountID] = sourceAccountID
	}

	if len(md) == 0 {
		md = nil
	}
	e.Metadata = md
	return b.AddEdge(e)
}

// DependenciesFor returns edges whose source is the given object.
func (b *Builder) DependenciesFor(id, objectType string) []inventory.Edge {
	return b.graph.filter(func(e inventory.Edge) bool {
		return e.SourceID == id && e.SourceType == objectType
	})
}

// DependentsFor returns edges whose target is the given object.
func (b *Builder) DependentsFor(id, objectType string) []inventory.Edge {
	return b.graph.filter(func(e inventory.Edge) bool {
		return e.TargetID == id && e.TargetType == objectType
	})
}

// ObjectsUsedBy returns the ids targeted by any edge from sourceType.
func (b *Builder) ObjectsUsedBy(sourceType string) map[string]bool {
	used := make(map[string]bool)
	for _, e := range b.graph.Edges() {
		if e.SourceType == sourceType {
			used[e.TargetID] = true
		}
	}
	return used
}

// ObjectsNotUsedBy returns indexed objects of objectType that no edge from any
// of sourceTypes targets, ordered by id.
func (b *Builder) ObjectsNotUsedBy(objectType string, sourceTypes []string) []inventory.Item {
	sources := make(map[string]bool, len(sourceTypes))
	for _, s := range sourceTypes {
		sources[s] = true
	}

	used := make(map[string]bool)
	for _, e := range b.graph.Edges() {
		if sources[e.SourceType] && e.TargetType == objectType {
			used[e.TargetID] = true
		}
	}

	var out []inventory.Item
	for _, it := range b.Objects(objectType) {
		if !used[it.ID] {
			out = append(out, it)
		}
	}
	return out
}

// UsageCount reports how many edges target the object.
func (b *Builder) UsageCount(id, objectType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.refs[objectKey{id: id, objectType: objectType}]
}

// SourcesForTarget lists the objects referencing a target, optionally
// restricted to one source type (empty means any).
func (b *Builder) SourcesForTarget(id, objectType, sourceType string) []Source {
	var out []Source
	for _, e := range b.DependentsFor(id, objectType) {
		if sourceType != "" && e.SourceType != sourceType {
			continue
		}
		out = append(out, Source{
			ID:           e.SourceID,
			Type:         e.SourceType,
			Name:         e.SourceName,
			Relationship: string(e.Type),
		})
	}
	return out
}

// Object returns an indexed object.
func (b *Builder) Object(id, objectType string) (inventory.Item, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	it, ok := b.index[objectType][id]
	return it, ok
}

// Objects returns every indexed object of a type, ordered by id.
func (b *Builder) Objects(objectType string) []inventory.Item {
	b.mu.RLock()
	defer b.mu.RUnlock()

	byID := b.index[objectType]
	out := make([]inventory.Item, 0, len(byID))
	for _, it := range byID {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IndexedTypes returns the object types that have been indexed.
func (b *Builder) IndexedTypes() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.index))
	for t := range b.index {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (b *Builder) hasType(objectType string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.index[objectType]
	return ok
}
