package graph

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/ayounce80/sfmc-inv2/internal/inventory"
)

// ErrFinalized is returned when edges are added after Finalize.
var ErrFinalized = errors.New("graph is finalized")

const mostConnectedLimit = 10

// Graph is the relationship graph of one run. It is safe for concurrent use.
//
// Edges accumulate while extractors complete; Finalize computes statistics and
// freezes the edge list. Orphans may still be recorded after finalization so
// that detection can run last.
type Graph struct {
	mu      sync.RWMutex
	edges   []inventory.Edge
	orphans []inventory.Orphan
	stats   Stats
	state   State
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{}
}

// FromData rebuilds a finalized graph from its serialized form.
func FromData(d Data) *Graph {
	g := &Graph{
		edges:   append([]inventory.Edge(nil), d.Edges...),
		orphans: append([]inventory.Orphan(nil), d.Orphans...),
		stats:   d.Stats,
		state:   StateFinalized,
	}
	return g
}

func (g *Graph) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// AddEdge appends one edge.
func (g *Graph) AddEdge(e inventory.Edge) error {
	return g.AddEdges([]inventory.Edge{e})
}

// AddEdges appends edges in order.
func (g *Graph) AddEdges(edges []inventory.Edge) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == StateFinalized {
		return ErrFinalized
	}
	if len(edges) == 0 {
		return nil
	}
	g.edges = append(g.edges, edges...)
	g.state = StateAccumulating
	return nil
}

// AddOrphan records an orphaned object.
func (g *Graph) AddOrphan(o inventory.Orphan) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orphans = append(g.orphans, o)
	if g.state == StateFinalized {
		g.stats.OrphanedCount = len(g.orphans)
	}
}

// Edges returns a copy of every edge in insertion order.
func (g *Graph) Edges() []inventory.Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]inventory.Edge(nil), g.edges...)
}

// Orphans returns a copy of the recorded orphans.
func (g *Graph) Orphans() []inventory.Orphan {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]inventory.Orphan(nil), g.orphans...)
}

// EdgeCount reports the number of edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// EdgesFor returns edges where id is the source or the target.
func (g *Graph) EdgesFor(id string) []inventory.Edge {
	return g.filter(func(e inventory.Edge) bool { return e.SourceID == id || e.TargetID == id })
}

// Dependents returns edges whose target is id.
func (g *Graph) Dependents(id string) []inventory.Edge {
	return g.filter(func(e inventory.Edge) bool { return e.TargetID == id })
}

// Dependencies returns edges whose source is id.
func (g *Graph) Dependencies(id string) []inventory.Edge {
	return g.filter(func(e inventory.Edge) bool { return e.SourceID == id })
}

func (g *Graph) filter(keep func(inventory.Edge) bool) []inventory.Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []inventory.Edge
	for _, e := range g.edges {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// CalculateStats recomputes statistics from the current edges and orphans.
// Repeated calls on unchanged data give identical results.
func (g *Graph) CalculateStats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stats = computeStats(g.edges, len(g.orphans))
	return g.stats
}

// Finalize computes statistics and freezes the edge list. It is idempotent.
func (g *Graph) Finalize() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateFinalized {
		g.stats = computeStats(g.edges, len(g.orphans))
		g.state = StateFinalized
	}
	return g.stats
}

// Stats returns the last computed statistics.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.stats
}

// Data returns the serializable form of the graph.
func (g *Graph) Data() Data {
	g.mu.RLock()
	defer g.mu.RUnlock()
	edges := g.edges
	if edges == nil {
		edges = []inventory.Edge{}
	}
	orphans := g.orphans
	if orphans == nil {
		orphans = []inventory.Orphan{}
	}
	return Data{
		Edges:   append([]inventory.Edge(nil), edges...),
		Orphans: append([]inventory.Orphan(nil), orphans...),
		Stats:   g.stats,
	}
}

func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.Data())
}

func computeStats(edges []inventory.Edge, orphanCount int) Stats {
	s := Stats{
		TotalEdges:         len(edges),
		OrphanedCount:      orphanCount,
		ByRelationshipType: make(map[string]int),
		BySourceType:       make(map[string]int),
		ByTargetType:       make(map[string]int),
		MostConnected:      []Connection{},
	}

	nodes := make(map[string]struct{})
	connections := make(map[string]int)
	for _, e := range edges {
		nodes[e.SourceID] = struct{}{}
		nodes[e.TargetID] = struct{}{}
		s.ByRelationshipType[string(e.Type)]++
		s.BySourceType[e.SourceType]++
		s.ByTargetType[e.TargetType]++
		connections[e.SourceID]++
		connections[e.TargetID]++
	}
	s.TotalNodes = len(nodes)

	ranked := make([]Connection, 0, len(connections))
	for id, n := range connections {
		ranked = append(ranked, Connection{ID: id, Count: n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].ID < ranked[j].ID
	})
	if len(ranked) > mostConnectedLimit {
		ranked = ranked[:mostConnectedLimit]
	}
	s.MostConnected = append(s.MostConnected, ranked...)

	return s
}
