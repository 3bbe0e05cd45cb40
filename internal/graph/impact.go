package graph

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	dgraph "github.com/dominikbraun/graph"

	"github.com/ayounce80/sfmc-inv2/internal/inventory"
)

// DefaultImpactDepth bounds deletion impact traversal.
const DefaultImpactDepth = 3

const directDependentsShown = 10

// ImpactObject identifies an object in an impact report.
type ImpactObject struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name"`
}

// ImpactDependent is one object affected by a deletion.
type ImpactDependent struct {
	ID           string        `json:"id"`
	Type         string        `json:"type"`
	Name         string        `json:"name"`
	Relationship string        `json:"relationship"`
	Via          *ImpactObject `json:"via,omitempty"`
}

// ImpactCounts aggregates an impact report.
type ImpactCounts struct {
	TotalAffected int            `json:"total_affected"`
	ByType        map[string]int `json:"by_type"`
	ByDepth       map[string]int `json:"by_depth"`
}

// ImpactReport lists everything that depends on an object, directly or
// through up to maxDepth hops. Transitive dependents are keyed by depth ("2", "3", ...).
type ImpactReport struct {
	Object               ImpactObject                 `json:"object"`
	DirectDependents     []ImpactDependent            `json:"direct_dependents"`
	TransitiveDependents map[string][]ImpactDependent `json:"transitive_dependents"`
	Summary              ImpactCounts                 `json:"summary"`
}

// dependentIndex answers "who points at this object" using a directed graph
// of type/id vertices. Edge details are kept beside it in insertion order.
type dependentIndex struct {
	edges        []inventory.Edge
	predecessors map[string]map[string]dgraph.Edge[string]
	pairs        map[[2]string][]int
}

func vertexKey(id, objectType string) string {
	return objectType + "\x1f" + id
}

func (b *Builder) buildDependentIndex() (*dependentIndex, error) {
	g := dgraph.New(dgraph.StringHash, dgraph.Directed())
	idx := &dependentIndex{
		edges: b.graph.Edges(),
		pairs: make(map[[2]string][]int),
	}

	for i, e := range idx.edges {
		src := vertexKey(e.SourceID, e.SourceType)
		dst := vertexKey(e.TargetID, e.TargetType)
		for _, v := range []string{src, dst} {
			if err := g.AddVertex(v); err != nil && !errors.Is(err, dgraph.ErrVertexAlreadyExists) {
				return nil, fmt.Errorf("failed to add vertex: %w", err)
			}
		}
		if err := g.AddEdge(src, dst); err != nil && !errors.Is(err, dgraph.ErrEdgeAlreadyExists) {
			return nil, fmt.Errorf("failed to add edge %s -> %s: %w", e.SourceID, e.TargetID, err)
		}
		pair := [2]string{src, dst}
		idx.pairs[pair] = append(idx.pairs[pair], i)
	}

	pred, err := g.PredecessorMap()
	if err != nil {
		return nil, fmt.Errorf("failed to compute predecessors: %w", err)
	}
	idx.predecessors = pred
	return idx, nil
}

// dependents returns the edges targeting an object in insertion order.
func (idx *dependentIndex) dependents(id, objectType string) []inventory.Edge {
	v := vertexKey(id, objectType)

	var positions []int
	for p := range idx.predecessors[v] {
		positions = append(positions, idx.pairs[[2]string{p, v}]...)
	}
	sort.Ints(positions)

	out := make([]inventory.Edge, 0, len(positions))
	for _, i := range positions {
		out = append(out, idx.edges[i])
	}
	return out
}

// DeletionImpact reports what would be affected if the object were deleted.
// maxDepth <= 0 uses DefaultImpactDepth.
func (b *Builder) DeletionImpact(id, objectType string, maxDepth int) (ImpactReport, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultImpactDepth
	}

	idx, err := b.buildDependentIndex()
	if err != nil {
		return ImpactReport{}, err
	}

	report := ImpactReport{
		Object:               ImpactObject{ID: id, Type: objectType},
		DirectDependents:     []ImpactDependent{},
		TransitiveDependents: make(map[string][]ImpactDependent),
		Summary: ImpactCounts{
			ByType:  make(map[string]int),
			ByDepth: make(map[string]int),
		},
	}
	if obj, ok := b.Object(id, objectType); ok {
		report.Object.Name = obj.Name
	}

	visited := map[objectKey]bool{{id: id, objectType: objectType}: true}

	direct := idx.dependents(id, objectType)
	current := make([]ImpactObject, 0, len(direct))
	for _, e := range direct {
		report.DirectDependents = append(report.DirectDependents, ImpactDependent{
			ID:           e.SourceID,
			Type:         e.SourceType,
			Name:         e.SourceName,
			Relationship: string(e.Type),
		})
		visited[objectKey{id: e.SourceID, objectType: e.SourceType}] = true
		current = append(current, ImpactObject{ID: e.SourceID, Type: e.SourceType, Name: e.SourceName})
	}
	report.Summary.ByDepth["1"] = len(direct)

	for depth := 2; depth <= maxDepth; depth++ {
		key := strconv.Itoa(depth)
		level := []ImpactDependent{}
		var next []ImpactObject

		for _, via := range current {
			for _, e := range idx.dependents(via.ID, via.Type) {
				k := objectKey{id: e.SourceID, objectType: e.SourceType}
				if visited[k] {
					continue
				}
				visited[k] = true
				viaCopy := via
				level = append(level, ImpactDependent{
					ID:           e.SourceID,
					Type:         e.SourceType,
					Name:         e.SourceName,
					Relationship: string(e.Type),
					Via:          &viaCopy,
				})
				next = append(next, ImpactObject{ID: e.SourceID, Type: e.SourceType, Name: e.SourceName})
			}
		}

		report.TransitiveDependents[key] = level
		report.Summary.ByDepth[key] = len(level)
		current = next
		if len(current) == 0 {
			break
		}
	}

	all := append([]ImpactDependent(nil), report.DirectDependents...)
	for _, level := range report.TransitiveDependents {
		all = append(all, level...)
	}
	report.Summary.TotalAffected = len(all)
	for _, d := range all {
		report.Summary.ByType[d.Type]++
	}

	return report, nil
}

// ImpactSummary renders a DeletionImpact report at the default depth as text.
func (b *Builder) ImpactSummary(id, objectType string) (string, error) {
	report, err := b.DeletionImpact(id, objectType, DefaultImpactDepth)
	if err != nil {
		return "", err
	}
	return FormatImpact(report), nil
}

// FormatImpact renders an impact report for humans.
func FormatImpact(report ImpactReport) string {
	var lines []string

	name := report.Object.Name
	if name == "" {
		name = report.Object.ID
	}
	lines = append(lines, fmt.Sprintf("Deletion Impact: %s '%s'", report.Object.Type, name))
	lines = append(lines, strings.Repeat("=", 50))

	if report.Summary.TotalAffected == 0 {
		lines = append(lines, "No other objects depend on this object.")
		lines = append(lines, "This object can be safely deleted.")
		return strings.Join(lines, "\n")
	}

	lines = append(lines, fmt.Sprintf("Total affected objects: %d", report.Summary.TotalAffected), "")

	lines = append(lines, "By type:")
	types := make([]string, 0, len(report.Summary.ByType))
	for t := range report.Summary.ByType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		lines = append(lines, fmt.Sprintf("  - %s: %d", t, report.Summary.ByType[t]))
	}
	lines = append(lines, "")

	lines = append(lines, "By dependency depth:")
	depths := make([]int, 0, len(report.Summary.ByDepth))
	for k := range report.Summary.ByDepth {
		if d, err := strconv.Atoi(k); err == nil {
			depths = append(depths, d)
		}
	}
	sort.Ints(depths)
	for _, d := range depths {
		count := report.Summary.ByDepth[strconv.Itoa(d)]
		if count == 0 {
			continue
		}
		label := fmt.Sprintf("depth %d", d)
		if d == 1 {
			label = "direct"
		}
		lines = append(lines, fmt.Sprintf("  - %s: %d", label, count))
	}
	lines = append(lines, "")

	lines = append(lines, "Direct dependents:")
	for i, dep := range report.DirectDependents {
		if i == directDependentsShown {
			break
		}
		label := dep.Name
		if label == "" {
			label = dep.ID
		}
		lines = append(lines, fmt.Sprintf("  - [%s] %s", dep.Type, label))
	}
	if extra := len(report.DirectDependents) - directDependentsShown; extra > 0 {
		lines = append(lines, fmt.Sprintf("  ... and %d more", extra))
	}

	return strings.Join(lines, "\n")
}
