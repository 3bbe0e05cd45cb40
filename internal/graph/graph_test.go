package graph

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayounce80/sfmc-inv2/internal/inventory"
)

// Test Plan for Graph:
// - State moves Empty -> Accumulating -> Finalized
// - Finalize freezes edges (ErrFinalized) but still accepts orphans
// - Stats count nodes as the union of endpoints and rank the top 10 connections
// - CalculateStats is idempotent
// - Edge queries filter by source, target or either
// - Concurrent AddEdges lose nothing
// - Save/Load round-trips through an atomic write

func edge(src, srcType, dst, dstType string, rel inventory.RelationshipType) inventory.Edge {
	return inventory.Edge{SourceID: src, SourceType: srcType, TargetID: dst, TargetType: dstType, Type: rel}
}

func TestGraph_Lifecycle(t *testing.T) {
	t.Parallel()

	g := New()
	assert.Equal(t, StateEmpty, g.State())

	require.NoError(t, g.AddEdges(nil))
	assert.Equal(t, StateEmpty, g.State())

	require.NoError(t, g.AddEdge(edge("a1", "automation", "q1", "query", inventory.AutomationContainsQuery)))
	assert.Equal(t, StateAccumulating, g.State())

	stats := g.Finalize()
	assert.Equal(t, StateFinalized, g.State())
	assert.Equal(t, 1, stats.TotalEdges)

	err := g.AddEdge(edge("a1", "automation", "q2", "query", inventory.AutomationContainsQuery))
	assert.ErrorIs(t, err, ErrFinalized)
	assert.Equal(t, 1, g.EdgeCount())

	g.AddOrphan(inventory.Orphan{ID: "q9", ObjectType: "query", Name: "Lonely", Reason: OrphanReason})
	assert.Len(t, g.Orphans(), 1)
	assert.Equal(t, 1, g.Stats().OrphanedCount)

	// Finalize again keeps the same stats.
	assert.Equal(t, g.Stats(), g.Finalize())
}

func TestGraph_Stats(t *testing.T) {
	t.Parallel()

	g := New()
	require.NoError(t, g.AddEdges([]inventory.Edge{
		edge("a1", "automation", "q1", "query", inventory.AutomationContainsQuery),
		edge("a1", "automation", "q2", "query", inventory.AutomationContainsQuery),
		edge("q1", "query", "de1", "data_extension", inventory.QueryReadsDE),
		edge("q2", "query", "de1", "data_extension", inventory.QueryReadsDE),
		edge("j1", "journey", "de1", "data_extension", inventory.JourneyUsesDE),
	}))

	s := g.CalculateStats()
	assert.Equal(t, 5, s.TotalEdges)
	assert.Equal(t, 5, s.TotalNodes)
	assert.Equal(t, map[string]int{"automation_contains_query": 2, "query_reads_de": 2, "journey_uses_de": 1}, s.ByRelationshipType)
	assert.Equal(t, map[string]int{"automation": 2, "query": 2, "journey": 1}, s.BySourceType)
	assert.Equal(t, map[string]int{"query": 2, "data_extension": 3}, s.ByTargetType)
	assert.Equal(t, []Connection{
		{ID: "de1", Count: 3},
		{ID: "a1", Count: 2},
		{ID: "q1", Count: 2},
		{ID: "q2", Count: 2},
		{ID: "j1", Count: 1},
	}, s.MostConnected)

	assert.Equal(t, s, g.CalculateStats())
}

func TestGraph_MostConnectedLimit(t *testing.T) {
	t.Parallel()

	g := New()
	for i := range 15 {
		require.NoError(t, g.AddEdge(edge("hub", "automation", string(rune('a'+i)), "query", inventory.AutomationContainsQuery)))
	}

	s := g.CalculateStats()
	require.Len(t, s.MostConnected, 10)
	assert.Equal(t, Connection{ID: "hub", Count: 15}, s.MostConnected[0])
	assert.Equal(t, "a", s.MostConnected[1].ID)
	assert.Equal(t, 16, s.TotalNodes)
}

func TestGraph_EdgeQueries(t *testing.T) {
	t.Parallel()

	g := New()
	require.NoError(t, g.AddEdges([]inventory.Edge{
		edge("a1", "automation", "q1", "query", inventory.AutomationContainsQuery),
		edge("q1", "query", "de1", "data_extension", inventory.QueryReadsDE),
	}))

	assert.Len(t, g.EdgesFor("q1"), 2)
	assert.Len(t, g.Dependents("q1"), 1)
	assert.Equal(t, "a1", g.Dependents("q1")[0].SourceID)
	assert.Len(t, g.Dependencies("q1"), 1)
	assert.Equal(t, "de1", g.Dependencies("q1")[0].TargetID)
	assert.Empty(t, g.EdgesFor("zzz"))
}

func TestGraph_ConcurrentAdds(t *testing.T) {
	t.Parallel()

	g := New()
	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				_ = g.AddEdge(edge(string(rune('A'+w)), "automation", string(rune('a'+i%26)), "query", inventory.AutomationContainsQuery))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 400, g.EdgeCount())
}

func TestStorage_SaveLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "relationships", "graph.json")

	g := New()
	require.NoError(t, g.AddEdge(inventory.Edge{
		SourceID: "q1", SourceType: "query", SourceName: "Load",
		TargetID: "ENT.Customers", TargetType: "data_extension", TargetName: "ENT.Customers",
		Type:     inventory.QueryReadsDE,
		Metadata: map[string]any{"isShared": true},
	}))
	g.AddOrphan(inventory.Orphan{ID: "s1", ObjectType: "script", Name: "Old", Reason: OrphanReason})
	g.Finalize()

	require.NoError(t, Save(path, g))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StateFinalized, loaded.State())
	assert.Equal(t, g.Edges(), loaded.Edges())
	assert.Equal(t, g.Orphans(), loaded.Orphans())
	assert.Equal(t, g.Stats().TotalEdges, loaded.Stats().TotalEdges)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".graph-*"))
	require.NoError(t, err)
	assert.Empty(t, matches, "temp files are cleaned up")

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
