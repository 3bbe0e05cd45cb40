package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ayounce80/sfmc-inv2/internal/inventory"
)

// Test Plan for Builder:
// - IndexObjects skips items without id and supports lookups by type and id
// - AddEdge and MergeEdges count references per target
// - Orphans: unreferenced objects are reported with defaults for missing names
// - Referenced objects are never orphans, whatever the source type
// - DetectAllOrphans skips types with nothing indexed and sorts by type then id
// - Custom orphan rules replace the default table
// - The default table accepts automations or journeys as users of a query
// - Account tracking marks shared targets from the item or from the name
// - Usage queries: ObjectsUsedBy, ObjectsNotUsedBy, SourcesForTarget
// - AnalyzeSQL extracts FROM/JOIN targets, skips system tables and tags shared names

func items(ids ...string) []inventory.Item {
	out := make([]inventory.Item, 0, len(ids))
	for _, id := range ids {
		out = append(out, inventory.Item{ID: id, Name: "name-" + id})
	}
	return out
}

func TestBuilder_IndexAndLookup(t *testing.T) {
	t.Parallel()

	b := NewBuilder(WithLogger(zaptest.NewLogger(t)))
	b.IndexObjects(append(items("q2", "q1"), inventory.Item{Name: "no id"}), "query")

	obj, ok := b.Object("q1", "query")
	require.True(t, ok)
	assert.Equal(t, "name-q1", obj.Name)

	_, ok = b.Object("q1", "script")
	assert.False(t, ok)

	objs := b.Objects("query")
	require.Len(t, objs, 2)
	assert.Equal(t, "q1", objs[0].ID)
	assert.Equal(t, []string{"query"}, b.IndexedTypes())
}

func TestBuilder_ReferenceCounting(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	require.NoError(t, b.AddEdge(edge("a1", "automation", "q1", "query", inventory.AutomationContainsQuery)))
	require.NoError(t, b.MergeEdges([]inventory.Edge{
		edge("a2", "automation", "q1", "query", inventory.AutomationContainsQuery),
		edge("q1", "query", "de1", "data_extension", inventory.QueryReadsDE),
	}))

	assert.Equal(t, 2, b.UsageCount("q1", "query"))
	assert.Equal(t, 1, b.UsageCount("de1", "data_extension"))
	assert.Equal(t, 0, b.UsageCount("q1", "script"), "counts are per type")
	assert.Equal(t, 3, b.Graph().EdgeCount())
}

func TestBuilder_FindOrphans(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	b.IndexObjects([]inventory.Item{
		{ID: "q1", Name: "Used"},
		{ID: "q2", FolderPath: "Queries > Old", ModifiedDate: "2024-01-01"},
		{ID: "q3", Name: "Read by journey"},
	}, "query")
	require.NoError(t, b.MergeEdges([]inventory.Edge{
		edge("a1", "automation", "q1", "query", inventory.AutomationContainsQuery),
		edge("j1", "journey", "q3", "query", inventory.References),
	}))

	orphans := b.FindOrphans("query", "automation")
	require.Len(t, orphans, 1)
	assert.Equal(t, inventory.Orphan{
		ID:           "q2",
		ObjectType:   "query",
		Name:         "Unknown",
		FolderPath:   "Queries > Old",
		Reason:       OrphanReason,
		LastModified: "2024-01-01",
	}, orphans[0])
}

func TestBuilder_DetectAllOrphans(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	b.IndexObjects(items("s2", "s1"), "script")
	b.IndexObjects(items("de1", "de2"), "data_extension")
	b.IndexObjects(items("f1"), "folder") // no rule for folders
	require.NoError(t, b.MergeEdges([]inventory.Edge{
		edge("q1", "query", "de1", "data_extension", inventory.QueryReadsDE),
	}))

	orphans := b.DetectAllOrphans()
	var got [][2]string
	for _, o := range orphans {
		got = append(got, [2]string{o.ObjectType, o.ID})
	}
	assert.Equal(t, [][2]string{
		{"data_extension", "de2"},
		{"script", "s1"},
		{"script", "s2"},
	}, got)
	assert.Len(t, b.Graph().Orphans(), 3)
}

func TestBuilder_CustomRules(t *testing.T) {
	t.Parallel()

	b := NewBuilder(WithOrphanRules([]OrphanRule{{ObjectType: "folder"}}))
	b.IndexObjects(items("f1"), "folder")
	b.IndexObjects(items("s1"), "script")

	orphans := b.DetectAllOrphans()
	require.Len(t, orphans, 1)
	assert.Equal(t, "f1", orphans[0].ID)
}

func TestDefaultOrphanRules_Query(t *testing.T) {
	t.Parallel()

	var referencedBy []string
	for _, rule := range DefaultOrphanRules() {
		if rule.ObjectType == "query" {
			referencedBy = rule.ReferencedBy
		}
	}
	assert.ElementsMatch(t, []string{"automation", "journey"}, referencedBy)

	b := NewBuilder()
	b.IndexObjects(items("q1", "q2"), "query")
	require.NoError(t, b.MergeEdges([]inventory.Edge{
		edge("j1", "journey", "q1", "query", inventory.References),
	}))

	orphans := b.DetectAllOrphans()
	require.Len(t, orphans, 1)
	assert.Equal(t, "q2", orphans[0].ID)
}

func TestBuilder_AccountTracking(t *testing.T) {
	t.Parallel()

	b := NewBuilder()

	parentDE := inventory.Item{ID: "de1", Name: "Customers", FromParentAccount: true}
	require.NoError(t, b.AddEdgeWithAccountTracking(
		edge("q1", "query", "de1", "data_extension", inventory.QueryReadsDE), &parentDE, "200"))

	folderShared := inventory.Item{ID: "de2", Name: "Prefs", FolderPath: "Data Extensions > Shared"}
	require.NoError(t, b.AddEdgeWithAccountTracking(
		edge("q1", "query", "de2", "data_extension", inventory.QueryReadsDE), &folderShared, ""))

	byName := edge("q1", "query", "ENT.Master", "data_extension", inventory.QueryReadsDE)
	byName.TargetName = "ENT.Master"
	require.NoError(t, b.AddEdgeWithAccountTracking(byName, nil, ""))

	plain := edge("q1", "query", "de3", "data_extension", inventory.QueryReadsDE)
	plain.TargetName = "Local"
	require.NoError(t, b.AddEdgeWithAccountTracking(plain, nil, ""))

	edges := b.Graph().Edges()
	require.Len(t, edges, 4)
	assert.Equal(t, map[string]any{"isShared": true, "fromParentBU": true, "sourceAccountId": "200"}, edges[0].Metadata)
	assert.Equal(t, map[string]any{"isShared": true}, edges[1].Metadata)
	assert.Equal(t, map[string]any{"isShared": true, "fromParentBU": true}, edges[2].Metadata)
	assert.Nil(t, edges[3].Metadata)
}

func TestBuilder_UsageQueries(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	b.IndexObjects(items("q1", "q2", "q3"), "query")
	require.NoError(t, b.MergeEdges([]inventory.Edge{
		{SourceID: "a1", SourceType: "automation", SourceName: "Nightly", TargetID: "q1", TargetType: "query", Type: inventory.AutomationContainsQuery},
		{SourceID: "j1", SourceType: "journey", SourceName: "Welcome", TargetID: "q2", TargetType: "query", Type: inventory.References},
		{SourceID: "a1", SourceType: "automation", TargetID: "s1", TargetType: "script", Type: inventory.AutomationContainsScript},
	}))

	assert.Equal(t, map[string]bool{"q1": true, "s1": true}, b.ObjectsUsedBy("automation"))

	notUsed := b.ObjectsNotUsedBy("query", []string{"automation"})
	require.Len(t, notUsed, 2)
	assert.Equal(t, "q2", notUsed[0].ID)
	assert.Equal(t, "q3", notUsed[1].ID)

	assert.Equal(t, []Source{{ID: "a1", Type: "automation", Name: "Nightly", Relationship: "automation_contains_query"}},
		b.SourcesForTarget("q1", "query", ""))
	assert.Empty(t, b.SourcesForTarget("q1", "query", "journey"))

	assert.Len(t, b.DependenciesFor("a1", "automation"), 2)
	assert.Len(t, b.DependentsFor("q2", "query"), 1)
}

func TestBuilder_AnalyzeSQL(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	sql := `SELECT c.Id FROM [Customers] c
		INNER JOIN ENT.Preferences p ON p.Id = c.Id
		LEFT JOIN _Subscribers s ON s.Id = c.Id
		JOIN SysJobs j ON 1=1
		from Dual
		join Customers c2 on c2.Id = c.Id`

	names, err := b.AnalyzeSQL(sql, "q1", "Build Audience", "300")
	require.NoError(t, err)
	assert.Equal(t, []string{"Customers", "ENT.Preferences"}, names)

	edges := b.Graph().Edges()
	require.Len(t, edges, 3, "one edge per match, duplicates included")
	for _, e := range edges {
		assert.Equal(t, inventory.QueryReadsDE, e.Type)
		assert.Equal(t, "query", e.SourceType)
		assert.Equal(t, "data_extension", e.TargetType)
		assert.Equal(t, e.TargetID, e.TargetName)
		assert.Equal(t, true, e.Metadata["resolved_by_name"])
		assert.Equal(t, "300", e.Metadata["sourceAccountId"])
	}

	var shared inventory.Edge
	for _, e := range edges {
		if e.TargetID == "ENT.Preferences" {
			shared = e
		}
	}
	assert.True(t, shared.MetaBool("isShared"))
	assert.True(t, shared.MetaBool("fromParentBU"))
	assert.Equal(t, 2, b.UsageCount("Customers", "data_extension"))
}

func TestSharedDetection(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"ENT.X", "_ENT.X", "Shared_X", "Enterprise_X"} {
		assert.True(t, IsSharedName(name), name)
	}
	assert.False(t, IsSharedName("ent.lowercase"))
	assert.False(t, IsSharedName(""))

	assert.True(t, IsSharedItem(inventory.Item{FolderPath: "Root > Global Assets"}))
	assert.True(t, IsSharedItem(inventory.Item{FromParentAccount: true}))
	assert.False(t, IsSharedItem(inventory.Item{Name: "Local", FolderPath: "Root > Mine"}))
}
