package planner

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ayounce80/sfmc-inv2/internal/registry"
)

// Test Plan for Planner:
// - Small chain registry yields folder -> data_extension -> query -> automation with cache-only deps
// - Without dependency inclusion only requested extractors appear
// - Built-in automation plan matches the exact lexicographic Kahn order
// - Every step appears after all of its in-plan dependencies
// - Unknown extractor names are dropped silently
// - Excluded dependency types are omitted; excluded requested types stay (requested wins)
// - Plans are deterministic across repeated calls and request orderings
// - Layers group the ready set per phase and put cycle leftovers last
// - Cycles do not fail planning; leftovers are appended sorted
// - ValidateDependencies reports only missing dependency extractors

func chainRegistry() *registry.Registry {
	return registry.New(
		registry.TypeDefinition{Name: "folder", ExtractorName: "folders"},
		registry.TypeDefinition{Name: "data_extension", ExtractorName: "data_extensions", Dependencies: []string{"folder"}},
		registry.TypeDefinition{Name: "query", ExtractorName: "queries", Dependencies: []string{"data_extension", "folder"}},
		registry.TypeDefinition{Name: "automation", ExtractorName: "automations", Dependencies: []string{"query"}},
	)
}

func TestPlan_ChainRegistry(t *testing.T) {
	t.Parallel()

	p := New(chainRegistry(), WithLogger(zaptest.NewLogger(t)))
	plan := p.Plan([]string{"automations"})

	want := []Step{
		{TypeName: "folder", ExtractorName: "folders", CacheOnly: true, Reason: ReasonDependency},
		{TypeName: "data_extension", ExtractorName: "data_extensions", CacheOnly: true, Reason: ReasonDependency},
		{TypeName: "query", ExtractorName: "queries", CacheOnly: true, Reason: ReasonDependency},
		{TypeName: "automation", ExtractorName: "automations", CacheOnly: false, Reason: ReasonRequested},
	}
	if diff := cmp.Diff(want, plan.Steps); diff != "" {
		t.Errorf("plan steps mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, []string{"automation"}, plan.RequestedTypes)
	assert.Equal(t, []string{"data_extension", "folder", "query"}, plan.DependencyTypes)
	assert.Equal(t, []string{"automations"}, plan.OutputExtractorNames())
	assert.Equal(t, []string{"folders", "data_extensions", "queries"}, plan.CacheOnlyExtractorNames())
	assert.Equal(t, []string{"folder", "data_extension", "query", "automation"}, plan.TypeNames())
}

func TestPlan_WithoutDependencies(t *testing.T) {
	t.Parallel()

	p := New(chainRegistry(), WithIncludeDependencies(false))
	plan := p.Plan([]string{"automations"})

	require.Len(t, plan.Steps, 1)
	assert.Equal(t, Step{TypeName: "automation", ExtractorName: "automations", Reason: ReasonRequested}, plan.Steps[0])
	assert.Empty(t, plan.DependencyTypes)

	// Requested types are still ordered among themselves.
	plan = p.Plan([]string{"automations", "queries", "folders"})
	assert.Equal(t, []string{"folders", "queries", "automations"}, plan.AllExtractorNames())
}

func TestPlan_BuiltinAutomationOrder(t *testing.T) {
	t.Parallel()

	p := New(registry.Default())

	got := p.ExtractionOrder([]string{"automations"})
	want := []string{
		"folders", "data_extensions",
		"data_extracts", "event_definitions", "file_transfers", "filters", "imports", "queries", "scripts",
		"automations",
	}
	assert.Equal(t, want, got)
}

func TestPlan_TopologicalInvariant(t *testing.T) {
	t.Parallel()

	reg := registry.Default()
	p := New(reg)
	plan := p.Plan(reg.ExtractorNames())

	position := make(map[string]int)
	for i, s := range plan.Steps {
		position[s.TypeName] = i
	}
	require.Len(t, position, 20)

	for _, s := range plan.Steps {
		for _, dep := range reg.DependenciesOf(s.TypeName) {
			assert.Less(t, position[dep], position[s.TypeName], "%s must follow %s", s.TypeName, dep)
		}
		assert.False(t, s.CacheOnly)
	}
}

func TestPlan_UnknownNamesDropped(t *testing.T) {
	t.Parallel()

	p := New(chainRegistry())
	plan := p.Plan([]string{"bogus", "folders", "also_bogus"})

	assert.Equal(t, []string{"folders"}, plan.AllExtractorNames())
	assert.Equal(t, []string{"folder"}, plan.RequestedTypes)

	assert.Empty(t, p.Plan([]string{"bogus"}).Steps)
	assert.Empty(t, p.Plan(nil).Steps)
}

func TestPlan_ExcludeFromCacheOnly(t *testing.T) {
	t.Parallel()

	p := New(chainRegistry())

	plan := p.Plan([]string{"automations"}, "folder")
	assert.Equal(t, []string{"data_extensions", "queries", "automations"}, plan.AllExtractorNames())

	// Requested wins over exclusion.
	plan = p.Plan([]string{"automations", "folders"}, "folder")
	step, ok := plan.Step("folder")
	require.True(t, ok)
	assert.False(t, step.CacheOnly)
	assert.Equal(t, ReasonRequested, step.Reason)
}

func TestPlan_Deterministic(t *testing.T) {
	t.Parallel()

	p := New(registry.Default())

	first := p.Plan([]string{"journeys", "automations", "triggered_sends"})
	for range 10 {
		again := p.Plan([]string{"triggered_sends", "automations", "journeys"})
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("plan changed between calls (-first +again):\n%s", diff)
		}
	}
}

func TestLayers_Builtin(t *testing.T) {
	t.Parallel()

	p := New(registry.Default())
	plan := p.Plan([]string{"automations"})

	layers := p.Layers(plan.TypeNames())
	want := [][]string{
		{"folder"},
		{"data_extension", "file_transfer"},
		{"data_extract", "event_definition", "filter", "import", "query", "script"},
		{"automation"},
	}
	assert.Equal(t, want, layers)
}

func TestLayers_ChainAndEmpty(t *testing.T) {
	t.Parallel()

	p := New(chainRegistry())

	assert.Equal(t,
		[][]string{{"folder"}, {"data_extension"}, {"query"}, {"automation"}},
		p.Layers([]string{"automation", "query", "folder", "data_extension"}))
	assert.Empty(t, p.Layers(nil))

	// Dependencies outside the set do not hold a type back.
	assert.Equal(t, [][]string{{"automation", "data_extension"}}, p.Layers([]string{"data_extension", "automation"}))
}

func TestCycle_DoesNotFail(t *testing.T) {
	t.Parallel()

	reg := registry.New(
		registry.TypeDefinition{Name: "root"},
		registry.TypeDefinition{Name: "b", Dependencies: []string{"c", "root"}},
		registry.TypeDefinition{Name: "c", Dependencies: []string{"b"}},
	)
	p := New(reg, WithLogger(zaptest.NewLogger(t)))

	assert.Equal(t, []string{"root", "b", "c"}, p.ExtractionOrder([]string{"b", "c", "root"}))
	assert.Equal(t, [][]string{{"root"}, {"b", "c"}}, p.Layers([]string{"c", "b", "root"}))
}

func TestValidateDependencies(t *testing.T) {
	t.Parallel()

	p := New(registry.Default())

	missing := p.ValidateDependencies([]string{"queries"})
	assert.Equal(t, map[string][]string{"queries": {"data_extensions", "folders"}}, missing)

	assert.Empty(t, p.ValidateDependencies([]string{"queries", "data_extensions", "folders"}))
	assert.Empty(t, p.ValidateDependencies([]string{"unknown"}))
}
