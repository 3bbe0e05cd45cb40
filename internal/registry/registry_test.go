package registry

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for Registry:
// - Default registry holds the 20 built-in types with sorted names
// - Definition and ByExtractor resolve the same record
// - Unknown names return false / nil rather than panicking
// - Returned slices and maps are copies
// - Identity field defaults apply to REST types and SOAP overrides survive
// - Shared and multi-account subsets match the built-in table
// - Type <-> extractor maps are inverses
// - Duplicate registrations panic
// - Validate accepts the built-in table and reports unknown deps and cycles

func TestDefault_BuiltinTypes(t *testing.T) {
	t.Parallel()

	r := Default()
	names := r.TypeNames()

	assert.Len(t, names, 20)
	assert.True(t, sort.StringsAreSorted(names))
	assert.Contains(t, names, "automation")
	assert.Contains(t, names, "send_classification")
	assert.NoError(t, r.Validate())
}

func TestDefinition_Lookup(t *testing.T) {
	t.Parallel()

	r := Default()

	def, ok := r.Definition("query")
	require.True(t, ok)
	assert.Equal(t, "queries", def.ExtractorName)
	assert.Equal(t, "queryDefinitionId", def.IDField)
	assert.Equal(t, "key", def.KeyField)
	assert.Equal(t, "name", def.NameField)
	assert.Equal(t, APIRest, def.APIType)
	assert.Equal(t, []string{"data_extension", "folder"}, def.Dependencies)

	byExt, ok := r.ByExtractor("queries")
	require.True(t, ok)
	assert.Equal(t, def, byExt)

	ts, ok := r.Definition("triggered_send")
	require.True(t, ok)
	assert.Equal(t, "ObjectID", ts.IDField)
	assert.Equal(t, "CustomerKey", ts.KeyField)
	assert.Equal(t, APISoap, ts.APIType)
	assert.True(t, ts.SupportsMultiAccount)
}

func TestDefinition_Unknown(t *testing.T) {
	t.Parallel()

	r := Default()

	_, ok := r.Definition("nope")
	assert.False(t, ok)
	_, ok = r.ByExtractor("nope")
	assert.False(t, ok)
	assert.Nil(t, r.DependenciesOf("nope"))
	assert.Nil(t, r.DependencyPathsOf("nope", "query"))
	assert.Nil(t, r.DependencyPathsOf("automation", "nope"))
	assert.Equal(t, "nope", r.TypeForExtractor("nope"))
}

func TestDefinition_ReturnsCopies(t *testing.T) {
	t.Parallel()

	r := Default()

	deps := r.DependenciesOf("automation")
	deps[0] = "mutated"

	def, _ := r.Definition("automation")
	def.DependencyPaths["query"][0] = "mutated"

	assert.Equal(t, "query", r.DependenciesOf("automation")[0])
	assert.Equal(t, []string{"steps[].activities[].objectTypeId=300"}, r.DependencyPathsOf("automation", "query"))
}

func TestDependencyPaths(t *testing.T) {
	t.Parallel()

	r := Default()

	assert.Equal(t,
		[]string{"steps[].activities[].objectTypeId=749", "steps[].activities[].objectTypeId=952"},
		r.DependencyPathsOf("automation", "event_definition"))
	assert.Equal(t,
		[]string{"triggers[].metaData.eventDefinitionId"},
		r.DependencyPathsOf("journey", "event_definition"))
	assert.Equal(t, []string{"Email.ID"}, r.DependencyPathsOf("triggered_send", "classic_email"))
}

func TestSubsets(t *testing.T) {
	t.Parallel()

	r := Default()

	assert.Equal(t, []string{"automation", "event_definition", "journey", "triggered_send"}, r.MultiAccountTypes())
	assert.Equal(t, []string{
		"asset", "classic_email", "data_extension", "delivery_profile", "event_definition",
		"folder", "list", "send_classification", "sender_profile", "template",
	}, r.SharedTypeNames())
}

func TestExtractorMaps(t *testing.T) {
	t.Parallel()

	r := Default()
	t2e := r.TypeToExtractor()
	e2t := r.ExtractorToType()

	require.Len(t, t2e, 20)
	require.Len(t, e2t, 20)
	for typeName, ext := range t2e {
		assert.Equal(t, typeName, e2t[ext])
	}
	assert.Equal(t, "account", t2e["account"])
	assert.Len(t, r.ExtractorNames(), 20)
}

func TestNew_DuplicatePanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		New(TypeDefinition{Name: "a"}, TypeDefinition{Name: "a", ExtractorName: "other"})
	})
	assert.Panics(t, func() {
		New(TypeDefinition{Name: "a", ExtractorName: "x"}, TypeDefinition{Name: "b", ExtractorName: "x"})
	})
}

func TestNew_ExtractorNameDefaultsToType(t *testing.T) {
	t.Parallel()

	r := New(TypeDefinition{Name: "widget"})
	def, ok := r.ByExtractor("widget")
	require.True(t, ok)
	assert.Equal(t, "id", def.IDField)
	assert.Equal(t, "customerKey", def.KeyField)
}

func TestValidate_UnknownDependency(t *testing.T) {
	t.Parallel()

	r := New(TypeDefinition{Name: "a", Dependencies: []string{"ghost"}})

	err := r.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownDependency)
	assert.Contains(t, err.Error(), "a depends on ghost")
}

func TestValidate_Cycle(t *testing.T) {
	t.Parallel()

	r := New(
		TypeDefinition{Name: "a", Dependencies: []string{"b"}},
		TypeDefinition{Name: "b", Dependencies: []string{"a"}},
		TypeDefinition{Name: "c", Dependencies: []string{"missing"}},
	)

	err := r.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDependencyCycle)
	assert.ErrorIs(t, err, ErrUnknownDependency)
	assert.Contains(t, err.Error(), "validation failed:")
}
