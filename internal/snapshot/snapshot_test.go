package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"

	"github.com/ayounce80/sfmc-inv2/internal/graph"
	"github.com/ayounce80/sfmc-inv2/internal/inventory"
	"github.com/ayounce80/sfmc-inv2/internal/runner"
)

// Test Plan for snapshots:
// - Directory names carry the account MID when set and a sortable timestamp
// - Write lays out objects, relationships, orphans, manifest and statistics
// - Extractors without items get no object file
// - Open/Objects/Graph read back what Write stored
// - Snapshots without edges still expose their orphans
// - Result rebuilds run metadata, per-extractor status, items and the graph
// - YAML format adds manifest.yaml with the JSON keys
// - Unsupported formats are rejected
// - Latest picks the newest timestamp regardless of MID
// - Archiver uploads every file under prefix/dirname and creates the bucket once

var fixedTime = time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

func sampleResult(t *testing.T, withEdges bool) *runner.Result {
	t.Helper()

	g := graph.New()
	if withEdges {
		require.NoError(t, g.AddEdges([]inventory.Edge{
			{SourceID: "a1", SourceType: "automation", TargetID: "q1", TargetType: "query", Type: inventory.AutomationContainsQuery},
		}))
	}
	g.AddOrphan(inventory.Orphan{ID: "q2", ObjectType: "query", Name: "Unused", Reason: graph.OrphanReason})
	g.Finalize()

	queries := inventory.NewResult("queries")
	queries.Success = true
	queries.Items = []inventory.Item{
		{ID: "q1", Name: "Load", Fields: map[string]any{"key": "LOAD_Q"}},
		{ID: "q2", Name: "Unused", FolderPath: "Query > Old", Fields: map[string]any{"key": "OLD_Q"}},
	}
	queries.Complete()

	filters := inventory.NewResult("filters")
	filters.AddError(inventory.ErrorTypeRunner, "rest 500")
	filters.Complete()

	return &runner.Result{
		RunID:         uuid.New(),
		StartedAt:     fixedTime,
		CompletedAt:   fixedTime.Add(2 * time.Second),
		ExtractorsRun: []string{"queries", "filters"},
		Results:       map[string]*inventory.ExtractorResult{"queries": queries, "filters": filters},
		Graph:         g,
	}
}

func TestWriter_DirName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "inventory_100_20250304_050607", NewWriter("", WithAccountID("100")).DirName(fixedTime))
	assert.Equal(t, "inventory_20250304_050607", NewWriter("").DirName(fixedTime))
}

func TestWriteAndOpen(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	result := sampleResult(t, true)
	w := NewWriter(base,
		WithAccountID("100"),
		WithSubdomain("mc123"),
		WithPreset("automation"),
		WithToolVersion("1.2.3"),
		WithClock(func() time.Time { return fixedTime }),
		WithLogger(zaptest.NewLogger(t)))

	dir, err := w.Write(result)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "inventory_100_20250304_050607"), dir)

	for _, f := range []string{ManifestFile, StatisticsFile, "objects/queries.ndjson", GraphFile, OrphansFile} {
		assert.FileExists(t, filepath.Join(dir, f))
	}
	assert.NoFileExists(t, filepath.Join(dir, "objects/filters.ndjson"))
	assert.NoFileExists(t, filepath.Join(dir, ManifestYAMLFile))

	leftovers, err := filepath.Glob(filepath.Join(dir, "*", ".snapshot-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)

	snap, err := Open(dir)
	require.NoError(t, err)

	md := snap.Manifest.Metadata
	assert.Equal(t, FormatVersion, md.Version)
	assert.Equal(t, "1.2.3", md.ToolVersion)
	assert.Equal(t, result.RunID.String(), md.RunID)
	assert.Equal(t, "mc123", md.Subdomain)
	assert.Equal(t, "100", md.AccountID)
	assert.Equal(t, "automation", md.PresetUsed)
	assert.Equal(t, FormatJSON, md.OutputFormat)
	assert.Equal(t, []string{"queries", "filters"}, md.SelectedExtractors)
	assert.True(t, md.ExtractionStarted.Equal(fixedTime))

	assert.Equal(t, map[string]string{
		"queries":       "objects/queries.ndjson",
		"relationships": GraphFile,
		"orphans":       OrphansFile,
	}, snap.Manifest.Files)
	assert.Equal(t, []string{"queries"}, snap.Extractors())

	stats := snap.Manifest.Statistics
	assert.Equal(t, 2, stats.TotalObjects)
	assert.Equal(t, 1, stats.TotalRelationships)
	assert.Equal(t, 1, stats.ExtractorsFailed)
	require.Len(t, snap.Manifest.Errors, 1)
	assert.Equal(t, "rest 500", snap.Manifest.Errors[0].Message)

	items, err := snap.Objects("queries")
	require.NoError(t, err)
	assert.Equal(t, result.Results["queries"].Items, items)

	none, err := snap.Objects("filters")
	require.NoError(t, err)
	assert.Empty(t, none)

	g, err := snap.Graph()
	require.NoError(t, err)
	assert.Equal(t, result.Graph.Edges(), g.Edges())
	assert.Equal(t, result.Graph.Orphans(), g.Orphans())

	raw, err := os.ReadFile(filepath.Join(dir, StatisticsFile))
	require.NoError(t, err)
	var fileStats inventory.Statistics
	require.NoError(t, json.Unmarshal(raw, &fileStats))
	assert.Equal(t, stats.ByObjectType, fileStats.ByObjectType)
}

func TestOpen_OrphansWithoutEdges(t *testing.T) {
	t.Parallel()

	dir, err := NewWriter(t.TempDir()).Write(sampleResult(t, false))
	require.NoError(t, err)

	snap, err := Open(dir)
	require.NoError(t, err)
	assert.NotContains(t, snap.Manifest.Files, FilesKeyRelationships)

	g, err := snap.Graph()
	require.NoError(t, err)
	assert.Empty(t, g.Edges())
	require.Len(t, g.Orphans(), 1)
	assert.Equal(t, "q2", g.Orphans()[0].ID)
	assert.Equal(t, 1, g.Stats().OrphanedCount)
}

func TestSnapshot_Result(t *testing.T) {
	t.Parallel()

	original := sampleResult(t, true)
	dir, err := NewWriter(t.TempDir()).Write(original)
	require.NoError(t, err)

	snap, err := Open(dir)
	require.NoError(t, err)
	got, err := snap.Result()
	require.NoError(t, err)

	assert.Equal(t, original.RunID, got.RunID)
	assert.True(t, got.StartedAt.Equal(original.StartedAt))
	assert.True(t, got.CompletedAt.Equal(original.CompletedAt))
	assert.Equal(t, original.ExtractorsRun, got.ExtractorsRun)
	assert.Equal(t, []string{"filters", "queries"}, got.Names())

	assert.True(t, got.Results["queries"].Success)
	assert.Equal(t, original.Results["queries"].Items, got.Results["queries"].Items)
	assert.False(t, got.Results["filters"].Success)
	require.Len(t, got.Results["filters"].Errors, 1)
	assert.Equal(t, "rest 500", got.Results["filters"].Errors[0].Message)

	assert.Equal(t, original.Graph.Edges(), got.Graph.Edges())
	assert.Equal(t, original.Statistics().TotalObjects, got.Statistics().TotalObjects)
}

func TestSnapshot_ResultInvalidRunID(t *testing.T) {
	t.Parallel()

	dir, err := NewWriter(t.TempDir()).Write(sampleResult(t, false))
	require.NoError(t, err)
	snap, err := Open(dir)
	require.NoError(t, err)

	snap.Manifest.Metadata.RunID = "not-a-uuid"
	_, err = snap.Result()
	assert.ErrorContains(t, err, "invalid run id")
}

func TestWriter_YAML(t *testing.T) {
	t.Parallel()

	dir, err := NewWriter(t.TempDir(), WithFormat(FormatYAML)).Write(sampleResult(t, true))
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, ManifestYAMLFile))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "{", "block style only")

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(raw, &doc))
	md := doc["metadata"].(map[string]any)
	assert.Equal(t, FormatYAML, md["output_format"])
	stats := doc["statistics"].(map[string]any)
	assert.Equal(t, 2, stats["total_objects"])
}

func TestWriter_UnsupportedFormat(t *testing.T) {
	t.Parallel()

	_, err := NewWriter(t.TempDir(), WithFormat("csv")).Write(sampleResult(t, true))
	assert.ErrorContains(t, err, `unsupported output format "csv"`)
}

func TestLatest(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	for _, name := range []string{
		"inventory_20250101_000000",
		"inventory_999_20250301_120000",
		"inventory_100_20250302_080000",
		"unrelated",
	} {
		require.NoError(t, os.Mkdir(filepath.Join(base, name), 0755))
	}

	got, err := Latest(base)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "inventory_100_20250302_080000"), got)

	_, err = Latest(t.TempDir())
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

type fakeStore struct {
	exists      bool
	makeCalls   int
	existsCalls int
	puts        map[string]string
	failKey     string
}

func (s *fakeStore) BucketExists(context.Context, string) (bool, error) {
	s.existsCalls++
	return s.exists, nil
}

func (s *fakeStore) MakeBucket(context.Context, string, minio.MakeBucketOptions) error {
	s.makeCalls++
	s.exists = true
	return nil
}

func (s *fakeStore) FPutObject(_ context.Context, _, key, _ string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if key == s.failKey {
		return minio.UploadInfo{}, errors.New("access denied")
	}
	s.puts[key] = opts.ContentType
	return minio.UploadInfo{Key: key}, nil
}

func TestArchiver_Upload(t *testing.T) {
	t.Parallel()

	dir, err := NewWriter(t.TempDir(), WithAccountID("100"), WithClock(func() time.Time { return fixedTime })).
		Write(sampleResult(t, true))
	require.NoError(t, err)

	store := &fakeStore{puts: make(map[string]string)}
	a := newArchiver(store, "inventories", "us-east-1", "/nightly/", zaptest.NewLogger(t))

	keys, err := a.Upload(context.Background(), dir)
	require.NoError(t, err)

	sort.Strings(keys)
	assert.Equal(t, []string{
		"nightly/inventory_100_20250304_050607/manifest.json",
		"nightly/inventory_100_20250304_050607/objects/queries.ndjson",
		"nightly/inventory_100_20250304_050607/relationships/graph.json",
		"nightly/inventory_100_20250304_050607/relationships/orphans.json",
		"nightly/inventory_100_20250304_050607/statistics.json",
	}, keys)
	assert.Equal(t, "application/x-ndjson", store.puts["nightly/inventory_100_20250304_050607/objects/queries.ndjson"])
	assert.Equal(t, "application/json", store.puts["nightly/inventory_100_20250304_050607/manifest.json"])
	assert.Equal(t, 1, store.makeCalls)

	_, err = a.Upload(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, store.existsCalls)

	store.failKey = "nightly/inventory_100_20250304_050607/statistics.json"
	_, err = a.Upload(context.Background(), dir)
	assert.ErrorContains(t, err, "failed to upload statistics.json")
}

func TestNewArchiver_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewArchiver(ArchiveConfig{}, nil)
	assert.ErrorContains(t, err, "endpoint is required")

	_, err = NewArchiver(ArchiveConfig{Endpoint: "localhost:9000", Bucket: "b"}, nil)
	assert.ErrorContains(t, err, "access key and secret key are required")

	_, err = NewArchiver(ArchiveConfig{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s"}, nil)
	assert.ErrorContains(t, err, "bucket is required")

	a, err := NewArchiver(ArchiveConfig{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s", Bucket: "b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", a.region)
}
