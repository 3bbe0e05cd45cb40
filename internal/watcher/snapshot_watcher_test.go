package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ayounce80/sfmc-inv2/internal/graph"
	"github.com/ayounce80/sfmc-inv2/internal/inventory"
	"github.com/ayounce80/sfmc-inv2/internal/runner"
	"github.com/ayounce80/sfmc-inv2/internal/snapshot"
)

// Test Plan for SnapshotWatcher:
// - NewSnapshotWatcher fails for a missing base directory or a file
// - A snapshot written after Start is reported once its manifest exists
// - Several snapshots written within the debounce window arrive in one sorted batch
// - Files that are not manifests, and manifests outside snapshot dirs, are ignored
// - Pause accumulates and Resume reports immediately
// - Stop is idempotent and safe before Start
// - Cancelling the start context stops the watcher

const testDebounce = 50 * time.Millisecond

// collector records callback batches.
type collector struct {
	mu      sync.Mutex
	batches [][]string
	ch      chan struct{}
}

func newCollector() *collector {
	return &collector{ch: make(chan struct{}, 10)}
}

func (c *collector) callback(dirs []string) {
	c.mu.Lock()
	c.batches = append(c.batches, dirs)
	c.mu.Unlock()
	c.ch <- struct{}{}
}

func (c *collector) wait(t *testing.T) []string {
	t.Helper()
	select {
	case <-c.ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for snapshot callback")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batches[len(c.batches)-1]
}

func (c *collector) assertNone(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case <-c.ch:
		t.Fatal("unexpected snapshot callback")
	case <-time.After(within):
	}
}

func writeSnapshot(t *testing.T, base string, at time.Time) string {
	t.Helper()

	queries := inventory.NewResult("queries")
	queries.Success = true
	queries.Items = []inventory.Item{{ID: "q1", Name: "Load", Fields: map[string]any{}}}
	queries.Complete()

	g := graph.New()
	g.Finalize()

	dir, err := snapshot.NewWriter(base, snapshot.WithClock(func() time.Time { return at })).Write(&runner.Result{
		RunID:         uuid.New(),
		StartedAt:     at,
		CompletedAt:   at.Add(time.Second),
		ExtractorsRun: []string{"queries"},
		Results:       map[string]*inventory.ExtractorResult{"queries": queries},
		Graph:         g,
	})
	require.NoError(t, err)
	return dir
}

func startWatcher(t *testing.T, base string) (SnapshotWatcher, *collector) {
	t.Helper()

	w, err := NewSnapshotWatcher(base, WithDebounce(testDebounce), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { w.Stop() })

	c := newCollector()
	require.NoError(t, w.Start(context.Background(), c.callback))
	return w, c
}

func TestNewSnapshotWatcher_Invalid(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	_, err := NewSnapshotWatcher(filepath.Join(base, "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	file := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	_, err = NewSnapshotWatcher(file)
	assert.Error(t, err)
}

func TestSnapshotWatcher_ReportsNewSnapshot(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	_, c := startWatcher(t, base)

	dir := writeSnapshot(t, base, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
	assert.Equal(t, []string{dir}, c.wait(t))
	c.assertNone(t, 3*testDebounce)
}

func TestSnapshotWatcher_BatchesSnapshots(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	w, err := NewSnapshotWatcher(base, WithDebounce(500*time.Millisecond))
	require.NoError(t, err)
	defer w.Stop()
	c := newCollector()
	require.NoError(t, w.Start(context.Background(), c.callback))

	second := writeSnapshot(t, base, time.Date(2025, 1, 2, 3, 4, 6, 0, time.UTC))
	first := writeSnapshot(t, base, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))

	assert.Equal(t, []string{first, second}, c.wait(t))
}

func TestSnapshotWatcher_IgnoresOtherFiles(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	_, c := startWatcher(t, base)

	require.NoError(t, os.WriteFile(filepath.Join(base, snapshot.ManifestFile), []byte("{}"), 0644))
	sub := filepath.Join(base, "inventory_20250102_030405")
	require.NoError(t, os.Mkdir(sub, 0755))
	time.Sleep(testDebounce)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "notes.txt"), []byte("x"), 0644))

	c.assertNone(t, 4*testDebounce)
}

func TestSnapshotWatcher_PauseResume(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	w, c := startWatcher(t, base)

	w.Pause()
	dir := writeSnapshot(t, base, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
	c.assertNone(t, 4*testDebounce)

	w.Resume()
	assert.Equal(t, []string{dir}, c.wait(t))
}

func TestSnapshotWatcher_Stop(t *testing.T) {
	t.Parallel()

	w, err := NewSnapshotWatcher(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	base := t.TempDir()
	w, err = NewSnapshotWatcher(base, WithDebounce(testDebounce))
	require.NoError(t, err)
	c := newCollector()
	require.NoError(t, w.Start(context.Background(), c.callback))
	require.NoError(t, w.Stop())

	writeSnapshot(t, base, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
	c.assertNone(t, 4*testDebounce)
}

func TestSnapshotWatcher_ContextCancel(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	w, err := NewSnapshotWatcher(base, WithDebounce(testDebounce))
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	c := newCollector()
	require.NoError(t, w.Start(ctx, c.callback))
	cancel()
	time.Sleep(testDebounce)

	writeSnapshot(t, base, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
	c.assertNone(t, 4*testDebounce)
}
