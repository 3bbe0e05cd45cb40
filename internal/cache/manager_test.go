package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// Test Plan for Manager:
// - Get loads on first use and reuses the result
// - Concurrent first access triggers exactly one load
// - Warm reports per-type success; a failed type can be retried
// - Clear forces a reload; ClearAll drops everything
// - Lookup and LookupByName fall back to the parent account with tagged copies
// - Lookup without a distinct parent never falls back
// - Breadcrumb resolves through the folder cache and counts missing folders
// - Stats reflects loaded caches and account caches
// - IsSharedResource and TypesForObjectTypes

type countingLoader struct {
	mu    sync.Mutex
	calls map[Type]int
	data  map[Type]map[string]map[string]any
	fail  map[Type]error
	delay time.Duration
}

func newCountingLoader() *countingLoader {
	return &countingLoader{
		calls: make(map[Type]int),
		data:  make(map[Type]map[string]map[string]any),
		fail:  make(map[Type]error),
	}
}

func (l *countingLoader) Load(_ context.Context, t Type) (map[string]map[string]any, error) {
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[t]++
	if err := l.fail[t]; err != nil {
		return nil, err
	}
	return l.data[t], nil
}

func (l *countingLoader) count(t Type) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[t]
}

func newManager(t *testing.T, loader Loader, opts ...Option) *Manager {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	m, err := NewManager(loader, opts...)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestManager_LazyLoad(t *testing.T) {
	t.Parallel()

	loader := newCountingLoader()
	loader.data[Queries] = map[string]map[string]any{"q1": {"name": "Load"}}
	m := newManager(t, loader)

	ctx := context.Background()
	items, err := m.Get(ctx, Queries)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	_, err = m.Get(ctx, Queries)
	require.NoError(t, err)
	assert.Equal(t, 1, loader.count(Queries))

	empty, err := m.Get(ctx, Scripts)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestManager_SingleLoadUnderConcurrency(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	loader := LoaderFunc(func(context.Context, Type) (map[string]map[string]any, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return map[string]map[string]any{"f1": {"name": "Root"}}, nil
	})
	m := newManager(t, loader)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Get(context.Background(), DEFolders)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestManager_WarmAndClear(t *testing.T) {
	t.Parallel()

	loader := newCountingLoader()
	loader.fail[Emails] = errors.New("soap fault")
	m := newManager(t, loader)
	ctx := context.Background()

	got := m.Warm(ctx, []Type{QueryFolders, Emails})
	assert.Equal(t, map[Type]bool{QueryFolders: true, Emails: false}, got)

	_, err := m.Get(ctx, Emails)
	assert.ErrorContains(t, err, "failed to load emails cache")

	loader.mu.Lock()
	delete(loader.fail, Emails)
	loader.mu.Unlock()
	assert.Equal(t, map[Type]bool{Emails: true}, m.Warm(ctx, []Type{Emails}))

	m.Clear(QueryFolders)
	_, err = m.Get(ctx, QueryFolders)
	require.NoError(t, err)
	assert.Equal(t, 2, loader.count(QueryFolders))

	m.ClearAll()
	assert.Empty(t, m.Stats().LoadedCaches)
}

func TestManager_ParentFallback(t *testing.T) {
	t.Parallel()

	loader := newCountingLoader()
	loader.data[Queries] = map[string]map[string]any{
		"q1": {"name": "Local"},
	}
	m := newManager(t, loader, WithAccounts("200", "100"))
	m.StoreForAccount("100", Queries, map[string]map[string]any{
		"q9": {"name": "ENT.Shared"},
	})
	ctx := context.Background()

	item, ok, err := m.Lookup(ctx, Queries, "q1", true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, item, FromParentKey)

	item, ok, err = m.Lookup(ctx, Queries, "q9", true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, true, item[FromParentKey])
	assert.Equal(t, "100", item[ParentAccountKey])
	assert.NotContains(t, m.AccountCache("100", Queries)["q9"], FromParentKey, "stored item is not modified")

	_, ok, err = m.Lookup(ctx, Queries, "q9", false)
	require.NoError(t, err)
	assert.False(t, ok)

	item, ok, err = m.LookupByName(ctx, Queries, "Local", "", true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Local", item["name"])

	// Second call is served from the name memo.
	item, ok, err = m.LookupByName(ctx, Queries, "Local", "name", true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Local", item["name"])

	item, ok, err = m.LookupByName(ctx, Queries, "ENT.Shared", "name", true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, IsSharedResource(item))

	_, ok, err = m.LookupByName(ctx, Queries, "Nope", "name", true)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManager_NoDistinctParent(t *testing.T) {
	t.Parallel()

	m := newManager(t, newCountingLoader(), WithAccounts("100", "100"))
	m.StoreForAccount("100", Scripts, map[string]map[string]any{"s1": {"name": "x"}})

	assert.False(t, m.HasParentAccount())
	_, ok, err := m.Lookup(context.Background(), Scripts, "s1", true)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManager_Breadcrumb(t *testing.T) {
	t.Parallel()

	loader := newCountingLoader()
	loader.data[AutomationFolders] = map[string]map[string]any{
		"1": {"name": "Automations", "parentId": nil},
		"2": {"name": "Nightly", "parentId": "1"},
		"3": {"name": "Lost", "parentId": "77"},
	}
	m := newManager(t, loader)
	ctx := context.Background()

	path, err := m.Breadcrumb(ctx, AutomationFolders, "2")
	require.NoError(t, err)
	assert.Equal(t, "Automations > Nightly", path)

	path, err = m.Breadcrumb(ctx, AutomationFolders, "3")
	require.NoError(t, err)
	assert.Equal(t, "Lost", path)

	path, err = m.Breadcrumb(ctx, AutomationFolders, "")
	require.NoError(t, err)
	assert.Equal(t, "", path)

	stats := m.Stats()
	assert.Equal(t, map[Type]map[string]int{AutomationFolders: {"77": 1}}, stats.MissingFolders)
}

func TestManager_Stats(t *testing.T) {
	t.Parallel()

	loader := newCountingLoader()
	loader.data[Queries] = map[string]map[string]any{"q1": {}, "q2": {}}
	m := newManager(t, loader, WithAccounts("200", "100"))
	m.StoreForAccount("100", DEFolders, map[string]map[string]any{"f1": {}})

	m.Warm(context.Background(), []Type{Scripts, Queries})

	s := m.Stats()
	assert.Equal(t, []Type{Queries, Scripts}, s.LoadedCaches)
	assert.Equal(t, map[Type]int{Queries: 2, Scripts: 0}, s.CacheSizes)
	assert.Contains(t, s.LoadTimes, Queries)
	assert.Equal(t, "200", s.AccountID)
	assert.Equal(t, "100", s.ParentAccountID)
	assert.Equal(t, map[string]map[Type]int{"200": {}, "100": {DEFolders: 1}}, s.AccountCacheSizes)
}

func TestIsSharedResource(t *testing.T) {
	t.Parallel()

	assert.True(t, IsSharedResource(map[string]any{FromParentKey: true}))
	assert.True(t, IsSharedResource(map[string]any{"name": "ENT.Customers"}))
	assert.True(t, IsSharedResource(map[string]any{"name": "_ENT.Customers"}))
	assert.True(t, IsSharedResource(map[string]any{"folderPath": "Data Extensions > Shared Items"}))
	assert.False(t, IsSharedResource(map[string]any{"name": "Customers", "folderPath": "Data Extensions"}))
	assert.False(t, IsSharedResource(nil))
}

func TestTypesForObjectTypes(t *testing.T) {
	t.Parallel()

	got := TypesForObjectTypes([]string{"triggered_send", "query", "folder", "query"})
	assert.Equal(t, []Type{Emails, QueryFolders, TriggeredSendFolders}, got)
	assert.Empty(t, TypesForObjectTypes(nil))
	assert.Len(t, AllTypes(), 18)
}
