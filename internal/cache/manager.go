// Package cache holds folder hierarchies and object definitions that
// extractors consult while they run. Each data set loads lazily on first use
// and can be pre-warmed before a layer of extractors starts.
package cache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/maypok86/otter"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// FromParentKey marks an item returned from the parent account's cache.
	FromParentKey = "_fromParentBU"
	// ParentAccountKey records which parent account an item came from.
	ParentAccountKey = "_parentAccountId"

	defaultNameMemoSize = 10_000
)

// Loader fetches the contents of one cache type, keyed by object id.
type Loader interface {
	Load(ctx context.Context, t Type) (map[string]map[string]any, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, t Type) (map[string]map[string]any, error)

func (f LoaderFunc) Load(ctx context.Context, t Type) (map[string]map[string]any, error) {
	return f(ctx, t)
}

// Stats describes what the manager holds.
type Stats struct {
	LoadedCaches      []Type                  `json:"loaded_caches"`
	CacheSizes        map[Type]int            `json:"cache_sizes"`
	LoadTimes         map[Type]time.Duration  `json:"load_times"`
	MissingFolders    map[Type]map[string]int `json:"missing_folders"`
	AccountID         string                  `json:"account_id"`
	ParentAccountID   string                  `json:"parent_account_id"`
	AccountCacheSizes map[string]map[Type]int `json:"account_cache_sizes"`
}

// Manager is a lazy, concurrency-safe cache of account data.
//
// The current account's data is loaded through the Loader. Data for other
// accounts, typically the parent of an enterprise account, is stored
// explicitly with StoreForAccount and only consulted by lookups that allow
// parent fallback.
type Manager struct {
	loader Loader
	logger *zap.Logger

	mu        sync.RWMutex
	caches    map[Type]map[string]map[string]any
	loaded    map[Type]bool
	loadTimes map[Type]time.Duration
	crumbs    map[Type]*Breadcrumbs
	missing   map[Type]map[string]int

	accountID       string
	parentAccountID string
	accounts        map[string]map[Type]map[string]map[string]any

	group singleflight.Group
	names otter.Cache[string, string]
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithAccounts sets the current and parent account ids.
func WithAccounts(accountID, parentAccountID string) Option {
	return func(m *Manager) {
		m.accountID = accountID
		m.parentAccountID = parentAccountID
	}
}

// NewManager creates a manager that loads through loader. A nil loader
// yields empty caches.
func NewManager(loader Loader, opts ...Option) (*Manager, error) {
	names, err := otter.MustBuilder[string, string](defaultNameMemoSize).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create name cache: %w", err)
	}

	m := &Manager{
		loader:    loader,
		logger:    zap.NewNop(),
		caches:    make(map[Type]map[string]map[string]any),
		loaded:    make(map[Type]bool),
		loadTimes: make(map[Type]time.Duration),
		crumbs:    make(map[Type]*Breadcrumbs),
		missing:   make(map[Type]map[string]int),
		accounts:  make(map[string]map[Type]map[string]map[string]any),
		names:     names,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.SetAccounts(m.accountID, m.parentAccountID)
	return m, nil
}

// Close releases the name memo.
func (m *Manager) Close() {
	m.names.Close()
}

// Get returns the items of a cache type, loading them on first use. The
// returned map is shared and must not be modified.
func (m *Manager) Get(ctx context.Context, t Type) (map[string]map[string]any, error) {
	if err := m.ensureLoaded(ctx, t); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.caches[t], nil
}

// Warm loads each type, reporting per type whether it is available.
// Failures are logged and do not stop the remaining types.
func (m *Manager) Warm(ctx context.Context, types []Type) map[Type]bool {
	out := make(map[Type]bool, len(types))
	for _, t := range types {
		if err := m.ensureLoaded(ctx, t); err != nil {
			m.logger.Error("failed to warm cache", zap.String("cache", string(t)), zap.Error(err))
			out[t] = false
			continue
		}
		out[t] = true
	}
	return out
}

// ensureLoaded loads t at most once. Concurrent callers for the same type
// share one Loader call.
func (m *Manager) ensureLoaded(ctx context.Context, t Type) error {
	if m.isLoaded(t) {
		return nil
	}

	_, err, _ := m.group.Do(string(t), func() (any, error) {
		if m.isLoaded(t) {
			return nil, nil
		}

		start := time.Now()
		items := map[string]map[string]any{}
		if m.loader != nil {
			loaded, err := m.loader.Load(ctx, t)
			if err != nil {
				return nil, fmt.Errorf("failed to load %s cache: %w", t, err)
			}
			if loaded != nil {
				items = loaded
			}
		} else {
			m.logger.Warn("no loader for cache type", zap.String("cache", string(t)))
		}
		elapsed := time.Since(start)

		m.mu.Lock()
		m.caches[t] = items
		m.loaded[t] = true
		m.loadTimes[t] = elapsed
		m.mu.Unlock()

		m.logger.Debug("loaded cache",
			zap.String("cache", string(t)),
			zap.Int("items", len(items)),
			zap.Duration("elapsed", elapsed))
		return nil, nil
	})
	return err
}

func (m *Manager) isLoaded(t Type) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded[t]
}

// Clear drops one cache type so the next access reloads it.
func (m *Manager) Clear(t Type) {
	m.mu.Lock()
	delete(m.caches, t)
	delete(m.loaded, t)
	delete(m.crumbs, t)
	m.mu.Unlock()
	m.names.Clear()
}

// ClearAll drops every loaded cache type.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	m.caches = make(map[Type]map[string]map[string]any)
	m.loaded = make(map[Type]bool)
	m.crumbs = make(map[Type]*Breadcrumbs)
	m.mu.Unlock()
	m.names.Clear()
}

// Breadcrumb returns the folder path of folderID within a folder cache type.
func (m *Manager) Breadcrumb(ctx context.Context, t Type, folderID string) (string, error) {
	if folderID == "" {
		return "", nil
	}
	if err := m.ensureLoaded(ctx, t); err != nil {
		return "", err
	}

	m.mu.Lock()
	b, ok := m.crumbs[t]
	if !ok {
		b = NewBreadcrumbs(m.caches[t])
		m.crumbs[t] = b
	}
	m.mu.Unlock()

	path := b.Build(folderID)

	if missing := b.Missing(); len(missing) > 0 {
		m.mu.Lock()
		counts := m.missing[t]
		if counts == nil {
			counts = make(map[string]int)
			m.missing[t] = counts
		}
		for _, id := range missing {
			counts[id]++
		}
		m.mu.Unlock()
	}
	return path, nil
}

// SetAccounts sets the current and parent account ids.
func (m *Manager) SetAccounts(accountID, parentAccountID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.accountID = accountID
	m.parentAccountID = parentAccountID
	for _, id := range []string{accountID, parentAccountID} {
		if id != "" && m.accounts[id] == nil {
			m.accounts[id] = make(map[Type]map[string]map[string]any)
		}
	}
}

// AccountID returns the current account id.
func (m *Manager) AccountID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accountID
}

// ParentAccountID returns the parent account id.
func (m *Manager) ParentAccountID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.parentAccountID
}

// HasParentAccount reports whether a distinct parent account is configured.
func (m *Manager) HasParentAccount() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasParentLocked()
}

func (m *Manager) hasParentLocked() bool {
	return m.parentAccountID != "" && m.parentAccountID != m.accountID
}

// StoreForAccount stores items for another account.
func (m *Manager) StoreForAccount(accountID string, t Type, items map[string]map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.accounts[accountID] == nil {
		m.accounts[accountID] = make(map[Type]map[string]map[string]any)
	}
	m.accounts[accountID][t] = items
}

// AccountCache returns the items stored for an account, or nil.
func (m *Manager) AccountCache(accountID string, t Type) map[string]map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accounts[accountID][t]
}

// Lookup finds an item by key in the current account, then, when
// allowParent is set, in the parent account. Parent items are returned as
// copies tagged with FromParentKey and ParentAccountKey.
func (m *Manager) Lookup(ctx context.Context, t Type, key string, allowParent bool) (map[string]any, bool, error) {
	if err := m.ensureLoaded(ctx, t); err != nil {
		return nil, false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if item, ok := m.caches[t][key]; ok && item != nil {
		return item, true, nil
	}
	if allowParent && m.hasParentLocked() {
		if item, ok := m.accounts[m.parentAccountID][t][key]; ok && item != nil {
			return m.fromParent(item), true, nil
		}
	}
	return nil, false, nil
}

// LookupByName finds an item whose nameField equals name, with the same
// fallback rules as Lookup. Hits in the current account are memoised until
// the type is cleared.
func (m *Manager) LookupByName(ctx context.Context, t Type, name, nameField string, allowParent bool) (map[string]any, bool, error) {
	if nameField == "" {
		nameField = "name"
	}
	if err := m.ensureLoaded(ctx, t); err != nil {
		return nil, false, err
	}

	memoKey := strings.Join([]string{string(t), nameField, name}, "\x1f")

	m.mu.RLock()
	defer m.mu.RUnlock()

	current := m.caches[t]
	if id, ok := m.names.Get(memoKey); ok {
		if item, ok := current[id]; ok {
			return item, true, nil
		}
	}

	for _, id := range sortedIDs(current) {
		item := current[id]
		if s, ok := item[nameField].(string); ok && s == name {
			m.names.Set(memoKey, id)
			return item, true, nil
		}
	}

	if allowParent && m.hasParentLocked() {
		parent := m.accounts[m.parentAccountID][t]
		for _, id := range sortedIDs(parent) {
			item := parent[id]
			if s, ok := item[nameField].(string); ok && s == name {
				return m.fromParent(item), true, nil
			}
		}
	}
	return nil, false, nil
}

func (m *Manager) fromParent(item map[string]any) map[string]any {
	out := make(map[string]any, len(item)+2)
	for k, v := range item {
		out[k] = v
	}
	out[FromParentKey] = true
	out[ParentAccountKey] = m.parentAccountID
	return out
}

func sortedIDs(items map[string]map[string]any) []string {
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsSharedResource reports whether an item looks shared from the parent
// account: tagged by a parent lookup, named with an enterprise prefix, or
// filed under a shared or enterprise folder.
func IsSharedResource(item map[string]any) bool {
	if b, _ := item[FromParentKey].(bool); b {
		return true
	}
	name, _ := item["name"].(string)
	if strings.HasPrefix(name, "ENT.") || strings.HasPrefix(name, "_ENT.") {
		return true
	}
	path, _ := item["folderPath"].(string)
	path = strings.ToLower(path)
	return strings.Contains(path, "shared") || strings.Contains(path, "enterprise")
}

// Stats returns a snapshot of what is loaded.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{
		CacheSizes:        make(map[Type]int, len(m.loaded)),
		LoadTimes:         make(map[Type]time.Duration, len(m.loadTimes)),
		MissingFolders:    make(map[Type]map[string]int),
		AccountID:         m.accountID,
		ParentAccountID:   m.parentAccountID,
		AccountCacheSizes: make(map[string]map[Type]int, len(m.accounts)),
	}
	for t := range m.loaded {
		s.LoadedCaches = append(s.LoadedCaches, t)
		s.CacheSizes[t] = len(m.caches[t])
	}
	sort.Slice(s.LoadedCaches, func(i, j int) bool { return s.LoadedCaches[i] < s.LoadedCaches[j] })
	for t, d := range m.loadTimes {
		s.LoadTimes[t] = d
	}
	for t, counts := range m.missing {
		if len(counts) == 0 {
			continue
		}
		cp := make(map[string]int, len(counts))
		for id, n := range counts {
			cp[id] = n
		}
		s.MissingFolders[t] = cp
	}
	for acct, caches := range m.accounts {
		sizes := make(map[Type]int, len(caches))
		for t, items := range caches {
			sizes[t] = len(items)
		}
		s.AccountCacheSizes[acct] = sizes
	}
	return s
}
