package cache

import (
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ayounce80/sfmc-inv2/internal/inventory"
)

const (
	DefaultSeparator = " > "
	defaultMemoSize  = 4096
	rootFolderID     = "0"
)

// Breadcrumbs builds folder paths such as "Marketing > Campaigns > 2025 Q1"
// from a folder table keyed by id. Paths are memoised.
type Breadcrumbs struct {
	mu        sync.Mutex
	folders   map[string]map[string]any
	separator string
	nameKey   string
	parentKey string
	memoSize  int
	memo      *lru.Cache[string, string]
	missing   map[string]struct{}
}

// BreadcrumbOption configures Breadcrumbs.
type BreadcrumbOption func(*Breadcrumbs)

// WithSeparator sets the string placed between path segments.
func WithSeparator(sep string) BreadcrumbOption {
	return func(b *Breadcrumbs) { b.separator = sep }
}

// WithKeys sets the folder fields holding the name and the parent id.
func WithKeys(nameKey, parentKey string) BreadcrumbOption {
	return func(b *Breadcrumbs) {
		b.nameKey = nameKey
		b.parentKey = parentKey
	}
}

// WithMemoSize bounds the number of memoised paths.
func WithMemoSize(n int) BreadcrumbOption {
	return func(b *Breadcrumbs) {
		if n > 0 {
			b.memoSize = n
		}
	}
}

// NewBreadcrumbs creates a builder over folders.
func NewBreadcrumbs(folders map[string]map[string]any, opts ...BreadcrumbOption) *Breadcrumbs {
	b := &Breadcrumbs{
		folders:   folders,
		separator: DefaultSeparator,
		nameKey:   "name",
		parentKey: "parentId",
		memoSize:  defaultMemoSize,
		missing:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	// Size is always positive here, the only error lru.New reports.
	b.memo, _ = lru.New[string, string](b.memoSize)
	return b
}

// Build returns the path of a folder, or "" when it is unknown or the root.
// Unknown folders met along the way are remembered; see Missing.
func (b *Breadcrumbs) Build(folderID string) string {
	if folderID == "" {
		return ""
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.build(folderID, make(map[string]bool))
}

func (b *Breadcrumbs) build(id string, visiting map[string]bool) string {
	if id == "" || id == rootFolderID {
		return ""
	}
	if path, ok := b.memo.Get(id); ok {
		return path
	}

	folder, ok := b.folders[id]
	if !ok || folder == nil {
		b.missing[id] = struct{}{}
		return ""
	}
	if visiting[id] {
		// Parent chain loops back; treat this folder as a root.
		return ""
	}
	visiting[id] = true

	name := inventory.Stringify(folder[b.nameKey])
	parentID := inventory.Stringify(folder[b.parentKey])

	path := name
	if parentID != "" && parentID != rootFolderID {
		if parent := b.build(parentID, visiting); parent != "" {
			path = parent + b.separator + name
		}
	}

	b.memo.Add(id, path)
	return path
}

// Missing returns the ids of folders referenced but absent, sorted.
func (b *Breadcrumbs) Missing() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, 0, len(b.missing))
	for id := range b.missing {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ClearMemo drops memoised paths.
func (b *Breadcrumbs) ClearMemo() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.memo.Purge()
}

// Update swaps in a new folder table and resets memoised paths and the
// missing set.
func (b *Breadcrumbs) Update(folders map[string]map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.folders = folders
	b.memo.Purge()
	b.missing = make(map[string]struct{})
}

// BuildPath is a one-shot Build over folders.
func BuildPath(folderID string, folders map[string]map[string]any, opts ...BreadcrumbOption) string {
	return NewBreadcrumbs(folders, opts...).Build(folderID)
}
