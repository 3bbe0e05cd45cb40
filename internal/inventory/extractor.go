package inventory

import (
	"context"
	"fmt"
	"sort"

	"github.com/ayounce80/sfmc-inv2/internal/ratelimit"
)

// ProgressFunc receives extractor-level progress: a stage label and counts.
type ProgressFunc func(stage string, current, total int)

// Options tune a single extractor invocation.
type Options struct {
	PageSize       int
	MaxPages       int
	IncludeDetails bool
	IncludeContent bool
	MaxConcurrent  int

	// AccountID selects a business unit; empty means the default account.
	AccountID string
	// Limiter paces the extractor's own API calls. May be nil.
	Limiter  *ratelimit.Limiter
	Progress ProgressFunc

	// Extensions carries extractor-specific settings.
	Extensions map[string]any
}

// DefaultOptions returns the baseline options.
func DefaultOptions() Options {
	return Options{
		PageSize:       500,
		MaxPages:       100,
		IncludeDetails: true,
		MaxConcurrent:  5,
	}
}

// Report calls Progress when one is set.
func (o Options) Report(stage string, current, total int) {
	if o.Progress != nil {
		o.Progress(stage, current, total)
	}
}

// Extractor fetches every object of one type from one account.
type Extractor interface {
	Name() string
	SupportsMultiAccount() bool
	Extract(ctx context.Context, opts Options) (*ExtractorResult, error)
}

// Catalog creates extractors. accountID is empty for the default account;
// multi-account runs ask for one extractor per child account.
type Catalog interface {
	Extractor(name, accountID string) (Extractor, error)
	Names() []string
}

// Factory builds an extractor bound to an account.
type Factory func(accountID string) (Extractor, error)

// MapCatalog is a Catalog backed by a name -> factory map.
type MapCatalog map[string]Factory

func (c MapCatalog) Extractor(name, accountID string) (Extractor, error) {
	f, ok := c[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExtractor, name)
	}
	return f(accountID)
}

func (c MapCatalog) Names() []string {
	out := make([]string, 0, len(c))
	for name := range c {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ExtractorFunc adapts a function into an Extractor.
type ExtractorFunc struct {
	ExtractorName string
	MultiAccount  bool
	Fn            func(ctx context.Context, opts Options) (*ExtractorResult, error)
}

func (f ExtractorFunc) Name() string               { return f.ExtractorName }
func (f ExtractorFunc) SupportsMultiAccount() bool { return f.MultiAccount }

func (f ExtractorFunc) Extract(ctx context.Context, opts Options) (*ExtractorResult, error) {
	return f.Fn(ctx, opts)
}
