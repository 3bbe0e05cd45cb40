package runner

import (
	"time"

	"github.com/ayounce80/sfmc-inv2/internal/inventory"
)

// Config controls a run.
type Config struct {
	MaxConcurrentExtractors int
	MaxConcurrentRequests   int

	PageSize       int
	MaxPages       int
	IncludeDetails bool
	IncludeContent bool

	BaseDelay time.Duration
	MaxDelay  time.Duration

	// UsePlanner runs extractors in dependency layers. Without it every
	// requested extractor starts at once.
	UsePlanner          bool
	IncludeDependencies bool
	// CacheOnlyTypes names extractors (or their type names) whose results feed
	// the graph but are left out of Result.Results.
	CacheOnlyTypes []string

	EnableMultiAccount bool
	// ChildAccountIDs takes precedence over DefaultChildAccountIDs, which is
	// normally filled from the credentials config.
	ChildAccountIDs        []string
	DefaultChildAccountIDs []string

	ExtractorOptions map[string]Override
}

// Override replaces selected options for one extractor. Nil fields keep the
// run-wide value.
type Override struct {
	PageSize       *int
	MaxPages       *int
	MaxConcurrent  *int
	IncludeDetails *bool
	IncludeContent *bool
	Extensions     map[string]any
}

// DefaultConfig returns the default run configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentExtractors: 3,
		MaxConcurrentRequests:   5,
		PageSize:                500,
		MaxPages:                100,
		IncludeDetails:          true,
		IncludeContent:          false,
		BaseDelay:               300 * time.Millisecond,
		MaxDelay:                60 * time.Second,
		UsePlanner:              true,
		IncludeDependencies:     true,
		EnableMultiAccount:      true,
	}
}

func (c Config) childAccountIDs() []string {
	if len(c.ChildAccountIDs) > 0 {
		return c.ChildAccountIDs
	}
	return c.DefaultChildAccountIDs
}

func (o Override) apply(opts *inventory.Options) {
	if o.PageSize != nil {
		opts.PageSize = *o.PageSize
	}
	if o.MaxPages != nil {
		opts.MaxPages = *o.MaxPages
	}
	if o.MaxConcurrent != nil {
		opts.MaxConcurrent = *o.MaxConcurrent
	}
	if o.IncludeDetails != nil {
		opts.IncludeDetails = *o.IncludeDetails
	}
	if o.IncludeContent != nil {
		opts.IncludeContent = *o.IncludeContent
	}
	if len(o.Extensions) > 0 {
		ext := make(map[string]any, len(opts.Extensions)+len(o.Extensions))
		for k, v := range opts.Extensions {
			ext[k] = v
		}
		for k, v := range o.Extensions {
			ext[k] = v
		}
		opts.Extensions = ext
	}
}
