package runner

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ayounce80/sfmc-inv2/internal/graph"
	"github.com/ayounce80/sfmc-inv2/internal/inventory"
	"github.com/ayounce80/sfmc-inv2/internal/planner"
)

// Result is the outcome of one run.
type Result struct {
	RunID         uuid.UUID                             `json:"run_id"`
	StartedAt     time.Time                             `json:"started_at"`
	CompletedAt   time.Time                             `json:"completed_at"`
	ExtractorsRun []string                              `json:"extractors_run"`
	Results       map[string]*inventory.ExtractorResult `json:"results"`
	Graph         *graph.Graph                          `json:"relationship_graph"`
	Plan          *planner.Plan                         `json:"plan,omitempty"`
}

func newResult(requested []string) *Result {
	return &Result{
		RunID:         uuid.New(),
		StartedAt:     time.Now(),
		ExtractorsRun: append([]string(nil), requested...),
		Results:       make(map[string]*inventory.ExtractorResult),
		Graph:         graph.New(),
	}
}

// Success reports whether at least one extractor was recorded and every
// recorded extractor succeeded.
func (r *Result) Success() bool {
	if len(r.Results) == 0 {
		return false
	}
	for _, res := range r.Results {
		if !res.Success {
			return false
		}
	}
	return true
}

// PartialSuccess reports whether at least one extractor succeeded.
func (r *Result) PartialSuccess() bool {
	for _, res := range r.Results {
		if res.Success {
			return true
		}
	}
	return false
}

// Duration is zero until the run completes.
func (r *Result) Duration() time.Duration {
	if r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// Names returns the recorded extractor names, sorted.
func (r *Result) Names() []string {
	names := make([]string, 0, len(r.Results))
	for name := range r.Results {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Statistics summarizes the run. Only successful extractors count toward
// TotalObjects; ByObjectType lists every extractor's item count.
func (r *Result) Statistics() inventory.Statistics {
	stats := inventory.Statistics{
		ExtractorsRun:        len(r.ExtractorsRun),
		TotalDurationSeconds: r.Duration().Seconds(),
		ByExtractor:          make(map[string]inventory.ExtractorStats, len(r.Results)),
		ByObjectType:         make(map[string]int, len(r.Results)),
	}

	for name, res := range r.Results {
		status := inventory.StatusFailed
		if res.Success {
			stats.ExtractorsSucceeded++
			stats.TotalObjects += res.ItemCount()
			status = inventory.StatusCompleted
		} else {
			stats.ExtractorsFailed++
		}

		stats.ByObjectType[name] = res.ItemCount()
		stats.ByExtractor[name] = inventory.ExtractorStats{
			Name:            name,
			Status:          status,
			ItemsExtracted:  res.ItemCount(),
			DurationSeconds: res.Duration().Seconds(),
			Errors:          res.Errors,
		}
	}

	if r.Graph != nil {
		stats.TotalRelationships = r.Graph.EdgeCount()
	}
	return stats
}

// Errors returns every recorded extractor error, ordered by extractor name.
func (r *Result) Errors() []inventory.ExtractionError {
	var out []inventory.ExtractionError
	for _, name := range r.Names() {
		out = append(out, r.Results[name].Errors...)
	}
	return out
}
