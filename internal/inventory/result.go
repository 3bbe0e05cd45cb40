package inventory

import (
	"fmt"
	"time"
)

// Error types recorded by the runner.
const (
	ErrorTypeRunner    = "RunnerError"
	ErrorTypeAccount   = "AccountError"
	ErrorTypeCancelled = "Cancelled"
)

// ExtractionError is a non-fatal problem recorded against an extractor.
type ExtractionError struct {
	Extractor string         `json:"extractor"`
	ErrorType string         `json:"error_type"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

func (e ExtractionError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Extractor, e.ErrorType, e.Message)
}

// ExtractorResult is the output of one extractor invocation, or the merged
// output of a multi-account fan-out.
type ExtractorResult struct {
	ExtractorName string            `json:"extractor_name"`
	Success       bool              `json:"success"`
	Items         []Item            `json:"items"`
	Relationships []Edge            `json:"relationships"`
	Errors        []ExtractionError `json:"errors"`
	StartedAt     time.Time         `json:"started_at"`
	CompletedAt   time.Time         `json:"completed_at"`
	PagesFetched  int               `json:"pages_fetched"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
}

// NewResult starts a result for the named extractor.
func NewResult(name string) *ExtractorResult {
	return &ExtractorResult{
		ExtractorName: name,
		StartedAt:     time.Now(),
		Metadata:      make(map[string]any),
	}
}

// ItemCount reports the number of items.
func (r *ExtractorResult) ItemCount() int {
	return len(r.Items)
}

// Duration is zero until the result is completed.
func (r *ExtractorResult) Duration() time.Duration {
	if r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// AddError records an error against the result's extractor.
func (r *ExtractorResult) AddError(errorType, message string) {
	r.Errors = append(r.Errors, ExtractionError{
		Extractor: r.ExtractorName,
		ErrorType: errorType,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// AddRelationship appends an edge.
func (r *ExtractorResult) AddRelationship(e Edge) {
	r.Relationships = append(r.Relationships, e)
}

// SetMeta sets a metadata key, allocating the map if needed.
func (r *ExtractorResult) SetMeta(key string, value any) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]any)
	}
	r.Metadata[key] = value
}

// MetaBool reads a boolean metadata flag.
func (r *ExtractorResult) MetaBool(key string) bool {
	b, _ := r.Metadata[key].(bool)
	return b
}

// Complete stamps the completion time.
func (r *ExtractorResult) Complete() {
	r.CompletedAt = time.Now()
}
