package inventory

// Extractor run states as reported in statistics.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// ExtractorStats summarizes one extractor in a run.
type ExtractorStats struct {
	Name            string            `json:"name"`
	Status          string            `json:"status"`
	ItemsExtracted  int               `json:"items_extracted"`
	ItemsEnriched   int               `json:"items_enriched"`
	DurationSeconds float64           `json:"duration_seconds"`
	Errors          []ExtractionError `json:"errors"`
}

// Statistics summarizes a whole run.
type Statistics struct {
	TotalObjects         int                       `json:"total_objects"`
	TotalRelationships   int                       `json:"total_relationships"`
	ExtractorsRun        int                       `json:"extractors_run"`
	ExtractorsSucceeded  int                       `json:"extractors_succeeded"`
	ExtractorsFailed     int                       `json:"extractors_failed"`
	TotalDurationSeconds float64                   `json:"total_duration_seconds"`
	ByExtractor          map[string]ExtractorStats `json:"by_extractor"`
	ByObjectType         map[string]int            `json:"by_object_type"`
}
