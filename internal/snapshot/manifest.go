package snapshot

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ayounce80/sfmc-inv2/internal/inventory"
)

// FormatVersion is the on-disk layout version recorded in every manifest.
const FormatVersion = "1.0.0"

// Well-known file names inside a snapshot directory.
const (
	ManifestFile     = "manifest.json"
	ManifestYAMLFile = "manifest.yaml"
	StatisticsFile   = "statistics.json"
	ObjectsDir       = "objects"
	RelationshipsDir = "relationships"
	GraphFile        = "relationships/graph.json"
	OrphansFile      = "relationships/orphans.json"

	// Keys of Manifest.Files that are not extractor names.
	FilesKeyRelationships = "relationships"
	FilesKeyOrphans       = "orphans"
)

// Output formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Metadata describes how and where a snapshot was taken.
type Metadata struct {
	Version             string    `json:"version"`
	ToolVersion         string    `json:"tool_version"`
	RunID               string    `json:"run_id"`
	ExtractionStarted   time.Time `json:"extraction_started"`
	ExtractionCompleted time.Time `json:"extraction_completed"`
	Subdomain           string    `json:"sfmc_subdomain"`
	AccountID           string    `json:"sfmc_account_id,omitempty"`
	SelectedExtractors  []string  `json:"selected_extractors"`
	PresetUsed          string    `json:"preset_used,omitempty"`
	OutputFormat        string    `json:"output_format"`
}

// Manifest is the entry point of a snapshot. Files maps an extractor name
// (or "relationships" / "orphans") to a path relative to the snapshot dir.
type Manifest struct {
	Metadata   Metadata                    `json:"metadata"`
	Statistics inventory.Statistics        `json:"statistics"`
	Files      map[string]string           `json:"files"`
	Errors     []inventory.ExtractionError `json:"errors"`
}

// manifestYAML renders the manifest as YAML with the same keys as its JSON
// form. The JSON document is parsed as a YAML node tree and re-emitted in
// block style.
func manifestYAML(m Manifest) ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to convert manifest to YAML: %w", err)
	}
	blockStyle(&doc)

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest YAML: %w", err)
	}
	return out, nil
}

func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
