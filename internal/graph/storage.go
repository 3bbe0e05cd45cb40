package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Save writes the graph as indented JSON using a temp file and rename so
// readers never observe a partial file.
func Save(path string, g *Graph) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create graph directory: %w", err)
	}

	data, err := json.MarshalIndent(g.Data(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal graph data: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".graph-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp graph file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp graph file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp graph file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp graph file: %w", err)
	}
	return nil
}

// Load reads a graph written by Save. The result is finalized.
func Load(path string) (*Graph, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph file: %w", err)
	}

	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("failed to parse graph JSON: %w", err)
	}
	return FromData(d), nil
}
