package snapshot

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ayounce80/sfmc-inv2/internal/graph"
	"github.com/ayounce80/sfmc-inv2/internal/inventory"
	"github.com/ayounce80/sfmc-inv2/internal/runner"
)

// ErrNoSnapshot is returned by Latest when baseDir holds no snapshot.
var ErrNoSnapshot = errors.New("no snapshot found")

const maxLineSize = 16 << 20

// Snapshot is an opened snapshot directory.
type Snapshot struct {
	Dir      string
	Manifest Manifest
}

// Open reads the manifest of a snapshot directory.
func Open(dir string) (*Snapshot, error) {
	raw, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if m.Files == nil {
		m.Files = make(map[string]string)
	}
	return &Snapshot{Dir: dir, Manifest: m}, nil
}

// Extractors returns the extractor names with an object file, sorted.
func (s *Snapshot) Extractors() []string {
	var names []string
	for key := range s.Manifest.Files {
		if key == FilesKeyRelationships || key == FilesKeyOrphans {
			continue
		}
		names = append(names, key)
	}
	sort.Strings(names)
	return names
}

// Objects returns the stored items of one extractor. An extractor without
// an object file has no items.
func (s *Snapshot) Objects(name string) ([]inventory.Item, error) {
	rel, ok := s.Manifest.Files[name]
	if !ok {
		return nil, nil
	}

	f, err := os.Open(filepath.Join(s.Dir, filepath.FromSlash(rel)))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s objects: %w", name, err)
	}
	defer f.Close()

	var items []inventory.Item
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var it inventory.Item
		if err := json.Unmarshal([]byte(text), &it); err != nil {
			return nil, fmt.Errorf("failed to parse %s line %d: %w", rel, line, err)
		}
		items = append(items, it)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rel, err)
	}
	return items, nil
}

// Graph loads the stored relationship graph. Snapshots without edges still
// carry their orphans.
func (s *Snapshot) Graph() (*graph.Graph, error) {
	if rel, ok := s.Manifest.Files[FilesKeyRelationships]; ok {
		return graph.Load(filepath.Join(s.Dir, filepath.FromSlash(rel)))
	}

	g := graph.New()
	if rel, ok := s.Manifest.Files[FilesKeyOrphans]; ok {
		raw, err := os.ReadFile(filepath.Join(s.Dir, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("failed to read orphans: %w", err)
		}
		var orphans []inventory.Orphan
		if err := json.Unmarshal(raw, &orphans); err != nil {
			return nil, fmt.Errorf("failed to parse orphans: %w", err)
		}
		for _, o := range orphans {
			g.AddOrphan(o)
		}
	}
	g.Finalize()
	return g, nil
}

// Result rebuilds the run result the snapshot was written from. Every
// extractor in the manifest statistics gets a result with its stored items,
// status and errors. Per-extractor relationships are not kept in a snapshot;
// they are only available through the merged graph.
func (s *Snapshot) Result() (*runner.Result, error) {
	md := s.Manifest.Metadata
	runID, err := uuid.Parse(md.RunID)
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", md.RunID, err)
	}
	g, err := s.Graph()
	if err != nil {
		return nil, err
	}

	result := &runner.Result{
		RunID:         runID,
		StartedAt:     md.ExtractionStarted,
		CompletedAt:   md.ExtractionCompleted,
		ExtractorsRun: append([]string(nil), md.SelectedExtractors...),
		Results:       make(map[string]*inventory.ExtractorResult),
		Graph:         g,
	}

	names := make(map[string]bool)
	for name := range s.Manifest.Statistics.ByExtractor {
		names[name] = true
	}
	for _, name := range s.Extractors() {
		names[name] = true
	}
	for name := range names {
		items, err := s.Objects(name)
		if err != nil {
			return nil, err
		}
		st, ok := s.Manifest.Statistics.ByExtractor[name]
		res := &inventory.ExtractorResult{
			ExtractorName: name,
			Success:       !ok || st.Status == inventory.StatusCompleted,
			Items:         items,
			Errors:        st.Errors,
			StartedAt:     md.ExtractionStarted,
			CompletedAt:   md.ExtractionStarted.Add(time.Duration(st.DurationSeconds * float64(time.Second))),
			Metadata:      make(map[string]any),
		}
		result.Results[name] = res
	}
	return result, nil
}

// Latest returns the most recent snapshot directory under baseDir, judged by
// the timestamp suffix of its name.
func Latest(baseDir string) (string, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to list %s: %w", baseDir, err)
	}

	var best, bestStamp string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), dirPrefix) {
			continue
		}
		name := e.Name()
		if len(name) < len(timestampLayout) {
			continue
		}
		stamp := name[len(name)-len(timestampLayout):]
		if stamp > bestStamp || (stamp == bestStamp && name > filepath.Base(best)) {
			best, bestStamp = filepath.Join(baseDir, name), stamp
		}
	}
	if best == "" {
		return "", fmt.Errorf("%w in %s", ErrNoSnapshot, baseDir)
	}
	return best, nil
}
