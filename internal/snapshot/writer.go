package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ayounce80/sfmc-inv2/internal/graph"
	"github.com/ayounce80/sfmc-inv2/internal/inventory"
	"github.com/ayounce80/sfmc-inv2/internal/runner"
)

const (
	dirPrefix       = "inventory_"
	timestampLayout = "20060102_150405"
)

// Writer lays out a run result as a snapshot directory:
//
//	inventory_<mid>_<YYYYMMDD_HHMMSS>/
//	  manifest.json
//	  statistics.json
//	  objects/<extractor>.ndjson
//	  relationships/graph.json
//	  relationships/orphans.json
type Writer struct {
	baseDir     string
	subdomain   string
	accountID   string
	preset      string
	format      string
	toolVersion string
	now         func() time.Time
	logger      *zap.Logger
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

func WithSubdomain(subdomain string) WriterOption {
	return func(w *Writer) { w.subdomain = subdomain }
}

// WithAccountID records the account MID and includes it in the directory name.
func WithAccountID(id string) WriterOption {
	return func(w *Writer) { w.accountID = id }
}

func WithPreset(name string) WriterOption {
	return func(w *Writer) { w.preset = name }
}

// WithFormat selects json (default) or yaml. YAML adds manifest.yaml next to
// manifest.json.
func WithFormat(format string) WriterOption {
	return func(w *Writer) {
		if format != "" {
			w.format = format
		}
	}
}

func WithToolVersion(v string) WriterOption {
	return func(w *Writer) { w.toolVersion = v }
}

// WithClock overrides the time source used for the directory name.
func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) {
		if now != nil {
			w.now = now
		}
	}
}

func WithLogger(logger *zap.Logger) WriterOption {
	return func(w *Writer) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWriter creates a writer placing snapshots under baseDir.
func NewWriter(baseDir string, opts ...WriterOption) *Writer {
	w := &Writer{
		baseDir:     baseDir,
		format:      FormatJSON,
		toolVersion: "dev",
		now:         time.Now,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// DirName returns the snapshot directory name for the given time.
func (w *Writer) DirName(t time.Time) string {
	if w.accountID != "" {
		return dirPrefix + w.accountID + "_" + t.Format(timestampLayout)
	}
	return dirPrefix + t.Format(timestampLayout)
}

// Write stores result and returns the snapshot directory.
func (w *Writer) Write(result *runner.Result) (string, error) {
	if w.format != FormatJSON && w.format != FormatYAML {
		return "", fmt.Errorf("unsupported output format %q", w.format)
	}

	dir := filepath.Join(w.baseDir, w.DirName(w.now()))
	for _, d := range []string{dir, filepath.Join(dir, ObjectsDir), filepath.Join(dir, RelationshipsDir)} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return "", fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}

	files := make(map[string]string)

	for _, name := range result.Names() {
		res := result.Results[name]
		if len(res.Items) == 0 {
			continue
		}
		rel := ObjectsDir + "/" + name + ".ndjson"
		if err := writeAtomic(filepath.Join(dir, rel), func(f io.Writer) error {
			return writeNDJSON(f, res.Items)
		}); err != nil {
			return "", fmt.Errorf("failed to write %s objects: %w", name, err)
		}
		files[name] = rel
	}

	if result.Graph != nil && result.Graph.EdgeCount() > 0 {
		if err := graph.Save(filepath.Join(dir, GraphFile), result.Graph); err != nil {
			return "", err
		}
		files[FilesKeyRelationships] = GraphFile
	}

	if result.Graph != nil {
		if orphans := result.Graph.Orphans(); len(orphans) > 0 {
			if err := writeJSONFile(filepath.Join(dir, OrphansFile), orphans); err != nil {
				return "", fmt.Errorf("failed to write orphans: %w", err)
			}
			files[FilesKeyOrphans] = OrphansFile
		}
	}

	stats := result.Statistics()
	errs := result.Errors()
	if errs == nil {
		errs = []inventory.ExtractionError{}
	}
	manifest := Manifest{
		Metadata: Metadata{
			Version:             FormatVersion,
			ToolVersion:         w.toolVersion,
			RunID:               result.RunID.String(),
			ExtractionStarted:   result.StartedAt,
			ExtractionCompleted: result.CompletedAt,
			Subdomain:           w.subdomain,
			AccountID:           w.accountID,
			SelectedExtractors:  result.ExtractorsRun,
			PresetUsed:          w.preset,
			OutputFormat:        w.format,
		},
		Statistics: stats,
		Files:      files,
		Errors:     errs,
	}

	if err := writeJSONFile(filepath.Join(dir, ManifestFile), manifest); err != nil {
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := writeJSONFile(filepath.Join(dir, StatisticsFile), stats); err != nil {
		return "", fmt.Errorf("failed to write statistics: %w", err)
	}

	if w.format == FormatYAML {
		data, err := manifestYAML(manifest)
		if err != nil {
			return "", err
		}
		if err := writeAtomic(filepath.Join(dir, ManifestYAMLFile), func(f io.Writer) error {
			_, err := f.Write(data)
			return err
		}); err != nil {
			return "", fmt.Errorf("failed to write YAML manifest: %w", err)
		}
	}

	w.logger.Info("wrote inventory snapshot",
		zap.String("dir", dir),
		zap.Int("object_files", len(result.Results)),
		zap.Int("relationships", stats.TotalRelationships))

	return dir, nil
}

func writeNDJSON(w io.Writer, items []inventory.Item) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for _, it := range items {
		if err := enc.Encode(it); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeJSONFile(path string, v any) error {
	return writeAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(v)
	})
}

// writeAtomic writes through a temp file in the target directory and renames
// it into place.
func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
