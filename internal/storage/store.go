package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/ayounce80/sfmc-inv2/internal/inventory"
	"github.com/ayounce80/sfmc-inv2/internal/registry"
	"github.com/ayounce80/sfmc-inv2/internal/runner"
)

// insertBatchSize bounds the rows per multi-row INSERT.
const insertBatchSize = 200

// Store is a SQLite database of inventory runs.
type Store struct {
	db     *sql.DB
	reg    *registry.Registry
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithRegistry sets the registry used to map extractors to object types.
func WithRegistry(reg *registry.Registry) Option {
	return func(s *Store) {
		if reg != nil {
			s.reg = reg
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open opens or creates the database at path and creates the schema if
// needed.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps pragmas and writes consistent.
	db.SetMaxOpenConns(1)

	version, err := GetSchemaVersion(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to check schema version: %w", err)
	}
	if version == "0" {
		if err := CreateSchema(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	s := &Store{db: db, reg: registry.Default(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB exposes the underlying connection for ad-hoc queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// WriteRun stores a run with its objects, relationships, orphans and
// per-extractor statistics in one transaction. Writing the same run again
// replaces it.
func (s *Store) WriteRun(ctx context.Context, result *runner.Result, accountID string) error {
	runID := result.RunID.String()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Safe to call even after commit

	if _, err := sq.Delete("runs").Where(sq.Eq{"run_id": runID}).RunWith(tx).ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to clear previous run: %w", err)
	}

	stats := result.Statistics()
	extractors, err := json.Marshal(result.ExtractorsRun)
	if err != nil {
		return fmt.Errorf("failed to encode extractor list: %w", err)
	}

	_, err = sq.Insert("runs").
		Columns("run_id", "started_at", "completed_at", "account_id", "extractors", "success", "total_objects", "total_relationships").
		Values(
			runID,
			formatTime(result.StartedAt),
			nullableTime(result.CompletedAt),
			accountID,
			string(extractors),
			result.Success(),
			stats.TotalObjects,
			stats.TotalRelationships,
		).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, name := range result.Names() {
		if err := s.writeExtractor(ctx, tx, runID, name, result.Results[name], stats.ByExtractor[name]); err != nil {
			return err
		}
	}

	if result.Graph != nil {
		if err := writeRelationships(ctx, tx, runID, result.Graph.Edges()); err != nil {
			return err
		}
		if err := writeOrphans(ctx, tx, runID, result.Graph.Orphans()); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug("run stored",
		zap.String("run_id", runID),
		zap.Int("objects", stats.TotalObjects),
		zap.Int("relationships", stats.TotalRelationships))
	return nil
}

func (s *Store) writeExtractor(ctx context.Context, tx *sql.Tx, runID, name string, res *inventory.ExtractorResult, st inventory.ExtractorStats) error {
	errs, err := json.Marshal(res.Errors)
	if err != nil {
		return fmt.Errorf("failed to encode %s errors: %w", name, err)
	}

	_, err = sq.Insert("extractor_stats").
		Columns("run_id", "extractor", "status", "items_extracted", "duration_seconds", "error_count", "errors").
		Values(runID, name, st.Status, st.ItemsExtracted, st.DurationSeconds, len(res.Errors), string(errs)).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert %s stats: %w", name, err)
	}

	objectType := s.reg.TypeForExtractor(name)
	for start := 0; start < len(res.Items); start += insertBatchSize {
		end := min(start+insertBatchSize, len(res.Items))

		q := sq.Insert("objects").
			Columns("run_id", "extractor", "object_type", "object_id", "name", "folder_path", "source_account_id", "data")
		for _, it := range res.Items[start:end] {
			data, err := json.Marshal(it)
			if err != nil {
				return fmt.Errorf("failed to encode %s object %s: %w", name, it.ID, err)
			}
			q = q.Values(runID, name, objectType, it.ID, it.Name, it.FolderPath, it.SourceAccountID, string(data))
		}
		if _, err := q.RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("failed to insert %s objects: %w", name, err)
		}
	}
	return nil
}

func writeRelationships(ctx context.Context, tx *sql.Tx, runID string, edges []inventory.Edge) error {
	for start := 0; start < len(edges); start += insertBatchSize {
		end := min(start+insertBatchSize, len(edges))

		q := sq.Insert("relationships").
			Columns("relationship_id", "run_id", "position", "source_id", "source_type", "source_name",
				"target_id", "target_type", "target_name", "relationship_type", "metadata")
		for i, e := range edges[start:end] {
			md, err := nullableJSON(e.Metadata)
			if err != nil {
				return fmt.Errorf("failed to encode relationship metadata: %w", err)
			}
			q = q.Values(uuid.NewString(), runID, start+i, e.SourceID, e.SourceType, e.SourceName,
				e.TargetID, e.TargetType, e.TargetName, string(e.Type), md)
		}
		if _, err := q.RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("failed to insert relationships: %w", err)
		}
	}
	return nil
}

func writeOrphans(ctx context.Context, tx *sql.Tx, runID string, orphans []inventory.Orphan) error {
	for _, o := range orphans {
		_, err := sq.Insert("orphans").
			Columns("run_id", "object_type", "object_id", "name", "folder_path", "reason", "last_modified").
			Values(runID, o.ObjectType, o.ID, o.Name, o.FolderPath, o.Reason, o.LastModified).
			Options("OR IGNORE").
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert orphan %s: %w", o.ID, err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func nullableJSON(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
