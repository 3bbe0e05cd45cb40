package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/ayounce80/sfmc-inv2/internal/inventory"
)

// ErrRunNotFound is returned when a run id is not stored.
var ErrRunNotFound = errors.New("run not found")

// RunSummary is one row of the runs table.
type RunSummary struct {
	RunID              string
	StartedAt          time.Time
	CompletedAt        time.Time
	AccountID          string
	Extractors         []string
	Success            bool
	TotalObjects       int
	TotalRelationships int
}

var runColumns = []string{
	"run_id", "started_at", "completed_at", "account_id", "extractors",
	"success", "total_objects", "total_relationships",
}

// Runs lists stored runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]RunSummary, error) {
	rows, err := sq.Select(runColumns...).
		From("runs").
		OrderBy("started_at DESC", "run_id").
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Run returns one stored run.
func (s *Store) Run(ctx context.Context, runID string) (RunSummary, error) {
	row := sq.Select(runColumns...).
		From("runs").
		Where(sq.Eq{"run_id": runID}).
		RunWith(s.db).
		QueryRowContext(ctx)

	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunSummary{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunSummary, error) {
	var (
		r          RunSummary
		started    string
		completed  sql.NullString
		extractors string
	)
	if err := row.Scan(&r.RunID, &started, &completed, &r.AccountID, &extractors,
		&r.Success, &r.TotalObjects, &r.TotalRelationships); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("failed to scan run: %w", err)
	}

	var err error
	if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return r, fmt.Errorf("failed to parse started_at: %w", err)
	}
	if completed.Valid {
		if r.CompletedAt, err = time.Parse(time.RFC3339Nano, completed.String); err != nil {
			return r, fmt.Errorf("failed to parse completed_at: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(extractors), &r.Extractors); err != nil {
		return r, fmt.Errorf("failed to parse extractor list: %w", err)
	}
	return r, nil
}

// Objects returns the stored items of one extractor in insertion order.
func (s *Store) Objects(ctx context.Context, runID, extractor string) ([]inventory.Item, error) {
	rows, err := sq.Select("data").
		From("objects").
		Where(sq.Eq{"run_id": runID, "extractor": extractor}).
		OrderBy("row_id").
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query objects: %w", err)
	}
	defer rows.Close()

	var items []inventory.Item
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan object: %w", err)
		}
		var it inventory.Item
		if err := json.Unmarshal([]byte(data), &it); err != nil {
			return nil, fmt.Errorf("failed to decode object: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Relationships returns the stored edges of a run in graph order.
func (s *Store) Relationships(ctx context.Context, runID string) ([]inventory.Edge, error) {
	rows, err := sq.Select("source_id", "source_type", "source_name", "target_id", "target_type",
		"target_name", "relationship_type", "metadata").
		From("relationships").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("position").
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}
	defer rows.Close()

	var edges []inventory.Edge
	for rows.Next() {
		var (
			e   inventory.Edge
			rel string
			md  sql.NullString
		)
		if err := rows.Scan(&e.SourceID, &e.SourceType, &e.SourceName, &e.TargetID, &e.TargetType,
			&e.TargetName, &rel, &md); err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		e.Type = inventory.RelationshipType(rel)
		if md.Valid {
			if err := json.Unmarshal([]byte(md.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode relationship metadata: %w", err)
			}
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// Orphans returns the orphans of a run ordered by type then id.
func (s *Store) Orphans(ctx context.Context, runID string) ([]inventory.Orphan, error) {
	rows, err := sq.Select("object_id", "object_type", "name", "folder_path", "reason", "last_modified").
		From("orphans").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("object_type", "object_id").
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query orphans: %w", err)
	}
	defer rows.Close()

	var out []inventory.Orphan
	for rows.Next() {
		var o inventory.Orphan
		if err := rows.Scan(&o.ID, &o.ObjectType, &o.Name, &o.FolderPath, &o.Reason, &o.LastModified); err != nil {
			return nil, fmt.Errorf("failed to scan orphan: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// RelationshipCounts counts a run's edges per relationship type.
func (s *Store) RelationshipCounts(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := sq.Select("relationship_type", "COUNT(*)").
		From("relationships").
		Where(sq.Eq{"run_id": runID}).
		GroupBy("relationship_type").
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count relationships: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			rel   string
			count int
		)
		if err := rows.Scan(&rel, &count); err != nil {
			return nil, fmt.Errorf("failed to scan relationship count: %w", err)
		}
		out[rel] = count
	}
	return out, rows.Err()
}

// ExtractorStats returns the per-extractor statistics of a run keyed by name.
func (s *Store) ExtractorStats(ctx context.Context, runID string) (map[string]inventory.ExtractorStats, error) {
	rows, err := sq.Select("extractor", "status", "items_extracted", "duration_seconds", "errors").
		From("extractor_stats").
		Where(sq.Eq{"run_id": runID}).
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query extractor stats: %w", err)
	}
	defer rows.Close()

	out := make(map[string]inventory.ExtractorStats)
	for rows.Next() {
		var (
			st   inventory.ExtractorStats
			errs sql.NullString
		)
		if err := rows.Scan(&st.Name, &st.Status, &st.ItemsExtracted, &st.DurationSeconds, &errs); err != nil {
			return nil, fmt.Errorf("failed to scan extractor stats: %w", err)
		}
		if errs.Valid {
			if err := json.Unmarshal([]byte(errs.String), &st.Errors); err != nil {
				return nil, fmt.Errorf("failed to decode extractor errors: %w", err)
			}
		}
		out[st.Name] = st
	}
	return out, rows.Err()
}
