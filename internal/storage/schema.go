package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// SchemaVersion is written to store_metadata when the schema is created.
const SchemaVersion = "1.0"

// CreateSchema creates every table and index of the inventory database in
// one transaction and records the schema version.
func CreateSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback() // Safe to call even after commit

	tables := []struct {
		name string
		ddl  string
	}{
		{"store_metadata", createStoreMetadataTable},
		{"runs", createRunsTable},
		{"extractor_stats", createExtractorStatsTable},
		{"objects", createObjectsTable},
		{"relationships", createRelationshipsTable},
		{"orphans", createOrphansTable},
	}
	for _, table := range tables {
		if _, err := tx.Exec(table.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", table.name, err)
		}
	}

	for i, idx := range indexes {
		if _, err := tx.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index %d: %w", i+1, err)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.Exec(
		"INSERT INTO store_metadata (key, value, updated_at) VALUES ('schema_version', ?, ?)",
		SchemaVersion, now,
	); err != nil {
		return fmt.Errorf("failed to bootstrap store_metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema transaction: %w", err)
	}
	return nil
}

// GetSchemaVersion returns the recorded schema version, or "0" for a new
// database.
func GetSchemaVersion(db *sql.DB) (string, error) {
	var tableExists int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='store_metadata'").Scan(&tableExists)
	if err != nil {
		return "", fmt.Errorf("failed to check store_metadata existence: %w", err)
	}
	if tableExists == 0 {
		return "0", nil
	}

	var version string
	err = db.QueryRow("SELECT value FROM store_metadata WHERE key = 'schema_version'").Scan(&version)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("schema_version key not found in store_metadata")
	}
	if err != nil {
		return "", fmt.Errorf("failed to query schema version: %w", err)
	}
	return version, nil
}

const createStoreMetadataTable = `
CREATE TABLE store_metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL
)
`

const createRunsTable = `
CREATE TABLE runs (
    run_id TEXT PRIMARY KEY,                     -- UUID of the run
    started_at TEXT NOT NULL,                    -- RFC 3339
    completed_at TEXT,
    account_id TEXT NOT NULL DEFAULT '',
    extractors TEXT NOT NULL,                    -- JSON array of requested extractor names
    success INTEGER NOT NULL DEFAULT 0,
    total_objects INTEGER NOT NULL DEFAULT 0,
    total_relationships INTEGER NOT NULL DEFAULT 0
)
`

const createExtractorStatsTable = `
CREATE TABLE extractor_stats (
    run_id TEXT NOT NULL,
    extractor TEXT NOT NULL,
    status TEXT NOT NULL,                        -- completed, failed
    items_extracted INTEGER NOT NULL DEFAULT 0,
    duration_seconds REAL NOT NULL DEFAULT 0,
    error_count INTEGER NOT NULL DEFAULT 0,
    errors TEXT,                                 -- JSON array of extraction errors
    PRIMARY KEY (run_id, extractor),
    FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
)
`

const createObjectsTable = `
CREATE TABLE objects (
    row_id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    extractor TEXT NOT NULL,
    object_type TEXT NOT NULL,
    object_id TEXT NOT NULL,                     -- Empty when the upstream object has no id
    name TEXT NOT NULL DEFAULT '',
    folder_path TEXT NOT NULL DEFAULT '',
    source_account_id TEXT NOT NULL DEFAULT '',
    data TEXT NOT NULL,                          -- Flat JSON object as written to NDJSON
    FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
)
`

const createRelationshipsTable = `
CREATE TABLE relationships (
    relationship_id TEXT PRIMARY KEY,            -- UUID
    run_id TEXT NOT NULL,
    position INTEGER NOT NULL,                   -- Order within the run's graph
    source_id TEXT NOT NULL,
    source_type TEXT NOT NULL,
    source_name TEXT NOT NULL DEFAULT '',
    target_id TEXT NOT NULL,
    target_type TEXT NOT NULL,
    target_name TEXT NOT NULL DEFAULT '',
    relationship_type TEXT NOT NULL,
    metadata TEXT,                               -- JSON object or NULL
    FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
)
`

const createOrphansTable = `
CREATE TABLE orphans (
    run_id TEXT NOT NULL,
    object_type TEXT NOT NULL,
    object_id TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    folder_path TEXT NOT NULL DEFAULT '',
    reason TEXT NOT NULL,
    last_modified TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, object_type, object_id),
    FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
)
`

var indexes = []string{
	"CREATE INDEX idx_objects_run_extractor ON objects(run_id, extractor)",
	"CREATE INDEX idx_objects_lookup ON objects(run_id, object_type, object_id)",
	"CREATE INDEX idx_relationships_run ON relationships(run_id, position)",
	"CREATE INDEX idx_relationships_target ON relationships(run_id, target_type, target_id)",
	"CREATE INDEX idx_relationships_source ON relationships(run_id, source_type, source_id)",
}
