package db

import (
	"context"
	"fmt"
)

const schemaVersion = 1

const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER NOT NULL,
    applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
);

CREATE TABLE IF NOT EXISTS merge_runs (
    id             TEXT PRIMARY KEY,
    base_path      TEXT NOT NULL DEFAULT '',
    local_path     TEXT NOT NULL DEFAULT '',
    remote_path    TEXT NOT NULL DEFAULT '',
    base_sha256    TEXT NOT NULL,
    local_sha256   TEXT NOT NULL,
    remote_sha256  TEXT NOT NULL,
    conflict_count INTEGER NOT NULL DEFAULT 0 CHECK(conflict_count >= 0),
    conflict_lines INTEGER NOT NULL DEFAULT 0 CHECK(conflict_lines >= 0),
    state          TEXT NOT NULL DEFAULT 'detected'
        CHECK(state IN ('detected','resolving','resolved','partial','cleared')),
    mode           TEXT NOT NULL DEFAULT '',
    resolved_count INTEGER NOT NULL DEFAULT 0 CHECK(resolved_count >= 0),
    failed_count   INTEGER NOT NULL DEFAULT 0 CHECK(failed_count >= 0),
    elapsed_ms     INTEGER NOT NULL DEFAULT 0 CHECK(elapsed_ms >= 0),
    created_at     TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
    updated_at     TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
    finished_at    TEXT
);

CREATE INDEX IF NOT EXISTS idx_merge_runs_state ON merge_runs(state);
CREATE INDEX IF NOT EXISTS idx_merge_runs_created ON merge_runs(created_at);

CREATE TABLE IF NOT EXISTS region_resolutions (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id        TEXT NOT NULL REFERENCES merge_runs(id) ON DELETE CASCADE,
    region_index  INTEGER NOT NULL CHECK(region_index >= 0),
    label         TEXT NOT NULL DEFAULT '' CHECK(label IN ('','local','remote','complex')),
    raw_label     TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL CHECK(status IN ('resolved','failed')),
    error_message TEXT NOT NULL DEFAULT '',
    duration_ms   INTEGER NOT NULL DEFAULT 0 CHECK(duration_ms >= 0),
    line_count    INTEGER NOT NULL DEFAULT 0 CHECK(line_count >= 0),
    created_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
    UNIQUE(run_id, region_index)
);

CREATE INDEX IF NOT EXISTS idx_region_resolutions_run ON region_resolutions(run_id);
`

func (s *Store) createSchema() error {
	if _, err := s.Writer.Exec(schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	var count int
	if err := s.Writer.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count); err != nil {
		return fmt.Errorf("check schema version: %w", err)
	}
	if count == 0 {
		if _, err := s.Writer.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("insert schema version: %w", err)
		}
	}
	return nil
}

// RecoverInterruptedRuns marks runs left in 'resolving' by a process that
// exited mid-resolution as 'partial'.
func (s *Store) RecoverInterruptedRuns(ctx context.Context) (int64, error) {
	res, err := s.Writer.ExecContext(ctx, `
UPDATE merge_runs
SET state = 'partial',
    failed_count = MAX(conflict_count - resolved_count, 0),
    updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
WHERE state = 'resolving'`)
	if err != nil {
		return 0, fmt.Errorf("recover interrupted runs: %w", err)
	}
	return res.RowsAffected()
}
