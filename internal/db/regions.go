package db

import (
	"context"
	"fmt"
)

// Region statuses.
const (
	RegionResolved = "resolved"
	RegionFailed   = "failed"
)

const maxErrorMessageLen = 1024

type RegionResolution struct {
	RunID        string
	RegionIndex  int
	Label        string
	RawLabel     string
	Status       string
	ErrorMessage string
	DurationMS   int64
	LineCount    int
	CreatedAt    string
}

// RecordRegion stores the outcome for one region. A later resolution of the
// same run replaces the earlier row.
func (s *Store) RecordRegion(ctx context.Context, r RegionResolution) error {
	if r.Status != RegionResolved && r.Status != RegionFailed {
		return fmt.Errorf("invalid region status %q", r.Status)
	}
	if len(r.ErrorMessage) > maxErrorMessageLen {
		r.ErrorMessage = r.ErrorMessage[:maxErrorMessageLen]
	}
	const q = `
INSERT INTO region_resolutions(run_id, region_index, label, raw_label, status, error_message, duration_ms, line_count)
VALUES(?,?,?,?,?,?,?,?)
ON CONFLICT(run_id, region_index) DO UPDATE SET
    label = excluded.label,
    raw_label = excluded.raw_label,
    status = excluded.status,
    error_message = excluded.error_message,
    duration_ms = excluded.duration_ms,
    line_count = excluded.line_count,
    created_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')`
	_, err := s.Writer.ExecContext(ctx, q,
		r.RunID, r.RegionIndex, r.Label, r.RawLabel, r.Status, r.ErrorMessage, r.DurationMS, r.LineCount)
	if err != nil {
		return fmt.Errorf("record region %d of run %s: %w", r.RegionIndex, r.RunID, err)
	}
	return nil
}

// ListRegions returns the recorded regions of a run in region order.
func (s *Store) ListRegions(ctx context.Context, runID string) ([]RegionResolution, error) {
	const q = `
SELECT run_id, region_index, label, raw_label, status, error_message, duration_ms, line_count, created_at
FROM region_resolutions WHERE run_id = ? ORDER BY region_index ASC`
	rows, err := s.Reader.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("list regions of run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []RegionResolution
	for rows.Next() {
		var r RegionResolution
		if err := rows.Scan(&r.RunID, &r.RegionIndex, &r.Label, &r.RawLabel, &r.Status,
			&r.ErrorMessage, &r.DurationMS, &r.LineCount, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan region: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
