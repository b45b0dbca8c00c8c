package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

const runIDPrefix = "mf-run-"

// Run states.
const (
	StateDetected  = "detected"
	StateResolving = "resolving"
	StateResolved  = "resolved"
	StatePartial   = "partial"
	StateCleared   = "cleared"
)

// ErrRunNotFound is returned when no run matches an ID or prefix.
var ErrRunNotFound = errors.New("run not found")

// ValidTransitions defines the allowed run state changes.
var ValidTransitions = map[string][]string{
	StateDetected:  {StateResolving, StateCleared},
	StateResolving: {StateResolved, StatePartial, StateCleared},
	StateResolved:  {StateResolving, StateCleared},
	StatePartial:   {StateResolving, StateCleared},
}

type Run struct {
	ID            string
	BasePath      string
	LocalPath     string
	RemotePath    string
	BaseSHA256    string
	LocalSHA256   string
	RemoteSHA256  string
	ConflictCount int
	ConflictLines int
	State         string
	Mode          string
	ResolvedCount int
	FailedCount   int
	ElapsedMS     int64
	CreatedAt     string
	UpdatedAt     string
	FinishedAt    string
}

// NewRun is the detection summary stored by CreateRun.
type NewRun struct {
	BasePath      string
	LocalPath     string
	RemotePath    string
	BaseSHA256    string
	LocalSHA256   string
	RemoteSHA256  string
	ConflictCount int
	ConflictLines int
}

func (s *Store) CreateRun(ctx context.Context, in NewRun) (string, error) {
	id := runIDPrefix + uuid.NewString()
	const q = `
INSERT INTO merge_runs(id, base_path, local_path, remote_path, base_sha256, local_sha256, remote_sha256,
                       conflict_count, conflict_lines, state)
VALUES(?,?,?,?,?,?,?,?,?,'detected')`
	_, err := s.Writer.ExecContext(ctx, q, id,
		in.BasePath, in.LocalPath, in.RemotePath,
		in.BaseSHA256, in.LocalSHA256, in.RemoteSHA256,
		in.ConflictCount, in.ConflictLines,
	)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return id, nil
}

// TransitionRun validates and performs a state change. Entering 'resolving'
// resets the counters of any previous resolution.
func (s *Store) TransitionRun(ctx context.Context, runID, from, to string) error {
	if !slices.Contains(ValidTransitions[from], to) {
		return fmt.Errorf("invalid transition: %s -> %s", from, to)
	}
	extra := ""
	switch to {
	case StateResolving:
		extra = ", resolved_count = 0, failed_count = 0, elapsed_ms = 0, finished_at = NULL"
	case StateResolved, StatePartial, StateCleared:
		extra = ", finished_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')"
	}
	q := `UPDATE merge_runs SET state = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')` + extra + ` WHERE id = ? AND state = ?`
	res, err := s.Writer.ExecContext(ctx, q, to, runID, from)
	if err != nil {
		return fmt.Errorf("transition run %s %s->%s: %w", runID, from, to, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run %s not in state %s (concurrent modification?)", runID, from)
	}
	return nil
}

// RunSummary is what FinishRun stores at the end of a resolution.
type RunSummary struct {
	Mode          string
	ResolvedCount int
	FailedCount   int
	Elapsed       time.Duration
}

// FinishRun moves a resolving run to 'resolved', or to 'partial' when any
// region failed, and stores the summary.
func (s *Store) FinishRun(ctx context.Context, runID string, sum RunSummary) (string, error) {
	to := StateResolved
	if sum.FailedCount > 0 {
		to = StatePartial
	}
	if err := s.TransitionRun(ctx, runID, StateResolving, to); err != nil {
		return "", err
	}
	const q = `
UPDATE merge_runs
SET mode = ?, resolved_count = ?, failed_count = ?, elapsed_ms = ?
WHERE id = ?`
	if _, err := s.Writer.ExecContext(ctx, q, sum.Mode, sum.ResolvedCount, sum.FailedCount, sum.Elapsed.Milliseconds(), runID); err != nil {
		return "", fmt.Errorf("finish run %s: %w", runID, err)
	}
	return to, nil
}

const runColumns = `id, base_path, local_path, remote_path, base_sha256, local_sha256, remote_sha256,
       conflict_count, conflict_lines, state, mode, resolved_count, failed_count, elapsed_ms,
       created_at, updated_at, COALESCE(finished_at,'')`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var r Run
	err := row.Scan(
		&r.ID, &r.BasePath, &r.LocalPath, &r.RemotePath, &r.BaseSHA256, &r.LocalSHA256, &r.RemoteSHA256,
		&r.ConflictCount, &r.ConflictLines, &r.State, &r.Mode, &r.ResolvedCount, &r.FailedCount, &r.ElapsedMS,
		&r.CreatedAt, &r.UpdatedAt, &r.FinishedAt,
	)
	return r, err
}

func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	r, err := scanRun(s.Reader.QueryRowContext(ctx, `SELECT `+runColumns+` FROM merge_runs WHERE id = ?`, runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
		}
		return Run{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first. limit <= 0 means no limit.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	q := `SELECT ` + runColumns + ` FROM merge_runs ORDER BY created_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.Reader.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ResolveRunID resolves a full ID, a prefixed short form (mf-run-2dad) or a
// bare prefix (2dad) to a single run ID.
func (s *Store) ResolveRunID(ctx context.Context, prefix string) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "", fmt.Errorf("empty run ID: %w", ErrRunNotFound)
	}

	var id string
	err := s.Reader.QueryRowContext(ctx, `SELECT id FROM merge_runs WHERE id = ?`, prefix).Scan(&id)
	if err == nil {
		return id, nil
	}

	like := prefix + "%"
	if !strings.HasPrefix(prefix, runIDPrefix) {
		like = runIDPrefix + prefix + "%"
	}
	rows, err := s.Reader.QueryContext(ctx, `SELECT id FROM merge_runs WHERE id LIKE ? ORDER BY created_at DESC LIMIT 2`, like)
	if err != nil {
		return "", fmt.Errorf("resolve run ID %q: %w", prefix, err)
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return "", fmt.Errorf("scan run ID: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("resolve run ID %q: %w", prefix, err)
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no run matching %q: %w", prefix, ErrRunNotFound)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("ambiguous run prefix %q: matches %s and others", prefix, ShortID(matches[0]))
	}
}

// ShortID returns the first 8 hex characters of a run ID.
func ShortID(id string) string {
	id = strings.TrimPrefix(id, runIDPrefix)
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
