package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/lo"

	"mergeflow/internal/config"
	"mergeflow/internal/db"
	"mergeflow/internal/diff3"
	"mergeflow/internal/httputil"
	"mergeflow/internal/notify"
	"mergeflow/internal/resolve"
)

var (
	// ErrNotDetected is returned by Resolve before any detection ran.
	ErrNotDetected = errors.New("no detection to resolve")
	// ErrNoConflicts is returned by Resolve when the merge is clean.
	ErrNoConflicts = errors.New("merge has no conflicts")
)

// Runner drives detection and resolution for a Session. The store and the
// notifier are optional.
type Runner struct {
	cfg      *config.Config
	store    *db.Store
	resolver resolve.Resolver
	notifier *notify.Notifier
	opts     resolve.Options

	// OnOutcome, when set, is called as each region finishes resolving.
	OnOutcome func(resolve.Outcome)
}

func New(cfg *config.Config, store *db.Store, resolver resolve.Resolver, notifier *notify.Notifier) (*Runner, error) {
	mode, err := resolve.ParseMode(cfg.Resolver.Mode)
	if err != nil {
		return nil, err
	}
	return &Runner{
		cfg:      cfg,
		store:    store,
		resolver: resolver,
		notifier: notifier,
		opts: resolve.Options{
			Mode:           mode,
			MaxConcurrency: cfg.Resolver.MaxConcurrency,
			Timeout:        cfg.ResolverTimeout(),
		},
	}, nil
}

// NewResolver builds the HTTP resolver described by the config.
func NewResolver(cfg *config.Config) resolve.Resolver {
	policy := httputil.DefaultPolicy()
	if cfg.Resolver.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.Resolver.MaxAttempts
	}
	client := httputil.NewClient(&http.Client{}, policy)
	return resolve.NewHTTPResolver(cfg.Resolver.Endpoint, cfg.Resolver.Token, client)
}

// Load reads the session inputs, honouring the configured size limit.
func (r *Runner) Load(s *Session) error {
	return s.Load(r.cfg.Merge.MaxInputBytes)
}

// Detect merges the loaded inputs, or parses the conflicted file, and renders
// the result with conflict markers.
func (r *Runner) Detect(ctx context.Context, s *Session) error {
	if missing := s.Missing(); len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingInput, missing)
	}
	s.clearResolution()

	var res diff3.Result
	if s.Conflicted.Loaded {
		res = diff3.ParseConflicts(s.Conflicted.Lines())
	} else {
		res = diff3.Merge(s.Local.Lines(), s.Base.Lines(), s.Remote.Lines())
	}
	s.Merge = &res
	s.Rendered = diff3.RenderWith(res, diff3.RenderOptions{ShowBase: r.cfg.Merge.ShowBase})

	conflicts := res.ConflictCount()
	slog.Info("pipeline: detected", "files", s.Paths(), "conflicts", conflicts, "lines", len(s.Rendered))

	r.recordDetection(ctx, s, res)

	if conflicts > 0 {
		r.notify(ctx, s, notify.Payload{
			Event:         notify.TriggerConflictsDetected,
			ConflictCount: conflicts,
		})
	}
	return nil
}

func (r *Runner) recordDetection(ctx context.Context, s *Session, res diff3.Result) {
	if r.store == nil {
		return
	}
	in := db.NewRun{ConflictCount: res.ConflictCount(), ConflictLines: res.ConflictLineCount()}
	if s.Conflicted.Loaded {
		in.LocalPath = s.Conflicted.Path
		in.LocalSHA256 = s.Conflicted.SHA256()
	} else {
		in.BasePath, in.BaseSHA256 = s.Base.Path, s.Base.SHA256()
		in.LocalPath, in.LocalSHA256 = s.Local.Path, s.Local.SHA256()
		in.RemotePath, in.RemoteSHA256 = s.Remote.Path, s.Remote.SHA256()
	}
	id, err := r.store.CreateRun(ctx, in)
	if err != nil {
		slog.Warn("pipeline: record run failed", "err", err)
		return
	}
	s.RunID = id
	s.RunState = db.StateDetected
}

// Resolve sends every conflicting region of the last detection to the
// resolver and splices the answers into s.Resolved. Region failures are
// reported in the returned Report, not as an error.
func (r *Runner) Resolve(ctx context.Context, s *Session) (resolve.Report, error) {
	if !s.Detected() {
		return resolve.Report{}, ErrNotDetected
	}
	if s.ConflictCount() == 0 {
		return resolve.Report{}, ErrNoConflicts
	}
	s.clearResolution()
	conflicts := s.Merge.Conflicts()
	r.transition(ctx, s, db.StateResolving)

	opts := r.opts
	opts.OnOutcome = r.OnOutcome
	report := resolve.NewDispatcher(r.resolver, opts).Dispatch(ctx, conflicts)

	s.Report = &report
	s.Resolved = resolve.Splice(*s.Merge, report)

	failed := report.Failed()
	slog.Info("pipeline: resolved",
		"run", s.RunID,
		"mode", report.Mode,
		"regions", len(conflicts),
		"failed", len(failed),
		"elapsed", report.Elapsed.Round(time.Millisecond),
	)

	// History and notifications outlive a cancelled resolution.
	bg := context.WithoutCancel(ctx)
	r.recordResolution(bg, s, report)

	event := notify.TriggerResolved
	if len(failed) > 0 {
		event = notify.TriggerResolutionFailed
	}
	r.notify(bg, s, notify.Payload{
		Event:         event,
		ConflictCount: len(conflicts),
		ResolvedCount: report.ResolvedCount(),
		FailedCount:   len(failed),
		Errors: lo.Map(failed, func(o resolve.Outcome, _ int) string {
			return (&resolve.RegionError{Index: o.Index, Err: o.Err}).Error()
		}),
		ElapsedMS: report.Elapsed.Milliseconds(),
	})
	return report, nil
}

func (r *Runner) recordResolution(ctx context.Context, s *Session, report resolve.Report) {
	if r.store == nil || s.RunID == "" || s.RunState != db.StateResolving {
		return
	}
	for _, o := range report.Outcomes {
		rr := db.RegionResolution{
			RunID:       s.RunID,
			RegionIndex: o.Index,
			Status:      db.RegionResolved,
			DurationMS:  o.Duration.Milliseconds(),
		}
		if o.Failed() {
			rr.Status = db.RegionFailed
			rr.ErrorMessage = o.Err.Error()
		} else {
			rr.Label = o.Resolution.Label.String()
			rr.RawLabel = o.Resolution.RawLabel
			rr.LineCount = len(o.Resolution.Lines)
		}
		if err := r.store.RecordRegion(ctx, rr); err != nil {
			slog.Warn("pipeline: record region failed", "run", s.RunID, "region", o.Index+1, "err", err)
		}
	}
	state, err := r.store.FinishRun(ctx, s.RunID, db.RunSummary{
		Mode:          string(report.Mode),
		ResolvedCount: report.ResolvedCount(),
		FailedCount:   len(report.Failed()),
		Elapsed:       report.Elapsed,
	})
	if err != nil {
		slog.Warn("pipeline: finish run failed", "run", s.RunID, "err", err)
		return
	}
	s.RunState = state
}

// Clear marks the session's run as cleared and resets the session.
func (r *Runner) Clear(ctx context.Context, s *Session) {
	r.transition(ctx, s, db.StateCleared)
	s.Clear()
}

// Reload clears the session, reads the inputs again and re-runs detection.
func (r *Runner) Reload(ctx context.Context, s *Session) error {
	r.Clear(ctx, s)
	if err := r.Load(s); err != nil {
		return err
	}
	return r.Detect(ctx, s)
}

func (r *Runner) transition(ctx context.Context, s *Session, to string) {
	if r.store == nil || s.RunID == "" || s.RunState == to || s.RunState == db.StateCleared {
		return
	}
	if err := r.store.TransitionRun(ctx, s.RunID, s.RunState, to); err != nil {
		slog.Warn("pipeline: run transition failed", "run", s.RunID, "to", to, "err", err)
		return
	}
	s.RunState = to
}

func (r *Runner) notify(ctx context.Context, s *Session, payload notify.Payload) {
	if !r.notifier.Enabled(payload.Event) {
		return
	}
	payload.RunID = s.RunID
	payload.Files = s.Paths()
	r.notifier.Notify(ctx, payload)
}
