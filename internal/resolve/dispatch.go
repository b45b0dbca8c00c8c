package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"mergeflow/internal/diff3"
	"mergeflow/internal/httputil"
)

// Mode selects how regions are sent to the resolver.
type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeConcurrent Mode = "concurrent"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSequential, ModeConcurrent:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown resolve mode %q (want %q or %q)", s, ModeSequential, ModeConcurrent)
	}
}

type Options struct {
	Mode           Mode
	MaxConcurrency int           // concurrent mode only; <= 0 means one task per region
	Timeout        time.Duration // per region; 0 disables

	// OnOutcome is called as each region finishes. In concurrent mode it
	// runs on the worker goroutine and must be safe for concurrent use.
	OnOutcome func(Outcome)
}

// Outcome is the result of resolving the region at Index, the position of
// the conflict among all conflicting regions of the merge.
type Outcome struct {
	Index      int            `json:"index"`
	Conflict   diff3.Conflict `json:"-"`
	Resolution Resolution     `json:"resolution"`
	Err        error          `json:"-"`
	Duration   time.Duration  `json:"duration"`
}

func (o Outcome) Failed() bool { return o.Err != nil }

// RegionError ties a resolver failure to its region.
type RegionError struct {
	Index int
	Err   error
}

func (e *RegionError) Error() string {
	return fmt.Sprintf("region %d: %v", e.Index+1, e.Err)
}

func (e *RegionError) Unwrap() error { return e.Err }

// Report holds one Outcome per conflicting region, in region order.
type Report struct {
	Mode     Mode          `json:"mode"`
	Outcomes []Outcome     `json:"outcomes"`
	Elapsed  time.Duration `json:"elapsed"`
}

func (r Report) Failed() []Outcome {
	return lo.Filter(r.Outcomes, func(o Outcome, _ int) bool { return o.Failed() })
}

func (r Report) ResolvedCount() int {
	return lo.CountBy(r.Outcomes, func(o Outcome) bool { return !o.Failed() })
}

// Err combines every region failure into one error, or returns nil.
func (r Report) Err() error {
	var result *multierror.Error
	for _, o := range r.Failed() {
		result = multierror.Append(result, &RegionError{Index: o.Index, Err: o.Err})
	}
	return result.ErrorOrNil()
}

// Dispatcher sends conflicting regions to a Resolver.
type Dispatcher struct {
	resolver Resolver
	opts     Options
}

func NewDispatcher(r Resolver, opts Options) *Dispatcher {
	if opts.Mode == "" {
		opts.Mode = ModeConcurrent
	}
	return &Dispatcher{resolver: r, opts: opts}
}

// Dispatch resolves every conflict and returns the outcomes in input order.
// A failing region never stops the others; it is recorded in its Outcome.
// Once ctx is done, regions not yet finished fail with the context error.
func (d *Dispatcher) Dispatch(ctx context.Context, conflicts []diff3.Conflict) Report {
	start := time.Now()
	outcomes := make([]Outcome, len(conflicts))

	switch d.opts.Mode {
	case ModeSequential:
		for i, c := range conflicts {
			outcomes[i] = d.resolveOne(ctx, i, c)
		}
	default:
		g := new(errgroup.Group)
		if d.opts.MaxConcurrency > 0 {
			g.SetLimit(d.opts.MaxConcurrency)
		}
		for i, c := range conflicts {
			i, c := i, c
			g.Go(func() error {
				outcomes[i] = d.resolveOne(ctx, i, c)
				return nil
			})
		}
		_ = g.Wait()
	}

	return Report{
		Mode:     d.opts.Mode,
		Outcomes: outcomes,
		Elapsed:  time.Since(start),
	}
}

func (d *Dispatcher) resolveOne(ctx context.Context, index int, c diff3.Conflict) Outcome {
	start := time.Now()
	out := Outcome{Index: index, Conflict: c}

	if err := ctx.Err(); err != nil {
		out.Err = err
	} else {
		rctx, cancel := ctx, context.CancelFunc(func() {})
		if d.opts.Timeout > 0 {
			rctx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
		}
		out.Resolution, out.Err = d.resolver.Resolve(rctx, c)
		cancel()
		// Only the per-region deadline counts; a cancelled parent is reported as is.
		if out.Err != nil && d.opts.Timeout > 0 && ctx.Err() == nil && httputil.IsTimeout(out.Err) {
			out.Err = fmt.Errorf("timed out after %s: %w", d.opts.Timeout, out.Err)
		}
	}
	out.Duration = time.Since(start)

	switch {
	case out.Err == nil:
		slog.Debug("resolve: region resolved", "region", index+1, "label", out.Resolution.Label, "duration", out.Duration)
	case httputil.IsTimeout(out.Err):
		slog.Warn("resolve: region timed out", "region", index+1, "timeout", d.opts.Timeout, "err", out.Err)
	default:
		slog.Warn("resolve: region failed", "region", index+1, "duration", out.Duration, "err", out.Err)
	}
	if d.opts.OnOutcome != nil {
		d.opts.OnOutcome(out)
	}
	return out
}
