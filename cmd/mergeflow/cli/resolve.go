package cli

import (
	"fmt"
	"os"
	"time"

	"mergeflow/internal/config"
	"mergeflow/internal/diff3"
	"mergeflow/internal/resolve"

	"github.com/spf13/cobra"
)

var (
	resolveInputs      inputFlags
	resolveOut         string
	resolveSequential  bool
	resolveConcurrency int
	resolveTimeout     time.Duration
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve conflicting regions with the resolution service",
	Long: `Detects conflicts, sends every conflicting region to the configured
resolution service and prints the merged document with each region replaced
by its resolution. A region whose resolution fails is replaced by
"` + resolve.FailedPlaceholder + `"; the other regions are unaffected.`,
	Example: `  mf resolve --base base.py --local mine.py --remote theirs.py --out merged.py
  mf resolve --conflicted merged.py --sequential`,
	Args: cobra.NoArgs,
	RunE: runResolve,
}

func init() {
	resolveInputs.bind(resolveCmd, true)
	resolveCmd.Flags().StringVar(&resolveOut, "out", "", "write the resolved document to a file")
	resolveCmd.Flags().BoolVar(&resolveSequential, "sequential", false, "resolve one region at a time")
	resolveCmd.Flags().IntVar(&resolveConcurrency, "concurrency", 0, "maximum regions resolved at once (overrides config)")
	resolveCmd.Flags().DurationVar(&resolveTimeout, "timeout", 0, "per-region timeout (overrides config)")
	rootCmd.AddCommand(resolveCmd)
}

type resolveJSON struct {
	RunID         string                 `json:"run_id,omitempty"`
	Files         []string               `json:"files"`
	ConflictCount int                    `json:"conflict_count"`
	ResolvedCount int                    `json:"resolved_count"`
	FailedCount   int                    `json:"failed_count"`
	Report        resolve.Report         `json:"report"`
	Errors        []string               `json:"errors,omitempty"`
	Lines         []resolve.ResolvedLine `json:"lines"`
}

func runResolve(cmd *cobra.Command, args []string) error {
	session, err := resolveInputs.session()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyResolveFlags(cmd, cfg); err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	runner, err := newRunner(cfg, store)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if err := runner.Reload(ctx, session); err != nil {
		return err
	}
	if session.ConflictCount() == 0 {
		if err := writeLines(resolveOut, session.Rendered); err != nil {
			return err
		}
		if jsonOut {
			printJSON(resolveJSON{RunID: session.RunID, Files: session.Paths(), Lines: []resolve.ResolvedLine{}})
			return nil
		}
		if resolveOut == "" {
			printLines(session.Rendered)
		}
		if session.HasConflicts() {
			fmt.Fprintln(os.Stderr, "Conflict markers present in unchanged content; nothing to resolve.")
		} else {
			fmt.Fprintln(os.Stderr, "No conflicts to resolve.")
		}
		return nil
	}

	total := session.ConflictCount()
	if !jsonOut {
		fmt.Fprintf(os.Stderr, "Resolving %d region(s) via %s (%s)\n", total, cfg.Resolver.Endpoint, cfg.Resolver.Mode)
		runner.OnOutcome = func(o resolve.Outcome) {
			if o.Failed() {
				fmt.Fprintf(os.Stderr, "  region %d/%d failed after %s: %v\n", o.Index+1, total, o.Duration.Round(time.Millisecond), o.Err)
				return
			}
			fmt.Fprintf(os.Stderr, "  region %d/%d: %s (%s)\n", o.Index+1, total, o.Resolution.Label, o.Duration.Round(time.Millisecond))
		}
	}

	report, err := runner.Resolve(ctx, session)
	if err != nil {
		return err
	}
	if err := writeLines(resolveOut, resolve.Texts(session.Resolved)); err != nil {
		return err
	}

	if jsonOut {
		out := resolveJSON{
			RunID:         session.RunID,
			Files:         session.Paths(),
			ConflictCount: total,
			ResolvedCount: report.ResolvedCount(),
			FailedCount:   len(report.Failed()),
			Report:        report,
			Lines:         session.Resolved,
		}
		for _, o := range report.Failed() {
			out.Errors = append(out.Errors, (&resolve.RegionError{Index: o.Index, Err: o.Err}).Error())
		}
		printJSON(out)
		return nil
	}

	renderer := newRenderer(cfg, resolveInputs.displayName())
	if resolveOut == "" {
		printLines(renderer.Resolved(session.Resolved))
		if renderer.Color() {
			fmt.Println(renderer.Legend())
		}
	} else {
		fmt.Fprintf(os.Stderr, "Wrote %s\n", resolveOut)
	}
	fmt.Fprintln(os.Stderr, renderer.Summary(report, 0))
	if err := report.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	return nil
}

// applyResolveFlags lets command-line flags override the resolver config.
func applyResolveFlags(cmd *cobra.Command, cfg *config.Config) error {
	if resolveSequential {
		cfg.Resolver.Mode = config.ModeSequential
	}
	if cmd.Flags().Changed("concurrency") {
		if resolveConcurrency < 1 {
			return fmt.Errorf("invalid --concurrency %d; expected >= 1", resolveConcurrency)
		}
		cfg.Resolver.MaxConcurrency = resolveConcurrency
	}
	if cmd.Flags().Changed("timeout") {
		if resolveTimeout <= 0 {
			return fmt.Errorf("invalid --timeout %s; expected > 0", resolveTimeout)
		}
		cfg.Resolver.Timeout = resolveTimeout.String()
	}
	return nil
}

// writeLines writes lines to path. An empty path is a no-op.
func writeLines(path string, lines []string) error {
	if path == "" {
		return nil
	}
	if err := os.WriteFile(path, []byte(diff3.JoinLines(lines)), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
