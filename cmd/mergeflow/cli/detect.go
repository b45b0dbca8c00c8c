package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"mergeflow/internal/config"
	"mergeflow/internal/diff3"
	"mergeflow/internal/pipeline"
	"mergeflow/internal/watch"

	"github.com/spf13/cobra"
)

// inputFlags are the file flags shared by detect, resolve and tui.
type inputFlags struct {
	base       string
	local      string
	remote     string
	conflicted string
}

func (f *inputFlags) bind(cmd *cobra.Command, allowConflicted bool) {
	cmd.Flags().StringVar(&f.base, "base", "", "common ancestor version")
	cmd.Flags().StringVar(&f.local, "local", "", "local version")
	cmd.Flags().StringVar(&f.remote, "remote", "", "remote version")
	if allowConflicted {
		cmd.Flags().StringVar(&f.conflicted, "conflicted", "", "file that already contains conflict markers")
	}
}

func (f *inputFlags) session() (*pipeline.Session, error) {
	if f.conflicted != "" {
		if f.base != "" || f.local != "" || f.remote != "" {
			return nil, fmt.Errorf("--conflicted cannot be combined with --base/--local/--remote")
		}
		return pipeline.NewConflictedSession(f.conflicted), nil
	}
	var missing []string
	for _, in := range []struct{ name, path string }{
		{"--base", f.base}, {"--local", f.local}, {"--remote", f.remote},
	} {
		if in.path == "" {
			missing = append(missing, in.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s required", pipeline.ErrMissingInput, strings.Join(missing, ", "))
	}
	return pipeline.NewSession(f.base, f.local, f.remote), nil
}

// displayName is the file used to guess the highlighting language.
func (f *inputFlags) displayName() string {
	if f.conflicted != "" {
		return f.conflicted
	}
	return f.local
}

var (
	detectInputs   inputFlags
	detectOut      string
	detectShowBase bool
	detectWatch    bool
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Merge three versions and show conflicting regions",
	Example: `  mf detect --base base.py --local mine.py --remote theirs.py
  mf detect --base base.py --local mine.py --remote theirs.py --out merged.py --show-base`,
	Args: cobra.NoArgs,
	RunE: runDetect,
}

func init() {
	detectInputs.bind(detectCmd, false)
	detectCmd.Flags().StringVar(&detectOut, "out", "", "write the merged document with conflict markers to a file")
	detectCmd.Flags().BoolVar(&detectShowBase, "show-base", false, "include the base section in conflict blocks")
	detectCmd.Flags().BoolVar(&detectWatch, "watch", false, "re-run detection when an input changes")
	rootCmd.AddCommand(detectCmd)
}

type detectJSON struct {
	RunID         string       `json:"run_id,omitempty"`
	Files         []string     `json:"files"`
	HasConflicts  bool         `json:"has_conflicts"`
	ConflictCount int          `json:"conflict_count"`
	ConflictLines int          `json:"conflict_lines"`
	Merged        []string     `json:"merged"`
	Result        diff3.Result `json:"result"`
}

func runDetect(cmd *cobra.Command, args []string) error {
	session, err := detectInputs.session()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("show-base") {
		cfg.Merge.ShowBase = detectShowBase
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
	if err := reportDetection(cfg, session); err != nil {
		return err
	}
	if !detectWatch {
		return nil
	}

	fmt.Fprintf(os.Stderr, "Watching %s (Ctrl-C to stop)\n", strings.Join(session.Paths(), ", "))
	return watch.Files(ctx, session.Paths(), watch.DefaultDebounce, func(changed []string) {
		fmt.Fprintf(os.Stderr, "\nChanged: %s\n", strings.Join(changed, ", "))
		if err := redetect(ctx, runner, session, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	})
}

func redetect(ctx context.Context, runner *pipeline.Runner, session *pipeline.Session, cfg *config.Config) error {
	if err := runner.Reload(ctx, session); err != nil {
		return err
	}
	return reportDetection(cfg, session)
}

func reportDetection(cfg *config.Config, s *pipeline.Session) error {
	res := s.Merge
	if err := writeLines(detectOut, s.Rendered); err != nil {
		return err
	}

	if jsonOut {
		printJSON(detectJSON{
			RunID:         s.RunID,
			Files:         s.Paths(),
			HasConflicts:  s.HasConflicts(),
			ConflictCount: res.ConflictCount(),
			ConflictLines: res.ConflictLineCount(),
			Merged:        s.Rendered,
			Result:        *res,
		})
		return nil
	}

	if detectOut == "" {
		printLines(newRenderer(cfg, detectInputs.displayName()).Merged(s.Rendered))
	}
	switch n := res.ConflictCount(); {
	case !s.HasConflicts():
		fmt.Fprintln(os.Stderr, "No conflicts.")
	case n == 0:
		fmt.Fprintln(os.Stderr, "Conflict markers present in unchanged content; nothing to resolve.")
	default:
		fmt.Fprintf(os.Stderr, "%d conflicting region(s), %d conflict line(s).", n, res.ConflictLineCount())
		if s.RunID != "" {
			fmt.Fprintf(os.Stderr, " Run %s.", s.RunID)
		}
		fmt.Fprintln(os.Stderr)
	}
	if detectOut != "" {
		fmt.Fprintf(os.Stderr, "Wrote %s\n", detectOut)
	}
	return nil
}
