package cli

import (
	"errors"
	"fmt"
	"strings"

	"mergeflow/internal/db"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List recorded runs, or show one run and its regions",
	Example: `  mf history
  mf history 2dad81f0`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of runs to list")
	rootCmd.AddCommand(historyCmd)
}

type runDetailJSON struct {
	Run     db.Run                `json:"run"`
	Regions []db.RegionResolution `json:"regions"`
}

func runHistory(cmd *cobra.Command, args []string) error {
	if noHistory {
		return errors.New("--no-history cannot be combined with history")
	}
	if historyLimit < 1 {
		return fmt.Errorf("invalid --limit %d; expected >= 1", historyLimit)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	if len(args) == 1 {
		return showRun(cmd, store, args[0])
	}

	runs, err := store.ListRuns(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if jsonOut {
		if runs == nil {
			runs = []db.Run{}
		}
		printJSON(runs)
		return nil
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded. Run 'mf detect' to start.")
		return nil
	}

	fmt.Printf("%-10s %-10s %-10s %-9s %-8s %-30s %s\n", "RUN", "STATE", "MODE", "REGIONS", "FAILED", "LOCAL", "UPDATED")
	fmt.Println(strings.Repeat("-", 100))
	for _, r := range runs {
		mode := r.Mode
		if mode == "" {
			mode = "-"
		}
		fmt.Printf("%-10s %-10s %-10s %-9s %-8d %-30s %s\n",
			db.ShortID(r.ID), r.State, mode,
			fmt.Sprintf("%d/%d", r.ResolvedCount, r.ConflictCount),
			r.FailedCount, truncate(r.LocalPath, 30), r.UpdatedAt)
	}
	fmt.Printf("Total: %d runs\n", len(runs))
	return nil
}

func showRun(cmd *cobra.Command, store *db.Store, ref string) error {
	id, err := store.ResolveRunID(cmd.Context(), ref)
	if err != nil {
		return err
	}
	run, err := store.GetRun(cmd.Context(), id)
	if err != nil {
		return err
	}
	regions, err := store.ListRegions(cmd.Context(), id)
	if err != nil {
		return err
	}

	if jsonOut {
		if regions == nil {
			regions = []db.RegionResolution{}
		}
		printJSON(runDetailJSON{Run: run, Regions: regions})
		return nil
	}

	fmt.Printf("Run:       %s\n", run.ID)
	fmt.Printf("State:     %s\n", run.State)
	fmt.Printf("Base:      %s\n", run.BasePath)
	fmt.Printf("Local:     %s\n", run.LocalPath)
	fmt.Printf("Remote:    %s\n", run.RemotePath)
	fmt.Printf("Conflicts: %d region(s), %d line(s)\n", run.ConflictCount, run.ConflictLines)
	if run.Mode != "" {
		fmt.Printf("Resolved:  %d, failed: %d (%s, %dms)\n", run.ResolvedCount, run.FailedCount, run.Mode, run.ElapsedMS)
	}
	fmt.Printf("Created:   %s\n", run.CreatedAt)
	if run.FinishedAt != "" {
		fmt.Printf("Finished:  %s\n", run.FinishedAt)
	}
	if len(regions) == 0 {
		return nil
	}

	fmt.Println()
	fmt.Printf("%-4s %-10s %-10s %-8s %-8s %s\n", "#", "STATUS", "LABEL", "LINES", "MS", "ERROR")
	fmt.Println(strings.Repeat("-", 70))
	for _, r := range regions {
		label := r.Label
		if label == "" {
			label = "-"
		}
		fmt.Printf("%-4d %-10s %-10s %-8d %-8d %s\n",
			r.RegionIndex+1, r.Status, label, r.LineCount, r.DurationMS, truncate(r.ErrorMessage, 60))
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
