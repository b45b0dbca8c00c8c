package cli

import (
	"fmt"

	"mergeflow/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var tuiInputs inputFlags

var tuiCmd = &cobra.Command{
	Use:     "tui",
	Short:   "Open the interactive merge viewer",
	Example: `  mf tui --base base.py --local mine.py --remote theirs.py`,
	Args:    cobra.NoArgs,
	RunE:    runTUI,
}

func init() {
	tuiInputs.bind(tuiCmd, true)
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	session, err := tuiInputs.session()
	if err != nil {
		return err
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

	runner, err := newRunner(cfg, store)
	if err != nil {
		return err
	}
	model := tui.NewModel(runner, session, newRenderer(cfg, tuiInputs.displayName()))
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
