package cli

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration with secrets redacted",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	redacted := cfg.Redacted()
	if jsonOut {
		printJSON(struct {
			Path   string `json:"path"`
			Config any    `json:"config"`
		}{Path: cfg.Path, Config: redacted})
		return nil
	}

	path := cfg.Path
	if path == "" {
		path = "(defaults)"
	}
	fmt.Printf("# %s\n", path)
	if err := toml.NewEncoder(os.Stdout).Encode(redacted); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
