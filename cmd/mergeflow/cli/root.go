package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"mergeflow/internal/config"
	"mergeflow/internal/db"
	"mergeflow/internal/notify"
	"mergeflow/internal/pipeline"
	"mergeflow/internal/render"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var (
	cfgPath   string
	verbose   bool
	jsonOut   bool
	noColor   bool
	noHistory bool
	version   = config.Version
	commit    = "unknown"

	logFile *os.File
)

var rootCmd = &cobra.Command{
	Use:     "mf",
	Short:   "mergeflow: three-way merge conflict detection and resolution",
	Long:    "mergeflow merges a base, local and remote version of a file, shows the conflicting regions and sends each one to a resolution service.",
	Version: fmt.Sprintf("%s (%s)", version, commit),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			_ = logFile.Close()
			logFile = nil
		}
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colours and syntax highlighting")
	rootCmd.PersistentFlags().BoolVar(&noHistory, "no-history", false, "do not record runs in the history database")
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return err
	}
	return nil
}

// loadConfig loads the discovered config and applies its logging settings.
// Priority: --config flag > ./mergeflow.toml > ~/.config/mergeflow/config.toml > defaults.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := configureLogging(cfg); err != nil {
		return nil, err
	}
	if cfg.Path != "" {
		slog.Debug("loaded config", "path", cfg.Path)
	}
	return cfg, nil
}

func configureLogging(cfg *config.Config) error {
	level := cfg.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	out := os.Stderr
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		if logFile != nil {
			_ = logFile.Close()
		}
		logFile = f
		out = f
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})))
	return nil
}

// openStore opens the history database, or returns nil with --no-history.
func openStore(ctx context.Context, cfg *config.Config) (*db.Store, error) {
	if noHistory {
		return nil, nil
	}
	// Clean up orphaned WAL sidecar files if the main DB was deleted.
	if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
		_ = os.Remove(cfg.DBPath + "-shm")
		_ = os.Remove(cfg.DBPath + "-wal")
	}
	store, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if n, err := store.RecoverInterruptedRuns(ctx); err != nil {
		slog.Warn("recover interrupted runs", "err", err)
	} else if n > 0 {
		slog.Info("marked interrupted runs as partial", "count", n)
	}
	return store, nil
}

func closeStore(store *db.Store) {
	if store != nil {
		_ = store.Close()
	}
}

func newRunner(cfg *config.Config, store *db.Store) (*pipeline.Runner, error) {
	notifier := notify.New(cfg.Notifications, nil)
	return pipeline.New(cfg, store, pipeline.NewResolver(cfg), notifier)
}

// newRenderer returns a renderer for stdout. Colour is off with --no-color,
// NO_COLOR, or when stdout is not a terminal.
func newRenderer(cfg *config.Config, filename string) *render.Renderer {
	color := !noColor && os.Getenv("NO_COLOR") == "" && isatty.IsTerminal(os.Stdout.Fd())
	return render.New(render.Options{
		Color:    color,
		Language: cfg.Display.Language,
		Filename: filename,
		Style:    cfg.Display.Style,
	})
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func printLines(lines []string) {
	for _, line := range lines {
		fmt.Println(line)
	}
}
