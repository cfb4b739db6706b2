// Package cmd provides the CLI commands for multisearch.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dillonfkhanna/multi-search/internal/config"
	"github.com/dillonfkhanna/multi-search/internal/logging"
	"github.com/dillonfkhanna/multi-search/internal/output"
	"github.com/dillonfkhanna/multi-search/internal/ui"
	"github.com/dillonfkhanna/multi-search/pkg/version"
)

// app holds the global flags and the configuration loaded for one run.
type app struct {
	debug       bool
	noColor     bool
	configDir   string
	storageRoot string

	cfg            *config.Config
	loggingCleanup func()
}

// NewRootCmd creates the root command for the multisearch CLI.
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "multisearch",
		Short: "Local hybrid search over your documents",
		Long: `multisearch indexes local documents and answers queries by combining
keyword (BM25) ranking with semantic similarity from an embedding model.

Everything runs locally. Index a directory, then search it:

  multisearch index ~/notes
  multisearch search "how do foxes hunt"`,
		Version:            version.Version,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}
	cmd.SetVersionTemplate("multisearch version {{.Version}}\n")

	flags := cmd.PersistentFlags()
	flags.BoolVar(&a.debug, "debug", false, "Enable debug logging to stderr and ~/.multisearch/logs/")
	flags.BoolVar(&a.noColor, "no-color", false, "Disable styled output")
	flags.StringVar(&a.configDir, "config-dir", "", "Directory containing "+config.ProjectConfigName+" (default: current directory)")
	flags.StringVar(&a.storageRoot, "storage-root", "", "Index storage root (overrides storage.root)")

	cmd.AddCommand(
		newIndexCmd(a),
		newSearchCmd(a),
		newStatusCmd(a),
		newWatchCmd(a),
		newRebuildCmd(a),
		newServeCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// setup loads configuration and starts file logging.
func (a *app) setup(_ *cobra.Command, _ []string) error {
	dir := a.configDir
	if dir == "" {
		dir, _ = os.Getwd()
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	if a.storageRoot != "" {
		cfg.Storage.Root = a.storageRoot
	}
	a.cfg = cfg

	logCfg := logging.Config{
		Level:     cfg.Logging.Level,
		FilePath:  cfg.Logging.FilePath,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	}
	if logCfg.FilePath == "" {
		logCfg.FilePath = logging.DefaultLogPath()
	}
	if a.debug {
		logCfg.Level = "debug"
		logCfg.WriteToStderr = true
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	slog.SetDefault(logger)
	a.loggingCleanup = cleanup
	slog.Debug("config_loaded",
		slog.String("storage_root", cfg.Storage.Root),
		slog.String("provider", cfg.Embeddings.Provider),
		slog.String("version", version.Version))
	return nil
}

func (a *app) teardown(_ *cobra.Command, _ []string) error {
	if a.loggingCleanup != nil {
		a.loggingCleanup()
		a.loggingCleanup = nil
	}
	return nil
}

// uiConfig returns the renderer configuration for w.
func (a *app) uiConfig(w io.Writer) ui.Config {
	if a.noColor {
		return ui.NewConfig(w, ui.WithNoColor(true))
	}
	return ui.NewConfig(w)
}

// messages returns a status writer on stderr, keeping stdout for results.
func (a *app) messages(cmd *cobra.Command) *output.Writer {
	return output.New(a.uiConfig(cmd.ErrOrStderr()))
}
