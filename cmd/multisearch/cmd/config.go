package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dillonfkhanna/multi-search/configs"
	"github.com/dillonfkhanna/multi-search/internal/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage user configuration",
		Long: `Manage the user configuration file.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/multisearch/config.yaml)
  3. Project config (` + config.ProjectConfigName + `)
  4. Environment variables (MULTISEARCH_*)`,
		Example: `  multisearch config init
  multisearch config show --json
  multisearch config path`,
		// Config commands must work while the configuration is invalid, so
		// they skip the root setup.
		PersistentPreRunE:  func(*cobra.Command, []string) error { return nil },
		PersistentPostRunE: func(*cobra.Command, []string) error { return nil },
	}

	cmd.AddCommand(newConfigInitCmd(a), newConfigShowCmd(a), newConfigPathCmd())

	return cmd
}

func newConfigInitCmd(a *app) *cobra.Command {
	var force, project bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file",
		Long: `Create the user configuration file with default values.

With --project, write an annotated ` + config.ProjectConfigName + ` template to the
current directory (or --config-dir) instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := a.messages(cmd)

			path := config.GetUserConfigPath()
			write := func() error { return config.NewConfig().WriteYAML(path) }
			if project {
				dir := a.configDir
				if dir == "" {
					dir, _ = os.Getwd()
				}
				path = filepath.Join(dir, config.ProjectConfigName)
				write = func() error {
					return os.WriteFile(path, []byte(configs.ProjectConfigTemplate), 0o644)
				}
			}

			if _, err := os.Stat(path); err == nil && !force {
				out.Warning("Configuration already exists")
				out.Infof("Location: %s", path)
				out.Info("Use --force to overwrite it")
				return nil
			}

			if err := write(); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}
			out.Success("Created configuration")
			out.Infof("Location: %s", path)
			out.Info("Edit the file, then run 'multisearch config show' to verify")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration")
	cmd.Flags().BoolVar(&project, "project", false, "Write a project template instead of the user config")

	return cmd
}

func newConfigShowCmd(a *app) *cobra.Command {
	var (
		jsonOutput bool
		source     string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long:  `Show the configuration after merging defaults, the user and project files and the environment.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var cfg *config.Config
			switch source {
			case "merged":
				dir := a.configDir
				if dir == "" {
					dir, _ = os.Getwd()
				}
				loaded, err := config.Load(dir)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				cfg = loaded
				if a.storageRoot != "" {
					cfg.Storage.Root = a.storageRoot
				}
			case "defaults":
				cfg = config.NewConfig()
			default:
				return fmt.Errorf("invalid source: %s (use: merged, defaults)", source)
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&source, "source", "merged", "Config source: merged, defaults")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the user config file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}
