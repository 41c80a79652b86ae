// Package cli provides the command-line interface for inspection-sync.
package cli

import (
	"fmt"
	"os"

	"github.com/bissquit/inspection-sync/internal/app"
	"github.com/bissquit/inspection-sync/internal/config"
	"github.com/bissquit/inspection-sync/internal/version"
	"github.com/spf13/cobra"
)

// configEnv names the environment variable consulted when --config is not set.
const configEnv = config.EnvPrefix + "CONFIG"

var (
	// Global flags
	configPath string

	cfg         *config.Config
	application *app.App
)

var rootCmd = &cobra.Command{
	Use:   "inspection-sync",
	Short: "Offline submission queue for vehicle inspections",
	Long: `inspection-sync keeps completed vehicle inspections in a durable local
queue and submits them to the remote API whenever the device is online.

Photos referenced as file:// are uploaded first, then the inspection
record is created or updated with the returned URLs.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		path := configPath
		if path == "" {
			path = os.Getenv(configEnv)
		}

		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		application, err = app.New(cfg)
		if err != nil {
			return fmt.Errorf("initialize application: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeApp()
	},
}

func closeApp() {
	if application == nil {
		return
	}
	if err := application.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close application: %v\n", err)
	}
	application = nil
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	// PersistentPostRun is skipped when RunE fails.
	defer closeApp()
	return rootCmd.Execute()
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to YAML config file (default $"+configEnv+")")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(enqueueCmd)
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(versionCmd)
}
