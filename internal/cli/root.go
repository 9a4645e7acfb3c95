// Package cli provides the command-line interface for feedmirror.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"feedmirror/internal/loader"
	"feedmirror/internal/state"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:           "feedmirror",
	Short:         "Mirror club feed collections into Discord channels",
	Long:          "feedmirror polls the club feed under a global request cooldown and keeps one Discord message per item in sync, editing, creating and deleting as the feed changes.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "feedmirror %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.toml", "path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to the env file holding secrets")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command. ctx is cancelled on shutdown signals.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func load(ctx context.Context, offline bool) (*state.State, error) {
	return loader.LoadAndBuild(ctx, loader.Options{
		ConfigPath: configPath,
		EnvFile:    envFile,
		Offline:    offline,
	})
}
