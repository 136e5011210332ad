// Package commands implements the infrapilot CLI.
package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/infrapilot/infrapilot/pkg/config"
)

var (
	// Global flags
	configPath string
	verbose    bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "infrapilot",
		Short: "InfraPilot - self-correcting infrastructure deployment agent",
		Long: `InfraPilot turns a natural-language infrastructure request into a deployed,
verified result. It generates a CDKTF TypeScript project via a code-generation
service, runs it through a build/synth/lint/deploy pipeline either locally or
on a remote host over SSH, and feeds failures back into regeneration until the
deployment satisfies the request or the cycle budget runs out.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}

// loadConfig loads the configuration honoring the global --config flag.
func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}
