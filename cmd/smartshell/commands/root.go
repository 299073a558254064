// Package commands implements the SmartShell CLI using cobra.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/jholhewres/smartshell/pkg/smartshell/elevation"
)

// NewRootCmd creates the root command. Without a subcommand it starts the
// interactive shell.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "smartshell",
		Short: "SmartShell - operate your computer in plain language",
		Long: `SmartShell is an accessible command shell driven by an AI model.
Describe what you want ("show the biggest files here", "mute", "translate
what I copy into Spanish") and it runs the matching system tools.

Examples:
  smartshell
  smartshell config set-key
  smartshell tools`,
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runShell(cmd, version)
		},
	}

	rootCmd.AddCommand(
		newConfigCmd(),
		newToolsCmd(),
		newCompletionCmd(),
	)

	// Global flags.
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	// Set by the elevation relaunch; not meant for users.
	rootCmd.Flags().String(elevation.StateFileFlag[2:], "", "session snapshot to resume")
	_ = rootCmd.Flags().MarkHidden(elevation.StateFileFlag[2:])

	return rootCmd
}
