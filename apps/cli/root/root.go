package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the LearnStack admin CLI. Subcommands
// (tenant, auth, identity) are attached here.
var rootCmd = &cobra.Command{
	Use:           "learnstack",
	Short:         "LearnStack admin CLI",
	Long:          "Administrative utilities for LearnStack (tenant provisioning, dev tokens, identity checks).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
