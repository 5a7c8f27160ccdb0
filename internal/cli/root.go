package cli

import (
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "releasectl",
	Short: "Release orchestrator for the analytics platform",
	Long: `releasectl runs the release pipeline for a Cloud Run service and its
auxiliary Cloud Functions: authenticate, build, publish, deploy, verify.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(ReleaseCmd)
	rootCmd.AddCommand(VersionCmd)
}

// Root returns the root command for execution by main.
func Root() *cobra.Command {
	return rootCmd
}
