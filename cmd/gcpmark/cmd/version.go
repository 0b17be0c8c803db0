package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/gcpmark/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		ver, commit, date := version.Info()
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "gcpmark %s (commit: %s, built: %s)\n", ver, commit, date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
