package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ayounce80/sfmc-inv2/internal/snapshot"
	"github.com/ayounce80/sfmc-inv2/internal/storage"
)

var (
	// Version information - typically set via ldflags at build time
	Version   = "dev"
	GitCommit = "none"
	BuildDate = "unknown"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of sfmc-inventory",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "sfmc-inventory %s\n", Version)
		fmt.Fprintf(out, "Git commit: %s\n", GitCommit)
		fmt.Fprintf(out, "Build date: %s\n", BuildDate)
		fmt.Fprintf(out, "Snapshot format: %s\n", snapshot.FormatVersion)
		fmt.Fprintf(out, "Database schema: %s\n", storage.SchemaVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
