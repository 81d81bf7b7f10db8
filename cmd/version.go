package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Build metadata, set with -ldflags "-X github.com/kozaktomas/vision-assist/cmd.Version=..."
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if mustGetBool(cmd, "short") {
			fmt.Println(Version)
			return
		}
		fmt.Print(versionInfo())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().Bool("short", false, "Print only the version number")
}

func versionInfo() string {
	return fmt.Sprintf("vision-assist %s\n  commit:   %s\n  built:    %s\n  go:       %s\n  platform: %s/%s\n",
		Version, CommitSHA, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
