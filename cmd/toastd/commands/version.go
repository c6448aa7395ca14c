package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// version is set at build time via ldflags.
var version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "toastd %s\n", version)                          //nolint:errcheck // CLI output
			fmt.Fprintf(w, "  go:   %s\n", runtime.Version())               //nolint:errcheck // CLI output
			fmt.Fprintf(w, "  os:   %s/%s\n", runtime.GOOS, runtime.GOARCH) //nolint:errcheck // CLI output
		},
	}
}
