// ABOUTME: version subcommand printing the build version
// ABOUTME: --long adds the Go toolchain and platform

package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			if long {
				fmt.Fprintf(cmd.OutOrStdout(), "autoclaimer %s (%s, %s/%s)\n",
					version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
				return
			}
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Include Go version and platform")
	return cmd
}
