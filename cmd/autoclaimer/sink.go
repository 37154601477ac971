// ABOUTME: sink subcommand that runs a local stand-in consumer
// ABOUTME: Prints every received code so serve can be tried end to end

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Asiandegen/autoclaimer/internal/config"
	"github.com/Asiandegen/autoclaimer/internal/sink"
)

func newSinkCmd() *cobra.Command {
	var addr, level string
	cmd := &cobra.Command{
		Use:   "sink",
		Short: "Run a local consumer that acknowledges every code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			printBanner(out)

			logger := setupLogger(config.LoggingConfig{Level: level}, os.Stderr)
			green := color.New(color.FgGreen)

			srv := sink.NewServer(addr, sink.Options{
				Logger: logger,
				OnCode: func(r sink.Received) {
					green.Fprint(out, "    ✓ ")
					fmt.Fprintf(out, "%s  %s  from %s\n", r.At.Format(time.TimeOnly), r.Code, r.ClientID)
				},
			})

			printField(out, "Listening", "ws://"+addr+"/")
			fmt.Fprintln(out)
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8765", "listen address")
	cmd.Flags().StringVar(&level, "log-level", "info", "debug, info, warn or error")
	return cmd
}
