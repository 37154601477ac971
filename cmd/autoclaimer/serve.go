// ABOUTME: serve subcommand that runs the relay daemon until interrupted
// ABOUTME: Loads config, prints the startup summary and hands off to the monitor

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Asiandegen/autoclaimer/internal/config"
	"github.com/Asiandegen/autoclaimer/internal/monitor"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start relaying codes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := resolveConfigPath()
			out := cmd.OutOrStdout()

			printBanner(out)

			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			// Logs go to stderr so stdout stays clean when piping.
			logger := setupLogger(cfg.Logging, os.Stderr)
			slog.SetDefault(logger)

			printField(out, "Config", path)
			printField(out, "Server", cfg.Server.URL)
			printField(out, "Client", cfg.Server.ClientID)
			window := cfg.Dedupe.Window.String()
			if cfg.Dedupe.Window == 0 {
				window = "forever"
			}
			printField(out, "Window", window)
			printField(out, "Sources", strings.Join(enabledSources(cfg), ", "))
			if cfg.History.Enabled {
				printField(out, "History", cfg.History.Path)
			} else {
				yellow := color.New(color.FgYellow)
				yellow.Fprintln(out, "    ▶ History:  disabled")
			}
			fmt.Fprintln(out)

			mon, err := monitor.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("creating monitor: %w", err)
			}

			return mon.Run(cmd.Context())
		},
	}
}

func enabledSources(cfg *config.Config) []string {
	var names []string
	if cfg.Sources.Matrix.Enabled {
		names = append(names, fmt.Sprintf("matrix (%d rooms)", len(cfg.Sources.Matrix.Rooms)))
	}
	if cfg.Sources.Discord.Enabled {
		names = append(names, fmt.Sprintf("discord (%d channels)", len(cfg.Sources.Discord.Channels)))
	}
	if cfg.Sources.Stdin.Enabled {
		names = append(names, "stdin")
	}
	return names
}
