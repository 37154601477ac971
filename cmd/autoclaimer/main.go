// ABOUTME: Entry point for the autoclaimer code relay
// ABOUTME: Wires cobra subcommands, the startup banner and logger setup

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Asiandegen/autoclaimer/internal/config"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
              _             _       _
   __ _ _   _| |_ ___   ___| | __ _(_)_ __ ___   ___ _ __
  / _' | | | | __/ _ \ / __| |/ _' | | '_ ' _ \ / _ \ '__|
 | (_| | |_| | || (_) | (__| | (_| | | | | | | |  __/ |
  \__,_|\__,_|\__\___/ \___|_|\__,_|_|_| |_| |_|\___|_|
`

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "autoclaimer",
		Short: "Relay claim codes from chat channels to a WebSocket consumer",
		Long: `autoclaimer watches chat channels for messages containing "code: XYZ",
forwards each new code to a downstream consumer over a persistent WebSocket
connection, and suppresses repeats of the same code inside a time window.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default $AUTOCLAIMER_CONFIG or ~/.config/autoclaimer/config.yaml)")

	root.AddCommand(
		newServeCmd(),
		newInitCmd(),
		newHistoryCmd(),
		newSinkCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the --config flag or the default location.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.ResolvePath()
}

func printBanner(w io.Writer) {
	cyan := color.New(color.FgCyan)
	cyan.Fprint(w, banner)

	gray := color.New(color.FgHiBlack)
	gray.Fprintf(w, "    version: %s\n\n", version)
}

// printField writes one "▶ label value" line of the startup summary.
func printField(w io.Writer, label, value string) {
	green := color.New(color.FgGreen)
	green.Fprint(w, "    ▶ ")
	fmt.Fprintf(w, "%-10s %s\n", label+":", value)
}

func setupLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
