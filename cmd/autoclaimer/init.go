// ABOUTME: init subcommand that writes a config file interactively
// ABOUTME: Prompts for the consumer URL, client id and one chat source

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Asiandegen/autoclaimer/internal/config"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a new config file interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.InOrStdin(), cmd.OutOrStdout(), resolveConfigPath())
		},
	}
}

// prompter reads answers line by line, falling back to defaults.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func (p *prompter) ask(question, def string) string {
	green := color.New(color.FgGreen)
	green.Fprint(p.out, "    ▶ ")
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", question, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", question)
	}

	answer, _ := p.in.ReadString('\n')
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return def
	}
	return answer
}

func (p *prompter) list(question string) []string {
	var out []string
	for _, item := range strings.Split(p.ask(question, ""), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func runInit(in io.Reader, out io.Writer, path string) error {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Fprint(out, banner)
	fmt.Fprintln(out, "    Interactive Setup")
	fmt.Fprintln(out, "    -----------------")
	fmt.Fprintln(out)

	p := &prompter{in: bufio.NewReader(in), out: out}

	if _, err := os.Stat(path); err == nil {
		yellow.Fprintf(out, "    Config already exists at %s\n", path)
		if strings.ToLower(p.ask("Overwrite? [y/N]", "")) != "y" {
			fmt.Fprintln(out, "    Aborted.")
			return nil
		}
		fmt.Fprintln(out)
	}

	cfg := config.Default()
	cfg.Server.URL = p.ask("Consumer WebSocket URL", cfg.Server.URL)
	cfg.Server.ClientID = p.ask("Client id", cfg.Server.ClientID)
	cfg.Dedupe.WindowRaw = p.ask("Duplicate window (0s = forever)", cfg.Dedupe.WindowRaw)
	if _, err := time.ParseDuration(cfg.Dedupe.WindowRaw); err != nil {
		return fmt.Errorf("invalid duplicate window %q: use a duration like 5m or 300s", cfg.Dedupe.WindowRaw)
	}

	switch kind := strings.ToLower(p.ask("Source (matrix, discord, stdin)", "stdin")); kind {
	case "matrix":
		cfg.Sources.Matrix.Enabled = true
		cfg.Sources.Matrix.Homeserver = p.ask("Matrix homeserver URL", "https://matrix.org")
		cfg.Sources.Matrix.UserID = p.ask("Matrix user id", "")
		cfg.Sources.Matrix.AccessToken = p.ask("Matrix access token (or ${ENV_VAR})", "${MATRIX_ACCESS_TOKEN}")
		cfg.Sources.Matrix.Rooms = p.list("Room ids, comma separated (empty = all joined rooms)")
	case "discord":
		cfg.Sources.Discord.Enabled = true
		cfg.Sources.Discord.Token = p.ask("Discord bot token (or ${ENV_VAR})", "${DISCORD_TOKEN}")
		cfg.Sources.Discord.Channels = p.list("Channel ids, comma separated (empty = all channels)")
	case "stdin":
		cfg.Sources.Stdin.Enabled = true
	default:
		return fmt.Errorf("unknown source %q", kind)
	}

	if strings.ToLower(p.ask("Keep delivery history? [y/N]", "")) == "y" {
		cfg.History.Enabled = true
		cfg.History.Path = p.ask("History database path", cfg.History.Path)
	}

	if err := cfg.Save(path); err != nil {
		return err
	}

	fmt.Fprintln(out)
	cyan.Fprintf(out, "    Config written to %s\n", path)
	fmt.Fprintln(out, "    Start relaying with: autoclaimer serve")
	return nil
}
