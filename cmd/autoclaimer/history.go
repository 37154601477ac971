// ABOUTME: history subcommand that prints recent relay outcomes
// ABOUTME: Reads the delivery history database named in the config

package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Asiandegen/autoclaimer/internal/config"
	"github.com/Asiandegen/autoclaimer/internal/store"
)

type historyFlags struct {
	db      string
	code    string
	outcome string
	since   time.Duration
	limit   int
}

func newHistoryCmd() *cobra.Command {
	var f historyFlags
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently relayed codes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.db == "" {
				cfg, err := config.Load(resolveConfigPath())
				if err != nil {
					return fmt.Errorf("loading config: %w", err)
				}
				f.db = cfg.History.Path
			}
			if _, err := os.Stat(f.db); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("history database %s does not exist", f.db)
				}
				return fmt.Errorf("checking history database: %w", err)
			}
			s, err := store.NewSQLiteStore(f.db)
			if err != nil {
				return err
			}
			defer s.Close()
			return runHistory(cmd, s, f)
		},
	}

	cmd.Flags().StringVar(&f.db, "db", "", "history database (default history.path from config)")
	cmd.Flags().StringVar(&f.code, "code", "", "only this code")
	cmd.Flags().StringVar(&f.outcome, "outcome", "", "only forwarded, suppressed or failed")
	cmd.Flags().DurationVar(&f.since, "since", 24*time.Hour, "how far back to look (0 = everything)")
	cmd.Flags().IntVarP(&f.limit, "limit", "n", 50, "maximum rows")
	return cmd
}

func runHistory(cmd *cobra.Command, s store.Store, f historyFlags) error {
	filter := store.DeliveryFilter{Limit: f.limit}
	if f.code != "" {
		filter.Code = &f.code
	}
	if f.outcome != "" {
		o := store.Outcome(f.outcome)
		valid := false
		for _, v := range store.ValidOutcomes {
			valid = valid || v == o
		}
		if !valid {
			return fmt.Errorf("unknown outcome %q", f.outcome)
		}
		filter.Outcome = &o
	}
	var since time.Time
	if f.since > 0 {
		since = time.Now().Add(-f.since)
		filter.Since = &since
	}

	ctx := cmd.Context()
	rows, err := s.ListDeliveries(ctx, filter)
	if err != nil {
		return err
	}
	counts, err := s.CountByOutcome(ctx, since)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printDeliveries(out, rows)
	fmt.Fprintf(out, "\nforwarded %d, suppressed %d, failed %d\n",
		counts[store.OutcomeForwarded],
		counts[store.OutcomeSuppressed],
		counts[store.OutcomeFailed],
	)
	return nil
}

func printDeliveries(w io.Writer, rows []store.Delivery) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "no deliveries")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCODE\tOUTCOME\tSOURCE\tCHANNEL\tACKED")
	for _, d := range rows {
		acked := "-"
		if d.AckedAt != nil {
			acked = d.AckedAt.Sub(d.CreatedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			d.CreatedAt.Local().Format(time.DateTime),
			d.Code,
			outcomeColor(d.Outcome).Sprint(d.Outcome),
			d.Source,
			d.Channel,
			acked,
		)
	}
	_ = tw.Flush()
}

func outcomeColor(o store.Outcome) *color.Color {
	switch o {
	case store.OutcomeForwarded:
		return color.New(color.FgGreen)
	case store.OutcomeSuppressed:
		return color.New(color.FgHiBlack)
	default:
		return color.New(color.FgRed)
	}
}
