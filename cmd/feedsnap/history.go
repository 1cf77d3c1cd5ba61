package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pevans/feedsnap/history"
)

var errNoHistory = errors.New("--history (or FEEDSNAP_HISTORY_DSN) is required")

func newHistoryCmd(historyPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs from the run history database",
		Long: `List recent runs recorded with --history, newest first.

Examples:
  # Last 20 runs
  feedsnap history --history runs.db

  # Everything
  feedsnap history --history runs.db --limit 0`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if *historyPath == "" {
				return errNoHistory
			}

			store, err := history.NewStore(*historyPath)
			if err != nil {
				return fmt.Errorf("failed to open run history: %w", err)
			}
			defer store.Close()

			runs, err := store.ListRuns(limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tSTARTED\tSTATE\tEXIT\tCODE\tITEMS\tWRITTEN\tDEGRADED")
			for _, run := range runs {
				degraded := 0
				for _, src := range run.Sources {
					if src.Degraded {
						degraded++
					}
				}
				code := run.Code
				if code == "" {
					code = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%d\t%t\t%d/%d\n",
					run.RunID,
					run.StartedAt.Format(time.RFC3339),
					run.State,
					run.ExitCode,
					code,
					run.ItemCount,
					run.Written,
					degraded,
					len(run.Sources),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list (0 for all)")
	return cmd
}
