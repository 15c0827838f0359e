package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/vaultbak/internal/history"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent backup runs",
		Long: `Show recent backup runs from the local run journal, newest first.

The journal holds counts, outcomes and archive paths only. It never
records an email address, password or session value.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			newLogger(os.Stderr)
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if !cfg.History {
				fmt.Fprintln(cmd.OutOrStdout(), "Run history is disabled (history: false).")
				return nil
			}

			journal, err := history.Open(cmd.Context(), cfg.HistoryPath())
			if err != nil {
				return fmt.Errorf("open run history: %w", err)
			}
			defer func() { _ = journal.Close() }()

			runs, err := journal.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), runs, time.Now())
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}

// printHistory writes runs as a table.
func printHistory(w io.Writer, runs []history.Run, now time.Time) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No backup runs recorded yet.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "STARTED\tOUTCOME\tDURATION\tTARGETS\tATTACHMENTS\tTRASH\tARCHIVE")
	for _, run := range runs {
		outcome := string(run.Outcome)
		if run.ErrorCode != "" {
			outcome += " (" + run.ErrorCode + ")"
		}
		attachments := fmt.Sprintf("%d", run.AttachmentsFetched)
		if run.AttachmentFailures > 0 {
			attachments += fmt.Sprintf(" (%d failed)", run.AttachmentFailures)
		}
		archive := run.ArchivePath
		if archive == "" {
			archive = "-"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%d\t%s\n",
			humanize.RelTime(run.StartedAt, now, "ago", "from now"),
			outcome,
			run.Duration().Round(time.Second),
			run.TargetsExported,
			attachments,
			run.TrashCount,
			archive,
		)
	}
	_ = tw.Flush()
}
