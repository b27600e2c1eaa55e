package cli

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/roach88/containersync/internal/eventlog"
	"github.com/roach88/containersync/internal/report"
	"github.com/roach88/containersync/internal/store"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Database string
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report [event-log]",
		Short: "Summarize the event log of an import",
		Long: `Summarize an import from its event log file, or from its SQLite mirror
with --db.

The log must contain a start_ingest and a later end_ingest. A log whose last
run never finished is reported as truncated.

Exit codes:
  0 - Summary written
  1 - Log is truncated
  2 - Command error (log not found, corrupt line)

Examples:
  containersync report import_container_data.log
  containersync report --db ingest.db --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "read events from a SQLite mirror instead of a log file")

	return cmd
}

func runReport(cmd *cobra.Command, opts *ReportOptions, args []string) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	events, runs, err := loadReportEvents(cmd, opts, args)
	if err != nil {
		return err
	}

	summary, err := report.Summarize(events)
	if err != nil {
		if errors.Is(err, report.ErrTruncated) {
			if ferr := out.Error("E_TRUNCATED", err, nil); ferr != nil {
				return ferr
			}
			return WrapExitError(ExitFailure, "cannot summarize", err)
		}
		return WrapExitError(ExitCommandError, "cannot summarize", err)
	}

	data := struct {
		*report.Summary
		MirrorRuns []store.Run `json:"mirror_runs,omitempty"`
	}{summary, runs}

	return out.Success(data, func(w io.Writer) error {
		if err := report.WriteText(w, summary); err != nil {
			return err
		}
		if opts.Verbose && len(runs) > 0 {
			fmt.Fprintln(w)
			for _, r := range runs {
				status := "finished " + r.EndedAt
				if !r.Complete() {
					status = "did not finish"
				}
				fmt.Fprintf(w, "run %s started %s, %s\n", r.ID, r.StartedAt, status)
			}
		}
		return nil
	})
}

func loadReportEvents(cmd *cobra.Command, opts *ReportOptions, args []string) ([]eventlog.Event, []store.Run, error) {
	switch {
	case opts.Database != "" && len(args) > 0:
		return nil, nil, NewExitError(ExitCommandError, "pass either an event log or --db, not both")
	case opts.Database != "":
		st, err := store.OpenReadOnly(opts.Database)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
		ctx := commandContext(cmd)
		events, err := st.Events(ctx)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "failed to read events", err)
		}
		runs, err := st.Runs(ctx)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "failed to read runs", err)
		}
		return events, runs, nil
	case len(args) == 1:
		events, err := eventlog.ReadFile(args[0])
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "failed to read event log", err)
		}
		return events, nil, nil
	default:
		return nil, nil, NewExitError(ExitCommandError, "an event log path or --db is required")
	}
}
