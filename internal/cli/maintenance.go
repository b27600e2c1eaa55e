package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/containersync/internal/engine"
	"github.com/roach88/containersync/internal/eventlog"
	"github.com/roach88/containersync/internal/sheet"
)

// MaintenanceResult is the JSON payload of a repair command.
type MaintenanceResult struct {
	Operation string                  `json:"operation"`
	LogFile   string                  `json:"log_file"`
	Rows      int                     `json:"rows,omitempty"`
	Stats     engine.MaintenanceStats `json:"stats"`
}

// NewUpdateContainersCommand creates the update-containers command.
func NewUpdateContainersCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update-containers <workbook.xlsx>",
		Short: "Set barcodes and current locations of existing top containers",
		Long: `Read rows with the columns "Container Record ID", "Barcode", "Location" and
"Location Start Date" from the first worksheet. For each row, fetch the top
container, set its barcode, append a current location when one is given and
save it.

Examples:
  containersync update-containers barcodes.xlsx --repo-id 14`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSheetMaintenance(cmd, rootOpts, "update-containers", args[0], engine.ContainerUpdateRules(),
				func(m *engine.Maintenance, rows []sheet.Row) (engine.MaintenanceStats, error) {
					return m.UpdateContainers(commandContext(cmd), rows)
				})
		},
	}
	cmd.Flags().String("log-file", "update_containers.log", "event log to append to")
	return cmd
}

// NewRepointInstancesCommand creates the repoint-instances command.
func NewRepointInstancesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repoint-instances <workbook.xlsx>",
		Short: "Move archival object instances to a different top container",
		Long: `Read rows with the columns "Archival Object", "Current Container Record ID",
"New Container Record ID" and an optional "Repo ID" from the first worksheet.
Each row rewrites the first instance of the archival object that references
the current container so it references the new one. Every changed archival
object is saved once.

Examples:
  containersync repoint-instances fixes.xlsx --repo-id 17`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSheetMaintenance(cmd, rootOpts, "repoint-instances", args[0], engine.RepointRules(),
				func(m *engine.Maintenance, rows []sheet.Row) (engine.MaintenanceStats, error) {
					return m.RepointInstances(commandContext(cmd), rows)
				})
		},
	}
	cmd.Flags().String("log-file", "fix_top_containers.log", "event log to append to")
	return cmd
}

// NewPurgeJobsCommand creates the purge-jobs command.
func NewPurgeJobsCommand(rootOpts *RootOptions) *cobra.Command {
	var jobType string
	cmd := &cobra.Command{
		Use:   "purge-jobs",
		Short: "Delete background jobs of one type from every repository",
		Example: `  containersync purge-jobs
  containersync purge-jobs --type fetch_urn_job --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMaintenance(cmd, rootOpts, "purge-jobs", 0,
				func(m *engine.Maintenance) (engine.MaintenanceStats, error) {
					return m.PurgeJobs(commandContext(cmd), jobType)
				})
		},
	}
	cmd.Flags().StringVar(&jobType, "type", "fetch_urn_job", "job type to delete")
	cmd.Flags().String("log-file", "remove_urn_fetcher_jobs.log", "event log to append to")
	return cmd
}

func runSheetMaintenance(cmd *cobra.Command, opts *RootOptions, op, workbook string, rules sheet.Rules,
	fn func(*engine.Maintenance, []sheet.Row) (engine.MaintenanceStats, error)) error {
	tables, err := sheet.OpenWorkbook(workbook)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read workbook", err)
	}
	if len(tables) == 0 {
		return NewExitError(ExitCommandError, "workbook has no worksheets")
	}
	rows, err := sheet.Normalize(tables[0], rules)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read workbook", err)
	}
	return runMaintenance(cmd, opts, op, len(rows), func(m *engine.Maintenance) (engine.MaintenanceStats, error) {
		return fn(m, rows)
	})
}

func runMaintenance(cmd *cobra.Command, opts *RootOptions, op string, rows int,
	fn func(*engine.Maintenance) (engine.MaintenanceStats, error)) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	log := diagLogger(opts)

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	// Repair runs keep their own logs so they never seed an import.
	logFile, _ := cmd.Flags().GetString("log-file")
	events, err := eventlog.OpenFile(logFile, op)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open event log", err)
	}
	defer events.Close()

	client, err := connect(commandContext(cmd), cfg, log)
	if err != nil {
		return err
	}

	stats, runErr := fn(&engine.Maintenance{
		Remote: client,
		Log:    events,
		RepoID: cfg.RepoID,
		Logger: log,
	})
	result := MaintenanceResult{Operation: op, LogFile: logFile, Rows: rows, Stats: stats}
	if runErr != nil {
		if err := out.Error("E_ABORTED", runErr, result); err != nil {
			return err
		}
		return WrapExitError(ExitFailure, op+" stopped before end_ingest", runErr)
	}

	return out.Success(result, func(w io.Writer) error {
		s := result.Stats
		_, err := fmt.Fprintf(w, "%s finished: %d updated, %d deleted, %d failed, %d missing, %d unmatched\nEvent log: %s\n",
			op, s.Updated, s.Deleted, s.Failed, s.Missing, s.Unmatched, result.LogFile)
		return err
	})
}
