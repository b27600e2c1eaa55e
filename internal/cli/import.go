package cli

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/roach88/containersync/internal/config"
	"github.com/roach88/containersync/internal/engine"
	"github.com/roach88/containersync/internal/eventlog"
	"github.com/roach88/containersync/internal/resolve"
	"github.com/roach88/containersync/internal/sheet"
	"github.com/roach88/containersync/internal/store"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	SkipViaLog string
	SkipViaDB  string
}

// ImportResult is the JSON payload of a finished or aborted import.
type ImportResult struct {
	Workbook      string       `json:"workbook"`
	LogFile       string       `json:"log_file"`
	ContainerRows int          `json:"container_rows"`
	InstanceRows  int          `json:"instance_rows"`
	Stats         engine.Stats `json:"stats"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <workbook.xlsx>",
		Short: "Create top containers and attach them to archival objects",
		Long: `Read container and instance rows from a workbook, create the containers
and append instances to their archival objects.

Each worksheet is classified by its header row: a sheet naming the parent
record id column holds instance rows, a sheet naming the container indicator
column holds container rows.

To resume an interrupted run, pass the earlier log with --skip-via-log (or
its SQLite mirror with --skip-via-db). Containers and parents it recorded are
not touched again.

Exit codes:
  0 - Run finished (row-level failures are in the log)
  1 - Run stopped early (batch fetch failure, interrupted), or the
      --mirror-db database missed events
  2 - Command error (bad config, unreadable workbook, login failed)

Examples:
  containersync import boxes.xlsx --base-url http://localhost:8089 --username admin --password admin
  containersync import boxes.xlsx --skip-via-log import_container_data.log
  containersync import boxes.xlsx --mirror-db ingest.db --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.SkipViaLog, "skip-via-log", "", "event log of an earlier run to resume from")
	cmd.Flags().StringVar(&opts.SkipViaDB, "skip-via-db", "", "SQLite mirror of an earlier run to resume from")
	cmd.Flags().String("log-file", config.DefaultLogFile, "event log to append to")
	cmd.Flags().String("mirror-db", "", "also mirror events into this SQLite database")
	cmd.Flags().String("layout-file", "", "YAML file overriding sheet header names")
	cmd.Flags().Int("chunk-size", engine.DefaultChunkSize, "parent records fetched per request (1-250)")

	return cmd
}

func runImport(cmd *cobra.Command, opts *ImportOptions, workbook string) error {
	ctx := commandContext(cmd)
	log := diagLogger(opts.RootOptions)
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	cfg, err := loadConfig(cmd, opts.RootOptions)
	if err != nil {
		return err
	}

	layout, err := sheet.LoadLayout(cfg.LayoutFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load layout", err)
	}
	containers, instances, err := readImportWorkbook(workbook, layout, log)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read workbook", err)
	}

	resolver, err := seedResolver(cmd, opts)
	if err != nil {
		return err
	}

	logOpts := []eventlog.Option{eventlog.WithErrorOutput(zapcore.AddSync(cmd.ErrOrStderr()))}
	if cfg.MirrorDB != "" {
		st, err := store.Open(cfg.MirrorDB)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open mirror database", err)
		}
		defer st.Close()
		logOpts = append(logOpts, eventlog.WithMirror(st))
	}
	events, err := eventlog.OpenFile(cfg.LogFile, "import_container_data", logOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open event log", err)
	}
	defer events.Close()

	client, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}

	im, err := engine.NewImporter(client, events, engine.Config{
		RepoID:    cfg.RepoID,
		ChunkSize: cfg.ChunkSize,
		Layout:    layout,
	}, engine.WithResolver(resolver), engine.WithLogger(log))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid import settings", err)
	}

	stats, runErr := im.Run(ctx, containers, instances)
	result := ImportResult{
		Workbook:      workbook,
		LogFile:       cfg.LogFile,
		ContainerRows: len(containers),
		InstanceRows:  len(instances),
		Stats:         stats,
	}
	if runErr == nil {
		if err := events.MirrorErr(); err != nil {
			log.Warnw("Mirror database fell behind the event log", "mirror_db", cfg.MirrorDB, "error", err)
			runErr = errors.WithHintf(err, "%s is incomplete; resume from %s with --skip-via-log", cfg.MirrorDB, cfg.LogFile)
			if err := out.Error("E_MIRROR", runErr, result); err != nil {
				return err
			}
			return WrapExitError(ExitFailure, "mirror database is incomplete", runErr)
		}
	}
	if runErr != nil {
		code := "E_ABORTED"
		if engine.IsBatchFetchError(runErr) {
			code = "E_BATCH_FETCH"
		}
		if err := out.Error(code, runErr, result); err != nil {
			return err
		}
		return WrapExitError(ExitFailure, "import stopped before end_ingest", runErr)
	}

	return out.Success(result, func(w io.Writer) error {
		return writeImportText(w, result)
	})
}

// readImportWorkbook classifies every worksheet and normalizes its rows.
// Sheets of unknown shape are skipped with a warning.
func readImportWorkbook(path string, layout sheet.Layout, log *zap.SugaredLogger) (containers, instances []sheet.Row, err error) {
	tables, err := sheet.OpenWorkbook(path)
	if err != nil {
		return nil, nil, err
	}
	rules := layout.Rules()
	for _, t := range tables {
		kind := layout.Classify(t)
		if kind == sheet.SheetUnknown {
			log.Warnw("Skipping worksheet with unrecognized headers", "sheet", t.Name)
			continue
		}
		rows, err := sheet.Normalize(t, rules)
		if err != nil {
			return nil, nil, err
		}
		log.Debugw("Read worksheet", "sheet", t.Name, "kind", kind, "rows", len(rows))
		if kind == sheet.SheetContainers {
			containers = append(containers, rows...)
		} else {
			instances = append(instances, rows...)
		}
	}
	return containers, instances, nil
}

// seedResolver replays the prior run named by --skip-via-log or
// --skip-via-db, if any.
func seedResolver(cmd *cobra.Command, opts *ImportOptions) (*resolve.Resolver, error) {
	r := resolve.New()
	if opts.SkipViaLog != "" && opts.SkipViaDB != "" {
		return nil, NewExitError(ExitCommandError, "--skip-via-log and --skip-via-db are mutually exclusive")
	}

	var (
		events []eventlog.Event
		err    error
		source string
	)
	switch {
	case opts.SkipViaLog != "":
		source = opts.SkipViaLog
		events, err = eventlog.ReadFile(opts.SkipViaLog)
	case opts.SkipViaDB != "":
		source = opts.SkipViaDB
		var st *store.Store
		st, err = store.OpenReadOnly(opts.SkipViaDB)
		if err == nil {
			events, err = st.Events(commandContext(cmd))
			st.Close()
		}
	default:
		return r, nil
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read prior run", errors.Wrapf(err, "source %s", source))
	}
	if err := r.SeedFromLog(events); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to replay prior run", err)
	}
	diagLogger(opts.RootOptions).Infow("Seeded from prior run",
		"source", source,
		"containers", r.Len(),
		"parents", len(r.ProcessedParents()),
	)
	return r, nil
}

func writeImportText(w io.Writer, r ImportResult) error {
	s := r.Stats
	_, err := fmt.Fprintf(w, `Import finished: %s
  Rows:       %d container, %d instance
  Containers: %d created, %d skipped, %d failed
  Parents:    %d updated, %d skipped, %d failed, %d unchanged
  Instances:  %d added, %d rows failed, %d rows omitted
Event log: %s
`,
		r.Workbook,
		r.ContainerRows, r.InstanceRows,
		s.ContainersCreated, s.ContainersSkipped, s.ContainersFailed,
		s.ParentsUpdated, s.ParentsSkipped, s.ParentsFailed, s.ParentsUnchanged,
		s.InstancesAdded, s.RowsFailed, s.RowsOmitted,
		r.LogFile,
	)
	return err
}
