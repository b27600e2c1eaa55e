package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/containersync/internal/aspace"
	"github.com/roach88/containersync/internal/config"
	"github.com/roach88/containersync/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string

	// Logger is built in PersistentPreRunE; diagnostics go to stderr.
	Logger *zap.SugaredLogger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the containersync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "containersync",
		Short: "Sync spreadsheet container data into ArchivesSpace",
		Long: `containersync creates top containers from a workbook and attaches them to
archival objects as instances, recording every mutation in an append-only
JSON-lines event log. A later run can replay that log to skip finished work.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			opts.Logger = logging.New(cmd.ErrOrStderr(), logging.Options{Verbose: opts.Verbose})
			return nil
		},
	}

	// Global flags
	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVar(&opts.ConfigFile, "config", "", "config file (yaml or toml)")

	// Connection flags; every one can also come from the config file or
	// CONTAINERSYNC_* variables.
	pf.String("base-url", "", "ArchivesSpace backend URL")
	pf.String("username", "", "backend username")
	pf.String("password", "", "backend password")
	pf.String("session", "", "pre-issued session token (skips login)")
	pf.Int("repo-id", 2, "repository id")
	pf.Float64("requests-per-second", 0, "client-side request pacing (0 = unlimited)")
	pf.Duration("timeout", 0, "per-request timeout")

	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewReportCommand(opts))
	cmd.AddCommand(NewUpdateContainersCommand(opts))
	cmd.AddCommand(NewRepointInstancesCommand(opts))
	cmd.AddCommand(NewPurgeJobsCommand(opts))

	return cmd
}

// loadConfig merges defaults, the config file, environment and the flags
// set on cmd.
func loadConfig(cmd *cobra.Command, opts *RootOptions) (*config.Config, error) {
	v, err := config.New(opts.ConfigFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to bind flags", err)
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}

// connect builds a client and logs in unless a session was configured.
func connect(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*aspace.Client, error) {
	client, err := aspace.NewClient(aspace.Config{
		BaseURL:           cfg.BaseURL,
		Username:          cfg.Username,
		Password:          cfg.Password,
		Session:           cfg.Session,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Timeout:           cfg.Timeout,
		Logger:            logger,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create client", err)
	}
	if !client.Authenticated() {
		if err := client.Login(ctx); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to log in", err)
		}
		logger.Infow("Logged in", "user", cfg.Username)
	}
	return client, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func diagLogger(opts *RootOptions) *zap.SugaredLogger {
	if opts.Logger == nil {
		return logging.Nop()
	}
	return opts.Logger
}
