package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/neomorfeo/ctinamer/internal/adapter/otel"
)

// Version is reported by the HTTP API and telemetry.
const Version = "0.1.0"

// Storage backends selectable with --backend.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose        bool
	Format         string // "json" | "text"
	ReportConfig   string
	PlatformConfig string
	Backend        string // "file" | "sqlite"
	Database       string

	providers *otel.Providers
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// ValidBackends defines the allowed storage backends.
var ValidBackends = []string{BackendFile, BackendSQLite}

// NewRootCommand creates the root command for the ctinamer CLI. Flag
// defaults come from CTINAMER_* environment variables when set.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ctinamer",
		Short: "Sequential identifiers for CTI reports and VirusTotal artifacts",
		Long: `ctinamer issues human-readable, collision-free identifiers for threat
intelligence reports, VirusTotal collections and VirusTotal graphs.

IDs follow [PREFIX-]SOURCE[-CATEGORY]-YYYYMMDD-NN, where NN is a per-day
sequence that is never reused. State is kept in one document per store
(report, platform) or in a SQLite database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if !slices.Contains(ValidBackends, opts.Backend) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid backend %q: must be one of %v", opts.Backend, ValidBackends))
			}

			cfg := otel.ConfigFromEnv()
			cfg.ServiceVersion = Version
			cfg.Writer = cmd.ErrOrStderr()
			providers, err := otel.Setup(cmd.Context(), cfg)
			if err != nil {
				return WrapExitError(ExitCommandError, "telemetry setup failed", err)
			}
			opts.providers = providers
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.providers == nil {
				return nil
			}
			return opts.providers.Shutdown(context.WithoutCancel(cmd.Context()))
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", envOrDefault("CTINAMER_FORMAT", "text"), "output format (json|text)")
	flags.StringVar(&opts.ReportConfig, "report-config", envOrDefault("CTINAMER_REPORT_CONFIG", "report_naming_config.yaml"), "report store document (path or URL)")
	flags.StringVar(&opts.PlatformConfig, "platform-config", envOrDefault("CTINAMER_PLATFORM_CONFIG", "vt_naming_config.json"), "collection/graph store document (path or URL)")
	flags.StringVar(&opts.Backend, "backend", envOrDefault("CTINAMER_BACKEND", BackendFile), "storage backend (file|sqlite)")
	flags.StringVar(&opts.Database, "database", envOrDefault("CTINAMER_DATABASE", "ctinamer.db"), "SQLite database for the sqlite backend and the serve job queue")

	// Add subcommands
	for _, ns := range []string{"report", "collection", "graph"} {
		cmd.AddCommand(NewAllocateCommand(opts, ns))
	}
	cmd.AddCommand(NewDescribeCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewSetOutputCommand(opts))
	cmd.AddCommand(NewAllowCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// Execute runs the CLI with args and returns the process exit code. Errors
// are reported through the output formatter in the selected format.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	format, _ := cmd.PersistentFlags().GetString("format")
	if !slices.Contains(ValidFormats, format) {
		format = "text"
	}
	f := &OutputFormatter{Format: format, Writer: stdout, ErrWriter: stderr}
	_ = f.Error(errorCode(err), err.Error(), nil)
	return GetExitCode(err)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

// logger returns the structured logger for services: debug on --verbose,
// errors only otherwise since warnings reach users through the formatter.
func (o *RootOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelError
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
