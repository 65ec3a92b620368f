package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dunefetch/dunefetch/internal/config"
	"github.com/dunefetch/dunefetch/internal/dune"
	"github.com/dunefetch/dunefetch/internal/observability"
	"github.com/dunefetch/dunefetch/internal/poller"
	"github.com/dunefetch/dunefetch/internal/storage"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

type Options struct {
	Stdout     io.Writer
	Stderr     io.Writer
	Lookup     config.LookupFunc
	HTTPClient *http.Client
	Sleep      poller.SleepFunc
	// Store replaces the S3 object store built from configuration.
	Store storage.ObjectStore
}

// usageError marks failures caused by bad flags, arguments or configuration.
type usageError struct {
	err error
}

func (e usageError) Error() string {
	return e.err.Error()
}

func (e usageError) Unwrap() error {
	return e.err
}

func usagef(format string, args ...any) error {
	return usageError{err: fmt.Errorf(format, args...)}
}

type app struct {
	opts   Options
	cfg    config.Config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
	params []string
}

// Run executes the CLI and returns the process exit code: 0 on success,
// 1 on runtime failure and 2 on usage or configuration errors.
func Run(ctx context.Context, args []string, opts Options) int {
	stdout := opts.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if args == nil {
		args = []string{}
	}

	cfg, err := config.Load("dunefetch", lookup)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "error: invalid configuration: %v\n", err)
		return exitUsage
	}

	a := &app{opts: opts, cfg: cfg, stdout: stdout, stderr: stderr}
	root := a.newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
		var usage usageError
		if errors.As(err, &usage) {
			return exitUsage
		}
		return exitFailure
	}
	return exitOK
}

func (a *app) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dunefetch",
		Short:         "Run a saved Dune query and print its results",
		Long:          "Trigger a saved Dune Analytics query, wait for it to complete, fetch its rows and print them as a table.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          usageArgs(cobra.NoArgs),
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := a.cfg.Validate(); err != nil {
				return usageError{err: err}
			}
			a.logger = observability.NewLogger(a.cfg, a.stderr)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runCycle(cmd.Context(), "")
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err: err}
	})

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfg.API.APIKey, "api-key", a.cfg.API.APIKey, "Dune API key (env DUNEFETCH_API_KEY)")
	flags.StringVar(&a.cfg.API.BaseURL, "base-url", a.cfg.API.BaseURL, "Dune API base URL")
	flags.DurationVar(&a.cfg.API.Timeout, "request-timeout", a.cfg.API.Timeout, "timeout of a single API request")
	flags.StringVar(&a.cfg.Query.ID, "query-id", a.cfg.Query.ID, "saved query to execute (env DUNEFETCH_QUERY_ID)")
	flags.StringArrayVar(&a.params, "param", nil, "query parameter as key=value, repeatable")
	flags.StringVarP(&a.cfg.Output.Format, "output", "o", a.cfg.Output.Format, "output format: table, json or csv")
	flags.DurationVar(&a.cfg.Poll.Interval, "poll-interval", a.cfg.Poll.Interval, "delay between status checks")
	flags.IntVar(&a.cfg.Poll.MaxAttempts, "max-attempts", a.cfg.Poll.MaxAttempts, "maximum status checks, 0 for no limit")
	flags.DurationVar(&a.cfg.Poll.Timeout, "timeout", a.cfg.Poll.Timeout, "maximum time to wait for completion, 0 for no limit")
	flags.IntVar(&a.cfg.Poll.TransientRetries, "transient-retries", a.cfg.Poll.TransientRetries, "consecutive retryable status errors to tolerate")
	flags.StringVar(&a.cfg.Export.ParquetPath, "parquet-path", a.cfg.Export.ParquetPath, "write results to this parquet file")
	flags.BoolVar(&a.cfg.Export.Upload, "upload", a.cfg.Export.Upload, "upload results as parquet to the object store")
	flags.StringVar(&a.cfg.Export.PostgresDSN, "postgres-dsn", a.cfg.Export.PostgresDSN, "append results to a postgres table")
	flags.StringVar(&a.cfg.Export.DuckDBPath, "duckdb-path", a.cfg.Export.DuckDBPath, "append results to a table in this duckdb file")
	flags.StringVar(&a.cfg.Export.Table, "table", a.cfg.Export.Table, "target table of the sql sinks")

	root.AddCommand(
		a.newExecuteCmd(),
		a.newStatusCmd(),
		a.newResultsCmd(),
		a.newRunCmd(),
	)
	return root
}

func (a *app) client() (*dune.Client, error) {
	if strings.TrimSpace(a.cfg.API.APIKey) == "" {
		return nil, usagef("api key is required: set DUNEFETCH_API_KEY or --api-key")
	}
	return dune.NewClient(dune.Config{
		BaseURL:    a.cfg.API.BaseURL,
		APIKey:     a.cfg.API.APIKey,
		Timeout:    a.cfg.API.Timeout,
		HTTPClient: a.opts.HTTPClient,
		Logger:     a.logger,
	})
}

func (a *app) queryID(args []string) (dune.QueryID, error) {
	id := a.cfg.Query.ID
	if len(args) > 0 {
		id = args[0]
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", usagef("query id is required: pass it as an argument, --query-id or DUNEFETCH_QUERY_ID")
	}
	return dune.QueryID(id), nil
}

func (a *app) parameters() (map[string]any, error) {
	return parseParams(a.params)
}

// parseParams turns repeated key=value flags into query parameters. Later
// values win.
func parseParams(raw []string) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(raw))
	for _, item := range raw {
		key, value, ok := strings.Cut(item, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, usagef("invalid --param %q: expected key=value", item)
		}
		params[key] = value
	}
	return params, nil
}

func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return usageError{err: err}
		}
		return nil
	}
}
