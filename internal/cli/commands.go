package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/dunefetch/dunefetch/internal/dune"
	"github.com/dunefetch/dunefetch/internal/fetch"
	"github.com/dunefetch/dunefetch/internal/observability"
	"github.com/dunefetch/dunefetch/internal/poller"
	"github.com/dunefetch/dunefetch/internal/table"
)

const metricsPushTimeout = 5 * time.Second

func (a *app) newExecuteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "execute [query-id]",
		Short: "Start an execution and print its id",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			queryID, err := a.queryID(args)
			if err != nil {
				return err
			}
			params, err := a.parameters()
			if err != nil {
				return err
			}
			client, err := a.client()
			if err != nil {
				return err
			}
			execution, err := client.ExecuteQuery(cmd.Context(), queryID, dune.ExecuteOptions{Parameters: params})
			if err != nil {
				return err
			}
			return table.Render(a.stdout, table.Table{
				Columns: []string{"execution_id", "state"},
				Rows:    [][]any{{string(execution.ExecutionID), string(execution.State)}},
			}, a.cfg.Output.Format)
		},
	}
}

func (a *app) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <execution-id>",
		Short: "Check the state of an execution once",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			status, err := client.ExecutionStatus(cmd.Context(), dune.ExecutionID(args[0]))
			if err != nil {
				return err
			}
			var message any
			if status.Error != nil {
				message = status.Error.Message
			}
			return table.Render(a.stdout, table.Table{
				Columns: []string{"execution_id", "state", "is_execution_finished", "error"},
				Rows:    [][]any{{string(status.ExecutionID), string(status.State), status.IsExecutionFinished, message}},
			}, a.cfg.Output.Format)
		},
	}
}

func (a *app) newResultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "results <execution-id>",
		Short: "Fetch and print the rows of a completed execution",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			results, err := client.ExecutionResults(cmd.Context(), dune.ExecutionID(args[0]))
			if err != nil {
				return err
			}
			return table.Render(a.stdout, table.FromRows(results.Rows, results.Metadata.ColumnNames), a.cfg.Output.Format)
		},
	}
}

func (a *app) newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [query-id]",
		Short: "Execute a query, wait for completion, export and print the results",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			queryID := ""
			if len(args) > 0 {
				queryID = args[0]
			}
			return a.runCycle(cmd.Context(), queryID)
		},
	}
}

func (a *app) runCycle(ctx context.Context, rawQueryID string) error {
	var args []string
	if rawQueryID != "" {
		args = []string{rawQueryID}
	}
	queryID, err := a.queryID(args)
	if err != nil {
		return err
	}
	params, err := a.parameters()
	if err != nil {
		return err
	}
	client, err := a.client()
	if err != nil {
		return err
	}

	ctx = observability.ContextWithRunID(ctx, observability.NewRunID())
	sinks, closeSinks, err := a.buildSinks(ctx)
	if err != nil {
		return err
	}
	defer closeSinks()

	service := &fetch.Service{
		Client: client,
		Poller: poller.Poller{
			Config: poller.Config{
				Interval:         a.cfg.Poll.Interval,
				MaxAttempts:      a.cfg.Poll.MaxAttempts,
				Timeout:          a.cfg.Poll.Timeout,
				TransientRetries: a.cfg.Poll.TransientRetries,
			},
			Sleep: a.opts.Sleep,
			Notify: func(_ int, status dune.Status) {
				_, _ = fmt.Fprintf(a.stderr, "Query is still %s. Waiting...\n", status.State)
			},
		},
		Sinks:  sinks,
		Logger: a.logger,
	}

	outcome, runErr := service.Run(ctx, fetch.Request{QueryID: queryID, Parameters: params})
	a.pushMetrics(ctx)
	if runErr != nil {
		return runErr
	}
	return table.Render(a.stdout, outcome.Table, a.cfg.Output.Format)
}

func (a *app) pushMetrics(ctx context.Context) {
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsPushTimeout)
	defer cancel()
	if err := observability.PushMetrics(pushCtx, a.cfg.Metrics); err != nil {
		a.logger.WarnContext(ctx, "metrics push failed", slog.Any("error", err))
	}
}
