package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dunefetch/dunefetch/internal/dune"
	"github.com/dunefetch/dunefetch/internal/export"
	"github.com/dunefetch/dunefetch/internal/observability"
	"github.com/dunefetch/dunefetch/internal/poller"
	"github.com/dunefetch/dunefetch/internal/table"
)

const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
	outcomeTimeout   = "timeout"
	outcomeExhausted = "exhausted"
	outcomeCancelled = "cancelled"
	outcomeError     = "error"
)

type Client interface {
	ExecuteQuery(ctx context.Context, queryID dune.QueryID, opts dune.ExecuteOptions) (dune.Execution, error)
	ExecutionStatus(ctx context.Context, executionID dune.ExecutionID) (dune.Status, error)
	ExecutionResults(ctx context.Context, executionID dune.ExecutionID) (dune.Results, error)
}

type Request struct {
	QueryID    dune.QueryID
	Parameters map[string]any
}

type Outcome struct {
	QueryID     dune.QueryID
	ExecutionID dune.ExecutionID
	State       dune.State
	Attempts    int
	Elapsed     time.Duration
	Table       table.Table
}

// SinkError reports which export sink stopped the run.
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("export to %s: %v", e.Sink, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

type Service struct {
	Client Client
	Poller poller.Poller
	Sinks  []export.Sink
	Logger *slog.Logger
	Clock  func() time.Time
}

// Run triggers the query, waits for it to complete, downloads the rows and
// hands them to every sink in order. The first error stops the run.
func (s *Service) Run(ctx context.Context, request Request) (Outcome, error) {
	if s.Client == nil {
		return Outcome{}, fmt.Errorf("dune client is required")
	}
	queryID := dune.QueryID(strings.TrimSpace(string(request.QueryID)))
	if queryID == "" {
		return Outcome{}, fmt.Errorf("query id is required")
	}
	logger := s.logger().With(
		slog.String("run_id", observability.RunIDFromContext(ctx)),
		slog.String("query_id", string(queryID)),
	)
	outcome := Outcome{QueryID: queryID}

	execution, err := s.Client.ExecuteQuery(ctx, queryID, dune.ExecuteOptions{Parameters: request.Parameters})
	if err != nil {
		observability.ObserveExecutionOutcome(outcomeError)
		return outcome, fmt.Errorf("execute query %s: %w", queryID, err)
	}
	outcome.ExecutionID = execution.ExecutionID
	outcome.State = execution.State
	logger = logger.With(slog.String("execution_id", string(execution.ExecutionID)))
	logger.InfoContext(ctx, "query execution started")

	waiter := s.Poller
	if waiter.Checker == nil {
		waiter.Checker = s.Client
	}
	if waiter.Logger == nil {
		waiter.Logger = logger
	}
	waited, err := waiter.Wait(ctx, execution.ExecutionID)
	outcome.Attempts = waited.Attempts
	outcome.Elapsed = waited.Elapsed
	if waited.Status.State != "" {
		outcome.State = waited.Status.State
	}
	if err != nil {
		observability.ObserveExecutionOutcome(waitOutcome(err))
		return outcome, err
	}
	observability.ObserveExecutionWait(waited.Elapsed)
	logger.InfoContext(ctx, "query execution completed",
		slog.Int("attempts", waited.Attempts),
		slog.Duration("elapsed", waited.Elapsed),
	)

	results, err := s.Client.ExecutionResults(ctx, execution.ExecutionID)
	if err != nil {
		observability.ObserveExecutionOutcome(outcomeError)
		return outcome, fmt.Errorf("fetch results of execution %s: %w", execution.ExecutionID, err)
	}
	outcome.Table = table.FromRows(results.Rows, results.Metadata.ColumnNames)
	observability.SetResultRows(outcome.Table.Len())
	logger.InfoContext(ctx, "query results fetched",
		slog.Int("rows", outcome.Table.Len()),
		slog.Int("columns", len(outcome.Table.Columns)),
	)

	resultSet := export.ResultSet{
		QueryID:     string(queryID),
		ExecutionID: string(execution.ExecutionID),
		FetchedAt:   s.now(),
		Table:       outcome.Table,
	}
	for _, sink := range s.Sinks {
		if sink == nil {
			continue
		}
		err := sink.Write(ctx, resultSet)
		observability.ObserveExportWrite(sink.Name(), err)
		if err != nil {
			observability.ObserveExecutionOutcome(outcomeError)
			return outcome, &SinkError{Sink: sink.Name(), Err: err}
		}
		logger.InfoContext(ctx, "results exported", slog.String("sink", sink.Name()))
	}

	observability.ObserveExecutionOutcome(outcomeCompleted)
	return outcome, nil
}

func waitOutcome(err error) string {
	var failed *poller.ExecutionFailedError
	switch {
	case errors.As(err, &failed):
		return outcomeFailed
	case errors.Is(err, poller.ErrWaitTimeout):
		return outcomeTimeout
	case errors.Is(err, poller.ErrAttemptsExhausted):
		return outcomeExhausted
	case errors.Is(err, context.Canceled):
		return outcomeCancelled
	default:
		return outcomeError
	}
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock().UTC()
}
