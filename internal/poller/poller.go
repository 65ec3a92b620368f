package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dunefetch/dunefetch/internal/dune"
	"github.com/dunefetch/dunefetch/internal/observability"
)

var (
	ErrAttemptsExhausted = errors.New("execution did not complete within the attempt limit")
	ErrWaitTimeout       = errors.New("execution did not complete before the wait timeout")
)

type StatusChecker interface {
	ExecutionStatus(ctx context.Context, executionID dune.ExecutionID) (dune.Status, error)
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// NotifyFunc is called after every non-terminal status check.
type NotifyFunc func(attempt int, status dune.Status)

type Config struct {
	Interval         time.Duration
	MaxAttempts      int
	Timeout          time.Duration
	TransientRetries int
}

type Poller struct {
	Checker StatusChecker
	Config  Config
	Sleep   SleepFunc
	Notify  NotifyFunc
	Logger  *slog.Logger
	Clock   func() time.Time
}

type Result struct {
	Status   dune.Status
	Attempts int
	Elapsed  time.Duration
}

type ExecutionFailedError struct {
	ExecutionID dune.ExecutionID
	State       dune.State
	Message     string
}

func (e *ExecutionFailedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("execution %s ended in %s: %s", e.ExecutionID, e.State, e.Message)
	}
	return fmt.Sprintf("execution %s ended in %s", e.ExecutionID, e.State)
}

// Wait checks the execution status until it completes, fails, or one of the
// configured bounds is hit.
func (p *Poller) Wait(ctx context.Context, executionID dune.ExecutionID) (Result, error) {
	if p.Checker == nil {
		return Result{}, fmt.Errorf("status checker is required")
	}
	p.ensureDefaults()

	waitCtx := ctx
	if p.Config.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.Config.Timeout)
		defer cancel()
	}

	start := p.Clock()
	result := Result{}
	consecutiveErrors := 0
	for {
		result.Attempts++
		observability.IncrementPollAttempts()
		status, err := p.Checker.ExecutionStatus(waitCtx, executionID)
		result.Elapsed = p.Clock().Sub(start)

		switch {
		case err != nil:
			if waitCtx.Err() != nil {
				return result, p.interrupted(ctx, executionID, result)
			}
			if !dune.IsRetryable(err) || consecutiveErrors >= p.Config.TransientRetries {
				return result, fmt.Errorf("check execution status: %w", err)
			}
			consecutiveErrors++
			p.Logger.WarnContext(ctx, "transient status check failure",
				slog.String("execution_id", string(executionID)),
				slog.Int("attempt", result.Attempts),
				slog.Int("consecutive_errors", consecutiveErrors),
				slog.Any("error", err),
			)
		case status.State.Completed():
			result.Status = status
			return result, nil
		case status.State.Failed():
			result.Status = status
			failure := &ExecutionFailedError{ExecutionID: executionID, State: status.State}
			if status.Error != nil {
				failure.Message = status.Error.Message
			}
			return result, failure
		default:
			consecutiveErrors = 0
			result.Status = status
			p.Logger.DebugContext(ctx, "execution not finished",
				slog.String("execution_id", string(executionID)),
				slog.String("state", string(status.State)),
				slog.Int("attempt", result.Attempts),
			)
			if p.Notify != nil {
				p.Notify(result.Attempts, status)
			}
		}

		if p.Config.MaxAttempts > 0 && result.Attempts >= p.Config.MaxAttempts {
			return result, fmt.Errorf("%w: %d status checks, last state %s", ErrAttemptsExhausted, result.Attempts, result.Status.State)
		}
		if err := p.Sleep(waitCtx, p.Config.Interval); err != nil {
			result.Elapsed = p.Clock().Sub(start)
			return result, p.interrupted(ctx, executionID, result)
		}
	}
}

func (p *Poller) interrupted(ctx context.Context, executionID dune.ExecutionID, result Result) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("wait for execution %s: %w", executionID, err)
	}
	return fmt.Errorf("%w after %s (%d status checks)", ErrWaitTimeout, p.Config.Timeout, result.Attempts)
}

func (p *Poller) ensureDefaults() {
	if p.Clock == nil {
		p.Clock = time.Now
	}
	if p.Sleep == nil {
		p.Sleep = SleepContext
	}
	if p.Logger == nil {
		p.Logger = slog.New(slog.DiscardHandler)
	}
	if p.Config.Interval <= 0 {
		p.Config.Interval = 10 * time.Second
	}
	if p.Config.TransientRetries < 0 {
		p.Config.TransientRetries = 0
	}
}

func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
