package dune

type QueryID string

type ExecutionID string

type State string

const (
	StatePending          State = "QUERY_STATE_PENDING"
	StateExecuting        State = "QUERY_STATE_EXECUTING"
	StateCompleted        State = "QUERY_STATE_COMPLETED"
	StateCompletedPartial State = "QUERY_STATE_COMPLETED_PARTIAL"
	StateFailed           State = "QUERY_STATE_FAILED"
	StateCancelled        State = "QUERY_STATE_CANCELLED"
	StateExpired          State = "QUERY_STATE_EXPIRED"
)

// Completed reports whether results are ready to fetch.
func (s State) Completed() bool {
	return s == StateCompleted
}

// Failed reports whether the execution ended without usable results.
// Partial completion counts as failure because the rows are truncated.
func (s State) Failed() bool {
	switch s {
	case StateFailed, StateCancelled, StateExpired, StateCompletedPartial:
		return true
	default:
		return false
	}
}

func (s State) Terminal() bool {
	return s.Completed() || s.Failed()
}

type ExecuteOptions struct {
	Parameters map[string]any
}

type Execution struct {
	ExecutionID ExecutionID `json:"execution_id"`
	State       State       `json:"state"`
}

type ExecutionError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Status struct {
	ExecutionID         ExecutionID     `json:"execution_id"`
	State               State           `json:"state"`
	IsExecutionFinished bool            `json:"is_execution_finished"`
	Error               *ExecutionError `json:"error,omitempty"`
}

// Row keeps numbers as json.Number so callers decide how to type them.
type Row map[string]any

type ResultMetadata struct {
	ColumnNames   []string `json:"column_names"`
	TotalRowCount int64    `json:"total_row_count"`
}

type Results struct {
	ExecutionID ExecutionID    `json:"execution_id"`
	State       State          `json:"state"`
	Rows        []Row          `json:"rows"`
	Metadata    ResultMetadata `json:"metadata"`
}

type resultsPayload struct {
	ExecutionID ExecutionID `json:"execution_id"`
	State       State       `json:"state"`
	NextOffset  *int64      `json:"next_offset"`
	Result      struct {
		Rows     []Row          `json:"rows"`
		Metadata ResultMetadata `json:"metadata"`
	} `json:"result"`
}
