package export

import (
	"context"
	"time"

	"github.com/dunefetch/dunefetch/internal/table"
)

// ResultSet is one fetched execution as handed to sinks.
type ResultSet struct {
	QueryID     string
	ExecutionID string
	FetchedAt   time.Time
	Table       table.Table
}

type Sink interface {
	Name() string
	Write(ctx context.Context, result ResultSet) error
}
