package domain

import (
	"context"
	"time"
)

// Sink receives typed values column by column and row by row.
// Implemented by the sinks in internal/sink.
type Sink interface {
	SetBoolean(col int, v bool)
	SetInteger(col int, v int64)
	SetFloat(col int, v float64)
	SetString(col int, v string)
	SetTimestamp(col int, v time.Time)
	SetNull(col int)

	// FinishRow commits the values set since the previous FinishRow.
	FinishRow() error
	// Finish is called once after the last row of a successful run.
	Finish() error
	// Close releases the sink. It is called on every exit path, after Finish or without it.
	Close() error
}

// RunRecorder persists run reports.
// Implemented by history.Store.
type RunRecorder interface {
	Record(ctx context.Context, report RunReport) error
}
