package domain

import "time"

// Run states recorded in a RunReport.
const (
	RunStateSucceeded = "SUCCEEDED"
	RunStateFailed    = "FAILED"
	RunStateStopped   = "STOPPED" // row limit reached, remote query released early
)

// RunReport summarizes one task execution.
type RunReport struct {
	ID         string
	Task       string
	QueryID    string
	State      string
	Rows       int64
	Pages      int64
	StartedAt  time.Time
	FinishedAt time.Time
	Error      string
}

// Duration returns the wall time of the run.
func (r RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
