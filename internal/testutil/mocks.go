// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase. This follows the Go convention of a
// shared test utility package (like net/http/httptest).
package testutil

import (
	"context"
	"sync"
	"time"

	"trino-ingest/internal/domain"
)

// === Sink Mock ===

// Null marks a cell written with SetNull.
type Null struct{}

// MockSink implements domain.Sink and records every finished row.
type MockSink struct {
	FinishRowFn func(row []any) error
	FinishFn    func() error
	CloseFn     func() error

	Rows     [][]any // finished rows; cells are bool, int64, float64, string, time.Time or Null
	Finished int     // number of Finish calls
	Closed   int     // number of Close calls

	current map[int]any
}

func (m *MockSink) set(col int, v any) {
	if m.current == nil {
		m.current = make(map[int]any)
	}
	m.current[col] = v
}

// SetBoolean implements the interface method for testing.
func (m *MockSink) SetBoolean(col int, v bool) { m.set(col, v) }

// SetInteger implements the interface method for testing.
func (m *MockSink) SetInteger(col int, v int64) { m.set(col, v) }

// SetFloat implements the interface method for testing.
func (m *MockSink) SetFloat(col int, v float64) { m.set(col, v) }

// SetString implements the interface method for testing.
func (m *MockSink) SetString(col int, v string) { m.set(col, v) }

// SetTimestamp implements the interface method for testing.
func (m *MockSink) SetTimestamp(col int, v time.Time) { m.set(col, v) }

// SetNull implements the interface method for testing.
func (m *MockSink) SetNull(col int) { m.set(col, Null{}) }

// FinishRow implements the interface method for testing.
func (m *MockSink) FinishRow() error {
	width := 0
	for col := range m.current {
		width = max(width, col+1)
	}
	row := make([]any, width)
	for col, v := range m.current {
		row[col] = v
	}
	m.current = nil
	if m.FinishRowFn != nil {
		if err := m.FinishRowFn(row); err != nil {
			return err
		}
	}
	m.Rows = append(m.Rows, row)
	return nil
}

// Finish implements the interface method for testing.
func (m *MockSink) Finish() error {
	m.Finished++
	if m.FinishFn != nil {
		return m.FinishFn()
	}
	return nil
}

// Close implements the interface method for testing.
func (m *MockSink) Close() error {
	m.Closed++
	if m.CloseFn != nil {
		return m.CloseFn()
	}
	return nil
}

// Pending returns the cells set since the last FinishRow.
func (m *MockSink) Pending() map[int]any { return m.current }

var _ domain.Sink = (*MockSink)(nil)

// === Run Recorder Mock ===

// MockRunRecorder implements domain.RunRecorder for testing.
type MockRunRecorder struct {
	RecordFn func(ctx context.Context, report domain.RunReport) error

	mu      sync.Mutex
	Reports []domain.RunReport // collected reports for assertions
}

// Record implements the interface method for testing.
func (m *MockRunRecorder) Record(ctx context.Context, report domain.RunReport) error {
	m.mu.Lock()
	m.Reports = append(m.Reports, report)
	m.mu.Unlock()
	if m.RecordFn != nil {
		return m.RecordFn(ctx, report)
	}
	return nil
}

// LastReport returns the last collected report, or nil if none.
func (m *MockRunRecorder) LastReport() *domain.RunReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Reports) == 0 {
		return nil
	}
	r := m.Reports[len(m.Reports)-1]
	return &r
}

var _ domain.RunRecorder = (*MockRunRecorder)(nil)
