package sink

import (
	"time"

	"trino-ingest/internal/domain"
	"trino-ingest/internal/schema"
)

// Buffer keeps rows in memory. Cells hold bool, int64, float64, string,
// time.Time or nil. Used by the preview command.
type Buffer struct {
	schema   schema.Schema
	rows     [][]any
	current  []any
	finished bool
}

var _ domain.Sink = (*Buffer)(nil)

// NewBuffer creates an empty Buffer for s.
func NewBuffer(s schema.Schema) *Buffer {
	return &Buffer{schema: s, current: make([]any, s.Len())}
}

func (b *Buffer) SetBoolean(col int, v bool)        { b.current[col] = v }
func (b *Buffer) SetInteger(col int, v int64)       { b.current[col] = v }
func (b *Buffer) SetFloat(col int, v float64)       { b.current[col] = v }
func (b *Buffer) SetString(col int, v string)       { b.current[col] = v }
func (b *Buffer) SetTimestamp(col int, v time.Time) { b.current[col] = v }
func (b *Buffer) SetNull(col int)                   { b.current[col] = nil }

func (b *Buffer) FinishRow() error {
	b.rows = append(b.rows, b.current)
	b.current = make([]any, b.schema.Len())
	return nil
}

func (b *Buffer) Finish() error {
	b.finished = true
	return nil
}

func (b *Buffer) Close() error { return nil }

// Schema returns the schema the buffer was created for.
func (b *Buffer) Schema() schema.Schema { return b.schema }

// Rows returns the finished rows.
func (b *Buffer) Rows() [][]any { return b.rows }

// Finished reports whether Finish was called.
func (b *Buffer) Finished() bool { return b.finished }
