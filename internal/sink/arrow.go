// Package sink implements columnar destinations for coerced rows.
package sink

import (
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"trino-ingest/internal/domain"
	"trino-ingest/internal/schema"
)

// DefaultBatchSize is the number of rows per Arrow record batch.
const DefaultBatchSize = 8192

// MetadataTrinoType is the field metadata key holding the engine type name.
const MetadataTrinoType = "trino.type"

var timestampType = &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}

// ArrowSchema maps a resolved schema onto an Arrow schema. Every field is
// nullable; structured columns are carried as strings.
func ArrowSchema(s schema.Schema) *arrow.Schema {
	fields := make([]arrow.Field, s.Len())
	for i, c := range s.Columns() {
		fields[i] = arrow.Field{
			Name:     c.Name,
			Type:     arrowType(c.Target()),
			Nullable: true,
			Metadata: arrow.NewMetadata([]string{MetadataTrinoType}, []string{c.RawType}),
		}
	}
	return arrow.NewSchema(fields, nil)
}

func arrowType(t schema.TargetType) arrow.DataType {
	switch t {
	case schema.TargetBoolean:
		return arrow.FixedWidthTypes.Boolean
	case schema.TargetInteger:
		return arrow.PrimitiveTypes.Int64
	case schema.TargetFloat:
		return arrow.PrimitiveTypes.Float64
	case schema.TargetTimestamp:
		return timestampType
	default:
		return arrow.BinaryTypes.String
	}
}

// RecordHandler receives each completed record batch. The batch is released
// after the handler returns; call Retain to keep it.
type RecordHandler func(rec arrow.Record) error

// ArrowSink accumulates rows in Arrow builders and hands out record batches
// of at most batchSize rows.
type ArrowSink struct {
	schema    *arrow.Schema
	builder   *array.RecordBuilder
	handler   RecordHandler
	batchSize int
	set       []bool
	pending   int
	rows      int64
	closed    bool
}

var _ domain.Sink = (*ArrowSink)(nil)

// NewArrowSink creates an ArrowSink. A nil allocator uses memory.DefaultAllocator;
// a non-positive batchSize uses DefaultBatchSize.
func NewArrowSink(s schema.Schema, mem memory.Allocator, batchSize int, handler RecordHandler) *ArrowSink {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	as := ArrowSchema(s)
	return &ArrowSink{
		schema:    as,
		builder:   array.NewRecordBuilder(mem, as),
		handler:   handler,
		batchSize: batchSize,
		set:       make([]bool, s.Len()),
	}
}

// Schema returns the Arrow schema of the produced batches.
func (a *ArrowSink) Schema() *arrow.Schema { return a.schema }

// Rows returns the number of finished rows.
func (a *ArrowSink) Rows() int64 { return a.rows }

func (a *ArrowSink) SetBoolean(col int, v bool) {
	a.builder.Field(col).(*array.BooleanBuilder).Append(v)
	a.set[col] = true
}

func (a *ArrowSink) SetInteger(col int, v int64) {
	a.builder.Field(col).(*array.Int64Builder).Append(v)
	a.set[col] = true
}

func (a *ArrowSink) SetFloat(col int, v float64) {
	a.builder.Field(col).(*array.Float64Builder).Append(v)
	a.set[col] = true
}

func (a *ArrowSink) SetString(col int, v string) {
	a.builder.Field(col).(*array.StringBuilder).Append(v)
	a.set[col] = true
}

func (a *ArrowSink) SetTimestamp(col int, v time.Time) {
	a.builder.Field(col).(*array.TimestampBuilder).Append(arrow.Timestamp(v.UnixMicro()))
	a.set[col] = true
}

func (a *ArrowSink) SetNull(col int) {
	a.builder.Field(col).AppendNull()
	a.set[col] = true
}

// FinishRow fills unset columns with nulls and flushes a batch when full.
func (a *ArrowSink) FinishRow() error {
	for i, ok := range a.set {
		if !ok {
			a.builder.Field(i).AppendNull()
		}
		a.set[i] = false
	}
	a.pending++
	a.rows++
	if a.pending >= a.batchSize {
		return a.flush()
	}
	return nil
}

// Finish flushes the last partial batch.
func (a *ArrowSink) Finish() error {
	if a.pending > 0 {
		return a.flush()
	}
	return nil
}

// Close releases the builders. Rows not yet flushed are discarded.
func (a *ArrowSink) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	a.builder.Release()
	return nil
}

func (a *ArrowSink) flush() error {
	rec := a.builder.NewRecord()
	defer rec.Release()
	a.pending = 0
	if a.handler == nil {
		return nil
	}
	if err := a.handler(rec); err != nil {
		return fmt.Errorf("write record batch: %w", err)
	}
	return nil
}
