// Package coerce converts Trino wire values into typed sink values.
package coerce

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trino-ingest/internal/domain"
	"trino-ingest/internal/schema"
)

// ParseMode controls what happens to cells that do not parse.
type ParseMode int

const (
	// Mixed fails on malformed numbers and writes null for malformed timestamps.
	Mixed ParseMode = iota
	// Strict fails on any malformed value.
	Strict
	// Lenient writes null for any malformed value.
	Lenient
)

// ParseModeOf maps a configuration value onto a ParseMode. Empty means Mixed.
func ParseModeOf(s string) (ParseMode, error) {
	switch strings.ToLower(s) {
	case "", "mixed":
		return Mixed, nil
	case "strict":
		return Strict, nil
	case "lenient":
		return Lenient, nil
	default:
		return Mixed, domain.ErrValidation("unknown parse mode %q", s)
	}
}

func (m ParseMode) String() string {
	switch m {
	case Strict:
		return "strict"
	case Lenient:
		return "lenient"
	default:
		return "mixed"
	}
}

// Options configures a Coercer.
type Options struct {
	Mode ParseMode
	// Now supplies the date used for TIME values. Defaults to time.Now.
	Now func() time.Time
}

type coerceFunc func(c *Coercer, idx int, col schema.OutputColumn, text string, sink domain.Sink) error

// Coercer writes rows into a sink according to a schema. It holds no
// per-row state and may be shared between goroutines.
type Coercer struct {
	mode     ParseMode
	now      func() time.Time
	dispatch map[schema.TargetType]coerceFunc
}

// New creates a Coercer.
func New(opts ...Options) *Coercer {
	options := Options{}
	if len(opts) > 0 {
		options = opts[0]
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	return &Coercer{
		mode: options.Mode,
		now:  options.Now,
		dispatch: map[schema.TargetType]coerceFunc{
			schema.TargetBoolean:    coerceBoolean,
			schema.TargetInteger:    coerceInteger,
			schema.TargetFloat:      coerceFloat,
			schema.TargetString:     coerceString,
			schema.TargetTimestamp:  coerceTimestamp,
			schema.TargetStructured: coerceStructured,
		},
	}
}

// Mode returns the parse mode.
func (c *Coercer) Mode() ParseMode { return c.mode }

// Coerce writes one row into sink and finishes it. The row must have exactly
// one value per schema column.
func (c *Coercer) Coerce(s schema.Schema, row []any, sink domain.Sink) error {
	if len(row) != s.Len() {
		return &domain.ParseError{Err: fmt.Errorf("row has %d values, schema has %d columns", len(row), s.Len())}
	}
	for i, raw := range row {
		col := s.Column(i)
		target := col.Target()
		fn, ok := c.dispatch[target]
		if !ok {
			return domain.ErrNotSupported("target type %s", target)
		}
		if target == schema.TargetStructured {
			return fn(c, i, col, "", sink)
		}
		if raw == nil {
			sink.SetNull(i)
			continue
		}
		text, ok := toText(raw)
		if !ok {
			return &domain.ParseError{Column: col.Name, Type: col.RawType, Value: fmt.Sprintf("%v", raw), Err: fmt.Errorf("unexpected %T", raw)}
		}
		if err := fn(c, i, col, text, sink); err != nil {
			return err
		}
	}
	return sink.FinishRow()
}

func coerceBoolean(_ *Coercer, idx int, _ schema.OutputColumn, text string, sink domain.Sink) error {
	// Anything but "true" is false, malformed input included.
	sink.SetBoolean(idx, strings.EqualFold(text, "true"))
	return nil
}

func coerceInteger(c *Coercer, idx int, col schema.OutputColumn, text string, sink domain.Sink) error {
	var (
		v   int64
		err error
	)
	if col.Type == schema.Decimal {
		v, err = truncateDecimal(text)
	} else {
		v, err = strconv.ParseInt(text, 10, 64)
	}
	if err != nil {
		return c.numericFailure(idx, col, text, err, sink)
	}
	sink.SetInteger(idx, v)
	return nil
}

// truncateDecimal drops the fractional digits of a decimal, rounding toward zero.
func truncateDecimal(text string) (int64, error) {
	d, err := decimal.NewFromString(text)
	if err != nil {
		return 0, err
	}
	i := d.BigInt()
	if !i.IsInt64() {
		return 0, fmt.Errorf("%s overflows int64", i)
	}
	return i.Int64(), nil
}

func coerceFloat(c *Coercer, idx int, col schema.OutputColumn, text string, sink domain.Sink) error {
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return c.numericFailure(idx, col, text, err, sink)
	}
	sink.SetFloat(idx, v)
	return nil
}

func coerceString(_ *Coercer, idx int, _ schema.OutputColumn, text string, sink domain.Sink) error {
	sink.SetString(idx, text)
	return nil
}

func coerceTimestamp(c *Coercer, idx int, col schema.OutputColumn, text string, sink domain.Sink) error {
	ts, err := parseTimestamp(col.Type, text, c.now)
	if err != nil {
		if c.mode == Strict {
			return &domain.ParseError{Column: col.Name, Type: col.RawType, Value: text, Err: err}
		}
		sink.SetNull(idx)
		return nil
	}
	sink.SetTimestamp(idx, ts)
	return nil
}

func coerceStructured(_ *Coercer, _ int, col schema.OutputColumn, _ string, _ domain.Sink) error {
	return domain.ErrNotSupported("column %q of type %s", col.Name, col.Type)
}

func (c *Coercer) numericFailure(idx int, col schema.OutputColumn, text string, err error, sink domain.Sink) error {
	if c.mode == Lenient {
		sink.SetNull(idx)
		return nil
	}
	return &domain.ParseError{Column: col.Name, Type: col.RawType, Value: text, Err: err}
}
