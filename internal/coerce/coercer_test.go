package coerce

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trino-ingest/internal/domain"
	"trino-ingest/internal/schema"
	"trino-ingest/internal/testutil"
)

func schemaOf(t *testing.T, cols ...schema.ColumnOverride) schema.Schema {
	t.Helper()
	s, err := schema.FromOverrides(cols)
	require.NoError(t, err)
	return s
}

func col(name, typ string) schema.ColumnOverride {
	return schema.ColumnOverride{Name: name, Type: typ}
}

func coerceOne(t *testing.T, c *Coercer, typ string, raw any) (any, error) {
	t.Helper()
	sink := &testutil.MockSink{}
	err := c.Coerce(schemaOf(t, col("v", typ)), []any{raw}, sink)
	if err != nil {
		return nil, err
	}
	require.Len(t, sink.Rows, 1)
	return sink.Rows[0][0], nil
}

func TestCoerce_MixedRow(t *testing.T) {
	s := schemaOf(t,
		col("id", "bigint"),
		col("name", "varchar"),
		col("active", "boolean"),
		col("score", "double"),
		col("born", "date"),
	)
	sink := &testutil.MockSink{}
	c := New()

	require.NoError(t, c.Coerce(s, []any{json.Number("42"), "ada", true, json.Number("9.5"), "1815-12-10"}, sink))
	require.NoError(t, c.Coerce(s, []any{nil, nil, nil, nil, nil}, sink))

	require.Len(t, sink.Rows, 2)
	assert.Equal(t, []any{
		int64(42), "ada", true, 9.5, time.Date(1815, 12, 10, 0, 0, 0, 0, time.UTC),
	}, sink.Rows[0])
	null := testutil.Null{}
	assert.Equal(t, []any{null, null, null, null, null}, sink.Rows[1])
}

func TestCoerce_Boolean(t *testing.T) {
	c := New()
	tests := []struct {
		raw  any
		want bool
	}{
		{"true", true},
		{"TRUE", true},
		{"True", true},
		{true, true},
		{"false", false},
		{false, false},
		{"yes", false},
		{"1", false},
		{"", false},
	}
	for _, tc := range tests {
		got, err := coerceOne(t, c, "boolean", tc.raw)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%v", tc.raw)
	}
}

func TestCoerce_Integer(t *testing.T) {
	c := New()
	got, err := coerceOne(t, c, "bigint", json.Number("9223372036854775807"))
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), got)

	got, err = coerceOne(t, c, "integer", "-17")
	require.NoError(t, err)
	assert.Equal(t, int64(-17), got)

	_, err = coerceOne(t, c, "bigint", "12abc")
	var perr *domain.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "v", perr.Column)
	assert.Equal(t, "bigint", perr.Type)
	assert.Equal(t, "12abc", perr.Value)

	_, err = coerceOne(t, c, "bigint", "9223372036854775808")
	require.ErrorAs(t, err, &perr, "overflow is a parse error")
}

func TestCoerce_DecimalTruncates(t *testing.T) {
	c := New()
	tests := []struct {
		raw  any
		want int64
	}{
		{"12.99", 12},
		{"-12.99", -12},
		{"0.5", 0},
		{"1000", 1000},
		{json.Number("7.25"), 7},
	}
	for _, tc := range tests {
		got, err := coerceOne(t, c, "decimal(10,2)", tc.raw)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%v", tc.raw)
	}

	_, err := coerceOne(t, c, "decimal(38,0)", "99999999999999999999999999")
	var perr *domain.ParseError
	require.ErrorAs(t, err, &perr)
}

func TestCoerce_Float(t *testing.T) {
	c := New()
	got, err := coerceOne(t, c, "real", json.Number("1.5"))
	require.NoError(t, err)
	assert.Equal(t, 1.5, got)

	got, err = coerceOne(t, c, "double", "NaN")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got.(float64)))

	got, err = coerceOne(t, c, "double", "-Infinity")
	require.NoError(t, err)
	assert.True(t, math.IsInf(got.(float64), -1))

	_, err = coerceOne(t, c, "double", "one point five")
	var perr *domain.ParseError
	require.ErrorAs(t, err, &perr)
}

func TestCoerce_String(t *testing.T) {
	c := New()
	for _, typ := range []string{"varchar", "char(3)", "varbinary"} {
		got, err := coerceOne(t, c, typ, "  keep me  ")
		require.NoError(t, err)
		assert.Equal(t, "  keep me  ", got, typ)
	}
	got, err := coerceOne(t, c, "varchar", json.Number("12"))
	require.NoError(t, err)
	assert.Equal(t, "12", got)
}

func TestCoerce_StructuredNotSupported(t *testing.T) {
	c := New()
	for _, typ := range []string{"json", "array(bigint)", "map(varchar, bigint)", "row(a bigint)"} {
		t.Run(typ, func(t *testing.T) {
			sink := &testutil.MockSink{}
			err := c.Coerce(schemaOf(t, col("v", typ)), []any{[]any{json.Number("1")}}, sink)
			var nerr *domain.NotSupportedError
			require.ErrorAs(t, err, &nerr)
			assert.Contains(t, err.Error(), "not supported")
			assert.Empty(t, sink.Rows)

			err = c.Coerce(schemaOf(t, col("v", typ)), []any{nil}, sink)
			require.ErrorAs(t, err, &nerr, "null structured cells are not supported either")
		})
	}
}

func TestCoerce_WidthMismatch(t *testing.T) {
	c := New()
	sink := &testutil.MockSink{}
	err := c.Coerce(schemaOf(t, col("a", "bigint"), col("b", "bigint")), []any{json.Number("1")}, sink)
	var perr *domain.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, err.Error(), "row has 1 values, schema has 2 columns")
	assert.Empty(t, sink.Rows)
}

func TestCoerce_UnexpectedRawValue(t *testing.T) {
	_, err := coerceOne(t, New(), "varchar", map[string]any{"a": 1})
	var perr *domain.ParseError
	require.ErrorAs(t, err, &perr)
}

func TestCoerce_ParseModes(t *testing.T) {
	null := testutil.Null{}
	tests := []struct {
		mode     ParseMode
		typ      string
		raw      string
		wantNull bool
	}{
		{Mixed, "bigint", "x", false},
		{Mixed, "double", "x", false},
		{Mixed, "timestamp", "x", true},
		{Strict, "bigint", "x", false},
		{Strict, "timestamp", "x", false},
		{Lenient, "bigint", "x", true},
		{Lenient, "double", "x", true},
		{Lenient, "timestamp", "x", true},
	}
	for _, tc := range tests {
		t.Run(tc.mode.String()+"_"+tc.typ, func(t *testing.T) {
			got, err := coerceOne(t, New(Options{Mode: tc.mode}), tc.typ, tc.raw)
			if tc.wantNull {
				require.NoError(t, err)
				assert.Equal(t, null, got)
				return
			}
			var perr *domain.ParseError
			require.ErrorAs(t, err, &perr)
		})
	}
}

func TestParseModeOf(t *testing.T) {
	for in, want := range map[string]ParseMode{"": Mixed, "mixed": Mixed, "STRICT": Strict, "lenient": Lenient} {
		got, err := ParseModeOf(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseModeOf("loose")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
}
