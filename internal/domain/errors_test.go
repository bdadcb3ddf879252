package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unknown_type", &UnknownTypeError{TypeName: "hyperloglog"}, `unknown type "hyperloglog"`},
		{"plan", ErrPlan("missing %s", "outputs"), "query plan: missing outputs"},
		{"query_failed", &QueryFailedError{QueryID: "q1", ErrorName: "TABLE_NOT_FOUND", Message: "no table"}, "query q1 failed: TABLE_NOT_FOUND: no table"},
		{"query_failed_unnamed", &QueryFailedError{QueryID: "q1", Message: "boom"}, "query q1 failed: boom"},
		{"protocol", &ProtocolError{StatusCode: 503, Message: "unavailable"}, "protocol error (status 503): unavailable"},
		{"validation", ErrValidation("bad %d", 1), "bad 1"},
		{"parse_no_cause", &ParseError{Column: "c", Type: "BIGINT", Value: "x"}, `column "c" (BIGINT): cannot parse "x"`},
		{"parse_row", &ParseError{Err: errors.New("short row")}, "cannot parse row: short row"},
		{"not_supported", ErrNotSupported("type %s", "ROW"), "type ROW is not supported yet"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.Error())
		})
	}
}

func TestParseError_Unwrap(t *testing.T) {
	cause := errors.New("out of range")
	err := fmt.Errorf("row 3: %w", &ParseError{Column: "n", Type: "INTEGER", Value: "9e99", Err: cause})

	var perr *ParseError
	assert.True(t, errors.As(err, &perr))
	assert.Equal(t, "n", perr.Column)
	assert.ErrorIs(t, err, cause)
}
