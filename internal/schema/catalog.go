// Package schema resolves the typed output schema of a Trino query, either from
// caller-supplied column types or from the query's EXPLAIN plan.
package schema

import (
	"strings"

	"trino-ingest/internal/domain"
)

// WireType is a Trino type as reported by the coordinator.
// See https://trino.io/docs/current/language/types.html.
type WireType int

// Declaration order matters: prefix matching returns the first hit.
const (
	Boolean WireType = iota
	Tinyint
	Smallint
	Integer
	Int
	Bigint
	Real
	Double
	Decimal
	Varchar
	Char
	Varbinary
	Date
	TimestampWithTimeZone
	Timestamp
	TimeWithTimeZone
	Time
	IntervalYearToMonth
	IntervalDayToSecond
	JSON
	Array
	Map
	Row
)

var wireTypeNames = [...]string{
	Boolean:               "BOOLEAN",
	Tinyint:               "TINYINT",
	Smallint:              "SMALLINT",
	Integer:               "INTEGER",
	Int:                   "INT",
	Bigint:                "BIGINT",
	Real:                  "REAL",
	Double:                "DOUBLE",
	Decimal:               "DECIMAL",
	Varchar:               "VARCHAR",
	Char:                  "CHAR",
	Varbinary:             "VARBINARY",
	Date:                  "DATE",
	TimestampWithTimeZone: "TIMESTAMP_WITH_TIME_ZONE",
	Timestamp:             "TIMESTAMP",
	TimeWithTimeZone:      "TIME_WITH_TIME_ZONE",
	Time:                  "TIME",
	IntervalYearToMonth:   "INTERVAL_YEAR_TO_MONTH",
	IntervalDayToSecond:   "INTERVAL_DAY_TO_SECOND",
	JSON:                  "JSON",
	Array:                 "ARRAY",
	Map:                   "MAP",
	Row:                   "ROW",
}

// TargetType is the coarser type system of the output sinks.
type TargetType int

const (
	TargetBoolean TargetType = iota
	TargetInteger
	TargetFloat
	TargetString
	TargetTimestamp
	TargetStructured
)

var targetTypeNames = [...]string{
	TargetBoolean:    "boolean",
	TargetInteger:    "integer",
	TargetFloat:      "float",
	TargetString:     "string",
	TargetTimestamp:  "timestamp",
	TargetStructured: "structured",
}

var wireTargets = [...]TargetType{
	Boolean:               TargetBoolean,
	Tinyint:               TargetInteger,
	Smallint:              TargetInteger,
	Integer:               TargetInteger,
	Int:                   TargetInteger,
	Bigint:                TargetInteger,
	Decimal:               TargetInteger,
	Real:                  TargetFloat,
	Double:                TargetFloat,
	Varchar:               TargetString,
	Char:                  TargetString,
	Varbinary:             TargetString,
	Date:                  TargetTimestamp,
	Time:                  TargetTimestamp,
	TimeWithTimeZone:      TargetTimestamp,
	Timestamp:             TargetTimestamp,
	TimestampWithTimeZone: TargetTimestamp,
	IntervalYearToMonth:   TargetTimestamp,
	IntervalDayToSecond:   TargetTimestamp,
	JSON:                  TargetStructured,
	Array:                 TargetStructured,
	Map:                   TargetStructured,
	Row:                   TargetStructured,
}

// WireTypes returns every wire type in declaration order.
func WireTypes() []WireType {
	out := make([]WireType, len(wireTypeNames))
	for i := range wireTypeNames {
		out[i] = WireType(i)
	}
	return out
}

func (w WireType) String() string {
	if w < 0 || int(w) >= len(wireTypeNames) {
		return "UNKNOWN"
	}
	return wireTypeNames[w]
}

// Target maps the wire type onto the sink type system. Decimal → integer is
// lossy; the destination system has no fixed-point type.
func (w WireType) Target() TargetType {
	return wireTargets[w]
}

// IsTimeOfDay reports whether values of this type carry no calendar date.
func (w WireType) IsTimeOfDay() bool {
	return w == Time || w == TimeWithTimeZone
}

func (t TargetType) String() string {
	if t < 0 || int(t) >= len(targetTypeNames) {
		return "unknown"
	}
	return targetTypeNames[t]
}

// ResolveType maps a Trino type name such as "bigint", "decimal(10,2)" or
// "timestamp(3) with time zone" to its WireType. Names that match nothing
// return *domain.UnknownTypeError; the catalog never guesses.
func ResolveType(typeName string) (WireType, error) {
	name := normalizeTypeName(typeName)
	if w, ok := lookupWireType(name); ok {
		return w, nil
	}
	if w, ok := lookupWireType(stripTypeParameters(name)); ok {
		return w, nil
	}
	for i, canonical := range wireTypeNames {
		if strings.HasPrefix(name, canonical) {
			return WireType(i), nil
		}
	}
	return 0, &domain.UnknownTypeError{TypeName: typeName}
}

func lookupWireType(name string) (WireType, bool) {
	for i, canonical := range wireTypeNames {
		if name == canonical {
			return WireType(i), true
		}
	}
	return 0, false
}

// normalizeTypeName upper-cases and joins words with underscores, so
// "interval day to second" reads as INTERVAL_DAY_TO_SECOND.
func normalizeTypeName(name string) string {
	return strings.Join(strings.Fields(strings.ToUpper(name)), "_")
}

func stripTypeParameters(name string) string {
	var b strings.Builder
	depth := 0
	for _, r := range name {
		switch {
		case r == '(':
			depth++
		case r == ')':
			if depth > 0 {
				depth--
			}
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}
