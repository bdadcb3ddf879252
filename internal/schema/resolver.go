package schema

import (
	"context"
	"fmt"
	"log/slog"

	"trino-ingest/internal/domain"
	"trino-ingest/internal/trino"
)

const explainPrefix = "EXPLAIN (FORMAT JSON) "

// Submitter starts statements. Implemented by *trino.Client.
type Submitter interface {
	Submit(ctx context.Context, query string) (*trino.Statement, error)
}

// Resolver determines the output schema of a query.
type Resolver struct {
	submitter Submitter
	logger    *slog.Logger
}

// NewResolver creates a Resolver. A nil logger uses slog.Default().
func NewResolver(submitter Submitter, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{submitter: submitter, logger: logger}
}

// Resolve returns the schema of query. Non-empty overrides are authoritative
// and no statement is sent; otherwise the schema is read from the query's
// EXPLAIN plan.
func (r *Resolver) Resolve(ctx context.Context, query string, overrides []ColumnOverride) (Schema, error) {
	if len(overrides) > 0 {
		return FromOverrides(overrides)
	}

	plan, err := r.explain(ctx, query)
	if err != nil {
		return Schema{}, err
	}
	columns, err := parsePlan([]byte(plan))
	if err != nil {
		return Schema{}, err
	}
	s := New(columns)
	for i, c := range columns {
		r.logger.Debug("resolved column", "index", i, "name", c.Name, "type", c.Type.String(), "raw_type", c.RawType)
	}
	return s, nil
}

// FromOverrides builds a schema from caller-supplied columns, in order.
func FromOverrides(overrides []ColumnOverride) (Schema, error) {
	columns := make([]OutputColumn, len(overrides))
	for i, o := range overrides {
		wt, err := ResolveType(o.Type)
		if err != nil {
			return Schema{}, fmt.Errorf("column %q: %w", o.Name, err)
		}
		columns[i] = OutputColumn{Name: o.Name, Type: wt, RawType: o.Type}
	}
	return New(columns), nil
}

// explain runs EXPLAIN (FORMAT JSON) and returns the first cell of the first row.
func (r *Resolver) explain(ctx context.Context, query string) (string, error) {
	stmt, err := r.submitter.Submit(ctx, explainPrefix+query)
	if err != nil {
		return "", fmt.Errorf("explain query: %w", err)
	}
	defer stmt.Close() //nolint:errcheck

	var (
		plan  string
		found bool
	)
	for stmt.IsRunning() {
		if page := stmt.CurrentPage(); page != nil && !found && len(page.Rows) > 0 && len(page.Rows[0]) > 0 {
			text, ok := page.Rows[0][0].(string)
			if !ok {
				return "", domain.ErrPlan("plan cell is %T, not a string", page.Rows[0][0])
			}
			plan, found = text, true
		}
		if err := stmt.Advance(ctx); err != nil {
			return "", fmt.Errorf("explain query: %w", err)
		}
	}
	if !found {
		return "", domain.ErrPlan("EXPLAIN returned no rows")
	}
	return plan, nil
}
