package trino

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"trino-ingest/internal/domain"
)

// State is the client-side state of a statement.
type State string

const (
	StateQueued        State = "QUEUED"
	StateRunning       State = "RUNNING"
	StateFinished      State = "FINISHED"
	StateFailed        State = "FAILED"
	StateClientAborted State = "CLIENT_ABORTED"
)

const cancelTimeout = 10 * time.Second

// Statement is one submitted query. It is driven by the caller:
//
//	for stmt.IsRunning() {
//		if page := stmt.CurrentPage(); page != nil { ... }
//		if err := stmt.Advance(ctx); err != nil { ... }
//	}
//
// A Statement is not safe for concurrent use.
type Statement struct {
	client     *Client
	traceToken string
	limiter    *rate.Limiter

	current *QueryResults
	columns []Column
	state   State
	closed  bool
	// unreleased is set when polling failed on the client side; the query may
	// still be alive on the coordinator behind current.NextURI.
	unreleased bool
}

// ID returns the engine-assigned query id.
func (s *Statement) ID() string { return s.current.ID }

// TraceToken returns the token sent in X-Trino-Trace-Token.
func (s *Statement) TraceToken() string { return s.traceToken }

// State returns the current client-side state.
func (s *Statement) State() State { return s.state }

// IsRunning reports whether more pages may follow.
func (s *Statement) IsRunning() bool {
	return s.state == StateQueued || s.state == StateRunning
}

// Columns returns the result columns once the engine has reported them.
func (s *Statement) Columns() []Column { return s.columns }

// Stats returns the statistics of the latest response.
func (s *Statement) Stats() StatementStats { return s.current.Stats }

// CurrentPage returns the rows of the latest response, or nil if it carried
// none. The page is only valid until the next Advance.
func (s *Statement) CurrentPage() *Page {
	if len(s.current.Data) == 0 {
		return nil
	}
	return &Page{Columns: s.columns, Rows: s.current.Data}
}

// Advance fetches the next response. Without a nextUri the statement becomes
// FINISHED, or FAILED when the last response carried an engine error.
func (s *Statement) Advance(ctx context.Context) error {
	if !s.IsRunning() {
		return nil
	}
	if s.current.NextURI == "" {
		if s.current.Error != nil {
			s.state = StateFailed
			return s.failure()
		}
		s.state = StateFinished
		return nil
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("wait for next poll: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.current.NextURI, nil)
	if err != nil {
		return fmt.Errorf("build poll request: %w", err)
	}
	results, err := s.client.do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("poll query %s: %w", s.current.ID, ctx.Err())
		}
		s.state = StateFailed
		s.unreleased = true
		return fmt.Errorf("poll query %s: %w", s.current.ID, err)
	}
	s.accept(results)
	if results.Error != nil {
		s.state = StateFailed
		return s.failure()
	}
	return nil
}

// Close releases the statement. If the query may still be running on the
// coordinator, including after a failed poll, it is cancelled with
// DELETE nextUri. Close is idempotent.
func (s *Statement) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	switch {
	case s.IsRunning():
		s.state = StateClientAborted
	case !s.unreleased:
		return nil
	}
	s.unreleased = false
	if s.current.NextURI == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
	defer cancel()
	if err := s.client.deleteStatement(ctx, s.current.NextURI); err != nil {
		s.client.logger.Warn("trino statement cancel failed", "query_id", s.current.ID, "error", err)
		return fmt.Errorf("cancel query %s: %w", s.current.ID, err)
	}
	s.client.logger.Debug("trino statement cancelled", "query_id", s.current.ID)
	return nil
}

func (s *Statement) accept(results *QueryResults) {
	s.current = results
	if len(results.Columns) > 0 {
		s.columns = results.Columns
	}
	if s.state == StateQueued && results.Stats.State != "" &&
		results.Stats.State != serverStateQueued && results.Stats.State != serverStateWaiting {
		s.state = StateRunning
	}
}

func (s *Statement) failure() error {
	e := s.current.Error
	return &domain.QueryFailedError{
		QueryID:   s.current.ID,
		ErrorName: e.ErrorName,
		ErrorCode: e.ErrorCode,
		Message:   e.Message,
	}
}
