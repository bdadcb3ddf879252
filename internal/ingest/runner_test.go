package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trino-ingest/internal/coerce"
	"trino-ingest/internal/config"
	"trino-ingest/internal/domain"
	"trino-ingest/internal/schema"
	"trino-ingest/internal/testutil"
	"trino-ingest/internal/trino"
	"trino-ingest/internal/trino/trinotest"
)

var fixedNow = time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)

// sinkSet hands out one MockSink per opened task.
type sinkSet struct {
	mu      sync.Mutex
	sinks   map[string]*testutil.MockSink
	schemas map[string]schema.Schema
	err     error
}

func newSinkSet() *sinkSet {
	return &sinkSet{sinks: map[string]*testutil.MockSink{}, schemas: map[string]schema.Schema{}}
}

func (s *sinkSet) factory(_ context.Context, task Task, sch schema.Schema) (domain.Sink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	m := &testutil.MockSink{}
	s.sinks[task.Name] = m
	s.schemas[task.Name] = sch
	return m, nil
}

func (s *sinkSet) get(name string) *testutil.MockSink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sinks[name]
}

func newRunner(t *testing.T, srv *trinotest.Server, sinks SinkFactory, rec domain.RunRecorder) *Runner {
	t.Helper()
	session, err := trino.NewSession(srv.ServerConfig())
	require.NoError(t, err)
	return NewRunner(trino.NewClient(session, srv.Client()), sinks, Options{
		Recorder: rec,
		Now:      func() time.Time { return fixedNow },
	})
}

var idName = []schema.ColumnOverride{{Name: "id", Type: "bigint"}, {Name: "name", Type: "varchar"}}

func idNameScript(pages ...[][]any) trinotest.Script {
	return trinotest.Script{
		Columns: []trino.Column{trinotest.Bigint("id"), trinotest.Varchar("name")},
		Pages:   pages,
	}
}

func TestRun_StreamsAllPages(t *testing.T) {
	srv := trinotest.New(t)
	srv.Handle("SELECT id, name FROM users", idNameScript(
		[][]any{{1, "ann"}, {2, nil}},
		[][]any{{3, "cy"}},
	))
	sinks := newSinkSet()
	rec := &testutil.MockRunRecorder{}
	r := newRunner(t, srv, sinks.factory, rec)

	report, err := r.Run(context.Background(), Task{Name: "users", Query: "SELECT id, name FROM users", Overrides: idName})
	require.NoError(t, err)

	assert.Equal(t, domain.RunStateSucceeded, report.State)
	assert.Equal(t, int64(3), report.Rows)
	assert.Equal(t, int64(2), report.Pages)
	assert.NotEmpty(t, report.QueryID)
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, fixedNow, report.StartedAt)

	m := sinks.get("users")
	assert.Equal(t, [][]any{
		{int64(1), "ann"},
		{int64(2), testutil.Null{}},
		{int64(3), "cy"},
	}, m.Rows)
	assert.Equal(t, 1, m.Finished)
	assert.Equal(t, 1, m.Closed)
	assert.Empty(t, srv.Cancelled(), "finished queries are not cancelled")
	assert.Equal(t, []string{"SELECT id, name FROM users"}, srv.Queries(), "overrides skip EXPLAIN")

	require.NotNil(t, rec.LastReport())
	assert.Equal(t, report, *rec.LastReport())
}

func TestRun_ResolvesSchemaFromPlan(t *testing.T) {
	const query = "SELECT orderkey, comment FROM orders"
	plan := `{"0": {"outputs": [{"symbol": "orderkey", "type": "bigint"}, {"symbol": "comment", "type": "varchar(79)"}],
		"details": ["id := orderkey", "note := comment"]}}`
	srv := trinotest.New(t)
	srv.Handle("EXPLAIN (FORMAT JSON) "+query, trinotest.Script{
		Columns: []trino.Column{trinotest.Varchar("Query Plan")},
		Pages:   [][][]any{{{plan}}},
	})
	srv.Handle(query, idNameScript([][]any{{"7", "rush"}}))
	sinks := newSinkSet()
	r := newRunner(t, srv, sinks.factory, nil)

	_, err := r.Run(context.Background(), Task{Name: "orders", Query: query})
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "note"}, sinks.schemas["orders"].Names())
	assert.Equal(t, [][]any{{int64(7), "rush"}}, sinks.get("orders").Rows)
	assert.Equal(t, []string{"EXPLAIN (FORMAT JSON) " + query, query}, srv.Queries())
}

func TestRun_MaxRowsStopsAndCancels(t *testing.T) {
	srv := trinotest.New(t)
	srv.Handle("SELECT * FROM big", idNameScript(
		[][]any{{1, "a"}, {2, "b"}},
		[][]any{{3, "c"}, {4, "d"}},
		[][]any{{5, "e"}},
	))
	sinks := newSinkSet()
	r := newRunner(t, srv, sinks.factory, nil)

	report, err := r.Run(context.Background(), Task{Name: "big", Query: "SELECT * FROM big", Overrides: idName, MaxRows: 3})
	require.NoError(t, err)
	assert.Equal(t, domain.RunStateStopped, report.State)
	assert.Equal(t, int64(3), report.Rows)
	assert.Equal(t, int64(2), report.Pages)

	m := sinks.get("big")
	assert.Len(t, m.Rows, 3)
	assert.Equal(t, 1, m.Finished)
	assert.Equal(t, 1, m.Closed)
	assert.Equal(t, []string{report.QueryID}, srv.Cancelled())
}

func TestRun_QueryFailure(t *testing.T) {
	srv := trinotest.New(t)
	script := idNameScript([][]any{{1, "a"}})
	script.Error = &trino.QueryError{Message: "Division by zero", ErrorName: "DIVISION_BY_ZERO", ErrorCode: 8}
	srv.Handle("SELECT 1/0", script)
	sinks := newSinkSet()
	rec := &testutil.MockRunRecorder{}
	r := newRunner(t, srv, sinks.factory, rec)

	report, err := r.Run(context.Background(), Task{Name: "div", Query: "SELECT 1/0", Overrides: idName})
	var qerr *domain.QueryFailedError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, "DIVISION_BY_ZERO", qerr.ErrorName)

	assert.Equal(t, domain.RunStateFailed, report.State)
	assert.Contains(t, report.Error, "Division by zero")
	m := sinks.get("div")
	assert.Equal(t, 0, m.Finished, "a failed run is never finished")
	assert.Equal(t, 1, m.Closed)
	require.NotNil(t, rec.LastReport())
	assert.Equal(t, domain.RunStateFailed, rec.LastReport().State)
}

func TestRun_ParseErrorCancelsQuery(t *testing.T) {
	srv := trinotest.New(t)
	srv.Handle("SELECT bad", idNameScript([][]any{{"1", "a"}, {"x1", "b"}}, [][]any{{"3", "c"}}))
	sinks := newSinkSet()
	r := newRunner(t, srv, sinks.factory, nil)

	report, err := r.Run(context.Background(), Task{Name: "bad", Query: "SELECT bad", Overrides: idName})
	var perr *domain.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "id", perr.Column)
	assert.Contains(t, err.Error(), "row 2")
	assert.Equal(t, int64(1), report.Rows)
	assert.Len(t, srv.Cancelled(), 1)
	assert.Equal(t, 1, sinks.get("bad").Closed)
}

func TestRun_LenientParseMode(t *testing.T) {
	srv := trinotest.New(t)
	srv.Handle("SELECT bad", idNameScript([][]any{{"x1", "b"}}))
	sinks := newSinkSet()
	r := newRunner(t, srv, sinks.factory, nil)

	_, err := r.Run(context.Background(), Task{Name: "bad", Query: "SELECT bad", Overrides: idName, ParseMode: coerce.Lenient})
	require.NoError(t, err)
	assert.Equal(t, [][]any{{testutil.Null{}, "b"}}, sinks.get("bad").Rows)
}

func TestRun_SinkErrors(t *testing.T) {
	t.Run("open", func(t *testing.T) {
		srv := trinotest.New(t)
		sinks := newSinkSet()
		sinks.err = errors.New("disk full")
		r := newRunner(t, srv, sinks.factory, nil)

		_, err := r.Run(context.Background(), Task{Name: "t", Query: "SELECT 1", Overrides: idName})
		require.ErrorContains(t, err, "disk full")
		assert.Empty(t, srv.Queries(), "query is not submitted without a sink")
	})

	t.Run("finish", func(t *testing.T) {
		srv := trinotest.New(t)
		srv.Handle("SELECT 1", idNameScript([][]any{{1, "a"}}))
		r := newRunner(t, srv, func(context.Context, Task, schema.Schema) (domain.Sink, error) {
			return &testutil.MockSink{FinishFn: func() error { return errors.New("rename failed") }}, nil
		}, nil)

		report, err := r.Run(context.Background(), Task{Name: "t", Query: "SELECT 1", Overrides: idName})
		require.ErrorContains(t, err, "rename failed")
		assert.Equal(t, domain.RunStateFailed, report.State)
	})
}

func TestRun_RecorderFailureDoesNotFailRun(t *testing.T) {
	srv := trinotest.New(t)
	srv.Handle("SELECT 1", idNameScript([][]any{{1, "a"}}))
	rec := &testutil.MockRunRecorder{RecordFn: func(context.Context, domain.RunReport) error {
		return errors.New("database is locked")
	}}
	r := newRunner(t, srv, newSinkSet().factory, rec)

	report, err := r.Run(context.Background(), Task{Name: "t", Query: "SELECT 1", Overrides: idName})
	require.NoError(t, err)
	assert.Equal(t, domain.RunStateSucceeded, report.State)
	assert.Len(t, rec.Reports, 1)
}

func TestRun_UnknownOverrideType(t *testing.T) {
	srv := trinotest.New(t)
	r := newRunner(t, srv, newSinkSet().factory, nil)
	_, err := r.Run(context.Background(), Task{Name: "t", Query: "SELECT 1",
		Overrides: []schema.ColumnOverride{{Name: "g", Type: "geometry"}}})
	var uerr *domain.UnknownTypeError
	require.ErrorAs(t, err, &uerr)
}

func TestTaskFromConfig(t *testing.T) {
	task, err := TaskFromConfig(config.TaskConfig{
		Name:  "orders",
		Query: "SELECT * FROM orders",
		ColumnOptions: config.ColumnOptions{
			{Name: "b", Type: "bigint"},
			{Name: "a", Type: "varchar"},
		},
		ParseMode: "strict",
		MaxRows:   5,
		Schedule:  "@hourly",
		Output:    config.OutputConfig{Type: config.OutputParquet, Path: "out.parquet"},
	})
	require.NoError(t, err)
	assert.Equal(t, []schema.ColumnOverride{{Name: "b", Type: "bigint"}, {Name: "a", Type: "varchar"}}, task.Overrides)
	assert.Equal(t, coerce.Strict, task.ParseMode)
	assert.Equal(t, int64(5), task.MaxRows)
	assert.Equal(t, "@hourly", task.Schedule)
	assert.Equal(t, "out.parquet", task.Output.Path)

	_, err = TaskFromConfig(config.TaskConfig{Name: "x", ParseMode: "yolo"})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)

	tasks, err := TasksFromConfig(&config.Config{Tasks: []config.TaskConfig{{Name: "a"}, {Name: "b"}}})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, coerce.Mixed, tasks[1].ParseMode)
}
