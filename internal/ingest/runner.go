// Package ingest runs tasks end to end: resolve the schema, stream the query
// result page by page, coerce each row into a sink, and report the outcome.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"trino-ingest/internal/coerce"
	"trino-ingest/internal/config"
	"trino-ingest/internal/domain"
	"trino-ingest/internal/schema"
	"trino-ingest/internal/sink"
)

// Task is one query and its destination.
type Task struct {
	Name      string
	Query     string
	Overrides []schema.ColumnOverride
	ParseMode coerce.ParseMode
	MaxRows   int64 // zero: no limit
	Output    config.OutputConfig
	Schedule  string
}

// TaskFromConfig converts a validated task configuration.
func TaskFromConfig(tc config.TaskConfig) (Task, error) {
	mode, err := coerce.ParseModeOf(tc.ParseMode)
	if err != nil {
		return Task{}, fmt.Errorf("task %q: %w", tc.Name, err)
	}
	overrides := make([]schema.ColumnOverride, 0, len(tc.ColumnOptions))
	for _, opt := range tc.ColumnOptions {
		overrides = append(overrides, schema.ColumnOverride{Name: opt.Name, Type: opt.Type})
	}
	return Task{
		Name:      tc.Name,
		Query:     tc.Query,
		Overrides: overrides,
		ParseMode: mode,
		MaxRows:   tc.MaxRows,
		Output:    tc.Output,
		Schedule:  tc.Schedule,
	}, nil
}

// TasksFromConfig converts every task of cfg.
func TasksFromConfig(cfg *config.Config) ([]Task, error) {
	tasks := make([]Task, 0, len(cfg.Tasks))
	for _, tc := range cfg.Tasks {
		t, err := TaskFromConfig(tc)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// SinkFactory opens the sink for a task once its schema is known.
type SinkFactory func(ctx context.Context, task Task, s schema.Schema) (domain.Sink, error)

// OutputSinks returns a SinkFactory that opens the sink configured in Task.Output.
func OutputSinks(opts sink.Options) SinkFactory {
	return func(ctx context.Context, task Task, s schema.Schema) (domain.Sink, error) {
		return sink.Open(ctx, task.Output, s, opts)
	}
}

// Options configures a Runner.
type Options struct {
	Logger *slog.Logger
	// Recorder, when set, receives the report of every run.
	Recorder domain.RunRecorder
	// Now defaults to time.Now.
	Now func() time.Time
}

// Runner executes tasks. It is safe for concurrent use; every run owns its
// statement and sink.
type Runner struct {
	submitter schema.Submitter
	resolver  *schema.Resolver
	sinks     SinkFactory
	recorder  domain.RunRecorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewRunner creates a Runner. The same submitter serves schema resolution and data.
func NewRunner(submitter schema.Submitter, sinks SinkFactory, opts ...Options) *Runner {
	options := Options{}
	if len(opts) > 0 {
		options = opts[0]
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	return &Runner{
		submitter: submitter,
		resolver:  schema.NewResolver(submitter, options.Logger),
		sinks:     sinks,
		recorder:  options.Recorder,
		logger:    options.Logger,
		now:       options.Now,
	}
}

// Schema resolves the output schema of a task without running it.
func (r *Runner) Schema(ctx context.Context, task Task) (schema.Schema, error) {
	return r.resolver.Resolve(ctx, task.Query, task.Overrides)
}

// Run executes task once. The returned report is filled in on every path; its
// State is SUCCEEDED, STOPPED (MaxRows reached) or FAILED.
func (r *Runner) Run(ctx context.Context, task Task) (domain.RunReport, error) {
	report := domain.RunReport{
		ID:        uuid.New().String(),
		Task:      task.Name,
		StartedAt: r.now(),
	}
	r.logger.Info("task started", "task", task.Name, "run_id", report.ID)

	err := r.run(ctx, task, &report)
	report.FinishedAt = r.now()
	switch {
	case err != nil:
		report.State = domain.RunStateFailed
		report.Error = err.Error()
		r.logger.Error("task failed",
			"task", task.Name, "query_id", report.QueryID, "rows", report.Rows, "error", err)
	case report.State == "":
		report.State = domain.RunStateSucceeded
	}
	if err == nil {
		r.logger.Info("task finished",
			"task", task.Name,
			"query_id", report.QueryID,
			"state", report.State,
			"rows", report.Rows,
			"pages", report.Pages,
			"duration", report.Duration(),
		)
	}

	if r.recorder != nil {
		if rerr := r.recorder.Record(context.WithoutCancel(ctx), report); rerr != nil {
			r.logger.Warn("record run failed", "task", task.Name, "run_id", report.ID, "error", rerr)
		}
	}
	return report, err
}

func (r *Runner) run(ctx context.Context, task Task, report *domain.RunReport) error {
	s, err := r.resolver.Resolve(ctx, task.Query, task.Overrides)
	if err != nil {
		return fmt.Errorf("resolve schema: %w", err)
	}

	out, err := r.sinks(ctx, task, s)
	if err != nil {
		return fmt.Errorf("open sink: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil {
			r.logger.Warn("close sink failed", "task", task.Name, "error", cerr)
		}
	}()

	coercer := coerce.New(coerce.Options{Mode: task.ParseMode, Now: r.now})

	stmt, err := r.submitter.Submit(ctx, task.Query)
	if err != nil {
		return fmt.Errorf("submit query: %w", err)
	}
	// Closing a statement that is still running cancels it on the coordinator.
	defer stmt.Close() //nolint:errcheck
	report.QueryID = stmt.ID()
	r.logger.Debug("query submitted", "task", task.Name, "query_id", report.QueryID, "trace_token", stmt.TraceToken())

	stopped := false
pages:
	for stmt.IsRunning() {
		if page := stmt.CurrentPage(); page != nil {
			report.Pages++
			for _, row := range page.Rows {
				if err := coercer.Coerce(s, row, out); err != nil {
					return fmt.Errorf("row %d: %w", report.Rows+1, err)
				}
				report.Rows++
				if task.MaxRows > 0 && report.Rows >= task.MaxRows {
					stopped = true
					break pages
				}
			}
		}
		if err := stmt.Advance(ctx); err != nil {
			return err
		}
	}
	if id := stmt.ID(); id != "" {
		report.QueryID = id
	}

	if err := out.Finish(); err != nil {
		return fmt.Errorf("finish sink: %w", err)
	}
	if stopped {
		report.State = domain.RunStateStopped
		r.logger.Info("row limit reached, releasing query", "task", task.Name, "max_rows", task.MaxRows)
	}
	return nil
}
