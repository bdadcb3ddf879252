package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"trino-ingest/internal/domain"
)

// Scheduler re-runs tasks on their cron schedules.
type Scheduler struct {
	cron    *cron.Cron
	runner  *Runner
	logger  *slog.Logger
	mu      sync.Mutex
	entries map[string]cron.EntryID // task name → cron entry
	ctx     context.Context
}

// NewScheduler creates a scheduler. A run still in progress when its next
// tick fires is not started twice.
func NewScheduler(runner *Runner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger}
	return &Scheduler{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		runner:  runner,
		logger:  logger,
		entries: make(map[string]cron.EntryID),
		ctx:     context.Background(),
	}
}

// Add schedules task on task.Schedule, a standard five-field cron expression or a
// descriptor such as "@hourly" or "@every 10m".
func (s *Scheduler) Add(task Task) error {
	if task.Schedule == "" {
		return domain.ErrValidation("task %q has no schedule", task.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[task.Name]; ok {
		return domain.ErrValidation("task %q is already scheduled", task.Name)
	}

	id, err := s.cron.AddFunc(task.Schedule, func() { s.trigger(task) })
	if err != nil {
		return domain.ErrValidation("task %q: invalid schedule %q: %v", task.Name, task.Schedule, err)
	}
	s.entries[task.Name] = id
	s.logger.Info("scheduled task", "task", task.Name, "schedule", task.Schedule)
	return nil
}

// Run starts the scheduler and blocks until ctx is done, then waits for
// running tasks to return.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if len(s.entries) == 0 {
		s.mu.Unlock()
		return domain.ErrValidation("no scheduled tasks")
	}
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "tasks", len(s.entries))
	<-ctx.Done()

	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) trigger(task Task) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	// Failures are already logged and recorded by the runner; the schedule keeps going.
	if _, err := s.runner.Run(ctx, task); err != nil {
		s.logger.Warn("scheduled run failed", "task", task.Name, "error", err)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(fmt.Sprintf("cron: %s", msg), append(keysAndValues, "error", err)...)
}
