package ingest

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"trino-ingest/internal/domain"
)

// RunAll runs tasks with at most parallelism running at once (all at once
// when parallelism is not positive). The first failure cancels the tasks still
// running. Reports are returned in task order; a task that never started has a
// zero report.
func (r *Runner) RunAll(ctx context.Context, tasks []Task, parallelism int) ([]domain.RunReport, error) {
	reports := make([]domain.RunReport, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}

	for i := range tasks {
		task := tasks[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			report, err := r.Run(gctx, task)
			reports[i] = report
			if err != nil {
				return fmt.Errorf("task %q: %w", task.Name, err)
			}
			return nil
		})
	}

	err := g.Wait()
	return reports, err
}
