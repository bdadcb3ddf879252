package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"trino-ingest/internal/config"
	"trino-ingest/internal/domain"
	"trino-ingest/internal/ingest"
)

type runFlags struct {
	parallel  int
	schedule  string
	watch     bool
	historyDB string
	query     string
	out       string
	parseMode string
}

func newRunCmd(a *app) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run [task...]",
		Short: "Run tasks once, or on their schedules",
		Long: `Runs the named tasks (all configured tasks when none are named).

With --watch, every task is re-run on its cron schedule until interrupted.
--schedule sets the schedule of tasks that have none and implies --watch.`,
		Example: `  trino-ingest run -c tasks.yaml
  trino-ingest run -c tasks.yaml orders --parallel 4
  trino-ingest run --query "SELECT * FROM tpch.tiny.nation" --out nation.parquet
  trino-ingest run -c tasks.yaml --schedule "@every 15m"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var adhoc config.TaskConfig
			if f.query != "" {
				if f.out == "" {
					return domain.ErrValidation("--query requires --out")
				}
				adhoc = config.TaskConfig{
					Query:     f.query,
					ParseMode: f.parseMode,
					Output:    config.OutputConfig{Type: config.OutputParquet, Path: f.out},
				}
			}
			tasks, err := a.selectTasks(args, adhoc)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				if t.Output.Type == "" {
					return errNoOutput(t.Name)
				}
			}

			runner, cleanup, err := a.newRunner(historyPath(f.historyDB, a.cfg), nil)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if f.watch || f.schedule != "" {
				return runScheduled(ctx, a, runner, tasks, f.schedule)
			}

			parallel := f.parallel
			if parallel <= 0 {
				parallel = a.cfg.Parallelism
			}
			reports, runErr := runner.RunAll(ctx, tasks, parallel)
			if err := printReports(cmd, reports); err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().IntVar(&f.parallel, "parallel", 0, "Maximum number of tasks running at once (default from config)")
	cmd.Flags().StringVar(&f.schedule, "schedule", "", "Cron schedule for tasks without one; implies --watch")
	cmd.Flags().BoolVar(&f.watch, "watch", false, "Keep running and re-run tasks on their schedules")
	cmd.Flags().StringVar(&f.historyDB, "history-db", "", "Record runs in this SQLite file (default from config)")
	cmd.Flags().StringVar(&f.query, "query", "", "Run a single ad-hoc query instead of configured tasks")
	cmd.Flags().StringVar(&f.out, "out", "", "Parquet file written by --query")
	cmd.Flags().StringVar(&f.parseMode, "parse-mode", "", "Parse mode for --query (mixed, strict, lenient)")

	return cmd
}

func runScheduled(ctx context.Context, a *app, runner *ingest.Runner, tasks []ingest.Task, fallback string) error {
	scheduler := ingest.NewScheduler(runner, a.logger)
	for _, t := range tasks {
		if t.Schedule == "" {
			t.Schedule = fallback
		}
		if err := scheduler.Add(t); err != nil {
			return err
		}
	}
	return scheduler.Run(ctx)
}

// reportView is the JSON form of a run report.
type reportView struct {
	ID         string    `json:"id"`
	Task       string    `json:"task"`
	QueryID    string    `json:"query_id,omitempty"`
	State      string    `json:"state"`
	Rows       int64     `json:"rows"`
	Pages      int64     `json:"pages"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

func newReportView(r domain.RunReport) reportView {
	return reportView{
		ID:         r.ID,
		Task:       r.Task,
		QueryID:    r.QueryID,
		State:      r.State,
		Rows:       r.Rows,
		Pages:      r.Pages,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		DurationMS: r.Duration().Milliseconds(),
		Error:      r.Error,
	}
}

// printReports prints the reports of tasks that ran; tasks cancelled before
// starting are skipped.
func printReports(cmd *cobra.Command, reports []domain.RunReport) error {
	views := make([]reportView, 0, len(reports))
	for _, r := range reports {
		if r.State == "" {
			continue
		}
		views = append(views, newReportView(r))
	}
	return writeReports(cmd.OutOrStdout(), getOutputFormat(cmd), views)
}

func writeReports(w io.Writer, format string, views []reportView) error {
	if format == outputJSON {
		return printJSON(w, views)
	}
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		rows = append(rows, []string{
			v.Task,
			v.State,
			strconv.FormatInt(v.Rows, 10),
			strconv.FormatInt(v.Pages, 10),
			(time.Duration(v.DurationMS) * time.Millisecond).String(),
			v.QueryID,
			v.Error,
		})
	}
	printTable(w, []string{"task", "state", "rows", "pages", "duration", "query id", "error"}, rows)
	return nil
}
