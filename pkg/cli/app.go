package cli

import (
	"trino-ingest/internal/config"
	"trino-ingest/internal/domain"
	"trino-ingest/internal/history"
	"trino-ingest/internal/ingest"
	"trino-ingest/internal/objectstore"
	"trino-ingest/internal/sink"
	"trino-ingest/internal/trino"
)

const adhocTaskName = "adhoc"

// newRunner connects a runner to the configured coordinator. A nil sinks
// factory opens each task's configured output. When historyDB is set, runs are
// recorded there. The returned cleanup must be called when done.
func (a *app) newRunner(historyDB string, sinks ingest.SinkFactory) (*ingest.Runner, func(), error) {
	session, err := trino.NewSession(a.cfg.Server)
	if err != nil {
		return nil, nil, err
	}
	client := trino.NewClient(session, trino.NewHTTPClient(a.cfg.Server.RequestTimeout), trino.ClientOptions{
		PollInterval: a.cfg.Server.PollInterval,
		Logger:       a.logger,
	})

	if sinks == nil {
		sinks = ingest.OutputSinks(sink.Options{
			Uploader: objectstore.NewRouter(a.cfg.Storage, a.logger),
		})
	}

	cleanup := func() {}
	var recorder domain.RunRecorder
	if historyDB != "" {
		store, err := history.Open(historyDB)
		if err != nil {
			return nil, nil, err
		}
		recorder = store
		cleanup = func() {
			if err := store.Close(); err != nil {
				a.logger.Warn("close history db failed", "error", err)
			}
		}
	}

	runner := ingest.NewRunner(client, sinks, ingest.Options{
		Logger:   a.logger,
		Recorder: recorder,
	})
	return runner, cleanup, nil
}

// selectTasks returns the ad-hoc task when adhoc has a query, the named tasks
// when names are given, and every configured task otherwise.
func (a *app) selectTasks(names []string, adhoc config.TaskConfig) ([]ingest.Task, error) {
	if adhoc.Query != "" {
		if len(names) > 0 {
			return nil, domain.ErrValidation("--query cannot be combined with task names")
		}
		adhoc.Name = adhocTaskName
		if adhoc.ParseMode == "" {
			adhoc.ParseMode = config.ParseModeMixed
		}
		check := *a.cfg
		check.Tasks = []config.TaskConfig{adhoc}
		if err := check.Validate(); err != nil {
			return nil, err
		}
		t, err := ingest.TaskFromConfig(adhoc)
		if err != nil {
			return nil, err
		}
		return []ingest.Task{t}, nil
	}

	if len(names) == 0 {
		if len(a.cfg.Tasks) == 0 {
			return nil, domain.ErrValidation("no tasks configured: pass --config or --query")
		}
		return ingest.TasksFromConfig(a.cfg)
	}

	tasks := make([]ingest.Task, 0, len(names))
	for _, name := range names {
		tc, ok := a.cfg.Task(name)
		if !ok {
			return nil, domain.ErrValidation("unknown task %q", name)
		}
		t, err := ingest.TaskFromConfig(tc)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// selectOne is selectTasks for commands that act on a single task.
func (a *app) selectOne(args []string, adhoc config.TaskConfig) (ingest.Task, error) {
	tasks, err := a.selectTasks(args, adhoc)
	if err != nil {
		return ingest.Task{}, err
	}
	if len(tasks) != 1 {
		return ingest.Task{}, domain.ErrValidation("%d tasks configured: name one", len(tasks))
	}
	return tasks[0], nil
}

func historyPath(flagValue string, cfg *config.Config) string {
	if flagValue != "" {
		return flagValue
	}
	return cfg.HistoryDB
}

func errNoOutput(task string) error {
	return domain.ErrValidation("task %q has no output configured", task)
}
