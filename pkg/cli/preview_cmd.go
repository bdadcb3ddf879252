package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"trino-ingest/internal/config"
	"trino-ingest/internal/domain"
	"trino-ingest/internal/ingest"
	"trino-ingest/internal/schema"
	"trino-ingest/internal/sink"
)

const defaultPreviewLimit = 10

type previewView struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func newPreviewCmd(a *app) *cobra.Command {
	var (
		query string
		limit int64
	)

	cmd := &cobra.Command{
		Use:   "preview [task]",
		Short: "Run a task into memory and print its first rows",
		Long:  "Runs the query of a task, stops after --limit rows and cancels the rest of the query. Nothing is written.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return domain.ErrValidation("--limit must be positive")
			}
			task, err := a.selectOne(args, config.TaskConfig{Query: query})
			if err != nil {
				return err
			}
			task.MaxRows = limit

			var buf *sink.Buffer
			factory := func(_ context.Context, _ ingest.Task, s schema.Schema) (domain.Sink, error) {
				buf = sink.NewBuffer(s)
				return buf, nil
			}
			runner, cleanup, err := a.newRunner("", factory)
			if err != nil {
				return err
			}
			defer cleanup()

			if _, err := runner.Run(cmd.Context(), task); err != nil {
				return err
			}
			return printPreview(cmd, buf)
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "Preview this query instead of a configured task")
	cmd.Flags().Int64Var(&limit, "limit", defaultPreviewLimit, "Maximum number of rows to fetch")
	return cmd
}

func printPreview(cmd *cobra.Command, buf *sink.Buffer) error {
	names := buf.Schema().Names()
	w := cmd.OutOrStdout()
	if getOutputFormat(cmd) == outputJSON {
		rows := buf.Rows()
		if rows == nil {
			rows = [][]any{}
		}
		return printJSON(w, previewView{Columns: names, Rows: rows})
	}

	rows := make([][]string, 0, len(buf.Rows()))
	for _, r := range buf.Rows() {
		cells := make([]string, len(r))
		for i, v := range r {
			cells[i] = formatCell(v)
		}
		rows = append(rows, cells)
	}
	printTable(w, names, rows)
	return nil
}

func formatCell(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}
