package cli

import (
	"github.com/spf13/cobra"

	"trino-ingest/internal/config"
	"trino-ingest/internal/schema"
)

type columnView struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	RawType string `json:"raw_type"`
	Target  string `json:"target"`
}

func newSchemaCmd(a *app) *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "schema [task]",
		Short: "Resolve and print the output schema of a task without running it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := a.selectOne(args, config.TaskConfig{Query: query})
			if err != nil {
				return err
			}
			runner, cleanup, err := a.newRunner("", nil)
			if err != nil {
				return err
			}
			defer cleanup()

			s, err := runner.Schema(cmd.Context(), task)
			if err != nil {
				return err
			}
			return printSchema(cmd, s)
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "Resolve this query instead of a configured task")
	return cmd
}

func printSchema(cmd *cobra.Command, s schema.Schema) error {
	views := make([]columnView, 0, s.Len())
	for _, c := range s.Columns() {
		views = append(views, columnView{
			Name:    c.Name,
			Type:    c.Type.String(),
			RawType: c.RawType,
			Target:  c.Target().String(),
		})
	}

	w := cmd.OutOrStdout()
	if getOutputFormat(cmd) == outputJSON {
		return printJSON(w, views)
	}
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		rows = append(rows, []string{v.Name, v.Type, v.RawType, v.Target})
	}
	printTable(w, []string{"name", "type", "raw type", "target"}, rows)
	return nil
}
