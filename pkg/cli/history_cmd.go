package cli

import (
	"os"

	"github.com/spf13/cobra"

	"trino-ingest/internal/config"
	"trino-ingest/internal/domain"
	"trino-ingest/internal/history"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit     int
		historyDB string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := historyPath(historyDB, a.cfg)
			if path == "" {
				path = config.DefaultHistoryDB
			}
			if _, err := os.Stat(path); err != nil {
				if os.IsNotExist(err) {
					return domain.ErrValidation("no run history at %s", path)
				}
				return err
			}

			store, err := history.Open(path)
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck

			reports, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			views := make([]reportView, 0, len(reports))
			for _, r := range reports {
				views = append(views, newReportView(r))
			}
			return writeReports(cmd.OutOrStdout(), getOutputFormat(cmd), views)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", history.DefaultListLimit, "Maximum number of runs to list")
	cmd.Flags().StringVar(&historyDB, "history-db", "", "SQLite file holding the run history (default from config)")
	return cmd
}
