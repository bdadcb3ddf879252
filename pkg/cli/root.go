package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"trino-ingest/internal/config"
	"trino-ingest/internal/domain"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI.
func Execute() int {
	return run(os.Args[1:], os.Stdout, os.Stderr)
}

func run(args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	if err := rootCmd.Execute(); err != nil {
		if rawOutputFlag(rootCmd) == outputJSON {
			_ = printJSON(stdout, errorObject(err))
		} else {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func errorObject(err error) map[string]interface{} {
	errObj := map[string]interface{}{
		"error": err.Error(),
	}
	var (
		qerr *domain.QueryFailedError
		perr *domain.ProtocolError
		verr *domain.ValidationError
	)
	switch {
	case errors.As(err, &qerr):
		errObj["kind"] = "query_failed"
		errObj["query_id"] = qerr.QueryID
		errObj["error_name"] = qerr.ErrorName
	case errors.As(err, &perr):
		errObj["kind"] = "protocol"
		errObj["http_status"] = perr.StatusCode
	case errors.As(err, &verr):
		errObj["kind"] = "validation"
	}
	return errObj
}

// app holds the state resolved by the root command before a subcommand runs.
type app struct {
	configPath string
	envFile    string
	logLevel   string
	output     outputFormat

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "trino-ingest",
		Short:         "Stream Trino query results into Parquet, Arrow, or DuckDB",
		Long:          "Runs Trino queries page by page and writes typed rows into columnar sinks.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Task configuration file (YAML)")
	rootCmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "Environment file loaded before the configuration")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().VarP(&a.output, "output", "o", "Output format (table, json); defaults to table on a terminal")

	rootCmd.AddCommand(newRunCmd(a))
	rootCmd.AddCommand(newSchemaCmd(a))
	rootCmd.AddCommand(newPreviewCmd(a))
	rootCmd.AddCommand(newHistoryCmd(a))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// load reads .env and the configuration, then installs the JSON logger on stderr.
func (a *app) load(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	a.cfg = cfg

	a.logger = slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(a.logger)
	for _, w := range cfg.Warnings {
		a.logger.Warn(w)
	}
	return nil
}
