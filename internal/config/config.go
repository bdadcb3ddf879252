// Package config handles task configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"trino-ingest/internal/domain"
)

// Defaults applied before the config file and the environment are read.
const (
	DefaultHost           = "localhost"
	DefaultPort           = 8080
	DefaultCatalog        = "system"
	DefaultSchema         = "default"
	DefaultUser           = "trino-ingest"
	DefaultSource         = "trino-ingest"
	DefaultRequestTimeout = 5 * time.Second
	DefaultHistoryDB      = "trino_ingest_history.sqlite"
	defaultTaskName       = "default"
)

// Output types understood by the sink factory.
const (
	OutputParquet = "parquet"
	OutputArrow   = "arrow"
	OutputDuckDB  = "duckdb"
)

// Parse modes understood by the row coercer.
const (
	ParseModeMixed   = "mixed"
	ParseModeStrict  = "strict"
	ParseModeLenient = "lenient"
)

// ServerConfig holds the coordinator endpoint and session settings.
type ServerConfig struct {
	Host              string            `yaml:"host"`
	Port              int               `yaml:"port"`
	HTTPS             bool              `yaml:"https"`
	Catalog           string            `yaml:"catalog"`
	Schema            string            `yaml:"schema"`
	User              string            `yaml:"user"`
	Password          string            `yaml:"password"`
	Source            string            `yaml:"source"`
	Locale            string            `yaml:"locale"`    // BCP 47 tag, e.g. "en-US"
	TimeZone          string            `yaml:"time_zone"` // IANA name, e.g. "Europe/Berlin"
	ClientTags        []string          `yaml:"client_tags"`
	SessionProperties map[string]string `yaml:"session_properties"`
	RequestTimeout    time.Duration     `yaml:"request_timeout"`
	PollInterval      time.Duration     `yaml:"poll_interval"` // zero: no pacing
}

// StorageConfig holds object store credentials used to publish Parquet output.
type StorageConfig struct {
	S3KeyID          string `yaml:"s3_key_id"`
	S3Secret         string `yaml:"s3_secret"`
	S3Endpoint       string `yaml:"s3_endpoint"`
	S3Region         string `yaml:"s3_region"`
	GCSKeyFile       string `yaml:"gcs_key_file"`
	AzureAccountName string `yaml:"azure_account_name"`
	AzureAccountKey  string `yaml:"azure_account_key"`
}

// HasS3Credentials returns true if a static S3 key pair is configured.
func (s *StorageConfig) HasS3Credentials() bool {
	return s.S3KeyID != "" && s.S3Secret != ""
}

// OutputConfig selects and configures the sink of a task.
type OutputConfig struct {
	Type        string `yaml:"type"`        // parquet, arrow or duckdb
	Path        string `yaml:"path"`        // output file, or database file for duckdb
	Table       string `yaml:"table"`       // duckdb only
	Mode        string `yaml:"mode"`        // duckdb only: append (default) or replace
	Upload      string `yaml:"upload"`      // parquet only: s3://, gs://, az:// or abfss:// URI
	BatchSize   int    `yaml:"batch_size"`  // rows per Arrow record batch
	Compression string `yaml:"compression"` // parquet only: snappy (default), zstd, gzip, none
}

// ColumnOption is one entry of column_options.
type ColumnOption struct {
	Name string
	Type string
}

// ColumnOptions preserves the order in which columns appear in the file.
type ColumnOptions []ColumnOption

// UnmarshalYAML reads column_options as an ordered mapping:
//
//	column_options:
//	  id:   {type: bigint}
//	  name: {type: varchar}
func (c *ColumnOptions) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: column_options must be a mapping", node.Line)
	}
	out := make(ColumnOptions, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var opt struct {
			Type string `yaml:"type"`
		}
		if err := node.Content[i+1].Decode(&opt); err != nil {
			return fmt.Errorf("column %q: %w", node.Content[i].Value, err)
		}
		out = append(out, ColumnOption{Name: node.Content[i].Value, Type: opt.Type})
	}
	*c = out
	return nil
}

// TaskConfig describes one query and where its rows go.
type TaskConfig struct {
	Name          string        `yaml:"name"`
	Query         string        `yaml:"query"`
	ColumnOptions ColumnOptions `yaml:"column_options"`
	Output        OutputConfig  `yaml:"output"`
	Schedule      string        `yaml:"schedule"`   // cron expression, used by `run --schedule`
	ParseMode     string        `yaml:"parse_mode"` // mixed (default), strict, lenient
	MaxRows       int64         `yaml:"max_rows"`   // zero: no limit
}

// Config holds the configuration for the ingest CLI.
type Config struct {
	Server      ServerConfig  `yaml:"server"`
	Storage     StorageConfig `yaml:"storage"`
	Tasks       []TaskConfig  `yaml:"tasks"`
	LogLevel    string        `yaml:"log_level"`  // debug, info, warn, error (default "info")
	HistoryDB   string        `yaml:"history_db"` // empty disables the run history
	Parallelism int           `yaml:"parallelism"`

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string `yaml:"-"`
}

// fileConfig accepts both the tasks list and the single-task shorthand with
// query, column_options and output at the top level.
type fileConfig struct {
	Config     `yaml:",inline"`
	TaskConfig `yaml:",inline"`
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Task returns the task with the given name.
func (c *Config) Task(name string) (TaskConfig, bool) {
	for _, t := range c.Tasks {
		if t.Name == name {
			return t, true
		}
	}
	return TaskConfig{}, false
}

// Default returns a configuration holding only defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           DefaultHost,
			Port:           DefaultPort,
			Catalog:        DefaultCatalog,
			Schema:         DefaultSchema,
			User:           DefaultUser,
			Source:         DefaultSource,
			RequestTimeout: DefaultRequestTimeout,
		},
		LogLevel:    "info",
		Parallelism: 1,
	}
}

// LoadFromEnv loads configuration from defaults and environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

// Load reads the YAML file at path (skipped when path is empty), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		raw := fileConfig{Config: *cfg}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg = &raw.Config
		if raw.TaskConfig.Query != "" {
			if len(cfg.Tasks) > 0 {
				return nil, domain.ErrValidation("config %s: top-level query cannot be combined with tasks", path)
			}
			if raw.TaskConfig.Name == "" {
				raw.TaskConfig.Name = defaultTaskName
			}
			cfg.Tasks = []TaskConfig{raw.TaskConfig}
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	s := &cfg.Server
	setString(&s.Host, "TRINO_HOST")
	setString(&s.Catalog, "TRINO_CATALOG")
	setString(&s.Schema, "TRINO_SCHEMA")
	setString(&s.User, "TRINO_USER")
	setString(&s.Password, "TRINO_PASSWORD")
	setString(&s.Source, "TRINO_SOURCE")
	setString(&s.TimeZone, "TRINO_TIME_ZONE")
	setString(&s.Locale, "TRINO_LOCALE")
	if v := os.Getenv("TRINO_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.Port = n
		} else {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("ignoring TRINO_PORT=%q: not a number", v))
		}
	}
	if v := os.Getenv("TRINO_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			s.RequestTimeout = d
		} else {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("ignoring TRINO_REQUEST_TIMEOUT=%q: %v", v, err))
		}
	}
	s.HTTPS = parseBoolEnvDefault("TRINO_HTTPS", s.HTTPS)

	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.HistoryDB, "HISTORY_DB")

	st := &cfg.Storage
	setString(&st.S3KeyID, "S3_KEY_ID")
	setString(&st.S3Secret, "S3_SECRET")
	setString(&st.S3Endpoint, "S3_ENDPOINT")
	setString(&st.S3Region, "S3_REGION")
	setString(&st.GCSKeyFile, "GCS_KEY_FILE")
	setString(&st.AzureAccountName, "AZURE_ACCOUNT_NAME")
	setString(&st.AzureAccountKey, "AZURE_ACCOUNT_KEY")
}

func applyDefaults(cfg *Config) {
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	if cfg.Server.Password != "" && !cfg.Server.HTTPS {
		cfg.Warnings = append(cfg.Warnings, "password is sent over plain HTTP; set TRINO_HTTPS=true")
	}
	for i := range cfg.Tasks {
		t := &cfg.Tasks[i]
		if t.ParseMode == "" {
			t.ParseMode = ParseModeMixed
		}
		t.Output.Type = strings.ToLower(t.Output.Type)
		if t.Output.Type == OutputDuckDB && t.Output.Mode == "" {
			t.Output.Mode = "append"
		}
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Host) == "" {
		return domain.ErrValidation("server.host must not be empty")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return domain.ErrValidation("server.port %d out of range", c.Server.Port)
	}
	if c.Server.User == "" {
		return domain.ErrValidation("server.user must not be empty")
	}
	seen := make(map[string]bool, len(c.Tasks))
	for i, t := range c.Tasks {
		if t.Name == "" {
			return domain.ErrValidation("tasks[%d]: name is required", i)
		}
		if seen[t.Name] {
			return domain.ErrValidation("duplicate task name %q", t.Name)
		}
		seen[t.Name] = true
		if strings.TrimSpace(t.Query) == "" {
			return domain.ErrValidation("task %q: query is required", t.Name)
		}
		if err := t.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (t *TaskConfig) validate() error {
	switch t.ParseMode {
	case ParseModeMixed, ParseModeStrict, ParseModeLenient:
	default:
		return domain.ErrValidation("task %q: unknown parse_mode %q", t.Name, t.ParseMode)
	}
	if t.MaxRows < 0 {
		return domain.ErrValidation("task %q: max_rows must not be negative", t.Name)
	}
	for _, opt := range t.ColumnOptions {
		if opt.Type == "" {
			return domain.ErrValidation("task %q: column %q has no type", t.Name, opt.Name)
		}
	}
	o := t.Output
	switch o.Type {
	case "":
	case OutputParquet, OutputArrow:
		if o.Path == "" {
			return domain.ErrValidation("task %q: output.path is required for %s", t.Name, o.Type)
		}
	case OutputDuckDB:
		if o.Table == "" {
			return domain.ErrValidation("task %q: output.table is required for duckdb", t.Name)
		}
		if o.Mode != "append" && o.Mode != "replace" {
			return domain.ErrValidation("task %q: output.mode must be append or replace", t.Name)
		}
	default:
		return domain.ErrValidation("task %q: unknown output type %q", t.Name, o.Type)
	}
	if o.Upload != "" && o.Type != OutputParquet {
		return domain.ErrValidation("task %q: output.upload requires parquet output", t.Name)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	return defaultVal
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		value = stripQuotes(strings.TrimSpace(value))
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
