package cli

import (
	"bytes"
	"path/filepath"
	"strconv"
	"testing"

	"trino-ingest/internal/trino/trinotest"
)

// cliResult holds what one CLI invocation printed.
type cliResult struct {
	stdout string
	stderr string
	code   int
}

// execCLI runs the CLI with args. It never reads a real .env file.
func execCLI(t *testing.T, args ...string) cliResult {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--env-file", filepath.Join(t.TempDir(), "absent.env")}, args...)
	code := run(full, &stdout, &stderr)
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), code: code}
}

// pointAt directs the CLI at srv through the environment.
func pointAt(t *testing.T, srv *trinotest.Server) {
	t.Helper()
	cfg := srv.ServerConfig()
	for _, key := range []string{
		"TRINO_CATALOG", "TRINO_SCHEMA", "TRINO_USER", "TRINO_PASSWORD", "TRINO_SOURCE",
		"TRINO_TIME_ZONE", "TRINO_LOCALE", "TRINO_HTTPS", "TRINO_REQUEST_TIMEOUT",
		"LOG_LEVEL", "HISTORY_DB",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("TRINO_HOST", cfg.Host)
	t.Setenv("TRINO_PORT", strconv.Itoa(cfg.Port))
}
