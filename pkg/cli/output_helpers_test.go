package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormat_Set(t *testing.T) {
	var o outputFormat
	require.NoError(t, o.Set("json"))
	assert.Equal(t, "json", o.String())
	require.Error(t, o.Set("csv"))
	assert.Equal(t, "json", o.String(), "rejected values leave the flag unchanged")
	assert.Equal(t, "format", o.Type())
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	printTable(&buf, []string{"name", "age"}, [][]string{{"Alice", "30"}, {"Bob", "25"}})
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3, "header + 2 rows")
	assert.Contains(t, lines[0], "NAME")
	assert.Contains(t, lines[0], "AGE")
	assert.Contains(t, lines[1], "Alice")
	assert.Contains(t, lines[2], "25")

	buf.Reset()
	printTable(&buf, nil, [][]string{{"a"}})
	assert.Empty(t, buf.String())
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, map[string]string{"hello": "world"}))
	assert.Contains(t, buf.String(), "\n  \"hello\": \"world\"")

	buf.Reset()
	require.NoError(t, printJSON(&buf, nil))
	assert.Equal(t, "null\n", buf.String())
}

func TestFormatCell(t *testing.T) {
	assert.Equal(t, "NULL", formatCell(nil))
	assert.Equal(t, "42", formatCell(int64(42)))
	assert.Equal(t, "true", formatCell(true))
	assert.Equal(t, "2024-01-02T03:04:05.5Z", formatCell(time.Date(2024, 1, 2, 3, 4, 5, 500000000, time.UTC)))
}
