package sink

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trino-ingest/internal/schema"
)

func TestCreateTableSQL(t *testing.T) {
	s, err := schema.FromOverrides([]schema.ColumnOverride{
		{Name: "id", Type: "bigint"},
		{Name: `odd "name"`, Type: "varchar"},
		{Name: "ok", Type: "boolean"},
		{Name: "x", Type: "real"},
		{Name: "d", Type: "date"},
		{Name: "j", Type: "json"},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS "events" ("id" BIGINT, "odd ""name""" VARCHAR, "ok" BOOLEAN, "x" DOUBLE, "d" TIMESTAMPTZ, "j" VARCHAR)`,
		CreateTableSQL("events", s))
}

func TestDuckDBSink_InMemory(t *testing.T) {
	ctx := context.Background()
	sink, err := NewDuckDBSink(ctx, testSchema(t), ":memory:", "orders", ModeAppend)
	require.NoError(t, err)
	defer sink.Close() //nolint:errcheck

	writeTestRows(t, sink, 4)
	require.NoError(t, sink.Finish())
	assert.Equal(t, int64(4), sink.Rows())

	var count, sum int64
	var nullNames int64
	require.NoError(t, sink.DB().QueryRowContext(ctx,
		`SELECT count(*), sum(id), count(*) FILTER (WHERE name IS NULL) FROM orders`).Scan(&count, &sum, &nullNames))
	assert.Equal(t, int64(4), count)
	assert.Equal(t, int64(6), sum)
	assert.Equal(t, int64(2), nullNames)

	var at time.Time
	require.NoError(t, sink.DB().QueryRowContext(ctx, `SELECT "at" FROM orders WHERE id = 0`).Scan(&at))
	assert.True(t, testTime.Equal(at), "got %s", at)
}

func TestDuckDBSink_AppendAndReplace(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "warehouse.duckdb")

	run := func(mode string, n int) {
		t.Helper()
		sink, err := NewDuckDBSink(ctx, testSchema(t), path, "orders", mode)
		require.NoError(t, err)
		writeTestRows(t, sink, n)
		require.NoError(t, sink.Finish())
		require.NoError(t, sink.Close())
	}
	count := func() int64 {
		t.Helper()
		db, err := sql.Open("duckdb", path)
		require.NoError(t, err)
		defer db.Close() //nolint:errcheck
		var n int64
		require.NoError(t, db.QueryRowContext(ctx, "SELECT count(*) FROM orders").Scan(&n))
		return n
	}

	run(ModeAppend, 3)
	run(ModeAppend, 2)
	assert.Equal(t, int64(5), count())
	run(ModeReplace, 1)
	assert.Equal(t, int64(1), count())
}

func TestDuckDBSink_CloseWithoutFinishRollsBack(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rollback.duckdb")

	sink, err := NewDuckDBSink(ctx, testSchema(t), path, "orders", ModeAppend)
	require.NoError(t, err)
	writeTestRows(t, sink, 3)
	require.NoError(t, sink.Close())

	db, err := sql.Open("duckdb", path)
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck
	var n int64
	require.NoError(t, db.QueryRowContext(ctx, "SELECT count(*) FROM orders").Scan(&n))
	assert.Equal(t, int64(0), n)
}

func TestDuckDBSink_InvalidArguments(t *testing.T) {
	_, err := NewDuckDBSink(context.Background(), testSchema(t), "", "", ModeAppend)
	require.Error(t, err)
	_, err = NewDuckDBSink(context.Background(), testSchema(t), "", "t", "upsert")
	require.Error(t, err)
}
