package sink

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/duckdb/duckdb-go/v2"

	"trino-ingest/internal/domain"
	"trino-ingest/internal/schema"
)

// DuckDB write modes.
const (
	ModeAppend  = "append"
	ModeReplace = "replace"
)

// DuckDBSink appends rows to a DuckDB table through the native appender.
// Rows are appended inside a transaction committed by Finish; closing an
// unfinished sink rolls it back.
type DuckDBSink struct {
	connector *duckdb.Connector
	db        *sql.DB
	conn      driver.Conn
	appender  *duckdb.Appender
	table     string
	row       []driver.Value
	set       []bool
	rows      int64
	inTx      bool
	closed    bool
}

var _ domain.Sink = (*DuckDBSink)(nil)

// NewDuckDBSink opens the database at path (":memory:" or "" for in-memory),
// creates the table if needed and prepares an appender. In replace mode an
// existing table is dropped first.
func NewDuckDBSink(ctx context.Context, s schema.Schema, path, table, mode string) (*DuckDBSink, error) {
	if table == "" {
		return nil, domain.ErrValidation("duckdb sink: table is required")
	}
	if mode == "" {
		mode = ModeAppend
	}
	if mode != ModeAppend && mode != ModeReplace {
		return nil, domain.ErrValidation("duckdb sink: unknown mode %q", mode)
	}
	if path == ":memory:" {
		path = ""
	}

	connector, err := duckdb.NewConnector(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open duckdb %s: %w", path, err)
	}
	d := &DuckDBSink{
		connector: connector,
		db:        sql.OpenDB(connector),
		table:     table,
		row:       make([]driver.Value, s.Len()),
		set:       make([]bool, s.Len()),
	}
	if err := d.prepareTable(ctx, s, mode); err != nil {
		_ = d.Close()
		return nil, err
	}

	conn, err := connector.Connect(ctx)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("connect duckdb: %w", err)
	}
	d.conn = conn
	if err := execConn(ctx, conn, "BEGIN TRANSACTION"); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	d.inTx = true
	appender, err := duckdb.NewAppenderFromConn(conn, "", table)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("create appender for %s: %w", table, err)
	}
	d.appender = appender
	return d, nil
}

// DB returns the database handle, e.g. for reading back ingested rows.
func (d *DuckDBSink) DB() *sql.DB { return d.db }

func (d *DuckDBSink) prepareTable(ctx context.Context, s schema.Schema, mode string) error {
	if mode == ModeReplace {
		if _, err := d.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(d.table)); err != nil {
			return fmt.Errorf("drop table %s: %w", d.table, err)
		}
	}
	if _, err := d.db.ExecContext(ctx, CreateTableSQL(d.table, s)); err != nil {
		return fmt.Errorf("create table %s: %w", d.table, err)
	}
	return nil
}

// CreateTableSQL returns the DuckDB DDL for a resolved schema.
func CreateTableSQL(table string, s schema.Schema) string {
	cols := make([]string, s.Len())
	for i, c := range s.Columns() {
		cols[i] = quoteIdent(c.Name) + " " + duckDBType(c.Target())
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(table), strings.Join(cols, ", "))
}

func duckDBType(t schema.TargetType) string {
	switch t {
	case schema.TargetBoolean:
		return "BOOLEAN"
	case schema.TargetInteger:
		return "BIGINT"
	case schema.TargetFloat:
		return "DOUBLE"
	case schema.TargetTimestamp:
		return "TIMESTAMPTZ"
	default:
		return "VARCHAR"
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *DuckDBSink) put(col int, v driver.Value) {
	d.row[col] = v
	d.set[col] = true
}

func (d *DuckDBSink) SetBoolean(col int, v bool)        { d.put(col, v) }
func (d *DuckDBSink) SetInteger(col int, v int64)       { d.put(col, v) }
func (d *DuckDBSink) SetFloat(col int, v float64)       { d.put(col, v) }
func (d *DuckDBSink) SetString(col int, v string)       { d.put(col, v) }
func (d *DuckDBSink) SetTimestamp(col int, v time.Time) { d.put(col, v.UTC()) }
func (d *DuckDBSink) SetNull(col int)                   { d.put(col, nil) }

// FinishRow appends the current row; unset columns are null.
func (d *DuckDBSink) FinishRow() error {
	for i, ok := range d.set {
		if !ok {
			d.row[i] = nil
		}
	}
	if err := d.appender.AppendRow(d.row...); err != nil {
		return fmt.Errorf("append row to %s: %w", d.table, err)
	}
	for i := range d.row {
		d.row[i] = nil
		d.set[i] = false
	}
	d.rows++
	return nil
}

// Rows returns the number of appended rows.
func (d *DuckDBSink) Rows() int64 { return d.rows }

// Finish flushes buffered rows and commits them.
func (d *DuckDBSink) Finish() error {
	if err := d.appender.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", d.table, err)
	}
	if err := execConn(context.Background(), d.conn, "COMMIT"); err != nil {
		return fmt.Errorf("commit %s: %w", d.table, err)
	}
	d.inTx = false
	return nil
}

// Close releases the appender, the connection and the database.
func (d *DuckDBSink) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if d.appender != nil {
		keep(d.appender.Close())
	}
	if d.conn != nil {
		if d.inTx {
			keep(execConn(context.Background(), d.conn, "ROLLBACK"))
		}
		keep(d.conn.Close())
	}
	// Closing the DB also closes the connector.
	keep(d.db.Close())
	return firstErr
}

func execConn(ctx context.Context, conn driver.Conn, query string) error {
	execer, ok := conn.(driver.ExecerContext)
	if !ok {
		return fmt.Errorf("unexpected duckdb conn type %T", conn)
	}
	_, err := execer.ExecContext(ctx, query, nil)
	return err
}
