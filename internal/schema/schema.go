package schema

// OutputColumn is one column of a resolved schema. RawType keeps the name the
// engine reported, e.g. "varchar(255)", for diagnostics and sink DDL.
type OutputColumn struct {
	Name    string
	Type    WireType
	RawType string
}

// Target returns the sink type of the column.
func (c OutputColumn) Target() TargetType {
	return c.Type.Target()
}

// ColumnOverride is a caller-supplied column name and Trino type name.
type ColumnOverride struct {
	Name string
	Type string
}

// Schema is the ordered, immutable list of output columns. Position i matches
// position i of every row the engine returns for the query.
type Schema struct {
	columns []OutputColumn
}

// New builds a Schema from columns. The slice is copied.
func New(columns []OutputColumn) Schema {
	return Schema{columns: append([]OutputColumn(nil), columns...)}
}

// Len returns the number of columns.
func (s Schema) Len() int { return len(s.columns) }

// Column returns the column at index i.
func (s Schema) Column(i int) OutputColumn { return s.columns[i] }

// Columns returns a copy of the columns.
func (s Schema) Columns() []OutputColumn {
	return append([]OutputColumn(nil), s.columns...)
}

// Names returns the column names in order.
func (s Schema) Names() []string {
	out := make([]string, len(s.columns))
	for i, c := range s.columns {
		out[i] = c.Name
	}
	return out
}
