package schema

import "strings"

// ColumnType is the semantic type of a column, used for value coercion and DDL.
type ColumnType string

const (
	Text      ColumnType = "text"
	Int       ColumnType = "int"
	Int8      ColumnType = "int8" // 64-bit integer
	Bool      ColumnType = "bool"
	Date      ColumnType = "date"
	Timestamp ColumnType = "timestamp"
)

type Column struct {
	Name string
	Type ColumnType
}

// Table describes a relational table: an ordered set of typed columns plus
// optional composite-uniqueness hints. Descriptors are data only; the record
// writer interprets them.
type Table struct {
	Name    string
	Columns []Column

	// UniqueSets lists column sets that together identify a duplicate.
	// Callers use these for pre-insert duplicate checks; the writer does
	// not enforce them.
	UniqueSets [][]string
}

// Column returns the column with the given name, matched case-insensitively,
// or nil. Storage column names are lower-case.
func (t *Table) Column(name string) *Column {
	lower := strings.ToLower(name)
	for i := range t.Columns {
		if t.Columns[i].Name == lower {
			return &t.Columns[i]
		}
	}
	return nil
}

// HasColumn returns true if the table declares a column with the given name.
func (t *Table) HasColumn(name string) bool {
	return t.Column(name) != nil
}

// ColumnNames returns all declared column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// PostgresType returns the Postgres DDL type for a column type.
func (ct ColumnType) PostgresType() string {
	switch ct {
	case Text:
		return "TEXT"
	case Int:
		return "INTEGER"
	case Int8:
		return "BIGINT"
	case Bool:
		return "BOOLEAN"
	case Date:
		return "DATE"
	case Timestamp:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}
