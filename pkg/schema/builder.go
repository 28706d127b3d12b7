// Package schema is the declarative description of tracecap's relational
// tables, columns, defaults, and secondary indexes, materialized into
// DDL executed once when a new store file is created.
package schema

import (
	"fmt"
	"strings"

	tcerrors "tracecap/pkg/errors"
)

// ColumnType is one of the column semantic types the store supports.
type ColumnType int

const (
	ColumnInt32 ColumnType = iota
	ColumnInt64
	ColumnUint32
	ColumnUint64
	ColumnDouble
	ColumnText
	ColumnBlob
)

func (t ColumnType) sqlAffinity() string {
	switch t {
	case ColumnInt32, ColumnInt64, ColumnUint32, ColumnUint64:
		return "INTEGER"
	case ColumnDouble:
		return "REAL"
	case ColumnText:
		return "TEXT"
	case ColumnBlob:
		return "BLOB"
	default:
		return "TEXT"
	}
}

// Column describes one column of a Table. Defaults are permitted on
// every semantic type except blob. PrimaryKey marks the column as
// SQLite's "INTEGER PRIMARY KEY" rowid alias, so an Insert that omits
// it is assigned the row's id automatically.
type Column struct {
	Name       string
	Type       ColumnType
	Default    interface{}
	NotNull    bool
	PrimaryKey bool
}

// Int32Column, Int64Column, ... are small constructors matching the
// semantic types SchemaBuilder supports.
func Int32Column(name string, def ...int32) Column {
	c := Column{Name: name, Type: ColumnInt32}
	if len(def) > 0 {
		c.Default = def[0]
	}
	return c
}

func Int64Column(name string, def ...int64) Column {
	c := Column{Name: name, Type: ColumnInt64}
	if len(def) > 0 {
		c.Default = def[0]
	}
	return c
}

// IDColumn is the conventional auto-assigned rowid-aliased primary key
// column every tracecap table leads with.
func IDColumn() Column {
	return Column{Name: "id", Type: ColumnInt64, PrimaryKey: true}
}

func Uint32Column(name string, def ...uint32) Column {
	c := Column{Name: name, Type: ColumnUint32}
	if len(def) > 0 {
		c.Default = def[0]
	}
	return c
}

func Uint64Column(name string, def ...uint64) Column {
	c := Column{Name: name, Type: ColumnUint64}
	if len(def) > 0 {
		c.Default = def[0]
	}
	return c
}

func DoubleColumn(name string, def ...float64) Column {
	c := Column{Name: name, Type: ColumnDouble}
	if len(def) > 0 {
		c.Default = def[0]
	}
	return c
}

func TextColumn(name string, def ...string) Column {
	c := Column{Name: name, Type: ColumnText}
	if len(def) > 0 {
		c.Default = def[0]
	}
	return c
}

func BlobColumn(name string) Column {
	return Column{Name: name, Type: ColumnBlob}
}

// Index is a (possibly compound) secondary index over a table's columns.
type Index struct {
	Columns []string
}

// Table is one relational table: a name, its columns in declared order,
// and the indexes built over it.
type Table struct {
	Name    string
	Columns []Column
	Indexes []Index
}

// Builder accumulates Tables and materializes them into DDL. Tables and
// columns are validated for duplicates as they're added; Materialize
// never fails on a Builder whose AddTable calls all succeeded.
type Builder struct {
	tables     []Table
	tableNames map[string]bool
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{tableNames: make(map[string]bool)}
}

// AddTable appends a fully-formed table, rejecting duplicate table
// names, duplicate column names within the table, and any default
// value declared on a blob column.
func (b *Builder) AddTable(t Table) error {
	if b.tableNames[t.Name] {
		return tcerrors.NewSchemaError(t.Name, "duplicate table name")
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if seen[c.Name] {
			return tcerrors.NewSchemaError(t.Name, fmt.Sprintf("duplicate column %q", c.Name))
		}
		seen[c.Name] = true
		if c.Type == ColumnBlob && c.Default != nil {
			return tcerrors.NewSchemaError(t.Name, fmt.Sprintf("column %q: blob columns cannot have a default", c.Name))
		}
	}
	for _, idx := range t.Indexes {
		for _, col := range idx.Columns {
			if !seen[col] {
				return tcerrors.NewSchemaError(t.Name, fmt.Sprintf("index references unknown column %q", col))
			}
		}
	}
	b.tableNames[t.Name] = true
	b.tables = append(b.tables, t)
	return nil
}

// Tables returns the tables added so far, in add order.
func (b *Builder) Tables() []Table {
	return b.tables
}

// Materialize emits one CREATE TABLE per table and one CREATE INDEX per
// declared index, in the order tables were added.
func (b *Builder) Materialize() []string {
	var stmts []string
	for _, t := range b.tables {
		stmts = append(stmts, createTableDDL(t))
		for i, idx := range t.Indexes {
			stmts = append(stmts, createIndexDDL(t.Name, i, idx))
		}
	}
	return stmts
}

func createTableDDL(t Table) string {
	var cols []string
	for _, c := range t.Columns {
		affinity := c.Type.sqlAffinity()
		if c.PrimaryKey {
			affinity = "INTEGER PRIMARY KEY"
		}
		def := fmt.Sprintf("%s %s", quoteIdent(c.Name), affinity)
		if c.NotNull {
			def += " NOT NULL"
		}
		if c.Default != nil {
			def += " DEFAULT " + formatDefault(c.Default)
		}
		cols = append(cols, def)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(t.Name), strings.Join(cols, ", "))
}

func createIndexDDL(table string, ordinal int, idx Index) string {
	quoted := make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		quoted[i] = quoteIdent(c)
	}
	name := fmt.Sprintf("idx_%s_%d", table, ordinal)
	return fmt.Sprintf("CREATE INDEX %s ON %s (%s)", quoteIdent(name), quoteIdent(table), strings.Join(quoted, ", "))
}

func formatDefault(v interface{}) string {
	switch val := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	default:
		return fmt.Sprintf("%v", val)
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
