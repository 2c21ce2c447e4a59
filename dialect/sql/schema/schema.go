// Package schema describes the tables of collections and creates them.
package schema

import (
	"fmt"
	"strings"

	"github.com/syssam/linkql/dialect"
)

// ColumnType is the portable type of a column.
type ColumnType uint8

// Column types.
const (
	TypeInvalid ColumnType = iota
	TypeInt
	TypeString
	TypeText
	TypeBool
	TypeFloat
	TypeTime
	TypeJSON
)

var typeNames = [...]string{
	TypeInvalid: "invalid",
	TypeInt:     "int",
	TypeString:  "string",
	TypeText:    "text",
	TypeBool:    "bool",
	TypeFloat:   "float",
	TypeTime:    "time",
	TypeJSON:    "json",
}

// String returns the name of the type.
func (t ColumnType) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("ColumnType(%d)", t)
}

// ParseType returns the column type with the given name.
func ParseType(name string) (ColumnType, error) {
	for t, n := range typeNames {
		if n == strings.ToLower(name) && t != int(TypeInvalid) {
			return ColumnType(t), nil
		}
	}
	return TypeInvalid, fmt.Errorf("schema: unknown column type %q", name)
}

// SQL returns the type of the column in the dialect. Size applies to
// string columns only.
func (t ColumnType) SQL(name string, size int64) string {
	switch t {
	case TypeInt:
		if name == dialect.SQLite {
			return "INTEGER"
		}
		return "BIGINT"
	case TypeString:
		if name == dialect.SQLite {
			return "TEXT"
		}
		if size <= 0 {
			size = 255
		}
		return fmt.Sprintf("VARCHAR(%d)", size)
	case TypeText:
		return "TEXT"
	case TypeBool:
		if name == dialect.Postgres {
			return "BOOLEAN"
		}
		return "BOOL"
	case TypeFloat:
		if name == dialect.Postgres {
			return "DOUBLE PRECISION"
		}
		return "DOUBLE"
	case TypeTime:
		if name == dialect.Postgres {
			return "TIMESTAMP WITH TIME ZONE"
		}
		return "TIMESTAMP"
	case TypeJSON:
		switch name {
		case dialect.Postgres:
			return "JSONB"
		case dialect.MySQL:
			return "JSON"
		}
		return "TEXT"
	}
	panic(fmt.Sprintf("schema: invalid column type %d", t))
}

// Table is the definition of a table. Every table has an auto-incremented
// "id" primary key, added by NewTable.
type Table struct {
	Name        string
	Columns     []*Column
	PrimaryKey  []*Column
	ForeignKeys []*ForeignKey
	Indexes     []*Index
}

// Column is the definition of a column.
type Column struct {
	Name      string
	Type      ColumnType
	Size      int64 // Max size of string columns.
	Nullable  bool
	Unique    bool
	Increment bool
	Default   any
}

// ForeignKey is a foreign key constraint.
type ForeignKey struct {
	Symbol     string
	Columns    []*Column
	RefTable   *Table
	RefColumns []*Column
	OnDelete   string // CASCADE, SET NULL, ...
}

// Index is a secondary index.
type Index struct {
	Name    string
	Unique  bool
	Columns []*Column
}

// NewTable returns a table with its id primary key.
func NewTable(name string) *Table {
	id := &Column{Name: "id", Type: TypeInt, Increment: true}
	return &Table{Name: name, Columns: []*Column{id}, PrimaryKey: []*Column{id}}
}

// AddColumn appends a column to the table.
func (t *Table) AddColumn(c *Column) *Table {
	t.Columns = append(t.Columns, c)
	return t
}

// Column returns the column with the given name.
func (t *Table) Column(name string) (*Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// AddForeignKey appends a foreign key from column to the id of ref.
func (t *Table) AddForeignKey(column string, ref *Table, onDelete string) *Table {
	c, ok := t.Column(column)
	if !ok {
		c = &Column{Name: column}
	}
	id, _ := ref.Column("id")
	t.ForeignKeys = append(t.ForeignKeys, &ForeignKey{
		Symbol:     fmt.Sprintf("%s_%s_%s", t.Name, ref.Name, column),
		Columns:    []*Column{c},
		RefTable:   ref,
		RefColumns: []*Column{id},
		OnDelete:   onDelete,
	})
	return t
}

// AddIndex appends an index on the named columns.
func (t *Table) AddIndex(name string, unique bool, columns ...string) *Table {
	idx := &Index{Name: name, Unique: unique}
	for _, n := range columns {
		c, ok := t.Column(n)
		if !ok {
			c = &Column{Name: n}
		}
		idx.Columns = append(idx.Columns, c)
	}
	t.Indexes = append(t.Indexes, idx)
	return t
}

// Junction returns the junction table between two tables, with a
// composite unique index on the two reference columns.
func Junction(name string, from, to *Table, fromColumn, toColumn string) *Table {
	t := NewTable(name).
		AddColumn(&Column{Name: fromColumn, Type: TypeInt}).
		AddColumn(&Column{Name: toColumn, Type: TypeInt})
	t.AddForeignKey(fromColumn, from, "CASCADE").
		AddForeignKey(toColumn, to, "CASCADE").
		AddIndex(name+"_"+fromColumn+"_"+toColumn, true, fromColumn, toColumn)
	return t
}

// definition returns the column definition in the dialect.
func (c *Column) definition(name string) string {
	if c.Increment {
		switch name {
		case dialect.SQLite:
			return "INTEGER PRIMARY KEY AUTOINCREMENT"
		case dialect.MySQL:
			return "BIGINT AUTO_INCREMENT PRIMARY KEY"
		default:
			return "BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY"
		}
	}
	def := c.Type.SQL(name, c.Size)
	if !c.Nullable {
		def += " NOT NULL"
	}
	if c.Unique {
		def += " UNIQUE"
	}
	if c.Default != nil {
		def += " DEFAULT " + literal(c.Default)
	}
	return def
}

func literal(v any) string {
	switch v := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprint(v)
	}
}

func columnNames(cs []*Column) string {
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Name
	}
	return strings.Join(names, ", ")
}
