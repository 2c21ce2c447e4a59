package sql

import (
	"fmt"
	"strings"

	"github.com/syssam/linkql/dialect"
)

// Querier wraps the basic Query method that is implemented
// by the different builders in this file.
type Querier interface {
	// Query returns the query representation of the element
	// and its arguments (if any).
	Query() (string, []any)
}

// DialectBuilder prefixes all root builders with the Dialect option.
type DialectBuilder struct {
	dialect string
	mode    BindMode
}

// Dialect creates a new DialectBuilder with the given dialect name.
// Postgres statements bind immediately, others bind deferred.
func Dialect(name string) *DialectBuilder {
	mode := Deferred
	if dialect.NumberedPlaceholders(name) {
		mode = Immediate
	}
	return &DialectBuilder{dialect: name, mode: mode}
}

// Deferred returns a copy of the builder that uses deferred binding
// regardless of the dialect. It is used when the set of bound values is
// only known at runtime.
func (d *DialectBuilder) Deferred() *DialectBuilder {
	return &DialectBuilder{dialect: d.dialect, mode: Deferred}
}

// Name returns the dialect name.
func (d *DialectBuilder) Name() string { return d.dialect }

// Mode returns the bind mode used by the builders.
func (d *DialectBuilder) Mode() BindMode { return d.mode }

func (d *DialectBuilder) context() *BindContext {
	return NewBindContext(d.dialect, d.mode)
}

// Select creates a Selector for the given columns.
//
//	Dialect(dialect.Postgres).
//		Select("id", "title").
//		From("todo").
//		Where(EQ("done", true))
func (d *DialectBuilder) Select(columns ...string) *Selector {
	return (&Selector{bc: d.context()}).Select(columns...)
}

// Insert creates an InsertBuilder for the given table.
func (d *DialectBuilder) Insert(table string) *InsertBuilder {
	return &InsertBuilder{bc: d.context(), table: table}
}

// Update creates an UpdateBuilder for the given table.
func (d *DialectBuilder) Update(table string) *UpdateBuilder {
	return &UpdateBuilder{bc: d.context(), table: table}
}

// Delete creates a DeleteBuilder for the given table.
func (d *DialectBuilder) Delete(table string) *DeleteBuilder {
	return &DeleteBuilder{bc: d.context(), table: table}
}

// CreateTable creates a TableBuilder for the given table.
func (d *DialectBuilder) CreateTable(table string) *TableBuilder {
	return &TableBuilder{bc: d.context(), table: table}
}

// Qualify returns the column qualified with the table name. Columns that
// are already qualified are returned as is.
func Qualify(table, column string) string {
	if table == "" || strings.Contains(column, ".") {
		return column
	}
	return table + "." + column
}

// Alias returns the alias of a scoped column: <table>_<column>.
func Alias(table, column string) string {
	return table + "_" + column
}

// Scoped returns the select item "table.column AS table_column".
func Scoped(table, column string) string {
	return Qualify(table, column) + " AS " + Alias(table, column)
}

// As returns the select item "expr AS alias".
func As(expr, alias string) string {
	return expr + " AS " + alias
}

// Asc adds the ASC suffix to the column.
func Asc(column string) string { return column + " ASC" }

// Desc adds the DESC suffix to the column.
func Desc(column string) string { return column + " DESC" }

// JoinKind is the kind of a join clause.
type JoinKind uint8

// Join kinds.
const (
	InnerJoin JoinKind = iota
	LeftJoin
)

// String returns the SQL keywords of the join kind.
func (k JoinKind) String() string {
	if k == LeftJoin {
		return "LEFT JOIN"
	}
	return "INNER JOIN"
}

// Join describes a join between the statement table and a foreign table:
//
//	<Kind> <Table> [AS <Alias>] ON <Alias>.<Column> = <Local>
//
// An unqualified Local column is qualified with the statement table. The
// foreign table is referenced by its alias when one is set.
type Join struct {
	Kind   JoinKind
	Table  string
	Alias  string
	Column string
	Local  string
}

// Name returns the name the joined table is referenced by.
func (j Join) Name() string {
	if j.Alias != "" {
		return j.Alias
	}
	return j.Table
}

// Selector is a builder for the SELECT statement.
type Selector struct {
	bc     *BindContext
	table  string
	items  []Fragment
	joins  []Join
	where  []Fragment
	group  []string
	order  []string
	limit  Fragment
	offset Fragment
}

// BindContext returns the context values are bound to.
func (s *Selector) BindContext() *BindContext { return s.bc }

// Dialect returns the dialect of the statement.
func (s *Selector) Dialect() string { return s.bc.dialect }

// From sets the table of the statement.
func (s *Selector) From(table string) *Selector {
	s.table = table
	return s
}

// Table returns the table of the statement.
func (s *Selector) Table() string { return s.table }

// Select appends columns to the select list.
func (s *Selector) Select(columns ...string) *Selector {
	for _, c := range columns {
		s.items = append(s.items, Text(c))
	}
	return s
}

// AppendSelect appends expressions to the select list.
func (s *Selector) AppendSelect(exprs ...Binder) *Selector {
	for _, e := range exprs {
		s.items = append(s.items, s.bc.Bind(e))
	}
	return s
}

// SelectedLen returns the number of items in the select list.
func (s *Selector) SelectedLen() int { return len(s.items) }

// Join appends a join clause. Joining two tables under the same name
// panics; join the table under an alias instead.
func (s *Selector) Join(j Join) *Selector {
	if name := j.Name(); name == s.table || s.Joined(name) {
		panic(fmt.Sprintf("dialect/sql: table %q is already joined", name))
	}
	s.joins = append(s.joins, j)
	return s
}

// InnerJoin appends an INNER JOIN on table.column = local.
func (s *Selector) InnerJoin(table, column, local string) *Selector {
	return s.Join(Join{Kind: InnerJoin, Table: table, Column: column, Local: local})
}

// LeftJoin appends a LEFT JOIN on table.column = local.
func (s *Selector) LeftJoin(table, column, local string) *Selector {
	return s.Join(Join{Kind: LeftJoin, Table: table, Column: column, Local: local})
}

// Joined reports if a table was joined under the name.
func (s *Selector) Joined(name string) bool {
	for _, j := range s.joins {
		if j.Name() == name {
			return true
		}
	}
	return false
}

// HasJoins reports if any table was joined.
func (s *Selector) HasJoins() bool { return len(s.joins) > 0 }

// Where appends a predicate. Predicates are joined with AND, and those
// rendering to an empty string are dropped.
func (s *Selector) Where(p Binder) *Selector {
	if f := s.bc.Bind(p); !f.Empty() {
		s.where = append(s.where, f)
	}
	return s
}

// GroupBy appends columns to the GROUP BY clause.
func (s *Selector) GroupBy(columns ...string) *Selector {
	s.group = append(s.group, columns...)
	return s
}

// Grouped reports if the column is in the GROUP BY clause.
func (s *Selector) Grouped(column string) bool {
	for _, c := range s.group {
		if c == column {
			return true
		}
	}
	return false
}

// OrderBy appends columns to the ORDER BY clause.
func (s *Selector) OrderBy(columns ...string) *Selector {
	s.order = append(s.order, columns...)
	return s
}

// Limit binds the LIMIT clause. Calling it twice panics.
func (s *Selector) Limit(n int) *Selector {
	if s.limit != nil {
		panic("dialect/sql: limit was already set")
	}
	s.limit = s.bc.Accept(n)
	return s
}

// Offset binds the OFFSET clause. Calling it twice panics.
func (s *Selector) Offset(n int) *Selector {
	if s.offset != nil {
		panic("dialect/sql: offset was already set")
	}
	s.offset = s.bc.Accept(n)
	return s
}

// Query returns the statement and its arguments. The clause order is
//
//	SELECT <list> FROM <table> [JOIN]* [WHERE] [GROUP BY] [ORDER BY] [LIMIT] [OFFSET];
//
// It panics if the select list or the table is empty, and if the
// statement was already built.
func (s *Selector) Query() (string, []any) {
	if len(s.items) == 0 {
		panic("dialect/sql: select statement has an empty select list")
	}
	if s.table == "" {
		panic("dialect/sql: select statement has no table")
	}
	rc := newRenderContext(s.bc)
	rc.WriteString("SELECT ").Write(JoinFragments(", ", s.items))
	rc.WriteString(" FROM ").WriteString(s.table)
	for _, j := range s.joins {
		rc.WriteString(" ").WriteString(j.Kind.String()).WriteString(" ").WriteString(j.Table)
		if j.Alias != "" {
			rc.WriteString(" AS ").WriteString(j.Alias)
		}
		rc.WriteString(" ON ").WriteString(Qualify(j.Name(), j.Column)).
			WriteString(" = ").WriteString(Qualify(s.table, j.Local))
	}
	writeWhere(rc, s.where)
	if len(s.group) > 0 {
		rc.WriteString(" GROUP BY ").WriteString(strings.Join(s.group, ", "))
	}
	if len(s.order) > 0 {
		rc.WriteString(" ORDER BY ").WriteString(strings.Join(s.order, ", "))
	}
	if s.limit != nil {
		rc.WriteString(" LIMIT ").Write(s.limit)
	}
	if s.offset != nil {
		rc.WriteString(" OFFSET ").Write(s.offset)
	}
	rc.WriteString(";")
	return rc.finish()
}

func writeWhere(rc *RenderContext, preds []Fragment) {
	if len(preds) == 0 {
		return
	}
	rc.WriteString(" WHERE ").Write(JoinFragments(" AND ", preds))
}

func writeReturning(rc *RenderContext, columns []string) {
	if len(columns) == 0 {
		return
	}
	if !dialect.SupportsReturning(rc.bc.dialect) {
		panic(fmt.Sprintf("dialect/sql: %s does not support RETURNING", rc.bc.dialect))
	}
	rc.WriteString(" RETURNING ").WriteString(strings.Join(columns, ", "))
}

// InsertBuilder is a builder for the INSERT statement of a single row.
type InsertBuilder struct {
	bc        *BindContext
	table     string
	columns   []string
	values    []Fragment
	returning []string
}

// BindContext returns the context values are bound to.
func (i *InsertBuilder) BindContext() *BindContext { return i.bc }

// Dialect returns the dialect of the statement.
func (i *InsertBuilder) Dialect() string { return i.bc.dialect }

// Table returns the table of the statement.
func (i *InsertBuilder) Table() string { return i.table }

// Set appends a column and its value. If v is a Binder, it is bound as an
// expression.
func (i *InsertBuilder) Set(column string, v any) *InsertBuilder {
	i.columns = append(i.columns, column)
	i.values = append(i.values, i.bc.operand(v))
	return i
}

// Columns returns the inserted columns.
func (i *InsertBuilder) Columns() []string { return i.columns }

// Returning adds the RETURNING clause to the insert statement.
func (i *InsertBuilder) Returning(columns ...string) *InsertBuilder {
	i.returning = append(i.returning, columns...)
	return i
}

// Query returns the statement and its arguments. An insert without
// columns inserts the default values.
func (i *InsertBuilder) Query() (string, []any) {
	rc := newRenderContext(i.bc)
	rc.WriteString("INSERT INTO ").WriteString(i.table)
	switch {
	case len(i.columns) > 0:
		rc.WriteString(" (").WriteString(strings.Join(i.columns, ", ")).WriteString(") VALUES (")
		for j, v := range i.values {
			if j > 0 {
				rc.WriteString(", ")
			}
			rc.Write(v)
		}
		rc.WriteString(")")
	case i.bc.dialect == dialect.MySQL:
		rc.WriteString(" () VALUES ()")
	default:
		rc.WriteString(" DEFAULT VALUES")
	}
	writeReturning(rc, i.returning)
	rc.WriteString(";")
	return rc.finish()
}

// UpdateBuilder is a builder for the UPDATE statement.
type UpdateBuilder struct {
	bc        *BindContext
	table     string
	columns   []string
	values    []Fragment
	where     []Fragment
	returning []string
}

// BindContext returns the context values are bound to.
func (u *UpdateBuilder) BindContext() *BindContext { return u.bc }

// Dialect returns the dialect of the statement.
func (u *UpdateBuilder) Dialect() string { return u.bc.dialect }

// Table returns the table of the statement.
func (u *UpdateBuilder) Table() string { return u.table }

// Set appends a "column = value" assignment. The value is always bound as
// a concrete value.
func (u *UpdateBuilder) Set(column string, v any) *UpdateBuilder {
	u.columns = append(u.columns, column)
	u.values = append(u.values, u.bc.Accept(v))
	return u
}

// SetNull appends a "column = NULL" assignment.
func (u *UpdateBuilder) SetNull(column string) *UpdateBuilder {
	u.columns = append(u.columns, column)
	u.values = append(u.values, Text("NULL"))
	return u
}

// Empty reports if the statement has no assignments.
func (u *UpdateBuilder) Empty() bool { return len(u.columns) == 0 }

// Columns returns the assigned columns.
func (u *UpdateBuilder) Columns() []string { return u.columns }

// Where appends a predicate, with the same semantics as Selector.Where.
func (u *UpdateBuilder) Where(p Binder) *UpdateBuilder {
	if f := u.bc.Bind(p); !f.Empty() {
		u.where = append(u.where, f)
	}
	return u
}

// Returning adds the RETURNING clause to the update statement.
func (u *UpdateBuilder) Returning(columns ...string) *UpdateBuilder {
	u.returning = append(u.returning, columns...)
	return u
}

// Query returns the statement and its arguments. It panics if there are
// no assignments.
func (u *UpdateBuilder) Query() (string, []any) {
	if len(u.columns) == 0 {
		panic("dialect/sql: update statement has no assignments")
	}
	rc := newRenderContext(u.bc)
	rc.WriteString("UPDATE ").WriteString(u.table).WriteString(" SET ")
	for j, c := range u.columns {
		if j > 0 {
			rc.WriteString(", ")
		}
		rc.WriteString(c).WriteString(" = ").Write(u.values[j])
	}
	writeWhere(rc, u.where)
	writeReturning(rc, u.returning)
	rc.WriteString(";")
	return rc.finish()
}

// DeleteBuilder is a builder for the DELETE statement.
type DeleteBuilder struct {
	bc        *BindContext
	table     string
	where     []Fragment
	returning []string
}

// BindContext returns the context values are bound to.
func (d *DeleteBuilder) BindContext() *BindContext { return d.bc }

// Dialect returns the dialect of the statement.
func (d *DeleteBuilder) Dialect() string { return d.bc.dialect }

// Table returns the table of the statement.
func (d *DeleteBuilder) Table() string { return d.table }

// Where appends a predicate, with the same semantics as Selector.Where.
func (d *DeleteBuilder) Where(p Binder) *DeleteBuilder {
	if f := d.bc.Bind(p); !f.Empty() {
		d.where = append(d.where, f)
	}
	return d
}

// WhereIDEq appends the "id = ?" predicate.
func (d *DeleteBuilder) WhereIDEq(id any) *DeleteBuilder {
	return d.Where(EQ("id", id))
}

// Returning adds the RETURNING clause to the delete statement.
func (d *DeleteBuilder) Returning(columns ...string) *DeleteBuilder {
	d.returning = append(d.returning, columns...)
	return d
}

// Query returns the statement and its arguments.
func (d *DeleteBuilder) Query() (string, []any) {
	rc := newRenderContext(d.bc)
	rc.WriteString("DELETE FROM ").WriteString(d.table)
	writeWhere(rc, d.where)
	writeReturning(rc, d.returning)
	rc.WriteString(";")
	return rc.finish()
}

// TableBuilder is a builder for the CREATE TABLE statement.
type TableBuilder struct {
	bc          *BindContext
	table       string
	exists      bool
	columns     []string
	constraints []string
	verbatim    []string
}

// IfNotExists appends the IF NOT EXISTS clause.
func (t *TableBuilder) IfNotExists() *TableBuilder {
	t.exists = true
	return t
}

// Column appends a column definition, for example
// Column("id", "INTEGER PRIMARY KEY").
func (t *TableBuilder) Column(name, def string) *TableBuilder {
	t.columns = append(t.columns, strings.TrimSpace(name+" "+def))
	return t
}

// Constraint appends a table constraint, for example
// "FOREIGN KEY (todo_id) REFERENCES todo (id)".
func (t *TableBuilder) Constraint(def string) *TableBuilder {
	t.constraints = append(t.constraints, def)
	return t
}

// Verbatim appends text as is after the constraints.
func (t *TableBuilder) Verbatim(text string) *TableBuilder {
	t.verbatim = append(t.verbatim, text)
	return t
}

// Query returns the statement. It panics if no column was defined.
func (t *TableBuilder) Query() (string, []any) {
	if len(t.columns) == 0 {
		panic(fmt.Sprintf("dialect/sql: table %q has no columns", t.table))
	}
	rc := newRenderContext(t.bc)
	rc.WriteString("CREATE TABLE ")
	if t.exists {
		rc.WriteString("IF NOT EXISTS ")
	}
	defs := make([]string, 0, len(t.columns)+len(t.constraints)+len(t.verbatim))
	defs = append(defs, t.columns...)
	defs = append(defs, t.constraints...)
	defs = append(defs, t.verbatim...)
	rc.WriteString(t.table).WriteString(" (").WriteString(strings.Join(defs, ", ")).WriteString(");")
	return rc.finish()
}
