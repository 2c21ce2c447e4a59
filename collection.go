package linkql

import (
	"github.com/syssam/linkql/dialect/sql"
)

// Collection describes how a table maps to its attribute type T and to its
// partial-update type P. The id column is owned by the operations and is
// never part of Members.
//
// A hand written collection typically looks like:
//
//	type todos struct{}
//
//	func (todos) Table() string     { return "todo" }
//	func (todos) Members() []string { return []string{"title", "done"} }
//	func (todos) OnSelect(s *sql.Selector, scoped bool) {
//		linkql.SelectMembers(s, "todo", scoped, "title", "done")
//	}
//	...
type Collection[T, P any] interface {
	// Table returns the table name.
	Table() string
	// Members returns the attribute columns, in declaration order.
	Members() []string
	// OnSelect appends the attribute columns to the select list. When scoped
	// is true, columns are selected as "table.col AS table_col".
	OnSelect(s *sql.Selector, scoped bool)
	// OnInsert appends the attribute values of data to the insert.
	OnInsert(data T, ins *sql.InsertBuilder) error
	// OnUpdate appends an assignment for every member the patch sets.
	OnUpdate(patch P, up *sql.UpdateBuilder) error
	// FromRowNoScope decodes the attributes from unaliased columns.
	FromRowNoScope(r *sql.Row) (T, error)
	// FromRowScoped decodes the attributes from scoped aliases.
	FromRowScoped(r *sql.Row) (T, error)
}

// DeferredBinder is implemented by collections whose bound values are only
// known at runtime. Statements over such collections use deferred binding
// on every dialect.
type DeferredBinder interface {
	DeferredBinding() bool
}

// SelectMembers appends the member columns of table to the select list.
func SelectMembers(s *sql.Selector, table string, scoped bool, members ...string) {
	for _, m := range members {
		if scoped {
			s.Select(sql.Scoped(table, m))
		} else {
			s.Select(m)
		}
	}
}

// MemberColumn returns the name under which a member is read from a row.
func MemberColumn(table, member string, scoped bool) string {
	if scoped {
		return sql.Alias(table, member)
	}
	return member
}

// ApplyPatch appends "column = value" to the update if the patch is set.
func ApplyPatch[T any](up *sql.UpdateBuilder, column string, p Patch[T]) {
	if v, ok := p.Get(); ok {
		up.Set(column, v)
	}
}
