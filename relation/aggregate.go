package relation

import (
	"context"

	"github.com/syssam/linkql"
	"github.com/syssam/linkql/dialect/sql"
)

// CountResult is the output of a count link.
type CountResult int64

// Count returns the link counting the junction rows of every base row
// with a correlated subquery of the base statement:
//
//	SELECT ..., (SELECT COUNT(*) FROM junction WHERE junction.from = base.id) AS junction_count
//	FROM base
//
// The subquery adds no join or grouping, so several counts and joined
// links can share one statement.
func Count(j Junction) linkql.SelectLink[CountResult] {
	return countLink{junction: j}
}

type countLink struct {
	junction Junction
}

func (l countLink) alias() string { return sql.Alias(l.junction.Table, "count") }

func (l countLink) OnSelect(b linkql.Base, s *sql.Selector) {
	j := l.junction
	sub := "(SELECT COUNT(*) FROM " + j.Table + " WHERE " + sql.Qualify(j.Table, j.From) + " = " + b.Column("id") + ")"
	s.Select(sql.As(sub, l.alias()))
}

func (l countLink) NewSelectInner() linkql.Inner[CountResult] {
	return &countInner{column: l.alias()}
}

type countInner struct {
	column string
	n      CountResult
}

func (in *countInner) FromRow(_ linkql.Base, r *sql.Row) error {
	n, err := sql.ColumnValue[int64](r, in.column)
	in.n = CountResult(n)
	return err
}

func (in *countInner) SubOp(context.Context, linkql.Executor) error { return nil }

func (in *countInner) Take() (CountResult, error) { return in.n, nil }

// Computed returns a link selecting an arbitrary expression of the base
// statement, decoded as T:
//
//	relation.Computed[int64]("LENGTH(todo.title)", "title_len")
func Computed[T any](expr, alias string) linkql.SelectLink[T] {
	return computedLink[T]{expr: expr, alias: alias}
}

type computedLink[T any] struct {
	expr, alias string
}

func (l computedLink[T]) OnSelect(_ linkql.Base, s *sql.Selector) {
	s.Select(sql.As(l.expr, l.alias))
}

func (l computedLink[T]) NewSelectInner() linkql.Inner[T] {
	return &computedInner[T]{alias: l.alias}
}

type computedInner[T any] struct {
	alias string
	v     T
}

func (in *computedInner[T]) FromRow(_ linkql.Base, r *sql.Row) (err error) {
	in.v, err = sql.ColumnValue[T](r, in.alias)
	return err
}

func (in *computedInner[T]) SubOp(context.Context, linkql.Executor) error { return nil }

func (in *computedInner[T]) Take() (T, error) { return in.v, nil }
