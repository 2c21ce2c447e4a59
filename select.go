package linkql

import (
	"context"
	"encoding/json"

	"github.com/syssam/linkql/dialect/sql"
)

// Output is the result tree of a composed operation.
type Output[T, L any] struct {
	ID    int64 `json:"id"`
	Attr  T     `json:"attr"`
	Links L     `json:"links"`
}

// Erase returns the output with its attributes and links boxed.
func (o *Output[T, L]) Erase() *Output[any, any] {
	if o == nil {
		return nil
	}
	return &Output[any, any]{ID: o.ID, Attr: o.Attr, Links: o.Links}
}

// String returns the JSON encoding of the output.
func (o *Output[T, L]) String() string {
	b, err := json.Marshal(o)
	if err != nil {
		return err.Error()
	}
	return string(b)
}

// SelectOp is a select over a collection with links attached.
//
//	out, err := linkql.Select(Students, relation.ManyToMany(Courses, relation.JunctionOf("student", "course")).Select()).
//		WhereID(1).
//		One(ctx, client)
type SelectOp[T, P, O any] struct {
	coll   Collection[T, P]
	link   SelectLink[O]
	where  []sql.Binder
	joins  []sql.Join
	items  []func(Base, *sql.Selector)
	order  []string
	limit  *int
	offset *int
}

// Select returns a select over c with the link attached. Pass NoLinks()
// to select the collection alone.
func Select[T, P, O any](c Collection[T, P], link SelectLink[O]) *SelectOp[T, P, O] {
	return &SelectOp[T, P, O]{coll: c, link: link}
}

// Where appends predicates, joined with AND. Columns referenced by the
// predicates should be qualified once links are attached.
func (q *SelectOp[T, P, O]) Where(ps ...sql.Binder) *SelectOp[T, P, O] {
	q.where = append(q.where, ps...)
	return q
}

// WhereID filters the base rows by id.
func (q *SelectOp[T, P, O]) WhereID(id int64) *SelectOp[T, P, O] {
	return q.Where(sql.EQ(sql.Qualify(q.coll.Table(), "id"), id))
}

// Join appends a join to the base statement. Joined selects decode the
// base columns by their scoped aliases.
func (q *SelectOp[T, P, O]) Join(j sql.Join) *SelectOp[T, P, O] {
	q.joins = append(q.joins, j)
	return q
}

// Modify registers a function that edits the base statement after the
// collection and the link contributed to it.
func (q *SelectOp[T, P, O]) Modify(fn func(Base, *sql.Selector)) *SelectOp[T, P, O] {
	q.items = append(q.items, fn)
	return q
}

// OrderBy sets the order of the base rows. Rows are ordered by id if it
// is not set.
func (q *SelectOp[T, P, O]) OrderBy(columns ...string) *SelectOp[T, P, O] {
	q.order = append(q.order, columns...)
	return q
}

// Limit limits the number of base rows.
func (q *SelectOp[T, P, O]) Limit(n int) *SelectOp[T, P, O] {
	q.limit = &n
	return q
}

// Offset skips the first n base rows.
func (q *SelectOp[T, P, O]) Offset(n int) *SelectOp[T, P, O] {
	q.offset = &n
	return q
}

// One returns the only row matching the select. It returns a
// *NotFoundError if there is none and a *NotSingularError if there are
// more.
func (q *SelectOp[T, P, O]) One(ctx context.Context, ex Executor) (*Output[T, O], error) {
	outs, err := q.run(ctx, ex, "select one")
	if err != nil {
		return nil, err
	}
	switch len(outs) {
	case 1:
		return outs[0], nil
	case 0:
		return nil, NewNotFoundError(q.coll.Table())
	default:
		return nil, NewNotSingularError(q.coll.Table(), len(outs))
	}
}

// Optional returns the only row matching the select, or nil if there is
// none.
func (q *SelectOp[T, P, O]) Optional(ctx context.Context, ex Executor) (*Output[T, O], error) {
	outs, err := q.run(ctx, ex, "select optional")
	if err != nil {
		return nil, err
	}
	switch len(outs) {
	case 0:
		return nil, nil
	case 1:
		return outs[0], nil
	default:
		return nil, NewNotSingularError(q.coll.Table(), len(outs))
	}
}

// All returns all rows matching the select. Links that support it resolve
// their sub-ops for all rows in one round-trip.
func (q *SelectOp[T, P, O]) All(ctx context.Context, ex Executor) ([]*Output[T, O], error) {
	return q.run(ctx, ex, "select all")
}

// Selector returns the base statement of the select, as it would be
// executed on the dialect.
func (q *SelectOp[T, P, O]) Selector(dialect string) *sql.Selector {
	s, _ := q.selector(dialect)
	return s
}

func (q *SelectOp[T, P, O]) selector(dialect string) (*sql.Selector, Base) {
	base := newBase(q.coll, dialect, hasLinks(q.link) || len(q.joins) > 0)
	table := q.coll.Table()
	s := base.Builder().Select().From(table)
	if base.Scoped {
		s.Select(sql.Scoped(table, "id"))
	} else {
		s.Select("id")
	}
	q.coll.OnSelect(s, base.Scoped)
	for _, j := range q.joins {
		s.Join(j)
	}
	q.link.OnSelect(base, s)
	for _, fn := range q.items {
		fn(base, s)
	}
	for _, p := range q.where {
		s.Where(p)
	}
	if len(q.order) > 0 {
		s.OrderBy(q.order...)
	} else {
		s.OrderBy(base.Column("id"))
	}
	if q.limit != nil {
		s.Limit(*q.limit)
	}
	if q.offset != nil {
		s.Offset(*q.offset)
	}
	return s, base
}

func (q *SelectOp[T, P, O]) run(ctx context.Context, ex Executor, op string) ([]*Output[T, O], error) {
	table := q.coll.Table()
	log := opLogger(ex, op, table)
	ctx = withConcurrency(ctx, ex)
	s, base := q.selector(ex.Dialect())
	rows, err := sql.FetchAll(ctx, ex, s)
	if err != nil {
		return nil, NewQueryError(table, op, err)
	}
	outs := make([]*Output[T, O], len(rows))
	inners := make([]Inner[O], len(rows))
	for i, r := range rows {
		out, in, err := decodeSelected(q.coll, q.link, base, r)
		if err != nil {
			return nil, NewQueryError(table, "decode", err)
		}
		outs[i], inners[i] = out, in
	}
	if err := subOpAll(ctx, ex, q.link, inners); err != nil {
		return nil, NewQueryError(table, "sub-op", err)
	}
	for i, in := range inners {
		if outs[i].Links, err = in.Take(); err != nil {
			return nil, NewQueryError(table, "take", err)
		}
	}
	log.DebugContext(ctx, "linkql: select", "rows", len(outs), "scoped", base.Scoped)
	return outs, nil
}

func decodeSelected[T, P, O any](c Collection[T, P], l SelectLink[O], base Base, r *sql.Row) (*Output[T, O], Inner[O], error) {
	id, err := base.ID(r)
	if err != nil {
		return nil, nil, err
	}
	var attr T
	if base.Scoped {
		attr, err = c.FromRowScoped(r)
	} else {
		attr, err = c.FromRowNoScope(r)
	}
	if err != nil {
		return nil, nil, err
	}
	in := l.NewSelectInner()
	if err := in.FromRow(base, r); err != nil {
		return nil, nil, err
	}
	return &Output[T, O]{ID: id, Attr: attr}, in, nil
}
