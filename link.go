package linkql

import (
	"context"
	"encoding/json"

	"github.com/syssam/linkql/dialect/sql"
)

// Base describes the base statement of an operation to the links
// attached to it.
type Base struct {
	Table   string // Base collection table.
	Dialect string
	// Scoped reports if base columns are read by their scoped aliases.
	// It is set whenever links are attached to a select.
	Scoped   bool
	deferred bool
}

func newBase(c interface{ Table() string }, dialect string, scoped bool) Base {
	d, ok := c.(DeferredBinder)
	return Base{
		Table:    c.Table(),
		Dialect:  dialect,
		Scoped:   scoped,
		deferred: ok && d.DeferredBinding(),
	}
}

// Column returns the base column qualified with the base table.
func (b Base) Column(name string) string { return sql.Qualify(b.Table, name) }

// IDColumn returns the name the base id is read by.
func (b Base) IDColumn() string { return MemberColumn(b.Table, "id", b.Scoped) }

// ID reads the base id from the row.
func (b Base) ID(r *sql.Row) (int64, error) { return sql.ColumnValue[int64](r, b.IDColumn()) }

// Builder returns a statement builder with the binding mode of the base.
func (b Base) Builder() *sql.DialectBuilder {
	d := sql.Dialect(b.Dialect)
	if b.deferred {
		d = d.Deferred()
	}
	return d
}

// Inner is the per-row state of a select, insert or update link. Phases
// run in order: FromRow after the base row was fetched, SubOp after every
// base row was decoded, Take last.
type Inner[O any] interface {
	// FromRow extracts the link portion of the base row.
	FromRow(b Base, r *sql.Row) error
	// SubOp issues the follow-up statements of the link, if any.
	SubOp(ctx context.Context, ex Executor) error
	// Take returns the link output.
	Take() (O, error)
}

// SelectLink is a fragment attached to a select. OnSelect contributes
// clauses (joins, select items, grouping) to the shared base statement.
type SelectLink[O any] interface {
	OnSelect(b Base, s *sql.Selector)
	NewSelectInner() Inner[O]
}

// BatchSelectLink is implemented by select links that resolve the sub-ops
// of many base rows in one round-trip.
type BatchSelectLink[O any] interface {
	SelectLink[O]
	SubOpBatch(ctx context.Context, ex Executor, inners []Inner[O]) error
}

// InsertLink is a fragment attached to an insert.
type InsertLink[O any] interface {
	OnInsert(b Base, ins *sql.InsertBuilder) error
	NewInsertInner() Inner[O]
}

// UpdateLink is a fragment attached to an update.
type UpdateLink[O any] interface {
	OnUpdate(b Base, up *sql.UpdateBuilder) error
	NewUpdateInner() Inner[O]
}

// DeleteInner is the per-row state of a delete link.
type DeleteInner[O any] interface {
	// FirstSubOp runs before the base row is deleted.
	FirstSubOp(ctx context.Context, ex Executor, b Base, id int64) error
	FromRow(b Base, r *sql.Row) error
	// SecondSubOp runs after the base row was deleted.
	SecondSubOp(ctx context.Context, ex Executor) error
	Take() (O, error)
}

// DeleteLink is a fragment attached to a delete.
type DeleteLink[O any] interface {
	NewDeleteInner() DeleteInner[O]
}

// counter is implemented by the link sets of this package. A set without
// entries leaves the base statement unscoped.
type counter interface {
	linkCount() int
}

func hasLinks(l any) bool {
	c, ok := l.(counter)
	return !ok || c.linkCount() > 0
}

// Empty is the output of NoLinks. It encodes as {}.
type Empty struct{}

// NoLinks returns the empty link set. It can be attached to any operation.
func NoLinks() NoLink { return NoLink{} }

// NoLink is the empty link set.
type NoLink struct{}

func (NoLink) linkCount() int { return 0 }

func (NoLink) OnSelect(Base, *sql.Selector) {}

func (NoLink) OnInsert(Base, *sql.InsertBuilder) error { return nil }

func (NoLink) OnUpdate(Base, *sql.UpdateBuilder) error { return nil }

func (NoLink) NewSelectInner() Inner[Empty] { return noInner{} }

func (NoLink) NewInsertInner() Inner[Empty] { return noInner{} }

func (NoLink) NewUpdateInner() Inner[Empty] { return noInner{} }

func (NoLink) NewDeleteInner() DeleteInner[Empty] { return noInner{} }

type noInner struct{}

func (noInner) FromRow(Base, *sql.Row) error                            { return nil }
func (noInner) SubOp(context.Context, Executor) error                   { return nil }
func (noInner) FirstSubOp(context.Context, Executor, Base, int64) error { return nil }
func (noInner) SecondSubOp(context.Context, Executor) error             { return nil }
func (noInner) Take() (Empty, error)                                    { return Empty{}, nil }

// Tuple is the output of a Pair. It encodes as a two element JSON array.
type Tuple[A, B any] struct {
	First  A
	Second B
}

// MarshalJSON implements json.Marshaler.
func (t Tuple[A, B]) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{t.First, t.Second})
}

// Pair composes two select links. Phases fan out to a, then b. Pairs nest
// to attach any number of statically typed links:
//
//	linkql.Pair(courses, linkql.Pair(count, mentor))
func Pair[A, B any](a SelectLink[A], b SelectLink[B]) BatchSelectLink[Tuple[A, B]] {
	return pair[A, B]{a: a, b: b}
}

type pair[A, B any] struct {
	a SelectLink[A]
	b SelectLink[B]
}

func (p pair[A, B]) OnSelect(base Base, s *sql.Selector) {
	p.a.OnSelect(base, s)
	p.b.OnSelect(base, s)
}

func (p pair[A, B]) NewSelectInner() Inner[Tuple[A, B]] {
	return &pairInner[A, B]{a: p.a.NewSelectInner(), b: p.b.NewSelectInner()}
}

func (p pair[A, B]) SubOpBatch(ctx context.Context, ex Executor, inners []Inner[Tuple[A, B]]) error {
	as := make([]Inner[A], len(inners))
	bs := make([]Inner[B], len(inners))
	for i, in := range inners {
		pi := in.(*pairInner[A, B])
		as[i], bs[i] = pi.a, pi.b
	}
	return runSiblings(ctx,
		func(ctx context.Context) error { return subOpAll(ctx, ex, p.a, as) },
		func(ctx context.Context) error { return subOpAll(ctx, ex, p.b, bs) },
	)
}

type pairInner[A, B any] struct {
	a Inner[A]
	b Inner[B]
}

func (p *pairInner[A, B]) FromRow(base Base, r *sql.Row) error {
	if err := p.a.FromRow(base, r); err != nil {
		return err
	}
	return p.b.FromRow(base, r)
}

func (p *pairInner[A, B]) SubOp(ctx context.Context, ex Executor) error {
	return runSiblings(ctx,
		func(ctx context.Context) error { return p.a.SubOp(ctx, ex) },
		func(ctx context.Context) error { return p.b.SubOp(ctx, ex) },
	)
}

func (p *pairInner[A, B]) Take() (Tuple[A, B], error) {
	var (
		t   Tuple[A, B]
		err error
	)
	if t.First, err = p.a.Take(); err != nil {
		return t, err
	}
	t.Second, err = p.b.Take()
	return t, err
}

// subOpAll runs the sub-ops of all inners of a select link, in one batch
// when the link supports it.
func subOpAll[O any](ctx context.Context, ex Executor, l SelectLink[O], inners []Inner[O]) error {
	if len(inners) == 0 {
		return nil
	}
	if b, ok := l.(BatchSelectLink[O]); ok {
		return b.SubOpBatch(ctx, ex, inners)
	}
	for _, in := range inners {
		if err := in.SubOp(ctx, ex); err != nil {
			return err
		}
	}
	return nil
}
