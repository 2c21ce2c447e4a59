package relation

import (
	"context"
	"fmt"
	"strings"

	"github.com/syssam/linkql"
	"github.com/syssam/linkql/dialect/sql"
)

// OptionalRel relates base rows to at most one row of a target collection
// through a nullable foreign key column of the base table.
type OptionalRel[T, P any] struct {
	to     linkql.Collection[T, P]
	column string
	alias  string
}

// Optional returns the relation to the target collection through the
// foreign key column of the base table. The target is joined under the
// column name without its "_id" suffix:
//
//	owner := relation.Optional(Users, "owner_id") // LEFT JOIN user AS owner
//	out, err := linkql.Select(Todos, owner.Select()).All(ctx, client)
func Optional[T, P any](to linkql.Collection[T, P], column string) *OptionalRel[T, P] {
	alias := strings.TrimSuffix(column, "_id")
	if alias == "" {
		alias = column
	}
	return &OptionalRel[T, P]{to: to, column: column, alias: alias}
}

// As returns a copy of the relation joining the target under alias. Two
// relations attached to one select must have distinct aliases, and an
// alias must differ from the base table.
func (r *OptionalRel[T, P]) As(alias string) *OptionalRel[T, P] {
	c := *r
	c.alias = alias
	return &c
}

// Column returns the foreign key column.
func (r *OptionalRel[T, P]) Column() string { return r.column }

// Alias returns the name the target is joined under.
func (r *OptionalRel[T, P]) Alias() string { return r.alias }

// Target returns the target collection.
func (r *OptionalRel[T, P]) Target() linkql.Collection[T, P] { return r.to }

// Select returns the link decoding the related row from the base row. The
// target is LEFT JOINed, so no sub-op is needed; the output is nil if the
// foreign key is NULL.
func (r *OptionalRel[T, P]) Select() linkql.SelectLink[*linkql.Output[T, linkql.Empty]] {
	return optionalSelect[T, P]{rel: r}
}

// Assign returns the insert and update link setting the foreign key.
func (r *OptionalRel[T, P]) Assign(id int64) *FKWrite {
	return &FKWrite{column: r.column, id: &id}
}

// Clear returns the insert and update link setting the foreign key to NULL.
func (r *OptionalRel[T, P]) Clear() *FKWrite {
	return &FKWrite{column: r.column}
}

type optionalSelect[T, P any] struct {
	rel *OptionalRel[T, P]
}

func (l optionalSelect[T, P]) OnSelect(_ linkql.Base, s *sql.Selector) {
	alias := l.rel.alias
	s.Join(sql.Join{Kind: sql.LeftJoin, Table: l.rel.to.Table(), Alias: alias, Column: "id", Local: l.rel.column})
	s.Select(sql.Scoped(alias, "id"))
	linkql.SelectMembers(s, alias, true, l.rel.to.Members()...)
}

func (l optionalSelect[T, P]) NewSelectInner() linkql.Inner[*linkql.Output[T, linkql.Empty]] {
	return &optionalInner[T, P]{rel: l.rel}
}

type optionalInner[T, P any] struct {
	rel *OptionalRel[T, P]
	out *linkql.Output[T, linkql.Empty]
}

func (in *optionalInner[T, P]) FromRow(_ linkql.Base, r *sql.Row) error {
	id, err := sql.NullableValue[int64](r, sql.Alias(in.rel.alias, "id"))
	if err != nil || id == nil {
		return err
	}
	attr, err := in.rel.to.FromRowScoped(r.Rescoped(in.rel.alias, in.rel.to.Table()))
	if err != nil {
		return fmt.Errorf("relation: decode %s: %w", in.rel.to.Table(), err)
	}
	in.out = &linkql.Output[T, linkql.Empty]{ID: *id, Attr: attr}
	return nil
}

func (in *optionalInner[T, P]) SubOp(context.Context, linkql.Executor) error { return nil }

func (in *optionalInner[T, P]) Take() (*linkql.Output[T, linkql.Empty], error) { return in.out, nil }

// FKWrite sets a foreign key column of the written row. Its output is the
// assigned id, nil when cleared.
type FKWrite struct {
	column string
	id     *int64
}

// OnInsert implements linkql.InsertLink.
func (w *FKWrite) OnInsert(_ linkql.Base, ins *sql.InsertBuilder) error {
	if w.id == nil {
		ins.Set(w.column, nil)
	} else {
		ins.Set(w.column, *w.id)
	}
	return nil
}

// NewInsertInner implements linkql.InsertLink.
func (w *FKWrite) NewInsertInner() linkql.Inner[*int64] { return fkInner{id: w.id} }

// OnUpdate implements linkql.UpdateLink.
func (w *FKWrite) OnUpdate(_ linkql.Base, up *sql.UpdateBuilder) error {
	if w.id == nil {
		up.SetNull(w.column)
	} else {
		up.Set(w.column, *w.id)
	}
	return nil
}

// NewUpdateInner implements linkql.UpdateLink.
func (w *FKWrite) NewUpdateInner() linkql.Inner[*int64] { return fkInner{id: w.id} }

type fkInner struct{ id *int64 }

func (fkInner) FromRow(linkql.Base, *sql.Row) error { return nil }

func (fkInner) SubOp(context.Context, linkql.Executor) error { return nil }

func (in fkInner) Take() (*int64, error) { return in.id, nil }

var (
	_ linkql.InsertLink[*int64] = (*FKWrite)(nil)
	_ linkql.UpdateLink[*int64] = (*FKWrite)(nil)
)
