// Package relation provides the links between collections: many-to-many
// through a junction table, optional foreign keys, and aggregates computed
// in the base statement.
package relation

import (
	"context"
	"fmt"

	"github.com/syssam/linkql"
	"github.com/syssam/linkql/dialect/sql"
	"github.com/syssam/linkql/internal/batch"
)

// MaxBatchKeys bounds the number of owner ids bound in one batched sub-op.
const MaxBatchKeys = 500

// Junction is a table joining two collections.
type Junction struct {
	Table string
	From  string // Column referencing the base collection.
	To    string // Column referencing the target collection.
}

// JunctionOf returns the conventional junction between two tables:
// <from>_<to>(<from>_id, <to>_id).
func JunctionOf(from, to string) Junction {
	return Junction{Table: from + "_" + to, From: from + "_id", To: to + "_id"}
}

// ManyToManyRel relates base rows to the rows of a target collection
// through a junction table.
type ManyToManyRel[T, P any] struct {
	to       linkql.Collection[T, P]
	junction Junction
}

// ManyToMany returns the relation to the target collection through the
// junction.
//
//	courses := relation.ManyToMany(Courses, relation.JunctionOf("student", "course"))
//	out, err := linkql.Select(Students, courses.Select()).WhereID(1).One(ctx, client)
func ManyToMany[T, P any](to linkql.Collection[T, P], j Junction) *ManyToManyRel[T, P] {
	if j.Table == "" || j.From == "" || j.To == "" {
		panic(fmt.Sprintf("relation: incomplete junction %+v", j))
	}
	return &ManyToManyRel[T, P]{to: to, junction: j}
}

// Junction returns the junction of the relation.
func (r *ManyToManyRel[T, P]) Junction() Junction { return r.junction }

// Target returns the target collection.
func (r *ManyToManyRel[T, P]) Target() linkql.Collection[T, P] { return r.to }

// Select returns the link listing the related rows.
func (r *ManyToManyRel[T, P]) Select() linkql.BatchSelectLink[[]*linkql.Output[T, linkql.Empty]] {
	return SelectThrough(r, linkql.NoLinks())
}

// Count returns the link counting the related rows in the base statement.
func (r *ManyToManyRel[T, P]) Count() linkql.SelectLink[CountResult] {
	return Count(r.junction)
}

// Connect returns the insert and update link adding junction rows from
// the written row to every target id.
func (r *ManyToManyRel[T, P]) Connect(ids ...int64) *JunctionWrite {
	return &JunctionWrite{junction: r.junction, ids: batch.Unique(ids)}
}

// Replace returns the update link replacing the junction rows of the
// updated rows. On insert it is the same as Connect.
func (r *ManyToManyRel[T, P]) Replace(ids ...int64) *JunctionWrite {
	return &JunctionWrite{junction: r.junction, ids: batch.Unique(ids), replace: true}
}

// Detach returns the delete link removing the junction rows of the deleted
// row before the row itself.
func (r *ManyToManyRel[T, P]) Detach() *JunctionDetach {
	return &JunctionDetach{junction: r.junction}
}

// SelectThrough returns the link listing the related rows, with the nested
// link attached to every related row.
func SelectThrough[T, P, O any](r *ManyToManyRel[T, P], nested linkql.SelectLink[O]) linkql.BatchSelectLink[[]*linkql.Output[T, O]] {
	return &throughSelect[T, P, O]{rel: r, nested: nested}
}

type throughSelect[T, P, O any] struct {
	rel    *ManyToManyRel[T, P]
	nested linkql.SelectLink[O]
}

// OnSelect contributes nothing: the base id is always selected and the
// related rows are listed by the sub-op.
func (l *throughSelect[T, P, O]) OnSelect(linkql.Base, *sql.Selector) {}

func (l *throughSelect[T, P, O]) NewSelectInner() linkql.Inner[[]*linkql.Output[T, O]] {
	return &throughInner[T, P, O]{link: l}
}

// SubOpBatch lists the related rows of all owners with one statement per
// chunk of owner ids:
//
//	SELECT target.id AS target_id, ..., junction.from AS junction_from
//	FROM target INNER JOIN junction ON junction.to = target.id
//	WHERE junction.from IN (...)
func (l *throughSelect[T, P, O]) SubOpBatch(ctx context.Context, ex linkql.Executor, inners []linkql.Inner[[]*linkql.Output[T, O]]) error {
	owners := make([]int64, len(inners))
	for i, in := range inners {
		owners[i] = in.(*throughInner[T, P, O]).owner
	}
	var rows []*linkql.Output[T, linkql.Tuple[int64, O]]
	for _, chunk := range batch.Chunk(batch.Unique(owners), MaxBatchKeys) {
		out, err := l.fetch(ctx, ex, chunk)
		if err != nil {
			return err
		}
		rows = append(rows, out...)
	}
	grouped := batch.GroupByKey(rows, func(o *linkql.Output[T, linkql.Tuple[int64, O]]) int64 {
		return o.Links.First
	})
	for i, group := range batch.OrderGroupsByKeys(owners, grouped) {
		list := make([]*linkql.Output[T, O], len(group))
		for j, o := range group {
			list[j] = &linkql.Output[T, O]{ID: o.ID, Attr: o.Attr, Links: o.Links.Second}
		}
		inners[i].(*throughInner[T, P, O]).rows = list
	}
	return nil
}

func (l *throughSelect[T, P, O]) fetch(ctx context.Context, ex linkql.Executor, owners []int64) ([]*linkql.Output[T, linkql.Tuple[int64, O]], error) {
	j := l.rel.junction
	from := sql.Qualify(j.Table, j.From)
	var pred sql.Binder
	if len(owners) == 1 {
		pred = sql.EQ(from, owners[0])
	} else {
		pred = sql.InValues(from, owners...)
	}
	return linkql.Select(l.rel.to, linkql.Pair(ownerLink{junction: j}, l.nested)).
		Join(sql.Join{Kind: sql.InnerJoin, Table: j.Table, Column: j.To, Local: "id"}).
		Where(pred).
		OrderBy(from, sql.Qualify(l.rel.to.Table(), "id")).
		All(ctx, ex)
}

type throughInner[T, P, O any] struct {
	link  *throughSelect[T, P, O]
	owner int64
	rows  []*linkql.Output[T, O]
}

func (in *throughInner[T, P, O]) FromRow(b linkql.Base, r *sql.Row) (err error) {
	in.owner, err = b.ID(r)
	return err
}

func (in *throughInner[T, P, O]) SubOp(ctx context.Context, ex linkql.Executor) error {
	return in.link.SubOpBatch(ctx, ex, []linkql.Inner[[]*linkql.Output[T, O]]{in})
}

func (in *throughInner[T, P, O]) Take() ([]*linkql.Output[T, O], error) {
	if in.rows == nil {
		return []*linkql.Output[T, O]{}, nil
	}
	return in.rows, nil
}

// ownerLink reads the junction column referencing the owner of a related
// row.
type ownerLink struct {
	junction Junction
}

func (l ownerLink) alias() string { return sql.Alias(l.junction.Table, l.junction.From) }

func (l ownerLink) OnSelect(_ linkql.Base, s *sql.Selector) {
	s.Select(sql.As(sql.Qualify(l.junction.Table, l.junction.From), l.alias()))
}

func (l ownerLink) NewSelectInner() linkql.Inner[int64] { return &ownerInner{column: l.alias()} }

type ownerInner struct {
	column string
	owner  int64
}

func (in *ownerInner) FromRow(_ linkql.Base, r *sql.Row) (err error) {
	in.owner, err = sql.ColumnValue[int64](r, in.column)
	return err
}

func (in *ownerInner) SubOp(context.Context, linkql.Executor) error { return nil }

func (in *ownerInner) Take() (int64, error) { return in.owner, nil }

// JunctionWrite writes the junction rows of an inserted or updated row.
// Its output is the list of connected target ids.
type JunctionWrite struct {
	junction Junction
	ids      []int64
	replace  bool
}

// OnInsert implements linkql.InsertLink.
func (w *JunctionWrite) OnInsert(linkql.Base, *sql.InsertBuilder) error { return nil }

// NewInsertInner implements linkql.InsertLink.
func (w *JunctionWrite) NewInsertInner() linkql.Inner[[]int64] {
	return &junctionWriteInner{write: w}
}

// OnUpdate implements linkql.UpdateLink.
func (w *JunctionWrite) OnUpdate(linkql.Base, *sql.UpdateBuilder) error { return nil }

// NewUpdateInner implements linkql.UpdateLink.
func (w *JunctionWrite) NewUpdateInner() linkql.Inner[[]int64] {
	return &junctionWriteInner{write: w, update: true}
}

type junctionWriteInner struct {
	write  *JunctionWrite
	update bool
	base   linkql.Base
	owner  int64
}

func (in *junctionWriteInner) FromRow(b linkql.Base, r *sql.Row) (err error) {
	in.base = b
	in.owner, err = b.ID(r)
	return err
}

func (in *junctionWriteInner) SubOp(ctx context.Context, ex linkql.Executor) error {
	j := in.write.junction
	if in.update && in.write.replace {
		del := in.base.Builder().Delete(j.Table).Where(sql.EQ(j.From, in.owner))
		if _, err := sql.Execute(ctx, ex, del); err != nil {
			return fmt.Errorf("relation: clear %s: %w", j.Table, err)
		}
	}
	for _, id := range in.write.ids {
		ins := in.base.Builder().Insert(j.Table).Set(j.From, in.owner).Set(j.To, id)
		if _, err := sql.Execute(ctx, ex, ins); err != nil {
			return fmt.Errorf("relation: connect %s: %w", j.Table, err)
		}
	}
	return nil
}

func (in *junctionWriteInner) Take() ([]int64, error) {
	return append([]int64{}, in.write.ids...), nil
}

// JunctionDetach removes the junction rows of a deleted row. Its output is
// the number of removed junction rows.
type JunctionDetach struct {
	junction Junction
}

// NewDeleteInner implements linkql.DeleteLink.
func (d *JunctionDetach) NewDeleteInner() linkql.DeleteInner[int64] {
	return &detachInner{junction: d.junction}
}

type detachInner struct {
	junction Junction
	removed  int64
}

func (in *detachInner) FirstSubOp(ctx context.Context, ex linkql.Executor, b linkql.Base, id int64) error {
	del := b.Builder().Delete(in.junction.Table).Where(sql.EQ(in.junction.From, id))
	res, err := sql.Execute(ctx, ex, del)
	if err != nil {
		return fmt.Errorf("relation: detach %s: %w", in.junction.Table, err)
	}
	in.removed, err = res.RowsAffected()
	return err
}

func (in *detachInner) FromRow(linkql.Base, *sql.Row) error { return nil }

func (in *detachInner) SecondSubOp(context.Context, linkql.Executor) error { return nil }

func (in *detachInner) Take() (int64, error) { return in.removed, nil }

var (
	_ linkql.InsertLink[[]int64] = (*JunctionWrite)(nil)
	_ linkql.UpdateLink[[]int64] = (*JunctionWrite)(nil)
	_ linkql.DeleteLink[int64]   = (*JunctionDetach)(nil)
)
