package linkql

import (
	"context"
	"errors"

	"github.com/syssam/linkql/dialect"
	"github.com/syssam/linkql/dialect/sql"
)

// Composed writes run in one transaction: the base statement and the
// sub-ops of every link commit together or not at all. Operations run
// through a *Tx, or through the client of a *Tx, join it instead.

// InsertOp inserts one row with links attached.
type InsertOp[T, P, O any] struct {
	coll Collection[T, P]
	data T
	link InsertLink[O]
}

// Insert returns an insert of data into c with the link attached.
func Insert[T, P, O any](c Collection[T, P], data T, link InsertLink[O]) *InsertOp[T, P, O] {
	return &InsertOp[T, P, O]{coll: c, data: data, link: link}
}

// Exec executes the insert and returns the inserted row.
func (op *InsertOp[T, P, O]) Exec(ctx context.Context, ex Executor) (*Output[T, O], error) {
	table := op.coll.Table()
	log := opLogger(ex, "insert", table)
	var out *Output[T, O]
	err := inTx(ctx, ex, func(ex Executor) error {
		base := newBase(op.coll, ex.Dialect(), false)
		ins := base.Builder().Insert(table)
		if err := op.coll.OnInsert(op.data, ins); err != nil {
			return NewValidationError(table, err)
		}
		if err := op.link.OnInsert(base, ins); err != nil {
			return err
		}
		row, err := insertRow(ctx, ex, op.coll, base, ins)
		if err != nil {
			return NewMutationError(table, "insert", err)
		}
		out, err = takeMutated(ctx, ex, op.coll, base, row, op.link.NewInsertInner())
		return err
	})
	if err != nil {
		return nil, err
	}
	log.DebugContext(ctx, "linkql: insert", "id", out.ID)
	return out, nil
}

// insertRow executes the insert and fetches the inserted row. Dialects
// without RETURNING re-select the row by its last insert id.
func insertRow[T, P any](ctx context.Context, ex Executor, c Collection[T, P], base Base, ins *sql.InsertBuilder) (*sql.Row, error) {
	if dialect.SupportsReturning(base.Dialect) {
		ins.Returning(returned(c)...)
		return sql.FetchOne(ctx, ex, ins)
	}
	res, err := sql.Execute(ctx, ex, ins)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return sql.FetchOne(ctx, ex, selectByID(c, base, sql.EQ("id", id)))
}

// UpdateOp updates the rows matching its predicates, with links attached.
type UpdateOp[T, P, O any] struct {
	coll  Collection[T, P]
	patch P
	link  UpdateLink[O]
	where []sql.Binder
}

// Update returns an update of c with the patch and the link attached.
// Links may update the rows alone, in which case the patch may be empty.
func Update[T, P, O any](c Collection[T, P], patch P, link UpdateLink[O]) *UpdateOp[T, P, O] {
	return &UpdateOp[T, P, O]{coll: c, patch: patch, link: link}
}

// Where appends predicates, joined with AND.
func (op *UpdateOp[T, P, O]) Where(ps ...sql.Binder) *UpdateOp[T, P, O] {
	op.where = append(op.where, ps...)
	return op
}

// WhereID filters the updated rows by id.
func (op *UpdateOp[T, P, O]) WhereID(id int64) *UpdateOp[T, P, O] {
	return op.Where(sql.EQ("id", id))
}

// Exec executes the update and returns the updated rows.
func (op *UpdateOp[T, P, O]) Exec(ctx context.Context, ex Executor) ([]*Output[T, O], error) {
	return op.run(ctx, ex, nil)
}

// One executes the update and returns the updated row. Unless exactly one
// row matched, the update is rolled back and a *NotFoundError or a
// *NotSingularError is returned.
func (op *UpdateOp[T, P, O]) One(ctx context.Context, ex Executor) (*Output[T, O], error) {
	outs, err := op.run(ctx, ex, func(n int) error {
		switch n {
		case 1:
			return nil
		case 0:
			return NewNotFoundError(op.coll.Table())
		default:
			return NewNotSingularError(op.coll.Table(), n)
		}
	})
	if err != nil {
		return nil, err
	}
	return outs[0], nil
}

func (op *UpdateOp[T, P, O]) run(ctx context.Context, ex Executor, check func(int) error) ([]*Output[T, O], error) {
	table := op.coll.Table()
	log := opLogger(ex, "update", table)
	var outs []*Output[T, O]
	err := inTx(ctx, ex, func(ex Executor) error {
		base := newBase(op.coll, ex.Dialect(), false)
		up := base.Builder().Update(table)
		if err := op.coll.OnUpdate(op.patch, up); err != nil {
			return NewValidationError(table, err)
		}
		if err := op.link.OnUpdate(base, up); err != nil {
			return err
		}
		if up.Empty() && !hasLinks(op.link) {
			return ErrEmptyUpdate
		}
		rows, err := op.updateRows(ctx, ex, base, up)
		if err != nil {
			return NewMutationError(table, "update", err)
		}
		if check != nil {
			if err := check(len(rows)); err != nil {
				return err
			}
		}
		outs = make([]*Output[T, O], 0, len(rows))
		for _, r := range rows {
			out, err := takeMutated(ctx, ex, op.coll, base, r, op.link.NewUpdateInner())
			if err != nil {
				return err
			}
			outs = append(outs, out)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.DebugContext(ctx, "linkql: update", "rows", len(outs))
	return outs, nil
}

// updateRows executes the update and fetches the updated rows. Without
// RETURNING, the matching ids are selected first and the rows re-selected
// after the update.
func (op *UpdateOp[T, P, O]) updateRows(ctx context.Context, ex Executor, base Base, up *sql.UpdateBuilder) ([]*sql.Row, error) {
	if up.Empty() {
		return sql.FetchAll(ctx, ex, selectByID(op.coll, base, op.where...))
	}
	if dialect.SupportsReturning(base.Dialect) {
		for _, p := range op.where {
			up.Where(p)
		}
		up.Returning(returned(op.coll)...)
		return sql.FetchAll(ctx, ex, up)
	}
	s := base.Builder().Select("id").From(base.Table).OrderBy("id")
	for _, p := range op.where {
		s.Where(p)
	}
	idRows, err := sql.FetchAll(ctx, ex, s)
	if err != nil || len(idRows) == 0 {
		return nil, err
	}
	ids := make([]any, len(idRows))
	for i, r := range idRows {
		if ids[i], err = sql.ColumnValue[int64](r, "id"); err != nil {
			return nil, err
		}
	}
	up.Where(sql.In("id", ids...))
	if _, err := sql.Execute(ctx, ex, up); err != nil {
		return nil, err
	}
	return sql.FetchAll(ctx, ex, selectByID(op.coll, base, sql.In("id", ids...)))
}

// DeleteOp deletes one row by id, with links attached.
type DeleteOp[T, P, O any] struct {
	coll Collection[T, P]
	id   int64
	link DeleteLink[O]
}

// Delete returns a delete of the row of c with the given id.
func Delete[T, P, O any](c Collection[T, P], id int64, link DeleteLink[O]) *DeleteOp[T, P, O] {
	return &DeleteOp[T, P, O]{coll: c, id: id, link: link}
}

// Exec executes the delete and returns the deleted row. It returns a
// *NotFoundError if no row has the id.
func (op *DeleteOp[T, P, O]) Exec(ctx context.Context, ex Executor) (*Output[T, O], error) {
	table := op.coll.Table()
	log := opLogger(ex, "delete", table)
	var out *Output[T, O]
	err := inTx(ctx, ex, func(ex Executor) error {
		base := newBase(op.coll, ex.Dialect(), false)
		in := op.link.NewDeleteInner()
		if err := in.FirstSubOp(ctx, ex, base, op.id); err != nil {
			return NewMutationError(table, "delete", err)
		}
		row, err := deleteRow(ctx, ex, op.coll, base, op.id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return NewNotFoundErrorWithID(table, op.id)
		case err != nil:
			return NewMutationError(table, "delete", err)
		}
		if err := in.FromRow(base, row); err != nil {
			return err
		}
		if err := in.SecondSubOp(ctx, ex); err != nil {
			return NewMutationError(table, "delete", err)
		}
		attr, err := op.coll.FromRowNoScope(row)
		if err != nil {
			return err
		}
		links, err := in.Take()
		if err != nil {
			return err
		}
		out = &Output[T, O]{ID: op.id, Attr: attr, Links: links}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.DebugContext(ctx, "linkql: delete", "id", op.id)
	return out, nil
}

// deleteRow deletes the row and returns it as it was before the delete.
func deleteRow[T, P any](ctx context.Context, ex Executor, c Collection[T, P], base Base, id int64) (*sql.Row, error) {
	del := base.Builder().Delete(base.Table).WhereIDEq(id)
	if dialect.SupportsReturning(base.Dialect) {
		del.Returning(returned(c)...)
		return sql.FetchOne(ctx, ex, del)
	}
	row, err := sql.FetchOne(ctx, ex, selectByID(c, base, sql.EQ("id", id)))
	if err != nil {
		return nil, err
	}
	if _, err := sql.Execute(ctx, ex, del); err != nil {
		return nil, err
	}
	return row, nil
}

// takeMutated runs the link phases of a written row and builds its output.
func takeMutated[T, P, O any](ctx context.Context, ex Executor, c Collection[T, P], base Base, r *sql.Row, in Inner[O]) (*Output[T, O], error) {
	id, err := base.ID(r)
	if err != nil {
		return nil, err
	}
	attr, err := c.FromRowNoScope(r)
	if err != nil {
		return nil, err
	}
	if err := in.FromRow(base, r); err != nil {
		return nil, err
	}
	if err := in.SubOp(ctx, ex); err != nil {
		return nil, NewMutationError(base.Table, "sub-op", err)
	}
	links, err := in.Take()
	if err != nil {
		return nil, err
	}
	return &Output[T, O]{ID: id, Attr: attr, Links: links}, nil
}

// returned returns the columns written rows are read back by.
func returned(c interface{ Members() []string }) []string {
	return append([]string{"id"}, c.Members()...)
}

// selectByID returns an unscoped select of the collection columns.
func selectByID[T, P any](c Collection[T, P], base Base, preds ...sql.Binder) *sql.Selector {
	s := base.Builder().Select("id").From(base.Table)
	c.OnSelect(s, false)
	for _, p := range preds {
		s.Where(p)
	}
	return s.OrderBy("id")
}
