package linkql

import (
	"context"
	"fmt"

	"github.com/syssam/linkql/dialect/sql"
)

// Links is an ordered, keyed set of links whose number and outputs are
// only known at runtime. Its output is a map from key to link output.
// Every phase fans out to the entries in the order they were added.
//
// Entries are erased links (see EraseSelect and friends). Attaching the
// set to an operation its entries do not support panics.
type Links struct {
	entries []linkEntry
}

type linkEntry struct {
	key  string
	link any
}

// NewLinks returns an empty link set.
func NewLinks() *Links { return &Links{} }

// Add appends a link under key. Adding a key twice panics.
func (l *Links) Add(key string, link any) *Links {
	if l.Has(key) {
		panic(fmt.Sprintf("linkql: link %q was already added", key))
	}
	l.entries = append(l.entries, linkEntry{key: key, link: link})
	return l
}

// Has reports if a link was added under key.
func (l *Links) Has(key string) bool {
	for _, e := range l.entries {
		if e.key == key {
			return true
		}
	}
	return false
}

// Keys returns the keys in insertion order.
func (l *Links) Keys() []string {
	keys := make([]string, len(l.entries))
	for i, e := range l.entries {
		keys[i] = e.key
	}
	return keys
}

// Len returns the number of links in the set.
func (l *Links) Len() int { return len(l.entries) }

func (l *Links) linkCount() int { return len(l.entries) }

func entry[L any](e linkEntry, op string) L {
	v, ok := e.link.(L)
	if !ok {
		panic(fmt.Sprintf("linkql: link %q (%T) cannot be attached to %s", e.key, e.link, op))
	}
	return v
}

// keyedInner is the per-row state of a link set.
type keyedInner struct {
	keys   []string
	inners []Inner[any]
}

func (k *keyedInner) FromRow(b Base, r *sql.Row) error {
	for i, in := range k.inners {
		if err := in.FromRow(b, r); err != nil {
			return fmt.Errorf("link %q: %w", k.keys[i], err)
		}
	}
	return nil
}

func (k *keyedInner) SubOp(ctx context.Context, ex Executor) error {
	fns := make([]func(context.Context) error, len(k.inners))
	for i, in := range k.inners {
		fns[i] = func(ctx context.Context) error {
			if err := in.SubOp(ctx, ex); err != nil {
				return fmt.Errorf("link %q: %w", k.keys[i], err)
			}
			return nil
		}
	}
	return runSiblings(ctx, fns...)
}

func (k *keyedInner) Take() (map[string]any, error) {
	out := make(map[string]any, len(k.inners))
	for i, in := range k.inners {
		v, err := in.Take()
		if err != nil {
			return nil, fmt.Errorf("link %q: %w", k.keys[i], err)
		}
		out[k.keys[i]] = v
	}
	return out, nil
}

// OnSelect implements SelectLink.
func (l *Links) OnSelect(b Base, s *sql.Selector) {
	for _, e := range l.entries {
		entry[SelectLink[any]](e, "a select").OnSelect(b, s)
	}
}

// NewSelectInner implements SelectLink.
func (l *Links) NewSelectInner() Inner[map[string]any] {
	k := &keyedInner{keys: l.Keys(), inners: make([]Inner[any], len(l.entries))}
	for i, e := range l.entries {
		k.inners[i] = entry[SelectLink[any]](e, "a select").NewSelectInner()
	}
	return k
}

// SubOpBatch implements BatchSelectLink.
func (l *Links) SubOpBatch(ctx context.Context, ex Executor, inners []Inner[map[string]any]) error {
	fns := make([]func(context.Context) error, len(l.entries))
	for i, e := range l.entries {
		column := make([]Inner[any], len(inners))
		for j, in := range inners {
			column[j] = in.(*keyedInner).inners[i]
		}
		link := entry[SelectLink[any]](e, "a select")
		fns[i] = func(ctx context.Context) error {
			if err := subOpAll(ctx, ex, link, column); err != nil {
				return fmt.Errorf("link %q: %w", e.key, err)
			}
			return nil
		}
	}
	return runSiblings(ctx, fns...)
}

// OnInsert implements InsertLink.
func (l *Links) OnInsert(b Base, ins *sql.InsertBuilder) error {
	var errs []error
	for _, e := range l.entries {
		if err := entry[InsertLink[any]](e, "an insert").OnInsert(b, ins); err != nil {
			errs = append(errs, NewValidationError(e.key, err))
		}
	}
	return NewAggregateError(errs...)
}

// NewInsertInner implements InsertLink.
func (l *Links) NewInsertInner() Inner[map[string]any] {
	k := &keyedInner{keys: l.Keys(), inners: make([]Inner[any], len(l.entries))}
	for i, e := range l.entries {
		k.inners[i] = entry[InsertLink[any]](e, "an insert").NewInsertInner()
	}
	return k
}

// OnUpdate implements UpdateLink.
func (l *Links) OnUpdate(b Base, up *sql.UpdateBuilder) error {
	var errs []error
	for _, e := range l.entries {
		if err := entry[UpdateLink[any]](e, "an update").OnUpdate(b, up); err != nil {
			errs = append(errs, NewValidationError(e.key, err))
		}
	}
	return NewAggregateError(errs...)
}

// NewUpdateInner implements UpdateLink.
func (l *Links) NewUpdateInner() Inner[map[string]any] {
	k := &keyedInner{keys: l.Keys(), inners: make([]Inner[any], len(l.entries))}
	for i, e := range l.entries {
		k.inners[i] = entry[UpdateLink[any]](e, "an update").NewUpdateInner()
	}
	return k
}

// NewDeleteInner implements DeleteLink.
func (l *Links) NewDeleteInner() DeleteInner[map[string]any] {
	k := &keyedDeleteInner{keys: l.Keys(), inners: make([]DeleteInner[any], len(l.entries))}
	for i, e := range l.entries {
		k.inners[i] = entry[DeleteLink[any]](e, "a delete").NewDeleteInner()
	}
	return k
}

type keyedDeleteInner struct {
	keys   []string
	inners []DeleteInner[any]
}

func (k *keyedDeleteInner) FirstSubOp(ctx context.Context, ex Executor, b Base, id int64) error {
	for i, in := range k.inners {
		if err := in.FirstSubOp(ctx, ex, b, id); err != nil {
			return fmt.Errorf("link %q: %w", k.keys[i], err)
		}
	}
	return nil
}

func (k *keyedDeleteInner) FromRow(b Base, r *sql.Row) error {
	for i, in := range k.inners {
		if err := in.FromRow(b, r); err != nil {
			return fmt.Errorf("link %q: %w", k.keys[i], err)
		}
	}
	return nil
}

func (k *keyedDeleteInner) SecondSubOp(ctx context.Context, ex Executor) error {
	for i, in := range k.inners {
		if err := in.SecondSubOp(ctx, ex); err != nil {
			return fmt.Errorf("link %q: %w", k.keys[i], err)
		}
	}
	return nil
}

func (k *keyedDeleteInner) Take() (map[string]any, error) {
	out := make(map[string]any, len(k.inners))
	for i, in := range k.inners {
		v, err := in.Take()
		if err != nil {
			return nil, fmt.Errorf("link %q: %w", k.keys[i], err)
		}
		out[k.keys[i]] = v
	}
	return out, nil
}

// EraseSelect boxes the output of a select link.
func EraseSelect[O any](l SelectLink[O]) SelectLink[any] {
	return erasedSelect[O]{l}
}

type erasedSelect[O any] struct{ l SelectLink[O] }

func (e erasedSelect[O]) OnSelect(b Base, s *sql.Selector) { e.l.OnSelect(b, s) }

func (e erasedSelect[O]) NewSelectInner() Inner[any] {
	return erasedInner[O]{e.l.NewSelectInner()}
}

func (e erasedSelect[O]) SubOpBatch(ctx context.Context, ex Executor, inners []Inner[any]) error {
	typed := make([]Inner[O], len(inners))
	for i, in := range inners {
		typed[i] = in.(erasedInner[O]).in
	}
	return subOpAll(ctx, ex, e.l, typed)
}

// EraseInsert boxes the output of an insert link.
func EraseInsert[O any](l InsertLink[O]) InsertLink[any] {
	return erasedInsert[O]{l}
}

type erasedInsert[O any] struct{ l InsertLink[O] }

func (e erasedInsert[O]) OnInsert(b Base, ins *sql.InsertBuilder) error { return e.l.OnInsert(b, ins) }

func (e erasedInsert[O]) NewInsertInner() Inner[any] { return erasedInner[O]{e.l.NewInsertInner()} }

// EraseUpdate boxes the output of an update link.
func EraseUpdate[O any](l UpdateLink[O]) UpdateLink[any] {
	return erasedUpdate[O]{l}
}

type erasedUpdate[O any] struct{ l UpdateLink[O] }

func (e erasedUpdate[O]) OnUpdate(b Base, up *sql.UpdateBuilder) error { return e.l.OnUpdate(b, up) }

func (e erasedUpdate[O]) NewUpdateInner() Inner[any] { return erasedInner[O]{e.l.NewUpdateInner()} }

// EraseDelete boxes the output of a delete link.
func EraseDelete[O any](l DeleteLink[O]) DeleteLink[any] {
	return erasedDelete[O]{l}
}

type erasedDelete[O any] struct{ l DeleteLink[O] }

func (e erasedDelete[O]) NewDeleteInner() DeleteInner[any] {
	return erasedDeleteInner[O]{e.l.NewDeleteInner()}
}

type erasedInner[O any] struct{ in Inner[O] }

func (e erasedInner[O]) FromRow(b Base, r *sql.Row) error { return e.in.FromRow(b, r) }

func (e erasedInner[O]) SubOp(ctx context.Context, ex Executor) error { return e.in.SubOp(ctx, ex) }

func (e erasedInner[O]) Take() (any, error) {
	v, err := e.in.Take()
	return v, err
}

type erasedDeleteInner[O any] struct{ in DeleteInner[O] }

func (e erasedDeleteInner[O]) FirstSubOp(ctx context.Context, ex Executor, b Base, id int64) error {
	return e.in.FirstSubOp(ctx, ex, b, id)
}

func (e erasedDeleteInner[O]) FromRow(b Base, r *sql.Row) error { return e.in.FromRow(b, r) }

func (e erasedDeleteInner[O]) SecondSubOp(ctx context.Context, ex Executor) error {
	return e.in.SecondSubOp(ctx, ex)
}

func (e erasedDeleteInner[O]) Take() (any, error) {
	v, err := e.in.Take()
	return v, err
}
