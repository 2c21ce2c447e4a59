package sql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/syssam/linkql/dialect"
)

// BindMode selects how bound values reach the argument buffer.
type BindMode uint8

const (
	// Immediate appends values to the argument buffer at bind time and
	// captures the finished placeholder ($N). It requires a dialect with
	// numbered placeholders, since the number is fixed before the final
	// statement shape is known.
	Immediate BindMode = iota + 1
	// Deferred keeps values in slots until the statement is rendered. The
	// placeholder and argument position are assigned in render order.
	Deferred
)

// String implements fmt.Stringer.
func (m BindMode) String() string {
	switch m {
	case Immediate:
		return "immediate"
	case Deferred:
		return "deferred"
	default:
		return "BindMode(" + strconv.Itoa(int(m)) + ")"
	}
}

// Binder is implemented by values and expressions that can be embedded in
// a statement. Bind records whatever the value needs in the context and
// returns the fragment to be written when the statement is rendered.
type Binder interface {
	Bind(*BindContext) Fragment
}

// BindFunc is an adapter to allow the use of ordinary functions as Binder.
type BindFunc func(*BindContext) Fragment

// Bind calls f(c).
func (f BindFunc) Bind(c *BindContext) Fragment { return f(c) }

// BindContext accumulates bound values while a statement is being built.
// It is owned by exactly one statement.
type BindContext struct {
	dialect  string
	mode     BindMode
	args     []any  // Immediate.
	slots    []slot // Deferred.
	rendered bool
}

type slot struct {
	v     any
	taken bool
}

// NewBindContext returns a context for the given dialect and mode.
// It panics if Immediate binding is requested for a dialect that
// addresses arguments by order of appearance.
func NewBindContext(name string, mode BindMode) *BindContext {
	switch mode {
	case Immediate:
		if !dialect.NumberedPlaceholders(name) {
			panic(fmt.Sprintf("dialect/sql: immediate binding requires numbered placeholders, %q uses positional ones", name))
		}
	case Deferred:
	default:
		panic(fmt.Sprintf("dialect/sql: unknown bind mode %d", mode))
	}
	return &BindContext{dialect: name, mode: mode}
}

// Dialect returns the dialect name of the context.
func (c *BindContext) Dialect() string { return c.dialect }

// Mode returns the bind mode of the context.
func (c *BindContext) Mode() BindMode { return c.mode }

// Bind binds b to the context. A nil Binder yields an empty fragment.
func (c *BindContext) Bind(b Binder) Fragment {
	if b == nil {
		return nil
	}
	return b.Bind(c)
}

// Accept binds a single concrete value and returns its placeholder
// fragment. Unlike Bind, it never interprets v as an expression.
func (c *BindContext) Accept(v any) Fragment {
	c.checkOpen()
	if c.mode == Immediate {
		c.args = append(c.args, v)
		n := len(c.args)
		return Fragment{{kind: tokArg, text: "$" + strconv.Itoa(n), slot: n - 1}}
	}
	c.slots = append(c.slots, slot{v: v})
	return Fragment{{kind: tokSlot, slot: len(c.slots) - 1}}
}

// operand binds v as an expression if it is a Binder, or as a value otherwise.
func (c *BindContext) operand(v any) Fragment {
	if b, ok := v.(Binder); ok {
		return c.Bind(b)
	}
	return c.Accept(v)
}

func (c *BindContext) checkOpen() {
	if c.rendered {
		panic("dialect/sql: cannot bind to a statement that was already built")
	}
}

type tokKind uint8

const (
	tokText tokKind = iota
	tokArg          // Immediate placeholder, text already rendered.
	tokSlot         // Deferred placeholder.
)

type token struct {
	kind tokKind
	text string
	slot int
}

// Fragment is a piece of SQL text that is not finalized yet. It is a
// sequence of verbatim text and placeholders for bound values.
type Fragment []token

// Text returns a fragment holding verbatim SQL text.
func Text(s string) Fragment {
	if s == "" {
		return nil
	}
	return Fragment{{kind: tokText, text: s}}
}

// Empty reports if the fragment renders to an empty string.
func (f Fragment) Empty() bool {
	for _, t := range f {
		if t.kind != tokText || t.text != "" {
			return false
		}
	}
	return true
}

// Concat concatenates fragments.
func Concat(fs ...Fragment) Fragment {
	var n int
	for _, f := range fs {
		n += len(f)
	}
	out := make(Fragment, 0, n)
	for _, f := range fs {
		out = append(out, f...)
	}
	return out
}

// JoinFragments concatenates the non-empty fragments with sep between them.
func JoinFragments(sep string, fs []Fragment) Fragment {
	var out Fragment
	for _, f := range fs {
		if f.Empty() {
			continue
		}
		if len(out) > 0 {
			out = append(out, Text(sep)...)
		}
		out = append(out, f...)
	}
	return out
}

// RenderContext linearizes fragments into the final SQL text. It is only
// available while a statement is being built, and can be created at most
// once per BindContext.
type RenderContext struct {
	bc   *BindContext
	sb   strings.Builder
	args []any
	used []bool // Immediate arguments referenced by the text.
}

func newRenderContext(bc *BindContext) *RenderContext {
	if bc.rendered {
		panic("dialect/sql: statement was already built")
	}
	bc.rendered = true
	rc := &RenderContext{bc: bc}
	if bc.mode == Immediate {
		rc.args = bc.args
		rc.used = make([]bool, len(bc.args))
	} else {
		rc.args = make([]any, 0, len(bc.slots))
	}
	return rc
}

// WriteString writes verbatim text.
func (rc *RenderContext) WriteString(s string) *RenderContext {
	rc.sb.WriteString(s)
	return rc
}

// Write writes the fragment, assigning deferred placeholders in the order
// they are written.
func (rc *RenderContext) Write(f Fragment) *RenderContext {
	for _, t := range f {
		switch t.kind {
		case tokText:
			rc.sb.WriteString(t.text)
		case tokArg:
			rc.used[t.slot] = true
			rc.sb.WriteString(t.text)
		case tokSlot:
			rc.take(t.slot)
		}
	}
	return rc
}

func (rc *RenderContext) take(i int) {
	s := &rc.bc.slots[i]
	if s.taken {
		panic("dialect/sql: bound value should be taken only once")
	}
	rc.args = append(rc.args, s.v)
	s.v, s.taken = nil, true
	if dialect.NumberedPlaceholders(rc.bc.dialect) {
		rc.sb.WriteString("$" + strconv.Itoa(len(rc.args)))
	} else {
		rc.sb.WriteByte('?')
	}
}

// finish returns the rendered text and arguments. Every bound value must
// have been written exactly once.
func (rc *RenderContext) finish() (string, []any) {
	for i, s := range rc.bc.slots {
		if !s.taken {
			panic(fmt.Sprintf("dialect/sql: bound value #%d was never written to the statement", i+1))
		}
	}
	for i, ok := range rc.used {
		if !ok {
			panic(fmt.Sprintf("dialect/sql: argument $%d was never written to the statement", i+1))
		}
	}
	if rc.args == nil {
		rc.args = []any{}
	}
	return rc.sb.String(), rc.args
}

// Arg returns a Binder for a value whose type is fixed at compile time.
func Arg[T any](v T) Binder {
	return typedArg[T]{v: v}
}

type typedArg[T any] struct{ v T }

func (a typedArg[T]) Bind(c *BindContext) Fragment { return c.Accept(a.v) }

// Value returns a Binder for a boxed value whose type is only known at
// runtime, such as a decoded JSON field.
func Value(v any) Binder {
	return BindFunc(func(c *BindContext) Fragment { return c.Accept(v) })
}

// Raw returns a Binder for verbatim SQL text, such as a column reference.
func Raw(s string) Binder {
	return BindFunc(func(*BindContext) Fragment { return Text(s) })
}
