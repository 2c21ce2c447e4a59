package sql

// Nop returns a predicate that renders to nothing. It is dropped from the
// WHERE clause, which makes conditional filters easy to compose.
func Nop() Binder {
	return BindFunc(func(*BindContext) Fragment { return nil })
}

// EQ returns a "column = value" predicate. If v is a Binder, it is bound as
// an expression (for example a column reference created with Raw).
func EQ(column string, v any) Binder { return compare(column, " = ", v) }

// NEQ returns a "column <> value" predicate.
func NEQ(column string, v any) Binder { return compare(column, " <> ", v) }

// GT returns a "column > value" predicate.
func GT(column string, v any) Binder { return compare(column, " > ", v) }

// GTE returns a "column >= value" predicate.
func GTE(column string, v any) Binder { return compare(column, " >= ", v) }

// LT returns a "column < value" predicate.
func LT(column string, v any) Binder { return compare(column, " < ", v) }

// LTE returns a "column <= value" predicate.
func LTE(column string, v any) Binder { return compare(column, " <= ", v) }

// ColumnsEQ returns a predicate comparing two columns.
func ColumnsEQ(left, right string) Binder { return EQ(left, Raw(right)) }

func compare(column, op string, v any) Binder {
	return BindFunc(func(c *BindContext) Fragment {
		return Concat(Text(column+op), c.operand(v))
	})
}

// IsNull returns a "column IS NULL" predicate.
func IsNull(column string) Binder { return Raw(column + " IS NULL") }

// NotNull returns a "column IS NOT NULL" predicate.
func NotNull(column string) Binder { return Raw(column + " IS NOT NULL") }

// In returns a "column IN (...)" predicate. An empty list never matches.
func In(column string, vs ...any) Binder {
	return BindFunc(func(c *BindContext) Fragment {
		if len(vs) == 0 {
			return Text("FALSE")
		}
		items := make([]Fragment, len(vs))
		for i, v := range vs {
			items[i] = c.operand(v)
		}
		return Concat(Text(column+" IN ("), JoinFragments(", ", items), Text(")"))
	})
}

// InValues is the typed version of In.
func InValues[T any](column string, vs ...T) Binder {
	args := make([]any, len(vs))
	for i := range vs {
		args[i] = vs[i]
	}
	return In(column, args...)
}

// And joins the non-empty predicates with AND. If no predicate renders to
// text, the result is empty as well.
func And(preds ...Binder) Binder { return junction(" AND ", preds) }

// Or joins the non-empty predicates with OR.
func Or(preds ...Binder) Binder { return junction(" OR ", preds) }

func junction(op string, preds []Binder) Binder {
	return BindFunc(func(c *BindContext) Fragment {
		fs := make([]Fragment, 0, len(preds))
		for _, p := range preds {
			if f := c.Bind(p); !f.Empty() {
				fs = append(fs, f)
			}
		}
		switch len(fs) {
		case 0:
			return nil
		case 1:
			return fs[0]
		default:
			return Concat(Text("("), JoinFragments(op, fs), Text(")"))
		}
	})
}

// Not negates the predicate. Negating an empty predicate is a no-op.
func Not(pred Binder) Binder {
	return BindFunc(func(c *BindContext) Fragment {
		f := c.Bind(pred)
		if f.Empty() {
			return nil
		}
		return Concat(Text("NOT ("), f, Text(")"))
	})
}

// Field is a column whose value type is known at compile time. It provides
// type-safe predicate constructors.
//
//	var Title = sql.Field[string]("title")
//	s.Where(Title.EQ("todo_1"))
type Field[T any] string

type (
	// StringField is a text column.
	StringField = Field[string]
	// Int64Field is an integer column.
	Int64Field = Field[int64]
	// BoolField is a boolean column.
	BoolField = Field[bool]
	// Float64Field is a floating point column.
	Float64Field = Field[float64]
)

// Name returns the column name.
func (f Field[T]) Name() string { return string(f) }

// Of returns the field qualified with the given table.
func (f Field[T]) Of(table string) Field[T] { return Field[T](Qualify(table, string(f))) }

// EQ returns a predicate that checks if the field equals v.
func (f Field[T]) EQ(v T) Binder { return EQ(string(f), Arg(v)) }

// NEQ returns a predicate that checks if the field does not equal v.
func (f Field[T]) NEQ(v T) Binder { return NEQ(string(f), Arg(v)) }

// GT returns a predicate that checks if the field is greater than v.
func (f Field[T]) GT(v T) Binder { return GT(string(f), Arg(v)) }

// GTE returns a predicate that checks if the field is greater than or equal to v.
func (f Field[T]) GTE(v T) Binder { return GTE(string(f), Arg(v)) }

// LT returns a predicate that checks if the field is less than v.
func (f Field[T]) LT(v T) Binder { return LT(string(f), Arg(v)) }

// LTE returns a predicate that checks if the field is less than or equal to v.
func (f Field[T]) LTE(v T) Binder { return LTE(string(f), Arg(v)) }

// In returns a predicate that checks if the field value is in vs.
func (f Field[T]) In(vs ...T) Binder { return InValues(string(f), vs...) }

// IsNull returns a predicate that checks if the field is NULL.
func (f Field[T]) IsNull() Binder { return IsNull(string(f)) }

// NotNull returns a predicate that checks if the field is not NULL.
func (f Field[T]) NotNull() Binder { return NotNull(string(f)) }
