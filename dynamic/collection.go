// Package dynamic runs composed operations over collections and links
// that are only known at runtime, driven by JSON requests.
//
//	reg, err := dynamic.LoadFile("schema.yaml")
//	svc := dynamic.NewService(client, reg)
//	out, err := svc.SelectOne(ctx, &dynamic.SelectRequest{
//		Collection: "student",
//		Filters:    map[string]any{"id": 1},
//		Links:      map[string]json.RawMessage{"courses": nil},
//	})
package dynamic

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/syssam/linkql"
	"github.com/syssam/linkql/dialect/sql"
	"github.com/syssam/linkql/dialect/sql/schema"
)

// Field is a member of a dynamic collection.
type Field struct {
	Name     string            `yaml:"name"`
	Type     schema.ColumnType `yaml:"-"`
	Nullable bool              `yaml:"nullable"`
	Unique   bool              `yaml:"unique"`
	Size     int64             `yaml:"size"`
	Default  any               `yaml:"default"`
}

// Collection is a collection whose members are declared at runtime.
// Attributes and patches are maps from member name to value.
type Collection struct {
	name   string
	fields []Field
}

// NewCollection returns a collection over table name with the fields as
// members, in order.
func NewCollection(name string, fields ...Field) *Collection {
	return &Collection{name: name, fields: fields}
}

// Table implements linkql.Collection.
func (c *Collection) Table() string { return c.name }

// Members implements linkql.Collection.
func (c *Collection) Members() []string {
	names := make([]string, len(c.fields))
	for i, f := range c.fields {
		names[i] = f.Name
	}
	return names
}

// Fields returns the fields of the collection.
func (c *Collection) Fields() []Field { return c.fields }

// Field returns the field with the given name.
func (c *Collection) Field(name string) (Field, bool) {
	for _, f := range c.fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// DeferredBinding implements linkql.DeferredBinder. The values bound by a
// dynamic collection are decoded from requests, so statements bind them
// deferred.
func (c *Collection) DeferredBinding() bool { return true }

// OnSelect implements linkql.Collection.
func (c *Collection) OnSelect(s *sql.Selector, scoped bool) {
	linkql.SelectMembers(s, c.name, scoped, c.Members()...)
}

// OnInsert implements linkql.Collection. Every member without a default
// value must be present, unless it is nullable.
func (c *Collection) OnInsert(data map[string]any, ins *sql.InsertBuilder) error {
	if err := c.unknown(data); err != nil {
		return err
	}
	var errs []error
	for _, f := range c.fields {
		raw, ok := data[f.Name]
		if !ok {
			if !f.Nullable && f.Default == nil {
				errs = append(errs, linkql.NewValidationError(f.Name, fmt.Errorf("missing value")))
			}
			continue
		}
		v, err := f.convert(raw)
		if err != nil {
			errs = append(errs, linkql.NewValidationError(f.Name, err))
			continue
		}
		ins.Set(f.Name, sql.Value(v))
	}
	return linkql.NewAggregateError(errs...)
}

// OnUpdate implements linkql.Collection. Present members are set, absent
// members are kept.
func (c *Collection) OnUpdate(patch map[string]any, up *sql.UpdateBuilder) error {
	if err := c.unknown(patch); err != nil {
		return err
	}
	var errs []error
	for _, f := range c.fields {
		raw, ok := patch[f.Name]
		if !ok {
			continue
		}
		v, err := f.convert(raw)
		if err != nil {
			errs = append(errs, linkql.NewValidationError(f.Name, err))
			continue
		}
		up.Set(f.Name, v)
	}
	return linkql.NewAggregateError(errs...)
}

// FromRowNoScope implements linkql.Collection.
func (c *Collection) FromRowNoScope(r *sql.Row) (map[string]any, error) {
	return c.decode(r, false)
}

// FromRowScoped implements linkql.Collection.
func (c *Collection) FromRowScoped(r *sql.Row) (map[string]any, error) {
	return c.decode(r, true)
}

func (c *Collection) decode(r *sql.Row, scoped bool) (map[string]any, error) {
	attr := make(map[string]any, len(c.fields))
	for _, f := range c.fields {
		v, err := f.decode(r, linkql.MemberColumn(c.name, f.Name, scoped))
		if err != nil {
			return nil, err
		}
		attr[f.Name] = v
	}
	return attr, nil
}

// unknown reports the keys of data that are not members.
func (c *Collection) unknown(data map[string]any) error {
	var keys []string
	for k := range data {
		if _, ok := c.Field(k); !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	errs := make([]error, len(keys))
	for i, k := range keys {
		errs[i] = linkql.NewValidationError(k, linkql.ErrUnusedInput)
	}
	return linkql.NewAggregateError(errs...)
}

// convert checks a decoded JSON value against the field type and returns
// the value to bind.
func (f Field) convert(v any) (any, error) {
	if v == nil {
		if !f.Nullable {
			return nil, fmt.Errorf("null value for non-nullable field")
		}
		return nil, nil
	}
	switch f.Type {
	case schema.TypeInt:
		switch n := v.(type) {
		case float64:
			if n != math.Trunc(n) {
				return nil, fmt.Errorf("expect integer, got %v", n)
			}
			return int64(n), nil
		case json.Number:
			return n.Int64()
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		}
	case schema.TypeFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case json.Number:
			return n.Float64()
		case int64:
			return float64(n), nil
		case int:
			return float64(n), nil
		}
	case schema.TypeString, schema.TypeText:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case schema.TypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case schema.TypeTime:
		if s, ok := v.(string); ok {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return nil, fmt.Errorf("expect RFC 3339 time: %w", err)
			}
			return t, nil
		}
	case schema.TypeJSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	return nil, fmt.Errorf("expect %s, got %T", f.Type, v)
}

// decode reads the field from the row column.
func (f Field) decode(r *sql.Row, column string) (any, error) {
	var (
		v   any
		err error
	)
	switch f.Type {
	case schema.TypeInt:
		v, err = value[int64](r, column)
	case schema.TypeFloat:
		v, err = value[float64](r, column)
	case schema.TypeBool:
		v, err = value[bool](r, column)
	case schema.TypeTime:
		v, err = timeValue(r, column)
	case schema.TypeJSON:
		var s *string
		if s, err = sql.NullableValue[string](r, column); err == nil && s != nil {
			v = json.RawMessage(*s)
		}
	default:
		v, err = value[string](r, column)
	}
	if err != nil {
		return nil, err
	}
	if v == nil && !f.Nullable {
		return nil, &sql.DecodeError{Column: column, Err: fmt.Errorf("unexpected NULL value")}
	}
	return v, nil
}

// value returns the column as T, or an untyped nil for NULL.
func value[T any](r *sql.Row, column string) (any, error) {
	v, err := sql.NullableValue[T](r, column)
	if err != nil || v == nil {
		return nil, err
	}
	return *v, nil
}

// timeValue reads a time column. SQLite drivers may return times as text.
func timeValue(r *sql.Row, column string) (any, error) {
	v, err := value[time.Time](r, column)
	if err == nil {
		return v, nil
	}
	s, serr := sql.NullableValue[string](r, column)
	if serr != nil || s == nil {
		return nil, err
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, perr := time.Parse(layout, *s); perr == nil {
			return t, nil
		}
	}
	return nil, err
}

var _ linkql.Collection[map[string]any, map[string]any] = (*Collection)(nil)
