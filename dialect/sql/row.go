package sql

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/syssam/linkql/dialect"
)

// DecodeError is returned when a column of a fetched row cannot be
// decoded into the requested type.
type DecodeError struct {
	Column string
	Err    error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("dialect/sql: decode column %q: %v", e.Column, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error { return e.Err }

// ErrColumnNotFound is wrapped by DecodeError when the row has no column
// with the requested name.
var ErrColumnNotFound = errors.New("column not found")

// errNullColumn is wrapped by DecodeError when a NULL is decoded into a
// non-nullable value.
var errNullColumn = errors.New("unexpected NULL value")

// Row is a fetched row supporting lookup by column name.
type Row struct {
	columns []string
	values  map[string]any
}

// NewRow returns a row from parallel column and value slices.
func NewRow(columns []string, values []any) *Row {
	r := &Row{columns: columns, values: make(map[string]any, len(columns))}
	for i, c := range columns {
		r.values[c] = values[i]
	}
	return r
}

// Columns returns the column names in the order of the select list.
func (r *Row) Columns() []string { return r.columns }

// Rescoped returns a copy of the row in which every column scoped by from
// ("from_col") is also readable under the scope of to ("to_col"). It lets
// a collection decode its columns selected under a join alias.
func (r *Row) Rescoped(from, to string) *Row {
	c := &Row{columns: slices.Clone(r.columns), values: maps.Clone(r.values)}
	prefix := from + "_"
	for _, col := range r.columns {
		rest, ok := strings.CutPrefix(col, prefix)
		if !ok {
			continue
		}
		name := to + "_" + rest
		if _, ok := c.values[name]; !ok {
			c.columns = append(c.columns, name)
		}
		c.values[name] = r.values[col]
	}
	return c
}

// Get returns the raw value of the column.
func (r *Row) Get(column string) (any, bool) {
	v, ok := r.values[column]
	return v, ok
}

// ColumnValue decodes the named column into T. NULL values are reported
// as a DecodeError; use NullableValue for nullable columns.
func ColumnValue[T any](r *Row, column string) (T, error) {
	v, err := NullableValue[T](r, column)
	if err != nil {
		var zero T
		return zero, err
	}
	if v == nil {
		var zero T
		return zero, &DecodeError{Column: column, Err: errNullColumn}
	}
	return *v, nil
}

// NullableValue decodes the named column into *T, nil for NULL.
func NullableValue[T any](r *Row, column string) (*T, error) {
	raw, ok := r.values[column]
	if !ok {
		return nil, &DecodeError{Column: column, Err: ErrColumnNotFound}
	}
	var n sql.Null[T]
	if err := n.Scan(raw); err != nil {
		return nil, &DecodeError{Column: column, Err: err}
	}
	if !n.Valid {
		return nil, nil
	}
	return &n.V, nil
}

// ScanRows reads all rows and closes them.
func ScanRows(rows ColumnScanner) (_ []*Row, rerr error) {
	defer func() { rerr = errors.Join(rerr, rows.Close()) }()
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []*Row
	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = bytes.Clone(b)
			}
		}
		out = append(out, NewRow(columns, values))
	}
	return out, rows.Err()
}

// FetchAll executes the query and returns all rows.
func FetchAll(ctx context.Context, ex dialect.ExecQuerier, q Querier) ([]*Row, error) {
	query, args := q.Query()
	var rows Rows
	if err := ex.Query(ctx, query, args, &rows); err != nil {
		return nil, err
	}
	return ScanRows(rows)
}

// FetchOne executes the query and returns its first row, or ErrNoRows.
func FetchOne(ctx context.Context, ex dialect.ExecQuerier, q Querier) (*Row, error) {
	rows, err := FetchAll(ctx, ex, q)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	return rows[0], nil
}

// FetchOptional executes the query and returns its first row, or nil if
// the query returned no rows.
func FetchOptional(ctx context.Context, ex dialect.ExecQuerier, q Querier) (*Row, error) {
	row, err := FetchOne(ctx, ex, q)
	if errors.Is(err, ErrNoRows) {
		return nil, nil
	}
	return row, err
}

// Execute executes a statement that returns no rows.
func Execute(ctx context.Context, ex dialect.ExecQuerier, q Querier) (Result, error) {
	query, args := q.Query()
	var res Result
	if err := ex.Exec(ctx, query, args, &res); err != nil {
		return nil, err
	}
	return res, nil
}
