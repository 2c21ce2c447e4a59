package sql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/syssam/linkql/dialect"
)

// Driver runs statements on a *sql.DB. Its dialect selects the binding
// mode of the builders and the statements used for read-back.
type Driver struct {
	Conn
	dialect string
}

// NewDriver returns a driver of the dialect over c.
func NewDriver(dialect string, c Conn) *Driver {
	return &Driver{dialect: dialect, Conn: c}
}

// Open opens a database with database/sql. The dialect is derived from the
// driver name, so "pgx" and "sqlite3" work as well.
func Open(driverName, source string) (*Driver, error) {
	db, err := sql.Open(driverName, source)
	if err != nil {
		return nil, err
	}
	return OpenDB(DialectOf(driverName), db), nil
}

// OpenDB returns a driver of the dialect over an open database.
func OpenDB(dialect string, db *sql.DB) *Driver {
	return NewDriver(dialect, Conn{db})
}

// DialectOf maps a database/sql driver name to its dialect. Unknown names
// are returned as is.
func DialectOf(driverName string) string {
	switch {
	case driverName == "pgx" || strings.HasPrefix(driverName, dialect.Postgres):
		return dialect.Postgres
	case strings.HasPrefix(driverName, dialect.SQLite):
		return dialect.SQLite
	case strings.HasPrefix(driverName, dialect.MySQL):
		return dialect.MySQL
	}
	return driverName
}

// DB returns the underlying database.
func (d Driver) DB() *sql.DB { return d.ExecQuerier.(*sql.DB) }

// Dialect implements dialect.Driver.
func (d Driver) Dialect() string { return DialectOf(d.dialect) }

// Tx implements dialect.Driver.
func (d *Driver) Tx(ctx context.Context) (dialect.Tx, error) {
	return d.BeginTx(ctx, nil)
}

// BeginTx starts a transaction with options.
func (d *Driver) BeginTx(ctx context.Context, opts *TxOptions) (dialect.Tx, error) {
	tx, err := d.DB().BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: begin: %w", err)
	}
	return &Tx{Conn: Conn{tx}, Tx: tx}, nil
}

// Close closes the database.
func (d *Driver) Close() error { return d.DB().Close() }

// Tx is a transaction of a Driver.
type Tx struct {
	Conn
	driver.Tx
}

// ExecQuerier is the part of *sql.DB and *sql.Tx a Conn runs statements
// with.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Conn adapts an ExecQuerier to dialect.ExecQuerier. Arguments are always
// []any. Exec accepts a nil or *Result destination and Query a *Rows.
type Conn struct {
	ExecQuerier
}

func argsOf(args any) ([]any, error) {
	argv, ok := args.([]any)
	if !ok {
		return nil, fmt.Errorf("dialect/sql: invalid type %T. expect []any for args", args)
	}
	return argv, nil
}

// Exec implements dialect.ExecQuerier.
func (c Conn) Exec(ctx context.Context, query string, args, v any) error {
	argv, err := argsOf(args)
	if err != nil {
		return err
	}
	var dst *Result
	switch v := v.(type) {
	case nil:
	case *Result:
		dst = v
	default:
		return fmt.Errorf("dialect/sql: invalid type %T. expect *sql.Result", v)
	}
	res, err := c.ExecContext(ctx, query, argv...)
	if err != nil {
		return fmt.Errorf("dialect/sql: exec: %w", err)
	}
	if dst != nil {
		*dst = res
	}
	return nil
}

// Query implements dialect.ExecQuerier.
func (c Conn) Query(ctx context.Context, query string, args, v any) error {
	rows, ok := v.(*Rows)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect *sql.Rows", v)
	}
	argv, err := argsOf(args)
	if err != nil {
		return err
	}
	rs, err := c.QueryContext(ctx, query, argv...)
	if err != nil {
		return fmt.Errorf("dialect/sql: query: %w", err)
	}
	*rows = Rows{rs}
	return nil
}

var _ dialect.Driver = (*Driver)(nil)

type (
	// Rows holds the rows of a query. The embedded scanner is a pointer,
	// so Rows can be copied.
	Rows struct{ ColumnScanner }
	// Result is sql.Result.
	Result = sql.Result
	// TxOptions is sql.TxOptions.
	TxOptions = sql.TxOptions
)

// ErrNoRows is returned by FetchOne when the query returned no rows.
var ErrNoRows = sql.ErrNoRows

// ColumnScanner is the part of *sql.Rows used to decode rows.
type ColumnScanner interface {
	Close() error
	Columns() ([]string, error)
	Err() error
	Next() bool
	Scan(dest ...any) error
}
