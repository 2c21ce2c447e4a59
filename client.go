package linkql

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/syssam/linkql/dialect"
	"github.com/syssam/linkql/dialect/sql"
)

// Executor runs the statements of composed operations. *Client and *Tx
// implement it; the statements of an operation run through the same
// executor, links included.
type Executor interface {
	dialect.ExecQuerier
	// Dialect returns the dialect name statements are built for.
	Dialect() string
}

// Client is the entry point of composed operations.
type Client struct {
	driver     dialect.Driver
	logger     *slog.Logger
	debug      bool
	concurrent bool
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets the logger of the client. Operations are logged at
// debug level.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// Debug logs every statement the client runs.
func Debug() Option {
	return func(c *Client) {
		c.debug = true
	}
}

// ConcurrentLinks runs the sub-ops of sibling links concurrently. It has no
// effect inside transactions, since a transaction holds one connection.
func ConcurrentLinks() Option {
	return func(c *Client) {
		c.concurrent = true
	}
}

// NewClient creates a new client configured with the given options.
func NewClient(drv dialect.Driver, opts ...Option) *Client {
	c := &Client{driver: drv}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.debug {
		c.driver = sql.NewDebugDriver(c.driver, c.logger)
	}
	return c
}

// Open opens a database connection with the database/sql driver name and
// returns a client for it.
//
//	client, err := linkql.Open("sqlite", "file:app.db?_pragma=foreign_keys(1)")
func Open(driverName, dataSourceName string, opts ...Option) (*Client, error) {
	drv, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("linkql: open %s: %w", driverName, err)
	}
	return NewClient(drv, opts...), nil
}

// Driver returns the driver of the client.
func (c *Client) Driver() dialect.Driver { return c.driver }

// Dialect returns the dialect name of the driver.
func (c *Client) Dialect() string { return c.driver.Dialect() }

// Logger returns the logger of the client.
func (c *Client) Logger() *slog.Logger { return c.logger }

// Exec implements dialect.ExecQuerier.
func (c *Client) Exec(ctx context.Context, query string, args, v any) error {
	return c.driver.Exec(ctx, query, args, v)
}

// Query implements dialect.ExecQuerier.
func (c *Client) Query(ctx context.Context, query string, args, v any) error {
	return c.driver.Query(ctx, query, args, v)
}

// Close closes the database connection.
func (c *Client) Close() error { return c.driver.Close() }

// Tx returns a new transactional client.
func (c *Client) Tx(ctx context.Context) (*Tx, error) {
	if _, ok := c.driver.(*txDriver); ok {
		return nil, ErrTxStarted
	}
	tx, err := c.driver.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("linkql: starting a transaction: %w", err)
	}
	return &Tx{tx: tx, client: c}, nil
}

// WithTx runs fn within a transaction. If fn returns an error or panics,
// the transaction is rolled back. Otherwise, it is committed.
func (c *Client) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := c.Tx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if v := recover(); v != nil {
			_ = tx.Rollback()
			panic(v)
		}
	}()
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return &RollbackError{Err: err, Rollback: rerr}
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("linkql: committing transaction: %w", err)
	}
	return nil
}

// Tx is a transactional Executor.
type Tx struct {
	tx     dialect.Tx
	client *Client
}

// Dialect returns the dialect name of the driver.
func (tx *Tx) Dialect() string { return tx.client.Dialect() }

// Logger returns the logger of the client that started the transaction.
func (tx *Tx) Logger() *slog.Logger { return tx.client.logger }

// Exec implements dialect.ExecQuerier.
func (tx *Tx) Exec(ctx context.Context, query string, args, v any) error {
	return tx.tx.Exec(ctx, query, args, v)
}

// Query implements dialect.ExecQuerier.
func (tx *Tx) Query(ctx context.Context, query string, args, v any) error {
	return tx.tx.Query(ctx, query, args, v)
}

// Commit commits the transaction.
func (tx *Tx) Commit() error { return tx.tx.Commit() }

// Rollback rolls back the transaction.
func (tx *Tx) Rollback() error { return tx.tx.Rollback() }

// Client returns a client bound to the transaction. Operations run through
// it join the transaction instead of starting their own.
func (tx *Tx) Client() *Client {
	return &Client{
		driver: &txDriver{tx: tx.tx, dialect: tx.client.Dialect()},
		logger: tx.client.logger,
	}
}

// txDriver is the driver of a transaction-bound client. Commit and Rollback
// are no-ops, the owner of the Tx ends the transaction.
type txDriver struct {
	tx      dialect.Tx
	dialect string
}

func (d *txDriver) Exec(ctx context.Context, query string, args, v any) error {
	return d.tx.Exec(ctx, query, args, v)
}

func (d *txDriver) Query(ctx context.Context, query string, args, v any) error {
	return d.tx.Query(ctx, query, args, v)
}

func (d *txDriver) Tx(context.Context) (dialect.Tx, error) { return dialect.NopTx(d), nil }
func (d *txDriver) Close() error                           { return nil }
func (d *txDriver) Dialect() string                        { return d.dialect }

// inTx runs fn in a transaction, unless ex already is one.
func inTx(ctx context.Context, ex Executor, fn func(Executor) error) error {
	c, ok := ex.(*Client)
	if !ok {
		return fn(ex)
	}
	if _, ok := c.driver.(*txDriver); ok {
		return fn(c)
	}
	return c.WithTx(ctx, func(tx *Tx) error { return fn(tx) })
}

type concurrentKey struct{}

// withConcurrency marks ctx so that sibling sub-ops run concurrently.
func withConcurrency(ctx context.Context, ex Executor) context.Context {
	if c, ok := ex.(*Client); ok && c.concurrent {
		if _, ok := c.driver.(*txDriver); !ok {
			return context.WithValue(ctx, concurrentKey{}, true)
		}
	}
	return ctx
}

// runSiblings runs fns in order, or concurrently if enabled on ctx. The
// first error is returned.
func runSiblings(ctx context.Context, fns ...func(context.Context) error) error {
	if on, _ := ctx.Value(concurrentKey{}).(bool); !on || len(fns) < 2 {
		for _, fn := range fns {
			if err := fn(ctx); err != nil {
				return err
			}
		}
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, fn := range fns {
		g.Go(func() error { return fn(ctx) })
	}
	return g.Wait()
}

// opLogger returns the logger of an operation, tagged with a fresh id.
func opLogger(ex Executor, op, table string) *slog.Logger {
	var l *slog.Logger
	if lg, ok := ex.(interface{ Logger() *slog.Logger }); ok {
		l = lg.Logger()
	}
	if l == nil {
		l = slog.Default()
	}
	return l.With("op", op, "op_id", uuid.NewString(), "collection", table)
}

var (
	_ Executor       = (*Client)(nil)
	_ Executor       = (*Tx)(nil)
	_ dialect.Driver = (*txDriver)(nil)
)
