package sql

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/syssam/linkql/dialect"
)

// Statement kinds counted by a StatsDriver.
const (
	KindSelect = "select"
	KindInsert = "insert"
	KindUpdate = "update"
	KindDelete = "delete"
	KindOther  = "other"
)

var statementKinds = [...]string{KindSelect, KindInsert, KindUpdate, KindDelete, KindOther}

// StatementKind returns the kind of a statement from its first keyword.
func StatementKind(query string) string {
	word, _, _ := strings.Cut(strings.TrimSpace(query), " ")
	switch strings.ToUpper(word) {
	case "SELECT", "WITH":
		return KindSelect
	case "INSERT":
		return KindInsert
	case "UPDATE":
		return KindUpdate
	case "DELETE":
		return KindDelete
	default:
		return KindOther
	}
}

func kindIndex(kind string) int {
	for i, k := range statementKinds {
		if k == kind {
			return i
		}
	}
	return len(statementKinds) - 1
}

type counters struct {
	count, errors, slow, nanos atomic.Int64
}

// QueryStats accumulates statement statistics per statement kind. It is
// safe for concurrent use.
type QueryStats struct {
	kinds [len(statementKinds)]counters
}

func (s *QueryStats) add(kind string, d time.Duration, err error, slow bool) {
	c := &s.kinds[kindIndex(kind)]
	c.count.Add(1)
	c.nanos.Add(int64(d))
	if err != nil {
		c.errors.Add(1)
	}
	if slow {
		c.slow.Add(1)
	}
}

// Snapshot returns a copy of the statistics of every kind that ran at
// least once.
func (s *QueryStats) Snapshot() StatsSnapshot {
	snap := make(StatsSnapshot)
	for i := range s.kinds {
		c := &s.kinds[i]
		if n := c.count.Load(); n > 0 {
			snap[statementKinds[i]] = KindStats{
				Count:    n,
				Errors:   c.errors.Load(),
				Slow:     c.slow.Load(),
				Duration: time.Duration(c.nanos.Load()),
			}
		}
	}
	return snap
}

// Reset sets every counter to zero.
func (s *QueryStats) Reset() {
	for i := range s.kinds {
		c := &s.kinds[i]
		c.count.Store(0)
		c.errors.Store(0)
		c.slow.Store(0)
		c.nanos.Store(0)
	}
}

// KindStats holds the statistics of one statement kind.
type KindStats struct {
	Count    int64
	Errors   int64
	Slow     int64
	Duration time.Duration
}

// Avg returns the average statement duration.
func (k KindStats) Avg() time.Duration {
	if k.Count == 0 {
		return 0
	}
	return k.Duration / time.Duration(k.Count)
}

// StatsSnapshot maps statement kinds to their statistics.
type StatsSnapshot map[string]KindStats

// Total sums the statistics of every kind.
func (s StatsSnapshot) Total() KindStats {
	var t KindStats
	for _, k := range s {
		t.Count += k.Count
		t.Errors += k.Errors
		t.Slow += k.Slow
		t.Duration += k.Duration
	}
	return t
}

// String formats the snapshot as "select=3 insert=1 errors=0 slow=0
// duration=2ms", kinds in a fixed order.
func (s StatsSnapshot) String() string {
	var b strings.Builder
	for _, kind := range statementKinds {
		if k, ok := s[kind]; ok {
			fmt.Fprintf(&b, "%s=%d ", kind, k.Count)
		}
	}
	t := s.Total()
	fmt.Fprintf(&b, "errors=%d slow=%d duration=%s", t.Errors, t.Slow, t.Duration)
	return b.String()
}

// SlowQueryHook is called for every statement slower than the threshold
// of a StatsDriver.
type SlowQueryHook func(ctx context.Context, query string, args []any, duration time.Duration)

// StatsDriver records the statements run through a Driver and its
// transactions.
type StatsDriver struct {
	dialect.Driver
	stats     *QueryStats
	threshold atomic.Int64
	hook      SlowQueryHook
}

// StatsOption configures a StatsDriver.
type StatsOption func(*StatsDriver)

// WithSlowThreshold sets the duration above which a statement is slow.
// It defaults to 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsDriver) {
		s.threshold.Store(int64(d))
	}
}

// WithSlowQueryHook sets the function called for slow statements.
func WithSlowQueryHook(hook SlowQueryHook) StatsOption {
	return func(s *StatsDriver) {
		s.hook = hook
	}
}

// WithSlowQueryLog logs slow statements at warn level, to the default
// logger if l is nil.
func WithSlowQueryLog(l *slog.Logger) StatsOption {
	if l == nil {
		l = slog.Default()
	}
	return WithSlowQueryHook(func(ctx context.Context, query string, args []any, d time.Duration) {
		l.WarnContext(ctx, "slow statement", "kind", StatementKind(query), "duration", d, "sql", query, "args", args)
	})
}

// NewStatsDriver wraps drv with statistics collection.
//
//	drv, _ := sql.Open("sqlite", "file:app.db")
//	stats := sql.NewStatsDriver(drv,
//	    sql.WithSlowThreshold(200*time.Millisecond),
//	    sql.WithSlowQueryLog(nil),
//	)
//	client := linkql.NewClient(stats)
func NewStatsDriver(drv dialect.Driver, opts ...StatsOption) *StatsDriver {
	s := &StatsDriver{Driver: drv, stats: &QueryStats{}}
	s.threshold.Store(int64(100 * time.Millisecond))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueryStats returns the statistics of the driver.
func (d *StatsDriver) QueryStats() *QueryStats { return d.stats }

// SlowThreshold returns the slow statement threshold.
func (d *StatsDriver) SlowThreshold() time.Duration {
	return time.Duration(d.threshold.Load())
}

// SetSlowThreshold updates the slow statement threshold.
func (d *StatsDriver) SetSlowThreshold(threshold time.Duration) {
	d.threshold.Store(int64(threshold))
}

// Query implements dialect.ExecQuerier.
func (d *StatsDriver) Query(ctx context.Context, query string, args, v any) error {
	return d.observe(ctx, query, args, func() error { return d.Driver.Query(ctx, query, args, v) })
}

// Exec implements dialect.ExecQuerier.
func (d *StatsDriver) Exec(ctx context.Context, query string, args, v any) error {
	return d.observe(ctx, query, args, func() error { return d.Driver.Exec(ctx, query, args, v) })
}

// Tx starts a transaction whose statements are recorded too.
func (d *StatsDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &StatsTx{Tx: tx, driver: d}, nil
}

func (d *StatsDriver) observe(ctx context.Context, query string, args any, run func() error) error {
	start := time.Now()
	err := run()
	elapsed := time.Since(start)
	slow := elapsed > d.SlowThreshold()
	d.stats.add(StatementKind(query), elapsed, err, slow)
	if slow && d.hook != nil {
		argv, _ := args.([]any)
		d.hook(ctx, query, argv, elapsed)
	}
	return err
}

// StatsTx is a transaction of a StatsDriver.
type StatsTx struct {
	dialect.Tx
	driver *StatsDriver
}

// Query implements dialect.ExecQuerier.
func (tx *StatsTx) Query(ctx context.Context, query string, args, v any) error {
	return tx.driver.observe(ctx, query, args, func() error { return tx.Tx.Query(ctx, query, args, v) })
}

// Exec implements dialect.ExecQuerier.
func (tx *StatsTx) Exec(ctx context.Context, query string, args, v any) error {
	return tx.driver.observe(ctx, query, args, func() error { return tx.Tx.Exec(ctx, query, args, v) })
}

// DebugDriver logs every statement of a Driver and its transactions at
// debug level.
type DebugDriver struct {
	dialect.Driver
	logger *slog.Logger
}

// NewDebugDriver wraps drv with statement logging, to the default logger
// if l is nil.
func NewDebugDriver(drv dialect.Driver, l *slog.Logger) *DebugDriver {
	if l == nil {
		l = slog.Default()
	}
	return &DebugDriver{Driver: drv, logger: l}
}

// Query implements dialect.ExecQuerier.
func (d *DebugDriver) Query(ctx context.Context, query string, args, v any) error {
	logStatement(ctx, d.logger, false, query, args)
	return d.Driver.Query(ctx, query, args, v)
}

// Exec implements dialect.ExecQuerier.
func (d *DebugDriver) Exec(ctx context.Context, query string, args, v any) error {
	logStatement(ctx, d.logger, false, query, args)
	return d.Driver.Exec(ctx, query, args, v)
}

// Tx starts a transaction and logs its statements and its end.
func (d *DebugDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	d.logger.DebugContext(ctx, "begin transaction")
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		d.logger.DebugContext(ctx, "begin transaction failed", "error", err)
		return nil, err
	}
	return &DebugTx{Tx: tx, ctx: ctx, logger: d.logger}, nil
}

func logStatement(ctx context.Context, l *slog.Logger, tx bool, query string, args any) {
	l.DebugContext(ctx, "statement", "kind", StatementKind(query), "tx", tx, "sql", query, "args", args)
}

// DebugTx is a transaction of a DebugDriver.
type DebugTx struct {
	dialect.Tx
	ctx    context.Context
	logger *slog.Logger
}

// Query implements dialect.ExecQuerier.
func (tx *DebugTx) Query(ctx context.Context, query string, args, v any) error {
	logStatement(ctx, tx.logger, true, query, args)
	return tx.Tx.Query(ctx, query, args, v)
}

// Exec implements dialect.ExecQuerier.
func (tx *DebugTx) Exec(ctx context.Context, query string, args, v any) error {
	logStatement(ctx, tx.logger, true, query, args)
	return tx.Tx.Exec(ctx, query, args, v)
}

// Commit commits the transaction.
func (tx *DebugTx) Commit() error {
	tx.logger.DebugContext(tx.ctx, "commit transaction")
	return tx.Tx.Commit()
}

// Rollback rolls the transaction back.
func (tx *DebugTx) Rollback() error {
	tx.logger.DebugContext(tx.ctx, "rollback transaction")
	return tx.Tx.Rollback()
}

var (
	_ dialect.Driver = (*StatsDriver)(nil)
	_ dialect.Tx     = (*StatsTx)(nil)
	_ dialect.Driver = (*DebugDriver)(nil)
	_ dialect.Tx     = (*DebugTx)(nil)
)
