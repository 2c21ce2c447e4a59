package sql

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/linkql/dialect"
)

func TestStatementKind(t *testing.T) {
	for query, kind := range map[string]string{
		"SELECT id FROM t":                  KindSelect,
		"  with x AS (SELECT 1) SELECT 2":   KindSelect,
		"INSERT INTO t DEFAULT VALUES":      KindInsert,
		"update t SET a = 1":                KindUpdate,
		"DELETE FROM t WHERE id = ?":        KindDelete,
		"CREATE TABLE IF NOT EXISTS t (id)": KindOther,
		"":                                  KindOther,
	} {
		assert.Equal(t, kind, StatementKind(query), query)
	}
}

func TestStatsDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var slow []string
	drv := NewStatsDriver(OpenDB(dialect.SQLite, db),
		WithSlowThreshold(-1),
		WithSlowQueryHook(func(_ context.Context, query string, _ []any, _ time.Duration) {
			slow = append(slow, query)
		}),
	)
	ctx := context.Background()

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	rows := &Rows{}
	require.NoError(t, drv.Query(ctx, "SELECT 1", []any{}, rows))
	require.NoError(t, rows.Close())

	mock.ExpectExec("DELETE FROM t").WillReturnError(errors.New("locked"))
	require.Error(t, drv.Exec(ctx, "DELETE FROM t", []any{}, nil))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO t").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	tx, err := drv.Tx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Exec(ctx, "INSERT INTO t DEFAULT VALUES", []any{}, nil))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())

	snap := drv.QueryStats().Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, int64(1), snap[KindSelect].Count)
	assert.Equal(t, int64(1), snap[KindDelete].Errors)
	assert.Equal(t, int64(1), snap[KindInsert].Slow)
	total := snap.Total()
	assert.Equal(t, int64(3), total.Count)
	assert.Equal(t, int64(1), total.Errors)
	assert.Equal(t, int64(3), total.Slow)
	assert.Equal(t, []string{"SELECT 1", "DELETE FROM t", "INSERT INTO t DEFAULT VALUES"}, slow)
	assert.Regexp(t, `^select=1 insert=1 delete=1 errors=1 slow=3 duration=\S+$`, snap.String())

	drv.SetSlowThreshold(time.Hour)
	assert.Equal(t, time.Hour, drv.SlowThreshold())
	drv.QueryStats().Reset()
	assert.Empty(t, drv.QueryStats().Snapshot())
	assert.Zero(t, KindStats{}.Avg())
	assert.Equal(t, 2*time.Second, KindStats{Count: 2, Duration: 4 * time.Second}.Avg())
}

func TestSlowQueryLog(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var buf bytes.Buffer
	drv := NewStatsDriver(OpenDB(dialect.SQLite, db), WithSlowThreshold(-1), WithSlowQueryLog(slog.New(slog.NewTextHandler(&buf, nil))))
	mock.ExpectExec("UPDATE t").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, drv.Exec(context.Background(), "UPDATE t SET a = 1", []any{}, nil))
	assert.Contains(t, buf.String(), `level=WARN msg="slow statement" kind=update`)
}

func TestDebugDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	drv := NewDebugDriver(OpenDB(dialect.SQLite, db), logger)
	ctx := context.Background()

	mock.ExpectExec("DELETE FROM t").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE t SET a = \\?").WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()
	require.NoError(t, drv.Exec(ctx, "DELETE FROM t", []any{}, nil))
	tx, err := drv.Tx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Exec(ctx, "UPDATE t SET a = ?", []any{1}, nil))
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())

	out := buf.String()
	assert.Contains(t, out, `msg=statement kind=delete tx=false sql="DELETE FROM t"`)
	assert.Contains(t, out, "begin transaction")
	assert.Contains(t, out, `msg=statement kind=update tx=true sql="UPDATE t SET a = ?" args=[1]`)
	assert.Contains(t, out, "rollback transaction")
}
