// Package sql provides the statement builders, the binding protocol and the
// database/sql driver used by linkql.
//
// # Binding
//
// Every statement owns a BindContext. Values enter the statement through a
// Binder, which records the value in the context and returns a Fragment:
// verbatim text and placeholders to be written later. There are two modes:
//
//   - Immediate: the value is appended to the argument buffer at bind time
//     and the placeholder ($N) is final. Only dialects with numbered
//     placeholders can bind immediately.
//   - Deferred: the value waits in a slot and its placeholder is assigned
//     when the fragment is written, so argument order always follows the
//     text order.
//
// Dialect(name) picks Immediate for Postgres and Deferred otherwise;
// DialectBuilder.Deferred forces deferred binding for statements whose
// bound values are only known at runtime.
//
// Query renders a statement exactly once. It panics if the statement was
// already built, if a deferred value is written twice, or if a bound value
// never reaches the text.
//
//	b := sql.Dialect(dialect.SQLite)
//	query, args := b.Select("todo.id", "todo.title").
//		From("todo").
//		Where(sql.And(sql.EQ("todo.done", true), sql.IsNull("todo.description"))).
//		Limit(10).
//		Query()
//	// SELECT todo.id, todo.title FROM todo WHERE todo.done = ? AND todo.description IS NULL LIMIT ?;
//
// # Rows
//
// FetchAll, FetchOne and FetchOptional run a statement and return its rows
// as *Row values, decoded by column name with ColumnValue and
// NullableValue. Execute runs statements that return no rows.
//
// # Drivers
//
// Open wraps a database/sql connection; DialectOf maps the database/sql
// driver name (postgres, pgx, mysql, sqlite, sqlite3) to its dialect.
// DebugDriver logs every statement through slog and StatsDriver records
// query counts, durations and slow statements.
package sql
