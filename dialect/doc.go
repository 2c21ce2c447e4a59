// Package dialect defines the driver interfaces shared by the linkql
// packages and the names of the supported SQL dialects.
//
//   - Postgres: numbered placeholders ($1, $2) and RETURNING.
//   - SQLite: positional placeholders (?) and RETURNING.
//   - MySQL: positional placeholders (?) and no RETURNING. Inserted and
//     updated rows are read back with a second statement.
//
// Driver is implemented by dialect/sql.Driver and by the wrappers of that
// package (DebugDriver, StatsDriver). Tx adds Commit and Rollback to the
// ExecQuerier methods.
package dialect
