// Command linkql runs JSON requests against the collections of a YAML
// schema and creates their tables.
//
// Usage:
//
//	linkql [flags] <command>
//
// The database is configured with --driver and --dsn, the LINKQL_DATABASE_*
// environment variables or a linkql.yaml file.
package main

import (
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func main() {
	Execute()
}
