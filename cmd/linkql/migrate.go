package main

import (
	"github.com/spf13/cobra"

	"github.com/syssam/linkql/dialect/sql"
	"github.com/syssam/linkql/dialect/sql/schema"
)

var migrateDryRun bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the tables of the schema",
	Long: `Create the tables of the collections and junctions of the schema
that do not exist yet. Existing tables are left untouched.`,
	Example: `  linkql migrate --driver sqlite --dsn "file:app.db?_pragma=foreign_keys(1)"

  # Print the statements without applying them
  linkql migrate --driver postgres --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		if migrateDryRun {
			stmts, err := schema.Statements(sql.DialectOf(cfg.Database.Driver), reg.Tables())
			if err != nil {
				return err
			}
			for _, stmt := range stmts {
				printf(cmd, "%s\n", stmt)
			}
			return nil
		}
		svc, closeFn, err := openService(reg)
		if err != nil {
			return err
		}
		defer closeFn()
		if err := svc.Migrate(cmd.Context()); err != nil {
			return err
		}
		printf(cmd, "Created %d tables.\n", len(reg.Tables()))
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "print the statements without applying them")
}
