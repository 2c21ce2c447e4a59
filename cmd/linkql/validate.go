package main

import (
	"github.com/spf13/cobra"

	"github.com/syssam/linkql/dialect/sql/schema"
	"github.com/syssam/linkql/internal/cli"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the schema file",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		r := schema.ValidateSchema(reg.Tables())
		if r.HasErrors() || r.HasWarnings() {
			printf(cmd, "%s\n", r)
		}
		if r.HasErrors() {
			return cli.SchemaError("invalid schema", nil)
		}
		for _, c := range reg.Collections() {
			printf(cmd, "  - %s (%d fields, links: %v)\n", c.Table(), len(c.Fields()), reg.LinkKeys(c.Table()))
		}
		return nil
	},
}
