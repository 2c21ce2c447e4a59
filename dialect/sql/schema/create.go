package schema

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/syssam/linkql/dialect"
	"github.com/syssam/linkql/dialect/sql"
)

// CreateOption configures Create.
type CreateOption func(*createConfig)

type createConfig struct {
	logger *slog.Logger
}

// WithLogger logs every executed statement at info level.
func WithLogger(l *slog.Logger) CreateOption {
	return func(c *createConfig) {
		c.logger = l
	}
}

// Create validates the tables and creates those that do not exist yet.
// Tables are created after the tables their foreign keys reference.
func Create(ctx context.Context, ex dialect.ExecQuerier, name string, tables []*Table, opts ...CreateOption) error {
	cfg := &createConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if r := ValidateSchema(tables); r.HasErrors() {
		return fmt.Errorf("schema: invalid schema:\n%s", r)
	}
	stmts, err := Statements(name, tables)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if cfg.logger != nil {
			cfg.logger.InfoContext(ctx, "schema: create", "sql", stmt)
		}
		if err := ex.Exec(ctx, stmt, []any{}, nil); err != nil {
			return fmt.Errorf("schema: %s: %w", stmt, err)
		}
	}
	return nil
}

// Statements returns the DDL statements creating the tables in the
// dialect, in dependency order.
func Statements(name string, tables []*Table) ([]string, error) {
	ordered, err := order(tables)
	if err != nil {
		return nil, err
	}
	var stmts []string
	for _, t := range ordered {
		b := sql.Dialect(name).CreateTable(t.Name).IfNotExists()
		for _, c := range t.Columns {
			b.Column(c.Name, c.definition(name))
		}
		for _, fk := range t.ForeignKeys {
			def := fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
				fk.Symbol, columnNames(fk.Columns), fk.RefTable.Name, columnNames(fk.RefColumns))
			if fk.OnDelete != "" {
				def += " ON DELETE " + fk.OnDelete
			}
			b.Constraint(def)
		}
		if name == dialect.MySQL {
			for _, idx := range t.Indexes {
				b.Verbatim(indexKeyword(idx) + " " + idx.Name + " (" + columnNames(idx.Columns) + ")")
			}
		}
		query, _ := b.Query()
		stmts = append(stmts, query)
		if name != dialect.MySQL {
			for _, idx := range t.Indexes {
				stmts = append(stmts, fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s);",
					indexKeyword(idx), idx.Name, t.Name, columnNames(idx.Columns)))
			}
		}
	}
	return stmts, nil
}

func indexKeyword(idx *Index) string {
	if idx.Unique {
		return "UNIQUE INDEX"
	}
	return "INDEX"
}

// order sorts the tables so that every table follows the tables it
// references. Self references are allowed, reference cycles are not.
func order(tables []*Table) ([]*Table, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	byName := make(map[string]*Table, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
	}
	state := make(map[string]int, len(tables))
	ordered := make([]*Table, 0, len(tables))
	var visit func(t *Table) error
	visit = func(t *Table) error {
		switch state[t.Name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("schema: foreign key cycle through table %q", t.Name)
		}
		state[t.Name] = visiting
		for _, fk := range t.ForeignKeys {
			if fk.RefTable == nil || fk.RefTable.Name == t.Name {
				continue
			}
			if ref, ok := byName[fk.RefTable.Name]; ok {
				if err := visit(ref); err != nil {
					return err
				}
			}
		}
		state[t.Name] = done
		ordered = append(ordered, t)
		return nil
	}
	for _, t := range tables {
		if err := visit(t); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}
