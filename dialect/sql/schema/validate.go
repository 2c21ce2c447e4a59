package schema

import (
	"fmt"
	"strings"
)

// ValidationError is a problem found in a table definition. Table and
// Column are empty when the problem is not specific to one.
type ValidationError struct {
	Table   string
	Column  string
	Message string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Table == "":
		return e.Message
	case e.Column != "":
		return fmt.Sprintf("%s.%s: %s", e.Table, e.Column, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Table, e.Message)
	}
}

// ValidationResult holds the problems of a schema. Errors prevent table
// creation; warnings do not.
type ValidationResult struct {
	Errors   []*ValidationError
	Warnings []*ValidationError
}

// HasErrors reports whether the schema cannot be created.
func (r *ValidationResult) HasErrors() bool { return len(r.Errors) > 0 }

// HasWarnings reports whether the schema has warnings.
func (r *ValidationResult) HasWarnings() bool { return len(r.Warnings) > 0 }

func (r *ValidationResult) String() string {
	if !r.HasErrors() && !r.HasWarnings() {
		return "No issues found"
	}
	var sb strings.Builder
	for _, section := range []struct {
		title string
		list  []*ValidationError
	}{{"Errors", r.Errors}, {"Warnings", r.Warnings}} {
		if len(section.list) == 0 {
			continue
		}
		sb.WriteString(section.title + ":\n")
		for _, e := range section.list {
			fmt.Fprintf(&sb, "  - %s\n", e)
		}
	}
	return sb.String()
}

func (r *ValidationResult) errorf(table, column, format string, args ...any) {
	r.Errors = append(r.Errors, &ValidationError{Table: table, Column: column, Message: fmt.Sprintf(format, args...)})
}

func (r *ValidationResult) warnf(table, column, format string, args ...any) {
	r.Warnings = append(r.Warnings, &ValidationError{Table: table, Column: column, Message: fmt.Sprintf(format, args...)})
}

// ValidateTable checks a table on its own: names, column types and the
// columns of its indexes and foreign keys.
func ValidateTable(t *Table) *ValidationResult {
	r := &ValidationResult{}
	if t.Name == "" {
		r.errorf("", "", "table has no name")
	}
	if len(t.PrimaryKey) == 0 {
		r.warnf(t.Name, "", "table has no primary key")
	}

	columns := make(map[string]*Column, len(t.Columns))
	for _, c := range t.Columns {
		if _, ok := columns[c.Name]; ok {
			r.errorf(t.Name, c.Name, "duplicate column name")
		}
		columns[c.Name] = c
		if c.Type == TypeInvalid && !c.Increment {
			r.errorf(t.Name, c.Name, "column has no type")
		}
		if c.Nullable && c.Default == nil && c.Unique {
			r.warnf(t.Name, c.Name, "nullable UNIQUE column allows several NULL values")
		}
	}

	indexes := make(map[string]bool, len(t.Indexes))
	for _, idx := range t.Indexes {
		if indexes[idx.Name] {
			r.errorf(t.Name, "", "duplicate index name: %s", idx.Name)
		}
		indexes[idx.Name] = true
		for _, c := range idx.Columns {
			if c != nil && columns[c.Name] == nil {
				r.errorf(t.Name, "", "index %q references non-existent column %q", idx.Name, c.Name)
			}
		}
	}

	for _, fk := range t.ForeignKeys {
		for _, c := range fk.Columns {
			switch col := columns[c.Name]; {
			case col == nil:
				r.errorf(t.Name, "", "foreign key references non-existent column %q", c.Name)
			case strings.EqualFold(fk.OnDelete, "SET NULL") && !col.Nullable:
				r.errorf(t.Name, c.Name, "ON DELETE SET NULL on a NOT NULL column")
			case col.Type != TypeInt:
				r.warnf(t.Name, c.Name, "foreign key column is %s, ids are int", col.Type)
			}
		}
	}
	return r
}

// ValidateSchema checks every table and the references between them:
// unique table names, known referenced tables and no foreign key cycle
// other than self references.
func ValidateSchema(tables []*Table) *ValidationResult {
	r := &ValidationResult{}
	names := make(map[string]bool, len(tables))
	for _, t := range tables {
		if names[t.Name] {
			r.errorf(t.Name, "", "duplicate table name")
		}
		names[t.Name] = true
		tr := ValidateTable(t)
		r.Errors = append(r.Errors, tr.Errors...)
		r.Warnings = append(r.Warnings, tr.Warnings...)
	}
	for _, t := range tables {
		for _, fk := range t.ForeignKeys {
			var ref string
			if fk.RefTable != nil {
				ref = fk.RefTable.Name
			}
			if !names[ref] {
				r.errorf(t.Name, "", "foreign key references non-existent table %q", ref)
			}
		}
	}
	if _, err := order(tables); err != nil && !r.HasErrors() {
		r.errorf("", "", "%s", err)
	}
	return r
}
