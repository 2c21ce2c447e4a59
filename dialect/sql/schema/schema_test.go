package schema

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/linkql/dialect"
	"github.com/syssam/linkql/dialect/sql"
	"github.com/syssam/linkql/dialect/sql/sqlgraph"
)

// school returns the junction first to exercise the ordering.
func school() []*Table {
	student := NewTable("student").
		AddColumn(&Column{Name: "name", Type: TypeString}).
		AddColumn(&Column{Name: "nickname", Type: TypeString, Nullable: true})
	course := NewTable("course").
		AddColumn(&Column{Name: "code", Type: TypeString, Size: 16, Unique: true}).
		AddColumn(&Column{Name: "credits", Type: TypeInt, Default: 3})
	return []*Table{
		Junction("student_course", student, course, "student_id", "course_id"),
		student,
		course,
	}
}

func TestStatements(t *testing.T) {
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	for _, d := range []string{dialect.SQLite, dialect.MySQL, dialect.Postgres} {
		t.Run(d, func(t *testing.T) {
			stmts, err := Statements(d, school())
			require.NoError(t, err)
			g.Assert(t, "statements_"+d, []byte(strings.Join(stmts, "\n")+"\n"))
		})
	}
}

func TestParseType(t *testing.T) {
	for _, name := range []string{"int", "string", "text", "bool", "float", "time", "json"} {
		typ, err := ParseType(name)
		require.NoError(t, err)
		assert.Equal(t, name, typ.String())
	}
	typ, err := ParseType("JSON")
	require.NoError(t, err)
	assert.Equal(t, TypeJSON, typ)

	_, err = ParseType("invalid")
	assert.Error(t, err)
	_, err = ParseType("uuid")
	assert.EqualError(t, err, `schema: unknown column type "uuid"`)
	assert.Equal(t, "ColumnType(42)", ColumnType(42).String())
}

func TestColumnTypeSQL(t *testing.T) {
	assert.Equal(t, "VARCHAR(255)", TypeString.SQL(dialect.MySQL, 0))
	assert.Equal(t, "TEXT", TypeString.SQL(dialect.SQLite, 10))
	assert.Equal(t, "JSONB", TypeJSON.SQL(dialect.Postgres, 0))
	assert.Equal(t, "TEXT", TypeJSON.SQL(dialect.SQLite, 0))
	assert.Equal(t, "TIMESTAMP WITH TIME ZONE", TypeTime.SQL(dialect.Postgres, 0))
	assert.Equal(t, "BOOL", TypeBool.SQL(dialect.MySQL, 0))
	assert.Panics(t, func() { TypeInvalid.SQL(dialect.SQLite, 0) })
}

func TestColumnDefault(t *testing.T) {
	c := &Column{Name: "title", Type: TypeText, Default: "it's"}
	assert.Equal(t, "TEXT NOT NULL DEFAULT 'it''s'", c.definition(dialect.SQLite))
	c = &Column{Name: "done", Type: TypeBool, Default: false}
	assert.Equal(t, "BOOLEAN NOT NULL DEFAULT FALSE", c.definition(dialect.Postgres))
}

func TestValidateSchema(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		r := ValidateSchema(school())
		assert.False(t, r.HasErrors())
		assert.False(t, r.HasWarnings())
		assert.Equal(t, "No issues found", r.String())
	})
	t.Run("duplicates", func(t *testing.T) {
		todo := NewTable("todo").
			AddColumn(&Column{Name: "title", Type: TypeString}).
			AddColumn(&Column{Name: "title", Type: TypeString}).
			AddColumn(&Column{Name: "note"})
		r := ValidateSchema([]*Table{todo, NewTable("todo")})
		require.True(t, r.HasErrors())
		assert.Contains(t, r.String(), "todo.title: duplicate column name")
		assert.Contains(t, r.String(), "todo.note: column has no type")
		assert.Contains(t, r.String(), "todo: duplicate table name")
	})
	t.Run("unknown_reference", func(t *testing.T) {
		todo := NewTable("todo").AddColumn(&Column{Name: "owner_id", Type: TypeInt})
		todo.AddForeignKey("owner_id", NewTable("owner"), "CASCADE").
			AddForeignKey("list_id", todo, "")
		todo.AddIndex("todo_missing", false, "missing")
		r := ValidateSchema([]*Table{todo})
		assert.Contains(t, r.String(), `foreign key references non-existent table "owner"`)
		assert.Contains(t, r.String(), `foreign key references non-existent column "list_id"`)
		assert.Contains(t, r.String(), `index "todo_missing" references non-existent column "missing"`)
	})
	t.Run("warnings", func(t *testing.T) {
		tbl := &Table{Name: "tag", Columns: []*Column{{Name: "slug", Type: TypeString, Nullable: true, Unique: true}}}
		r := ValidateSchema([]*Table{tbl})
		assert.False(t, r.HasErrors())
		require.Len(t, r.Warnings, 2)
		assert.Contains(t, r.String(), "tag: table has no primary key")
	})
	t.Run("foreign_key_columns", func(t *testing.T) {
		owner := NewTable("owner")
		todo := NewTable("todo").
			AddColumn(&Column{Name: "owner_id", Type: TypeInt}).
			AddColumn(&Column{Name: "list", Type: TypeString, Nullable: true})
		todo.AddForeignKey("owner_id", owner, "set null").AddForeignKey("list", owner, "SET NULL")
		r := ValidateSchema([]*Table{owner, todo})
		require.Len(t, r.Errors, 1)
		assert.EqualError(t, r.Errors[0], "todo.owner_id: ON DELETE SET NULL on a NOT NULL column")
		require.Len(t, r.Warnings, 1)
		assert.EqualError(t, r.Warnings[0], "todo.list: foreign key column is string, ids are int")
		assert.Equal(t, "Errors:\n  - todo.owner_id: ON DELETE SET NULL on a NOT NULL column\n"+
			"Warnings:\n  - todo.list: foreign key column is string, ids are int\n", r.String())
	})
	t.Run("cycle", func(t *testing.T) {
		a := NewTable("a").AddColumn(&Column{Name: "b_id", Type: TypeInt})
		b := NewTable("b").AddColumn(&Column{Name: "a_id", Type: TypeInt})
		a.AddForeignKey("b_id", b, "")
		b.AddForeignKey("a_id", a, "")
		r := ValidateSchema([]*Table{a, b})
		require.True(t, r.HasErrors())
		assert.Contains(t, r.Errors[0].Error(), "foreign key cycle")

		_, err := Statements(dialect.SQLite, []*Table{a, b})
		assert.Error(t, err)
	})
	t.Run("self_reference", func(t *testing.T) {
		node := NewTable("node").AddColumn(&Column{Name: "parent_id", Type: TypeInt, Nullable: true})
		node.AddForeignKey("parent_id", node, "SET NULL")
		assert.False(t, ValidateSchema([]*Table{node}).HasErrors())
	})
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	drv, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "school.db")+"?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	defer drv.Close()

	require.NoError(t, Create(ctx, drv, dialect.SQLite, school()))
	// Existing tables are left untouched.
	require.NoError(t, Create(ctx, drv, dialect.SQLite, school()))

	b := sql.Dialect(dialect.SQLite)
	_, err = sql.Execute(ctx, drv, b.Insert("student").Set("name", "a8m"))
	require.NoError(t, err)
	_, err = sql.Execute(ctx, drv, b.Insert("course").Set("code", "CS101"))
	require.NoError(t, err)
	_, err = sql.Execute(ctx, drv, b.Insert("student_course").Set("student_id", 1).Set("course_id", 1))
	require.NoError(t, err)

	_, err = sql.Execute(ctx, drv, b.Insert("student_course").Set("student_id", 1).Set("course_id", 1))
	assert.True(t, sqlgraph.IsUniqueConstraintError(err), err)
	_, err = sql.Execute(ctx, drv, b.Insert("student_course").Set("student_id", 1).Set("course_id", 9))
	assert.True(t, sqlgraph.IsForeignKeyConstraintError(err), err)

	row, err := sql.FetchOne(ctx, drv, b.Select("credits").From("course"))
	require.NoError(t, err)
	credits, err := sql.ColumnValue[int64](row, "credits")
	require.NoError(t, err)
	assert.Equal(t, int64(3), credits)
}

func TestCreateErrors(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := sql.OpenDB(dialect.Postgres, db)

	err = Create(ctx, drv, dialect.Postgres, []*Table{{Name: "broken", Columns: []*Column{{Name: "x"}}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schema")

	stmts, err := Statements(dialect.Postgres, school())
	require.NoError(t, err)
	mock.ExpectExec(regexp.QuoteMeta(stmts[0])).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(stmts[1])).WillReturnError(errors.New("permission denied"))
	err = Create(ctx, drv, dialect.Postgres, school())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	require.NoError(t, mock.ExpectationsWereMet())
}
