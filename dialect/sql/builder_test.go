package sql

import (
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"

	"github.com/syssam/linkql/dialect"
)

func golden(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func render(q Querier) []byte {
	query, args := q.Query()
	return []byte(fmt.Sprintf("%s\n%v\n", query, args))
}

func TestBuilderGolden(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *DialectBuilder) Querier
	}{
		{
			name: "select_where",
			build: func(b *DialectBuilder) Querier {
				return b.Select("todo.id", "todo.title").
					From("todo").
					Where(And(EQ("todo.done", true), IsNull("todo.description"))).
					OrderBy("todo.id").
					Limit(10).
					Offset(5)
			},
		},
		{
			name: "select_bind_order",
			build: func(b *DialectBuilder) Querier {
				return b.Select("id").From("todo").Limit(5).Where(EQ("title", "a"))
			},
		},
		{
			name: "select_join_group",
			build: func(b *DialectBuilder) Querier {
				return b.Select(Scoped("student", "id"), As("COUNT(student_course.course_id)", "student_course_count")).
					From("student").
					LeftJoin("student_course", "student_id", "id").
					Where(In("student.id", 1, 2)).
					GroupBy("student.id")
			},
		},
		{
			name: "insert",
			build: func(b *DialectBuilder) Querier {
				ins := b.Insert("todo").Set("title", "todo_1").Set("done", true).Set("description", nil)
				if dialect.SupportsReturning(b.Name()) {
					ins.Returning("id", "title")
				}
				return ins
			},
		},
		{
			name: "insert_default",
			build: func(b *DialectBuilder) Querier {
				return b.Insert("todo")
			},
		},
		{
			name: "update",
			build: func(b *DialectBuilder) Querier {
				return b.Update("todo").Set("title", "x").SetNull("description").Where(EQ("id", 1))
			},
		},
		{
			name: "delete",
			build: func(b *DialectBuilder) Querier {
				return b.Delete("todo").Where(Or(EQ("id", 1), Not(GT("priority", 3))))
			},
		},
		{
			name: "create_table",
			build: func(b *DialectBuilder) Querier {
				return b.CreateTable("todo").IfNotExists().
					Column("id", "INTEGER PRIMARY KEY").
					Column("title", "TEXT NOT NULL").
					Constraint("CONSTRAINT todo_title UNIQUE (title)")
			},
		},
	}
	for _, tt := range tests {
		for _, d := range []string{dialect.SQLite, dialect.MySQL, dialect.Postgres} {
			t.Run(tt.name+"/"+d, func(t *testing.T) {
				golden(t).Assert(t, tt.name+"_"+d, render(tt.build(Dialect(d))))
			})
		}
	}
	t.Run("select_bind_order/postgres_deferred", func(t *testing.T) {
		b := Dialect(dialect.Postgres).Deferred()
		golden(t).Assert(t, "select_bind_order_postgres_deferred", render(tests[1].build(b)))
	})
}

func TestSelectorPanics(t *testing.T) {
	b := Dialect(dialect.SQLite)
	assert.PanicsWithValue(t, "dialect/sql: select statement has no table", func() {
		b.Select("id").Query()
	})
	assert.PanicsWithValue(t, "dialect/sql: select statement has an empty select list", func() {
		b.Select().From("todo").Query()
	})
	assert.PanicsWithValue(t, `dialect/sql: table "todo" is already joined`, func() {
		b.Select("id").From("user").LeftJoin("todo", "owner_id", "id").InnerJoin("todo", "owner_id", "id")
	})
	assert.PanicsWithValue(t, "dialect/sql: limit was already set", func() {
		b.Select("id").From("todo").Limit(1).Limit(2)
	})
	assert.PanicsWithValue(t, "dialect/sql: update statement has no assignments", func() {
		b.Update("todo").Where(EQ("id", 1)).Query()
	})
	assert.PanicsWithValue(t, "dialect/sql: mysql does not support RETURNING", func() {
		Dialect(dialect.MySQL).Delete("todo").Returning("id").Query()
	})
}

func TestSelectorHelpers(t *testing.T) {
	s := Dialect(dialect.SQLite).Select("todo.id").From("todo").LeftJoin("user", "id", "owner_id").GroupBy("todo.id")
	assert.True(t, s.Joined("user"))
	assert.False(t, s.Joined("tag"))
	assert.True(t, s.HasJoins())
	assert.True(t, s.Grouped("todo.id"))
	assert.False(t, s.Grouped("user.id"))
	assert.Equal(t, 1, s.SelectedLen())
	assert.Equal(t, "todo", s.Table())

	query, args := s.Query()
	assert.Equal(t, "SELECT todo.id FROM todo LEFT JOIN user ON user.id = todo.owner_id GROUP BY todo.id;", query)
	assert.Empty(t, args)
}

func TestNames(t *testing.T) {
	assert.Equal(t, "todo.title", Qualify("todo", "title"))
	assert.Equal(t, "user.id", Qualify("todo", "user.id"))
	assert.Equal(t, "title", Qualify("", "title"))
	assert.Equal(t, "todo_title", Alias("todo", "title"))
	assert.Equal(t, "todo.title AS todo_title", Scoped("todo", "title"))
	assert.Equal(t, "title DESC", Desc("title"))
	assert.Equal(t, "title ASC", Asc("title"))
	assert.Equal(t, "LEFT JOIN", LeftJoin.String())
	assert.Equal(t, "INNER JOIN", InnerJoin.String())
}

func TestSelectorAliasJoin(t *testing.T) {
	for d, want := range map[string]string{
		dialect.SQLite: "SELECT todo.id, owner.name AS owner_name, reviewer.name AS reviewer_name FROM todo " +
			"LEFT JOIN user AS owner ON owner.id = todo.owner_id " +
			"LEFT JOIN user AS reviewer ON reviewer.id = todo.reviewer_id WHERE todo.id = ?;",
		dialect.Postgres: "SELECT todo.id, owner.name AS owner_name, reviewer.name AS reviewer_name FROM todo " +
			"LEFT JOIN user AS owner ON owner.id = todo.owner_id " +
			"LEFT JOIN user AS reviewer ON reviewer.id = todo.reviewer_id WHERE todo.id = $1;",
	} {
		s := Dialect(d).Select("todo.id", Scoped("owner", "name"), Scoped("reviewer", "name")).
			From("todo").
			Join(Join{Kind: LeftJoin, Table: "user", Alias: "owner", Column: "id", Local: "owner_id"}).
			Join(Join{Kind: LeftJoin, Table: "user", Alias: "reviewer", Column: "id", Local: "reviewer_id"}).
			Where(EQ("todo.id", 1))
		assert.True(t, s.Joined("owner"))
		assert.False(t, s.Joined("user"))
		query, args := s.Query()
		assert.Equal(t, want, query, d)
		assert.Equal(t, []any{1}, args, d)
	}

	// A table joined to itself under an alias.
	query, _ := Dialect(dialect.SQLite).Select("employee.id", Scoped("manager", "id")).
		From("employee").
		Join(Join{Kind: LeftJoin, Table: "employee", Alias: "manager", Column: "id", Local: "manager_id"}).
		Query()
	assert.Equal(t, "SELECT employee.id, manager.id AS manager_id FROM employee "+
		"LEFT JOIN employee AS manager ON manager.id = employee.manager_id;", query)

	assert.PanicsWithValue(t, `dialect/sql: table "owner" is already joined`, func() {
		Dialect(dialect.SQLite).Select("id").From("todo").
			Join(Join{Kind: LeftJoin, Table: "user", Alias: "owner", Column: "id", Local: "owner_id"}).
			Join(Join{Kind: LeftJoin, Table: "team", Alias: "owner", Column: "id", Local: "team_id"})
	})
}
