package linkql_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/linkql"
	"github.com/syssam/linkql/dialect"
	"github.com/syssam/linkql/dialect/sql"
	"github.com/syssam/linkql/dialect/sql/schema"
	"github.com/syssam/linkql/relation"
)

type Todo struct {
	Title       string  `json:"title"`
	Done        bool    `json:"done"`
	Description *string `json:"description"`
}

type TodoPatch struct {
	Title       linkql.Patch[string]  `json:"title,omitzero"`
	Done        linkql.Patch[bool]    `json:"done,omitzero"`
	Description linkql.Patch[*string] `json:"description,omitzero"`
}

type todos struct{}

func (todos) Table() string     { return "todo" }
func (todos) Members() []string { return []string{"title", "done", "description"} }

func (t todos) OnSelect(s *sql.Selector, scoped bool) {
	linkql.SelectMembers(s, "todo", scoped, t.Members()...)
}

func (todos) OnInsert(d Todo, ins *sql.InsertBuilder) error {
	ins.Set("title", d.Title).Set("done", d.Done)
	if d.Description != nil {
		ins.Set("description", *d.Description)
	} else {
		ins.Set("description", nil)
	}
	return nil
}

func (todos) OnUpdate(p TodoPatch, up *sql.UpdateBuilder) error {
	linkql.ApplyPatch(up, "title", p.Title)
	linkql.ApplyPatch(up, "done", p.Done)
	if d, ok := p.Description.Get(); ok {
		if d == nil {
			up.SetNull("description")
		} else {
			up.Set("description", *d)
		}
	}
	return nil
}

func (todos) FromRowNoScope(r *sql.Row) (Todo, error) { return decodeTodo(r, false) }
func (todos) FromRowScoped(r *sql.Row) (Todo, error)  { return decodeTodo(r, true) }

func decodeTodo(r *sql.Row, scoped bool) (t Todo, err error) {
	if t.Title, err = sql.ColumnValue[string](r, linkql.MemberColumn("todo", "title", scoped)); err != nil {
		return t, err
	}
	if t.Done, err = sql.ColumnValue[bool](r, linkql.MemberColumn("todo", "done", scoped)); err != nil {
		return t, err
	}
	t.Description, err = sql.NullableValue[string](r, linkql.MemberColumn("todo", "description", scoped))
	return t, err
}

type Student struct {
	Name string `json:"name"`
}

type StudentPatch struct {
	Name linkql.Patch[string] `json:"name,omitzero"`
}

type students struct{}

func (students) Table() string     { return "student" }
func (students) Members() []string { return []string{"name"} }

func (students) OnSelect(s *sql.Selector, scoped bool) {
	linkql.SelectMembers(s, "student", scoped, "name")
}

func (students) OnInsert(d Student, ins *sql.InsertBuilder) error {
	ins.Set("name", d.Name)
	return nil
}

func (students) OnUpdate(p StudentPatch, up *sql.UpdateBuilder) error {
	linkql.ApplyPatch(up, "name", p.Name)
	return nil
}

func (students) FromRowNoScope(r *sql.Row) (Student, error) { return decodeStudent(r, false) }
func (students) FromRowScoped(r *sql.Row) (Student, error)  { return decodeStudent(r, true) }

func decodeStudent(r *sql.Row, scoped bool) (s Student, err error) {
	s.Name, err = sql.ColumnValue[string](r, linkql.MemberColumn("student", "name", scoped))
	return s, err
}

type Course struct {
	Code string `json:"code"`
}

type coursePatch struct{}

type courses struct{}

func (courses) Table() string     { return "course" }
func (courses) Members() []string { return []string{"code"} }

func (courses) OnSelect(s *sql.Selector, scoped bool) {
	linkql.SelectMembers(s, "course", scoped, "code")
}

func (courses) OnInsert(d Course, ins *sql.InsertBuilder) error {
	ins.Set("code", d.Code)
	return nil
}

func (courses) OnUpdate(coursePatch, *sql.UpdateBuilder) error { return nil }

func (courses) FromRowNoScope(r *sql.Row) (Course, error) { return decodeCourse(r, false) }
func (courses) FromRowScoped(r *sql.Row) (Course, error)  { return decodeCourse(r, true) }

func decodeCourse(r *sql.Row, scoped bool) (c Course, err error) {
	c.Code, err = sql.ColumnValue[string](r, linkql.MemberColumn("course", "code", scoped))
	return c, err
}

var (
	Todos    linkql.Collection[Todo, TodoPatch]       = todos{}
	Students linkql.Collection[Student, StudentPatch] = students{}
	Courses  linkql.Collection[Course, coursePatch]   = courses{}

	// StudentCourses relates students to the courses they take.
	StudentCourses = relation.ManyToMany(Courses, relation.JunctionOf("student", "course"))
	// CourseStudents is the inverse of StudentCourses.
	CourseStudents = relation.ManyToMany(Students, relation.Junction{Table: "student_course", From: "course_id", To: "student_id"})
	// TodoOwner is the optional owner of a todo.
	TodoOwner = relation.Optional(Students, "owner_id")
	// CourseLead is the optional student leading a course.
	CourseLead = relation.Optional(Students, "lead_id")
)

func tables() []*schema.Table {
	student := schema.NewTable("student").AddColumn(&schema.Column{Name: "name", Type: schema.TypeString})
	course := schema.NewTable("course").
		AddColumn(&schema.Column{Name: "code", Type: schema.TypeString, Unique: true}).
		AddColumn(&schema.Column{Name: "lead_id", Type: schema.TypeInt, Nullable: true})
	course.AddForeignKey("lead_id", student, "SET NULL")
	todo := schema.NewTable("todo").
		AddColumn(&schema.Column{Name: "title", Type: schema.TypeString}).
		AddColumn(&schema.Column{Name: "done", Type: schema.TypeBool, Default: false}).
		AddColumn(&schema.Column{Name: "description", Type: schema.TypeText, Nullable: true}).
		AddColumn(&schema.Column{Name: "owner_id", Type: schema.TypeInt, Nullable: true})
	todo.AddForeignKey("owner_id", student, "SET NULL")
	return []*schema.Table{
		student, course, todo,
		schema.Junction("student_course", student, course, "student_id", "course_id"),
	}
}

// openSchool returns a client over a fresh SQLite database with:
//
//	todo:    1 todo_1 (done), 2 todo_2 (owned by alice)
//	student: 1 alice {CS101, DB200}, 2 bob {OS300}, 3 carol {}
//	course:  1 CS101 (led by bob), 2 DB200, 3 OS300
func openSchool(t *testing.T, opts ...linkql.Option) *linkql.Client {
	t.Helper()
	ctx := context.Background()
	drv, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "school.db")+"?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	client := linkql.NewClient(drv, opts...)
	t.Cleanup(func() { client.Close() })
	require.NoError(t, schema.Create(ctx, drv, dialect.SQLite, tables()))

	b := sql.Dialect(dialect.SQLite)
	stmts := []sql.Querier{
		b.Insert("student").Set("name", "alice"),
		b.Insert("student").Set("name", "bob"),
		b.Insert("student").Set("name", "carol"),
		b.Insert("course").Set("code", "CS101").Set("lead_id", 2),
		b.Insert("course").Set("code", "DB200"),
		b.Insert("course").Set("code", "OS300"),
		b.Insert("student_course").Set("student_id", 1).Set("course_id", 1),
		b.Insert("student_course").Set("student_id", 1).Set("course_id", 2),
		b.Insert("student_course").Set("student_id", 2).Set("course_id", 3),
		b.Insert("todo").Set("title", "todo_1").Set("done", true).Set("description", nil),
		b.Insert("todo").Set("title", "todo_2").Set("done", false).Set("description", "second").Set("owner_id", 1),
	}
	for _, q := range stmts {
		_, err := sql.Execute(ctx, drv, q)
		require.NoError(t, err)
	}
	return client
}

func count(t *testing.T, ex linkql.Executor, table string) int64 {
	t.Helper()
	row, err := sql.FetchOne(context.Background(), ex, sql.Dialect(ex.Dialect()).Select("COUNT(*) AS n").From(table))
	require.NoError(t, err)
	n, err := sql.ColumnValue[int64](row, "n")
	require.NoError(t, err)
	return n
}

func codes(outs []*linkql.Output[Course, linkql.Empty]) []string {
	list := make([]string, len(outs))
	for i, o := range outs {
		list[i] = o.Attr.Code
	}
	return list
}
