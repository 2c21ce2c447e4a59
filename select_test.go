package linkql_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/linkql"
	"github.com/syssam/linkql/dialect"
	"github.com/syssam/linkql/dialect/sql"
	"github.com/syssam/linkql/relation"
)

func TestSelectNoLinks(t *testing.T) {
	ctx := context.Background()
	client := openSchool(t)

	out, err := linkql.Select(Todos, linkql.NoLinks()).WhereID(1).One(ctx, client)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"attr":{"title":"todo_1","done":true,"description":null},"links":{}}`, out.String())

	all, err := linkql.Select(Todos, linkql.NoLinks()).All(ctx, client)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "todo_2", all[1].Attr.Title)
	assert.Equal(t, "second", *all[1].Attr.Description)
	assert.False(t, all[1].Attr.Done)
}

func TestSelectPaging(t *testing.T) {
	ctx := context.Background()
	client := openSchool(t)

	outs, err := linkql.Select(Students, linkql.NoLinks()).
		OrderBy(sql.Desc("student.name")).
		Limit(2).
		Offset(1).
		All(ctx, client)
	require.NoError(t, err)
	require.Len(t, outs, 2)
	assert.Equal(t, "bob", outs[0].Attr.Name)
	assert.Equal(t, "alice", outs[1].Attr.Name)

	outs, err = linkql.Select(Students, linkql.NoLinks()).
		Where(sql.In("student.name", "carol", "alice")).
		All(ctx, client)
	require.NoError(t, err)
	require.Len(t, outs, 2)
	assert.Equal(t, int64(1), outs[0].ID)
	assert.Equal(t, int64(3), outs[1].ID)
}

func TestSelectCardinality(t *testing.T) {
	ctx := context.Background()
	client := openSchool(t)

	_, err := linkql.Select(Todos, linkql.NoLinks()).WhereID(99).One(ctx, client)
	assert.True(t, linkql.IsNotFound(err))

	_, err = linkql.Select(Todos, linkql.NoLinks()).One(ctx, client)
	assert.True(t, linkql.IsNotSingular(err))
	var ns *linkql.NotSingularError
	require.ErrorAs(t, err, &ns)
	assert.Equal(t, 2, ns.Count())

	out, err := linkql.Select(Todos, linkql.NoLinks()).WhereID(99).Optional(ctx, client)
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = linkql.Select(Todos, linkql.NoLinks()).WhereID(2).Optional(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, "todo_2", out.Attr.Title)

	_, err = linkql.Select(Todos, linkql.NoLinks()).Optional(ctx, client)
	assert.True(t, linkql.IsNotSingular(err))
}

func TestSelectManyToMany(t *testing.T) {
	ctx := context.Background()
	client := openSchool(t)

	out, err := linkql.Select(Students, StudentCourses.Select()).WhereID(1).One(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, []string{"CS101", "DB200"}, codes(out.Links))
	assert.JSONEq(t, `{
		"id": 1,
		"attr": {"name": "alice"},
		"links": [
			{"id": 1, "attr": {"code": "CS101"}, "links": {}},
			{"id": 2, "attr": {"code": "DB200"}, "links": {}}
		]
	}`, out.String())

	all, err := linkql.Select(Students, StudentCourses.Select()).All(ctx, client)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"CS101", "DB200"}, codes(all[0].Links))
	assert.Equal(t, []string{"OS300"}, codes(all[1].Links))
	assert.Empty(t, all[2].Links)
	b, err := json.Marshal(all[2].Links)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b))

	inverse, err := linkql.Select(Courses, CourseStudents.Select()).WhereID(3).One(ctx, client)
	require.NoError(t, err)
	require.Len(t, inverse.Links, 1)
	assert.Equal(t, "bob", inverse.Links[0].Attr.Name)
}

func TestSelectCount(t *testing.T) {
	ctx := context.Background()
	client := openSchool(t)

	out, err := linkql.Select(Students, StudentCourses.Count()).WhereID(1).One(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, relation.CountResult(2), out.Links)

	all, err := linkql.Select(Students, StudentCourses.Count()).All(ctx, client)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, want := range []relation.CountResult{2, 1, 0} {
		assert.Equal(t, want, all[i].Links, all[i].Attr.Name)
	}

	byCourse, err := linkql.Select(Courses, CourseStudents.Count()).WhereID(2).One(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, relation.CountResult(1), byCourse.Links)
}

func TestSelectPair(t *testing.T) {
	ctx := context.Background()
	client := openSchool(t)

	out, err := linkql.Select(Students, linkql.Pair(StudentCourses.Select(), StudentCourses.Count())).
		WhereID(1).
		One(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, []string{"CS101", "DB200"}, codes(out.Links.First))
	assert.Equal(t, relation.CountResult(2), out.Links.Second)

	b, err := json.Marshal(out.Links)
	require.NoError(t, err)
	assert.JSONEq(t, `[[{"id":1,"attr":{"code":"CS101"},"links":{}},{"id":2,"attr":{"code":"DB200"},"links":{}}],2]`, string(b))
}

func TestSelectOptional(t *testing.T) {
	ctx := context.Background()
	client := openSchool(t)

	all, err := linkql.Select(Todos, TodoOwner.Select()).All(ctx, client)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Nil(t, all[0].Links)
	require.NotNil(t, all[1].Links)
	assert.Equal(t, int64(1), all[1].Links.ID)
	assert.Equal(t, "alice", all[1].Links.Attr.Name)
	assert.JSONEq(t, `{"id":1,"attr":{"title":"todo_1","done":true,"description":null},"links":null}`, all[0].String())
}

func TestSelectNested(t *testing.T) {
	ctx := context.Background()
	client := openSchool(t)

	classmates := relation.SelectThrough(StudentCourses, CourseStudents.Select())
	out, err := linkql.Select(Students, classmates).WhereID(1).One(ctx, client)
	require.NoError(t, err)
	require.Len(t, out.Links, 2)
	for _, course := range out.Links {
		require.Len(t, course.Links, 1, course.Attr.Code)
		assert.Equal(t, "alice", course.Links[0].Attr.Name)
	}

	codeLen := relation.SelectThrough(StudentCourses, relation.Computed[int64]("LENGTH(course.code)", "code_len"))
	all, err := linkql.Select(Students, codeLen).All(ctx, client)
	require.NoError(t, err)
	require.Len(t, all[1].Links, 1)
	assert.Equal(t, "OS300", all[1].Links[0].Attr.Code)
	assert.Equal(t, int64(5), all[1].Links[0].Links)
}

func TestSelectLinks(t *testing.T) {
	for name, opts := range map[string][]linkql.Option{
		"sequential": nil,
		"concurrent": {linkql.ConcurrentLinks()},
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			client := openSchool(t, opts...)
			links := linkql.NewLinks().
				Add("courses", linkql.EraseSelect(StudentCourses.Select())).
				Add("course_count", linkql.EraseSelect(StudentCourses.Count()))
			assert.Equal(t, []string{"courses", "course_count"}, links.Keys())

			all, err := linkql.Select(Students, links).All(ctx, client)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, relation.CountResult(2), all[0].Links["course_count"])
			list, ok := all[0].Links["courses"].([]*linkql.Output[Course, linkql.Empty])
			require.True(t, ok)
			assert.Equal(t, []string{"CS101", "DB200"}, codes(list))
			assert.Equal(t, relation.CountResult(0), all[2].Links["course_count"])
		})
	}
}

func TestSelectEmptyLinks(t *testing.T) {
	ctx := context.Background()
	client := openSchool(t)

	// An empty set leaves the statement unscoped.
	q := linkql.Select(Todos, linkql.NewLinks())
	query, _ := q.Selector(dialect.SQLite).Query()
	assert.Equal(t, "SELECT id, title, done, description FROM todo ORDER BY todo.id;", query)

	out, err := q.WhereID(1).One(ctx, client)
	require.NoError(t, err)
	assert.Empty(t, out.Links)
}

func TestLinksPanics(t *testing.T) {
	links := linkql.NewLinks().Add("courses", linkql.EraseSelect(StudentCourses.Select()))
	assert.True(t, links.Has("courses"))
	assert.Equal(t, 1, links.Len())
	assert.PanicsWithValue(t, `linkql: link "courses" was already added`, func() {
		links.Add("courses", linkql.EraseSelect(StudentCourses.Count()))
	})
	assert.Panics(t, func() {
		// A select link cannot be attached to a delete.
		links.NewDeleteInner()
	})
}

func TestSelectorScoped(t *testing.T) {
	query, args := linkql.Select(Students, StudentCourses.Count()).
		WhereID(1).
		Selector(dialect.Postgres).
		Query()
	assert.Equal(t, "SELECT student.id AS student_id, student.name AS student_name, "+
		"(SELECT COUNT(*) FROM student_course WHERE student_course.student_id = student.id) AS student_course_count "+
		"FROM student WHERE student.id = $1 ORDER BY student.id;", query)
	assert.Equal(t, []any{int64(1)}, args)
}

// StudentTodos counts the todos a student owns.
var StudentTodos = relation.Count(relation.Junction{Table: "todo", From: "owner_id", To: "id"})

func TestSelectTwoCounts(t *testing.T) {
	ctx := context.Background()
	client := openSchool(t)

	out, err := linkql.Select(Students, linkql.Pair(StudentCourses.Count(), StudentTodos)).WhereID(1).One(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, relation.CountResult(2), out.Links.First)
	assert.Equal(t, relation.CountResult(1), out.Links.Second)

	all, err := linkql.Select(Students, linkql.Pair(StudentTodos, StudentCourses.Count())).All(ctx, client)
	require.NoError(t, err)
	require.Len(t, all, 3)
	got := make([][2]relation.CountResult, len(all))
	for i, o := range all {
		got[i] = [2]relation.CountResult{o.Links.First, o.Links.Second}
	}
	assert.Equal(t, [][2]relation.CountResult{{1, 2}, {0, 1}, {0, 0}}, got)
}

func TestSelectOptionalWithCount(t *testing.T) {
	ctx := context.Background()
	client := openSchool(t)
	const (
		leadItems = "lead.id AS lead_id, lead.name AS lead_name"
		countItem = "(SELECT COUNT(*) FROM student_course WHERE student_course.course_id = course.id) AS student_course_count"
	)

	t.Run("optional_first", func(t *testing.T) {
		q := linkql.Select(Courses, linkql.Pair(CourseLead.Select(), CourseStudents.Count()))
		query, _ := q.Selector(dialect.Postgres).Query()
		assert.Equal(t, "SELECT course.id AS course_id, course.code AS course_code, "+leadItems+", "+countItem+" "+
			"FROM course LEFT JOIN student AS lead ON lead.id = course.lead_id ORDER BY course.id;", query)

		all, err := q.All(ctx, client)
		require.NoError(t, err)
		require.Len(t, all, 3)
		require.NotNil(t, all[0].Links.First)
		assert.Equal(t, "bob", all[0].Links.First.Attr.Name)
		assert.Equal(t, relation.CountResult(1), all[0].Links.Second)
		assert.Nil(t, all[1].Links.First)
		assert.Equal(t, relation.CountResult(1), all[1].Links.Second)
	})

	t.Run("count_first", func(t *testing.T) {
		q := linkql.Select(Courses, linkql.Pair(CourseStudents.Count(), CourseLead.Select()))
		query, _ := q.Selector(dialect.Postgres).Query()
		assert.Equal(t, "SELECT course.id AS course_id, course.code AS course_code, "+countItem+", "+leadItems+" "+
			"FROM course LEFT JOIN student AS lead ON lead.id = course.lead_id ORDER BY course.id;", query)

		out, err := q.WhereID(1).One(ctx, client)
		require.NoError(t, err)
		assert.Equal(t, relation.CountResult(1), out.Links.First)
		require.NotNil(t, out.Links.Second)
		assert.Equal(t, int64(2), out.Links.Second.ID)
	})

	t.Run("two_optionals", func(t *testing.T) {
		q := linkql.Select(Todos, linkql.Pair(TodoOwner.Select(), TodoOwner.As("author").Select())).WhereID(2)
		out, err := q.One(ctx, client)
		require.NoError(t, err)
		require.NotNil(t, out.Links.First)
		require.NotNil(t, out.Links.Second)
		assert.Equal(t, "alice", out.Links.First.Attr.Name)
		assert.Equal(t, "alice", out.Links.Second.Attr.Name)
	})
}
