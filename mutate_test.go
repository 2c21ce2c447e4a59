package linkql_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/linkql"
	"github.com/syssam/linkql/dialect/sql/sqlgraph"
)

func TestInsert(t *testing.T) {
	ctx := context.Background()
	client := openSchool(t)

	out, err := linkql.Insert(Students, Student{Name: "dave"}, StudentCourses.Connect(1, 3, 1)).Exec(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, int64(4), out.ID)
	assert.Equal(t, "dave", out.Attr.Name)
	assert.Equal(t, []int64{1, 3}, out.Links)

	got, err := linkql.Select(Students, StudentCourses.Select()).WhereID(out.ID).One(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, []string{"CS101", "OS300"}, codes(got.Links))

	todo, err := linkql.Insert(Todos, Todo{Title: "todo_3"}, TodoOwner.Assign(2)).Exec(ctx, client)
	require.NoError(t, err)
	require.NotNil(t, todo.Links)
	assert.Equal(t, int64(2), *todo.Links)
	assert.Nil(t, todo.Attr.Description)

	owned, err := linkql.Select(Todos, TodoOwner.Select()).WhereID(todo.ID).One(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, "bob", owned.Links.Attr.Name)
}

func TestInsertNoLinks(t *testing.T) {
	ctx := context.Background()
	client := openSchool(t)

	desc := "third"
	out, err := linkql.Insert(Todos, Todo{Title: "todo_3", Description: &desc}, linkql.NoLinks()).Exec(ctx, client)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":3,"attr":{"title":"todo_3","done":false,"description":"third"},"links":{}}`, out.String())
}

func TestInsertRollback(t *testing.T) {
	ctx := context.Background()
	client := openSchool(t)

	// The junction write fails on the unknown course, the student row is
	// rolled back with it.
	_, err := linkql.Insert(Students, Student{Name: "eve"}, StudentCourses.Connect(99)).Exec(ctx, client)
	require.Error(t, err)
	assert.True(t, linkql.IsMutationError(err))
	var ce *linkql.ConstraintError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, sqlgraph.ForeignKeyConstraint, ce.Kind)
	assert.Equal(t, int64(3), count(t, client, "student"))

	_, err = linkql.Insert(Courses, Course{Code: "CS101"}, linkql.NoLinks()).Exec(ctx, client)
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, sqlgraph.UniqueConstraint, ce.Kind)
	assert.Equal(t, int64(3), count(t, client, "course"))
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	client := openSchool(t)

	out, err := linkql.Update(Students, StudentPatch{Name: linkql.Set("alicia")}, StudentCourses.Replace(3)).
		WhereID(1).
		One(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, "alicia", out.Attr.Name)
	assert.Equal(t, []int64{3}, out.Links)

	got, err := linkql.Select(Students, StudentCourses.Select()).WhereID(1).One(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, []string{"OS300"}, codes(got.Links))
	assert.Equal(t, int64(2), count(t, client, "student_course"))
}

func TestUpdateLinksOnly(t *testing.T) {
	ctx := context.Background()
	client := openSchool(t)

	out, err := linkql.Update(Students, StudentPatch{}, StudentCourses.Connect(2)).WhereID(2).One(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, "bob", out.Attr.Name)

	got, err := linkql.Select(Students, StudentCourses.Select()).WhereID(2).One(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, []string{"DB200", "OS300"}, codes(got.Links))

	cleared, err := linkql.Update(Todos, TodoPatch{}, TodoOwner.Clear()).WhereID(2).One(ctx, client)
	require.NoError(t, err)
	assert.Nil(t, cleared.Links)
	todo, err := linkql.Select(Todos, TodoOwner.Select()).WhereID(2).One(ctx, client)
	require.NoError(t, err)
	assert.Nil(t, todo.Links)
}

func TestUpdatePatch(t *testing.T) {
	ctx := context.Background()
	client := openSchool(t)

	_, err := linkql.Update(Todos, TodoPatch{}, linkql.NoLinks()).WhereID(1).Exec(ctx, client)
	assert.ErrorIs(t, err, linkql.ErrEmptyUpdate)

	out, err := linkql.Update(Todos, TodoPatch{Description: linkql.Set[*string](nil)}, linkql.NoLinks()).
		WhereID(2).
		One(ctx, client)
	require.NoError(t, err)
	assert.Nil(t, out.Attr.Description)
	assert.Equal(t, "todo_2", out.Attr.Title)

	outs, err := linkql.Update(Todos, TodoPatch{Done: linkql.Set(false)}, linkql.NoLinks()).Exec(ctx, client)
	require.NoError(t, err)
	require.Len(t, outs, 2)
	for _, o := range outs {
		assert.False(t, o.Attr.Done)
	}
}

func TestUpdateCardinality(t *testing.T) {
	ctx := context.Background()
	client := openSchool(t)

	_, err := linkql.Update(Todos, TodoPatch{Title: linkql.Set("x")}, linkql.NoLinks()).WhereID(99).One(ctx, client)
	assert.True(t, linkql.IsNotFound(err))

	// Both rows match, the update is rolled back.
	_, err = linkql.Update(Todos, TodoPatch{Title: linkql.Set("same")}, linkql.NoLinks()).One(ctx, client)
	assert.True(t, linkql.IsNotSingular(err))
	all, err := linkql.Select(Todos, linkql.NoLinks()).All(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, "todo_1", all[0].Attr.Title)
	assert.Equal(t, "todo_2", all[1].Attr.Title)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	client := openSchool(t)

	out, err := linkql.Delete(Students, 1, StudentCourses.Detach()).Exec(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.ID)
	assert.Equal(t, "alice", out.Attr.Name)
	assert.Equal(t, int64(2), out.Links)
	assert.Equal(t, int64(1), count(t, client, "student_course"))

	// The owner foreign key of todo_2 is set to NULL.
	todo, err := linkql.Select(Todos, TodoOwner.Select()).WhereID(2).One(ctx, client)
	require.NoError(t, err)
	assert.Nil(t, todo.Links)

	_, err = linkql.Delete(Students, 1, StudentCourses.Detach()).Exec(ctx, client)
	assert.True(t, linkql.IsNotFound(err))
	var nf *linkql.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, int64(1), nf.ID())
}

func TestDeleteLinks(t *testing.T) {
	ctx := context.Background()
	client := openSchool(t)

	links := linkql.NewLinks().Add("courses", linkql.EraseDelete(StudentCourses.Detach()))
	out, err := linkql.Delete(Students, 2, links).Exec(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"courses": int64(1)}, out.Links)

	todo, err := linkql.Delete(Todos, 1, linkql.NoLinks()).Exec(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, "todo_1", todo.Attr.Title)
	assert.Equal(t, int64(1), count(t, client, "todo"))
}

func TestWriteLinks(t *testing.T) {
	ctx := context.Background()
	client := openSchool(t)

	ins := linkql.NewLinks().Add("courses", linkql.EraseInsert(StudentCourses.Connect(2)))
	out, err := linkql.Insert(Students, Student{Name: "dave"}, ins).Exec(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"courses": []int64{2}}, out.Links)

	up := linkql.NewLinks().Add("courses", linkql.EraseUpdate(StudentCourses.Replace()))
	updated, err := linkql.Update(Students, StudentPatch{}, up).WhereID(out.ID).One(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"courses": []int64{}}, updated.Links)

	got, err := linkql.Select(Students, StudentCourses.Count()).WhereID(out.ID).One(ctx, client)
	require.NoError(t, err)
	assert.Zero(t, got.Links)
}
