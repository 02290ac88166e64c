package service

import (
	"context"
	"testing"

	"academix-api/internal/errdefs"
	"academix-api/internal/models"
	"academix-api/internal/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCourseLifecycle(t *testing.T) {
	st := testutils.NewMemoryStore()
	svc := NewCourseService(st)
	ctx := context.Background()

	created, err := svc.CreateCourse(ctx, &models.Course{Title: "Algebra", Price: 500}, "instructor@x.com")
	require.NoError(t, err)
	assert.Equal(t, "instructor@x.com", created.UserEmail)
	assert.False(t, created.CreatedAt.IsZero())
	id := created.ID.Hex()

	_, err = svc.CreateCourse(ctx, &models.Course{Title: "Physics", UserEmail: "other@x.com"}, "instructor@x.com")
	require.NoError(t, err)

	owned, err := svc.ListCoursesByOwner(ctx, "instructor@x.com")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "Algebra", owned[0].Title)

	all, err := svc.ListCourses(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	res, err := svc.UpdateCourse(ctx, id, map[string]interface{}{
		"price":     "650",
		"userEmail": "thief@x.com",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Matched)

	got, err := svc.GetCourse(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 650.0, got.Price)
	assert.Equal(t, "instructor@x.com", got.UserEmail)

	deleted, err := svc.DeleteCourse(ctx, id)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	_, err = svc.GetCourse(ctx, id)
	assert.ErrorIs(t, err, errdefs.ErrNotFound)

	deleted, err = svc.DeleteCourse(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestCourseValidation(t *testing.T) {
	svc := NewCourseService(testutils.NewMemoryStore())
	ctx := context.Background()

	_, err := svc.CreateCourse(ctx, &models.Course{}, "t@x.com")
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)

	_, err = svc.GetCourse(ctx, "not-an-object-id")
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)

	_, err = svc.UpdateCourse(ctx, "65a000000000000000000001", map[string]interface{}{"price": "cheap"})
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)

	_, err = svc.UpdateCourse(ctx, "65a000000000000000000001", map[string]interface{}{"unknown": 1})
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)
}

func TestUpdateCourseUpsertsMissing(t *testing.T) {
	svc := NewCourseService(testutils.NewMemoryStore())
	res, err := svc.UpdateCourse(context.Background(), "65a000000000000000000002", map[string]interface{}{"title": "New"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Upserted)
}
