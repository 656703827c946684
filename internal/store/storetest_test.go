package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stepwise/internal/models"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func newCourse(userID, topic string, createdAt time.Time) models.Course {
	return models.Course{
		UserID:  userID,
		Topic:   topic,
		Depth:   models.DepthOverview,
		Outline: `[{"step":1,"title":"A"},{"step":2,"title":"B"}]`,
		Steps: []models.Step{
			{StepNumber: 1, Title: "A"},
			{StepNumber: 2, Title: "B"},
		},
		CreatedAt: createdAt.UTC().Truncate(time.Millisecond),
	}
}

// runCourseStoreSuite exercises the CourseStore contract against s.
func runCourseStoreSuite(t *testing.T, s Store) {
	ctx := context.Background()
	user := fmt.Sprintf("user-%d", time.Now().UnixNano())
	other := user + "-other"
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("create and list newest first", func(t *testing.T) {
		older, err := s.Create(ctx, newCourse(user, "Older", base))
		require.NoError(t, err)
		newer, err := s.Create(ctx, newCourse(user, "Newer", base.Add(time.Hour)))
		require.NoError(t, err)
		_, err = s.Create(ctx, newCourse(other, "Not mine", base.Add(2*time.Hour)))
		require.NoError(t, err)

		list, err := s.ListForUser(ctx, user)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, newer, list[0].ID)
		assert.Equal(t, older, list[1].ID)
		assert.Equal(t, 1, list[0].Version)
		assert.Equal(t, base.Add(time.Hour), list[0].CreatedAt)

		for _, id := range []string{older, newer} {
			require.NoError(t, s.Delete(ctx, user, id))
		}
	})

	t.Run("partial update round trip", func(t *testing.T) {
		id, err := s.Create(ctx, newCourse(user, "Round trip", base))
		require.NoError(t, err)

		cur, err := s.Get(ctx, user, id)
		require.NoError(t, err)
		steps, ok := models.ApplyStepPatch(cur.Steps, 1, models.StepPatch{Content: strPtr("X"), Completed: boolPtr(true)})
		require.True(t, ok)
		require.NoError(t, s.UpdatePartial(ctx, user, id, models.CourseUpdate{Steps: steps}))

		got, err := s.Get(ctx, user, id)
		require.NoError(t, err)
		assert.Equal(t, []models.Step{
			{StepNumber: 1, Title: "A", Content: strPtr("X"), Completed: true},
			{StepNumber: 2, Title: "B"},
		}, got.Steps)
		assert.Equal(t, cur.Outline, got.Outline)
		assert.Equal(t, cur.Topic, got.Topic)
		assert.Equal(t, 2, got.Version)
	})

	t.Run("update without steps only bumps version", func(t *testing.T) {
		id, err := s.Create(ctx, newCourse(user, "Bump", base))
		require.NoError(t, err)
		require.NoError(t, s.UpdatePartial(ctx, user, id, models.CourseUpdate{}))
		got, err := s.Get(ctx, user, id)
		require.NoError(t, err)
		assert.Len(t, got.Steps, 2)
		assert.Equal(t, 2, got.Version)
	})

	t.Run("expected version", func(t *testing.T) {
		id, err := s.Create(ctx, newCourse(user, "Versioned", base))
		require.NoError(t, err)

		require.NoError(t, s.UpdatePartial(ctx, user, id, models.CourseUpdate{ExpectedVersion: intPtr(1)}))
		err = s.UpdatePartial(ctx, user, id, models.CourseUpdate{ExpectedVersion: intPtr(1)})
		assert.ErrorIs(t, err, ErrConflict)

		err = s.UpdatePartial(ctx, user, "missing", models.CourseUpdate{ExpectedVersion: intPtr(1)})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ownership is enforced", func(t *testing.T) {
		id, err := s.Create(ctx, newCourse(user, "Private", base))
		require.NoError(t, err)

		_, err = s.Get(ctx, other, id)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.UpdatePartial(ctx, other, id, models.CourseUpdate{}), ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, other, id), ErrNotFound)

		_, err = s.Get(ctx, user, id)
		assert.NoError(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		id, err := s.Create(ctx, newCourse(user, "Doomed", base))
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, user, id))

		_, err = s.Get(ctx, user, id)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, user, id), ErrNotFound)

		list, err := s.ListForUser(ctx, user)
		require.NoError(t, err)
		for _, c := range list {
			assert.NotEqual(t, id, c.ID)
		}
	})

	t.Run("users", func(t *testing.T) {
		email := user + "@Example.com"
		u, err := s.CreateUser(ctx, models.User{Email: email, PasswordHash: "hash", DisplayName: "Ada"})
		require.NoError(t, err)
		assert.NotEmpty(t, u.ID)

		_, err = s.CreateUser(ctx, models.User{Email: email, PasswordHash: "hash"})
		assert.ErrorIs(t, err, ErrEmailTaken)

		got, err := s.GetUserByEmail(ctx, email)
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.Equal(t, "hash", got.PasswordHash)

		byID, err := s.GetUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ada", byID.DisplayName)

		_, err = s.GetUserByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func boolPtr(b bool) *bool { return &b }
