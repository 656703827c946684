package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCourseStore(t *testing.T) {
	runCourseStoreSuite(t, NewMemory())
}

func TestMemoryListTiesKeepInsertionOrder(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	first, err := s.Create(ctx, newCourse("u", "first", at))
	require.NoError(t, err)
	second, err := s.Create(ctx, newCourse("u", "second", at))
	require.NoError(t, err)

	list, err := s.ListForUser(ctx, "u")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second, list[0].ID)
	assert.Equal(t, first, list[1].ID)
}

func TestMemoryReturnsCopies(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	id, err := s.Create(ctx, newCourse("u", "copy", time.Now()))
	require.NoError(t, err)

	c, err := s.Get(ctx, "u", id)
	require.NoError(t, err)
	c.Steps[0].Title = "mutated"
	c.Steps[0].Content = strPtr("leak")

	again, err := s.Get(ctx, "u", id)
	require.NoError(t, err)
	assert.Equal(t, "A", again.Steps[0].Title)
	assert.Nil(t, again.Steps[0].Content)
}
