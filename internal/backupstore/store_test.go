package backupstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, maxCount int) *Store {
	t.Helper()
	s, err := New(t.TempDir(), maxCount, nil, nil, nil)
	require.NoError(t, err)
	return s
}

func TestStore_CreateAndRoundTrip(t *testing.T) {
	s := newTestStore(t, 10)
	ctx := context.Background()

	b, err := s.Create(ctx, []byte(`{"a":1}`), "manual")
	require.NoError(t, err)
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, "manual", b.Reason)

	got, ok := s.Get(b.ID)
	require.True(t, ok)
	assert.Equal(t, b.ID, got.ID)

	content, ok := s.GetContent(b.ID)
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(content))
}

func TestStore_DuplicateContentDeduplicates(t *testing.T) {
	s := newTestStore(t, 10)
	ctx := context.Background()

	first, err := s.Create(ctx, []byte(`{"a":1}`), "r1")
	require.NoError(t, err)

	second, err := s.Create(ctx, []byte(`{"a":1}`), "r2")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, "r1", second.Reason, "dedup hit discards the new reason")

	list, err := s.List()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStore_ListOrderedByCreatedAtDescending(t *testing.T) {
	s := newTestStore(t, 10)
	ctx := context.Background()

	_, err := s.Create(ctx, []byte(`{"a":1}`), "r1")
	require.NoError(t, err)
	_, err = s.Create(ctx, []byte(`{"a":2}`), "r2")
	require.NoError(t, err)
	third, err := s.Create(ctx, []byte(`{"a":3}`), "r3")
	require.NoError(t, err)

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, third.ID, list[0].ID)
}

func TestStore_RotationEnforcesMaxCount(t *testing.T) {
	s := newTestStore(t, 2)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.Create(ctx, []byte(string(rune('a'+i))), "manual")
		require.NoError(t, err)
	}

	list, err := s.List()
	require.NoError(t, err)
	assert.LessOrEqual(t, len(list), 2)
}

func TestStore_GetMissingReturnsAbsentNotError(t *testing.T) {
	s := newTestStore(t, 10)

	_, ok := s.Get("does-not-exist")
	assert.False(t, ok)

	_, ok = s.GetContent("does-not-exist")
	assert.False(t, ok)
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t, 10)
	ctx := context.Background()

	b, err := s.Create(ctx, []byte(`{"a":1}`), "manual")
	require.NoError(t, err)

	assert.True(t, s.Delete(ctx, b.ID))
	assert.False(t, s.Delete(ctx, b.ID), "second delete of the same id reports false")

	_, ok := s.Get(b.ID)
	assert.False(t, ok)
}
