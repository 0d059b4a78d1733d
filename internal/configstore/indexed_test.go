package configstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/singbox-orbit/node-agent/internal/apperr"
)

func TestListIndexed_UnknownCollectionIsBadRequest(t *testing.T) {
	fx := newFixture(t, true, nil, nil)
	_, err := fx.store.ListIndexed(context.Background(), "bogus")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.BadRequest))
}

func TestCreateIndexed_AppendsAndReturnsNewIndex(t *testing.T) {
	fx := newFixture(t, true, nil, nil)
	ctx := context.Background()

	idx0, _, err := fx.store.CreateIndexed(ctx, "route.rules", Document{"action": "route"})
	require.NoError(t, err)
	assert.Equal(t, 0, idx0)

	idx1, _, err := fx.store.CreateIndexed(ctx, "route.rules", Document{"action": "reject"})
	require.NoError(t, err)
	assert.Equal(t, 1, idx1)

	list, err := fx.store.ListIndexed(ctx, "route.rules")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "reject", list[1]["action"])
}

func TestGetIndexed_OutOfRangeIsNotFound(t *testing.T) {
	fx := newFixture(t, true, nil, nil)
	_, err := fx.store.GetIndexed(context.Background(), "route.rules", 0)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestReplaceIndexed_ReplacesItemAtIndex(t *testing.T) {
	fx := newFixture(t, true, nil, nil)
	ctx := context.Background()
	_, _, err := fx.store.CreateIndexed(ctx, "dns.rules", Document{"action": "route"})
	require.NoError(t, err)

	replaced, err := fx.store.ReplaceIndexed(ctx, "dns.rules", 0, Document{"action": "reject"})
	require.NoError(t, err)
	assert.Equal(t, "reject", replaced["action"])
}

func TestReplaceIndexed_OutOfRangeIsNotFound(t *testing.T) {
	fx := newFixture(t, true, nil, nil)
	_, err := fx.store.ReplaceIndexed(context.Background(), "dns.rules", 3, Document{"action": "reject"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestDeleteIndexed_RemovesItemAndShiftsRemaining(t *testing.T) {
	fx := newFixture(t, true, nil, nil)
	ctx := context.Background()
	_, _, err := fx.store.CreateIndexed(ctx, "route.rules", Document{"action": "a"})
	require.NoError(t, err)
	_, _, err = fx.store.CreateIndexed(ctx, "route.rules", Document{"action": "b"})
	require.NoError(t, err)

	require.NoError(t, fx.store.DeleteIndexed(ctx, "route.rules", 0))

	list, err := fx.store.ListIndexed(ctx, "route.rules")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0]["action"])
}

func TestDeleteIndexed_OutOfRangeIsNotFound(t *testing.T) {
	fx := newFixture(t, true, nil, nil)
	err := fx.store.DeleteIndexed(context.Background(), "route.rules", 0)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestReorderIndexed_MovesItemToNewPosition(t *testing.T) {
	fx := newFixture(t, true, nil, nil)
	ctx := context.Background()
	_, _, err := fx.store.CreateIndexed(ctx, "route.rules", Document{"action": "a"})
	require.NoError(t, err)
	_, _, err = fx.store.CreateIndexed(ctx, "route.rules", Document{"action": "b"})
	require.NoError(t, err)
	_, _, err = fx.store.CreateIndexed(ctx, "route.rules", Document{"action": "c"})
	require.NoError(t, err)

	require.NoError(t, fx.store.ReorderIndexed(ctx, "route.rules", 0, 2))

	list, err := fx.store.ListIndexed(ctx, "route.rules")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []interface{}{"b", "c", "a"}, []interface{}{list[0]["action"], list[1]["action"], list[2]["action"]})
}

func TestReorderIndexed_OutOfRangeIsBadRequest(t *testing.T) {
	fx := newFixture(t, true, nil, nil)
	ctx := context.Background()
	_, _, err := fx.store.CreateIndexed(ctx, "route.rules", Document{"action": "a"})
	require.NoError(t, err)

	err = fx.store.ReorderIndexed(ctx, "route.rules", 0, 5)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.BadRequest))
}
