package configstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/singbox-orbit/node-agent/internal/apperr"
)

func TestListTagged_UnknownCollectionIsBadRequest(t *testing.T) {
	fx := newFixture(t, true, nil, nil)
	_, err := fx.store.ListTagged(context.Background(), "bogus")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.BadRequest))
}

func TestCreateTagged_AppendsAndReturnsCopy(t *testing.T) {
	fx := newFixture(t, true, nil, nil)
	ctx := context.Background()

	created, err := fx.store.CreateTagged(ctx, "inbounds", Document{"tag": "in-1", "type": "mixed"})
	require.NoError(t, err)
	assert.Equal(t, "in-1", created["tag"])

	list, err := fx.store.ListTagged(ctx, "inbounds")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "in-1", list[0]["tag"])
}

func TestCreateTagged_DuplicateTagIsRejected(t *testing.T) {
	fx := newFixture(t, true, nil, nil)
	ctx := context.Background()

	_, err := fx.store.CreateTagged(ctx, "inbounds", Document{"tag": "in-1"})
	require.NoError(t, err)

	_, err = fx.store.CreateTagged(ctx, "inbounds", Document{"tag": "in-1"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.BadRequest))
}

func TestGetTaggedByTag_FoundAndMissing(t *testing.T) {
	fx := newFixture(t, true, nil, nil)
	ctx := context.Background()
	_, err := fx.store.CreateTagged(ctx, "outbounds", Document{"tag": "out-1"})
	require.NoError(t, err)

	item, ok, err := fx.store.GetTaggedByTag(ctx, "outbounds", "out-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "out-1", item["tag"])

	_, ok, err = fx.store.GetTaggedByTag(ctx, "outbounds", "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReplaceTagged_ReplacesWholeItem(t *testing.T) {
	fx := newFixture(t, true, nil, nil)
	ctx := context.Background()
	_, err := fx.store.CreateTagged(ctx, "outbounds", Document{"tag": "out-1", "type": "direct"})
	require.NoError(t, err)

	replaced, err := fx.store.ReplaceTagged(ctx, "outbounds", "out-1", Document{"tag": "out-1", "type": "block"})
	require.NoError(t, err)
	assert.Equal(t, "block", replaced["type"])
}

func TestReplaceTagged_MissingTagIsNotFound(t *testing.T) {
	fx := newFixture(t, true, nil, nil)
	_, err := fx.store.ReplaceTagged(context.Background(), "outbounds", "missing", Document{"tag": "missing"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestReplaceTagged_RenameCollisionIsRejected(t *testing.T) {
	fx := newFixture(t, true, nil, nil)
	ctx := context.Background()
	_, err := fx.store.CreateTagged(ctx, "outbounds", Document{"tag": "out-1"})
	require.NoError(t, err)
	_, err = fx.store.CreateTagged(ctx, "outbounds", Document{"tag": "out-2"})
	require.NoError(t, err)

	_, err = fx.store.ReplaceTagged(ctx, "outbounds", "out-1", Document{"tag": "out-2"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.BadRequest))
}

func TestPatchTagged_MergesTopLevelKeys(t *testing.T) {
	fx := newFixture(t, true, nil, nil)
	ctx := context.Background()
	_, err := fx.store.CreateTagged(ctx, "outbounds", Document{"tag": "out-1", "type": "direct", "server": "1.1.1.1"})
	require.NoError(t, err)

	patched, err := fx.store.PatchTagged(ctx, "outbounds", "out-1", Document{"server": "2.2.2.2"})
	require.NoError(t, err)
	assert.Equal(t, "2.2.2.2", patched["server"])
	assert.Equal(t, "direct", patched["type"])
}

func TestPatchTagged_MissingTagIsNotFound(t *testing.T) {
	fx := newFixture(t, true, nil, nil)
	_, err := fx.store.PatchTagged(context.Background(), "outbounds", "missing", Document{"server": "2.2.2.2"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestDeleteTagged_RemovesItem(t *testing.T) {
	fx := newFixture(t, true, nil, nil)
	ctx := context.Background()
	_, err := fx.store.CreateTagged(ctx, "outbounds", Document{"tag": "out-1"})
	require.NoError(t, err)

	deleted, err := fx.store.DeleteTagged(ctx, "outbounds", "out-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	list, err := fx.store.ListTagged(ctx, "outbounds")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDeleteTagged_AbsentTagReturnsFalseNotError(t *testing.T) {
	fx := newFixture(t, true, nil, nil)
	deleted, err := fx.store.DeleteTagged(context.Background(), "outbounds", "missing")
	require.NoError(t, err)
	assert.False(t, deleted)
}
