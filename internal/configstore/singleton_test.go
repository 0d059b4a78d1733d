package configstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/singbox-orbit/node-agent/internal/apperr"
)

func TestGetSection_UnknownSectionIsBadRequest(t *testing.T) {
	fx := newFixture(t, true, nil, nil)
	_, err := fx.store.GetSection(context.Background(), "bogus")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.BadRequest))
}

func TestGetSection_AbsentSectionIsNotFound(t *testing.T) {
	fx := newFixture(t, true, nil, nil)
	_, err := fx.store.GetSection(context.Background(), "certificate")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestSetSection_ReplacesSectionWholesale(t *testing.T) {
	fx := newFixture(t, true, nil, nil)
	ctx := context.Background()

	got, err := fx.store.SetSection(ctx, "log", Document{"level": "debug", "output": "stderr"})
	require.NoError(t, err)
	assert.Equal(t, "debug", got["level"])

	again, err := fx.store.GetSection(ctx, "log")
	require.NoError(t, err)
	assert.Equal(t, "stderr", again["output"])
}

func TestSetSection_PreservesCollectionOwnedKeys(t *testing.T) {
	fx := newFixture(t, true, nil, nil)
	ctx := context.Background()

	_, _, err := fx.store.CreateIndexed(ctx, "route.rules", Document{"action": "route"})
	require.NoError(t, err)

	// A whole-section set of "route" must never clobber the rules array
	// owned by the indexed-collection endpoints, even if the caller tries.
	got, err := fx.store.SetSection(ctx, "route", Document{
		"final": "direct-out",
		"rules": []interface{}{Document{"action": "reject"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "direct-out", got["final"])

	rules, err := fx.store.ListIndexed(ctx, "route.rules")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "route", rules[0]["action"])
}

func TestPatchSection_MergesAndPreservesCollectionOwnedKeys(t *testing.T) {
	fx := newFixture(t, true, nil, nil)
	ctx := context.Background()

	_, err := fx.store.SetSection(ctx, "route", Document{"final": "direct-out"})
	require.NoError(t, err)
	_, _, err = fx.store.CreateIndexed(ctx, "route.rules", Document{"action": "route"})
	require.NoError(t, err)

	got, err := fx.store.PatchSection(ctx, "route", Document{
		"final": "proxy-out",
		"rules": []interface{}{},
	})
	require.NoError(t, err)
	assert.Equal(t, "proxy-out", got["final"])

	rules, err := fx.store.ListIndexed(ctx, "route.rules")
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestDeleteSection_RemovesPresentSection(t *testing.T) {
	fx := newFixture(t, true, nil, nil)
	ctx := context.Background()
	_, err := fx.store.SetSection(ctx, "certificate", Document{"certificate_path": "/etc/cert.pem"})
	require.NoError(t, err)

	deleted, err := fx.store.DeleteSection(ctx, "certificate")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = fx.store.GetSection(ctx, "certificate")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestDeleteSection_AbsentSectionReturnsFalseNotError(t *testing.T) {
	fx := newFixture(t, true, nil, nil)
	deleted, err := fx.store.DeleteSection(context.Background(), "certificate")
	require.NoError(t, err)
	assert.False(t, deleted)
}
