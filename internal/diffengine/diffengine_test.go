package diffengine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/singbox-orbit/node-agent/internal/apperr"
	"github.com/singbox-orbit/node-agent/internal/backupstore"
	"github.com/singbox-orbit/node-agent/internal/configstore"
	"github.com/singbox-orbit/node-agent/internal/validator"
)

func TestDiff_AddedRemovedAndModified(t *testing.T) {
	old := Document{
		"log":  Document{"level": "info"},
		"ntp":  Document{"server": "time.apple.com"},
		"dns":  Document{"servers": []interface{}{Document{"address": "8.8.8.8"}}},
		"misc": "stays-the-same",
	}
	candidate := Document{
		"log":       Document{"level": "debug"},
		"dns":       Document{"servers": []interface{}{Document{"address": "1.1.1.1"}}},
		"misc":      "stays-the-same",
		"new_field": "added-value",
	}

	records := Diff(old, candidate)

	byPath := make(map[string]ChangeRecord, len(records))
	for _, r := range records {
		byPath[r.Path] = r
	}

	require.Contains(t, byPath, "log.level")
	assert.Equal(t, Modified, byPath["log.level"].Kind)

	require.Contains(t, byPath, "ntp")
	assert.Equal(t, Removed, byPath["ntp"].Kind)

	require.Contains(t, byPath, "new_field")
	assert.Equal(t, Added, byPath["new_field"].Kind)

	require.Contains(t, byPath, "dns.servers")
	assert.Equal(t, Modified, byPath["dns.servers"].Kind)

	assert.NotContains(t, byPath, "misc")
}

func TestDiff_ArraysCompareByJSONEqualityWithoutRecursion(t *testing.T) {
	old := Document{"outbounds": []interface{}{Document{"tag": "a"}, Document{"tag": "b"}}}
	candidate := Document{"outbounds": []interface{}{Document{"tag": "a"}, Document{"tag": "b"}}}

	records := Diff(old, candidate)
	assert.Empty(t, records)
}

func TestDiff_NestedObjectModificationReportsLeafPath(t *testing.T) {
	old := Document{"route": Document{"final": "direct-out", "auto_detect_interface": true}}
	candidate := Document{"route": Document{"final": "proxy-out", "auto_detect_interface": true}}

	records := Diff(old, candidate)
	require.Len(t, records, 1)
	assert.Equal(t, "route.final", records[0].Path)
	assert.Equal(t, Modified, records[0].Kind)
}

func TestSanitize_RedactsSecretLikePaths(t *testing.T) {
	records := []ChangeRecord{
		{Path: "outbounds.password", Kind: Modified, OldValue: "old-pw", NewValue: "new-pw"},
		{Path: "log.level", Kind: Modified, OldValue: "info", NewValue: "debug"},
	}

	sanitized := Sanitize(records)
	assert.Equal(t, "***REDACTED***", sanitized[0].OldValue)
	assert.Equal(t, "***REDACTED***", sanitized[0].NewValue)
	assert.Equal(t, "info", sanitized[1].OldValue)
}

func TestSummary_CountsByKind(t *testing.T) {
	records := []ChangeRecord{
		{Kind: Added}, {Kind: Added}, {Kind: Modified}, {Kind: Removed},
	}
	assert.Equal(t, "2 added, 1 modified, 1 removed", Summary(records))
}

func TestSummary_NoChanges(t *testing.T) {
	assert.Equal(t, "no changes", Summary(nil))
}

// --- Engine (Export/Import) ---

func writeValidatorStub(t *testing.T, dir string, exitCode int) string {
	t.Helper()
	path := filepath.Join(dir, "fake-singbox.sh")
	script := fmt.Sprintf(`#!/bin/sh
case "$1" in
  version)
    echo "sing-box version 1.9.0(test)"
    ;;
  *)
    exit %d
    ;;
esac
`, exitCode)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

type engineFixture struct {
	engine *Engine
	store  *configstore.Store
	path   string
}

func newEngineFixture(t *testing.T, valid bool) engineFixture {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	initial := Document{"log": Document{"level": "info"}, "inbounds": []interface{}{}, "outbounds": []interface{}{}}
	data, err := json.Marshal(initial)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	exitCode := 0
	if !valid {
		exitCode = 1
	}
	stub := writeValidatorStub(t, dir, exitCode)
	v := validator.New(stub, dir, time.Second, validator.CacheConfig{}, nil, nil, nil)

	store := configstore.New(configstore.Options{Path: path, BackupsEnabled: true, AutoReloadEnabled: false}, nil, v, nil, nil, nil, nil)
	engine := New(store, stub, nil)
	return engineFixture{engine: engine, store: store, path: path}
}

func TestEngine_ExportReturnsDocumentAndMetadata(t *testing.T) {
	fx := newEngineFixture(t, true)
	ctx := context.Background()

	result, err := fx.engine.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, "info", result.Config["log"].(Document)["level"])
	assert.Equal(t, exportFormatVersion, result.Metadata.Version)
	require.NotNil(t, result.Metadata.SingboxVersion)
	assert.Equal(t, "1.9.0(test)", *result.Metadata.SingboxVersion)
	assert.WithinDuration(t, time.Now(), result.Metadata.ExportedAt, time.Second)
}

func TestEngine_ImportRejectsNonObjectConfig(t *testing.T) {
	fx := newEngineFixture(t, true)
	_, err := fx.engine.Import(context.Background(), ImportPayload{}, DefaultImportOptions())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.InvalidType))
}

func TestEngine_ImportReplacesDocumentWholesaleWhenNotMerging(t *testing.T) {
	fx := newEngineFixture(t, true)
	ctx := context.Background()

	payload := ImportPayload{Config: Document{"log": Document{"level": "trace"}}}
	result, err := fx.engine.Import(ctx, payload, DefaultImportOptions())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "trace", result.Config["log"].(Document)["level"])
	assert.NotContains(t, result.Config, "inbounds")
}

func TestEngine_ImportMergesOntoCurrentDocumentWhenRequested(t *testing.T) {
	fx := newEngineFixture(t, true)
	ctx := context.Background()

	opts := DefaultImportOptions()
	opts.Merge = true
	payload := ImportPayload{Config: Document{"log": Document{"level": "trace"}}}
	result, err := fx.engine.Import(ctx, payload, opts)
	require.NoError(t, err)
	assert.Equal(t, "trace", result.Config["log"].(Document)["level"])
	assert.Contains(t, result.Config, "inbounds")
}

func TestEngine_ImportCreatesBackupBeforeWriting(t *testing.T) {
	backups, err := backupstore.New(t.TempDir(), 10, nil, nil, nil)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"log":{"level":"info"}}`), 0o644))
	stub := writeValidatorStub(t, dir, 0)
	v := validator.New(stub, dir, time.Second, validator.CacheConfig{}, nil, nil, nil)
	store := configstore.New(configstore.Options{Path: path, BackupsEnabled: true}, backups, v, nil, nil, nil, nil)
	engine := New(store, stub, nil)

	_, err = engine.Import(context.Background(), ImportPayload{Config: Document{"log": Document{"level": "debug"}}}, DefaultImportOptions())
	require.NoError(t, err)

	list, err := backups.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "before-import", list[0].Reason)
}

func TestEngine_ImportSkipsBackupWhenOptedOut(t *testing.T) {
	backups, err := backupstore.New(t.TempDir(), 10, nil, nil, nil)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"log":{"level":"info"}}`), 0o644))
	stub := writeValidatorStub(t, dir, 0)
	v := validator.New(stub, dir, time.Second, validator.CacheConfig{}, nil, nil, nil)
	store := configstore.New(configstore.Options{Path: path, BackupsEnabled: true}, backups, v, nil, nil, nil, nil)
	engine := New(store, stub, nil)

	opts := DefaultImportOptions()
	opts.CreateBackup = false
	_, err = engine.Import(context.Background(), ImportPayload{Config: Document{"log": Document{"level": "debug"}}}, opts)
	require.NoError(t, err)

	list, err := backups.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestEngine_ImportSkipsValidationWhenOptedOut(t *testing.T) {
	fx := newEngineFixture(t, false)

	opts := DefaultImportOptions()
	opts.Validate = false
	result, err := fx.engine.Import(context.Background(), ImportPayload{Config: Document{"log": Document{"level": "debug"}}}, opts)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestEngine_ImportPropagatesValidationFailure(t *testing.T) {
	fx := newEngineFixture(t, false)

	_, err := fx.engine.Import(context.Background(), ImportPayload{Config: Document{"log": Document{"level": "debug"}}}, DefaultImportOptions())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ConfigValidationError))
}

func TestEngine_ImportWarnsOnMetadataVersionMismatch(t *testing.T) {
	fx := newEngineFixture(t, true)

	payload := ImportPayload{
		Config:   Document{"log": Document{"level": "debug"}},
		Metadata: Document{"version": "0.9"},
	}
	result, err := fx.engine.Import(context.Background(), payload, DefaultImportOptions())
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "0.9")
}

func TestEngine_ImportWarnsOnBinaryVersionMismatch(t *testing.T) {
	fx := newEngineFixture(t, true)

	payload := ImportPayload{
		Config:   Document{"log": Document{"level": "debug"}},
		Metadata: Document{"version": exportFormatVersion, "singboxVersion": "9.9.9"},
	}
	result, err := fx.engine.Import(context.Background(), payload, DefaultImportOptions())
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "9.9.9")
}
