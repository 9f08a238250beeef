package lix_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lixdb/lix"
	"github.com/lixdb/lix/internal/plugin"
)

func openMemory(t *testing.T) *lix.Handle {
	t.Helper()
	h, err := lix.Open(context.Background(), lix.Config{EmbeddedPath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestOpenBootstrapsQueryableState(t *testing.T) {
	h := openMemory(t)

	res, err := h.Execute(context.Background(), "SELECT COUNT(*) FROM lix_state WHERE schema_key = 'lix_internal_kv'")
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
}

func TestOpenRequiresABackend(t *testing.T) {
	_, err := lix.Open(context.Background(), lix.Config{})
	require.Error(t, err)

	engineErr, ok := lix.AsEngineError(err)
	require.True(t, ok)
	assert.Equal(t, lix.KindValidation, engineErr.Kind)
}

func TestWriteFileReadFileBinaryFallbackRoundTrips(t *testing.T) {
	h := openMemory(t)
	ctx := context.Background()

	content := []byte("hello from an unrecognized file format")
	require.NoError(t, h.WriteFile(ctx, "/notes/todo.bin", nil, content))

	got, err := h.ReadFile(ctx, "/notes/todo.bin")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestWriteFileOverwriteReadsLatestBytes(t *testing.T) {
	h := openMemory(t)
	ctx := context.Background()

	require.NoError(t, h.WriteFile(ctx, "/a.bin", nil, []byte("v1")))
	first, err := h.ReadFile(ctx, "/a.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), first)

	require.NoError(t, h.WriteFile(ctx, "/a.bin", first, []byte("v2")))
	second, err := h.ReadFile(ctx, "/a.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), second)
}

func TestReadFileUnknownPathReturnsNotFound(t *testing.T) {
	h := openMemory(t)

	_, err := h.ReadFile(context.Background(), "/never/written.txt")
	require.Error(t, err)

	engineErr, ok := lix.AsEngineError(err)
	require.True(t, ok)
	assert.Equal(t, lix.KindNotFound, engineErr.Kind)
}

func TestInstallPluginRejectsIncompleteManifest(t *testing.T) {
	h := openMemory(t)

	err := h.InstallPlugin(plugin.Manifest{
		Key:            "md-notes",
		RuntimeVersion: "subprocess-v1",
		Entry:          "plugin.wasm",
		APIVersion:     "1",
		// DetectChangesGlob deliberately omitted.
	}, nil)
	require.Error(t, err)
}

func TestExportSnapshotUnsupportedForInMemoryBackend(t *testing.T) {
	h := openMemory(t)

	_, err := h.ExportSnapshot(context.Background())
	require.Error(t, err)
}

func TestDeterministicClockProducesIdenticalBootstrapTimestamps(t *testing.T) {
	ctx := context.Background()
	cfg := lix.Config{EmbeddedPath: ":memory:", Deterministic: true, Seed: 1700000000}

	h1, err := lix.Open(ctx, cfg)
	require.NoError(t, err)
	defer h1.Close()
	h2, err := lix.Open(ctx, cfg)
	require.NoError(t, err)
	defer h2.Close()

	res1, err := h1.Execute(ctx, "SELECT created_at FROM lix_version_descriptor WHERE id = 'main'")
	require.NoError(t, err)
	res2, err := h2.Execute(ctx, "SELECT created_at FROM lix_version_descriptor WHERE id = 'main'")
	require.NoError(t, err)

	require.Len(t, res1.Rows, 1)
	require.Len(t, res2.Rows, 1)
	assert.Equal(t, res1.Rows[0][0], res2.Rows[0][0])
}
