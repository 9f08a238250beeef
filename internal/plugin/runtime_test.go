package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlugin struct {
	detectFn func(ctx context.Context, desc FileDescriptor, before, after []byte) ([]DetectedEntity, error)
	applyFn  func(ctx context.Context, desc FileDescriptor, entities []DetectedEntity) ([]byte, error)
	builds   int
}

func (f *fakePlugin) DetectChanges(ctx context.Context, desc FileDescriptor, before, after []byte) ([]DetectedEntity, error) {
	return f.detectFn(ctx, desc, before, after)
}

func (f *fakePlugin) ApplyChanges(ctx context.Context, desc FileDescriptor, entities []DetectedEntity) ([]byte, error) {
	return f.applyFn(ctx, desc, entities)
}

func newTestRegistry(t *testing.T) (*Registry, *fakePlugin) {
	t.Helper()
	fp := &fakePlugin{
		detectFn: func(ctx context.Context, desc FileDescriptor, before, after []byte) ([]DetectedEntity, error) {
			return []DetectedEntity{{EntityID: "e1", SchemaKey: "json_prop", SnapshotContent: map[string]any{"v": 1}}}, nil
		},
		applyFn: func(ctx context.Context, desc FileDescriptor, entities []DetectedEntity) ([]byte, error) {
			return []byte(`{"applied":true}`), nil
		},
	}
	reg := NewRegistry()
	reg.RegisterFactory("test-v1", func(ctx context.Context, inst Installed) (Plugin, error) {
		fp.builds++
		return fp, nil
	})
	require.NoError(t, reg.Install(Installed{Manifest: Manifest{
		Key: "json-plugin", RuntimeVersion: "test-v1",
		DetectChangesGlob: "**/*.json", Entry: "index", APIVersion: "v1",
	}}))
	return reg, fp
}

func TestResolveMatchesGlob(t *testing.T) {
	reg, _ := newTestRegistry(t)
	m, ok := reg.Resolve("config.json")
	assert.True(t, ok)
	assert.Equal(t, "json-plugin", m.Key)

	_, ok = reg.Resolve("config.bin")
	assert.False(t, ok)
}

func TestDetectWriteNormalizesSnapshotContent(t *testing.T) {
	reg, _ := newTestRegistry(t)
	rt := NewRuntime(reg, nil)

	handled, batch, err := rt.DetectWrite(context.Background(), FileDescriptor{FileID: "f1", Path: "config.json"}, nil, []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, handled)
	require.Len(t, batch, 1)
	assert.Equal(t, "e1", batch[0].EntityID)
	assert.JSONEq(t, `{"v":1}`, string(batch[0].SnapshotContent))
}

func TestDetectWriteFallsBackWhenNoPluginMatches(t *testing.T) {
	reg, _ := newTestRegistry(t)
	rt := NewRuntime(reg, nil)

	handled, batch, err := rt.DetectWrite(context.Background(), FileDescriptor{FileID: "f1", Path: "data.bin"}, nil, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Nil(t, batch)
}

func TestInstanceCacheReusesWithinExecute(t *testing.T) {
	reg, fp := newTestRegistry(t)
	rt := NewRuntime(reg, nil)

	_, _, err := rt.DetectWrite(context.Background(), FileDescriptor{Path: "a.json"}, nil, []byte(`{}`))
	require.NoError(t, err)
	_, _, err = rt.DetectWrite(context.Background(), FileDescriptor{Path: "b.json"}, nil, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 1, fp.builds)

	rt.ResetForExecute()
	_, _, err = rt.DetectWrite(context.Background(), FileDescriptor{Path: "c.json"}, nil, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 2, fp.builds)
}

func TestApplyReadInvokesPlugin(t *testing.T) {
	reg, _ := newTestRegistry(t)
	rt := NewRuntime(reg, nil)

	bytes, err := rt.ApplyRead(context.Background(), FileDescriptor{Path: "config.json"}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"applied":true}`, string(bytes))
}

func TestApplyReadErrorsWithNoMatchingPlugin(t *testing.T) {
	reg, _ := newTestRegistry(t)
	rt := NewRuntime(reg, nil)
	_, err := rt.ApplyRead(context.Background(), FileDescriptor{Path: "data.bin"}, nil)
	assert.Error(t, err)
}
