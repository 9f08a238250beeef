package bootstrap_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lixdb/lix/internal/backend/sqlitebackend"
	"github.com/lixdb/lix/internal/bootstrap"
	"github.com/lixdb/lix/internal/schema"
)

func TestRunCreatesCoreTablesAndBuiltinSchemas(t *testing.T) {
	b, err := sqlitebackend.Open(":memory:")
	require.NoError(t, err)
	defer b.Close()

	registry := schema.NewRegistry()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	require.NoError(t, bootstrap.Run(context.Background(), b, registry, now))

	for _, key := range []string{"lix_internal_kv", "lix_directory", "lix_file_descriptor", "lix_binary_blob_ref"} {
		_, _, ok := registry.Get(key)
		assert.Truef(t, ok, "expected builtin schema %q to be registered", key)
	}

	ctx := context.Background()
	res, err := b.Execute(ctx, "SELECT COUNT(*) FROM lix_version_descriptor", nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.EqualValues(t, 1, res.Rows[0][0])

	res, err = b.Execute(ctx, "SELECT version_id FROM lix_version_pointer", nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "main", res.Rows[0][0])
}

func TestRunIsIdempotentOnReopen(t *testing.T) {
	b, err := sqlitebackend.Open(":memory:")
	require.NoError(t, err)
	defer b.Close()

	registry := schema.NewRegistry()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	require.NoError(t, bootstrap.Run(context.Background(), b, registry, now))
	require.NoError(t, bootstrap.Run(context.Background(), b, registry, now))

	res, err := b.Execute(context.Background(), "SELECT COUNT(*) FROM lix_version_descriptor", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Rows[0][0])
}
