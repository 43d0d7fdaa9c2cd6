package blob_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/adapters/blob"
	"github.com/aretw0/arbor/pkg/ports"
)

var _ ports.ArtifactStore = (*blob.Store)(nil)

func TestBlobStore_Contract(t *testing.T) {
	ctx := context.Background()

	store, err := blob.Open(ctx, "mem://", "test/")
	require.NoError(t, err)
	defer store.Close()

	ports.RunArtifactStoreContract(t, store)
}

func TestBlobStore_FileBucket(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := blob.Open(ctx, "file://"+filepath.ToSlash(dir), "")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Write(ctx, "s1/checkpoint", []byte(`{"n": 1}`)))
	_, err = os.Stat(filepath.Join(dir, "s1", "checkpoint.json"))
	assert.NoError(t, err)

	keys, err := store.List(ctx, "s1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1/checkpoint"}, keys)
}
