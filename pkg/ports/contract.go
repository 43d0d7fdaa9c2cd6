package ports

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunArtifactStoreContract runs a suite of tests to verify that an
// ArtifactStore implementation adheres to the defined interface contract.
func RunArtifactStoreContract(t *testing.T, store ArtifactStore) {
	ctx := context.Background()
	prefix := "contract-" + time.Now().Format("20060102150405")

	t.Run("Write and Read", func(t *testing.T) {
		key := prefix + "/state_0"
		data := []byte(`{"count": 42}`)

		require.NoError(t, store.Write(ctx, key, data), "Write should not return error")

		got, err := store.Read(ctx, key)
		require.NoError(t, err, "Read should not return error")
		assert.Equal(t, data, got)
	})

	t.Run("Overwrite", func(t *testing.T) {
		key := prefix + "/checkpoint"
		require.NoError(t, store.Write(ctx, key, []byte("v1")))
		require.NoError(t, store.Write(ctx, key, []byte("v2")))

		got, err := store.Read(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "v2", string(got))
	})

	t.Run("Read Non-Existent", func(t *testing.T) {
		_, err := store.Read(ctx, prefix+"/missing")
		assert.ErrorIs(t, err, domain.ErrArtifactNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		key := prefix + "/doomed"
		require.NoError(t, store.Write(ctx, key, []byte("x")))
		require.NoError(t, store.Delete(ctx, key), "Delete should not return error")

		_, err := store.Read(ctx, key)
		assert.ErrorIs(t, err, domain.ErrArtifactNotFound, "Read after Delete should return ErrArtifactNotFound")

		assert.NoError(t, store.Delete(ctx, key), "deleting twice should be a no-op")
	})

	t.Run("List", func(t *testing.T) {
		listPrefix := prefix + "/list/"
		var want []string
		for i := 0; i < 3; i++ {
			key := fmt.Sprintf("%sstate_%d", listPrefix, i)
			want = append(want, key)
			require.NoError(t, store.Write(ctx, key, []byte("{}")))
		}
		require.NoError(t, store.Write(ctx, prefix+"/other", []byte("{}")))

		keys, err := store.List(ctx, listPrefix)
		require.NoError(t, err)
		sort.Strings(keys)
		assert.Equal(t, want, keys)
	})

	t.Run("Namespace", func(t *testing.T) {
		a := Namespace(store, prefix+"/ns-a")
		b := Namespace(store, prefix+"/ns-b")

		require.NoError(t, a.Write(ctx, "checkpoint", []byte("a")))
		require.NoError(t, b.Write(ctx, "checkpoint", []byte("b")))

		got, err := a.Read(ctx, "checkpoint")
		require.NoError(t, err)
		assert.Equal(t, "a", string(got))

		keys, err := b.List(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"checkpoint"}, keys)
	})
}
