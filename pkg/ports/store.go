package ports

import (
	"context"
	"strings"
)

// ArtifactStore is the durable key/value surface behind snapshots,
// checkpoints and run cursors. Keys are flat strings such as "state_3".
type ArtifactStore interface {
	// Write stores data under key, replacing any previous value. When Write
	// returns nil the data must be durable.
	Write(ctx context.Context, key string, data []byte) error

	// Read returns the data stored under key.
	// Returns domain.ErrArtifactNotFound if the key does not exist.
	Read(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns the keys starting with prefix, in no particular order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Namespace scopes every key of store under ns, so several sessions can
// share one backend without seeing each other's artifacts.
func Namespace(store ArtifactStore, ns string) ArtifactStore {
	if ns == "" {
		return store
	}
	return &namespaced{store: store, prefix: ns + "/"}
}

type namespaced struct {
	store  ArtifactStore
	prefix string
}

func (n *namespaced) Write(ctx context.Context, key string, data []byte) error {
	return n.store.Write(ctx, n.prefix+key, data)
}

func (n *namespaced) Read(ctx context.Context, key string) ([]byte, error) {
	return n.store.Read(ctx, n.prefix+key)
}

func (n *namespaced) Delete(ctx context.Context, key string) error {
	return n.store.Delete(ctx, n.prefix+key)
}

func (n *namespaced) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := n.store.List(ctx, n.prefix+prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, n.prefix))
	}
	return out, nil
}
