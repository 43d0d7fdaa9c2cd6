package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/arbor/internal/config"
	"github.com/aretw0/arbor/pkg/adapters/blob"
	"github.com/aretw0/arbor/pkg/adapters/file"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/adapters/redis"
	"github.com/aretw0/arbor/pkg/persistence/middleware"
	"github.com/aretw0/arbor/pkg/ports"
)

// Backend is an opened artifact store plus what came with it.
type Backend struct {
	Store ports.ArtifactStore
	// Locker is set for stores shared between processes.
	Locker ports.DistributedLocker
	closer io.Closer
}

// Close releases the connection behind the store, if any.
func (b *Backend) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

// OpenStore resolves cfg.Store to an artifact store:
//
//	memory              process-local, lost on exit
//	redis://host:port   Redis, with a distributed session lock
//	mem:// s3:// gs:// azblob://  gocloud.dev buckets
//	file:///path or a plain path  a directory
//
// Encryption and PII masking from cfg wrap whichever store is picked.
func OpenStore(ctx context.Context, cfg config.Config) (*Backend, error) {
	b, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var mws []middleware.Middleware
	if len(cfg.PIIFields) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(cfg.PIIFields))
	}
	key, err := cfg.Key()
	if err != nil {
		b.Close()
		return nil, err
	}
	if key != nil {
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))
	}
	b.Store = middleware.Chain(b.Store, mws...)
	return b, nil
}

func openBackend(ctx context.Context, cfg config.Config) (*Backend, error) {
	uri := cfg.Store
	scheme, rest, hasScheme := strings.Cut(uri, "://")

	switch {
	case uri == "" || uri == "memory":
		return &Backend{Store: memory.NewStore()}, nil

	case scheme == "redis" || scheme == "rediss":
		opts, err := backend.ParseURL(uri)
		if err != nil {
			return nil, fmt.Errorf("redis store: %w", err)
		}
		if cfg.RedisPassword != "" {
			opts.Password = cfg.RedisPassword
		}
		if cfg.RedisDB != 0 {
			opts.DB = cfg.RedisDB
		}
		client := backend.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("redis store: %w", err)
		}
		return &Backend{
			Store:  redis.NewFromClient(client),
			Locker: redis.NewLocker(client, "arbor:lock:"),
			closer: client,
		}, nil

	case scheme == "file":
		return openDir(rest)

	case hasScheme:
		store, err := blob.Open(ctx, uri, "")
		if err != nil {
			return nil, err
		}
		return &Backend{Store: store, closer: store}, nil

	default:
		return openDir(uri)
	}
}

func openDir(dir string) (*Backend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}
	return &Backend{Store: file.New(dir)}, nil
}
