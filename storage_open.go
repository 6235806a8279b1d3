package authsession

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authsession/storage"
)

// OpenStorage opens the backend selected by cfg. The returned close function
// releases whatever was opened and is never nil.
func OpenStorage(ctx context.Context, cfg StorageConfig) (storage.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case BackendMemory, "":
		return storage.NewMemoryStore(), noop, nil

	case BackendFile:
		fs, err := storage.NewFileStore(cfg.Path)
		if err != nil {
			return nil, noop, err
		}
		return fs, noop, nil

	case BackendSQLite:
		db, err := storage.OpenSQLite(cfg.Path, cfg.Namespace)
		if err != nil {
			return nil, noop, err
		}
		return db, db.Close, nil

	case BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("%w: redis ping %s: %w", storage.ErrUnavailable, cfg.RedisAddr, err)
		}
		rs, err := newRedisStorage(client, cfg)
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		return rs, client.Close, nil

	default:
		return nil, noop, errors.New("unknown storage backend " + cfg.Backend)
	}
}

func newRedisStorage(client redis.UniversalClient, cfg StorageConfig) (*storage.RedisStore, error) {
	prefix := cfg.Namespace
	if prefix == "" {
		prefix = "authsession"
	}
	return storage.NewRedisStore(client, prefix, cfg.RedisTTL)
}
