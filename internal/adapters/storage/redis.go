package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/alejandrodnm/predictbot/internal/ports"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection parameters for the Redis store.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string // namespace for every key, e.g. "predict:"
}

// RedisStorage implements ports.KVStore and ports.BatchWriter on Redis.
// Batches run inside MULTI/EXEC.
type RedisStorage struct {
	rdb    *redis.Client
	prefix string
}

var (
	_ ports.KVStore     = (*RedisStorage)(nil)
	_ ports.BatchWriter = (*RedisStorage)(nil)
)

// NewRedisStorage connects and pings Redis.
func NewRedisStorage(ctx context.Context, cfg RedisConfig) (*RedisStorage, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("storage.NewRedisStorage: ping %s: %w", cfg.Addr, err)
	}
	return &RedisStorage{rdb: rdb, prefix: cfg.KeyPrefix}, nil
}

func (r *RedisStorage) key(k string) string { return r.prefix + k }

func (r *RedisStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := r.rdb.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage.Redis.Get %q: %w", key, err)
	}
	return v, true, nil
}

func (r *RedisStorage) Set(ctx context.Context, key string, value []byte) error {
	if err := r.rdb.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("storage.Redis.Set %q: %w", key, err)
	}
	return nil
}

func (r *RedisStorage) Delete(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("storage.Redis.Delete %q: %w", key, err)
	}
	return nil
}

func (r *RedisStorage) Has(ctx context.Context, key string) (bool, error) {
	n, err := r.rdb.Exists(ctx, r.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("storage.Redis.Has %q: %w", key, err)
	}
	return n > 0, nil
}

// WriteBatch applies muts in a single MULTI/EXEC transaction.
func (r *RedisStorage) WriteBatch(ctx context.Context, muts []ports.Mutation) error {
	if len(muts) == 0 {
		return nil
	}
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, m := range muts {
			if m.Delete {
				pipe.Del(ctx, r.key(m.Key))
			} else {
				pipe.Set(ctx, r.key(m.Key), m.Value, 0)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("storage.Redis.WriteBatch: %d mutations: %w", len(muts), err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *RedisStorage) Close() error {
	return r.rdb.Close()
}
