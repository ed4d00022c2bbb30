package blob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/alejandrodnm/signalbot/internal/ports"
)

// RedisConfig configura la conexión del RedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // namespace de las keys, e.g. "signalbot:"
}

// RedisStore es un BlobStore sobre Redis: un string por blob, sin TTL.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore conecta y comprueba la conexión con un PING.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("blob.NewRedisStore: ping %s: %w", cfg.Addr, err)
	}
	return NewRedisStoreWithClient(client, cfg.Prefix), nil
}

// NewRedisStoreWithClient envuelve un cliente ya creado (tests con redismock).
func NewRedisStoreWithClient(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// Get devuelve el blob o ErrBlobNotFound si la key no existe.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ports.ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("blob.Get: redis %s: %w", key, err)
	}
	return data, nil
}

// Put sobreescribe el blob.
func (r *RedisStore) Put(ctx context.Context, key string, data []byte) error {
	if err := r.client.Set(ctx, r.prefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("blob.Put: redis %s: %w", key, err)
	}
	return nil
}

// Close cierra el cliente.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
