// Package tokenstore keeps confirmation, reset and two factor codes in redis.
package tokenstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	identity "github.com/goliatone/go-identity"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "ut:"

// RedisStore implements identity.TokenValueStore. Each key holds at most one
// live value and redis expires it after the configured ttl.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

var _ identity.TokenValueStore = (*RedisStore)(nil)

// Option customizes a RedisStore.
type Option func(*RedisStore)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(s *RedisStore) {
		if strings.TrimSpace(prefix) != "" {
			s.prefix = prefix
		}
	}
}

// New wraps an existing client.
func New(client redis.UniversalClient, opts ...Option) *RedisStore {
	s := &RedisStore{client: client, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open dials redis using cfg and checks the connection.
func Open(ctx context.Context, cfg identity.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, identity.Internal(err, "redis_ping", "addr", cfg.Addr)
	}
	return New(client, WithPrefix(cfg.Prefix)), nil
}

// Key returns the redis key used for key.
func (s *RedisStore) Key(key identity.UserTokenKey) string {
	return s.prefix + key.AccountID + ":" + key.Provider + ":" + key.Name
}

func (s *RedisStore) Get(ctx context.Context, key identity.UserTokenKey) (string, error) {
	value, err := s.client.Get(ctx, s.Key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", identity.NewError(identity.ErrNotFound, identity.CodeNotFound, identity.MsgUserTokenInvalid,
				"account_id", key.AccountID, "name", key.Name)
		}
		return "", identity.Internal(err, "redis_get", "account_id", key.AccountID, "name", key.Name)
	}
	return value, nil
}

// Set overwrites any live value. A ttl of zero keeps the value until it is
// deleted.
func (s *RedisStore) Set(ctx context.Context, key identity.UserTokenKey, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.Key(key), value, ttl).Err(); err != nil {
		return identity.Internal(err, "redis_set", "account_id", key.AccountID, "name", key.Name)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key identity.UserTokenKey) error {
	if err := s.client.Del(ctx, s.Key(key)).Err(); err != nil {
		return identity.Internal(err, "redis_del", "account_id", key.AccountID, "name", key.Name)
	}
	return nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
