package repository

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/totegamma/nostrconnect/internal/domain"
)

// RedisStore keeps the record as one hash per namespace.
type RedisStore struct {
	rdb *redis.Client
	key string
}

func NewRedisStore(rdb *redis.Client, namespace string) *RedisStore {
	return &RedisStore{rdb: rdb, key: namespaceKey(namespace)}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.HGet(ctx, s.key, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.NotFoundError{Resource: key}
	}
	return v, err
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.rdb.HSet(ctx, s.key, key, value).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.HDel(ctx, s.key, key).Err()
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key).Err()
}
