package repository

import (
	"context"
	"errors"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/totegamma/nostrconnect/internal/domain"
)

// MemcacheStore keeps each record key as its own item. Memcache cannot
// enumerate keys, so Clear deletes the known record keys.
type MemcacheStore struct {
	mc     *memcache.Client
	prefix string
}

func NewMemcacheStore(mc *memcache.Client, namespace string) *MemcacheStore {
	return &MemcacheStore{mc: mc, prefix: namespaceKey(namespace) + ":"}
}

func (s *MemcacheStore) Get(ctx context.Context, key string) (string, error) {
	item, err := s.mc.Get(s.prefix + key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return "", domain.NotFoundError{Resource: key}
	}
	if err != nil {
		return "", err
	}
	return string(item.Value), nil
}

func (s *MemcacheStore) Set(ctx context.Context, key, value string) error {
	return s.mc.Set(&memcache.Item{Key: s.prefix + key, Value: []byte(value)})
}

func (s *MemcacheStore) Delete(ctx context.Context, key string) error {
	err := s.mc.Delete(s.prefix + key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return err
}

func (s *MemcacheStore) Clear(ctx context.Context) error {
	var errs []error
	for _, key := range domain.RecordKeys {
		if err := s.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
