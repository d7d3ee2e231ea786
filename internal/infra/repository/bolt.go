package repository

import (
	"context"

	bolt "go.etcd.io/bbolt"

	"github.com/totegamma/nostrconnect/internal/domain"
)

// BoltStore keeps each namespace's record in its own bucket.
type BoltStore struct {
	db     *bolt.DB
	bucket []byte
}

func NewBoltStore(db *bolt.DB, namespace string) (*BoltStore, error) {
	s := &BoltStore{db: db, bucket: []byte(namespaceKey(namespace))}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	}); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *BoltStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return domain.NotFoundError{Resource: key}
		}
		v := b.Get([]byte(key))
		if v == nil {
			return domain.NotFoundError{Resource: key}
		}
		value = string(v)
		return nil
	})
	return value, err
}

func (s *BoltStore) Set(ctx context.Context, key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(s.bucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), []byte(value))
	})
}

func (s *BoltStore) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

func (s *BoltStore) Clear(ctx context.Context) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(s.bucket) == nil {
			return nil
		}
		return tx.DeleteBucket(s.bucket)
	})
}
