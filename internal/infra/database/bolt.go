package database

import (
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// NewBolt opens (or creates) the bolt file at path.
func NewBolt(path string) (*bolt.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
	}
	return bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
}
