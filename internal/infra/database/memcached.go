package database

import (
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/pkg/errors"
)

// NewMemcached connects to memcached and checks the server answers.
func NewMemcached(server string) (*memcache.Client, error) {
	mc := memcache.New(server)
	mc.Timeout = 2 * time.Second

	if err := mc.Ping(); err != nil {
		mc.Close()
		return nil, errors.Wrapf(err, "memcached %s unreachable", server)
	}
	return mc, nil
}
