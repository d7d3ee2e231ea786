package providers

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/totegamma/nostrconnect/client"
	"github.com/totegamma/nostrconnect/internal/config"
	"github.com/totegamma/nostrconnect/internal/infra/database"
	"github.com/totegamma/nostrconnect/internal/infra/events"
	"github.com/totegamma/nostrconnect/internal/infra/gateway"
	"github.com/totegamma/nostrconnect/internal/infra/repository"
	"github.com/totegamma/nostrconnect/internal/usecase"
)

const defaultStoreDir = ".nostrconnect"

// NewStore opens the configured record store. The returned func releases
// the underlying connection.
func NewStore(ctx context.Context, conf config.Store, namespace string) (usecase.RecordStore, func() error, error) {
	noop := func() error { return nil }

	switch conf.Driver {
	case "", "memory":
		return repository.NewMemoryStore(), noop, nil

	case "file":
		path := conf.Path
		if path == "" {
			path = filepath.Join(defaultStoreDir, namespace+".session")
		}
		return repository.NewFileStore(path, conf.Passphrase), noop, nil

	case "bolt":
		path := conf.Path
		if path == "" {
			path = filepath.Join(defaultStoreDir, "session.db")
		}
		db, err := database.NewBolt(path)
		if err != nil {
			return nil, nil, err
		}
		store, err := repository.NewBoltStore(db, namespace)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, db.Close, nil

	case "redis":
		rdb, err := database.NewRedis(ctx, conf.RedisAddr, conf.RedisPassword, conf.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewRedisStore(rdb, namespace), rdb.Close, nil

	case "memcache":
		mc, err := database.NewMemcached(conf.MemcachedAddr)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewMemcacheStore(mc, namespace), mc.Close, nil

	case "postgres":
		db, err := database.NewPostgres(conf.PostgresDsn)
		if err != nil {
			return nil, nil, err
		}
		if err := database.MigratePostgres(db); err != nil {
			return nil, nil, err
		}
		closer := func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		}
		return repository.NewPostgresStore(db, namespace), closer, nil
	}

	return nil, nil, fmt.Errorf("unknown store driver %q", conf.Driver)
}

// NewPubSub shares session events through redis when an address is
// configured and keeps them in process otherwise.
func NewPubSub(ctx context.Context, conf config.Events) (events.PubSub, error) {
	logger := events.NewLogger()
	if conf.RedisAddr == "" {
		return events.NewGoChannel(logger), nil
	}
	rdb, err := database.NewRedis(ctx, conf.RedisAddr, "", 0)
	if err != nil {
		return events.PubSub{}, err
	}
	return events.NewRedisStream(rdb, logger)
}

// NewClient constructs the relay pool.
func NewClient(userAgent string) *client.Client {
	return client.New(userAgent)
}

// NewRemoteSigner constructs the NIP-46 gateway.
func NewRemoteSigner() *gateway.RemoteSigner {
	return gateway.NewRemoteSigner()
}
