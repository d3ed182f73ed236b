// Package storage picks the nonce store backend from configuration.
package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/studyrelay/core"
	"github.com/trezcool/studyrelay/core/reqauth"
	"github.com/trezcool/studyrelay/storage/database"
	"github.com/trezcool/studyrelay/storage/database/inmem"
	"github.com/trezcool/studyrelay/storage/database/sqlx"
	"github.com/trezcool/studyrelay/storage/redis"
)

// NonceStore is a reqauth.NonceStore that can also drop expired nonces.
type NonceStore interface {
	reqauth.NonceStore
	Purge(ctx context.Context, before time.Time) (int64, error)
}

type Options struct {
	// Prepare creates and migrates the backing store (DEV only); production schemas are
	// managed with the admin `migrate` command.
	Prepare bool
}

// OpenNonceStore connects to the backend named by conf.Auth.NonceStore. The returned func
// releases the connection.
func OpenNonceStore(ctx context.Context, conf *core.Config, opts Options) (NonceStore, func() error, error) {
	switch conf.Auth.NonceStore {
	case core.NonceStorePostgres:
		if opts.Prepare {
			if err := database.CreateIfNotExist(ctx, conf); err != nil {
				return nil, nil, errors.Wrap(err, "creating database")
			}
		}
		db, err := database.Open(conf)
		if err != nil {
			return nil, nil, errors.Wrap(err, "opening database")
		}
		if opts.Prepare {
			if err = database.Migrate(db.DB); err != nil {
				_ = db.Close()
				return nil, nil, err
			}
		}
		return sqlxrepos.NewNonceRepository(db), db.Close, nil

	case core.NonceStoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Address,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		})
		repo := redisrepos.NewNonceRepository(client, conf.Redis.KeyPrefix)
		if opts.Prepare {
			if err := repo.Init(ctx); err != nil {
				_ = client.Close()
				return nil, nil, errors.Wrap(err, "initializing redis")
			}
		}
		return repo, client.Close, nil

	case core.NonceStoreMemory:
		db, err := inmemdb.Open()
		if err != nil {
			return nil, nil, err
		}
		return inmemdb.NewNonceRepository(db), db.Close, nil
	}
	return nil, nil, errors.Errorf("unknown nonce store %q", conf.Auth.NonceStore)
}
