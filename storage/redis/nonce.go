// Package redisrepos keeps request nonces in redis, relying on key expiry instead of purges.
package redisrepos

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/studyrelay/core"
	"github.com/trezcool/studyrelay/core/reqauth"
)

const (
	keyPrefixNonce       = "reqauth:nonce:"
	keySchemaVersion     = "reqauth:metadata:schema_version"
	currentSchemaVersion = "v1"
)

// NonceRepository stores each nonce under its own key with a PX expiry. Expiry is evaluated on
// the redis server clock, so Seen ignores the time it is given.
type NonceRepository struct {
	client    redis.UniversalClient
	keyPrefix string
}

var _ reqauth.NonceStore = (*NonceRepository)(nil) // interface compliance check

func NewNonceRepository(client redis.UniversalClient, keyPrefix string) *NonceRepository {
	return &NonceRepository{client: client, keyPrefix: keyPrefix}
}

func (repo *NonceRepository) prefixKey(key string) string {
	return repo.keyPrefix + key
}

// Init writes the schema marker that Probe looks for. It is the redis counterpart of migrating.
func (repo *NonceRepository) Init(ctx context.Context) error {
	key := repo.prefixKey(keySchemaVersion)
	existing, err := repo.client.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return errors.Wrap(repo.client.Set(ctx, key, currentSchemaVersion, 0).Err(), "writing schema version")
	case err != nil:
		return errors.Wrap(err, "reading schema version")
	case existing != currentSchemaVersion:
		return errors.Errorf("unsupported schema version %q, want %q", existing, currentSchemaVersion)
	}
	return nil
}

// wrapErr wraps err with msg; a closed client is unrecoverable for the process.
func wrapErr(err error, msg string) error {
	if errors.Is(err, redis.ErrClosed) {
		return core.NewShutdownError(errors.Wrap(err, msg))
	}
	return errors.Wrap(err, msg)
}

func (repo *NonceRepository) Probe(ctx context.Context) error {
	if err := repo.client.Ping(ctx).Err(); err != nil {
		return wrapErr(err, "pinging redis")
	}
	n, err := repo.client.Exists(ctx, repo.prefixKey(keySchemaVersion)).Result()
	if err != nil {
		return wrapErr(err, "checking schema version")
	}
	if n == 0 {
		return errors.Wrap(reqauth.ErrStoreMissing, "redis schema version not set")
	}
	return nil
}

func (repo *NonceRepository) Seen(ctx context.Context, nonce string, _ time.Time) (bool, error) {
	n, err := repo.client.Exists(ctx, repo.prefixKey(keyPrefixNonce+nonce)).Result()
	if err != nil {
		return false, wrapErr(err, "checking nonce")
	}
	return n > 0, nil
}

func (repo *NonceRepository) Reserve(ctx context.Context, rec reqauth.NonceRecord, now time.Time) (reqauth.ReserveStatus, error) {
	ttl := rec.ExpiresAt.Sub(now)
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	value := strconv.FormatInt(rec.ExpiresAt.Unix(), 10)
	ok, err := repo.client.SetNX(ctx, repo.prefixKey(keyPrefixNonce+rec.Nonce), value, ttl).Result()
	if err != nil {
		return reqauth.StoreUnavailable, wrapErr(err, "reserving nonce")
	}
	if !ok {
		return reqauth.AlreadyUsed, nil
	}
	return reqauth.Reserved, nil
}

// Purge is a no-op: redis evicts expired nonces on its own.
func (repo *NonceRepository) Purge(context.Context, time.Time) (int64, error) {
	return 0, nil
}
