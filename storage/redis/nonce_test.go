package redisrepos

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/studyrelay/core"
	"github.com/trezcool/studyrelay/core/reqauth"
	"github.com/trezcool/studyrelay/tests"
)

func TestNonceRepository_Probe(t *testing.T) {
	client := testutil.PrepareRedis(t)
	repo := NewNonceRepository(client, "test:")
	ctx := context.Background()

	err := repo.Probe(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, reqauth.ErrStoreMissing)

	require.NoError(t, repo.Init(ctx))
	assert.NoError(t, repo.Probe(ctx))
	assert.NoError(t, repo.Init(ctx), "Init() should be idempotent")
}

func TestNonceRepository_ReserveAndSeen(t *testing.T) {
	client := testutil.PrepareRedis(t)
	repo := NewNonceRepository(client, "test:")
	ctx := context.Background()
	now := time.Now()
	rec := reqauth.NonceRecord{Nonce: "n1", ExpiresAt: now.Add(10 * time.Minute)}

	seen, err := repo.Seen(ctx, "n1", now)
	require.NoError(t, err)
	assert.False(t, seen)

	status, err := repo.Reserve(ctx, rec, now)
	require.NoError(t, err)
	assert.Equal(t, reqauth.Reserved, status)

	seen, err = repo.Seen(ctx, "n1", now)
	require.NoError(t, err)
	assert.True(t, seen)

	status, err = repo.Reserve(ctx, rec, now)
	require.NoError(t, err)
	assert.Equal(t, reqauth.AlreadyUsed, status)

	ttl, err := client.PTTL(ctx, "test:"+keyPrefixNonce+"n1").Result()
	require.NoError(t, err)
	assert.True(t, ttl > 9*time.Minute && ttl <= 10*time.Minute, "unexpected ttl %v", ttl)
}

func TestNonceRepository_ReserveExpires(t *testing.T) {
	client := testutil.PrepareRedis(t)
	repo := NewNonceRepository(client, "test:")
	ctx := context.Background()
	now := time.Now()

	status, err := repo.Reserve(ctx, reqauth.NonceRecord{Nonce: "short", ExpiresAt: now.Add(50 * time.Millisecond)}, now)
	require.NoError(t, err)
	require.Equal(t, reqauth.Reserved, status)

	assert.Eventually(t, func() bool {
		seen, err := repo.Seen(ctx, "short", time.Now())
		return err == nil && !seen
	}, 2*time.Second, 20*time.Millisecond)
}

func TestNonceRepository_ClosedClient(t *testing.T) {
	client := testutil.PrepareRedis(t)
	repo := NewNonceRepository(client, "test:")
	ctx := context.Background()
	require.NoError(t, repo.Init(ctx))
	require.NoError(t, client.Close())

	err := repo.Probe(ctx)
	assert.ErrorIs(t, err, redis.ErrClosed)
	assert.True(t, core.IsShutdown(err))

	_, err = repo.Seen(ctx, "n1", time.Now())
	assert.True(t, core.IsShutdown(err))
}
