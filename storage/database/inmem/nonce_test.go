package inmemdb

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/studyrelay/core"
	"github.com/trezcool/studyrelay/core/reqauth"
)

func newRepo(t *testing.T) *NonceRepository {
	db, err := Open()
	require.NoError(t, err)
	return NewNonceRepository(db)
}

func TestNonceRepository_Reserve(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	ttl := 10 * time.Minute

	tests := []struct {
		name       string
		prev       *reqauth.NonceRecord
		at         time.Time
		wantStatus reqauth.ReserveStatus
	}{
		{name: "new nonce", at: now, wantStatus: reqauth.Reserved},
		{
			name: "unexpired nonce", prev: &reqauth.NonceRecord{Nonce: "n1", ExpiresAt: now.Add(ttl)},
			at: now.Add(ttl - time.Second), wantStatus: reqauth.AlreadyUsed,
		},
		{
			name: "expired nonce", prev: &reqauth.NonceRecord{Nonce: "n1", ExpiresAt: now.Add(ttl)},
			at: now.Add(ttl), wantStatus: reqauth.Reserved,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newRepo(t)
			if tt.prev != nil {
				_, err := repo.Reserve(ctx, *tt.prev, now)
				require.NoError(t, err)
			}
			status, err := repo.Reserve(ctx, reqauth.NonceRecord{Nonce: "n1", ExpiresAt: tt.at.Add(ttl)}, tt.at)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}

func TestNonceRepository_Seen(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	now := time.Unix(1700000000, 0)

	seen, err := repo.Seen(ctx, "n1", now)
	require.NoError(t, err)
	assert.False(t, seen)

	_, err = repo.Reserve(ctx, reqauth.NonceRecord{Nonce: "n1", ExpiresAt: now.Add(time.Minute)}, now)
	require.NoError(t, err)

	seen, _ = repo.Seen(ctx, "n1", now.Add(59*time.Second))
	assert.True(t, seen)
	seen, _ = repo.Seen(ctx, "n1", now.Add(time.Minute))
	assert.False(t, seen, "expired records no longer count")
}

func TestNonceRepository_ConcurrentReserve(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	now := time.Now()

	var reserved int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, err := repo.Reserve(ctx, reqauth.NonceRecord{Nonce: "same", ExpiresAt: now.Add(time.Minute)}, now)
			if err == nil && status == reqauth.Reserved {
				atomic.AddInt32(&reserved, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), reserved)
}

func TestNonceRepository_Purge(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	now := time.Unix(1700000000, 0)

	for i, nonce := range []string{"a", "b", "c"} {
		exp := now.Add(time.Duration(i) * time.Minute)
		_, err := repo.Reserve(ctx, reqauth.NonceRecord{Nonce: nonce, ExpiresAt: exp}, now.Add(-time.Hour))
		require.NoError(t, err)
	}

	removed, err := repo.Purge(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	assert.Len(t, repo.table.table, 1)
	assert.Contains(t, repo.table.table, "c")
}

func TestNonceRepository_Closed(t *testing.T) {
	ctx := context.Background()
	db, err := Open()
	require.NoError(t, err)
	repo := NewNonceRepository(db)
	now := time.Unix(1700000000, 0)

	require.NoError(t, db.Close())
	require.NoError(t, db.Close(), "closing twice")

	err = repo.Probe(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.True(t, core.IsShutdown(err))

	_, err = repo.Seen(ctx, "n1", now)
	assert.True(t, core.IsShutdown(err))

	status, err := repo.Reserve(ctx, reqauth.NonceRecord{Nonce: "n1", ExpiresAt: now.Add(time.Minute)}, now)
	assert.True(t, core.IsShutdown(err))
	assert.Equal(t, reqauth.StoreUnavailable, status)

	_, err = repo.Purge(ctx, now)
	assert.ErrorIs(t, err, ErrClosed)
}
