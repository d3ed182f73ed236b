package reqauth_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/studyrelay/core/reqauth"
	"github.com/trezcool/studyrelay/services/logger"
	"github.com/trezcool/studyrelay/storage/database/inmem"
)

func TestAuthenticate_EndToEnd(t *testing.T) {
	db, err := inmemdb.Open()
	require.NoError(t, err)
	store := inmemdb.NewNonceRepository(db)

	secret := strings.Repeat("A", 32)
	now := time.Unix(1700000000, 0)
	auth := reqauth.NewAuthenticator(
		reqauth.Config{Secret: secret, BearerToken: "token", Now: func() time.Time { return now }},
		store,
		logsvc.NewNopLogger(),
	)

	body := []byte(`{"a":1}`)
	sig := reqauth.ComputeSignature(secret, "1700000000", "n1", body)
	require.Equal(t, "d3a186878bd7db67354943ad91ba40075871f22f572b7dbefe2824dc2e0a782e", sig)

	req := reqauth.Request{
		Timestamp:     "1700000000",
		Nonce:         "n1",
		Signature:     sig,
		Authorization: "Bearer token",
		Body:          body,
	}
	ctx := context.Background()
	require.NoError(t, auth.Authenticate(ctx, req))

	err = auth.Authenticate(ctx, req)
	require.Error(t, err)
	assert.True(t, reqauth.IsUnauthorized(err))

	seen, err := store.Seen(ctx, "n1", now.Add(reqauth.DefaultNonceTTL-time.Second))
	require.NoError(t, err)
	assert.True(t, seen, "nonce held for its whole TTL")
}
