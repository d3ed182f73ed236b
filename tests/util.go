package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/studyrelay/core"
	"github.com/trezcool/studyrelay/storage/database"
)

// TestSecret is a valid 32-byte HMAC secret.
const TestSecret = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// PrepareDB connects to the test database and migrates it, or skips the test when
// no database is reachable.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()

	conf := core.NewConfig()
	db, err := database.Open(conf)
	if err != nil {
		t.Skipf("database not available: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err = database.Ping(ctx, db, 3); err != nil {
		_ = db.Close()
		t.Skipf("database not available: %v", err)
	}
	if err = database.Migrate(db.DB); err != nil {
		_ = db.Close()
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// TruncateNonces empties the nonce table between tests.
func TruncateNonces(t *testing.T, db *sqlx.DB) {
	t.Helper()
	if _, err := db.Exec(`TRUNCATE request_nonces`); err != nil {
		t.Fatalf("TruncateNonces() failed: %v", err)
	}
}

// PrepareRedis connects to the redis server at REDIS_TEST_ADDRESS and flushes its
// test DB, or skips the test when the variable is unset.
func PrepareRedis(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("REDIS_TEST_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDRESS not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis not available: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("PrepareRedis() failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}
