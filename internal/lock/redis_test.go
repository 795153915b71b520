package lock

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// newTestRedis connects to REDIS_TEST_ADDR or skips the test.
func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedis_ExclusiveAndRelease(t *testing.T) {
	rdb := newTestRedis(t)
	l := NewRedis(rdb, RedisOptions{Prefix: "test-lock-" + uuid.NewString(), Wait: 50 * time.Millisecond})

	unlock, err := l.Lock(context.Background(), "slot:1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := l.Lock(context.Background(), "slot:1"); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout while held, got %v", err)
	}
	unlock()

	unlock2, err := l.Lock(context.Background(), "slot:1")
	if err != nil {
		t.Fatalf("relock after release: %v", err)
	}
	unlock2()
}
