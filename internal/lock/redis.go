package lock

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only when it still carries the
// caller's owner token, so an expired-and-retaken lock is never released
// by its previous holder.
var releaseScript = redis.NewScript(`
    if redis.call('GET', KEYS[1]) == ARGV[1] then
        return redis.call('DEL', KEYS[1])
    end
    return 0
`)

// RedisOptions tunes a Redis locker.
type RedisOptions struct {
	Prefix     string        // key namespace, e.g. "lock"
	TTL        time.Duration // lease of a held lock; must exceed one allocation
	Wait       time.Duration // upper bound on time spent acquiring
	RetryEvery time.Duration // polling interval while the key is busy
}

// Redis is a Locker backed by SET NX PX so several service instances
// share the same per-slot serialization.
type Redis struct {
	rdb  *redis.Client
	opts RedisOptions
}

// NewRedis returns a Redis locker.  Zero options fall back to sane defaults.
func NewRedis(rdb *redis.Client, opts RedisOptions) *Redis {
	if opts.Prefix == "" {
		opts.Prefix = "lock"
	}
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Second
	}
	if opts.Wait <= 0 {
		opts.Wait = 3 * time.Second
	}
	if opts.RetryEvery <= 0 {
		opts.RetryEvery = 15 * time.Millisecond
	}
	return &Redis{rdb: rdb, opts: opts}
}

// Lock implements Locker.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	k := r.opts.Prefix + ":" + key
	owner := uuid.NewString()
	deadline := time.Now().Add(r.opts.Wait)

	for {
		ok, err := r.rdb.SetNX(ctx, k, owner, r.opts.TTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			var once sync.Once
			return func() { once.Do(func() { r.release(k, owner) }) }, nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrTimeout
		}
		t := time.NewTimer(r.opts.RetryEvery)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (r *Redis) release(key, owner string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, r.rdb, []string{key}, owner).Err(); err != nil {
		log.Printf("lock: release %s failed: %v", key, err)
	}
}
