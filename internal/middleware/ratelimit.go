package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/iliyamo/queue-token-service/internal/config"
)

// bucketScript refills and takes one token atomically.  It returns
// {allowed, remaining, retry_after_ms}.
var bucketScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill_tokens = tonumber(ARGV[3])
local interval_ms = tonumber(ARGV[4])
local ttl_seconds = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])
if tokens == nil or last_refill == nil then
  tokens = capacity
  last_refill = now_ms
end

local intervals = math.floor(math.max(0, now_ms - last_refill) / interval_ms)
if intervals > 0 then
  tokens = math.min(capacity, tokens + intervals * refill_tokens)
  last_refill = last_refill + intervals * interval_ms
end

local allowed = 0
local retry_ms = 0
if tokens > 0 then
  allowed = 1
  tokens = tokens - 1
else
  retry_ms = math.max(0, interval_ms - (now_ms - last_refill))
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
redis.call('EXPIRE', key, ttl_seconds)
return { allowed, tokens, retry_ms }
`)

// NewTokenBucket limits requests per key.  With a Redis client the bucket
// is shared by every instance; without one each process keeps its own
// buckets.  Redis errors let the request through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled {
		return passThrough
	}
	var take func(ctx context.Context, key string) (bool, int64, time.Duration, error)
	if rdb != nil {
		take = func(ctx context.Context, key string) (bool, int64, time.Duration, error) {
			return redisTake(ctx, rdb, cfg, key)
		}
	} else {
		local := NewLocalBuckets(cfg)
		take = func(_ context.Context, key string) (bool, int64, time.Duration, error) {
			ok, remaining, retry := local.Take(key)
			return ok, remaining, retry, nil
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rateKey(cfg, c)
			allowed, remaining, retry, err := take(c.Request().Context(), key)
			if err != nil {
				if cfg.Debug {
					c.Logger().Warnf("[ratelimit] redis error for key=%s: %v", key, err)
				}
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if !allowed {
				secs := int(math.Ceil(retry.Seconds()))
				h.Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "too_many_requests",
					"message":     "rate limit exceeded",
					"retry_after": secs,
				})
			}
			return next(c)
		}
	}
}

func redisTake(ctx context.Context, rdb *redis.Client, cfg config.RateLimitConfig, key string) (bool, int64, time.Duration, error) {
	vals, err := bucketScript.Run(ctx, rdb, []string{key},
		time.Now().UnixMilli(), cfg.Capacity, cfg.RefillTokens,
		cfg.RefillInterval.Milliseconds(), int64(cfg.TTL/time.Second)).Int64Slice()
	if err != nil {
		return false, 0, 0, err
	}
	if len(vals) != 3 {
		return false, 0, 0, fmt.Errorf("unexpected script result %v", vals)
	}
	return vals[0] == 1, vals[1], time.Duration(vals[2]) * time.Millisecond, nil
}

// LocalBuckets is the in-process fallback built on x/time/rate.
type LocalBuckets struct {
	mu      sync.Mutex
	entries map[string]*bucketEntry
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	swept   time.Time
}

type bucketEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewLocalBuckets builds buckets matching cfg's capacity and refill rate.
func NewLocalBuckets(cfg config.RateLimitConfig) *LocalBuckets {
	every := cfg.RefillInterval / time.Duration(cfg.RefillTokens)
	return &LocalBuckets{
		entries: make(map[string]*bucketEntry),
		limit:   rate.Every(every),
		burst:   cfg.Capacity,
		idleTTL: cfg.TTL,
	}
}

// Take spends one token of key's bucket.
func (b *LocalBuckets) Take(key string) (bool, int64, time.Duration) {
	now := time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()

	if now.Sub(b.swept) > b.idleTTL {
		b.sweep(now)
	}
	ent, ok := b.entries[key]
	if !ok {
		ent = &bucketEntry{lim: rate.NewLimiter(b.limit, b.burst)}
		b.entries[key] = ent
	}
	ent.lastSeen = now

	r := ent.lim.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, 0, delay
	}
	return true, int64(ent.lim.TokensAt(now)), 0
}

// sweep drops buckets idle for longer than the TTL.  b.mu is held.
func (b *LocalBuckets) sweep(now time.Time) {
	b.swept = now
	cutoff := now.Add(-b.idleTTL)
	for k, ent := range b.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(b.entries, k)
		}
	}
}

// Len returns the number of tracked buckets.
func (b *LocalBuckets) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func rateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	uid := callerKey(c)
	route := c.Request().Method + " " + c.Path()

	parts := []string{cfg.Prefix}
	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "user":
		parts = append(parts, "user", uid)
	case "route":
		parts = append(parts, "route", route)
	case "ip_user":
		parts = append(parts, "ip", ip, "user", uid)
	case "ip_route":
		parts = append(parts, "ip", ip, "route", route)
	case "user_route":
		parts = append(parts, "user", uid, "route", route)
	default:
		parts = append(parts, "ip", ip, "user", uid, "route", route)
	}
	return strings.Join(parts, ":")
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }
