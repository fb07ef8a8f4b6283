package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RateLimitStore implements a token bucket backed by Redis. Each caller key
// gets a bucket of capacity burst that refills at rate tokens per second;
// the refill and take are evaluated atomically in a Lua script so concurrent
// API instances share one bucket.
type RateLimitStore struct {
	client *goredis.Client
	prefix string
}

// NewRateLimitStore creates a new Redis-backed rate limit store.
func NewRateLimitStore(client *goredis.Client) *RateLimitStore {
	return &RateLimitStore{
		client: client,
		prefix: "ratelimit:",
	}
}

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
}

var tokenBucketScript = goredis.NewScript(`
local tokens_key = KEYS[1]
local ts_key = KEYS[2]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local tokens = tonumber(redis.call("GET", tokens_key))
if tokens == nil then
	tokens = burst
end
local last = tonumber(redis.call("GET", ts_key))
if last == nil then
	last = now
end

local elapsed = now - last
if elapsed < 0 then
	elapsed = 0
end
tokens = tokens + elapsed * rate
if tokens > burst then
	tokens = burst
end

local allowed = 0
if tokens >= 1 then
	allowed = 1
	tokens = tokens - 1
end

local ttl = math.ceil(burst / rate) * 2
if ttl < 1 then
	ttl = 1
end
redis.call("SET", tokens_key, tostring(tokens), "EX", ttl)
redis.call("SET", ts_key, tostring(now), "EX", ttl)

return {allowed, tostring(tokens)}
`)

// Allow takes one token from the bucket for key, refilling it first based on
// the time elapsed since the last call.
func (s *RateLimitStore) Allow(ctx context.Context, key string, rate float64, burst int64) (*RateLimitResult, error) {
	tokensKey := s.prefix + key + ":tokens"
	tsKey := s.prefix + key + ":ts"
	now := float64(time.Now().UnixMicro()) / 1e6

	res, err := tokenBucketScript.Run(ctx, s.client,
		[]string{tokensKey, tsKey}, rate, burst, now).Result()
	if err != nil {
		return nil, fmt.Errorf("redis rate limit eval: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return nil, fmt.Errorf("redis rate limit eval: unexpected reply %v", res)
	}
	allowed, _ := vals[0].(int64)
	remaining := int64(0)
	if str, ok := vals[1].(string); ok {
		if f, err := strconv.ParseFloat(str, 64); err == nil {
			remaining = int64(f)
		}
	}

	return &RateLimitResult{
		Allowed:   allowed == 1,
		Limit:     burst,
		Remaining: remaining,
	}, nil
}
