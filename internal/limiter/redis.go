package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "modgate:"

// GET + SET PX in one script so check and commit are atomic per key.
var cooldownScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local cd = tonumber(ARGV[2])
if cd <= 0 then
	return 0
end
local last = redis.call('GET', KEYS[1])
if last then
	local left = tonumber(last) + cd - now
	if left > 0 then
		return left
	end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', cd)
return 0
`)

var cooldownReleaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// Scores are unix millis; members are unique tokens.
var rateLimitScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local count = redis.call('ZCARD', KEYS[1])
if count >= limit then
	local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
	return {0, tonumber(oldest[2]) + window}
end
redis.call('ZADD', KEYS[1], now, ARGV[4])
redis.call('PEXPIRE', KEYS[1], window)
return {1, 0}
`)

// RedisCooldownStore shares cooldowns between instances.
type RedisCooldownStore struct {
	client redis.UniversalClient
}

func NewRedisCooldownStore(client redis.UniversalClient) *RedisCooldownStore {
	return &RedisCooldownStore{client: client}
}

func (s *RedisCooldownStore) Acquire(ctx context.Context, key string, now time.Time, cooldown time.Duration) (time.Duration, error) {
	left, err := cooldownScript.Run(ctx, s.client, []string{keyPrefix + "cd:" + key}, now.UnixMilli(), cooldown.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("cooldown acquire: %w", err)
	}
	return time.Duration(left) * time.Millisecond, nil
}

func (s *RedisCooldownStore) Release(ctx context.Context, key string, at time.Time) error {
	err := cooldownReleaseScript.Run(ctx, s.client, []string{keyPrefix + "cd:" + key}, fmt.Sprint(at.UnixMilli())).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("cooldown release: %w", err)
	}
	return nil
}

type RedisRateLimitStore struct {
	client redis.UniversalClient
}

func NewRedisRateLimitStore(client redis.UniversalClient) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client}
}

func (s *RedisRateLimitStore) Acquire(ctx context.Context, key string, now time.Time, limit int, window time.Duration) (RateDecision, error) {
	token := uuid.NewString()
	res, err := rateLimitScript.Run(ctx, s.client, []string{keyPrefix + "rl:" + key},
		now.UnixMilli(), window.Milliseconds(), limit, token).Int64Slice()
	if err != nil {
		return RateDecision{}, fmt.Errorf("rate limit acquire: %w", err)
	}
	if len(res) != 2 {
		return RateDecision{}, fmt.Errorf("rate limit acquire: unexpected reply %v", res)
	}
	if res[0] == 0 {
		return RateDecision{ResetAt: time.UnixMilli(res[1])}, nil
	}
	return RateDecision{Allowed: true, Token: token}, nil
}

func (s *RedisRateLimitStore) Release(ctx context.Context, key, token string) error {
	if err := s.client.ZRem(ctx, keyPrefix+"rl:"+key, token).Err(); err != nil {
		return fmt.Errorf("rate limit release: %w", err)
	}
	return nil
}
