package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Rate limiting key patterns:
// - ratelimit:{user_id}:key_exchange - key exchange requests per window
// - ratelimit:{user_id}:rotation - key rotations per window

type RateLimitConfig struct {
	ExchangeLimit  int
	ExchangeWindow time.Duration
	RotationLimit  int
	RotationWindow time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		ExchangeLimit:  30,
		ExchangeWindow: 60 * time.Second,
		RotationLimit:  5,
		RotationWindow: 60 * time.Second,
	}
}

type RateLimiter struct {
	client *goredis.Client
	config RateLimitConfig
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
	Limit     int
}

func NewRateLimiter(client *goredis.Client, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		client: client,
		config: config,
	}
}

// fixed window counter, atomic via Lua
var limitScript = goredis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])

	local current = tonumber(redis.call('GET', key) or '0')
	local ttl = redis.call('TTL', key)
	if ttl < 0 then
		ttl = window
	end

	if current < limit then
		redis.call('INCR', key)
		if ttl == window then
			redis.call('EXPIRE', key, window)
		end
		return {1, limit - current - 1, ttl}
	end
	return {0, 0, ttl}
`)

func exchangeKey(userID string) string { return fmt.Sprintf("ratelimit:%s:key_exchange", userID) }
func rotationKey(userID string) string { return fmt.Sprintf("ratelimit:%s:rotation", userID) }

// AllowKeyExchange checks if a user can post another key exchange request.
func (r *RateLimiter) AllowKeyExchange(ctx context.Context, userID string) (*RateLimitResult, error) {
	return r.checkLimit(ctx, exchangeKey(userID), r.config.ExchangeLimit, r.config.ExchangeWindow)
}

// AllowRotation checks if a user can rotate conversation keys again.
func (r *RateLimiter) AllowRotation(ctx context.Context, userID string) (*RateLimitResult, error) {
	return r.checkLimit(ctx, rotationKey(userID), r.config.RotationLimit, r.config.RotationWindow)
}

func (r *RateLimiter) checkLimit(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error) {
	result, err := limitScript.Run(ctx, r.client, []string{key}, limit, int(window.Seconds())).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) < 3 {
		return nil, fmt.Errorf("unexpected rate limit result format")
	}
	allowed, _ := values[0].(int64)
	remaining, _ := values[1].(int64)
	ttl, _ := values[2].(int64)

	return &RateLimitResult{
		Allowed:   allowed == 1,
		Remaining: int(remaining),
		ResetIn:   time.Duration(ttl) * time.Second,
		Limit:     limit,
	}, nil
}

// ResetUser clears every limit tracked for a user.
func (r *RateLimiter) ResetUser(ctx context.Context, userID string) error {
	return r.client.Del(ctx, exchangeKey(userID), rotationKey(userID)).Err()
}
