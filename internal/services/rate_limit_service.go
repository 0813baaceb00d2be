package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/guidedtours/reservation-backend/internal/config"
	"github.com/redis/go-redis/v9"
)

// tokenBucketScript refills by whole intervals and takes one token.
// Returns {allowed, remaining, retry_after_ms}.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local interval_ms = tonumber(ARGV[3])
	local ttl_seconds = tonumber(ARGV[4])

	local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
	local tokens = tonumber(state[1])
	local last_refill = tonumber(state[2])
	if tokens == nil or last_refill == nil then
		tokens = capacity
		last_refill = now_ms
	end

	local elapsed = math.max(0, now_ms - last_refill)
	local intervals = math.floor(elapsed / interval_ms)
	if intervals > 0 then
		tokens = math.min(capacity, tokens + intervals)
		last_refill = last_refill + (intervals * interval_ms)
	end

	local allowed = 0
	local retry_after_ms = 0
	if tokens > 0 then
		allowed = 1
		tokens = tokens - 1
	else
		retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
	end

	redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
	redis.call('EXPIRE', key, ttl_seconds)
	return { allowed, tokens, retry_after_ms }
`)

// RateLimitService is a Redis-backed token bucket shared by all instances
type RateLimitService struct {
	rdb    redis.Scripter
	cfg    config.RateLimitConfig
	prefix string
	now    func() time.Time
}

// NewRateLimitService creates a new rate limit service
func NewRateLimitService(rdb redis.Scripter, cfg config.RateLimitConfig) *RateLimitService {
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	return &RateLimitService{
		rdb:    rdb,
		cfg:    cfg,
		prefix: "rl",
		now:    time.Now,
	}
}

// RateLimitError represents a rate limit exceeded error
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
	Key        string
}

func (e *RateLimitError) Error() string {
	return e.Message
}

// Capacity returns the bucket size
func (s *RateLimitService) Capacity() int {
	return s.cfg.Capacity
}

// Allow takes one token from the bucket for key. It returns the tokens left,
// or a *RateLimitError when the bucket is empty. Other errors mean Redis
// could not be consulted.
func (s *RateLimitService) Allow(ctx context.Context, key string) (int64, error) {
	// keep an idle bucket around long enough to refill completely
	ttl := time.Duration(s.cfg.Capacity+1) * s.cfg.RefillInterval
	if ttl < 10*time.Minute {
		ttl = 10 * time.Minute
	}

	redisKey := s.prefix + ":" + key
	vals, err := tokenBucketScript.Run(ctx, s.rdb, []string{redisKey},
		s.now().UnixMilli(),
		s.cfg.Capacity,
		s.cfg.RefillInterval.Milliseconds(),
		int64(ttl/time.Second),
	).Slice()
	if err != nil {
		return 0, fmt.Errorf("failed to run rate limit script: %w", err)
	}
	if len(vals) != 3 {
		return 0, fmt.Errorf("unexpected rate limit script result: %v", vals)
	}

	remaining := asInt64(vals[1])
	if asInt64(vals[0]) != 1 {
		retryAfter := time.Duration(asInt64(vals[2])) * time.Millisecond
		return remaining, &RateLimitError{
			Message:    fmt.Sprintf("Too many requests. Please try again in %s", retryAfter.Round(time.Second)),
			RetryAfter: retryAfter,
			Key:        key,
		}
	}
	return remaining, nil
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
