package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"rostergate/internal/client"
	"rostergate/internal/model"
	"rostergate/internal/util"
)

const rateLimitPrefix = "otp_rate:"

// fixedWindowScript performs the check-and-increment atomically so two
// concurrent requests for the same phone cannot both take the last slot.
// Returns {allowed, remaining, reset_unix}.
const fixedWindowScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

local w = redis.call('HMGET', key, 'start', 'count')
local start = tonumber(w[1])
local count = tonumber(w[2])

if (not start) or now >= start + window then
    start = now
    count = 0
end

local reset = start + window

if count >= limit then
    return {0, 0, reset}
end

count = count + 1
redis.call('HMSET', key, 'start', start, 'count', count)
redis.call('EXPIRE', key, window)
return {1, limit - count, reset}
`

// RateLimiter enforces a fixed counting window per phone number on top of
// Redis. Window state lives entirely server-side; the script is the only
// mutation path.
type RateLimiter struct {
	client *client.RedisClient
	limit  int
	window time.Duration
}

func NewRateLimiter(client *client.RedisClient, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

func (r *RateLimiter) Check(ctx context.Context, phoneNumber string) (model.RateLimitDecision, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := rateLimitPrefix + phoneNumber
	now := time.Now().Unix()

	result, err := r.client.Eval(ctx, fixedWindowScript, []string{key},
		now, int(r.window.Seconds()), r.limit)
	if err != nil {
		util.Error("Failed to execute rate limit script",
			zap.String("phone_number", phoneNumber),
			zap.Error(err))
		return model.RateLimitDecision{}, fmt.Errorf("failed to execute rate limit script: %w", err)
	}

	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) != 3 {
		return model.RateLimitDecision{}, fmt.Errorf("unexpected result format from rate limit script")
	}

	decision := model.RateLimitDecision{
		Allowed:           resultSlice[0].(int64) == 1,
		AttemptsRemaining: int(resultSlice[1].(int64)),
		ResetTime:         time.Unix(resultSlice[2].(int64), 0).UTC(),
	}

	util.Debug("Rate limit check",
		zap.String("phone_number", phoneNumber),
		zap.Bool("allowed", decision.Allowed),
		zap.Int("remaining", decision.AttemptsRemaining))

	return decision, nil
}
