package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// slidingWindow trims the sorted set to the window, then either records the
// attempt or reports the age of the oldest entry. Running it as one script
// keeps concurrent instances from both admitting the last slot.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  return {0, tonumber(oldest[2]) + window - now}
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, 0}
`)

// Redis is a sliding-window limiter shared by every instance using the same
// Redis database.
type Redis struct {
	Client *redis.Client
	Prefix string
	Limit  int
	Window time.Duration
	Now    func() time.Time
}

// NewRedis returns a Redis limiter with keys under prefix.
func NewRedis(client *redis.Client, prefix string, limit int, window time.Duration) *Redis {
	return &Redis{Client: client, Prefix: prefix, Limit: limit, Window: window, Now: time.Now}
}

// Allow records an attempt for key if the window has room.
func (r *Redis) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := r.Now().UnixMilli()
	res, err := slidingWindow.Run(ctx, r.Client,
		[]string{r.Prefix + key},
		now, r.Window.Milliseconds(), r.Limit, strconv.FormatInt(now, 10)+"-"+uuid.NewString(),
	).Slice()
	if err != nil {
		return false, 0, err
	}
	allowed, _ := res[0].(int64)
	wait, _ := res[1].(int64)
	return allowed == 1, time.Duration(wait) * time.Millisecond, nil
}
