// Package ratelimit provides a Redis-backed token bucket middleware used to
// throttle anonymous rating submissions per client IP.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/finsight/scripts-backend/config"
	"github.com/finsight/scripts-backend/pkg/logger"
	"github.com/finsight/scripts-backend/pkg/response"
)

// The bucket lives in a Redis hash so refill arithmetic and the token take
// happen atomically inside a single script evaluation.
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

	if interval_ms > 0 and refill_tokens > 0 then
		local elapsed = math.max(0, now_ms - last_refill)
		local intervals = math.floor(elapsed / interval_ms)
		if intervals > 0 then
			tokens = math.min(capacity, tokens + (intervals * refill_tokens))
			last_refill = last_refill + (intervals * interval_ms)
		end
	end

	local allowed = 0
	local retry_after_ms = 0
	if tokens > 0 then
		allowed = 1
		tokens = tokens - 1
	else
		local until_next = interval_ms - (now_ms - last_refill)
		if until_next < 0 then until_next = 0 end
		retry_after_ms = until_next
	end

	redis.call('HMSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
	redis.call('EXPIRE', key, ttl_seconds)

	return { allowed, tokens, retry_after_ms }
`)

// Limiter issues gin middleware backed by a shared Redis client
type Limiter struct {
	client         *redis.Client
	capacity       int
	refillTokens   int
	refillInterval time.Duration
	ttl            time.Duration
	enabled        bool
	logger         *logger.Logger
}

// NewLimiter creates a limiter with validation and defaults.
// A nil Redis client or RATE_LIMIT_ENABLED=false yields a pass-through limiter.
func NewLimiter(cfg *config.RateLimitConfig, client *redis.Client, log *logger.Logger) *Limiter {
	l := &Limiter{
		client:         client,
		capacity:       20,
		refillTokens:   20,
		refillInterval: time.Minute,
		ttl:            10 * time.Minute,
		enabled:        client != nil,
		logger:         log.WithComponent("ratelimit"),
	}

	if cfg == nil {
		return l
	}

	if cfg.Enabled != "" {
		if enabled, err := strconv.ParseBool(cfg.Enabled); err == nil {
			l.enabled = l.enabled && enabled
		}
	}
	if cfg.Capacity != "" {
		if capacity, err := strconv.Atoi(cfg.Capacity); err == nil && capacity > 0 {
			l.capacity = capacity
		}
	}
	if cfg.RefillTokens != "" {
		if tokens, err := strconv.Atoi(cfg.RefillTokens); err == nil && tokens > 0 {
			l.refillTokens = tokens
		}
	}
	if cfg.RefillInterval != "" {
		if interval, err := time.ParseDuration(cfg.RefillInterval); err == nil && interval > 0 {
			l.refillInterval = interval
		}
	}
	if cfg.TTL != "" {
		if ttl, err := time.ParseDuration(cfg.TTL); err == nil && ttl > 0 {
			l.ttl = ttl
		}
	}

	return l
}

// Middleware throttles requests per client IP. Redis failures fail open so a
// cache outage never blocks rating submissions.
func (l *Limiter) Middleware() gin.HandlerFunc {
	if !l.enabled {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		key := "ratelimit:ip:" + c.ClientIP()
		now := time.Now()

		args := []interface{}{
			now.UnixMilli(),
			l.capacity,
			l.refillTokens,
			l.refillInterval.Milliseconds(),
			int64(l.ttl / time.Second),
		}

		vals, err := bucketScript.Run(c.Request.Context(), l.client, []string{key}, args...).Result()
		if err != nil {
			l.logger.Warn("Rate limit check failed for " + key + ": " + err.Error())
			c.Next()
			return
		}

		arr, ok := vals.([]interface{})
		if !ok || len(arr) != 3 {
			l.logger.Warn("Unexpected rate limit script result for " + key)
			c.Next()
			return
		}

		allowed := asInt64(arr[0]) == 1
		remaining := asInt64(arr[1])
		retryMs := asInt64(arr[2])

		c.Header("X-RateLimit-Limit", strconv.Itoa(l.capacity))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if !allowed {
			secs := int(math.Ceil(float64(retryMs) / 1000.0))
			if secs < 0 {
				secs = 0
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			response.AbortError(c, http.StatusTooManyRequests, "too many requests, please try again later")
			return
		}

		c.Next()
	}
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
