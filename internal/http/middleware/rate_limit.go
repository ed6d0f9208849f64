package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"busreserve/internal/metrics"
	"busreserve/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter per client kept in redis.
type RateLimiter struct {
	Redis  redis.Cmdable
	Limit  int
	Window time.Duration
	Prefix string
}

func NewRateLimiter(client redis.Cmdable, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{Redis: client, Limit: limit, Window: window, Prefix: "ratelimit:booking"}
}

func (r *RateLimiter) key(c *gin.Context) string {
	if id := UserID(c); id > 0 {
		return fmt.Sprintf("%s:user:%d", r.Prefix, id)
	}
	return fmt.Sprintf("%s:ip:%s", r.Prefix, c.ClientIP())
}

// Middleware counts the request and answers 429 once the window is full.
// When redis is unavailable or not configured the request is let through.
func (r *RateLimiter) Middleware(route string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if r == nil || r.Redis == nil || r.Limit <= 0 {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := r.key(c)
		// EXPIRE NX rides along on every hit, so a window whose expiry was lost
		// gets one again instead of counting forever.
		var incr *redis.IntCmd
		_, err := r.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(ctx, key)
			pipe.ExpireNX(ctx, key, r.Window)
			return nil
		})
		if err != nil {
			utils.LogError(GetRequestID(c), "rate_limit", "incr", err)
			c.Next()
			return
		}
		count := incr.Val()

		if count > int64(r.Limit) {
			retry := r.Window
			if ttl, err := r.Redis.TTL(ctx, key).Result(); err == nil && ttl > 0 {
				retry = ttl
			}
			metrics.RateLimited.WithLabelValues(route).Inc()
			c.Header("Retry-After", strconv.Itoa(int(retry.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "too many booking attempts, please try again later",
				"request_id": GetRequestID(c),
			})
			return
		}
		c.Next()
	}
}
