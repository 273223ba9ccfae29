package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// AuthRateLimitMiddleware applies a strict per-IP limit to login, signup, and
// OTP endpoints using a Redis-backed GCRA limiter, so the ceiling holds across
// replicas. The in-process token bucket (RateLimitMiddleware) still guards
// everything else; this one exists because credential endpoints are the ones
// attackers hammer, and a per-process bucket resets on every deploy.
//
// Fails open: if Redis is unreachable the request proceeds. Locking users out
// of login because the limiter store is down is worse than briefly losing the
// brute-force ceiling.
func AuthRateLimitMiddleware(rdb *redis.Client, requestsPerMinute int) gin.HandlerFunc {
	limiter := redis_rate.NewLimiter(rdb)
	limit := redis_rate.PerMinute(requestsPerMinute)

	return func(c *gin.Context) {
		key := "auth:" + c.ClientIP()

		res, err := limiter.Allow(c.Request.Context(), key, limit)
		if err != nil {
			slog.Warn("auth rate limiter unavailable, allowing request",
				"error", err, "ip", c.ClientIP())
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(requestsPerMinute))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if res.Allowed == 0 {
			retryAfter := int(res.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many attempts. Please try again later.",
			})
			return
		}

		c.Next()
	}
}
