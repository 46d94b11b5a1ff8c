package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter enforces a per-client token bucket. The key is the API key
// when auth is configured, otherwise the client IP. rps <= 0 disables the
// limiter.
func RateLimiter(rps, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = rps
	}

	var limiters sync.Map

	return func(c *gin.Context) {
		key := c.ClientIP()
		if apiKey, ok := c.Get("api_key"); ok {
			if s, _ := apiKey.(string); s != "" {
				key = s
			}
		}

		entry, _ := limiters.LoadOrStore(key, rate.NewLimiter(rate.Limit(rps), burst))
		if !entry.(*rate.Limiter).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"message": "rate limit exceeded",
					"type":    "rate_limit_error",
					"code":    "rate_limited",
				},
			})
			return
		}

		c.Next()
	}
}
