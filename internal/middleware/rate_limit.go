package middleware

import (
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"marketplace/pkg/apperr"
	"marketplace/pkg/log"
	"marketplace/pkg/utils"
)

// RateLimitConfig transport-level token bucket configuration. This protects
// the process from request floods; the per-buyer order velocity gate is a
// separate business control and lives in the fraud package.
type RateLimitConfig struct {
	// RPS requests per second per key
	RPS float64
	// Burst maximum burst size per key
	Burst int
	// KeyFunc derives the bucket key, client IP by default
	KeyFunc func(c *gin.Context) string
}

// RateLimit per-client-IP rate limiting middleware
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	return RateLimitWithConfig(RateLimitConfig{RPS: rps, Burst: burst})
}

// RateLimitWithConfig rate limiting middleware with configuration
func RateLimitWithConfig(config RateLimitConfig) gin.HandlerFunc {
	if config.KeyFunc == nil {
		config.KeyFunc = func(c *gin.Context) string {
			return c.ClientIP()
		}
	}

	var mu sync.Mutex
	limiters := make(map[string]*rate.Limiter)

	return func(c *gin.Context) {
		key := config.KeyFunc(c)

		mu.Lock()
		limiter, exists := limiters[key]
		if !exists {
			limiter = rate.NewLimiter(rate.Limit(config.RPS), config.Burst)
			limiters[key] = limiter
		}
		mu.Unlock()

		if !limiter.Allow() {
			log.WithFields(map[string]interface{}{
				"key":  key,
				"path": c.Request.URL.Path,
			}).Warn("Request rate limit exceeded")
			utils.AppErrorResponse(c, apperr.RateExceeded("too many requests"))
			c.Abort()
			return
		}

		c.Next()
	}
}
