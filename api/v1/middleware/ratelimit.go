package middleware

import (
	"fmt"
	"time"

	"go_cfgsync/internal/cache"
	"go_cfgsync/internal/httpx"
	"go_cfgsync/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// RateLimit allows limit requests per client IP per window, counted in Redis.
// Redis errors let the request through.
func RateLimit(client *redis.Client, limit int, window time.Duration, trustProxy bool, m metrics.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("cfgsync:ratelimit:sync:%s", ClientIP(c, trustProxy))

		count, err := cache.Counter(c.Request.Context(), client, key, window)
		if err != nil {
			logrus.WithError(err).WithField("request_id", c.GetString(httpx.RequestIDKey)).
				Warn("rate limiter unavailable, allowing request")
			c.Next()
			return
		}

		if count > int64(limit) {
			m.IncRateLimited()
			httpx.FailErr(c, httpx.ErrRateLimited(""))
			return
		}
		c.Next()
	}
}
