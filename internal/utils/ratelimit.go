package utils

import (
	"net/http"
	"time"

	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
	"github.com/gin-gonic/gin"
)

// RateLimit limits requests per client IP with a token bucket. A non-positive
// rate returns a pass-through handler.
func RateLimit(requestsPerSecond float64) gin.HandlerFunc {
	if requestsPerSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	lmt := tollbooth.NewLimiter(requestsPerSecond, &limiter.ExpirableOptions{
		DefaultExpirationTTL: time.Hour,
	})
	lmt.SetMessage("too many requests")

	return func(c *gin.Context) {
		if httpErr := tollbooth.LimitByRequest(lmt, c.Writer, c.Request); httpErr != nil {
			status := httpErr.StatusCode
			if status == 0 {
				status = http.StatusTooManyRequests
			}
			c.AbortWithStatusJSON(status, gin.H{"error": httpErr.Message})
			return
		}
		c.Next()
	}
}
