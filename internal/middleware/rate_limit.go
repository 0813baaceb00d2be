package middleware

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/guidedtours/reservation-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// RateLimit guards a route with the shared token bucket. key picks the bucket
// for a request. A nil limiter disables the check; a Redis failure lets the
// request through.
func RateLimit(limiter *services.RateLimitService, key func(*gin.Context) string, logger *logrus.Logger) gin.HandlerFunc {
	if limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		bucket := key(c)
		remaining, err := limiter.Allow(c.Request.Context(), bucket)

		var limited *services.RateLimitError
		switch {
		case errors.As(err, &limited):
			secs := int(math.Ceil(limited.RetryAfter.Seconds()))
			c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Capacity()))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", strconv.Itoa(secs))
			logger.WithField("bucket", bucket).Info("Rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too_many_requests",
				"message":     limited.Message,
				"retry_after": secs,
			})
			return
		case err != nil:
			logger.WithError(err).WithField("bucket", bucket).Warn("Rate limiter unavailable, allowing request")
		default:
			c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Capacity()))
			c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		}
		c.Next()
	}
}

// StaffOrIPKey buckets by authenticated staff member, falling back to client IP
func StaffOrIPKey(prefix string) func(*gin.Context) string {
	return func(c *gin.Context) string {
		if staff, ok := GetStaffContext(c); ok {
			return prefix + ":staff:" + staff.StaffID.String()
		}
		return prefix + ":ip:" + c.ClientIP()
	}
}
