package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"social_messaging/internal/service"
	"social_messaging/pkg/logger"
)

type RateLimitMiddleware struct {
	rateLimitService service.RateLimitService
	log              logger.Logger
}

func NewRateLimitMiddleware(rateLimitService service.RateLimitService, log logger.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		rateLimitService: rateLimitService,
		log:              log,
	}
}

// Limit ограничивает бакет независимо от остальных. Аутентифицированные
// запросы считаются по пользователю, остальные по адресу.
func (m *RateLimitMiddleware) Limit(bucket string, limit, windowSeconds int) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if userID, ok := c.Get("user_id"); ok {
			key = userID.(uuid.UUID).String()
		}

		allowed, err := m.rateLimitService.Allow(c.Request.Context(), bucket, key, limit, windowSeconds)
		if err != nil {
			m.log.Error("Rate limit check failed", "error", err, "bucket", bucket)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			c.Abort()
			return
		}

		if !allowed {
			c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
			c.Header("X-RateLimit-Remaining", "0")
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			c.Abort()
			return
		}

		count, err := m.rateLimitService.Increment(c.Request.Context(), bucket, key, windowSeconds)
		if err != nil {
			m.log.Error("Rate limit increment failed", "error", err, "bucket", bucket)
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(limit-int(count)))
		c.Next()
	}
}
