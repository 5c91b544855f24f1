package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskagent/internal/ratelimit"
)

const MsgRateLimited = "Rate limit exceeded. Please try again later."

// SetRateLimitHeaders reports the caller's remaining budget.
func SetRateLimitHeaders(c *gin.Context, res ratelimit.Result) {
	c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetUnix(), 10))
}

// TooManyRequests writes the 429 response.
func TooManyRequests(c *gin.Context, retryAfter time.Duration) {
	secs := int((retryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	c.Header("Retry-After", strconv.Itoa(secs))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": MsgRateLimited, "retryAfter": secs})
}

// RateLimit counts requests per authenticated user, or per client IP for
// anonymous callers, under policy. Limiter failures let the request through.
func RateLimit(limiter ratelimit.Limiter, policy ratelimit.Policy, logger *zap.Logger) gin.HandlerFunc {
	return RateLimitUnless(nil, limiter, policy, logger)
}

// RateLimitUnless is RateLimit for the requests where skip reports false.
func RateLimitUnless(skip func(*gin.Context) bool, limiter ratelimit.Limiter, policy ratelimit.Policy, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		if skip != nil && skip(c) {
			c.Next()
			return
		}
		id, ok := UserID(c)
		if !ok {
			id = "ip:" + c.ClientIP()
		}
		res, err := limiter.Check(c.Request.Context(), policy.Key(id), policy)
		if err != nil {
			logger.Error("[ratelimit][check][err]", zap.String("policy", policy.Name), zap.Error(err))
			c.Next()
			return
		}
		SetRateLimitHeaders(c, res)
		if !res.Success {
			logger.Info("[ratelimit] rejected", zap.String("policy", policy.Name), zap.String("id", id))
			TooManyRequests(c, res.RetryAfter(time.Now()))
			return
		}
		c.Next()
	}
}
