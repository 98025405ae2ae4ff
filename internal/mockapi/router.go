// Package mockapi serves a stand-in for the classifier questions endpoint
// so load tests can run without the real service.
package mockapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// QuestionsPath is the classifier route the load test targets.
const QuestionsPath = "/classifier/questions/"

// Options configures the mock API.
type Options struct {
	// Mentors are the known mentor ids. Empty accepts any id.
	Mentors []string

	// ErrorRate is the fraction of requests answered with 500.
	ErrorRate float64

	// ErrorsFieldRate is the fraction of 200 answers carrying an errors
	// field.
	ErrorsFieldRate float64

	// Latency is added to every answer.
	Latency time.Duration

	// RateLimit caps requests per second; 0 disables it.
	RateLimit float64
	Burst     int

	Logger *zap.Logger
}

// NewRouter returns the gin engine serving the classifier route.
func NewRouter(opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), AccessLog(opts.Logger))
	if opts.RateLimit > 0 {
		r.Use(RateLimiter(opts.RateLimit, opts.Burst))
	}

	h := NewHandler(opts)
	r.GET("/health", h.Health)
	r.GET(QuestionsPath, h.Questions)
	return r
}

// AccessLog logs every request at debug level, and server errors at warn.
func AccessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("query", c.Request.URL.RawQuery),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("error", c.Errors.String()))
		}

		if c.Writer.Status() >= 500 {
			logger.Warn("request", fields...)
			return
		}
		logger.Debug("request", fields...)
	}
}

// RateLimiter rejects requests above qps with 429.
func RateLimiter(qps float64, burst int) gin.HandlerFunc {
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(qps), burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "too many requests"})
			return
		}
		c.Next()
	}
}
