// Package middleware holds the gin HTTP middleware for the thin transport
// layer wrapping the decision pipeline, adapted from the teacher's
// internal/middleware.security.go: security headers, a correlation ID per
// request, a structured per-request log line, and (new for this domain) a
// per-client token-bucket limiter since the transport is an external
// collaborator per spec §1/§5, not part of the core.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// SecurityHeaders adds the standard hardening headers to every response.
// Supplement ingestion carries biomarker data, so the same posture the
// teacher applies to its medical classification surface applies here.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		}
		c.Header("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		c.Next()
	}
}

// CorrelationID attaches a request-correlation identifier to the gin
// context (as run_id) and echoes it in the X-Run-ID response header,
// mirroring the teacher's CorrelationID. The pipeline assigns its own,
// separate run_id to its results and audit records.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Run-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("run_id", id)
		c.Header("X-Run-ID", id)
		c.Next()
	}
}

// RequestTimeout bounds every request to timeout, mirroring the teacher's
// RequestTimeout intent but without gin's nonexistent TimeoutWithHandler:
// the downstream chain runs on its own goroutine against a context.Context
// deadline, and a race between that goroutine finishing and the deadline
// firing decides which response wins. The pipeline itself already checks
// ctx between stages (spec §5), so a handler that loses the race stops
// doing useful work shortly after this middleware responds.
func RequestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		done := make(chan struct{})
		go func() {
			c.Next()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			c.AbortWithStatusJSON(http.StatusRequestTimeout, gin.H{
				"kind":      "DEADLINE_EXCEEDED",
				"message":   "request deadline exceeded",
				"run_id":    c.GetString("run_id"),
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
		}
	}
}

// RequestLogger logs one structured line per completed request, carrying
// the same fields the teacher's AuditLogger writes for compliance review
// (method, path, status, latency, client IP) through the shared logrus
// logger instead of a hand-built JSON string, so these lines land in the
// same sink and format as every other stage log.
func RequestLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.WithFields(logrus.Fields{
			"run_id":     c.GetString("run_id"),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		}).Info("request handled")
	}
}

// limiterStore lazily allocates one token bucket per client IP and evicts
// nothing: request volume on this surface is low enough that an unbounded
// per-IP map is acceptable for the admin-facing deployment this serves.
type limiterStore struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newLimiterStore(rps float64, burst int) *limiterStore {
	return &limiterStore{limiters: make(map[string]*rate.Limiter), rps: rate.Limit(rps), burst: burst}
}

func (s *limiterStore) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[key]
	if !ok {
		l = rate.NewLimiter(s.rps, s.burst)
		s.limiters[key] = l
	}
	return l
}

// RateLimit throttles requests per client IP using a token bucket from
// golang.org/x/time/rate, an external-collaborator concern per spec §1
// (the HTTP surface is out of the decision core).
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	store := newLimiterStore(rps, burst)
	return func(c *gin.Context) {
		limiter := store.get(c.ClientIP())
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"kind":    "RATE_LIMITED",
				"message": fmt.Sprintf("rate limit exceeded: %.1f req/s", rps),
			})
			return
		}
		c.Next()
	}
}
