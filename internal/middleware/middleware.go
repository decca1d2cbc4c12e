// Package middleware provides the HTTP cross-cutting concerns:
// authentication, rate limiting, request IDs, CORS, and panic recovery.
package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"multichat/internal/logging"
)

// Recovery converts panics into a 500 response with a request ID.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		requestID := c.GetString("request_id")
		logging.L().Error("panic recovered",
			zap.String("request_id", requestID),
			zap.Any("panic", recovered),
			zap.ByteString("stack", debug.Stack()))

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "Internal server error",
			"code":       "INTERNAL_SERVER_ERROR",
			"request_id": requestID,
		})
	})
}

// RequestID tags every request with a unique ID, honoring one supplied
// by the client.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b)
}

// CORS handles cross-origin requests for the browser frontend.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if _, ok := allowed[origin]; ok {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Stripe-Signature")
		c.Header("Access-Control-Expose-Headers", "X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientRateLimiter keeps a token bucket per client key, pruning idle
// entries so the map does not grow without bound.
type ClientRateLimiter struct {
	limiters map[string]*clientLimiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
}

// NewClientRateLimiter creates a per-client limiter at rps requests per
// second with the given burst.
func NewClientRateLimiter(rps float64, burst int) *ClientRateLimiter {
	crl := &ClientRateLimiter{
		limiters: make(map[string]*clientLimiter),
		rate:     rate.Limit(rps),
		burst:    burst,
	}
	go crl.cleanupLoop()
	return crl
}

func (crl *ClientRateLimiter) get(key string) *rate.Limiter {
	crl.mu.Lock()
	defer crl.mu.Unlock()

	cl, ok := crl.limiters[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(crl.rate, crl.burst)}
		crl.limiters[key] = cl
	}
	cl.lastSeen = time.Now()
	return cl.limiter
}

func (crl *ClientRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-time.Hour)
		crl.mu.Lock()
		for key, cl := range crl.limiters {
			if cl.lastSeen.Before(cutoff) {
				delete(crl.limiters, key)
			}
		}
		crl.mu.Unlock()
	}
}

// Middleware limits requests per authenticated user, falling back to
// the client IP before authentication runs.
func (crl *ClientRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if username := c.GetString("username"); username != "" {
			key = "user:" + username
		}

		if !crl.get(key).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
				"code":  "RATE_LIMIT_EXCEEDED",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
