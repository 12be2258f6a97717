// Package httpkit provides HTTP middleware infrastructure.
// This is part of the platform layer and contains no business logic.
package httpkit

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"whatsapp_portal_backend/platform/config"
	"whatsapp_portal_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

const (
	// ContextAgentIDKey is the gin context key for the authenticated agent ID.
	ContextAgentIDKey = "agentID"
	// ContextAgentNameKey is the gin context key for the agent display name.
	ContextAgentNameKey = "agentName"
	// ContextServiceCallKey marks requests authenticated with the admin
	// shared-secret token rather than an agent JWT.
	ContextServiceCallKey = "serviceCall"

	errMissingToken = "missing token"
	errInvalidToken = "invalid token"
)

// RequestLogger logs HTTP requests with timing.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		clientIP := c.ClientIP()

		log.HTTPRequest(c.Request.Method, path, status, float64(latency.Milliseconds()), clientIP)
	}
}

// SecurityHeaders adds security headers to responses.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

// AgentClaims are the JWT claims issued to authenticated agents.
type AgentClaims struct {
	DisplayName string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Auth validates the bearer token and stores the agent identity in the
// context. An admin shared-secret token (X-Admin-Token header or ?token=)
// is accepted as an alternative for service callers.
func Auth(cfg config.AuthServiceConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminToken := serviceToken(c); adminToken != "" {
			expected := cfg.GetAdminToken()
			if expected != "" && subtle.ConstantTimeCompare([]byte(adminToken), []byte(expected)) == 1 {
				c.Set(ContextServiceCallKey, true)
				c.Next()
				return
			}
		}

		tokenString := bearerToken(c)
		if tokenString == "" {
			Error(c, http.StatusUnauthorized, "UNAUTHORIZED", errMissingToken, nil)
			c.Abort()
			return
		}

		claims := &AgentClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(cfg.GetJWTAccessSecret()), nil
		})
		if err != nil || !token.Valid || claims.Subject == "" {
			Error(c, http.StatusUnauthorized, "UNAUTHORIZED", errInvalidToken, nil)
			c.Abort()
			return
		}

		c.Set(ContextAgentIDKey, claims.Subject)
		c.Set(ContextAgentNameKey, claims.DisplayName)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

func serviceToken(c *gin.Context) string {
	if tok := strings.TrimSpace(c.GetHeader("X-Admin-Token")); tok != "" {
		return tok
	}
	return strings.TrimSpace(c.Query("token"))
}

// KeyRateLimiter manages per-key token-bucket limiters (per IP, per
// conversation, etc).
type KeyRateLimiter struct {
	limiters sync.Map
	rate     rate.Limit
	burst    int
	log      *logger.Logger
}

// NewKeyRateLimiter creates a new keyed rate limiter.
func NewKeyRateLimiter(r rate.Limit, burst int, log *logger.Logger) *KeyRateLimiter {
	return &KeyRateLimiter{
		rate:  r,
		burst: burst,
		log:   log,
	}
}

// Allow reports whether the key may proceed under its bucket.
func (k *KeyRateLimiter) Allow(key string) bool {
	limiter, exists := k.limiters.Load(key)
	if !exists {
		limiter, _ = k.limiters.LoadOrStore(key, rate.NewLimiter(k.rate, k.burst))
	}
	return limiter.(*rate.Limiter).Allow()
}

// RateLimitByParam returns a middleware that rate limits by a path parameter
// value, e.g. one bucket per conversation id.
func (k *KeyRateLimiter) RateLimitByParam(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param(param)
		if key == "" {
			key = c.ClientIP()
		}
		if !k.Allow(key) {
			if k.log != nil {
				k.log.RateLimitExceeded(key, c.Request.URL.Path)
			}
			Error(c, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RateLimitByIP returns a middleware that rate limits by client IP.
func (k *KeyRateLimiter) RateLimitByIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !k.Allow(ip) {
			if k.log != nil {
				k.log.RateLimitExceeded(ip, c.Request.URL.Path)
			}
			Error(c, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}
