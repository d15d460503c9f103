package http

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	ctxUserID = "user_id"
	ctxRole   = "role"

	roleAdmin = "admin"
)

var errNoBearer = errors.New("bearer token required")

// opsClaims mirrors the token minted by AuthUsecase.Login.
type opsClaims struct {
	UserID int    `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type Middleware struct {
	jwtSecret []byte

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

func NewMiddleware(secret string) *Middleware {
	return &Middleware{
		jwtSecret: []byte(secret),
		buckets:   make(map[string]*rate.Limiter),
	}
}

// fail aborts with the same envelope the webhook endpoint uses.
func fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": gin.H{"code": code, "message": message}})
}

func (m *Middleware) parseToken(header string) (*opsClaims, error) {
	raw, ok := strings.CutPrefix(strings.TrimSpace(header), "Bearer ")
	if !ok || raw == "" {
		return nil, errNoBearer
	}
	claims := &opsClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.jwtSecret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// AuthRequired stores the caller's user id and role on the context.
func (m *Middleware) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := m.parseToken(c.GetHeader("Authorization"))
		if err != nil {
			log.Debug().Err(err).Str("path", c.FullPath()).Msg("Rejected ops token")
			fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "valid bearer token required")
			return
		}
		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}

// AdminRequired must run after AuthRequired.
func (m *Middleware) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxRole) != roleAdmin {
			fail(c, http.StatusForbidden, "FORBIDDEN", "admin role required")
			return
		}
		c.Next()
	}
}

// RateLimitPerUser buckets by the authenticated user id.
func (m *Middleware) RateLimitPerUser(r rate.Limit, burst int) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := c.Get(ctxUserID)
		if !ok {
			fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "unknown caller")
			return
		}
		m.admit(c, "user:"+strconv.Itoa(id.(int)), r, burst)
	}
}

// RateLimitByParam keeps one bucket per value of the named path parameter.
func (m *Middleware) RateLimitByParam(param string, r rate.Limit, burst int) gin.HandlerFunc {
	return func(c *gin.Context) {
		m.admit(c, param+":"+c.Param(param), r, burst)
	}
}

func (m *Middleware) admit(c *gin.Context, key string, r rate.Limit, burst int) {
	m.mu.Lock()
	lim, ok := m.buckets[key]
	if !ok {
		lim = rate.NewLimiter(r, burst)
		m.buckets[key] = lim
	}
	m.mu.Unlock()

	if !lim.Allow() {
		fail(c, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
		return
	}
	c.Next()
}

// WebhookSignature checks X-Signature as a hex HMAC-SHA256 of the body,
// optionally prefixed with "sha256=". An empty secret disables the check.
func WebhookSignature(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		if len(key) == 0 {
			c.Next()
			return
		}
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			fail(c, http.StatusBadRequest, "UNREADABLE_BODY", "unreadable body")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		if !signatureMatches(key, body, c.GetHeader("X-Signature")) {
			log.Warn().Str("tenant", c.Param("tenant")).Msg("Webhook signature mismatch")
			fail(c, http.StatusUnauthorized, "BAD_SIGNATURE", "signature mismatch")
			return
		}
		c.Next()
	}
}

func signatureMatches(key, body []byte, header string) bool {
	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(header), "sha256="))
	if err != nil || len(got) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

func (m *Middleware) CORSMiddleware() gin.HandlerFunc {
	headers := map[string]string{
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Headers": "Authorization, Content-Type, X-Signature",
		"Access-Control-Allow-Methods": "GET, POST, PUT, DELETE, OPTIONS",
	}
	return func(c *gin.Context) {
		for k, v := range headers {
			c.Header(k, v)
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Next()
	}
}

// RequestSizeLimiter caps request bodies; reads past the cap fail.
func RequestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
