package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tinikov/stockapi/internal/digest"
	"github.com/tinikov/stockapi/internal/health"
)

// RequestIDHeader carries the per-request correlation ID.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// RouterConfig controls the middleware chain built by NewRouter.
type RouterConfig struct {
	CORSOrigins []string
	RateLimiter *IPRateLimiter  // nil disables rate limiting
	BodyLimit   int64           // bytes; 0 means 1 MB
	ProtectAPI  bool            // put /v1 behind the digest gate as well
	Health      *health.Checker // nil makes /readyz always ready
}

// NewRouter wires every route of the service onto a new gin engine.
func NewRouter(l ledger, auth *digest.Authenticator, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", RequestIDHeader},
			ExposeHeaders:    []string{"Content-Length", "Location", "WWW-Authenticate", RequestIDHeader},
			AllowCredentials: !containsWildcard(cfg.CORSOrigins),
			MaxAge:           12 * time.Hour,
		}))
	}

	router.Use(SecurityHeaders())
	router.Use(BodyLimit(cfg.BodyLimit))
	if cfg.RateLimiter != nil {
		router.Use(cfg.RateLimiter.Middleware())
	}
	router.Use(RequestID())
	router.Use(RequestLogger(logger))
	router.Use(PrometheusMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", Readiness(cfg.Health))
	router.GET("/metrics", MetricsHandler())

	router.GET("/", Welcome)
	router.GET("/secret", DigestAuth(auth, logger), Secret)

	v1 := router.Group("/v1")
	if cfg.ProtectAPI {
		v1.Use(DigestAuth(auth, logger))
	}
	NewStockHandler(l, logger).Register(v1)
	NewSalesHandler(l, logger).Register(v1)

	return router
}

// Readiness reports 503 while any dependency tracked by checker is down.
func Readiness(checker *health.Checker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if checker == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
			return
		}
		status := http.StatusOK
		state := "ready"
		if !checker.Ready() {
			status = http.StatusServiceUnavailable
			state = "degraded"
		}
		c.JSON(status, gin.H{"status": state, "checks": checker.Status()})
	}
}

// SecurityHeaders sets the standard hardening headers on every response.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// BodyLimit caps request bodies at limit bytes (1 MB when limit is 0).
func BodyLimit(limit int64) gin.HandlerFunc {
	if limit <= 0 {
		limit = 1 << 20
	}
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// RequestID propagates a valid incoming X-Request-ID or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestLogger returns a Gin middleware that logs each request with zap.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", c.GetString(requestIDKey)),
		)
	}
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}
