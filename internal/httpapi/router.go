package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/brgw/gateway/internal/auth"
	"github.com/brgw/gateway/internal/metrics"
	"github.com/brgw/gateway/internal/orchestrator"
)

// gatewayVersion is reported by the unauthenticated / and /health routes.
const gatewayVersion = "0.1.0"

// Config wires the dependencies the router needs to build its handler
// chain. Either Single or Multi (never both) selects the accounts/status
// shape, matching the runtime auth mode.
type Config struct {
	Orchestrator *orchestrator.Orchestrator
	Single       *auth.SingleTokenManager
	Multi        *auth.MultiTokenManager
	Metrics      *metrics.Registry
	PromRegistry *prometheus.Registry
	Logger       *zap.Logger
	ReleaseMode  bool
}

// NewRouter builds the gin engine and registers every route from spec.md
// §6, grounded on the teacher's server.go route table and ginLogger
// middleware.
func NewRouter(cfg Config) *gin.Engine {
	if cfg.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestIDMiddleware, ginLogger(cfg.Logger))
	r.NoRoute(notFoundHandler)

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "brgw-gateway is running",
			"version": gatewayVersion,
		})
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"version":   gatewayVersion,
		})
	})
	if cfg.PromRegistry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.PromRegistry, promhttp.HandlerOpts{})))
	}

	authorized := r.Group("/")
	authorized.Use(bearerAuthMiddleware(cfg.Orchestrator))

	openaiGroup := authorized.Group("/v1")
	openaiGroup.Use(withWireKind(wireOpenAI))
	oh := newOpenAIHandler(cfg.Orchestrator, cfg.Logger)
	openaiGroup.GET("/models", oh.listModels)
	openaiGroup.POST("/chat/completions", oh.chatCompletions)

	anthropicGroup := authorized.Group("/v1")
	anthropicGroup.Use(withWireKind(wireAnthropic))
	ah := newAnthropicHandler(cfg.Orchestrator, cfg.Logger)
	anthropicGroup.POST("/messages", ah.messages)

	accounts := newAccountsHandler(cfg.Single, cfg.Multi)
	authorized.GET("/v1/accounts/status", accounts.status)

	return r
}

// bearerAuthMiddleware enforces the proxy API key from spec.md §6 when one
// is configured; a missing configured key disables the check entirely
// (matches orchestrator.Authenticate's own pass-through behaviour).
func bearerAuthMiddleware(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		const prefix = "Bearer "
		header := c.GetHeader("Authorization")
		presented := ""
		if len(header) > len(prefix) && header[:len(prefix)] == prefix {
			presented = header[len(prefix):]
		}
		if err := orch.Authenticate(presented); err != nil {
			writeError(c, err)
			return
		}
		c.Next()
	}
}

// ginLogger logs method, path, status and latency for every request,
// matching the teacher's middleware shape.
func ginLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		if raw != "" {
			path = path + "?" + raw
		}
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", requestID(c)),
		)
	}
}
