package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/layer-3/nostr-gate/ports"
	"github.com/layer-3/nostr-gate/service"
)

// RouterConfig holds the transport settings
type RouterConfig struct {
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// SetupRouter sets up the Gin router. ctx bounds background work such as
// rate limiter cleanup. repo may be nil, in which case the repository API is
// not mounted.
func SetupRouter(ctx context.Context, authService *service.AuthService, repo ports.Repository, logger *zap.Logger, cfg RouterConfig) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(PrometheusMiddleware())

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORSOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORSOrigins
	}
	router.Use(cors.New(corsCfg))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", MetricsHandler())

	handlers := NewAuthHandlers(authService, logger)

	// Auth routes
	auth := router.Group("/auth")
	{
		if cfg.RateLimitRPS > 0 {
			auth.POST("/challenge", RateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst), handlers.Challenge)
		} else {
			auth.POST("/challenge", handlers.Challenge)
		}
		auth.POST("/verify", handlers.Verify)
		auth.GET("/status", handlers.Status)
	}

	// Protected API routes
	api := router.Group("/api")
	api.Use(AuthMiddleware(authService))
	{
		api.GET("/me", handlers.Me)

		if repo != nil {
			repoHandlers := NewRepoHandlers(repo, logger)
			api.GET("/branches", repoHandlers.Branches)
			api.GET("/commits", repoHandlers.Commits)
			api.GET("/commits/:hash", repoHandlers.Commit)
			api.GET("/commits/:hash/nostr", repoHandlers.NostrCommit)
			api.GET("/files", repoHandlers.File)
		}
	}

	return router
}
