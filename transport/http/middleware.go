package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/layer-3/nostr-gate/core"
	"github.com/layer-3/nostr-gate/service"
)

const (
	sessionKey = "session"

	reasonNoToken      = "No authentication token provided"
	reasonTokenExpired = "Authentication token expired"
	reasonTokenInvalid = "Invalid authentication token"
)

// AuthMiddleware creates middleware that validates session credentials
func AuthMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody(reasonNoToken))
			return
		}

		session, err := authService.ValidateSession(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, core.ErrExpiredToken) {
				c.AbortWithStatusJSON(http.StatusForbidden, errorBody(reasonTokenExpired))
			} else {
				c.AbortWithStatusJSON(http.StatusForbidden, errorBody(reasonTokenInvalid))
			}
			return
		}

		c.Set(sessionKey, session)

		c.Next()
	}
}

// sessionFrom returns the session stored by AuthMiddleware
func sessionFrom(c *gin.Context) (*core.Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil, false
	}
	session, ok := v.(*core.Session)
	return session, ok
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
