package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/layer-3/nostr-gate/core"
	"github.com/layer-3/nostr-gate/service"
)

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
	logger      *zap.Logger
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService, logger *zap.Logger) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		logger:      logger,
	}
}

// Challenge issues a new login challenge
func (h *AuthHandlers) Challenge(c *gin.Context) {
	challenge, err := h.authService.CreateChallenge(c.Request.Context(), core.ChallengeKindLogin)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"challenge": challenge.ID,
		"tag":       string(challenge.Kind),
	})
}

// Verify checks a signed event and exchanges it for a session token
func (h *AuthHandlers) Verify(c *gin.Context) {
	var req struct {
		SignedEvent json.RawMessage `json:"signedEvent"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, core.ErrMalformedAssertion)
		return
	}

	event, err := decodeEvent(req.SignedEvent)
	if err != nil {
		h.fail(c, err)
		return
	}

	res, err := h.authService.VerifyAssertion(c.Request.Context(), event)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"pubkey":    res.Pubkey,
		"metadata":  res.Metadata,
		"token":     res.Token,
		"expiresAt": res.ExpiresAt,
	})
}

// Status reports whether a challenge has been satisfied
func (h *AuthHandlers) Status(c *gin.Context) {
	id := c.Query("k1")
	if id == "" {
		id = c.Query("challenge")
	}
	if id == "" {
		h.fail(c, core.ErrInvalidArgument)
		return
	}

	status, pubkey, err := h.authService.ChallengeStatus(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if status == core.StatusNotFound {
		h.fail(c, core.ErrChallengeNotFound)
		return
	}

	var userInfo any
	if status == core.StatusVerified {
		userInfo = gin.H{"pubkey": pubkey}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   string(status),
		"userInfo": userInfo,
	})
}

// Me returns information about the authenticated identity
func (h *AuthHandlers) Me(c *gin.Context) {
	session, ok := sessionFrom(c)
	if !ok {
		h.fail(c, errors.New("session missing from context"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pubkey":    session.Pubkey,
		"scheme":    session.Scheme,
		"expiresAt": session.ExpiresAt,
	})
}

func (h *AuthHandlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, errorBody(core.Reason(err)))
}

// decodeEvent accepts the event either as an object or as a JSON-encoded string
func decodeEvent(raw json.RawMessage) (*core.Event, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, core.ErrMalformedAssertion
	}

	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, core.ErrMalformedAssertion
		}
		raw = json.RawMessage(inner)
	}

	var event core.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, core.ErrMalformedAssertion
	}
	return &event, nil
}

func errorBody(reason string) gin.H {
	return gin.H{"status": "error", "reason": reason}
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrMalformedAssertion), errors.Is(err, core.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrExpiredToken), errors.Is(err, core.ErrInvalidToken):
		return http.StatusForbidden
	case errors.Is(err, core.ErrChallengeNotFound), errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrAlreadyVerified):
		return http.StatusConflict
	case errors.Is(err, core.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, core.ErrMetadataFetchTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
