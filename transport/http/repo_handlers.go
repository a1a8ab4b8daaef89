package http

import (
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/layer-3/nostr-gate/core"
	"github.com/layer-3/nostr-gate/ports"
)

// RepoHandlers serves the read-only repository API
type RepoHandlers struct {
	repo   ports.Repository
	logger *zap.Logger
}

// NewRepoHandlers creates repository handlers
func NewRepoHandlers(repo ports.Repository, logger *zap.Logger) *RepoHandlers {
	return &RepoHandlers{repo: repo, logger: logger}
}

// Branches lists branches and the default one
func (h *RepoHandlers) Branches(c *gin.Context) {
	ctx := c.Request.Context()

	branches, err := h.repo.Branches(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	def, err := h.repo.DefaultBranch(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"branches": branches, "default": def})
}

// Commits returns the log of ref, optionally restricted to path
func (h *RepoHandlers) Commits(c *gin.Context) {
	ref, err := sanitizeRef(c.Query("ref"))
	if err != nil {
		h.fail(c, err)
		return
	}
	p, err := sanitizePath(c.Query("path"))
	if err != nil {
		h.fail(c, err)
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.fail(c, fmt.Errorf("limit must be a non-negative integer: %w", core.ErrInvalidArgument))
			return
		}
	}

	commits, err := h.repo.Log(c.Request.Context(), ref, p, limit)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"commits": commits})
}

// Commit returns a single commit with its diff
func (h *RepoHandlers) Commit(c *gin.Context) {
	hash, err := sanitizeHash(c.Param("hash"))
	if err != nil {
		h.fail(c, err)
		return
	}

	commit, err := h.repo.Commit(c.Request.Context(), hash)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, commit)
}

// NostrCommit returns the identity-linked id recorded for a commit
func (h *RepoHandlers) NostrCommit(c *gin.Context) {
	hash, err := sanitizeHash(c.Param("hash"))
	if err != nil {
		h.fail(c, err)
		return
	}

	link, err := h.repo.NostrCommit(c.Request.Context(), hash)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, link)
}

// File returns the content of path at ref
func (h *RepoHandlers) File(c *gin.Context) {
	ref, err := sanitizeRef(c.Query("ref"))
	if err != nil {
		h.fail(c, err)
		return
	}
	p, err := sanitizePath(c.Query("path"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if p == "" {
		h.fail(c, fmt.Errorf("path is required: %w", core.ErrInvalidArgument))
		return
	}

	file, err := h.repo.File(c.Request.Context(), ref, p)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, file)
}

func (h *RepoHandlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("repository request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, errorBody(core.Reason(err)))
}

// sanitizePath cleans a repository-relative path. Empty means the whole tree.
func sanitizePath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, "-") || strings.ContainsRune(p, 0) {
		return "", fmt.Errorf("invalid path %q: %w", p, core.ErrInvalidArgument)
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return "", fmt.Errorf("invalid path %q: %w", p, core.ErrInvalidArgument)
		}
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		return "", nil
	}
	return cleaned, nil
}

// sanitizeRef rejects refs git could read as options or range syntax
func sanitizeRef(ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	if strings.HasPrefix(ref, "-") || strings.Contains(ref, "..") ||
		strings.ContainsAny(ref, " ~^:?*[\\\x00") {
		return "", fmt.Errorf("invalid ref %q: %w", ref, core.ErrInvalidArgument)
	}
	return ref, nil
}

// sanitizeHash accepts abbreviated or full hex object names
func sanitizeHash(hash string) (string, error) {
	if len(hash) < 4 || len(hash) > 64 {
		return "", fmt.Errorf("invalid commit hash: %w", core.ErrInvalidArgument)
	}
	for _, r := range hash {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return "", fmt.Errorf("invalid commit hash: %w", core.ErrInvalidArgument)
		}
	}
	return strings.ToLower(hash), nil
}
