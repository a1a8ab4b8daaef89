package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/nostr-gate/adapters/signature"
	"github.com/layer-3/nostr-gate/adapters/store"
	"github.com/layer-3/nostr-gate/adapters/tokenizer"
	"github.com/layer-3/nostr-gate/core"
	"github.com/layer-3/nostr-gate/service"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type stubRepo struct {
	lastRef, lastPath string
	lastLimit         int
}

func (r *stubRepo) Branches(context.Context) ([]string, error) {
	return []string{"feature", "main"}, nil
}

func (r *stubRepo) DefaultBranch(context.Context) (string, error) { return "main", nil }

func (r *stubRepo) Log(_ context.Context, ref, path string, limit int) ([]core.Commit, error) {
	r.lastRef, r.lastPath, r.lastLimit = ref, path, limit
	return []core.Commit{{Hash: "abc123", Subject: "first"}}, nil
}

func (r *stubRepo) Commit(_ context.Context, hash string) (*core.Commit, error) {
	if hash != "abc123" {
		return nil, core.ErrNotFound
	}
	return &core.Commit{Hash: hash, Subject: "first", Diff: "diff --git"}, nil
}

func (r *stubRepo) File(_ context.Context, ref, path string) (*core.FileContent, error) {
	return &core.FileContent{Ref: ref, Path: path, Content: "hello", Size: 5}, nil
}

func (r *stubRepo) NostrCommit(_ context.Context, hash string) (*core.NostrCommit, error) {
	if hash != "abc123" {
		return nil, core.ErrNotFound
	}
	return &core.NostrCommit{Hash: hash, NostrID: "n1", Pubkey: strings.Repeat("ab", 32)}, nil
}

type testServer struct {
	router    *gin.Engine
	tokenizer *tokenizer.JWTTokenizer
	repo      *stubRepo
}

func newTestServer(t *testing.T, cfg RouterConfig) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.NewMemoryStore(store.Config{})
	tok, err := tokenizer.NewJWTTokenizer(testSecret, "test")
	require.NoError(t, err)

	verifier := service.NewEventVerifier(st, signature.NewRegistry(signature.Schnorr{}), service.VerifierConfig{
		MaxClockSkew: service.DefaultMaxClockSkew,
	})
	// Without a profile fetcher metadata is always null
	svc := service.NewAuthService(st, verifier, nil, tok, nil, nil, service.WithObserver(Metrics{}))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	repo := &stubRepo{}
	return &testServer{
		router:    SetupRouter(ctx, svc, repo, nil, cfg),
		tokenizer: tok,
		repo:      repo,
	}
}

func (s *testServer) do(t *testing.T, method, target string, body any, token string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var decoded map[string]any
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func signFor(t *testing.T, priv *btcec.PrivateKey, challengeID string) *core.Event {
	t.Helper()
	ev := &core.Event{
		CreatedAt: time.Now().Unix(),
		Kind:      core.KindClientAuth,
		Tags:      []core.Tag{{core.TagChallenge, challengeID}},
	}
	require.NoError(t, signature.SignEvent(priv, ev))
	return ev
}

func (s *testServer) login(t *testing.T) (string, string) {
	t.Helper()

	w, body := s.do(t, http.MethodPost, "/auth/challenge", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	challenge := body["challenge"].(string)

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	ev := signFor(t, priv, challenge)

	w, body = s.do(t, http.MethodPost, "/auth/verify", gin.H{"signedEvent": ev}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return body["token"].(string), ev.Pubkey
}

func TestRouter_ChallengeVerifyStatus(t *testing.T) {
	s := newTestServer(t, RouterConfig{})

	w, body := s.do(t, http.MethodPost, "/auth/challenge", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "login", body["tag"])
	challenge := body["challenge"].(string)
	assert.Len(t, challenge, 64)

	w, body = s.do(t, http.MethodGet, "/auth/status?k1="+challenge, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pending", body["status"])
	assert.Nil(t, body["userInfo"])

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	ev := signFor(t, priv, challenge)

	w, body = s.do(t, http.MethodPost, "/auth/verify", gin.H{"signedEvent": ev}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, ev.Pubkey, body["pubkey"])
	assert.Nil(t, body["metadata"])
	assert.NotEmpty(t, body["token"])

	w, body = s.do(t, http.MethodGet, "/auth/status?challenge="+challenge, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "verified", body["status"])
	assert.Equal(t, map[string]any{"pubkey": ev.Pubkey}, body["userInfo"])

	// Replaying the same assertion is rejected
	w, body = s.do(t, http.MethodPost, "/auth/verify", gin.H{"signedEvent": ev}, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "already_verified", body["reason"])
}

func TestRouter_VerifyAcceptsStringEncodedEvent(t *testing.T) {
	s := newTestServer(t, RouterConfig{})

	_, body := s.do(t, http.MethodPost, "/auth/challenge", nil, "")
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	ev := signFor(t, priv, body["challenge"].(string))

	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	w, body := s.do(t, http.MethodPost, "/auth/verify", gin.H{"signedEvent": string(raw)}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, ev.Pubkey, body["pubkey"])
}

func TestRouter_VerifyFailures(t *testing.T) {
	s := newTestServer(t, RouterConfig{})

	_, body := s.do(t, http.MethodPost, "/auth/challenge", nil, "")
	challenge := body["challenge"].(string)

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	other, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	forged := signFor(t, priv, challenge)
	forged.Pubkey = signFor(t, other, challenge).Pubkey
	forged.ID = forged.ComputeID()

	tests := []struct {
		name   string
		body   any
		status int
		reason string
	}{
		{"no body", nil, http.StatusBadRequest, "malformed_assertion"},
		{"null event", gin.H{"signedEvent": nil}, http.StatusBadRequest, "malformed_assertion"},
		{"garbage event", gin.H{"signedEvent": "not json"}, http.StatusBadRequest, "malformed_assertion"},
		{"forged signature", gin.H{"signedEvent": forged}, http.StatusUnauthorized, "invalid_signature"},
		{"unknown challenge", gin.H{"signedEvent": signFor(t, priv, strings.Repeat("cd", 32))}, http.StatusNotFound, "challenge_not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := s.do(t, http.MethodPost, "/auth/verify", tt.body, "")
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "error", body["status"])
			assert.Equal(t, tt.reason, body["reason"])
		})
	}

	w, body := s.do(t, http.MethodGet, "/auth/status?k1="+challenge, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pending", body["status"])
}

func TestRouter_StatusErrors(t *testing.T) {
	s := newTestServer(t, RouterConfig{})

	w, body := s.do(t, http.MethodGet, "/auth/status", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_argument", body["reason"])

	w, body = s.do(t, http.MethodGet, "/auth/status?k1=unknown", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "challenge_not_found", body["reason"])
}

func TestRouter_ProtectedEndpoints(t *testing.T) {
	s := newTestServer(t, RouterConfig{})
	token, pubkey := s.login(t)

	w, body := s.do(t, http.MethodGet, "/api/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "No authentication token provided", body["reason"])

	w, body = s.do(t, http.MethodGet, "/api/me", nil, token+"x")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Invalid authentication token", body["reason"])

	expired, err := s.tokenizer.SessionToToken(&core.Session{
		ID:        "s1",
		Pubkey:    pubkey,
		IssuedAt:  time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)
	w, body = s.do(t, http.MethodGet, "/api/me", nil, expired)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Authentication token expired", body["reason"])

	w, body = s.do(t, http.MethodGet, "/api/me", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, pubkey, body["pubkey"])
	assert.Equal(t, signature.SchemeSchnorr, body["scheme"])

	w, body = s.do(t, http.MethodGet, "/api/branches", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "main", body["default"])
	assert.Equal(t, []any{"feature", "main"}, body["branches"])

	w, body = s.do(t, http.MethodGet, "/api/commits?ref=main&path=src/./app.go&limit=5", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["commits"], 1)
	assert.Equal(t, "main", s.repo.lastRef)
	assert.Equal(t, "src/app.go", s.repo.lastPath)
	assert.Equal(t, 5, s.repo.lastLimit)

	w, body = s.do(t, http.MethodGet, "/api/commits/ABC123", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "diff --git", body["diff"])

	w, body = s.do(t, http.MethodGet, "/api/commits/abc123/nostr", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "n1", body["nostrId"])

	w, _ = s.do(t, http.MethodGet, "/api/commits/deadbeef/nostr", nil, token)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = s.do(t, http.MethodGet, "/api/files?ref=main&path=README.md", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", body["content"])
}

func TestRouter_RejectsUnsafeRepositoryInput(t *testing.T) {
	s := newTestServer(t, RouterConfig{})
	token, _ := s.login(t)

	targets := []string{
		"/api/commits?path=../etc/passwd",
		"/api/commits?path=/etc/passwd",
		"/api/commits?ref=--output=x",
		"/api/commits?ref=main..evil",
		"/api/commits?limit=-1",
		"/api/commits?limit=many",
		"/api/commits/not-a-hash",
		"/api/files?ref=main",
		"/api/files?path=-rf",
	}
	for _, target := range targets {
		t.Run(target, func(t *testing.T) {
			w, body := s.do(t, http.MethodGet, target, nil, token)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "invalid_argument", body["reason"])
		})
	}
}

func TestRouter_ChallengeRateLimited(t *testing.T) {
	s := newTestServer(t, RouterConfig{RateLimitRPS: 1, RateLimitBurst: 2})

	for i := 0; i < 2; i++ {
		w, _ := s.do(t, http.MethodPost, "/auth/challenge", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
	}

	w, body := s.do(t, http.MethodPost, "/auth/challenge", nil, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate limit exceeded", body["reason"])
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t, RouterConfig{})

	w, body := s.do(t, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])

	s.do(t, http.MethodPost, "/auth/challenge", nil, "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nostrgate_challenges_issued_total")
}

func TestSanitizePath(t *testing.T) {
	tests := []struct {
		in      string
		out     string
		wantErr bool
	}{
		{"", "", false},
		{".", "", false},
		{"a/b/../c", "", true},
		{"a//b/", "a/b", false},
		{"./docs/README.md", "docs/README.md", false},
		{"..", "", true},
		{"/abs", "", true},
		{"-n", "", true},
	}
	for _, tt := range tests {
		got, err := sanitizePath(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, core.ErrInvalidArgument, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.out, got, tt.in)
	}
}
