// Package nostrgate is the Go SDK for the nostr-gate HTTP API.
package nostrgate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/layer-3/nostr-gate/core"
)

const defaultTimeout = 30 * time.Second

// HTTPClient talks to a nostr-gate server over HTTP
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

var _ Client = (*HTTPClient)(nil)

// Option is a functional option for configuring an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) {
		c.httpClient = hc
	}
}

// NewHTTPClient creates a client for the server at baseURL
func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Challenge requests a fresh login challenge
func (c *HTTPClient) Challenge(ctx context.Context) (*ChallengeResponse, error) {
	var out ChallengeResponse
	if err := c.do(ctx, http.MethodPost, "/auth/challenge", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify submits a signed event
func (c *HTTPClient) Verify(ctx context.Context, event *core.Event) (*VerifyResponse, error) {
	body := struct {
		SignedEvent *core.Event `json:"signedEvent"`
	}{event}

	var out VerifyResponse
	if err := c.do(ctx, http.MethodPost, "/auth/verify", body, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status polls a challenge
func (c *HTTPClient) Status(ctx context.Context, challengeID string) (*StatusResponse, error) {
	var out StatusResponse
	path := "/auth/status?k1=" + url.QueryEscape(challengeID)
	if err := c.do(ctx, http.MethodGet, path, nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me returns the identity bound to token
func (c *HTTPClient) Me(ctx context.Context, token string) (*MeResponse, error) {
	var out MeResponse
	if err := c.do(ctx, http.MethodGet, "/api/me", nil, token, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in any, token string, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Reason string `json:"reason"`
		}
		if json.Unmarshal(raw, &e) != nil || e.Reason == "" {
			e.Reason = strings.TrimSpace(string(raw))
		}
		return &APIError{StatusCode: resp.StatusCode, Reason: e.Reason}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
