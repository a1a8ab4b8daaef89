package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/layer-3/nostr-gate/adapters/signature"
	"github.com/layer-3/nostr-gate/core"
	"github.com/layer-3/nostr-gate/ports"
	"go.uber.org/zap"
)

// Filter is a subscription filter
type Filter struct {
	Authors []string `json:"authors,omitempty"`
	Kinds   []int    `json:"kinds,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

// Client queries Nostr relays for profile metadata. Every configured relay
// is asked concurrently and the first valid answer wins.
type Client struct {
	urls   []string
	dialer *websocket.Dialer
	logger *zap.Logger
}

var _ ports.ProfileFetcher = (*Client)(nil)

// NewClient creates a relay client for the given relay URLs
func NewClient(urls []string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		urls: urls,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

type result struct {
	relay   string
	profile core.Profile
	err     error
}

// FetchProfile returns the newest kind-0 content published by pubkey.
// A nil profile with nil error means the relays have none. ctx bounds the
// whole lookup; its deadline surfaces as core.ErrMetadataFetchTimeout and
// relay failures as core.ErrUpstreamUnavailable.
func (c *Client) FetchProfile(ctx context.Context, pubkey string) (core.Profile, error) {
	if len(c.urls) == 0 {
		return nil, fmt.Errorf("no relays configured: %w", core.ErrUpstreamUnavailable)
	}

	queryCtx, cancel := context.WithCancel(ctx)
	results := make(chan result, len(c.urls))

	var wg sync.WaitGroup
	for _, url := range c.urls {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			profile, err := c.query(queryCtx, url, pubkey)
			results <- result{relay: url, profile: profile, err: err}
		}(url)
	}
	defer wg.Wait()
	defer cancel()

	var (
		absent   bool
		firstErr error
	)
	for range c.urls {
		select {
		case r := <-results:
			switch {
			case r.err != nil:
				c.logger.Debug("relay query failed", zap.String("relay", r.relay), zap.Error(r.err))
				if firstErr == nil {
					firstErr = r.err
				}
			case r.profile != nil:
				return r.profile, nil
			default:
				absent = true
			}
		case <-ctx.Done():
			return nil, contextError(ctx)
		}
	}

	if absent {
		return nil, nil
	}
	if ctx.Err() != nil {
		return nil, contextError(ctx)
	}
	return nil, fmt.Errorf("%w: %v", core.ErrUpstreamUnavailable, firstErr)
}

// query runs one REQ against one relay. The connection is closed on every path.
func (c *Client) query(ctx context.Context, url, pubkey string) (core.Profile, error) {
	conn, _, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	// Unblock ReadMessage when the lookup is cancelled or times out
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	subID := "profile-" + uuid.NewString()
	req := []any{"REQ", subID, Filter{Authors: []string{pubkey}, Kinds: []int{core.KindMetadata}, Limit: 1}}
	if err := conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("send REQ to %s: %w", url, err)
	}
	defer func() {
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = conn.WriteJSON([]any{"CLOSE", subID})
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read from %s: %w", url, err)
		}

		var msg []json.RawMessage
		if err := json.Unmarshal(data, &msg); err != nil || len(msg) < 2 {
			continue
		}
		var label, sub string
		if err := json.Unmarshal(msg[0], &label); err != nil {
			continue
		}
		_ = json.Unmarshal(msg[1], &sub)

		switch label {
		case "EVENT":
			if sub != subID || len(msg) < 3 {
				continue
			}
			var ev core.Event
			if err := json.Unmarshal(msg[2], &ev); err != nil {
				continue
			}
			if err := validProfileEvent(&ev, pubkey); err != nil {
				c.logger.Debug("discarding relay event", zap.String("relay", url), zap.Error(err))
				continue
			}
			return profileFromContent(ev.Content), nil

		case "EOSE":
			if sub == subID {
				return nil, nil
			}

		case "CLOSED":
			if sub == subID {
				var reason string
				if len(msg) > 2 {
					_ = json.Unmarshal(msg[2], &reason)
				}
				return nil, fmt.Errorf("relay %s closed subscription: %s", url, reason)
			}

		case "NOTICE":
			c.logger.Debug("relay notice", zap.String("relay", url), zap.String("notice", sub))
		}
	}
}

func validProfileEvent(ev *core.Event, pubkey string) error {
	if ev.Kind != core.KindMetadata {
		return fmt.Errorf("unexpected kind %d", ev.Kind)
	}
	if ev.Pubkey != pubkey {
		return errors.New("event from another author")
	}
	if ev.ComputeID() != ev.ID {
		return errors.New("event id does not match content")
	}

	scheme := signature.Schnorr{}
	digest, err := scheme.Digest(ev)
	if err != nil {
		return err
	}
	return scheme.Verify(ev, digest)
}

// profileFromContent keeps the content only if it is a JSON object
func profileFromContent(content string) core.Profile {
	raw := bytes.TrimSpace([]byte(content))
	if len(raw) == 0 || raw[0] != '{' || !json.Valid(raw) {
		return nil
	}
	return core.Profile(raw)
}

func contextError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return core.ErrMetadataFetchTimeout
	}
	return fmt.Errorf("%w: %v", core.ErrUpstreamUnavailable, ctx.Err())
}
