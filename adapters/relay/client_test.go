package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/gorilla/websocket"
	"github.com/layer-3/nostr-gate/adapters/signature"
	"github.com/layer-3/nostr-gate/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRelay answers every REQ with the configured events followed by EOSE.
type fakeRelay struct {
	events  []*core.Event
	silent  atomic.Bool
	closed  atomic.Int32 // CLOSE messages received
	gone    atomic.Int32 // connections that ended
	srv     *httptest.Server
	upgrade websocket.Upgrader
}

func newFakeRelay(t *testing.T, events ...*core.Event) *fakeRelay {
	t.Helper()
	r := &fakeRelay{events: events}
	r.srv = httptest.NewServer(http.HandlerFunc(r.serve))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *fakeRelay) URL() string {
	return "ws" + strings.TrimPrefix(r.srv.URL, "http")
}

func (r *fakeRelay) serve(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrade.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	defer func() {
		conn.Close()
		r.gone.Add(1)
	}()

	for {
		var msg []json.RawMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		var label, sub string
		_ = json.Unmarshal(msg[0], &label)
		_ = json.Unmarshal(msg[1], &sub)

		switch label {
		case "REQ":
			if r.silent.Load() {
				continue
			}
			_ = conn.WriteJSON([]any{"NOTICE", "hello"})
			for _, ev := range r.events {
				_ = conn.WriteJSON([]any{"EVENT", sub, ev})
			}
			_ = conn.WriteJSON([]any{"EOSE", sub})
		case "CLOSE":
			r.closed.Add(1)
		}
	}
}

func (r *fakeRelay) waitGone(t *testing.T, n int32) {
	t.Helper()
	assert.Eventually(t, func() bool { return r.gone.Load() >= n }, 2*time.Second, 10*time.Millisecond)
}

func signedProfile(t *testing.T, priv *btcec.PrivateKey, content string) *core.Event {
	t.Helper()
	ev := &core.Event{CreatedAt: time.Now().Unix(), Kind: core.KindMetadata, Tags: []core.Tag{}, Content: content}
	require.NoError(t, signature.SignEvent(priv, ev))
	return ev
}

func TestFetchProfile_Found(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	ev := signedProfile(t, priv, `{"name":"alice","picture":"https://x/a.png"}`)

	relay := newFakeRelay(t, ev)
	c := NewClient([]string{relay.URL()}, nil)

	profile, err := c.FetchProfile(context.Background(), ev.Pubkey)
	require.NoError(t, err)
	assert.JSONEq(t, ev.Content, string(profile))

	relay.waitGone(t, 1)
	assert.Equal(t, int32(1), relay.closed.Load())
}

func TestFetchProfile_Absent(t *testing.T) {
	relay := newFakeRelay(t)
	c := NewClient([]string{relay.URL()}, nil)

	profile, err := c.FetchProfile(context.Background(), strings.Repeat("ab", 32))
	require.NoError(t, err)
	assert.Nil(t, profile)
	relay.waitGone(t, 1)
}

func TestFetchProfile_DiscardsForgedAndForeignEvents(t *testing.T) {
	alice, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	bob, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	forged := signedProfile(t, alice, `{"name":"alice"}`)
	forged.Content = `{"name":"mallory"}`
	foreign := signedProfile(t, bob, `{"name":"bob"}`)
	notJSON := signedProfile(t, alice, `plain text`)

	relay := newFakeRelay(t, forged, foreign, notJSON)
	c := NewClient([]string{relay.URL()}, nil)

	profile, err := c.FetchProfile(context.Background(), forged.Pubkey)
	require.NoError(t, err)
	assert.Nil(t, profile)
}

func TestFetchProfile_Timeout(t *testing.T) {
	relay := newFakeRelay(t)
	relay.silent.Store(true)
	c := NewClient([]string{relay.URL()}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	profile, err := c.FetchProfile(ctx, strings.Repeat("ab", 32))
	assert.Nil(t, profile)
	assert.ErrorIs(t, err, core.ErrMetadataFetchTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)

	relay.waitGone(t, 1)
}

func TestFetchProfile_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	c := NewClient([]string{url}, nil)
	profile, err := c.FetchProfile(context.Background(), strings.Repeat("ab", 32))
	assert.Nil(t, profile)
	assert.ErrorIs(t, err, core.ErrUpstreamUnavailable)
}

func TestFetchProfile_NoRelays(t *testing.T) {
	c := NewClient(nil, nil)
	_, err := c.FetchProfile(context.Background(), strings.Repeat("ab", 32))
	assert.ErrorIs(t, err, core.ErrUpstreamUnavailable)
}

func TestFetchProfile_FirstRelayWithProfileWins(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	ev := signedProfile(t, priv, `{"name":"alice"}`)

	srv := httptest.NewServer(http.NotFoundHandler())
	dead := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	silent := newFakeRelay(t)
	silent.silent.Store(true)
	good := newFakeRelay(t, ev)

	c := NewClient([]string{dead, silent.URL(), good.URL()}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	profile, err := c.FetchProfile(ctx, ev.Pubkey)
	require.NoError(t, err)
	assert.JSONEq(t, ev.Content, string(profile))

	// The silent relay's socket is released once a winner is found
	silent.waitGone(t, 1)
}
