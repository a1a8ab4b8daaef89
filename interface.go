package nostrgate

import (
	"context"
	"time"

	"github.com/layer-3/nostr-gate/core"
)

// Client represents the public interface for interacting with a nostr-gate server
type Client interface {
	// Challenge requests a fresh login challenge
	Challenge(ctx context.Context) (*ChallengeResponse, error)

	// Verify submits a signed event and returns the issued session token
	Verify(ctx context.Context, event *core.Event) (*VerifyResponse, error)

	// Status polls whether a challenge has been satisfied
	Status(ctx context.Context, challengeID string) (*StatusResponse, error)

	// Me returns the identity bound to a session token
	Me(ctx context.Context, token string) (*MeResponse, error)
}

// ChallengeResponse is returned by Challenge
type ChallengeResponse struct {
	Challenge string `json:"challenge"`
	Tag       string `json:"tag"`
}

// VerifyResponse is returned by Verify
type VerifyResponse struct {
	Status    string       `json:"status"`
	Pubkey    string       `json:"pubkey"`
	Metadata  core.Profile `json:"metadata"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

// UserInfo identifies who satisfied a challenge
type UserInfo struct {
	Pubkey string `json:"pubkey"`
}

// StatusResponse is returned by Status. UserInfo is nil while pending.
type StatusResponse struct {
	Status   core.ChallengeStatus `json:"status"`
	UserInfo *UserInfo            `json:"userInfo"`
}

// MeResponse is returned by Me
type MeResponse struct {
	Pubkey    string    `json:"pubkey"`
	Scheme    string    `json:"scheme"`
	ExpiresAt time.Time `json:"expiresAt"`
}
