package core

import (
	"encoding/json"
	"time"
)

// ChallengeKind identifies the authentication flow a challenge belongs to.
// New flows add a constant here; stores treat the value as opaque.
type ChallengeKind string

const (
	// ChallengeKindLogin is the interactive login flow
	ChallengeKindLogin ChallengeKind = "login"
)

// ChallengeStatus is the poll-visible state of a challenge
type ChallengeStatus string

const (
	StatusPending  ChallengeStatus = "pending"
	StatusVerified ChallengeStatus = "verified"
	StatusNotFound ChallengeStatus = "notFound"
)

// Challenge represents an authentication challenge
type Challenge struct {
	ID        string        // Random token the client signs over
	Kind      ChallengeKind // Flow discriminator
	CreatedAt time.Time     // When the challenge was issued
	ExpiresAt time.Time     // When the store may evict it
	Verified  bool          // Set once by the verifier, never reverted
	Pubkey    string        // Identity that satisfied the challenge
}

// Status projects the challenge onto its poll-visible state.
func (c *Challenge) Status() ChallengeStatus {
	if c == nil {
		return StatusNotFound
	}
	if c.Verified {
		return StatusVerified
	}
	return StatusPending
}

// Expired reports whether the challenge is past its eviction horizon at now.
func (c *Challenge) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Session represents an authenticated user session
type Session struct {
	ID        string    // Unique session identifier (JWT ID)
	Pubkey    string    // Verified identity the session is bound to
	Scheme    string    // Signature scheme that proved the identity
	IssuedAt  time.Time // When the session was created
	ExpiresAt time.Time // When the credential stops being accepted
}

// Profile is the opaque metadata object an identity publishes about itself.
type Profile json.RawMessage

// MarshalJSON keeps the raw object intact when the profile is embedded in responses.
func (p Profile) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

// UnmarshalJSON stores a copy of the raw object. null leaves the profile empty.
func (p *Profile) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = nil
		return nil
	}
	*p = append((*p)[:0], data...)
	return nil
}
