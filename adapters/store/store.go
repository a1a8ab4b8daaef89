package store

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	// DefaultChallengeTTL bounds how long a pending challenge can be answered
	DefaultChallengeTTL = 5 * time.Minute

	// DefaultVerifiedTTL is how long a verified challenge stays visible to status polls
	DefaultVerifiedTTL = 10 * time.Minute

	// DefaultCapacity bounds the in-memory store
	DefaultCapacity = 100_000

	challengeIDBytes = 32
)

// Config holds the eviction policy shared by the store implementations
type Config struct {
	ChallengeTTL time.Duration
	VerifiedTTL  time.Duration
	Capacity     int // memory store only; <= 0 means DefaultCapacity
}

func (c Config) withDefaults() Config {
	if c.ChallengeTTL <= 0 {
		c.ChallengeTTL = DefaultChallengeTTL
	}
	if c.VerifiedTTL <= 0 {
		c.VerifiedTTL = DefaultVerifiedTTL
	}
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}
	return c
}

// newChallengeID returns 256 bits of randomness, hex encoded
func newChallengeID() (string, error) {
	b := make([]byte, challengeIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate challenge id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
