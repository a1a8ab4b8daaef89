package ports

import (
	"context"

	"github.com/layer-3/nostr-gate/core"
)

// ChallengeStore owns outstanding challenges and their verification state
type ChallengeStore interface {
	// Create issues a fresh, unverified challenge
	Create(ctx context.Context, kind core.ChallengeKind) (*core.Challenge, error)

	// Get returns a copy of the challenge, or core.ErrChallengeNotFound if it
	// is absent or expired
	Get(ctx context.Context, id string) (*core.Challenge, error)

	// MarkVerified records pubkey as the identity that satisfied the challenge.
	// Exactly one concurrent caller succeeds; the rest get core.ErrAlreadyVerified.
	MarkVerified(ctx context.Context, id, pubkey string) error

	// Status reports pending, verified or notFound
	Status(ctx context.Context, id string) (core.ChallengeStatus, error)
}
