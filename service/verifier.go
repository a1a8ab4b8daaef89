package service

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/layer-3/nostr-gate/core"
	"github.com/layer-3/nostr-gate/ports"
)

// DefaultMaxClockSkew bounds how far created_at may drift from server time
const DefaultMaxClockSkew = 10 * time.Minute

// SchemeResolver picks the signature scheme for a pubkey
type SchemeResolver interface {
	ForPubkey(pubkey string) (ports.SignatureScheme, bool)
}

// Verification is the outcome of a successful assertion check
type Verification struct {
	Pubkey      string
	Scheme      string
	ChallengeID string
}

// VerifierConfig tunes the structural checks
type VerifierConfig struct {
	// Kinds lists the accepted event kinds; empty means KindClientAuth and KindHTTPAuth
	Kinds []int
	// MaxClockSkew bounds |now - created_at|; zero disables the check
	MaxClockSkew time.Duration
}

// EventVerifier checks signed assertions and consumes the challenge they answer
type EventVerifier struct {
	store   ports.ChallengeStore
	schemes SchemeResolver
	kinds   map[int]struct{}
	skew    time.Duration
	now     func() time.Time
}

// NewEventVerifier creates a verifier backed by store
func NewEventVerifier(store ports.ChallengeStore, schemes SchemeResolver, cfg VerifierConfig) *EventVerifier {
	kinds := cfg.Kinds
	if len(kinds) == 0 {
		kinds = []int{core.KindClientAuth, core.KindHTTPAuth}
	}
	v := &EventVerifier{
		store:   store,
		schemes: schemes,
		kinds:   make(map[int]struct{}, len(kinds)),
		skew:    cfg.MaxClockSkew,
		now:     time.Now,
	}
	for _, k := range kinds {
		v.kinds[k] = struct{}{}
	}
	return v
}

// Verify runs the structural, cryptographic and binding checks in that order.
// The challenge is only touched once the first two have passed.
func (v *EventVerifier) Verify(ctx context.Context, event *core.Event) (*Verification, error) {
	if event == nil {
		return nil, fmt.Errorf("no event: %w", core.ErrMalformedAssertion)
	}

	scheme, digest, err := v.checkStructure(event)
	if err != nil {
		return nil, err
	}

	if err := scheme.Verify(event, digest); err != nil {
		return nil, fmt.Errorf("%s: %w", scheme.Name(), core.ErrInvalidSignature)
	}

	challengeID := event.ChallengeRef()
	challenge, err := v.store.Get(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if challenge.Verified {
		return nil, core.ErrAlreadyVerified
	}

	if err := v.store.MarkVerified(ctx, challengeID, event.Pubkey); err != nil {
		return nil, err
	}

	return &Verification{
		Pubkey:      event.Pubkey,
		Scheme:      scheme.Name(),
		ChallengeID: challengeID,
	}, nil
}

func (v *EventVerifier) checkStructure(event *core.Event) (ports.SignatureScheme, []byte, error) {
	malformed := func(format string, args ...any) error {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), core.ErrMalformedAssertion)
	}

	if event.Pubkey == "" || event.Sig == "" || event.ID == "" {
		return nil, nil, malformed("id, pubkey and sig are required")
	}
	if _, ok := v.kinds[event.Kind]; !ok {
		return nil, nil, malformed("event kind %d is not accepted", event.Kind)
	}
	if event.CreatedAt <= 0 {
		return nil, nil, malformed("created_at is required")
	}
	if v.skew > 0 {
		drift := v.now().Sub(time.Unix(event.CreatedAt, 0))
		if drift > v.skew || drift < -v.skew {
			return nil, nil, malformed("created_at is %s away from server time", drift.Round(time.Second))
		}
	}
	if event.ChallengeRef() == "" {
		return nil, nil, malformed("event does not reference a challenge")
	}

	id, err := hex.DecodeString(event.ID)
	if err != nil || len(id) != 32 {
		return nil, nil, malformed("id must be 32 bytes of hex")
	}

	scheme, ok := v.schemes.ForPubkey(event.Pubkey)
	if !ok {
		return nil, nil, malformed("unsupported pubkey format")
	}

	digest, err := scheme.Digest(event)
	if err != nil {
		return nil, nil, malformed("digest: %v", err)
	}
	if subtle.ConstantTimeCompare(digest, id) != 1 {
		return nil, nil, malformed("id does not match event content")
	}

	return scheme, digest, nil
}
