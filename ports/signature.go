package ports

import "github.com/layer-3/nostr-gate/core"

// SignatureScheme is a pluggable way of proving control of an identity.
// It owns the canonical digest, the key format and the curve.
type SignatureScheme interface {
	// Name identifies the scheme in sessions and configuration
	Name() string

	// Accepts reports whether pubkey is in this scheme's key format
	Accepts(pubkey string) bool

	// Digest recomputes the canonical digest of the event; it must match the event id
	Digest(event *core.Event) ([]byte, error)

	// Verify checks event.Sig over digest for event.Pubkey
	Verify(event *core.Event, digest []byte) error
}
