package signature

import (
	"fmt"

	"github.com/layer-3/nostr-gate/ports"
)

// Registry selects the scheme that understands a given pubkey format
type Registry struct {
	schemes []ports.SignatureScheme
}

// NewRegistry creates a registry; earlier schemes win when formats overlap
func NewRegistry(schemes ...ports.SignatureScheme) *Registry {
	return &Registry{schemes: schemes}
}

// NewRegistryFromNames builds a registry from configured scheme names
func NewRegistryFromNames(names []string) (*Registry, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("at least one signature scheme is required")
	}

	schemes := make([]ports.SignatureScheme, 0, len(names))
	for _, name := range names {
		switch name {
		case SchemeSchnorr:
			schemes = append(schemes, Schnorr{})
		case SchemeEIP191:
			schemes = append(schemes, EIP191{})
		default:
			return nil, fmt.Errorf("unknown signature scheme %q", name)
		}
	}
	return NewRegistry(schemes...), nil
}

// ForPubkey returns the first scheme accepting pubkey
func (r *Registry) ForPubkey(pubkey string) (ports.SignatureScheme, bool) {
	for _, s := range r.schemes {
		if s.Accepts(pubkey) {
			return s, true
		}
	}
	return nil, false
}

// Names lists the registered schemes in order
func (r *Registry) Names() []string {
	names := make([]string, len(r.schemes))
	for i, s := range r.schemes {
		names[i] = s.Name()
	}
	return names
}
