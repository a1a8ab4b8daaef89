package ports

import (
	"context"

	"github.com/layer-3/nostr-gate/core"
)

// ProfileFetcher looks up the metadata an identity published about itself.
// A nil profile with a nil error means the identity published nothing.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, pubkey string) (core.Profile, error)
}
