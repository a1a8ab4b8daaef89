package ports

import (
	"context"

	"github.com/layer-3/nostr-gate/core"
)

// Repository is the read-only version-control collaborator behind the
// protected API. Missing objects are reported as core.ErrNotFound.
type Repository interface {
	Branches(ctx context.Context) ([]string, error)
	DefaultBranch(ctx context.Context) (string, error)
	Log(ctx context.Context, ref, path string, limit int) ([]core.Commit, error)
	Commit(ctx context.Context, hash string) (*core.Commit, error)
	File(ctx context.Context, ref, path string) (*core.FileContent, error)
	NostrCommit(ctx context.Context, hash string) (*core.NostrCommit, error)
}
