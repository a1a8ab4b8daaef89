package ports

import "github.com/layer-3/nostr-gate/core"

// Tokenizer converts between sessions and bearer credentials
type Tokenizer interface {
	// SessionToToken signs the session claims
	SessionToToken(session *core.Session) (string, error)

	// TokenToSession checks integrity and expiry. It fails with
	// core.ErrInvalidToken or core.ErrExpiredToken.
	TokenToSession(token string) (*core.Session, error)
}
