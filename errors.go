package nostrgate

import (
	"fmt"

	"github.com/layer-3/nostr-gate/core"
)

// APIError is a non-2xx response from the server
type APIError struct {
	StatusCode int
	Reason     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("nostr-gate: %d %s", e.StatusCode, e.Reason)
}

// Unwrap maps the reason back to the core error it was derived from, so
// callers can use errors.Is(err, core.ErrAlreadyVerified) and friends.
func (e *APIError) Unwrap() error {
	if err := core.ErrorForReason(e.Reason); err != nil {
		return err
	}
	switch e.Reason {
	case "Authentication token expired":
		return core.ErrExpiredToken
	case "Invalid authentication token", "No authentication token provided":
		return core.ErrInvalidToken
	}
	return nil
}
