package core

import "errors"

var (
	ErrMalformedAssertion   = errors.New("malformed assertion")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrChallengeNotFound    = errors.New("challenge not found")
	ErrAlreadyVerified      = errors.New("challenge already verified")
	ErrInvalidToken         = errors.New("invalid token")
	ErrExpiredToken         = errors.New("token has expired")
	ErrMetadataFetchTimeout = errors.New("metadata fetch timed out")
	ErrUpstreamUnavailable  = errors.New("metadata network unavailable")
	ErrStoreOperationFailed = errors.New("store operation failed")
	ErrNotFound             = errors.New("not found")
	ErrInvalidArgument      = errors.New("invalid argument")
)

// reasons maps each sentinel onto the machine-readable reason reported to callers.
var reasons = []struct {
	err    error
	reason string
}{
	{ErrMalformedAssertion, "malformed_assertion"},
	{ErrInvalidSignature, "invalid_signature"},
	{ErrChallengeNotFound, "challenge_not_found"},
	{ErrAlreadyVerified, "already_verified"},
	{ErrExpiredToken, "expired_token"},
	{ErrInvalidToken, "invalid_token"},
	{ErrMetadataFetchTimeout, "metadata_timeout"},
	{ErrUpstreamUnavailable, "upstream_unavailable"},
	{ErrStoreOperationFailed, "store_failure"},
	{ErrNotFound, "not_found"},
	{ErrInvalidArgument, "invalid_argument"},
}

// Reason returns the machine-readable reason for err, or "internal_error".
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "internal_error"
}

// ErrorForReason is the inverse of Reason. It returns nil for unknown reasons.
func ErrorForReason(reason string) error {
	for _, r := range reasons {
		if r.reason == reason {
			return r.err
		}
	}
	return nil
}
