package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims combines standard claims with session-specific ones
type SessionClaims struct {
	jwt.RegisteredClaims
	Scheme string `json:"scheme,omitempty"` // Signature scheme that proved the subject
}
