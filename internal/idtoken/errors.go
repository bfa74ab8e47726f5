package idtoken

import "errors"

// Verification failures. Every error returned by Verifier.Verify wraps exactly one of these.
var (
	// ErrMalformedToken is returned when the token is not a well-formed JWT with the required claims.
	ErrMalformedToken = errors.New("malformed id token")
	// ErrInvalidSignature is returned when no published provider key verifies the token.
	ErrInvalidSignature = errors.New("id token signature invalid")
	// ErrExpiredToken is returned when the token's exp is past the allowed skew.
	ErrExpiredToken = errors.New("id token expired")
	// ErrIssuerMismatch is returned when iss or aud does not match the configured project.
	ErrIssuerMismatch = errors.New("id token issuer or audience mismatch")
	// ErrNetwork is returned when the provider's signing keys cannot be fetched in time.
	ErrNetwork = errors.New("identity provider keys unavailable")
)
