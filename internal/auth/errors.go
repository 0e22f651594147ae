package auth

import "errors"

// Sentinel errors returned by this package. Callers should use errors.Is
// for comparison. Token expiry is reported as relay.ErrTokenExpired
// directly (see jwt.go) so callers never need to translate between two
// expiry sentinels.
var (
	// ErrTokenInvalid is returned when a token cannot be parsed or
	// verified for any reason other than expiry — bad signature,
	// malformed claims, wrong issuer.
	ErrTokenInvalid = errors.New("auth: token invalid")

	// ErrAgentTokenNotFound is returned when a presented agent bearer
	// credential does not match any provisioned token.
	ErrAgentTokenNotFound = errors.New("auth: agent token not found")

	// ErrAgentTokenRevoked is returned when a presented agent bearer
	// credential matches a provisioned token that has since been revoked.
	ErrAgentTokenRevoked = errors.New("auth: agent token revoked")
)
