package relay

import "context"

// VerifiedToken is what a TokenVerifier returns on success.
type VerifiedToken struct {
	// Subject is the token's subject claim — a user id.
	Subject string

	// TokenType is the token's `type` claim, if any. The Browser Acceptor
	// requires this to equal "refresh" when verifying the refresh cookie.
	TokenType string
}

// TokenVerifier verifies a signed token and extracts its subject. It must
// return ErrTokenExpired (wrapped or bare, checked with errors.Is) when the
// token is well-formed but expired, so the Browser Acceptor can distinguish
// "fall through to the refresh token" from "reject immediately".
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (VerifiedToken, error)
}

// UserLookup confirms that a subject id names an existing, usable user.
type UserLookup interface {
	// Exists reports whether userID names a live user account. It does not
	// return the account itself — the relay only needs tenancy
	// confirmation, not profile data.
	Exists(ctx context.Context, userID string) (bool, error)
}

// AgentTokenVerifier verifies the bearer credential an agent presents in
// its agent:auth message and resolves the owning user.
type AgentTokenVerifier interface {
	Verify(ctx context.Context, bearerToken string) (userID string, err error)
}

// PolicyProvider supplies the opaque per-user policy payload pushed to a
// browser as `tier:info` immediately after it connects.
type PolicyProvider interface {
	TierInfoFor(ctx context.Context, userID string) (any, error)
}

// ChatBroadcaster lets an external chat subsystem push chat:message
// envelopes to a user's browsers. A Browser Session subscribes on connect
// and unsubscribes on close; deliver is invoked with the raw chat payload
// for the relay to wrap in a `chat:message` Envelope and enqueue.
type ChatBroadcaster interface {
	Subscribe(userID string, deliver func(payload []byte)) (unsubscribe func())
}
