package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	// agentTokenBytes is the length of a freshly provisioned agent token,
	// before hex-encoding, in bytes.
	agentTokenBytes = 32
)

// AgentTokenLookup resolves a hashed agent bearer credential to its owning
// user and revocation state. Implemented by internal/repository against
// the agent_tokens table.
type AgentTokenLookup interface {
	FindByHash(ctx context.Context, tokenHash string) (userID string, revoked bool, err error)
}

// AgentTokenVerifier implements internal/relay.AgentTokenVerifier by
// hashing the presented bearer token and looking up the hash, mirroring
// the teacher's hashRefreshToken pattern — agent tokens are long-lived
// opaque bearer credentials, not JWTs, so there is nothing to gain from
// asymmetric signing here.
type AgentTokenVerifier struct {
	lookup AgentTokenLookup
}

// NewAgentTokenVerifier constructs an AgentTokenVerifier.
func NewAgentTokenVerifier(lookup AgentTokenLookup) *AgentTokenVerifier {
	return &AgentTokenVerifier{lookup: lookup}
}

// Verify hashes bearerToken and resolves it to an owning user id.
func (v *AgentTokenVerifier) Verify(ctx context.Context, bearerToken string) (string, error) {
	if bearerToken == "" {
		return "", ErrAgentTokenNotFound
	}

	userID, revoked, err := v.lookup.FindByHash(ctx, HashAgentToken(bearerToken))
	if err != nil {
		return "", fmt.Errorf("auth: looking up agent token: %w", err)
	}
	if revoked {
		return "", ErrAgentTokenRevoked
	}
	if userID == "" {
		return "", ErrAgentTokenNotFound
	}
	return userID, nil
}

// GenerateAgentToken creates a new random opaque bearer credential along
// with its storable hash. The raw value is returned to the operator
// exactly once — only the hash is persisted.
func GenerateAgentToken() (raw, hash string, err error) {
	buf := make([]byte, agentTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("auth: generating agent token: %w", err)
	}
	raw = hex.EncodeToString(buf)
	return raw, HashAgentToken(raw), nil
}

// HashAgentToken returns the SHA-256 hex digest of a raw agent token.
func HashAgentToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
