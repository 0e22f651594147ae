// Package auth provides the relay's token collaborators: RS256 JWT
// signing/verification for browser sessions (internal/relay.TokenVerifier)
// and SHA-256 bearer-token verification for agents
// (internal/relay.AgentTokenVerifier).
package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/arkeep-io/relaycoord/internal/relay"
)

const (
	// AccessTokenDuration is how long a signed access token remains valid.
	// Short-lived by design — refresh tokens handle session continuity.
	AccessTokenDuration = 15 * time.Minute

	// RefreshTokenDuration is how long a signed refresh token remains
	// valid.
	RefreshTokenDuration = 30 * 24 * time.Hour

	// rsaKeyBits is the RSA key size used for JWT signing. 2048 bits is the
	// minimum recommended.
	rsaKeyBits = 2048

	// tokenTypeAccess and tokenTypeRefresh are the `typ` claim values. The
	// Browser Acceptor requires a refresh cookie to carry tokenTypeRefresh
	// before accepting it (§4.2 step 4).
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims holds the custom JWT claims embedded in both access and refresh
// tokens. Standard claims (exp, iat, iss, sub) are included via
// jwt.RegisteredClaims.
type Claims struct {
	jwt.RegisteredClaims

	// TokenType distinguishes an access token from a refresh token. The
	// relay consults this on the refresh path only.
	TokenType string `json:"typ"`
}

// JWTManager handles RS256 signing and verification of access and refresh
// tokens. It holds the RSA key pair in memory after initialization, and
// implements relay.TokenVerifier directly — a single JWTManager instance
// may be wired in as both the relay's access and refresh verifier, since
// the only behavioral difference between the two token kinds is the `typ`
// claim the caller checks.
type JWTManager struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
}

// NewJWTManagerFromFiles loads an RSA key pair from PEM files on disk.
// privateKeyPath must point to a PKCS#8 or PKCS#1 PEM-encoded private key.
// publicKeyPath must point to the corresponding PEM-encoded public key.
//
// Use this in production where keys are mounted as secrets (Docker, Kubernetes).
func NewJWTManagerFromFiles(privateKeyPath, publicKeyPath, issuer string) (*JWTManager, error) {
	privBytes, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("auth: reading private key file: %w", err)
	}

	pubBytes, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("auth: reading public key file: %w", err)
	}

	return newJWTManagerFromPEM(privBytes, pubBytes, issuer)
}

// NewJWTManagerGenerated creates a JWTManager with a freshly generated RSA
// key pair. The keys are ephemeral — they are not persisted anywhere, so
// all existing tokens are invalidated on restart. Suitable for development
// and single-instance deployments.
func NewJWTManagerGenerated(issuer string) (*JWTManager, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("auth: generating RSA key pair: %w", err)
	}

	return &JWTManager{
		privateKey: privateKey,
		publicKey:  &privateKey.PublicKey,
		issuer:     issuer,
	}, nil
}

// newJWTManagerFromPEM parses PEM-encoded RSA key bytes and returns a JWTManager.
func newJWTManagerFromPEM(privatePEM, publicPEM []byte, issuer string) (*JWTManager, error) {
	privBlock, _ := pem.Decode(privatePEM)
	if privBlock == nil {
		return nil, errors.New("auth: failed to decode private key PEM block")
	}

	// Support both PKCS#1 (RSA PRIVATE KEY) and PKCS#8 (PRIVATE KEY) formats.
	var privateKey *rsa.PrivateKey
	switch privBlock.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(privBlock.Bytes)
		if err != nil {
			return nil, fmt.Errorf("auth: parsing PKCS#1 private key: %w", err)
		}
		privateKey = key
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(privBlock.Bytes)
		if err != nil {
			return nil, fmt.Errorf("auth: parsing PKCS#8 private key: %w", err)
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("auth: PKCS#8 key is not an RSA key")
		}
		privateKey = rsaKey
	default:
		return nil, fmt.Errorf("auth: unsupported private key PEM type: %s", privBlock.Type)
	}

	pubBlock, _ := pem.Decode(publicPEM)
	if pubBlock == nil {
		return nil, errors.New("auth: failed to decode public key PEM block")
	}

	pubInterface, err := x509.ParsePKIXPublicKey(pubBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("auth: parsing public key: %w", err)
	}

	publicKey, ok := pubInterface.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("auth: public key is not an RSA key")
	}

	return &JWTManager{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
	}, nil
}

// GenerateAccessToken creates a signed RS256 access token for userID.
func (m *JWTManager) GenerateAccessToken(userID string) (string, error) {
	return m.generate(userID, tokenTypeAccess, AccessTokenDuration)
}

// GenerateRefreshToken creates a signed RS256 refresh token for userID.
func (m *JWTManager) GenerateRefreshToken(userID string) (string, error) {
	return m.generate(userID, tokenTypeRefresh, RefreshTokenDuration)
}

func (m *JWTManager) generate(userID, tokenType string, duration time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			ID:        uuid.NewString(),
		},
		TokenType: tokenType,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(m.privateKey)
	if err != nil {
		return "", fmt.Errorf("auth: signing %s token: %w", tokenType, err)
	}
	return signed, nil
}

// Verify parses and verifies a JWT string, implementing
// internal/relay.TokenVerifier. It returns relay.ErrTokenExpired
// (checkable with errors.Is) when the token is well-formed but past its
// expiry, so the Browser Acceptor can fall through from the access token
// to the refresh token per §4.2 step 3.
func (m *JWTManager) Verify(ctx context.Context, tokenString string) (relay.VerifiedToken, error) {
	claims, err := m.parse(tokenString)
	if err != nil {
		return relay.VerifiedToken{}, err
	}
	return relay.VerifiedToken{Subject: claims.Subject, TokenType: claims.TokenType}, nil
}

func (m *JWTManager) parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(t *jwt.Token) (any, error) {
			// Reject tokens signed with anything other than RS256. This
			// prevents the "alg:none" and HMAC confusion attacks.
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", t.Header["alg"])
			}
			return m.publicKey, nil
		},
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, relay.ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// PublicKeyPEM returns the public key in PEM-encoded PKIX format. Useful
// for exposing a JWKS-style endpoint or sharing the key with other
// services that need to verify relay-issued tokens independently.
func (m *JWTManager) PublicKeyPEM() ([]byte, error) {
	pubBytes, err := x509.MarshalPKIXPublicKey(m.publicKey)
	if err != nil {
		return nil, fmt.Errorf("auth: marshaling public key: %w", err)
	}

	return pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubBytes,
	}), nil
}
