// Package relay implements the WebSocket Relay Coordinator: the component
// that terminates browser and agent WebSocket connections, authenticates
// each side, maintains the routing tables that map a user to her live
// agents and browsers, and routes messages between them.
//
// Everything outside this package — HTTP auth endpoints, layout
// persistence, billing, the browser-side canvas — is treated as an
// external collaborator. The interfaces this package consumes from those
// collaborators live in collaborators.go.
package relay

import "time"

// Config holds every tunable named in the specification's configuration
// table. Zero values are replaced with their documented defaults by
// withDefaults, which New applies.
type Config struct {
	// BrowserUpgradePath is the HTTP path the Upgrade Router dispatches to
	// the Browser Acceptor.
	BrowserUpgradePath string

	// AgentUpgradePath is the HTTP path the Upgrade Router dispatches to
	// the Agent Acceptor.
	AgentUpgradePath string

	// AccessTokenCookieName and RefreshTokenCookieName name the cookies the
	// Browser Acceptor reads its two tokens from.
	AccessTokenCookieName  string
	RefreshTokenCookieName string

	// AgentAuthTimeout bounds how long the Agent Acceptor waits for the
	// first agent:auth message after the upgrade completes.
	AgentAuthTimeout time.Duration

	// RequestTimeout is the default deadline for a correlated `request`.
	RequestTimeout time.Duration

	// HeartbeatPeriod is how often the Heartbeat Ticker pings every
	// connected agent.
	HeartbeatPeriod time.Duration

	// HeartbeatMaxMissedTicks is how many consecutive missed pongs mark an
	// agent dead.
	HeartbeatMaxMissedTicks int

	// DevelopmentBypassUserID, when non-empty and no identity provider is
	// configured (IdentityProviderConfigured is false), causes the Browser
	// Acceptor to synthesise this fixed user on every connection attempt
	// instead of verifying cookies.
	DevelopmentBypassUserID string

	// IdentityProviderConfigured gates the development bypass. It is false
	// in local/dev deployments that have no external identity provider
	// wired up.
	IdentityProviderConfigured bool
}

// DefaultConfig returns a Config with every documented default applied.
func DefaultConfig() Config {
	return Config{
		BrowserUpgradePath:      "/browser",
		AgentUpgradePath:        "/agent",
		AccessTokenCookieName:   "access_token",
		RefreshTokenCookieName:  "refresh_token",
		AgentAuthTimeout:        5 * time.Second,
		RequestTimeout:          15 * time.Second,
		HeartbeatPeriod:         30 * time.Second,
		HeartbeatMaxMissedTicks: 2,
	}
}

// withDefaults fills any zero-valued field of cfg from DefaultConfig.
func withDefaults(cfg Config) Config {
	d := DefaultConfig()
	if cfg.BrowserUpgradePath == "" {
		cfg.BrowserUpgradePath = d.BrowserUpgradePath
	}
	if cfg.AgentUpgradePath == "" {
		cfg.AgentUpgradePath = d.AgentUpgradePath
	}
	if cfg.AccessTokenCookieName == "" {
		cfg.AccessTokenCookieName = d.AccessTokenCookieName
	}
	if cfg.RefreshTokenCookieName == "" {
		cfg.RefreshTokenCookieName = d.RefreshTokenCookieName
	}
	if cfg.AgentAuthTimeout == 0 {
		cfg.AgentAuthTimeout = d.AgentAuthTimeout
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = d.RequestTimeout
	}
	if cfg.HeartbeatPeriod == 0 {
		cfg.HeartbeatPeriod = d.HeartbeatPeriod
	}
	if cfg.HeartbeatMaxMissedTicks == 0 {
		cfg.HeartbeatMaxMissedTicks = d.HeartbeatMaxMissedTicks
	}
	return cfg
}
