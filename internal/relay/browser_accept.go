package relay

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// BrowserAcceptor authenticates an incoming browser upgrade and, on
// success, starts a BrowserSession (§4.2).
type BrowserAcceptor struct {
	cfg      Config
	access   TokenVerifier
	refresh  TokenVerifier
	users    UserLookup
	tables   *RoutingTables
	policy   PolicyProvider
	chat     ChatBroadcaster
	logger   *zap.Logger
	metrics  *Metrics
}

// NewBrowserAcceptor constructs a BrowserAcceptor. access and refresh may be
// the same TokenVerifier instance if a single verifier distinguishes token
// types via the `type` claim.
func NewBrowserAcceptor(cfg Config, access, refresh TokenVerifier, users UserLookup, tables *RoutingTables, policy PolicyProvider, chat ChatBroadcaster, logger *zap.Logger, metrics *Metrics) *BrowserAcceptor {
	return &BrowserAcceptor{
		cfg:     cfg,
		access:  access,
		refresh: refresh,
		users:   users,
		tables:  tables,
		policy:  policy,
		chat:    chat,
		logger:  logger.Named("relay.browser_accept"),
		metrics: metrics,
	}
}

// ServeHTTP runs the algorithm in §4.2: verify the access token, falling
// through to the refresh token only on ErrTokenExpired, and — absent an
// identity provider — the development bypass. On success it upgrades the
// socket and hands off to a new BrowserSession; on failure it responds 401
// without upgrading.
func (a *BrowserAcceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.authenticate(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := browserUpgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Debug("browser upgrade failed", zap.Error(err))
		return
	}

	if a.metrics != nil {
		a.metrics.connectedBrowsers.Inc()
	}
	session := newBrowserSession(conn, userID, a.tables, a.policy, a.chat, a.cfg, a.logger, a.metrics)
	go func() {
		session.Run(r.Context())
		if a.metrics != nil {
			a.metrics.connectedBrowsers.Dec()
		}
	}()
}

func (a *BrowserAcceptor) authenticate(r *http.Request) (string, bool) {
	if !a.cfg.IdentityProviderConfigured && a.cfg.DevelopmentBypassUserID != "" {
		return a.cfg.DevelopmentBypassUserID, true
	}

	ctx := r.Context()

	userID, expired, ok := a.tryAccessToken(ctx, r)
	if ok {
		return userID, true
	}
	if !expired {
		// Any access-token failure other than expiry terminates
		// authentication immediately — no fall-through to the refresh token.
		return "", false
	}
	return a.tryRefreshToken(ctx, r)
}

// tryAccessToken returns (userID, expired, ok). expired is true only when
// the token was well-formed but past its deadline — the one case that
// permits falling through to the refresh token.
func (a *BrowserAcceptor) tryAccessToken(ctx context.Context, r *http.Request) (string, bool, bool) {
	cookie, err := r.Cookie(a.cfg.AccessTokenCookieName)
	if err != nil || cookie.Value == "" {
		return "", false, false
	}

	verified, err := a.access.Verify(ctx, cookie.Value)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return "", true, false
		}
		a.logger.Debug("access token rejected", zap.Error(err))
		return "", false, false
	}

	exists, err := a.users.Exists(ctx, verified.Subject)
	if err != nil || !exists {
		return "", false, false
	}
	return verified.Subject, false, true
}

func (a *BrowserAcceptor) tryRefreshToken(ctx context.Context, r *http.Request) (string, bool) {
	cookie, err := r.Cookie(a.cfg.RefreshTokenCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}

	verified, err := a.refresh.Verify(ctx, cookie.Value)
	if err != nil || verified.TokenType != "refresh" {
		return "", false
	}

	exists, err := a.users.Exists(ctx, verified.Subject)
	if err != nil || !exists {
		return "", false
	}
	return verified.Subject, true
}
