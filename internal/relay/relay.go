package relay

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Coordinator wires the Upgrade Router, both acceptors, the Routing Tables,
// and the Heartbeat Ticker into a single runnable unit. It is the package's
// entrypoint — cmd/server constructs one and mounts it on the raw upgrade
// port.
type Coordinator struct {
	cfg       Config
	tables    *RoutingTables
	metrics   *Metrics
	heartbeat *HeartbeatTicker
	router    *UpgradeRouter
}

// Collaborators bundles everything the Coordinator needs from outside the
// package (§6 "Collaborators consumed").
type Collaborators struct {
	AccessTokenVerifier  TokenVerifier
	RefreshTokenVerifier TokenVerifier
	Users                UserLookup
	AgentTokens          AgentTokenVerifier
	Policy               PolicyProvider
	Chat                 ChatBroadcaster
}

// New constructs a Coordinator. cfg is completed with defaults for any
// zero-valued field. reg receives the package's Prometheus collectors.
func New(cfg Config, collab Collaborators, reg prometheus.Registerer, logger *zap.Logger) (*Coordinator, error) {
	cfg = withDefaults(cfg)
	metrics := NewMetrics(reg)
	tables := NewRoutingTables(logger)

	browserAcceptor := NewBrowserAcceptor(cfg, collab.AccessTokenVerifier, collab.RefreshTokenVerifier, collab.Users, tables, collab.Policy, collab.Chat, logger, metrics)
	agentAcceptor := NewAgentAcceptor(cfg, collab.AgentTokens, tables, logger, metrics)
	router := NewUpgradeRouter(cfg, browserAcceptor, agentAcceptor)

	heartbeat, err := NewHeartbeatTicker(cfg, tables, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("relay: failed to build heartbeat ticker: %w", err)
	}

	return &Coordinator{
		cfg:       cfg,
		tables:    tables,
		metrics:   metrics,
		heartbeat: heartbeat,
		router:    router,
	}, nil
}

// Start begins the Heartbeat Ticker. Call once before serving traffic.
func (c *Coordinator) Start() error {
	return c.heartbeat.Start()
}

// Stop shuts the Heartbeat Ticker down. It does not close live connections
// — those drain on their own as peers disconnect.
func (c *Coordinator) Stop() error {
	return c.heartbeat.Stop()
}

// Handler returns the http.Handler to mount on the upgrade port. It
// dispatches to the Browser or Agent Acceptor by path; any other path is
// refused per §4.1.
func (c *Coordinator) Handler() http.Handler {
	return c.router
}

// IsAgentOnline reports whether agentID is currently connected for userID.
// Exposed collaborator surface (§6 "Collaborators exposed").
func (c *Coordinator) IsAgentOnline(userID, agentID string) bool {
	return c.tables.IsAgentOnline(userID, agentID)
}

// PushToUserBrowsers wraps payload in an envelope of type msgType and fans
// it out to every browser registered under userID. Exposed for subsystems
// that do not already have a ChatBroadcaster wired in — most callers should
// prefer the ChatBroadcaster collaborator instead.
func (c *Coordinator) PushToUserBrowsers(userID string, msgType MessageType, payload []byte) {
	c.tables.PushToUserBrowsers(userID, Envelope{Type: msgType, Payload: payload})
}
