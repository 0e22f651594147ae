package relay

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// AgentAcceptor accepts the WebSocket upgrade unconditionally, then
// authenticates via the first application-level message (§4.3).
type AgentAcceptor struct {
	cfg     Config
	verify  AgentTokenVerifier
	tables  *RoutingTables
	logger  *zap.Logger
	metrics *Metrics
}

// NewAgentAcceptor constructs an AgentAcceptor.
func NewAgentAcceptor(cfg Config, verify AgentTokenVerifier, tables *RoutingTables, logger *zap.Logger, metrics *Metrics) *AgentAcceptor {
	return &AgentAcceptor{
		cfg:     cfg,
		verify:  verify,
		tables:  tables,
		logger:  logger.Named("relay.agent_accept"),
		metrics: metrics,
	}
}

// ServeHTTP upgrades unconditionally, then waits up to AgentAuthTimeout for
// an agent:auth message. A timeout or rejected token closes the connection
// without registering anything; success registers the agent and starts its
// session.
func (a *AgentAcceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgradeAgent(w, r)
	if err != nil {
		a.logger.Debug("agent upgrade failed", zap.Error(err))
		return
	}

	claim, err := a.awaitAuth(conn)
	if err != nil {
		if err == ErrAuthTimeout {
			a.logger.Debug("agent auth timeout")
		}
		conn.Close()
		return
	}

	userID, err := a.verify.Verify(r.Context(), claim.Token)
	if err != nil {
		a.logger.Debug("agent token rejected", zap.Error(err))
		_ = conn.WriteJSON(Envelope{Type: MsgAgentAuthRejected})
		conn.Close()
		return
	}

	if a.metrics != nil {
		a.metrics.connectedAgents.Inc()
	}

	session := newAgentSession(conn, a.tables, a.logger, a.metrics, claim, userID)
	record := &AgentRecord{
		AgentID:         claim.AgentID,
		OwningUserID:    userID,
		Hostname:        claim.Hostname,
		OperatingSystem: claim.OperatingSystem,
		VersionString:   claim.VersionString,
		ConnectedAt:     session.ConnectedAt,
		session:         session,
	}
	session.record = record

	a.tables.RegisterAgent(userID, record)

	go func() {
		session.Run()
		if a.metrics != nil {
			a.metrics.connectedAgents.Dec()
		}
	}()
}

// awaitAuth reads exactly one message with a deadline and parses it as
// agent:auth. Any other message type is treated as a protocol violation and
// rejected the same as a timeout.
func (a *AgentAcceptor) awaitAuth(conn interface {
	SetReadDeadline(time.Time) error
	ReadMessage() (int, []byte, error)
}) (agentAuthClaim, error) {
	if err := conn.SetReadDeadline(time.Now().Add(a.cfg.AgentAuthTimeout)); err != nil {
		return agentAuthClaim{}, err
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		return agentAuthClaim{}, ErrAuthTimeout
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type != MsgAgentAuth {
		return agentAuthClaim{}, ErrAuthRejected
	}

	var claim agentAuthClaim
	if err := json.Unmarshal(env.Payload, &claim); err != nil {
		return agentAuthClaim{}, ErrAuthRejected
	}

	return claim, nil
}
