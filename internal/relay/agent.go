package relay

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// agentState is the {CONNECTING → AUTH_WAIT → LIVE → CLOSED} state machine
// named in §4.6. Transitions are one-way; there is no recovery from closed.
type agentState int32

const (
	agentStateConnecting agentState = iota
	agentStateAuthWait
	agentStateLive
	agentStateClosed
)

const (
	agentWriteWait     = 10 * time.Second
	agentSendBufferCap = 64
)

// correlationOrigin is the reverse-mapping entry recorded when a Browser
// Session forwards a `request` through this agent: it lets a later
// `response`/`scan:partial` from the agent be routed back to the exact
// browser that issued it, with its original (browser-scoped) correlation id
// restored. See §4.6 "Correlation-id ownership".
type correlationOrigin struct {
	browser    *BrowserSession
	originalID string
}

// AgentSession multiplexes one agent's outbound messages to all of its
// owning user's browsers, and is the conduit browsers forward targeted
// calls through (§4.6).
type AgentSession struct {
	conn   *websocket.Conn
	tables *RoutingTables
	logger *zap.Logger
	metrics *Metrics

	UserID          string
	AgentID         string
	Hostname        string
	OperatingSystem string
	VersionString   string
	ConnectedAt     time.Time

	send chan Envelope

	state atomic.Int32

	lastPongAt atomic.Int64 // unix nanoseconds

	corrMu sync.Mutex
	corr   map[string]correlationOrigin

	closeOnce sync.Once
	record    *AgentRecord
}

// newAgentSession constructs a live AgentSession. Called by the Agent
// Acceptor once agent:auth has verified.
func newAgentSession(conn *websocket.Conn, tables *RoutingTables, logger *zap.Logger, metrics *Metrics, claim agentAuthClaim, userID string) *AgentSession {
	s := &AgentSession{
		conn:            conn,
		tables:          tables,
		logger:          logger.Named("relay.agent").With(zap.String("agent_id", claim.AgentID), zap.String("user_id", userID)),
		metrics:         metrics,
		UserID:          userID,
		AgentID:         claim.AgentID,
		Hostname:        claim.Hostname,
		OperatingSystem: claim.OperatingSystem,
		VersionString:   claim.VersionString,
		ConnectedAt:     time.Now(),
		send:            make(chan Envelope, agentSendBufferCap),
		corr:            make(map[string]correlationOrigin),
	}
	s.state.Store(int32(agentStateLive))
	return s
}

// Run starts the write pump in its own goroutine and then drives the
// agent's read loop. It blocks until the connection closes.
func (s *AgentSession) Run() {
	go s.writePump()
	s.readPump()
}

func (s *AgentSession) readPump() {
	defer s.Close()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.logger.Warn("agent connection closed unexpectedly", zap.Error(err))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.logger.Warn("malformed envelope from agent", zap.Error(err))
			continue
		}

		s.dispatch(env)
	}
}

func (s *AgentSession) writePump() {
	defer s.conn.Close()

	for env := range s.send {
		if err := s.conn.SetWriteDeadline(time.Now().Add(agentWriteWait)); err != nil {
			s.logger.Warn("failed to set write deadline", zap.Error(err))
			return
		}
		if err := s.conn.WriteJSON(env); err != nil {
			s.logger.Warn("write error to agent", zap.Error(err))
			return
		}
	}
	// Channel closed by Close()/closeSuperseded(): send a close frame.
	_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// dispatch handles one inbound envelope per the table in §4.6.
func (s *AgentSession) dispatch(env Envelope) {
	switch env.Type {
	case MsgResponse:
		s.routeCorrelated(env, false)
	case MsgScanPartial:
		s.routeCorrelated(env, true)
	case MsgAgentPong:
		s.lastPongAt.Store(time.Now().UnixNano())
	default:
		if s.metrics != nil {
			s.metrics.messagesRouted.WithLabelValues("agent_fanout", string(env.Type)).Inc()
		}
		s.tables.PushToUserBrowsers(s.UserID, env)
	}
}

// routeCorrelated delivers a response or partial to the exact browser that
// issued the original request, restoring its original correlation id.
func (s *AgentSession) routeCorrelated(env Envelope, partial bool) {
	s.corrMu.Lock()
	origin, ok := s.corr[env.ID]
	if ok && !partial {
		delete(s.corr, env.ID)
	}
	s.corrMu.Unlock()

	if !ok {
		s.logger.Debug("response for unknown correlation id", zap.String("id", env.ID))
		return
	}

	if partial {
		origin.browser.pending.DeliverPartial(origin.originalID, env.Payload)
		return
	}
	origin.browser.pending.Resolve(origin.originalID, env.Payload)
}

// ForwardRequest rewrites env's correlation id to a relay-scoped id unique
// to this agent connection, records the reverse mapping to (browser,
// original id), and enqueues it for delivery. Returns false if the agent's
// outbound buffer is full (the agent is treated as dead and closed).
func (s *AgentSession) ForwardRequest(browser *BrowserSession, env Envelope) bool {
	relayID := uuid.NewString()

	s.corrMu.Lock()
	s.corr[relayID] = correlationOrigin{browser: browser, originalID: env.ID}
	s.corrMu.Unlock()

	env.ID = relayID
	return s.enqueue(env)
}

// ForwardTargeted enqueues a no-response targeted message (terminal:*,
// update:install) verbatim.
func (s *AgentSession) ForwardTargeted(env Envelope) bool {
	return s.enqueue(env)
}

// SendPing enqueues an agent:ping envelope. Used by the Heartbeat Ticker.
func (s *AgentSession) SendPing() bool {
	return s.enqueue(Envelope{Type: MsgAgentPing})
}

// LastSeen returns the time of the last agent:pong observed, or
// ConnectedAt if none has arrived yet.
func (s *AgentSession) LastSeen() time.Time {
	if ns := s.lastPongAt.Load(); ns != 0 {
		return time.Unix(0, ns)
	}
	return s.ConnectedAt
}

func (s *AgentSession) enqueue(env Envelope) bool {
	if agentState(s.state.Load()) == agentStateClosed {
		return false
	}
	select {
	case s.send <- env:
		return true
	default:
		// Outbound buffer full — the agent is too slow or stalled.
		s.logger.Warn("agent send buffer full, closing")
		s.Close()
		return false
	}
}

// Close tears the connection down, unregisters from the Routing Tables (if
// this record is still the live one), and notifies browsers. Idempotent.
func (s *AgentSession) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(agentStateClosed))
		close(s.send)
		if s.record != nil {
			s.tables.UnregisterAgent(s.UserID, s.AgentID, s.record)
		}
	})
}

// closeSuperseded tears the connection down without touching the Routing
// Tables — the caller (RegisterAgent) is already mid-supersession and
// performs its own notification.
func (s *AgentSession) closeSuperseded() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(agentStateClosed))
		close(s.send)
	})
}

// upgradeAgent performs the unauthenticated WebSocket upgrade for an agent
// connection. Split out so the Agent Acceptor can upgrade before the
// auth-timeout timer is armed.
func upgradeAgent(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return agentUpgrader.Upgrade(w, r, nil)
}

var agentUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}
