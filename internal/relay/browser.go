package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	browserWriteWait     = 10 * time.Second
	browserSendBufferCap = 64
)

// BrowserSession dispatches inbound messages from one browser, owns its
// Pending Request Registry, and is the fan-out target the Routing Tables and
// collaborators write into (§4.5).
type BrowserSession struct {
	conn    *websocket.Conn
	tables  *RoutingTables
	policy  PolicyProvider
	cfg     Config
	logger  *zap.Logger
	metrics *Metrics

	UserID string

	send    chan Envelope
	pending *PendingRegistry

	unsubscribeChat func()

	closeOnce sync.Once
}

// newBrowserSession constructs a BrowserSession. Called by the Browser
// Acceptor once authentication succeeds.
func newBrowserSession(conn *websocket.Conn, userID string, tables *RoutingTables, policy PolicyProvider, chat ChatBroadcaster, cfg Config, logger *zap.Logger, metrics *Metrics) *BrowserSession {
	s := &BrowserSession{
		conn:    conn,
		tables:  tables,
		policy:  policy,
		cfg:     cfg,
		logger:  logger.Named("relay.browser").With(zap.String("user_id", userID)),
		metrics: metrics,
		UserID:  userID,
		send:    make(chan Envelope, browserSendBufferCap),
		pending: NewPendingRegistry(logger, metrics),
	}
	if chat != nil {
		s.unsubscribeChat = chat.Subscribe(userID, func(payload []byte) {
			s.deliver(Envelope{Type: MsgChatMessage, Payload: json.RawMessage(payload)})
		})
	}
	return s
}

// Run registers the session, sends the init sequence, and drives the read
// loop until the connection closes.
func (s *BrowserSession) Run(ctx context.Context) {
	s.tables.RegisterBrowser(s.UserID, s)
	go s.writePump()

	s.sendTierInfo(ctx)
	s.sendAgentsList()

	s.readPump()
}

func (s *BrowserSession) sendTierInfo(ctx context.Context) {
	if s.policy == nil {
		return
	}
	info, err := s.policy.TierInfoFor(ctx, s.UserID)
	if err != nil {
		s.logger.Warn("failed to fetch tier info", zap.Error(err))
		return
	}
	s.deliver(Envelope{Type: MsgTierInfo, Payload: mustMarshal(info)})
}

func (s *BrowserSession) sendAgentsList() {
	type agentSummary struct {
		AgentID         string `json:"agentId"`
		Hostname        string `json:"hostname"`
		OperatingSystem string `json:"operatingSystem"`
		VersionString   string `json:"versionString"`
	}
	var list []agentSummary
	for _, rec := range s.tables.AllAgents() {
		if rec.OwningUserID != s.UserID {
			continue
		}
		list = append(list, agentSummary{
			AgentID:         rec.AgentID,
			Hostname:        rec.Hostname,
			OperatingSystem: rec.OperatingSystem,
			VersionString:   rec.VersionString,
		})
	}
	s.deliver(Envelope{Type: MsgAgentsList, Payload: mustMarshal(list)})
}

func (s *BrowserSession) readPump() {
	defer s.Close()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.logger.Debug("browser connection closed unexpectedly", zap.Error(err))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.logger.Debug("malformed envelope from browser", zap.Error(err))
			continue
		}

		s.dispatch(env)
	}
}

func (s *BrowserSession) writePump() {
	defer s.conn.Close()

	for env := range s.send {
		if err := s.conn.SetWriteDeadline(time.Now().Add(browserWriteWait)); err != nil {
			s.logger.Warn("failed to set write deadline", zap.Error(err))
			return
		}
		if err := s.conn.WriteJSON(env); err != nil {
			s.logger.Debug("write error to browser", zap.Error(err))
			return
		}
	}
	_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// dispatch handles one inbound envelope per the table in §4.5.
func (s *BrowserSession) dispatch(env Envelope) {
	switch {
	case env.Type == MsgPing:
		s.deliver(Envelope{Type: MsgPong})

	case env.Type == MsgRequest:
		s.dispatchRequest(env)

	case targetedMessageTypes[env.Type]:
		s.dispatchTargeted(env)

	default:
		s.logger.Debug("dropping unrecognised browser message", zap.String("type", string(env.Type)))
	}
}

// dispatchTargeted forwards terminal:* and update:install to the named
// agent, dropping silently if it is offline.
func (s *BrowserSession) dispatchTargeted(env Envelope) {
	rec, ok := s.tables.AgentOf(s.UserID, env.AgentID)
	if !ok {
		return
	}
	if s.metrics != nil {
		s.metrics.messagesRouted.WithLabelValues("targeted", string(env.Type)).Inc()
	}
	rec.session.ForwardTargeted(env)
}

// dispatchRequest registers a correlated request and forwards it, or
// synthesises an error response immediately if the target is offline.
func (s *BrowserSession) dispatchRequest(env Envelope) {
	rec, ok := s.tables.AgentOf(s.UserID, env.AgentID)
	if !ok {
		s.deliver(newErrorResponse(env.ID, http.StatusServiceUnavailable, "agent offline"))
		return
	}

	originalID := env.ID
	err := s.pending.Create(originalID, env.AgentID, s.cfg.RequestTimeout,
		func(payload json.RawMessage, kind ErrorKind) {
			if kind == ErrKindBrowserDisconnected {
				// The browser that owns this pending entry is the one being
				// torn down — there is no peer left to deliver to, and this
				// error must never be observable on the wire (§4.5).
				return
			}
			if kind != "" {
				s.deliver(newErrorResponse(originalID, statusForErrorKind(kind), string(kind)))
				return
			}
			s.deliver(Envelope{Type: MsgResponse, ID: originalID, Payload: payload})
		},
		func(payload json.RawMessage) {
			s.deliver(Envelope{Type: MsgScanPartial, ID: originalID, Payload: payload})
		},
	)
	if err != nil {
		s.logger.Debug("duplicate correlation id from browser", zap.String("id", originalID))
		return
	}

	if s.metrics != nil {
		s.metrics.messagesRouted.WithLabelValues("request", string(env.Type)).Inc()
	}
	if !rec.session.ForwardRequest(s, env) {
		s.pending.ResolveError(originalID, ErrKindAgentOffline)
	}
}

func statusForErrorKind(kind ErrorKind) int {
	switch kind {
	case ErrKindTimeout:
		return http.StatusGatewayTimeout
	case ErrKindAgentOffline:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// deliver enqueues env for delivery to this browser. A full outbound buffer
// is treated as a dead peer.
func (s *BrowserSession) deliver(env Envelope) {
	select {
	case s.send <- env:
	default:
		s.logger.Warn("browser send buffer full, closing")
		s.Close()
	}
}

// Close tears the connection down, cancels every outstanding pending
// request with BrowserDisconnected, unsubscribes from chat, and
// unregisters from the Routing Tables. Idempotent.
func (s *BrowserSession) Close() {
	s.closeOnce.Do(func() {
		s.pending.CancelAll(ErrKindBrowserDisconnected)
		if s.unsubscribeChat != nil {
			s.unsubscribeChat()
		}
		s.tables.UnregisterBrowser(s.UserID, s)
		close(s.send)
	})
}

var browserUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}
