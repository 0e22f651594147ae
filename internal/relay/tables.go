package relay

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// AgentRecord is the Routing Tables' view of one connected agent. The
// agent_id is immutable for the record's lifetime; a reconnect under the
// same agent_id replaces the record wholesale rather than mutating it.
type AgentRecord struct {
	AgentID         string
	OwningUserID    string
	Hostname        string
	OperatingSystem string
	VersionString   string
	ConnectedAt     time.Time

	session *AgentSession
}

// userEntry is the per-user slice of the Routing Tables: the set of live
// browsers and the agent_id → record map for one tenant. Every write to a
// userEntry is serialised through mu, matching §4.4's "writers are
// serialised per-user, readers take a consistent snapshot" rule.
type userEntry struct {
	mu       sync.RWMutex
	browsers map[*BrowserSession]struct{}
	agents   map[string]*AgentRecord
}

// RoutingTables is the process-wide, multi-tenant source of truth for "who
// can talk to whom" (§4.4). The zero value is not usable — construct with
// NewRoutingTables.
type RoutingTables struct {
	mu     sync.RWMutex
	users  map[string]*userEntry
	logger *zap.Logger
}

// NewRoutingTables creates an empty RoutingTables.
func NewRoutingTables(logger *zap.Logger) *RoutingTables {
	return &RoutingTables{
		users:  make(map[string]*userEntry),
		logger: logger.Named("relay.tables"),
	}
}

// entry returns the userEntry for userID, creating it if absent.
func (t *RoutingTables) entry(userID string) *userEntry {
	t.mu.RLock()
	e, ok := t.users[userID]
	t.mu.RUnlock()
	if ok {
		return e
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.users[userID]; ok {
		return e
	}
	e = &userEntry{
		browsers: make(map[*BrowserSession]struct{}),
		agents:   make(map[string]*AgentRecord),
	}
	t.users[userID] = e
	return e
}

// gc removes userID's entry from the table if it has no live browsers or
// agents left. Called after every unregister.
func (t *RoutingTables) gc(userID string, e *userEntry) {
	e.mu.RLock()
	empty := len(e.browsers) == 0 && len(e.agents) == 0
	e.mu.RUnlock()
	if !empty {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.users[userID]; ok && cur == e {
		cur.mu.RLock()
		stillEmpty := len(cur.browsers) == 0 && len(cur.agents) == 0
		cur.mu.RUnlock()
		if stillEmpty {
			delete(t.users, userID)
		}
	}
}

// RegisterBrowser adds browser to userID's browser set.
func (t *RoutingTables) RegisterBrowser(userID string, browser *BrowserSession) {
	e := t.entry(userID)
	e.mu.Lock()
	e.browsers[browser] = struct{}{}
	e.mu.Unlock()
}

// UnregisterBrowser removes browser from userID's browser set.
func (t *RoutingTables) UnregisterBrowser(userID string, browser *BrowserSession) {
	e := t.entry(userID)
	e.mu.Lock()
	delete(e.browsers, browser)
	e.mu.Unlock()
	t.gc(userID, e)
}

// RegisterAgent installs record as the live agent for (userID, agentID). If
// a prior record exists for the same pair it is evicted first: its
// connection is closed and the user's browsers are notified with
// agent:offline carrying the old record's identity, before agent:online is
// sent for the new record (§4.4 supersession protocol).
func (t *RoutingTables) RegisterAgent(userID string, record *AgentRecord) {
	e := t.entry(userID)

	e.mu.Lock()
	old, existed := e.agents[record.AgentID]
	e.agents[record.AgentID] = record
	e.mu.Unlock()

	if existed {
		t.logger.Info("agent superseded",
			zap.String("user_id", userID),
			zap.String("agent_id", record.AgentID),
		)
		old.session.closeSuperseded()
		t.notifyBrowsers(userID, MsgAgentOffline, old)
		t.cancelPendingForAgent(userID, old.AgentID, ErrKindAgentOffline)
	}

	t.notifyBrowsers(userID, MsgAgentOnline, record)
}

// UnregisterAgent removes the agent record for (userID, agentID), if it is
// still the currently-registered one, and notifies browsers with
// agent:offline. A no-op if the record was already superseded or removed.
func (t *RoutingTables) UnregisterAgent(userID, agentID string, record *AgentRecord) {
	e := t.entry(userID)

	e.mu.Lock()
	cur, ok := e.agents[agentID]
	removed := ok && cur == record
	if removed {
		delete(e.agents, agentID)
	}
	e.mu.Unlock()

	if !removed {
		// Already superseded by a newer connection — that registration
		// already emitted its own offline/online pair for this id.
		return
	}

	t.notifyBrowsers(userID, MsgAgentOffline, record)
	t.cancelPendingForAgent(userID, agentID, ErrKindAgentOffline)
	t.gc(userID, e)
}

// BrowsersOf returns a snapshot of userID's currently-registered browsers.
// Safe to range over without holding any lock.
func (t *RoutingTables) BrowsersOf(userID string) []*BrowserSession {
	e := t.entry(userID)
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*BrowserSession, 0, len(e.browsers))
	for b := range e.browsers {
		out = append(out, b)
	}
	return out
}

// AgentOf looks up the live agent record for (userID, agentID). The second
// return is false if absent or offline.
func (t *RoutingTables) AgentOf(userID, agentID string) (*AgentRecord, bool) {
	e := t.entry(userID)
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.agents[agentID]
	return rec, ok
}

// AllAgents returns a snapshot of every currently-registered agent across
// all users, for the Heartbeat Ticker to walk.
func (t *RoutingTables) AllAgents() []*AgentRecord {
	t.mu.RLock()
	entries := make([]*userEntry, 0, len(t.users))
	for _, e := range t.users {
		entries = append(entries, e)
	}
	t.mu.RUnlock()

	var out []*AgentRecord
	for _, e := range entries {
		e.mu.RLock()
		for _, rec := range e.agents {
			out = append(out, rec)
		}
		e.mu.RUnlock()
	}
	return out
}

// IsAgentOnline reports whether (userID, agentID) currently has a live
// record. Exposed collaborator surface for external subsystems.
func (t *RoutingTables) IsAgentOnline(userID, agentID string) bool {
	_, ok := t.AgentOf(userID, agentID)
	return ok
}

// PushToUserBrowsers fans env out to every browser currently registered
// under userID. Exposed collaborator surface used by the chat and policy
// subsystems. Best-effort per browser; a slow/dead browser is disconnected
// rather than allowed to stall the others (§9 "no rollback on partial
// fan-out failure").
func (t *RoutingTables) PushToUserBrowsers(userID string, env Envelope) {
	for _, b := range t.BrowsersOf(userID) {
		b.deliver(env)
	}
}

// notifyBrowsers fans an agent:online/agent:offline event, built from rec,
// out to every browser of userID.
func (t *RoutingTables) notifyBrowsers(userID string, msgType MessageType, rec *AgentRecord) {
	payload := mustMarshal(agentStatusPayload{
		AgentID:         rec.AgentID,
		Hostname:        rec.Hostname,
		OperatingSystem: rec.OperatingSystem,
		VersionString:   rec.VersionString,
	})
	t.PushToUserBrowsers(userID, Envelope{Type: msgType, Payload: payload})
}

// cancelPendingForAgent rejects every pending request targeting agentID on
// every browser of userID, fulfilling §4.6's close-handler contract that
// requests targeting a now-offline agent resolve as AgentOffline.
func (t *RoutingTables) cancelPendingForAgent(userID, agentID string, kind ErrorKind) {
	for _, b := range t.BrowsersOf(userID) {
		b.pending.CancelByAgent(agentID, kind)
	}
}
