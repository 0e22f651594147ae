package relay

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func newTestBrowserSession(tables *RoutingTables, userID string) *BrowserSession {
	return &BrowserSession{
		tables:  tables,
		logger:  zap.NewNop(),
		UserID:  userID,
		send:    make(chan Envelope, 16),
		pending: NewPendingRegistry(zap.NewNop(), nil),
	}
}

func newTestAgentSession(tables *RoutingTables, userID, agentID string) *AgentSession {
	s := &AgentSession{
		tables:      tables,
		logger:      zap.NewNop(),
		UserID:      userID,
		AgentID:     agentID,
		ConnectedAt: time.Now(),
		send:        make(chan Envelope, 16),
		corr:        make(map[string]correlationOrigin),
	}
	s.state.Store(int32(agentStateLive))
	return s
}

func drain(t *testing.T, ch chan Envelope) []Envelope {
	t.Helper()
	var out []Envelope
	for {
		select {
		case env := <-ch:
			out = append(out, env)
		default:
			return out
		}
	}
}

func TestRoutingTablesBrowserLifecycle(t *testing.T) {
	tables := NewRoutingTables(zap.NewNop())
	b := newTestBrowserSession(tables, "user-1")

	tables.RegisterBrowser("user-1", b)
	if got := tables.BrowsersOf("user-1"); len(got) != 1 || got[0] != b {
		t.Fatalf("expected exactly b registered, got %v", got)
	}

	tables.UnregisterBrowser("user-1", b)
	if got := tables.BrowsersOf("user-1"); len(got) != 0 {
		t.Fatalf("expected no browsers after unregister, got %v", got)
	}
}

func TestRoutingTablesAgentSupersession(t *testing.T) {
	tables := NewRoutingTables(zap.NewNop())
	b := newTestBrowserSession(tables, "user-1")
	tables.RegisterBrowser("user-1", b)

	oldAgent := newTestAgentSession(tables, "user-1", "agent-1")
	oldRecord := &AgentRecord{AgentID: "agent-1", OwningUserID: "user-1", session: oldAgent}
	oldAgent.record = oldRecord
	tables.RegisterAgent("user-1", oldRecord)

	events := drain(t, b.send)
	if len(events) != 1 || events[0].Type != MsgAgentOnline {
		t.Fatalf("expected one agent:online after first registration, got %v", events)
	}

	newAgent := newTestAgentSession(tables, "user-1", "agent-1")
	newRecord := &AgentRecord{AgentID: "agent-1", OwningUserID: "user-1", session: newAgent}
	newAgent.record = newRecord
	tables.RegisterAgent("user-1", newRecord)

	events = drain(t, b.send)
	if len(events) != 2 {
		t.Fatalf("expected offline+online pair on supersession, got %d: %v", len(events), events)
	}
	if events[0].Type != MsgAgentOffline {
		t.Errorf("expected first event to be agent:offline, got %s", events[0].Type)
	}
	if events[1].Type != MsgAgentOnline {
		t.Errorf("expected second event to be agent:online, got %s", events[1].Type)
	}

	// The new record is the one now live; the old agent's session must have
	// been closed without touching the table a second time.
	rec, ok := tables.AgentOf("user-1", "agent-1")
	if !ok || rec != newRecord {
		t.Fatalf("expected newRecord to be the live record, got %v, ok=%v", rec, ok)
	}

	// A superseded agent's own Close/UnregisterAgent call must be a no-op —
	// it no longer owns the table entry.
	tables.UnregisterAgent("user-1", "agent-1", oldRecord)
	rec, ok = tables.AgentOf("user-1", "agent-1")
	if !ok || rec != newRecord {
		t.Fatalf("stale UnregisterAgent must not evict the current record, got %v, ok=%v", rec, ok)
	}
}

func TestRoutingTablesUnregisterAgentNotifiesOffline(t *testing.T) {
	tables := NewRoutingTables(zap.NewNop())
	b := newTestBrowserSession(tables, "user-1")
	tables.RegisterBrowser("user-1", b)

	agent := newTestAgentSession(tables, "user-1", "agent-1")
	record := &AgentRecord{AgentID: "agent-1", OwningUserID: "user-1", session: agent}
	agent.record = record
	tables.RegisterAgent("user-1", record)
	drain(t, b.send) // discard agent:online

	tables.UnregisterAgent("user-1", "agent-1", record)

	events := drain(t, b.send)
	if len(events) != 1 || events[0].Type != MsgAgentOffline {
		t.Fatalf("expected a single agent:offline, got %v", events)
	}

	if tables.IsAgentOnline("user-1", "agent-1") {
		t.Error("expected agent to be offline")
	}
}

func TestRoutingTablesPushToUserBrowsersFansOutToAll(t *testing.T) {
	tables := NewRoutingTables(zap.NewNop())
	b1 := newTestBrowserSession(tables, "user-1")
	b2 := newTestBrowserSession(tables, "user-1")
	tables.RegisterBrowser("user-1", b1)
	tables.RegisterBrowser("user-1", b2)

	tables.PushToUserBrowsers("user-1", Envelope{Type: MsgChatMessage})

	if len(drain(t, b1.send)) != 1 {
		t.Error("expected b1 to receive the chat message")
	}
	if len(drain(t, b2.send)) != 1 {
		t.Error("expected b2 to receive the chat message")
	}
}

func TestRoutingTablesGCRemovesEmptyUserEntry(t *testing.T) {
	tables := NewRoutingTables(zap.NewNop())
	b := newTestBrowserSession(tables, "user-1")
	tables.RegisterBrowser("user-1", b)
	tables.UnregisterBrowser("user-1", b)

	tables.mu.RLock()
	_, exists := tables.users["user-1"]
	tables.mu.RUnlock()
	if exists {
		t.Error("expected user-1's entry to be garbage collected once empty")
	}
}
