package relay

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestHeartbeatTicker(t *testing.T, cfg Config, tables *RoutingTables) *HeartbeatTicker {
	t.Helper()
	ticker, err := NewHeartbeatTicker(cfg, tables, zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("NewHeartbeatTicker: %v", err)
	}
	return ticker
}

// With HeartbeatMaxMissedTicks=2, a silent agent must close on the 2nd
// missed tick (spec.md Scenario 5: 60s total detection with 30s ticks),
// not the 3rd.
func TestHeartbeatTickerClosesOnSecondMissedTick(t *testing.T) {
	period := 200 * time.Millisecond
	cfg := Config{HeartbeatPeriod: period, HeartbeatMaxMissedTicks: 2}
	cutoff := time.Duration(cfg.HeartbeatMaxMissedTicks-1) * period // one missed-tick's worth

	tables := NewRoutingTables(zap.NewNop())
	agent := newTestAgentSession(tables, "user-1", "agent-1")
	record := &AgentRecord{AgentID: "agent-1", OwningUserID: "user-1", session: agent}
	agent.record = record
	tables.RegisterAgent("user-1", record)

	ticker := newTestHeartbeatTicker(t, cfg, tables)

	// Just inside the cutoff (equivalent to the 1st tick): must survive.
	agent.ConnectedAt = time.Now().Add(-(cutoff - 50*time.Millisecond))
	ticker.tick()
	if agentState(agent.state.Load()) == agentStateClosed {
		t.Fatal("agent closed before its 2nd missed tick")
	}

	// Just past the cutoff (equivalent to the 2nd tick): must close.
	agent.ConnectedAt = time.Now().Add(-(cutoff + 50*time.Millisecond))
	ticker.tick()
	if agentState(agent.state.Load()) != agentStateClosed {
		t.Fatal("expected agent to be closed on its 2nd missed tick")
	}
}

func TestHeartbeatTickerSendsPingToLiveAgent(t *testing.T) {
	cfg := Config{HeartbeatPeriod: time.Second, HeartbeatMaxMissedTicks: 2}

	tables := NewRoutingTables(zap.NewNop())
	agent := newTestAgentSession(tables, "user-1", "agent-1")
	record := &AgentRecord{AgentID: "agent-1", OwningUserID: "user-1", session: agent}
	agent.record = record
	tables.RegisterAgent("user-1", record)

	ticker := newTestHeartbeatTicker(t, cfg, tables)
	ticker.tick()

	envs := drain(t, agent.send)
	if len(envs) != 1 || envs[0].Type != MsgAgentPing {
		t.Fatalf("expected a single agent:ping envelope, got %v", envs)
	}
	if agentState(agent.state.Load()) == agentStateClosed {
		t.Error("a live, responsive agent must not be closed")
	}
}
