package relay

import (
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestPendingRegistry() *PendingRegistry {
	return NewPendingRegistry(zap.NewNop(), nil)
}

func TestPendingRegistryResolve(t *testing.T) {
	p := newTestPendingRegistry()

	var gotPayload json.RawMessage
	var gotKind ErrorKind
	done := make(chan struct{})

	err := p.Create("corr-1", "agent-1", time.Minute, func(payload json.RawMessage, kind ErrorKind) {
		gotPayload = payload
		gotKind = kind
		close(done)
	}, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	p.Resolve("corr-1", json.RawMessage(`{"ok":true}`))
	<-done

	if gotKind != "" {
		t.Errorf("expected no error kind, got %q", gotKind)
	}
	if string(gotPayload) != `{"ok":true}` {
		t.Errorf("unexpected payload: %s", gotPayload)
	}
}

func TestPendingRegistryDuplicateCorrelationID(t *testing.T) {
	p := newTestPendingRegistry()

	if err := p.Create("dup", "agent-1", time.Minute, func(json.RawMessage, ErrorKind) {}, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := p.Create("dup", "agent-1", time.Minute, func(json.RawMessage, ErrorKind) {}, nil); err != ErrDuplicateCorrelationID {
		t.Errorf("expected ErrDuplicateCorrelationID, got %v", err)
	}
}

func TestPendingRegistryResolveUnknownIsNoop(t *testing.T) {
	p := newTestPendingRegistry()
	// Must not panic or block.
	p.Resolve("never-created", json.RawMessage(`{}`))
	p.ResolveError("never-created", ErrKindTimeout)
}

func TestPendingRegistryTimeout(t *testing.T) {
	p := newTestPendingRegistry()

	var gotKind ErrorKind
	done := make(chan struct{})

	err := p.Create("corr-timeout", "agent-1", 10*time.Millisecond, func(payload json.RawMessage, kind ErrorKind) {
		gotKind = kind
		close(done)
	}, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout resolver never fired")
	}

	if gotKind != ErrKindTimeout {
		t.Errorf("expected ErrKindTimeout, got %q", gotKind)
	}
}

func TestPendingRegistryDeliverPartial(t *testing.T) {
	p := newTestPendingRegistry()

	var partials []string
	err := p.Create("corr-stream", "agent-1", time.Minute,
		func(json.RawMessage, ErrorKind) {},
		func(payload json.RawMessage) { partials = append(partials, string(payload)) },
	)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	p.DeliverPartial("corr-stream", json.RawMessage(`"chunk1"`))
	p.DeliverPartial("corr-stream", json.RawMessage(`"chunk2"`))
	// Partials never resolve the entry.
	p.DeliverPartial("corr-stream", json.RawMessage(`"chunk3"`))

	if len(partials) != 3 {
		t.Fatalf("expected 3 partials, got %d: %v", len(partials), partials)
	}

	// The entry is still outstanding and resolvable.
	p.mu.Lock()
	_, ok := p.entries["corr-stream"]
	p.mu.Unlock()
	if !ok {
		t.Fatal("expected entry still present after partials")
	}
}

func TestPendingRegistryCancelAll(t *testing.T) {
	p := newTestPendingRegistry()

	var kinds []ErrorKind
	for _, id := range []string{"a", "b", "c"} {
		id := id
		err := p.Create(id, "agent-1", time.Minute, func(_ json.RawMessage, kind ErrorKind) {
			kinds = append(kinds, kind)
		}, nil)
		if err != nil {
			t.Fatalf("Create(%s): %v", id, err)
		}
	}

	p.CancelAll(ErrKindBrowserDisconnected)

	if len(kinds) != 3 {
		t.Fatalf("expected 3 cancellations, got %d", len(kinds))
	}
	for _, k := range kinds {
		if k != ErrKindBrowserDisconnected {
			t.Errorf("expected ErrKindBrowserDisconnected, got %q", k)
		}
	}

	// A second CancelAll on an empty registry must not panic.
	p.CancelAll(ErrKindBrowserDisconnected)
}

func TestPendingRegistryCancelByAgent(t *testing.T) {
	p := newTestPendingRegistry()

	var resolvedForAgent1, resolvedForAgent2 int
	mustCreate := func(id, agentID string, counter *int) {
		err := p.Create(id, agentID, time.Minute, func(_ json.RawMessage, kind ErrorKind) {
			if kind == ErrKindAgentOffline {
				*counter++
			}
		}, nil)
		if err != nil {
			t.Fatalf("Create(%s): %v", id, err)
		}
	}

	mustCreate("r1", "agent-1", &resolvedForAgent1)
	mustCreate("r2", "agent-1", &resolvedForAgent1)
	mustCreate("r3", "agent-2", &resolvedForAgent2)

	p.CancelByAgent("agent-1", ErrKindAgentOffline)

	if resolvedForAgent1 != 2 {
		t.Errorf("expected 2 requests cancelled for agent-1, got %d", resolvedForAgent1)
	}
	if resolvedForAgent2 != 0 {
		t.Errorf("expected agent-2's request untouched, got %d cancellations", resolvedForAgent2)
	}

	// agent-2's request is still outstanding.
	p.mu.Lock()
	_, ok := p.entries["r3"]
	p.mu.Unlock()
	if !ok {
		t.Error("expected r3 to remain outstanding")
	}
}
