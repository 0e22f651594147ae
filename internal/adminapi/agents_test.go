package adminapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/arkeep-io/relaycoord/internal/db"
)

type fakeAgentLiveness struct {
	online map[string]bool
}

func (f *fakeAgentLiveness) IsAgentOnline(userID, agentID string) bool {
	return f.online[userID+"/"+agentID]
}

type fakeAgentTokenLister struct {
	byUser map[uuid.UUID][]db.AgentToken
	err    error
}

func (f *fakeAgentTokenLister) ListForUser(ctx context.Context, userID uuid.UUID) ([]db.AgentToken, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byUser[userID], nil
}

func TestAgentsHandlerList(t *testing.T) {
	userID := uuid.New()
	lastUsed := time.Now()
	tokenID := uuid.New()

	token := db.AgentToken{UserID: userID, Label: "laptop", LastUsedAt: &lastUsed}
	token.ID = tokenID
	lister := &fakeAgentTokenLister{byUser: map[uuid.UUID][]db.AgentToken{
		userID: {token},
	}}
	h := NewAgentsHandler(&fakeAgentLiveness{}, lister)

	req := newChiRequest(http.MethodGet, "/internal/agents/"+userID.String(), "", map[string]string{"userID": userID.String()})
	rec := httptest.NewRecorder()

	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Body.String(); !strings.Contains(got, tokenID.String()) || !strings.Contains(got, "laptop") {
		t.Errorf("expected response to contain the token id and label, got %s", got)
	}
}

func TestAgentsHandlerListInvalidUserID(t *testing.T) {
	h := NewAgentsHandler(&fakeAgentLiveness{}, &fakeAgentTokenLister{})

	req := newChiRequest(http.MethodGet, "/internal/agents/not-a-uuid", "", map[string]string{"userID": "not-a-uuid"})
	rec := httptest.NewRecorder()

	h.List(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAgentsHandlerStatusOnline(t *testing.T) {
	relay := &fakeAgentLiveness{online: map[string]bool{"user-1/agent-1": true}}
	h := NewAgentsHandler(relay, &fakeAgentTokenLister{})

	req := newChiRequest(http.MethodGet, "/internal/agents/user-1/agent-1", "", map[string]string{"userID": "user-1", "agentID": "agent-1"})
	rec := httptest.NewRecorder()

	h.Status(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Body.String(); !strings.Contains(got, `"online":true`) {
		t.Errorf("expected online:true, got %s", got)
	}
}

func TestAgentsHandlerStatusOffline(t *testing.T) {
	h := NewAgentsHandler(&fakeAgentLiveness{}, &fakeAgentTokenLister{})

	req := newChiRequest(http.MethodGet, "/internal/agents/user-1/agent-1", "", map[string]string{"userID": "user-1", "agentID": "agent-1"})
	rec := httptest.NewRecorder()

	h.Status(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Body.String(); !strings.Contains(got, `"online":false`) {
		t.Errorf("expected online:false, got %s", got)
	}
}

func TestAgentsHandlerStatusMissingParams(t *testing.T) {
	h := NewAgentsHandler(&fakeAgentLiveness{}, &fakeAgentTokenLister{})

	req := newChiRequest(http.MethodGet, "/internal/agents//", "", map[string]string{})
	rec := httptest.NewRecorder()

	h.Status(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
