package adminapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/arkeep-io/relaycoord/internal/db"
)

// AgentLiveness is the subset of internal/relay.Coordinator this handler
// depends on — just enough to answer "is this agent online right now".
type AgentLiveness interface {
	IsAgentOnline(userID, agentID string) bool
}

// AgentTokenLister is the subset of internal/repository.AgentTokenRepository
// this handler depends on.
type AgentTokenLister interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]db.AgentToken, error)
}

// AgentsHandler exposes read-only visibility into a user's agents: which
// bearer tokens have been provisioned, and whether any of them is live on
// this instance right now.
type AgentsHandler struct {
	relay  AgentLiveness
	tokens AgentTokenLister
}

// NewAgentsHandler constructs an AgentsHandler.
func NewAgentsHandler(relay AgentLiveness, tokens AgentTokenLister) *AgentsHandler {
	return &AgentsHandler{relay: relay, tokens: tokens}
}

type agentTokenView struct {
	ID       string  `json:"id"`
	Label    string  `json:"label"`
	LastUsed *string `json:"lastUsedAt,omitempty"`
	Revoked  bool    `json:"revoked"`
}

// List handles GET /internal/agents/{userID} — every provisioned token for
// the user, with revocation state.
func (h *AgentsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	uid, err := uuid.Parse(userID)
	if err != nil {
		ErrBadRequest(w, "invalid userID")
		return
	}

	tokens, err := h.tokens.ListForUser(r.Context(), uid)
	if err != nil {
		ErrInternal(w)
		return
	}

	views := make([]agentTokenView, 0, len(tokens))
	for _, t := range tokens {
		var lastUsed *string
		if t.LastUsedAt != nil {
			s := t.LastUsedAt.Format(http.TimeFormat)
			lastUsed = &s
		}
		views = append(views, agentTokenView{
			ID:       t.ID.String(),
			Label:    t.Label,
			LastUsed: lastUsed,
			Revoked:  t.RevokedAt != nil,
		})
	}

	Ok(w, views)
}

// Status handles GET /internal/agents/{userID}/{agentID} — whether agentID
// currently has a live connection for userID. agentID here is the relay's
// connection-time identity (AgentSession.AgentID), not a token row id.
func (h *AgentsHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	agentID := chi.URLParam(r, "agentID")
	if userID == "" || agentID == "" {
		ErrBadRequest(w, "missing userID or agentID")
		return
	}

	online := h.relay.IsAgentOnline(userID, agentID)
	Ok(w, map[string]bool{"online": online})
}
