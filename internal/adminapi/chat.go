package adminapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ChatPublisher is the subset of chatbus.Broadcaster this handler depends
// on — just enough to inject a payload for a user's connected browsers.
type ChatPublisher interface {
	Publish(userID string, payload []byte)
}

// ChatHandler exposes an operator-facing endpoint for injecting a
// chat:message into every browser a user currently has open. It exists so
// an external chat or support-ticket system can hand a message to the
// relay without needing its own WebSocket fan-out.
type ChatHandler struct {
	chat   ChatPublisher
	logger *zap.Logger
}

// NewChatHandler constructs a ChatHandler.
func NewChatHandler(chat ChatPublisher, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, logger: logger.Named("adminapi.chat")}
}

type publishChatRequest struct {
	Payload map[string]any `json:"payload"`
}

// Publish handles POST /internal/chat/{userID}. The request body's payload
// object is re-encoded as JSON and published as the body of a chat:message
// envelope.
func (h *ChatHandler) Publish(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		ErrBadRequest(w, "missing userID")
		return
	}

	var req publishChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	raw, err := json.Marshal(req.Payload)
	if err != nil {
		ErrBadRequest(w, "invalid payload: "+err.Error())
		return
	}

	h.chat.Publish(userID, raw)
	h.logger.Info("published chat message", zap.String("user_id", userID))
	NoContent(w)
}
