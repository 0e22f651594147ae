package adminapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type fakeChatPublisher struct {
	userID  string
	payload []byte
	calls   int
}

func (f *fakeChatPublisher) Publish(userID string, payload []byte) {
	f.userID = userID
	f.payload = payload
	f.calls++
}

func newChiRequest(method, target string, body string, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(newChiContext(req, rctx))
}

func TestChatHandlerPublish(t *testing.T) {
	pub := &fakeChatPublisher{}
	h := NewChatHandler(pub, zap.NewNop())

	req := newChiRequest(http.MethodPost, "/internal/chat/user-1", `{"payload":{"text":"hi"}}`, map[string]string{"userID": "user-1"})
	rec := httptest.NewRecorder()

	h.Publish(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if pub.calls != 1 {
		t.Fatalf("expected exactly one Publish call, got %d", pub.calls)
	}
	if pub.userID != "user-1" {
		t.Errorf("expected userID user-1, got %q", pub.userID)
	}
	if !strings.Contains(string(pub.payload), `"text":"hi"`) {
		t.Errorf("expected payload to contain the original field, got %s", pub.payload)
	}
}

func TestChatHandlerPublishMissingUserID(t *testing.T) {
	pub := &fakeChatPublisher{}
	h := NewChatHandler(pub, zap.NewNop())

	req := newChiRequest(http.MethodPost, "/internal/chat/", `{"payload":{}}`, map[string]string{})
	rec := httptest.NewRecorder()

	h.Publish(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if pub.calls != 0 {
		t.Error("expected Publish not to be called")
	}
}

func TestChatHandlerPublishInvalidBody(t *testing.T) {
	pub := &fakeChatPublisher{}
	h := NewChatHandler(pub, zap.NewNop())

	req := newChiRequest(http.MethodPost, "/internal/chat/user-1", `not-json`, map[string]string{"userID": "user-1"})
	rec := httptest.NewRecorder()

	h.Publish(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if pub.calls != 0 {
		t.Error("expected Publish not to be called on a malformed body")
	}
}
