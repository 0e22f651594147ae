package adminapi

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func TestRouterHealthzIsAlwaysReachable(t *testing.T) {
	router := NewRouter(RouterConfig{
		Relay:             &fakeAgentLiveness{},
		AgentTokens:       &fakeAgentTokenLister{},
		Chat:              &fakeChatPublisher{},
		Logger:            zap.NewNop(),
		AdminSharedSecret: "s3cret",
	})
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestRouterInternalRoutesRequireSharedSecret(t *testing.T) {
	router := NewRouter(RouterConfig{
		Relay:             &fakeAgentLiveness{},
		AgentTokens:       &fakeAgentTokenLister{},
		Chat:              &fakeChatPublisher{},
		Logger:            zap.NewNop(),
		AdminSharedSecret: "s3cret",
	})
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/internal/agents/user-1/agent-1")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without a token, got %d", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/internal/agents/user-1/agent-1", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("X-Admin-Token", "s3cret")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("expected 200 with a valid token, got %d", resp2.StatusCode)
	}
}

func TestRouterMetricsRouteOnlyMountedWhenConfigured(t *testing.T) {
	router := NewRouter(RouterConfig{
		Relay:       &fakeAgentLiveness{},
		AgentTokens: &fakeAgentTokenLister{},
		Chat:        &fakeChatPublisher{},
		Logger:      zap.NewNop(),
	})
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 when no metrics handler is configured, got %d", resp.StatusCode)
	}
}

func TestRouterMetricsRouteServesTheGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_marker_total", Help: "test"})
	counter.Inc()
	reg.MustRegister(counter)

	router := NewRouter(RouterConfig{
		Relay:          &fakeAgentLiveness{},
		AgentTokens:    &fakeAgentTokenLister{},
		Chat:           &fakeChatPublisher{},
		Logger:         zap.NewNop(),
		MetricsHandler: NewMetricsHandler(reg),
	})
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "test_marker_total") {
		t.Errorf("expected /metrics to expose the registry passed to NewMetricsHandler, got: %s", body)
	}
}
