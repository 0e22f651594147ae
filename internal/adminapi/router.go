package adminapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterConfig holds every dependency the admin router needs. It is
// populated in cmd/server/main.go once the Coordinator and repositories are
// constructed.
type RouterConfig struct {
	Relay       AgentLiveness
	AgentTokens AgentTokenLister
	Chat        ChatPublisher
	Logger      *zap.Logger

	// AdminSharedSecret gates the /internal/* routes with
	// RequireSharedSecret; /healthz and /metrics are served without it.
	// Leave empty only for local development.
	AdminSharedSecret string

	// MetricsHandler, when non-nil, is mounted at /metrics. Build it with
	// NewMetricsHandler against the same *prometheus.Registry the relay's
	// collectors were registered on — promhttp.Handler() (no args) would
	// instead serve prometheus.DefaultGatherer, which the relay never
	// registers against. Left unset (nil) the route is simply absent.
	MetricsHandler http.Handler
}

// NewRouter builds the admin HTTP surface: health, metrics, and the two
// operator-facing endpoints that exercise the relay's exposed collaborator
// surface. It is mounted on its own port, separate from the raw WebSocket
// upgrade port, so it can sit behind an operator-only network boundary.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler()
	r.Get("/healthz", health.Check)

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	agentsHandler := NewAgentsHandler(cfg.Relay, cfg.AgentTokens)
	chatHandler := NewChatHandler(cfg.Chat, cfg.Logger)

	r.Group(func(r chi.Router) {
		r.Use(RequireSharedSecret(cfg.AdminSharedSecret))

		r.Get("/internal/agents/{userID}", agentsHandler.List)
		r.Get("/internal/agents/{userID}/{agentID}", agentsHandler.Status)
		r.Post("/internal/chat/{userID}", chatHandler.Publish)
	})

	return r
}

// NewMetricsHandler serves reg's collectors. cmd/server must pass the same
// *prometheus.Registry that was handed to relay.New, or the relay's
// collectors will never appear at /metrics.
func NewMetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
