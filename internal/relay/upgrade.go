package relay

import "net/http"

// UpgradeRouter dispatches an incoming upgrade request to the Browser or
// Agent Acceptor by exact path match. Any other path is refused by hijacking
// the connection and closing it without a response (§4.1).
type UpgradeRouter struct {
	cfg     Config
	browser http.Handler
	agent   http.Handler
}

// NewUpgradeRouter constructs an UpgradeRouter.
func NewUpgradeRouter(cfg Config, browser, agent http.Handler) *UpgradeRouter {
	return &UpgradeRouter{cfg: cfg, browser: browser, agent: agent}
}

func (u *UpgradeRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case u.cfg.BrowserUpgradePath:
		u.browser.ServeHTTP(w, r)
	case u.cfg.AgentUpgradePath:
		u.agent.ServeHTTP(w, r)
	default:
		hijackAndClose(w)
	}
}

// hijackAndClose closes the underlying TCP connection directly, bypassing
// the ResponseWriter entirely — no HTTP response is written for an unknown
// upgrade path.
func hijackAndClose(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	conn.Close()
}
