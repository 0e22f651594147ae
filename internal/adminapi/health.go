package adminapi

import "net/http"

// HealthHandler serves the liveness probe at /healthz. It does not check
// database connectivity — the relay's routing tables are purely in-memory,
// so a process that is running at all is, by definition, live.
type HealthHandler struct{}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	Ok(w, map[string]string{"status": "ok"})
}
