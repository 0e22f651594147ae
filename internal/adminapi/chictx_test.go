package adminapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// newChiContext attaches a chi route context carrying the given URL params
// to req, mirroring what chi's router does before invoking a handler. This
// lets handler tests call handlers directly without standing up a router.
func newChiContext(req *http.Request, rctx *chi.Context) context.Context {
	return context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
}
