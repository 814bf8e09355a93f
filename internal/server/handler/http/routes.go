// Package http provides HTTP routing and middleware configuration
// for the BudgetKeeper control API.
package http

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/atinyakov/BudgetKeeper/internal/middleware"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs the control API handler.
//
// Routes:
//
//	POST /api/sync                   → syncHandler.Sync
//	GET  /api/sync/status            → syncHandler.Status
//	POST /api/cloud/enable           → syncHandler.Enable
//	POST /api/cloud/disable          → syncHandler.Disable
//	GET  /api/cloud/dropbox/authorize → syncHandler.AuthorizationURL
//	GET  /metrics                    → metrics (when not nil)
//	GET  /healthz                    → 200, no token required
//
// Middleware chain (applied in order):
//  1. AllowContentType("application/json") for requests with a body
//  2. WithRequestLogging(logger)
//  3. TokenAuth(token)
func NewRouter(
	syncHandler *SyncHandler,
	metrics http.Handler,
	token string,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.AllowContentType("application/json"))
	r.Use(middleware.WithRequestLogging(logger))
	r.Use(middleware.TokenAuth(token, "/healthz"))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/sync", syncHandler.Sync)
		r.Get("/sync/status", syncHandler.Status)

		r.Route("/cloud", func(r chi.Router) {
			r.Post("/enable", syncHandler.Enable)
			r.Post("/disable", syncHandler.Disable)
			r.Get("/dropbox/authorize", syncHandler.AuthorizationURL)
		})
	})

	return r
}
