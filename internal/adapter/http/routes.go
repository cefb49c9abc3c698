package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	cfotel "github.com/Strob0t/CredForge/internal/adapter/otel"
	"github.com/Strob0t/CredForge/internal/middleware"
)

// MountRoutes registers all API routes on the given chi router. Every
// model-provider route is tenant-scoped.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1/workspaces/current/model-providers", func(r chi.Router) {
		r.Use(middleware.TenantID, cfotel.TenantSpanAttribute)

		r.Get("/", h.ListProviders)

		r.Route("/{provider}", func(r chi.Router) {
			r.Get("/", h.GetProvider)
			r.Post("/", h.SaveProviderCredentials)
			r.Delete("/", h.DeleteProviderCredentials)

			r.Get("/credentials", h.GetProviderCredentials)
			r.Post("/credentials/validate", h.ValidateProviderCredentials)
			r.Post("/preferred-provider-type", h.SwitchPreferredProviderType)

			r.Post("/models", h.SaveModelCredentials)
			r.Delete("/models", h.DeleteModelCredentials)
			r.Get("/models/credentials", h.GetModelCredentials)
			r.Post("/models/credentials/validate", h.ValidateModelCredentials)
			r.Patch("/models/enable", h.EnableModel)
			r.Patch("/models/disable", h.DisableModel)
		})
	})
}

// readyTimeout bounds one readiness probe.
const readyTimeout = 2 * time.Second

// MountHealth registers the liveness and readiness probes. ready may be nil;
// it is given a context that expires after readyTimeout.
func MountHealth(r chi.Router, ready func(context.Context) error) {
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
			defer cancel()
			if err := ready(ctx); err != nil {
				slog.WarnContext(r.Context(), "readiness check failed", "error", err)
				writeError(w, http.StatusServiceUnavailable, "not ready")
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
}
