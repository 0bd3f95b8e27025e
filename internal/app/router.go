package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/rolewarden/rolewarden/internal/capability"
	"github.com/rolewarden/rolewarden/internal/command"
	"github.com/rolewarden/rolewarden/internal/observability"
	"github.com/rolewarden/rolewarden/internal/revision"
	"github.com/rolewarden/rolewarden/internal/webhook"
	"github.com/rolewarden/rolewarden/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	CapabilityHandler *capability.Handler
	WebhookHandler    *webhook.Handler
	RevisionHandler   *revision.Handler
	CommandHandler    *command.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with Rolewarden defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.CapabilityHandler != nil {
		r.Route("/roles", params.CapabilityHandler.MountRoleRoutes)
		r.Route("/capabilities", params.CapabilityHandler.MountCapabilityRoutes)
		r.Route("/users", params.CapabilityHandler.MountUserRoutes)
	}
	if params.WebhookHandler != nil {
		r.Route("/webhooks", params.WebhookHandler.MountRoutes)
	}
	if params.RevisionHandler != nil {
		r.Route("/revisions", params.RevisionHandler.MountRoutes)
	}
	if params.CommandHandler != nil {
		r.Route("/api", params.CommandHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
