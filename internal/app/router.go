package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kargoline/kargoline/internal/auth"
	"github.com/kargoline/kargoline/internal/customers"
	"github.com/kargoline/kargoline/internal/invoices"
	"github.com/kargoline/kargoline/internal/manifests"
	"github.com/kargoline/kargoline/internal/observability"
	"github.com/kargoline/kargoline/internal/reports"
	"github.com/kargoline/kargoline/internal/shared"
	"github.com/kargoline/kargoline/internal/shipments"
	"github.com/kargoline/kargoline/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	SessionManager   *shared.SessionManager
	AuthHandler      *auth.Handler
	CustomersHandler *customers.Handler
	ShipmentsHandler *shipments.Handler
	ManifestsHandler *manifests.Handler
	InvoicesHandler  *invoices.Handler
	ReportsHandler   *reports.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
	Pool             *pgxpool.Pool
}

// NewRouter constructs the chi.Router with Kargoline defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	r.Route("/customers", params.CustomersHandler.MountRoutes)
	r.Route("/shipments", params.ShipmentsHandler.MountRoutes)
	r.Route("/manifests", params.ManifestsHandler.MountRoutes)
	r.Route("/invoices", params.InvoicesHandler.MountRoutes)
	r.Route("/reports", params.ReportsHandler.MountRoutes)
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
