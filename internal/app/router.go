package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/kueskilink/kueskilink/internal/employees"
	"github.com/kueskilink/kueskilink/internal/links"
	"github.com/kueskilink/kueskilink/internal/observability"
	"github.com/kueskilink/kueskilink/internal/products"
	"github.com/kueskilink/kueskilink/internal/provider/kueski"
	"github.com/kueskilink/kueskilink/internal/stats"
	"github.com/kueskilink/kueskilink/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	LinksHandler     *links.Handler
	ProductsHandler  *products.Handler
	EmployeesHandler *employees.Handler
	StatsHandler     *stats.Handler
	ProviderHandler  *kueski.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router. Merchant routes sit under /v1 behind
// the gateway identity headers; the public payment API under /api carries
// no identity and is rate limited per client IP.
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

	r.Route("/v1", func(r chi.Router) {
		r.Use(ActorMiddleware)
		if params.LinksHandler != nil {
			params.LinksHandler.MountRoutes(r)
		}
		if params.ProductsHandler != nil {
			params.ProductsHandler.MountRoutes(r)
		}
		if params.EmployeesHandler != nil {
			params.EmployeesHandler.MountRoutes(r)
		}
		if params.StatsHandler != nil {
			params.StatsHandler.MountRoutes(r)
		}
	})

	r.Route("/api", func(r chi.Router) {
		limit := 60
		if params.Config != nil && params.Config.PublicRateLimit > 0 {
			limit = params.Config.PublicRateLimit
		}
		r.Use(httprate.Limit(limit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		if params.LinksHandler != nil {
			params.LinksHandler.MountPublicRoutes(r)
		}
		if params.ProviderHandler != nil {
			params.ProviderHandler.MountPublicRoutes(r)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
