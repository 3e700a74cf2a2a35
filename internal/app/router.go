package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/urcash/urcash/internal/debts"
	"github.com/urcash/urcash/internal/installments"
	"github.com/urcash/urcash/internal/moneybox"
	"github.com/urcash/urcash/internal/observability"
	"github.com/urcash/urcash/internal/platform/httpx"
	"github.com/urcash/urcash/internal/products"
	"github.com/urcash/urcash/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger              *slog.Logger
	Config              *Config
	InstallmentsHandler *installments.Handler
	DebtsHandler        *debts.Handler
	MoneyBoxHandler     *moneybox.Handler
	ProductsHandler     *products.Handler
	JobHandler          *jobs.Handler
	Metrics             *observability.Metrics
}

// NewRouter constructs the chi.Router serving the JSON API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	if params.Config == nil || !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		if params.InstallmentsHandler != nil {
			r.Route("/installments", params.InstallmentsHandler.MountRoutes)
		}
		if params.DebtsHandler != nil {
			r.Route("/debts", params.DebtsHandler.MountRoutes)
		}
		if params.MoneyBoxHandler != nil {
			r.Route("/money-boxes", params.MoneyBoxHandler.MountRoutes)
		}
		if params.ProductsHandler != nil {
			r.Route("/products", params.ProductsHandler.MountRoutes)
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
