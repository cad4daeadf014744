package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/splitpot/splitpot/internal/accounts"
	"github.com/splitpot/splitpot/internal/group"
	"github.com/splitpot/splitpot/internal/observability"
	"github.com/splitpot/splitpot/internal/transactions"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger              *slog.Logger
	Config              *Config
	Metrics             *observability.Metrics
	GroupHandler        *group.Handler
	AccountsHandler     *accounts.Handler
	TransactionsHandler *transactions.Handler
}

// NewRouter constructs the chi.Router with splitpot defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Logger)
	r.Use(params.Metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		for _, mw := range MiddlewareStack(MiddlewareConfig{Logger: params.Logger, Config: params.Config}) {
			r.Use(mw)
		}
		params.GroupHandler.MountRoutes(r)
		params.AccountsHandler.MountRoutes(r)
		params.TransactionsHandler.MountRoutes(r)
	})

	return r
}
