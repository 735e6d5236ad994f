package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/0x3b3fc/erp-pro-sub001/internal/inventory"
	"github.com/0x3b3fc/erp-pro-sub001/internal/ledger/accounts"
	"github.com/0x3b3fc/erp-pro-sub001/internal/ledger/fiscalyears"
	"github.com/0x3b3fc/erp-pro-sub001/internal/ledger/journals"
	"github.com/0x3b3fc/erp-pro-sub001/internal/observability"
	"github.com/0x3b3fc/erp-pro-sub001/internal/purchasing"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Metrics            *observability.Metrics
	Pool               *pgxpool.Pool
	AccountsHandler    *accounts.Handler
	FiscalYearsHandler *fiscalyears.Handler
	JournalsHandler    *journals.Handler
	InventoryHandler   *inventory.Handler
	PurchasingHandler  *purchasing.Handler
}

// NewRouter assembles the HTTP surface: health and metrics outside the
// identity gate, the tenant API behind it.
func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{Logger: p.Logger, Config: p.Config, Metrics: p.Metrics}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if p.Pool != nil {
			if err := p.Pool.Ping(req.Context()); err != nil {
				http.Error(w, "database unreachable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", p.Metrics.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(IdentityMiddleware)
		api.Route("/accounts", p.AccountsHandler.MountRoutes)
		api.Route("/fiscal-years", p.FiscalYearsHandler.MountRoutes)
		api.Route("/journal-entries", p.JournalsHandler.MountRoutes)
		api.Route("/inventory", p.InventoryHandler.MountRoutes)
		api.Route("/purchasing", p.PurchasingHandler.MountRoutes)
	})
	return r
}
