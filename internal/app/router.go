package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/kiosk-inventory/internal/catalog"
	"github.com/odyssey-erp/kiosk-inventory/internal/checkout"
	"github.com/odyssey-erp/kiosk-inventory/internal/inventory"
	"github.com/odyssey-erp/kiosk-inventory/internal/observability"
	"github.com/odyssey-erp/kiosk-inventory/internal/orders"
	"github.com/odyssey-erp/kiosk-inventory/internal/reconcile"
	"github.com/odyssey-erp/kiosk-inventory/internal/stocktake"
	"github.com/odyssey-erp/kiosk-inventory/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Pool             *pgxpool.Pool
	CatalogHandler   *catalog.Handler
	InventoryHandler *inventory.Handler
	CheckoutHandler  *checkout.Handler
	OrdersHandler    *orders.Handler
	StocktakeHandler *stocktake.Handler
	ReconcileHandler *reconcile.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouterParams builds every handler from the wired services.
func NewRouterParams(cfg *Config, pool *pgxpool.Pool, svc *Services, jobHandler *jobs.Handler, metrics *observability.Metrics, logger *slog.Logger) RouterParams {
	return RouterParams{
		Logger:           logger,
		Config:           cfg,
		Pool:             pool,
		CatalogHandler:   catalog.NewHandler(logger, svc.Catalog),
		InventoryHandler: inventory.NewHandler(logger, svc.Inventory),
		CheckoutHandler:  checkout.NewHandler(logger, svc.Checkout),
		OrdersHandler:    orders.NewHandler(logger, svc.Orders, cfg.ReorderPolicy()),
		StocktakeHandler: stocktake.NewHandler(logger, svc.Stocktake),
		ReconcileHandler: reconcile.NewHandler(logger, svc.Reconcile),
		JobHandler:       jobHandler,
		Metrics:          metrics,
	}
}

// NewRouter constructs the chi.Router with kiosk defaults.
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
		if params.Pool != nil {
			if err := params.Pool.Ping(r.Context()); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.AllowContentType("application/json"))
		if params.CatalogHandler != nil {
			params.CatalogHandler.MountRoutes(r)
		}
		if params.InventoryHandler != nil {
			params.InventoryHandler.MountRoutes(r)
		}
		if params.CheckoutHandler != nil {
			params.CheckoutHandler.MountRoutes(r)
		}
		if params.OrdersHandler != nil {
			params.OrdersHandler.MountRoutes(r)
		}
		if params.StocktakeHandler != nil {
			params.StocktakeHandler.MountRoutes(r)
		}
		if params.ReconcileHandler != nil {
			params.ReconcileHandler.MountRoutes(r)
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
