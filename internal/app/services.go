package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/kiosk-inventory/internal/catalog"
	"github.com/odyssey-erp/kiosk-inventory/internal/checkout"
	"github.com/odyssey-erp/kiosk-inventory/internal/inventory"
	"github.com/odyssey-erp/kiosk-inventory/internal/observability"
	"github.com/odyssey-erp/kiosk-inventory/internal/orders"
	"github.com/odyssey-erp/kiosk-inventory/internal/reconcile"
	"github.com/odyssey-erp/kiosk-inventory/internal/shared"
	"github.com/odyssey-erp/kiosk-inventory/internal/stocktake"
)

// Services holds every domain service sharing one ledger recorder.
type Services struct {
	Recorder  *inventory.Recorder
	Catalog   *catalog.Service
	Inventory *inventory.Service
	Checkout  *checkout.Service
	Orders    *orders.Service
	Stocktake *stocktake.Service
	Reconcile *reconcile.Service
}

// NewServices wires the domain services over one pool. redisClient and
// metrics may be nil.
func NewServices(cfg *Config, pool *pgxpool.Pool, redisClient *redis.Client, metrics *observability.Metrics, logger *slog.Logger) *Services {
	var observer inventory.Observer
	var gauge reconcile.DriftGauge
	if metrics != nil {
		observer = metrics
		gauge = metrics
	}
	recorder := inventory.NewRecorder(observer)
	audit := shared.NewAuditLogger(pool)
	idem := shared.NewIdempotencyStore(pool)

	ledger := inventory.NewRepository(pool)
	catalogSvc := catalog.NewService(catalog.NewRepository(pool), recorder, audit, logger.With(slog.String("module", "catalog")))
	inventorySvc := inventory.NewService(ledger, recorder, audit, logger.With(slog.String("module", "inventory")))

	ttl := cfg.DriftCacheTTL
	var cache *reconcile.Cache
	if redisClient != nil {
		cache = reconcile.NewCache(redisClient, ttl)
	}

	return &Services{
		Recorder:  recorder,
		Catalog:   catalogSvc,
		Inventory: inventorySvc,
		Checkout:  checkout.NewService(checkout.NewRepository(pool), catalogSvc, recorder, audit, idem, logger.With(slog.String("module", "checkout"))),
		Orders:    orders.NewService(orders.NewRepository(pool), recorder, audit, logger.With(slog.String("module", "orders"))),
		Stocktake: stocktake.NewService(stocktake.NewRepository(pool), inventorySvc, recorder, audit, logger.With(slog.String("module", "stocktake"))),
		Reconcile: reconcile.NewService(ledger, reconcile.NewRepository(pool), recorder, cache, gauge, audit, logger.With(slog.String("module", "reconcile"))),
	}
}

// ReorderPolicy derives the draft generation policy from configuration.
func (c *Config) ReorderPolicy() orders.ReorderPolicy {
	return orders.ReorderPolicy{Multiplier: c.ReorderMultiplier}
}
