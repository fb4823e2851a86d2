package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/hermes-erp/hermes/internal/accounting"
	"github.com/hermes-erp/hermes/internal/accounting/mappings"
	"github.com/hermes-erp/hermes/internal/currency"
	"github.com/hermes-erp/hermes/internal/inventory"
	"github.com/hermes-erp/hermes/internal/masterdata"
	"github.com/hermes-erp/hermes/internal/payroll"
	"github.com/hermes-erp/hermes/internal/platform/cache"
	"github.com/hermes-erp/hermes/internal/posting"
	"github.com/hermes-erp/hermes/internal/procurement"
	"github.com/hermes-erp/hermes/internal/sales"
	"github.com/hermes-erp/hermes/internal/shared"
	"github.com/hermes-erp/hermes/jobs"
)

// Services holds the wired domain services shared by the API and the worker.
type Services struct {
	Accounting  *accounting.Service
	Currency    *currency.Service
	MasterData  masterdata.Service
	Inventory   *inventory.Service
	Sales       *sales.Service
	Procurement *procurement.Service
	Payroll     *payroll.Service
	Engine      *posting.Engine
}

// NewServices builds every service on top of pool. redisClient may be nil, in
// which case the principal currency is read from the database every time.
func NewServices(cfg *Config, pool *pgxpool.Pool, redisClient *redis.Client, registerer prometheus.Registerer, logger *slog.Logger) *Services {
	audit := shared.NewAuditLogger(pool)

	currencyRepo := currency.NewRepository(pool)
	resolver := currency.NewResolver(currencyRepo, cache.NewJSONCache(redisClient, cfg.CurrencyCacheTTL), logger)
	roles := mappings.NewProvider(mappings.NewRepository(pool), cfg.RoleMap())
	engine := posting.NewEngine(roles, resolver, posting.NewMetrics(registerer), logger)

	inventoryService := inventory.NewService(inventory.NewRepository(pool), audit, inventory.ServiceConfig{
		AllowNegativeStock: cfg.AllowNegativeStock,
	}, logger)

	return &Services{
		Accounting: accounting.NewService(accounting.NewRepository(pool), audit, logger),
		Currency:   currency.NewService(currencyRepo, resolver, logger),
		MasterData: masterdata.NewService(masterdata.NewRepository(pool)),
		Inventory:  inventoryService,
		Sales: sales.NewService(sales.NewRepository(pool), engine, inventoryService, audit, sales.Config{
			TaxRate:     cfg.TaxRate(),
			WarehouseID: cfg.SalesWarehouseID,
		}, logger),
		Procurement: procurement.NewService(procurement.NewRepository(pool), engine, inventoryService, audit, cfg.TaxRate(), logger),
		Payroll:     payroll.NewService(payroll.NewRepository(pool), engine, audit, logger),
		Engine:      engine,
	}
}

// PostingSources returns the retry sources of the posting modules.
func (s *Services) PostingSources() jobs.Sources {
	return PostingSources(s.Sales, s.Procurement, s.Payroll)
}
