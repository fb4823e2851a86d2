package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hermes-erp/hermes/internal/accounting"
	"github.com/hermes-erp/hermes/internal/currency"
	"github.com/hermes-erp/hermes/internal/inventory"
	"github.com/hermes-erp/hermes/internal/masterdata"
	"github.com/hermes-erp/hermes/internal/observability"
	"github.com/hermes-erp/hermes/internal/payroll"
	"github.com/hermes-erp/hermes/internal/platform/httpx"
	"github.com/hermes-erp/hermes/internal/procurement"
	"github.com/hermes-erp/hermes/internal/sales"
	"github.com/hermes-erp/hermes/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	AccountingHandler  *accounting.Handler
	CurrencyHandler    *currency.Handler
	MasterDataHandler  *masterdata.Handler
	InventoryHandler   *inventory.Handler
	SalesHandler       *sales.Handler
	ProcurementHandler *procurement.Handler
	PayrollHandler     *payroll.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
	Idempotency        IdempotencyStore
}

// NewRouter constructs the chi.Router with the API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:      params.Logger,
		Config:      params.Config,
		Metrics:     params.Metrics,
		Idempotency: params.Idempotency,
	}) {
		r.Use(mw)
	}

	if params.Config == nil || !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if params.AccountingHandler != nil {
		r.Route("/accounting", params.AccountingHandler.MountRoutes)
	}
	if params.CurrencyHandler != nil {
		params.CurrencyHandler.MountRoutes(r)
	}
	if params.MasterDataHandler != nil {
		r.Route("/masterdata", params.MasterDataHandler.MountRoutes)
	}
	if params.InventoryHandler != nil {
		r.Route("/inventory", params.InventoryHandler.MountRoutes)
	}
	if params.SalesHandler != nil {
		r.Route("/sales", params.SalesHandler.MountRoutes)
	}
	if params.ProcurementHandler != nil {
		r.Route("/procurement", params.ProcurementHandler.MountRoutes)
	}
	if params.PayrollHandler != nil {
		r.Route("/payroll", params.PayrollHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
		r.Route("/admin", params.JobHandler.MountAdminRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
