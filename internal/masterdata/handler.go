package masterdata

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/hermes-erp/hermes/internal/platform/httpx"
)

var errorMappings = []httpx.ErrorMapping{
	{Target: ErrProductNotFound, Status: http.StatusNotFound, Title: "Product Not Found"},
	{Target: ErrPartnerNotFound, Status: http.StatusNotFound, Title: "Partner Not Found"},
	{Target: ErrWarehouseNotFound, Status: http.StatusNotFound, Title: "Warehouse Not Found"},
	{Target: ErrDuplicate, Status: http.StatusConflict, Title: "Duplicate"},
	{Target: ErrInvalidInput, Status: http.StatusBadRequest, Title: "Invalid Input"},
}

// Handler manages master data endpoints.
type Handler struct {
	logger  *slog.Logger
	service Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers master data routes.
func (h *Handler) MountRoutes(r chi.Router) {
	// Products
	r.Get("/products", h.listProducts)
	r.Post("/products", h.createProduct)
	r.Get("/products/{id}", h.showProduct)
	r.Put("/products/{id}/cost", h.setProductCost)

	// Partners
	r.Get("/partners", h.listPartners)
	r.Post("/partners", h.createPartner)
	r.Get("/partners/{id}", h.showPartner)

	// Warehouses
	r.Get("/warehouses", h.listWarehouses)
	r.Post("/warehouses", h.createWarehouse)
	r.Get("/warehouses/{id}", h.showWarehouse)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Warn("master data request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err, errorMappings...)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, products)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var input ProductInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	product, err := h.service.CreateProduct(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) showProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

type costRequest struct {
	UnitCost *decimal.Decimal `json:"unit_cost"`
}

func (h *Handler) setProductCost(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req costRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.SetProductCost(r.Context(), id, req.UnitCost); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPartners(w http.ResponseWriter, r *http.Request) {
	partners, err := h.service.ListPartners(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, partners)
}

func (h *Handler) createPartner(w http.ResponseWriter, r *http.Request) {
	var input PartnerInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	partner, err := h.service.CreatePartner(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, partner)
}

func (h *Handler) showPartner(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	partner, err := h.service.GetPartner(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, partner)
}

func (h *Handler) listWarehouses(w http.ResponseWriter, r *http.Request) {
	warehouses, err := h.service.ListWarehouses(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, warehouses)
}

func (h *Handler) createWarehouse(w http.ResponseWriter, r *http.Request) {
	var input WarehouseInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	warehouse, err := h.service.CreateWarehouse(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, warehouse)
}

func (h *Handler) showWarehouse(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	warehouse, err := h.service.GetWarehouse(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, warehouse)
}
