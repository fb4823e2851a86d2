package inventory

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hermes-erp/hermes/internal/platform/httpx"
)

var errorMappings = []httpx.ErrorMapping{
	{Target: ErrNegativeStock, Status: http.StatusConflict, Title: "Insufficient Stock"},
	{Target: ErrInvalidQuantity, Status: http.StatusBadRequest, Title: "Invalid Quantity"},
	{Target: ErrInvalidUnitCost, Status: http.StatusBadRequest, Title: "Invalid Unit Cost"},
	{Target: ErrInvalidMovement, Status: http.StatusBadRequest, Title: "Invalid Movement"},
}

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/inventory/stock", h.getStock)
	r.Get("/inventory/movements", h.listMovements)
	r.Post("/inventory/adjustments", h.adjust)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Warn("inventory request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err, errorMappings...)
}

func queryInt(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: invalid %s", httpx.ErrValidation, name)
	}
	return v, nil
}

func (h *Handler) getStock(w http.ResponseWriter, r *http.Request) {
	productID, err := queryInt(r, "product_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	warehouseID, err := queryInt(r, "warehouse_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if productID == 0 || warehouseID == 0 {
		h.fail(w, r, errors.Join(httpx.ErrValidation, errors.New("product_id and warehouse_id required")))
		return
	}
	stock, err := h.service.GetStock(r.Context(), productID, warehouseID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stock)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	var filter MovementFilter
	var err error
	if filter.ProductID, err = queryInt(r, "product_id"); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.WarehouseID, err = queryInt(r, "warehouse_id"); err != nil {
		h.fail(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	filter.Limit = int(limit)
	filter.RefModule = r.URL.Query().Get("ref_module")
	movements, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, movements)
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	var input AdjustmentInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	movement, stock, err := h.service.Adjust(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"movement": movement, "stock": stock})
}
