package procurement

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hermes-erp/hermes/internal/accounting"
	"github.com/hermes-erp/hermes/internal/currency"
	"github.com/hermes-erp/hermes/internal/inventory"
	"github.com/hermes-erp/hermes/internal/masterdata"
	"github.com/hermes-erp/hermes/internal/platform/httpx"
)

var errorMappings = append([]httpx.ErrorMapping{
	{Target: ErrNotFound, Status: http.StatusNotFound, Title: "Not Found"},
	{Target: ErrValidation, Status: http.StatusBadRequest, Title: "Invalid Request"},
	{Target: ErrDuplicateNumber, Status: http.StatusConflict, Title: "Duplicate Number"},
	{Target: ErrNotSupplier, Status: http.StatusBadRequest, Title: "Not A Supplier"},
	{Target: ErrOverReceipt, Status: http.StatusConflict, Title: "Over Receipt"},
	{Target: ErrOrderClosed, Status: http.StatusConflict, Title: "Order Closed"},
	{Target: masterdata.ErrProductNotFound, Status: http.StatusBadRequest, Title: "Unknown Product"},
	{Target: masterdata.ErrPartnerNotFound, Status: http.StatusBadRequest, Title: "Unknown Partner"},
	{Target: inventory.ErrInvalidUnitCost, Status: http.StatusBadRequest, Title: "Invalid Unit Cost"},
	{Target: currency.ErrCurrencyNotFound, Status: http.StatusBadRequest, Title: "Unknown Currency"},
	{Target: currency.ErrRateUnavailable, Status: http.StatusUnprocessableEntity, Title: "Rate Unavailable"},
}, accounting.ErrorMappings...)

// Handler manages procurement endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/orders", h.listOrders)
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.showOrder)
	r.Post("/orders/{id}/receipts", h.receiveOrder)
	r.Get("/receipts", h.listReceipts)
	r.Get("/receipts/{id}", h.showReceipt)
	r.Post("/receipts/{id}/retry-posting", h.retryPosting)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Warn("procurement request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err, errorMappings...)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	orders, err := h.service.ListOrders(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orders)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var input OrderInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	po, err := h.service.CreateOrder(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) showOrder(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	po, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

type receiveRequest struct {
	Number      string             `json:"number" validate:"max=30"`
	WarehouseID int64              `json:"warehouse_id" validate:"required,gt=0"`
	Lines       []ReceiptLineInput `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) receiveOrder(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	rc, err := h.service.ReceiveOrder(r.Context(), ReceiptInput{
		OrderID:     id,
		Number:      req.Number,
		WarehouseID: req.WarehouseID,
		Lines:       req.Lines,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if rc.PostingStatus == PostingUnposted {
		status = http.StatusAccepted
	}
	httpx.JSON(w, status, rc)
}

func (h *Handler) listReceipts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orderID, _ := strconv.ParseInt(q.Get("order_id"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))
	receipts, err := h.service.ListReceipts(r.Context(), ReceiptFilter{
		OrderID:       orderID,
		PostingStatus: PostingStatus(q.Get("posting_status")),
		Limit:         limit,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, receipts)
}

func (h *Handler) showReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rc, err := h.service.GetReceipt(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rc)
}

func (h *Handler) retryPosting(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rc, err := h.service.RetryPosting(r.Context(), id, 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rc)
}
