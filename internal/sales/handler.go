package sales

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
	{Target: ErrInvoiceNotFound, Status: http.StatusNotFound, Title: "Invoice Not Found"},
	{Target: masterdata.ErrProductNotFound, Status: http.StatusBadRequest, Title: "Unknown Product"},
	{Target: masterdata.ErrPartnerNotFound, Status: http.StatusBadRequest, Title: "Unknown Partner"},
	{Target: ErrDuplicateInvoice, Status: http.StatusConflict, Title: "Duplicate Invoice"},
	{Target: ErrInvalidInvoice, Status: http.StatusBadRequest, Title: "Invalid Invoice"},
	{Target: ErrInvalidPayment, Status: http.StatusBadRequest, Title: "Invalid Payment"},
	{Target: ErrNotCustomer, Status: http.StatusBadRequest, Title: "Not A Customer"},
	{Target: ErrOverpayment, Status: http.StatusConflict, Title: "Overpayment"},
	{Target: ErrInvoiceVoid, Status: http.StatusConflict, Title: "Invoice Void"},
	{Target: ErrInvoicePaid, Status: http.StatusConflict, Title: "Invoice Paid"},
	{Target: ErrInvoiceHasPayments, Status: http.StatusConflict, Title: "Invoice Has Payments"},
	{Target: ErrInvoiceUnposted, Status: http.StatusConflict, Title: "Invoice Unposted"},
	{Target: inventory.ErrNegativeStock, Status: http.StatusConflict, Title: "Insufficient Stock"},
	{Target: currency.ErrCurrencyNotFound, Status: http.StatusBadRequest, Title: "Unknown Currency"},
	{Target: currency.ErrRateUnavailable, Status: http.StatusUnprocessableEntity, Title: "Rate Unavailable"},
	{Target: ErrWarehouseNotConfigured, Status: http.StatusInternalServerError, Title: "Sales Warehouse Not Configured"},
}, accounting.ErrorMappings...)

// Handler manages invoicing endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers invoicing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/invoices", h.listInvoices)
	r.Post("/invoices", h.createInvoice)
	r.Get("/invoices/{id}", h.showInvoice)
	r.Post("/invoices/{id}/retry-posting", h.retryPosting)
	r.Post("/invoices/{id}/void", h.voidInvoice)
	r.Get("/invoices/{id}/payments", h.listPayments)
	r.Post("/invoices/{id}/payments", h.recordPayment)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Warn("sales request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err, errorMappings...)
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	partnerID, _ := strconv.ParseInt(q.Get("partner_id"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))
	invoices, err := h.service.ListInvoices(r.Context(), ListFilter{
		PartnerID:     partnerID,
		Status:        InvoiceStatus(q.Get("status")),
		PostingStatus: PostingStatus(q.Get("posting_status")),
		Limit:         limit,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoices)
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var input InvoiceInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := h.service.CreateInvoice(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if inv.PostingStatus == PostingUnposted {
		status = http.StatusAccepted
	}
	httpx.JSON(w, status, inv)
}

func (h *Handler) showInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) retryPosting(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := h.service.RetryPosting(r.Context(), id, 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) voidInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := h.service.VoidInvoice(r.Context(), id, 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	payments, err := h.service.ListPayments(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payments)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input PaymentInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	payment, err := h.service.RecordPayment(r.Context(), id, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}
