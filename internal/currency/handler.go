package currency

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hermes-erp/hermes/internal/accounting"
	"github.com/hermes-erp/hermes/internal/platform/httpx"
)

var errorMappings = []httpx.ErrorMapping{
	{Target: ErrCurrencyNotFound, Status: http.StatusNotFound, Title: "Currency Not Found"},
	{Target: ErrCurrencyExists, Status: http.StatusConflict, Title: "Duplicate Currency"},
	{Target: ErrInvalidCurrency, Status: http.StatusBadRequest, Title: "Invalid Currency"},
	{Target: ErrInvalidRate, Status: http.StatusBadRequest, Title: "Invalid Rate"},
	{Target: ErrRateUnavailable, Status: http.StatusUnprocessableEntity, Title: "Rate Unavailable"},
	{Target: accounting.ErrConfiguration, Status: http.StatusUnprocessableEntity, Title: "Configuration Error"},
}

// Handler exposes currency endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers currency routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/currencies", h.list)
	r.Post("/currencies", h.create)
	r.Get("/currencies/principal", h.principal)
	r.Put("/currencies/{code}/principal", h.setPrincipal)
	r.Post("/currencies/{code}/rates", h.recordRate)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Warn("currency request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err, errorMappings...)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Principal(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) setPrincipal(w http.ResponseWriter, r *http.Request) {
	if err := h.service.SetPrincipal(r.Context(), chi.URLParam(r, "code")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) recordRate(w http.ResponseWriter, r *http.Request) {
	var input RateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	input.CurrencyCode = chi.URLParam(r, "code")
	rate, err := h.service.RecordRate(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rate)
}
