package accounting

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hermes-erp/hermes/internal/platform/httpx"
)

// ErrorMappings translates ledger errors to HTTP statuses. Other modules
// append it to their own mappings since they surface ledger errors too.
var ErrorMappings = []httpx.ErrorMapping{
	{Target: ErrAccountNotFound, Status: http.StatusNotFound, Title: "Account Not Found"},
	{Target: ErrJournalNotFound, Status: http.StatusNotFound, Title: "Journal Not Found"},
	{Target: ErrEmptyEntry, Status: http.StatusBadRequest, Title: "Empty Entry"},
	{Target: ErrUnbalanced, Status: http.StatusBadRequest, Title: "Unbalanced Entry"},
	{Target: ErrInvalidLine, Status: http.StatusBadRequest, Title: "Invalid Line"},
	{Target: ErrInvalidAccount, Status: http.StatusBadRequest, Title: "Invalid Account"},
	{Target: ErrAccountCycle, Status: http.StatusBadRequest, Title: "Account Cycle"},
	{Target: ErrAccountExists, Status: http.StatusConflict, Title: "Duplicate Account"},
	{Target: ErrDuplicateReference, Status: http.StatusConflict, Title: "Duplicate Reference"},
	{Target: ErrAlreadyReversed, Status: http.StatusConflict, Title: "Already Reversed"},
	{Target: ErrReferentialIntegrity, Status: http.StatusConflict, Title: "Account In Use"},
	{Target: ErrConfiguration, Status: http.StatusUnprocessableEntity, Title: "Configuration Error"},
	{Target: ErrMissingCost, Status: http.StatusUnprocessableEntity, Title: "Missing Cost"},
}

// Handler wires ledger endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes for the ledger module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts", h.listAccounts)
	r.Post("/accounts", h.createAccount)
	r.Get("/accounts/{code}", h.getAccount)
	r.Put("/accounts/{code}/parent", h.reparentAccount)
	r.Post("/accounts/{code}/deactivate", h.deactivateAccount)
	r.Delete("/accounts/{code}", h.deleteAccount)
	r.Get("/journals", h.listJournals)
	r.Post("/journals", h.postJournal)
	r.Get("/journals/{ref}", h.getJournal)
	r.Post("/journals/{ref}/reverse", h.reverseJournal)
	r.Get("/reports/trial-balance", h.trialBalance)
	r.Get("/reports/integrity", h.integrity)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Warn("ledger request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err, ErrorMappings...)
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var input AccountInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	account, err := h.service.CreateAccount(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.GetAccount(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

type reparentRequest struct {
	ParentCode *string `json:"parent_code" validate:"omitempty,max=20"`
}

func (h *Handler) reparentAccount(w http.ResponseWriter, r *http.Request) {
	var req reparentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.ReparentAccount(r.Context(), chi.URLParam(r, "code"), req.ParentCode); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deactivateAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeactivateAccount(r.Context(), chi.URLParam(r, "code")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteAccount(r.Context(), chi.URLParam(r, "code"), 0); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listJournals(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.ListJournalEntries(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) postJournal(w http.ResponseWriter, r *http.Request) {
	var input PostingInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	if input.SourceModule == "" {
		input.SourceModule = "MANUAL"
	}
	entry, err := h.service.PostJournal(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) getJournal(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.GetJournalByReference(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

type reverseRequest struct {
	Date *time.Time `json:"date,omitempty"`
	Memo string     `json:"memo" validate:"max=200"`
}

func (h *Handler) reverseJournal(w http.ResponseWriter, r *http.Request) {
	var req reverseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	entry, err := h.service.ReverseJournal(r.Context(), ReverseInput{
		Reference: chi.URLParam(r, "ref"),
		Date:      req.Date,
		Memo:      req.Memo,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.TrialBalance(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) integrity(w http.ResponseWriter, r *http.Request) {
	issues, err := h.service.UnbalancedEntries(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, issues)
}
