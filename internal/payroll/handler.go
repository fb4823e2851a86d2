package payroll

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hermes-erp/hermes/internal/accounting"
	"github.com/hermes-erp/hermes/internal/platform/httpx"
)

var errorMappings = append([]httpx.ErrorMapping{
	{Target: ErrEmployeeNotFound, Status: http.StatusNotFound, Title: "Employee Not Found"},
	{Target: ErrPeriodNotFound, Status: http.StatusNotFound, Title: "Period Not Found"},
	{Target: ErrConceptNotFound, Status: http.StatusBadRequest, Title: "Unknown Concept"},
	{Target: ErrRunNotFound, Status: http.StatusNotFound, Title: "Run Not Found"},
	{Target: ErrDuplicateRun, Status: http.StatusConflict, Title: "Duplicate Run"},
	{Target: ErrDuplicate, Status: http.StatusConflict, Title: "Duplicate"},
	{Target: ErrInactiveEmployee, Status: http.StatusConflict, Title: "Inactive Employee"},
	{Target: ErrInvalidInput, Status: http.StatusBadRequest, Title: "Invalid Input"},
}, accounting.ErrorMappings...)

// Handler exposes payroll endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers payroll routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/employees", h.listEmployees)
	r.Post("/employees", h.createEmployee)
	r.Get("/periods", h.listPeriods)
	r.Post("/periods", h.createPeriod)
	r.Get("/concepts", h.listConcepts)
	r.Post("/concepts", h.createConcept)
	r.Get("/runs", h.listRuns)
	r.Post("/runs", h.createRun)
	r.Get("/runs/{id}", h.showRun)
	r.Post("/runs/{id}/retry-posting", h.retryPosting)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Warn("payroll request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err, errorMappings...)
}

func (h *Handler) listEmployees(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ListEmployees(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) createEmployee(w http.ResponseWriter, r *http.Request) {
	var input EmployeeInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	e, err := h.service.CreateEmployee(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, e)
}

func (h *Handler) listPeriods(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ListPeriods(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) createPeriod(w http.ResponseWriter, r *http.Request) {
	var input PeriodInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.service.CreatePeriod(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) listConcepts(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ListConcepts(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) createConcept(w http.ResponseWriter, r *http.Request) {
	var input ConceptInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.service.CreateConcept(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	periodID, _ := strconv.ParseInt(q.Get("period_id"), 10, 64)
	employeeID, _ := strconv.ParseInt(q.Get("employee_id"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))
	runs, err := h.service.ListRuns(r.Context(), RunFilter{
		PeriodID:      periodID,
		EmployeeID:    employeeID,
		PostingStatus: PostingStatus(q.Get("posting_status")),
		Limit:         limit,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, runs)
}

func (h *Handler) createRun(w http.ResponseWriter, r *http.Request) {
	var input RunInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	run, err := h.service.CreateRun(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if run.PostingStatus == PostingUnposted {
		status = http.StatusAccepted
	}
	httpx.JSON(w, status, run)
}

func (h *Handler) showRun(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	run, err := h.service.GetRun(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}

func (h *Handler) retryPosting(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	run, err := h.service.RetryPosting(r.Context(), id, 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}
