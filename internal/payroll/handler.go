package payroll

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler manages salary statement endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers payroll routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/statements", h.createStatement)
	r.Get("/employees/{employeeID}/statements", h.listStatements)
	r.Get("/employees/{employeeID}/statements/latest", h.latestStatement)
}

type createStatementRequest struct {
	EmployeeID int64           `json:"employee_id" validate:"required"`
	Year       int             `json:"year" validate:"required"`
	Month      int             `json:"month" validate:"required,min=1,max=12"`
	Base       decimal.Decimal `json:"base" validate:"required"`
	Overtime   decimal.Decimal `json:"overtime"`
	Bonuses    decimal.Decimal `json:"bonuses"`
}

func (h *Handler) createStatement(w http.ResponseWriter, r *http.Request) {
	var req createStatementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	statement, err := h.service.CreateStatement(r.Context(), StatementInput{
		EmployeeID: req.EmployeeID,
		Year:       req.Year,
		Month:      req.Month,
		Base:       req.Base,
		Overtime:   req.Overtime,
		Bonuses:    req.Bonuses,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, statement)
}

func (h *Handler) listStatements(w http.ResponseWriter, r *http.Request) {
	employeeID, err := strconv.ParseInt(chi.URLParam(r, "employeeID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid employee id")
		return
	}
	statements, err := h.service.ListStatements(r.Context(), employeeID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, statements)
}

func (h *Handler) latestStatement(w http.ResponseWriter, r *http.Request) {
	employeeID, err := strconv.ParseInt(chi.URLParam(r, "employeeID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid employee id")
		return
	}
	statement, err := h.service.LatestStatement(r.Context(), employeeID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, statement)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrStatementNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateStatement):
		httpx.Problem(w, http.StatusConflict, "Duplicate Statement", err.Error())
	default:
		h.logger.Error("payroll request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
