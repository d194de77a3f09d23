package debt

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler manages debt and deduction endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers debt routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createDebt)
	r.Get("/{id}", h.getDebt)
	r.Get("/{id}/payments", h.listPayments)
	r.Post("/allocations", h.allocatePayment)
	r.Post("/deductions", h.recordDeduction)
}

type createDebtRequest struct {
	DebtorType string          `json:"debtor_type" validate:"required,oneof=EMPLOYEE CLIENT SUPPLIER"`
	DebtorID   int64           `json:"debtor_id" validate:"required"`
	Amount     decimal.Decimal `json:"amount" validate:"required"`
	DueDate    *time.Time      `json:"due_date"`
	Currency   string          `json:"currency"`
	Priority   int             `json:"priority"`
}

func (h *Handler) createDebt(w http.ResponseWriter, r *http.Request) {
	var req createDebtRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	debt, err := h.service.CreateDebt(r.Context(), DebtInput{
		DebtorType: DebtorType(req.DebtorType),
		DebtorID:   req.DebtorID,
		Amount:     req.Amount,
		DueDate:    req.DueDate,
		Currency:   req.Currency,
		Priority:   req.Priority,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, debt)
}

func (h *Handler) getDebt(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid debt id")
		return
	}
	debt, err := h.service.GetDebt(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, debt)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid debt id")
		return
	}
	payments, err := h.service.ListPayments(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payments)
}

type allocateRequest struct {
	DebtorType string          `json:"debtor_type" validate:"required,oneof=EMPLOYEE CLIENT SUPPLIER"`
	DebtorID   int64           `json:"debtor_id" validate:"required"`
	Amount     decimal.Decimal `json:"amount" validate:"required"`
	Method     string          `json:"method" validate:"required,oneof=CASH BANK_TRANSFER DEDUCTION"`
	Notes      string          `json:"notes"`
}

func (h *Handler) allocatePayment(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.AllocatePayment(r.Context(), DebtorType(req.DebtorType), req.DebtorID, req.Amount, PaymentMethod(req.Method), req.Notes)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type recordDeductionRequest struct {
	EmployeeID  int64           `json:"employee_id" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	Type        string          `json:"type"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
}

func (h *Handler) recordDeduction(w http.ResponseWriter, r *http.Request) {
	var req recordDeductionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.RecordDeduction(r.Context(), DeductionInput{
		EmployeeID:  req.EmployeeID,
		Amount:      req.Amount,
		Type:        req.Type,
		Date:        req.Date,
		Description: req.Description,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrDebtNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrOverAllocation):
		httpx.Problem(w, http.StatusConflict, "Over Allocation", err.Error())
	case errors.Is(err, shared.ErrLockNotAcquired):
		httpx.Problem(w, http.StatusConflict, "Allocation In Progress", err.Error())
	default:
		h.logger.Error("debt request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
