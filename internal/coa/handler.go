package coa

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler manages chart of accounts endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	registry *RoleRegistry
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, registry *RoleRegistry) *Handler {
	return &Handler{logger: logger, service: service, registry: registry, validate: validator.New()}
}

// MountRoutes registers chart of accounts routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/categories", h.createCategory)
	r.Post("/accounts", h.createAccount)
	r.Get("/accounts", h.listAccounts)
	r.Get("/accounts/{code}", h.getAccount)
	r.Post("/branches/{branchID}/provision", h.provisionBranch)
}

type createCategoryRequest struct {
	Name       string `json:"name" validate:"required"`
	Code       string `json:"code" validate:"required"`
	NormalSide string `json:"normal_side" validate:"required,oneof=DEBIT CREDIT"`
	Level      int    `json:"level" validate:"gte=0"`
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	category, err := h.service.CreateCategory(r.Context(), CategoryInput{
		Name:       req.Name,
		Code:       req.Code,
		NormalSide: NormalSide(req.NormalSide),
		Level:      req.Level,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, category)
}

type createAccountRequest struct {
	Code                   string `json:"code" validate:"required"`
	Name                   string `json:"name" validate:"required"`
	CategoryID             int64  `json:"category_id" validate:"required"`
	BranchID               *int64 `json:"branch_id"`
	ParentID               *int64 `json:"parent_id"`
	ConsolidationAccountID *int64 `json:"consolidation_account_id"`
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	account, err := h.service.CreateAccount(r.Context(), AccountInput{
		Code:                   req.Code,
		Name:                   req.Name,
		CategoryID:             req.CategoryID,
		BranchID:               req.BranchID,
		ParentID:               req.ParentID,
		ConsolidationAccountID: req.ConsolidationAccountID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	var branchID *int64
	if raw := r.URL.Query().Get("branch_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid branch_id")
			return
		}
		branchID = &id
	}
	accounts, err := h.service.ListAccounts(r.Context(), branchID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	account, err := h.service.GetByCode(r.Context(), code)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

type provisionBranchRequest struct {
	SourceBranchID *int64 `json:"source_branch_id"`
}

func (h *Handler) provisionBranch(w http.ResponseWriter, r *http.Request) {
	branchID, err := strconv.ParseInt(chi.URLParam(r, "branchID"), 10, 64)
	if err != nil || branchID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid branch id")
		return
	}
	var req provisionBranchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	accounts, err := h.service.CloneChartForBranch(r.Context(), req.SourceBranchID, branchID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if h.registry != nil {
		h.registry.Invalidate(&branchID)
	}
	httpx.JSON(w, http.StatusCreated, accounts)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrDuplicateCode):
		httpx.Problem(w, http.StatusConflict, "Duplicate Code", err.Error())
	case errors.Is(err, ErrUnknownCategory):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unknown Category", err.Error())
	case errors.Is(err, ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrBranchProvisioned):
		httpx.Problem(w, http.StatusConflict, "Already Provisioned", err.Error())
	default:
		h.logger.Error("coa request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
