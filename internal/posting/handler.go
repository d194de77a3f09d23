package posting

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/coa"
	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/journal"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler manages event posting endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers event posting routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sales", h.postSale)
	r.Post("/purchases", h.postPurchase)
	r.Post("/transfers", h.postTransfer)
}

type saleItemRequest struct {
	ProductID int64           `json:"product_id" validate:"required"`
	Qty       decimal.Decimal `json:"qty" validate:"required"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type postSaleRequest struct {
	BranchID *int64            `json:"branch_id"`
	ClientID *int64            `json:"client_id"`
	Invoice  string            `json:"invoice" validate:"required"`
	Date     time.Time         `json:"date"`
	Total    decimal.Decimal   `json:"total" validate:"required"`
	Discount decimal.Decimal   `json:"discount"`
	Tax      decimal.Decimal   `json:"tax"`
	Items    []saleItemRequest `json:"items"`
}

func (h *Handler) postSale(w http.ResponseWriter, r *http.Request) {
	var req postSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	sale := Sale{
		BranchID: req.BranchID,
		ClientID: req.ClientID,
		Invoice:  req.Invoice,
		Date:     req.Date,
		Total:    req.Total,
		Discount: req.Discount,
		Tax:      req.Tax,
	}
	for _, item := range req.Items {
		sale.Items = append(sale.Items, SaleItem{ProductID: item.ProductID, Qty: item.Qty, UnitPrice: item.UnitPrice})
	}
	result, err := h.service.PostSale(r.Context(), sale)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

type purchaseItemRequest struct {
	ProductID int64           `json:"product_id" validate:"required"`
	Qty       decimal.Decimal `json:"qty" validate:"required"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

type postPurchaseRequest struct {
	BranchID   *int64                `json:"branch_id"`
	SupplierID *int64                `json:"supplier_id"`
	Reference  string                `json:"reference" validate:"required"`
	Date       time.Time             `json:"date"`
	Total      decimal.Decimal       `json:"total" validate:"required"`
	Items      []purchaseItemRequest `json:"items"`
}

func (h *Handler) postPurchase(w http.ResponseWriter, r *http.Request) {
	var req postPurchaseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	purchase := Purchase{
		BranchID:   req.BranchID,
		SupplierID: req.SupplierID,
		Reference:  req.Reference,
		Date:       req.Date,
		Total:      req.Total,
	}
	for _, item := range req.Items {
		purchase.Items = append(purchase.Items, PurchaseItem{ProductID: item.ProductID, Qty: item.Qty, UnitCost: item.UnitCost})
	}
	result, err := h.service.PostPurchase(r.Context(), purchase)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

type postTransferRequest struct {
	FromBranchID  int64           `json:"from_branch_id" validate:"required"`
	ToBranchID    int64           `json:"to_branch_id" validate:"required"`
	FromAccountID int64           `json:"from_account_id" validate:"required"`
	ToAccountID   int64           `json:"to_account_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount" validate:"required"`
	Description   string          `json:"description"`
	Date          time.Time       `json:"date"`
}

func (h *Handler) postTransfer(w http.ResponseWriter, r *http.Request) {
	var req postTransferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	transfer, err := h.service.PostTransfer(r.Context(), TransferInput{
		FromBranchID:  req.FromBranchID,
		ToBranchID:    req.ToBranchID,
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        req.Amount,
		Description:   req.Description,
		Date:          req.Date,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, transfer)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var transferErr *TransferError
	switch {
	case errors.As(err, &transferErr):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Transfer Posting Failed", transferErr.Error())
	case errors.Is(err, journal.ErrUnbalanced), errors.Is(err, journal.ErrTooFewLines):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unbalanced Entry", err.Error())
	case errors.Is(err, coa.ErrUnknownAccount), errors.Is(err, journal.ErrUnknownAccount):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unknown Account", err.Error())
	case errors.Is(err, inventory.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, inventory.ErrProductNotFound):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unknown Product", err.Error())
	default:
		h.logger.Error("posting request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
