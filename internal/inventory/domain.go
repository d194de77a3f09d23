package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// MovementType enumerates supported inventory movements.
type MovementType string

const (
	// MovementTypeSale represents an outbound movement from a sale.
	MovementTypeSale MovementType = "SALE"
	// MovementTypePurchase represents an inbound movement from a purchase.
	MovementTypePurchase MovementType = "PURCHASE"
	// MovementTypeAdjust indicates manual adjustments.
	MovementTypeAdjust MovementType = "ADJUST"
)

// Movement models one signed stock movement. Sales carry negative quantities,
// purchases positive; the trail is append-only.
type Movement struct {
	ID         int64
	ProductID  int64
	BranchID   *int64
	Type       MovementType
	Qty        decimal.Decimal
	UnitCost   decimal.Decimal
	Reference  string
	Note       string
	OccurredAt time.Time
	CreatedAt  time.Time
}

// MovementInput describes a requested stock movement.
type MovementInput struct {
	ProductID  int64
	BranchID   *int64
	Type       MovementType
	Qty        decimal.Decimal
	UnitCost   decimal.Decimal
	Reference  string
	Note       string
	OccurredAt time.Time
}

// Product carries the stock-relevant slice of the product record.
type Product struct {
	ID            int64
	SKU           string
	Name          string
	Quantity      decimal.Decimal
	PurchasePrice decimal.Decimal
	UpdatedAt     time.Time
}

var (
	// ErrProductNotFound indicates a missing product.
	ErrProductNotFound = errors.New("inventory: product not found")
	// ErrInsufficientStock indicates an outbound movement exceeding on-hand qty.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
)

// Validate checks movement input.
func (in MovementInput) Validate() error {
	if in.ProductID == 0 {
		return errors.New("inventory: product required")
	}
	if in.Qty.IsZero() {
		return errors.New("inventory: quantity must be non-zero")
	}
	switch in.Type {
	case MovementTypeSale:
		if in.Qty.IsPositive() {
			return errors.New("inventory: sale movement must be negative")
		}
	case MovementTypePurchase:
		if in.Qty.IsNegative() {
			return errors.New("inventory: purchase movement must be positive")
		}
	case MovementTypeAdjust:
	default:
		return errors.New("inventory: unknown movement type")
	}
	return nil
}
