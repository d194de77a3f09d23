package posting

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SaleItem is one sold product line.
type SaleItem struct {
	ProductID int64
	Qty       decimal.Decimal
	UnitPrice decimal.Decimal
}

// Sale describes a recorded sale to be posted to the ledger.
type Sale struct {
	BranchID *int64
	ClientID *int64
	Invoice  string
	Date     time.Time
	Total    decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Items    []SaleItem
}

// PurchaseItem is one purchased product line.
type PurchaseItem struct {
	ProductID int64
	Qty       decimal.Decimal
	UnitCost  decimal.Decimal
}

// Purchase describes a recorded purchase to be posted to the ledger.
type Purchase struct {
	BranchID   *int64
	SupplierID *int64
	Reference  string
	Date       time.Time
	Total      decimal.Decimal
	Items      []PurchaseItem
}

// TransferInput describes an inter-branch funds transfer.
type TransferInput struct {
	FromBranchID  int64
	ToBranchID    int64
	FromAccountID int64
	ToAccountID   int64
	Amount        decimal.Decimal
	Description   string
	Date          time.Time
}

// InterBranchTransaction is realised as two independent journal entries, one
// per branch, linked only by the shared reference number. Each leg balances
// on its own against the branch's inter-branch clearing account.
type InterBranchTransaction struct {
	ID            int64
	FromBranchID  int64
	ToBranchID    int64
	FromAccountID int64
	ToAccountID   int64
	FromEntryID   int64
	ToEntryID     int64
	Amount        decimal.Decimal
	Description   string
	Reference     string
	CreatedAt     time.Time
}

// Transfer legs for error reporting.
const (
	TransferLegFrom   = "from"
	TransferLegTo     = "to"
	TransferLegRecord = "record"
)

// TransferError reports which leg of an inter-branch transfer failed. Any
// already-committed leg is rolled back with a compensating entry before this
// error is returned. CompensationErr is set when that rollback itself failed,
// meaning a committed leg is still standing and needs manual reversal.
type TransferError struct {
	Leg             string
	Err             error
	CompensationErr error
}

func (e *TransferError) Error() string {
	if e.CompensationErr != nil {
		return fmt.Sprintf("posting: transfer %s leg failed: %v (compensation also failed: %v)", e.Leg, e.Err, e.CompensationErr)
	}
	return fmt.Sprintf("posting: transfer %s leg failed: %v", e.Leg, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// Validate checks sale input.
func (s Sale) Validate() error {
	if s.Total.IsNegative() || s.Discount.IsNegative() || s.Tax.IsNegative() {
		return errors.New("posting: sale amounts must not be negative")
	}
	if !s.Total.IsPositive() {
		return errors.New("posting: sale total required")
	}
	for idx, item := range s.Items {
		if item.ProductID == 0 {
			return fmt.Errorf("posting: sale item %d missing product", idx)
		}
		if !item.Qty.IsPositive() {
			return fmt.Errorf("posting: sale item %d quantity must be positive", idx)
		}
	}
	return nil
}

// Validate checks purchase input.
func (p Purchase) Validate() error {
	if !p.Total.IsPositive() {
		return errors.New("posting: purchase total required")
	}
	for idx, item := range p.Items {
		if item.ProductID == 0 {
			return fmt.Errorf("posting: purchase item %d missing product", idx)
		}
		if !item.Qty.IsPositive() {
			return fmt.Errorf("posting: purchase item %d quantity must be positive", idx)
		}
	}
	return nil
}

// Validate checks transfer input.
func (t TransferInput) Validate() error {
	if t.FromBranchID <= 0 || t.ToBranchID <= 0 {
		return errors.New("posting: transfer requires both branches")
	}
	if t.FromBranchID == t.ToBranchID {
		return errors.New("posting: transfer branches must differ")
	}
	if t.FromAccountID == 0 || t.ToAccountID == 0 {
		return errors.New("posting: transfer requires both accounts")
	}
	if !t.Amount.IsPositive() {
		return errors.New("posting: transfer amount must be positive")
	}
	return nil
}
