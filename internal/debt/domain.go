package debt

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DebtorType enumerates who owes the debt.
type DebtorType string

const (
	DebtorEmployee DebtorType = "EMPLOYEE"
	DebtorClient   DebtorType = "CLIENT"
	DebtorSupplier DebtorType = "SUPPLIER"
)

// Status enumerates debt lifecycle values. PAID holds exactly when the
// remaining amount is zero.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
	StatusOverdue Status = "OVERDUE"
)

// PaymentMethod enumerates how a payment was made. MethodDeduction is the
// synthetic method used for automatic salary-based settlement.
type PaymentMethod string

const (
	MethodCash      PaymentMethod = "CASH"
	MethodTransfer  PaymentMethod = "BANK_TRANSFER"
	MethodDeduction PaymentMethod = "DEDUCTION"
)

// Debt is one outstanding obligation. Remaining stays within [0, Amount] at
// all times; debts referenced by payments are never deleted.
type Debt struct {
	ID         int64
	DebtorType DebtorType
	DebtorID   int64
	Amount     decimal.Decimal
	Remaining  decimal.Decimal
	DueDate    *time.Time
	Status     Status
	Currency   string
	Priority   int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Payment is one append-only settlement record against a debt. Payment
// amounts for a debt always sum to Amount - Remaining.
type Payment struct {
	ID        int64
	DebtID    int64
	Amount    decimal.Decimal
	PaidAt    time.Time
	Method    PaymentMethod
	Notes     string
	CreatedAt time.Time
}

// Deduction records a salary deduction event. Recording one fans out to the
// employee's current pay-period statement and to their outstanding debts.
type Deduction struct {
	ID          int64
	EmployeeID  int64
	Amount      decimal.Decimal
	Type        string
	Date        time.Time
	Description string
	CreatedAt   time.Time
}

// DebtInput groups fields for recording a debt obligation.
type DebtInput struct {
	DebtorType DebtorType
	DebtorID   int64
	Amount     decimal.Decimal
	DueDate    *time.Time
	Currency   string
	Priority   int
}

// DeductionInput groups fields for recording a deduction.
type DeductionInput struct {
	EmployeeID  int64
	Amount      decimal.Decimal
	Type        string
	Date        time.Time
	Description string
}

// Allocation reports how much of a payment landed on one debt.
type Allocation struct {
	DebtID       int64
	Allocated    decimal.Decimal
	NewRemaining decimal.Decimal
	NewStatus    Status
}

// AllocationResult is the outcome of one waterfall run. Unallocated is the
// unspent remainder when the debtor's open debts were exhausted; it is
// surfaced to the caller, never silently dropped.
type AllocationResult struct {
	Requested   decimal.Decimal
	Allocated   decimal.Decimal
	Unallocated decimal.Decimal
	Allocations []Allocation
}

// DeductionResult reports the full fan-out of one recorded deduction.
type DeductionResult struct {
	Deduction         Deduction
	StatementAdjusted bool
	Allocation        AllocationResult
}

var (
	// ErrDebtNotFound indicates a missing debt.
	ErrDebtNotFound = errors.New("debt: not found")
	// ErrOverAllocation indicates an allocation would drive remaining negative.
	ErrOverAllocation = errors.New("debt: allocation exceeds remaining amount")
)

// Validate checks debt creation input.
func (in DebtInput) Validate() error {
	switch in.DebtorType {
	case DebtorEmployee, DebtorClient, DebtorSupplier:
	default:
		return fmt.Errorf("debt: invalid debtor type %q", in.DebtorType)
	}
	if in.DebtorID == 0 {
		return errors.New("debt: debtor required")
	}
	if !in.Amount.IsPositive() {
		return errors.New("debt: amount must be positive")
	}
	return nil
}

// Validate checks deduction input.
func (in DeductionInput) Validate() error {
	if in.EmployeeID == 0 {
		return errors.New("debt: employee required")
	}
	if !in.Amount.IsPositive() {
		return errors.New("debt: deduction amount must be positive")
	}
	return nil
}
