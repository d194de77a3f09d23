package coa

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// NormalSide indicates whether an account balance grows with debits or credits.
type NormalSide string

const (
	NormalSideDebit  NormalSide = "DEBIT"
	NormalSideCredit NormalSide = "CREDIT"
)

// Category models a chart of accounts grouping. Categories are created once at
// bootstrap and are immutable while accounts reference them.
type Category struct {
	ID         int64
	Name       string
	Code       string
	NormalSide NormalSide
	Level      int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Account models a chart of accounts node. BranchID is nil for central (group)
// accounts; branch-scoped accounts carry a consolidation link back to the
// central account they roll up into.
type Account struct {
	ID                     int64
	Code                   string
	Name                   string
	CategoryID             int64
	BranchID               *int64
	ParentID               *int64
	ConsolidationAccountID *int64
	DebitBalance           decimal.Decimal
	CreditBalance          decimal.Decimal
	IsActive               bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Balance interprets the account's running totals according to the category's
// normal side.
func (a Account) Balance(side NormalSide) decimal.Decimal {
	if side == NormalSideCredit {
		return a.CreditBalance.Sub(a.DebitBalance)
	}
	return a.DebitBalance.Sub(a.CreditBalance)
}

// CategoryInput groups fields for creating a category.
type CategoryInput struct {
	Name       string
	Code       string
	NormalSide NormalSide
	Level      int
}

// AccountInput groups fields for creating an account.
type AccountInput struct {
	Code                   string
	Name                   string
	CategoryID             int64
	BranchID               *int64
	ParentID               *int64
	ConsolidationAccountID *int64
}

var (
	// ErrDuplicateCode indicates a code collision within the same scope.
	ErrDuplicateCode = errors.New("coa: code already exists")
	// ErrUnknownCategory indicates the referenced category does not exist.
	ErrUnknownCategory = errors.New("coa: unknown category")
	// ErrAccountNotFound indicates lookup failure by id or code.
	ErrAccountNotFound = errors.New("coa: account not found")
	// ErrBranchProvisioned indicates the branch already has a chart of accounts.
	ErrBranchProvisioned = errors.New("coa: branch already provisioned")
)

// Validate checks category creation input.
func (in CategoryInput) Validate() error {
	if in.Name == "" || in.Code == "" {
		return errors.New("coa: category name and code required")
	}
	if in.NormalSide != NormalSideDebit && in.NormalSide != NormalSideCredit {
		return fmt.Errorf("coa: invalid normal side %q", in.NormalSide)
	}
	if in.Level < 0 {
		return errors.New("coa: category level must not be negative")
	}
	return nil
}

// Validate checks account creation input.
func (in AccountInput) Validate() error {
	if in.Code == "" || in.Name == "" {
		return errors.New("coa: account code and name required")
	}
	if in.CategoryID == 0 {
		return errors.New("coa: category required")
	}
	return nil
}
