package payroll

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Statement is one employee's pay-period record. NetSalary always equals
// base + overtime + bonuses - totalDeductions.
type Statement struct {
	ID              int64
	EmployeeID      int64
	Year            int
	Month           int
	Base            decimal.Decimal
	Overtime        decimal.Decimal
	Bonuses         decimal.Decimal
	TotalDeductions decimal.Decimal
	NetSalary       decimal.Decimal
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Net computes the statement's net salary from its components.
func (s Statement) Net() decimal.Decimal {
	return s.Base.Add(s.Overtime).Add(s.Bonuses).Sub(s.TotalDeductions)
}

// StatementInput groups fields for creating a statement.
type StatementInput struct {
	EmployeeID int64
	Year       int
	Month      int
	Base       decimal.Decimal
	Overtime   decimal.Decimal
	Bonuses    decimal.Decimal
}

var (
	// ErrStatementNotFound indicates no statement exists for the scope.
	ErrStatementNotFound = errors.New("payroll: statement not found")
	// ErrDuplicateStatement indicates a statement already exists for the period.
	ErrDuplicateStatement = errors.New("payroll: statement already exists for period")
)

// Validate checks statement creation input.
func (in StatementInput) Validate() error {
	if in.EmployeeID == 0 {
		return errors.New("payroll: employee required")
	}
	if in.Year < 2000 || in.Year > 2200 {
		return errors.New("payroll: implausible year")
	}
	if in.Month < 1 || in.Month > 12 {
		return errors.New("payroll: month out of range")
	}
	if in.Base.IsNegative() || in.Overtime.IsNegative() || in.Bonuses.IsNegative() {
		return errors.New("payroll: amounts must not be negative")
	}
	return nil
}
