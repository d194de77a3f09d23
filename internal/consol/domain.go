package consol

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/coa"
)

// ReportType enumerates supported consolidation reports.
type ReportType string

const (
	ReportFinancialSummary ReportType = "FINANCIAL_SUMMARY"
	ReportTrialBalance     ReportType = "TRIAL_BALANCE"
)

// ReportStatus enumerates report lifecycle values. Generated reports start as
// drafts.
type ReportStatus string

const (
	ReportStatusDraft ReportStatus = "DRAFT"
	ReportStatusFinal ReportStatus = "FINAL"
)

// Input encapsulates parameters for one consolidation run.
type Input struct {
	ReportType ReportType
	Period     string
	Start      time.Time
	End        time.Time
	BranchIDs  []int64
}

// BranchFinancials summarises one branch's revenue and expenses in range.
type BranchFinancials struct {
	BranchID int64           `json:"branch_id"`
	Revenue  decimal.Decimal `json:"revenue"`
	Expenses decimal.Decimal `json:"expenses"`
}

// Summary aggregates branch financials into group totals.
type Summary struct {
	TotalRevenue  decimal.Decimal    `json:"total_revenue"`
	TotalExpenses decimal.Decimal    `json:"total_expenses"`
	NetIncome     decimal.Decimal    `json:"net_income"`
	Branches      []BranchFinancials `json:"branches"`
}

// MemberBalance is one branch account's contribution to a consolidated group.
type MemberBalance struct {
	AccountID int64           `json:"account_id"`
	BranchID  *int64          `json:"branch_id"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
}

// GroupBalance is the rolled-up balance for one consolidation group. Accounts
// with no consolidation link form their own single-member group.
type GroupBalance struct {
	GroupAccountID int64           `json:"group_account_id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	NormalSide     coa.NormalSide  `json:"normal_side"`
	TotalDebit     decimal.Decimal `json:"total_debit"`
	TotalCredit    decimal.Decimal `json:"total_credit"`
	Balance        decimal.Decimal `json:"balance"`
	Members        []MemberBalance `json:"members"`
}

// Report is the persisted consolidation artifact.
type Report struct {
	ID          int64          `json:"id"`
	Type        ReportType     `json:"type"`
	Period      string         `json:"period"`
	Start       time.Time      `json:"start"`
	End         time.Time      `json:"end"`
	BranchIDs   []int64        `json:"branch_ids"`
	Status      ReportStatus   `json:"status"`
	Balanced    bool           `json:"balanced"`
	Summary     Summary        `json:"summary"`
	Groups      []GroupBalance `json:"groups"`
	GeneratedAt time.Time      `json:"generated_at"`
	CreatedAt   time.Time      `json:"created_at"`
}

// AccountRow is the repository projection used for tree aggregation.
type AccountRow struct {
	AccountID       int64
	BranchID        *int64
	Code            string
	Name            string
	NormalSide      coa.NormalSide
	ConsolidationID *int64
	GroupCode       *string
	GroupName       *string
	Debit           decimal.Decimal
	Credit          decimal.Decimal
}

// ErrConsolidationFetch indicates a branch's financial data could not be
// read. The whole report aborts; a partial financial statement is worse than
// none.
var ErrConsolidationFetch = errors.New("consol: branch data fetch failed")

// Validate checks consolidation input.
func (in Input) Validate() error {
	if in.ReportType != ReportFinancialSummary && in.ReportType != ReportTrialBalance {
		return errors.New("consol: unknown report type")
	}
	if len(in.BranchIDs) == 0 {
		return errors.New("consol: at least one branch required")
	}
	if in.Start.IsZero() || in.End.IsZero() || in.End.Before(in.Start) {
		return errors.New("consol: invalid date range")
	}
	return nil
}
