package journal

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates journal entry lifecycle values. Entries created by the
// engine are written atomically in POSTED status; PENDING exists for imports
// staged by outer layers.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusPosted  Status = "POSTED"
)

// Entry captures posting metadata. TotalDebit always equals TotalCredit for
// entries that reach POSTED status.
type Entry struct {
	ID          int64
	BranchID    *int64
	Date        time.Time
	Description string
	Reference   string
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Lines       []Line
}

// Line stores a debit or credit amount for an account. Lines are immutable
// after creation; corrections are made by posting a new reversing entry.
type Line struct {
	ID          int64
	EntryID     int64
	AccountID   int64
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
	CreatedAt   time.Time
}

// LineInput describes a journal line for a posting request.
type LineInput struct {
	AccountID   int64
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	BranchID    *int64
	Date        time.Time
	Description string
	Reference   string
	Lines       []LineInput
}

// ListFilter narrows entry listings.
type ListFilter struct {
	BranchID *int64
	From     time.Time
	To       time.Time
}

// IntegrityIssue describes a posted entry whose stored totals and summed
// lines disagree, or whose lines do not balance.
type IntegrityIssue struct {
	EntryID     int64           `json:"entry_id"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	LineDebit   decimal.Decimal `json:"line_debit"`
	LineCredit  decimal.Decimal `json:"line_credit"`
}

var (
	// ErrUnbalanced indicates debit and credit sums differ.
	ErrUnbalanced = errors.New("journal: entry lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("journal: entry requires at least two lines")
	// ErrUnknownAccount indicates a line references a missing account.
	ErrUnknownAccount = errors.New("journal: line references unknown account")
	// ErrEntryNotFound indicates a missing entry.
	ErrEntryNotFound = errors.New("journal: entry not found")
)

// Validate ensures posting input meets the balance invariant before anything
// is written.
func (in PostingInput) Validate() error {
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	debit := decimal.Zero
	credit := decimal.Zero
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("journal: line %d missing account", idx)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("journal: line %d negative amount", idx)
		}
		if line.Debit.IsPositive() == line.Credit.IsPositive() {
			return fmt.Errorf("journal: line %d must have exactly one non-zero side", idx)
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !debit.Equal(credit) {
		return fmt.Errorf("%w: debit %s credit %s", ErrUnbalanced, debit, credit)
	}
	return nil
}

// Totals returns the debit and credit sums of the input lines.
func (in PostingInput) Totals() (decimal.Decimal, decimal.Decimal) {
	debit := decimal.Zero
	credit := decimal.Zero
	for _, line := range in.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}
