package journal

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository persists journal entries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	InsertEntry(ctx context.Context, in PostingInput) (Entry, error)
	InsertLines(ctx context.Context, entryID int64, lines []LineInput) ([]Line, error)
	ApplyLine(ctx context.Context, accountID int64, debit, credit decimal.Decimal) error
	GetEntryWithLines(ctx context.Context, entryID int64) (Entry, error)
	ListEntries(ctx context.Context, filter ListFilter) ([]Entry, error)
	ListUnbalanced(ctx context.Context) ([]IntegrityIssue, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("journal repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *txRepository) InsertEntry(ctx context.Context, in PostingInput) (Entry, error) {
	debit, credit := in.Totals()
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (branch_id, date, description, reference, total_debit, total_credit, status)
VALUES ($1,$2,$3,$4,$5,$6,'POSTED') RETURNING id, created_at, updated_at`,
		in.BranchID, in.Date, in.Description, in.Reference, debit, credit)
	entry := Entry{
		BranchID:    in.BranchID,
		Date:        in.Date,
		Description: in.Description,
		Reference:   in.Reference,
		TotalDebit:  debit,
		TotalCredit: credit,
		Status:      StatusPosted,
	}
	if err := row.Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []LineInput) ([]Line, error) {
	out := make([]Line, 0, len(lines))
	for _, line := range lines {
		row := r.tx.QueryRow(ctx, `INSERT INTO journal_entry_lines (entry_id, account_id, debit, credit, description)
VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at`, entryID, line.AccountID, line.Debit, line.Credit, line.Description)
		inserted := Line{
			EntryID:     entryID,
			AccountID:   line.AccountID,
			Debit:       line.Debit,
			Credit:      line.Credit,
			Description: line.Description,
		}
		if err := row.Scan(&inserted.ID, &inserted.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, inserted)
	}
	return out, nil
}

// ApplyLine mutates account balances inside the posting transaction. The
// single-statement increment keeps concurrent postings to the same account
// from losing updates.
func (r *txRepository) ApplyLine(ctx context.Context, accountID int64, debit, credit decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts
SET debit_balance = debit_balance + $2, credit_balance = credit_balance + $3, updated_at = NOW()
WHERE id = $1`, accountID, debit, credit)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUnknownAccount
	}
	return nil
}

const entryColumns = `id, branch_id, date, description, reference, total_debit, total_credit, status, created_at, updated_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.BranchID, &e.Date, &e.Description, &e.Reference, &e.TotalDebit, &e.TotalCredit, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func (r *txRepository) GetEntryWithLines(ctx context.Context, entryID int64) (Entry, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, entryID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, entry_id, account_id, debit, credit, description, created_at
FROM journal_entry_lines WHERE entry_id=$1 ORDER BY id`, entryID)
	if err != nil {
		return Entry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Debit, &line.Credit, &line.Description, &line.CreatedAt); err != nil {
			return Entry{}, err
		}
		entry.Lines = append(entry.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (r *txRepository) ListEntries(ctx context.Context, filter ListFilter) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM journal_entries WHERE 1=1`
	args := []any{}
	idx := 1
	if filter.BranchID != nil {
		query += ` AND branch_id = $` + strconv.Itoa(idx)
		args = append(args, *filter.BranchID)
		idx++
	}
	if !filter.From.IsZero() {
		query += ` AND date >= $` + strconv.Itoa(idx)
		args = append(args, filter.From)
		idx++
	}
	if !filter.To.IsZero() {
		query += ` AND date <= $` + strconv.Itoa(idx)
		args = append(args, filter.To)
		idx++
	}
	query += ` ORDER BY id DESC`
	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ListUnbalanced finds posted entries whose line sums disagree with each
// other or with the stored totals.
func (r *txRepository) ListUnbalanced(ctx context.Context) ([]IntegrityIssue, error) {
	rows, err := r.tx.Query(ctx, `SELECT e.id, e.total_debit, e.total_credit,
  COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM journal_entries e
LEFT JOIN journal_entry_lines l ON l.entry_id = e.id
WHERE e.status = 'POSTED'
GROUP BY e.id, e.total_debit, e.total_credit
HAVING COALESCE(SUM(l.debit), 0) <> COALESCE(SUM(l.credit), 0)
    OR COALESCE(SUM(l.debit), 0) <> e.total_debit
    OR COALESCE(SUM(l.credit), 0) <> e.total_credit
ORDER BY e.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var issues []IntegrityIssue
	for rows.Next() {
		var issue IntegrityIssue
		if err := rows.Scan(&issue.EntryID, &issue.TotalDebit, &issue.TotalCredit, &issue.LineDebit, &issue.LineCredit); err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}
