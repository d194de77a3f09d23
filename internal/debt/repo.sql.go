package debt

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/payroll"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository persists debts, payments, and deductions. It also reaches into
// the payroll statement table so the deduction fan-out can adjust statements
// within the same transaction as the debt allocations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	InsertDebt(ctx context.Context, in DebtInput) (Debt, error)
	GetDebt(ctx context.Context, id int64) (Debt, error)
	ListOpenDebts(ctx context.Context, debtorType DebtorType, debtorID int64) ([]Debt, error)
	ReduceRemaining(ctx context.Context, debtID int64, take decimal.Decimal) error
	InsertPayment(ctx context.Context, p Payment) (Payment, error)
	ListPayments(ctx context.Context, debtID int64) ([]Payment, error)
	InsertDeduction(ctx context.Context, in DeductionInput) (Deduction, error)
	LatestStatement(ctx context.Context, employeeID int64) (payroll.Statement, error)
	ApplyStatementDeduction(ctx context.Context, statementID int64, amount decimal.Decimal) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("debt repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const debtColumns = `id, debtor_type, debtor_id, amount, remaining_amount, due_date, status, currency, priority, created_at, updated_at`

func scanDebt(row pgx.Row) (Debt, error) {
	var d Debt
	err := row.Scan(&d.ID, &d.DebtorType, &d.DebtorID, &d.Amount, &d.Remaining, &d.DueDate, &d.Status, &d.Currency, &d.Priority, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func (r *txRepository) InsertDebt(ctx context.Context, in DebtInput) (Debt, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO debts (debtor_type, debtor_id, amount, remaining_amount, due_date, status, currency, priority)
VALUES ($1,$2,$3,$3,$4,'ACTIVE',$5,$6) RETURNING `+debtColumns,
		in.DebtorType, in.DebtorID, in.Amount, in.DueDate, in.Currency, in.Priority)
	return scanDebt(row)
}

func (r *txRepository) GetDebt(ctx context.Context, id int64) (Debt, error) {
	debt, err := scanDebt(r.tx.QueryRow(ctx, `SELECT `+debtColumns+` FROM debts WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Debt{}, ErrDebtNotFound
		}
		return Debt{}, err
	}
	return debt, nil
}

// ListOpenDebts locks the debtor's open debts for the duration of the
// transaction, ordered oldest due date first with undated debts last.
func (r *txRepository) ListOpenDebts(ctx context.Context, debtorType DebtorType, debtorID int64) ([]Debt, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+debtColumns+` FROM debts
WHERE debtor_type=$1 AND debtor_id=$2 AND status='ACTIVE' AND remaining_amount > 0
ORDER BY due_date ASC NULLS LAST, id ASC
FOR UPDATE`, debtorType, debtorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var debts []Debt
	for rows.Next() {
		debt, err := scanDebt(rows)
		if err != nil {
			return nil, err
		}
		debts = append(debts, debt)
	}
	return debts, rows.Err()
}

// ReduceRemaining decrements the outstanding balance in one statement. The
// WHERE clause guards the lower bound; status flips to PAID exactly when the
// balance reaches zero.
func (r *txRepository) ReduceRemaining(ctx context.Context, debtID int64, take decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE debts
SET remaining_amount = remaining_amount - $2,
    status = CASE WHEN remaining_amount - $2 = 0 THEN 'PAID' ELSE status END,
    updated_at = NOW()
WHERE id = $1 AND remaining_amount >= $2`, debtID, take)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM debts WHERE id=$1)`, debtID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrDebtNotFound
		}
		return ErrOverAllocation
	}
	return nil
}

func (r *txRepository) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO debt_payments (debt_id, amount, paid_at, method, notes)
VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at`, p.DebtID, p.Amount, p.PaidAt, p.Method, p.Notes)
	out := p
	if err := row.Scan(&out.ID, &out.CreatedAt); err != nil {
		return Payment{}, err
	}
	return out, nil
}

func (r *txRepository) ListPayments(ctx context.Context, debtID int64) ([]Payment, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, debt_id, amount, paid_at, method, notes, created_at
FROM debt_payments WHERE debt_id=$1 ORDER BY id`, debtID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.DebtID, &p.Amount, &p.PaidAt, &p.Method, &p.Notes, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *txRepository) InsertDeduction(ctx context.Context, in DeductionInput) (Deduction, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO deductions (employee_id, amount, type, date, description)
VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at`, in.EmployeeID, in.Amount, in.Type, in.Date, in.Description)
	deduction := Deduction{
		EmployeeID:  in.EmployeeID,
		Amount:      in.Amount,
		Type:        in.Type,
		Date:        in.Date,
		Description: in.Description,
	}
	if err := row.Scan(&deduction.ID, &deduction.CreatedAt); err != nil {
		return Deduction{}, err
	}
	return deduction, nil
}

func (r *txRepository) LatestStatement(ctx context.Context, employeeID int64) (payroll.Statement, error) {
	var s payroll.Statement
	err := r.tx.QueryRow(ctx, `SELECT id, employee_id, year, month, base, overtime, bonuses, total_deductions, net_salary, created_at, updated_at
FROM salary_statements WHERE employee_id=$1 ORDER BY year DESC, month DESC LIMIT 1 FOR UPDATE`, employeeID).
		Scan(&s.ID, &s.EmployeeID, &s.Year, &s.Month, &s.Base, &s.Overtime, &s.Bonuses, &s.TotalDeductions, &s.NetSalary, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return payroll.Statement{}, payroll.ErrStatementNotFound
		}
		return payroll.Statement{}, err
	}
	return s, nil
}

// ApplyStatementDeduction bumps totalDeductions and recomputes netSalary in a
// single statement so the statement invariant holds under concurrency.
func (r *txRepository) ApplyStatementDeduction(ctx context.Context, statementID int64, amount decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE salary_statements
SET total_deductions = total_deductions + $2,
    net_salary = base + overtime + bonuses - (total_deductions + $2),
    updated_at = NOW()
WHERE id = $1`, statementID, amount)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return payroll.ErrStatementNotFound
	}
	return nil
}
