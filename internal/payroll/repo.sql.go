package payroll

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository persists payroll statements.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	InsertStatement(ctx context.Context, in StatementInput) (Statement, error)
	LatestStatement(ctx context.Context, employeeID int64) (Statement, error)
	ListStatements(ctx context.Context, employeeID int64) ([]Statement, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("payroll repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const statementColumns = `id, employee_id, year, month, base, overtime, bonuses, total_deductions, net_salary, created_at, updated_at`

func scanStatement(row pgx.Row) (Statement, error) {
	var s Statement
	err := row.Scan(&s.ID, &s.EmployeeID, &s.Year, &s.Month, &s.Base, &s.Overtime, &s.Bonuses, &s.TotalDeductions, &s.NetSalary, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (r *txRepository) InsertStatement(ctx context.Context, in StatementInput) (Statement, error) {
	net := in.Base.Add(in.Overtime).Add(in.Bonuses)
	row := r.tx.QueryRow(ctx, `INSERT INTO salary_statements (employee_id, year, month, base, overtime, bonuses, total_deductions, net_salary)
VALUES ($1,$2,$3,$4,$5,$6,0,$7) RETURNING `+statementColumns,
		in.EmployeeID, in.Year, in.Month, in.Base, in.Overtime, in.Bonuses, net)
	statement, err := scanStatement(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Statement{}, ErrDuplicateStatement
		}
		return Statement{}, err
	}
	return statement, nil
}

func (r *txRepository) LatestStatement(ctx context.Context, employeeID int64) (Statement, error) {
	statement, err := scanStatement(r.tx.QueryRow(ctx, `SELECT `+statementColumns+`
FROM salary_statements WHERE employee_id=$1 ORDER BY year DESC, month DESC LIMIT 1`, employeeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Statement{}, ErrStatementNotFound
		}
		return Statement{}, err
	}
	return statement, nil
}

func (r *txRepository) ListStatements(ctx context.Context, employeeID int64) ([]Statement, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+statementColumns+`
FROM salary_statements WHERE employee_id=$1 ORDER BY year DESC, month DESC`, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var statements []Statement
	for rows.Next() {
		statement, err := scanStatement(rows)
		if err != nil {
			return nil, err
		}
		statements = append(statements, statement)
	}
	return statements, rows.Err()
}
