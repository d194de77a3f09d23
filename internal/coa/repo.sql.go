package coa

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository persists chart of accounts entities.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	InsertCategory(ctx context.Context, in CategoryInput) (Category, error)
	GetCategory(ctx context.Context, id int64) (Category, error)
	ListCategories(ctx context.Context) ([]Category, error)
	InsertAccount(ctx context.Context, in AccountInput) (Account, error)
	GetAccount(ctx context.Context, id int64) (Account, error)
	GetAccountByCode(ctx context.Context, code string) (Account, error)
	ListAccountsByBranch(ctx context.Context, branchID *int64) ([]Account, error)
	ApplyLine(ctx context.Context, accountID int64, debit, credit decimal.Decimal) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("coa repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const accountColumns = `id, code, name, category_id, branch_id, parent_id, consolidation_account_id, debit_balance, credit_balance, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.CategoryID, &a.BranchID, &a.ParentID, &a.ConsolidationAccountID, &a.DebitBalance, &a.CreditBalance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *txRepository) InsertCategory(ctx context.Context, in CategoryInput) (Category, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO account_categories (name, code, normal_side, level)
VALUES ($1,$2,$3,$4) RETURNING id, created_at, updated_at`, in.Name, in.Code, in.NormalSide, in.Level)
	cat := Category{Name: in.Name, Code: in.Code, NormalSide: in.NormalSide, Level: in.Level}
	if err := row.Scan(&cat.ID, &cat.CreatedAt, &cat.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return Category{}, ErrDuplicateCode
		}
		return Category{}, err
	}
	return cat, nil
}

func (r *txRepository) GetCategory(ctx context.Context, id int64) (Category, error) {
	var c Category
	err := r.tx.QueryRow(ctx, `SELECT id, name, code, normal_side, level, created_at, updated_at
FROM account_categories WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.Code, &c.NormalSide, &c.Level, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Category{}, ErrUnknownCategory
		}
		return Category{}, err
	}
	return c, nil
}

func (r *txRepository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, name, code, normal_side, level, created_at, updated_at
FROM account_categories ORDER BY level, code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Code, &c.NormalSide, &c.Level, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *txRepository) InsertAccount(ctx context.Context, in AccountInput) (Account, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO accounts (code, name, category_id, branch_id, parent_id, consolidation_account_id, debit_balance, credit_balance, is_active)
VALUES ($1,$2,$3,$4,$5,$6,0,0,TRUE) RETURNING `+accountColumns, in.Code, in.Name, in.CategoryID, in.BranchID, in.ParentID, in.ConsolidationAccountID)
	account, err := scanAccount(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Account{}, ErrDuplicateCode
		}
		return Account{}, err
	}
	return account, nil
}

func (r *txRepository) GetAccount(ctx context.Context, id int64) (Account, error) {
	account, err := scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return account, nil
}

func (r *txRepository) GetAccountByCode(ctx context.Context, code string) (Account, error) {
	account, err := scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code=$1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return account, nil
}

func (r *txRepository) ListAccountsByBranch(ctx context.Context, branchID *int64) ([]Account, error) {
	var rows pgx.Rows
	var err error
	if branchID == nil {
		rows, err = r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE branch_id IS NULL ORDER BY code`)
	} else {
		rows, err = r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE branch_id=$1 ORDER BY code`, *branchID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// ApplyLine mutates the running balances in a single round trip so concurrent
// postings to the same account never lose updates.
func (r *txRepository) ApplyLine(ctx context.Context, accountID int64, debit, credit decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts
SET debit_balance = debit_balance + $2, credit_balance = credit_balance + $3, updated_at = NOW()
WHERE id = $1`, accountID, debit, credit)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
