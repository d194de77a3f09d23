package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository persists inventory entities.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	AdjustProductQty(ctx context.Context, productID int64, delta decimal.Decimal) error
	GetProduct(ctx context.Context, productID int64) (Product, error)
	InsertMovement(ctx context.Context, in MovementInput) (Movement, error)
	ListMovements(ctx context.Context, productID int64) ([]Movement, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// AdjustProductQty increments on-hand quantity in place. The WHERE clause
// rejects adjustments that would drive the quantity negative.
func (r *txRepository) AdjustProductQty(ctx context.Context, productID int64, delta decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE products
SET quantity = quantity + $2, updated_at = NOW()
WHERE id = $1 AND quantity + $2 >= 0`, productID, delta)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id=$1)`, productID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrProductNotFound
		}
		return ErrInsufficientStock
	}
	return nil
}

func (r *txRepository) GetProduct(ctx context.Context, productID int64) (Product, error) {
	var p Product
	err := r.tx.QueryRow(ctx, `SELECT id, sku, name, quantity, purchase_price, updated_at FROM products WHERE id=$1`, productID).
		Scan(&p.ID, &p.SKU, &p.Name, &p.Quantity, &p.PurchasePrice, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

func (r *txRepository) InsertMovement(ctx context.Context, in MovementInput) (Movement, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO inventory_movements (product_id, branch_id, type, qty, unit_cost, reference, note, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, created_at`,
		in.ProductID, in.BranchID, in.Type, in.Qty, in.UnitCost, in.Reference, in.Note, in.OccurredAt)
	movement := Movement{
		ProductID:  in.ProductID,
		BranchID:   in.BranchID,
		Type:       in.Type,
		Qty:        in.Qty,
		UnitCost:   in.UnitCost,
		Reference:  in.Reference,
		Note:       in.Note,
		OccurredAt: in.OccurredAt,
	}
	if err := row.Scan(&movement.ID, &movement.CreatedAt); err != nil {
		return Movement{}, err
	}
	return movement, nil
}

func (r *txRepository) ListMovements(ctx context.Context, productID int64) ([]Movement, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, product_id, branch_id, type, qty, unit_cost, reference, note, occurred_at, created_at
FROM inventory_movements WHERE product_id=$1 ORDER BY id DESC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.BranchID, &m.Type, &m.Qty, &m.UnitCost, &m.Reference, &m.Note, &m.OccurredAt, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}
