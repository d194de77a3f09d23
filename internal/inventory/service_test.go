package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryInventoryRepo struct {
	products  map[int64]Product
	movements map[int64][]Movement
	nextMove  int64
}

func newMemoryInventoryRepo(products ...Product) *memoryInventoryRepo {
	repo := &memoryInventoryRepo{
		products:  make(map[int64]Product),
		movements: make(map[int64][]Movement),
	}
	for _, p := range products {
		repo.products[p.ID] = p
	}
	return repo
}

func (r *memoryInventoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryInventoryRepo) AdjustProductQty(ctx context.Context, productID int64, delta decimal.Decimal) error {
	product, ok := r.products[productID]
	if !ok {
		return ErrProductNotFound
	}
	next := product.Quantity.Add(delta)
	if next.IsNegative() {
		return ErrInsufficientStock
	}
	product.Quantity = next
	r.products[productID] = product
	return nil
}

func (r *memoryInventoryRepo) GetProduct(ctx context.Context, productID int64) (Product, error) {
	product, ok := r.products[productID]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return product, nil
}

func (r *memoryInventoryRepo) InsertMovement(ctx context.Context, in MovementInput) (Movement, error) {
	r.nextMove++
	movement := Movement{
		ID:         r.nextMove,
		ProductID:  in.ProductID,
		BranchID:   in.BranchID,
		Type:       in.Type,
		Qty:        in.Qty,
		UnitCost:   in.UnitCost,
		Reference:  in.Reference,
		Note:       in.Note,
		OccurredAt: in.OccurredAt,
		CreatedAt:  time.Now(),
	}
	r.movements[in.ProductID] = append([]Movement{movement}, r.movements[in.ProductID]...)
	return movement, nil
}

func (r *memoryInventoryRepo) ListMovements(ctx context.Context, productID int64) ([]Movement, error) {
	return append([]Movement(nil), r.movements[productID]...), nil
}

func TestApplyMovementAdjustsQuantity(t *testing.T) {
	repo := newMemoryInventoryRepo(Product{ID: 1, SKU: "SKU-1", Quantity: decimal.NewFromInt(10), PurchasePrice: decimal.NewFromInt(40)})
	svc := NewService(repo)

	movement, err := svc.ApplyMovement(context.Background(), MovementInput{
		ProductID: 1,
		Type:      MovementTypeSale,
		Qty:       decimal.NewFromInt(-3),
		Reference: "INV-1",
	})
	require.NoError(t, err)
	require.True(t, movement.Qty.Equal(decimal.NewFromInt(-3)))
	require.True(t, repo.products[1].Quantity.Equal(decimal.NewFromInt(7)))
	require.False(t, movement.OccurredAt.IsZero())
}

func TestApplyMovementRejectsOversell(t *testing.T) {
	repo := newMemoryInventoryRepo(Product{ID: 1, Quantity: decimal.NewFromInt(2)})
	svc := NewService(repo)

	_, err := svc.ApplyMovement(context.Background(), MovementInput{
		ProductID: 1,
		Type:      MovementTypeSale,
		Qty:       decimal.NewFromInt(-5),
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Empty(t, repo.movements[1])
}

func TestApplyMovementValidatesSign(t *testing.T) {
	svc := NewService(newMemoryInventoryRepo(Product{ID: 1, Quantity: decimal.NewFromInt(5)}))

	_, err := svc.ApplyMovement(context.Background(), MovementInput{
		ProductID: 1,
		Type:      MovementTypeSale,
		Qty:       decimal.NewFromInt(5),
	})
	require.Error(t, err)

	_, err = svc.ApplyMovement(context.Background(), MovementInput{
		ProductID: 1,
		Type:      MovementTypePurchase,
		Qty:       decimal.NewFromInt(-5),
	})
	require.Error(t, err)
}

func TestCurrentCostReadsPurchasePrice(t *testing.T) {
	svc := NewService(newMemoryInventoryRepo(Product{ID: 1, PurchasePrice: decimal.NewFromInt(42)}))

	cost, err := svc.CurrentCost(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, cost.Equal(decimal.NewFromInt(42)))

	_, err = svc.CurrentCost(context.Background(), 99)
	require.ErrorIs(t, err, ErrProductNotFound)
}
