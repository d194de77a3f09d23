package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Service maintains product stock levels and the movement trail.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService constructs the inventory service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ApplyMovement adjusts a product's on-hand quantity and appends the movement
// record in one transaction. The quantity adjustment is a single-statement
// increment so concurrent movements never lose updates.
func (s *Service) ApplyMovement(ctx context.Context, input MovementInput) (Movement, error) {
	if err := input.Validate(); err != nil {
		return Movement{}, err
	}
	if input.OccurredAt.IsZero() {
		input.OccurredAt = s.now()
	}
	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.AdjustProductQty(ctx, input.ProductID, input.Qty); err != nil {
			return err
		}
		var err error
		movement, err = tx.InsertMovement(ctx, input)
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	return movement, nil
}

// CurrentCost resolves the product's current purchase price. Cost-of-goods
// postings read this at posting time rather than a historical snapshot.
func (s *Service) CurrentCost(ctx context.Context, productID int64) (decimal.Decimal, error) {
	var cost decimal.Decimal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		cost = product.PurchasePrice
		return nil
	})
	return cost, err
}

// ListMovements returns the movement trail for a product, newest first.
func (s *Service) ListMovements(ctx context.Context, productID int64) ([]Movement, error) {
	var movements []Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		movements, err = tx.ListMovements(ctx, productID)
		return err
	})
	return movements, err
}
