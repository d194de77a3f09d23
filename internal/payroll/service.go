package payroll

import (
	"context"
	"time"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Service manages pay-period statements. Deduction fan-out lives in the debt
// settlement engine, which adjusts statements through its own transaction.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService constructs the payroll service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// CreateStatement opens a new pay-period statement with net salary computed
// from its components.
func (s *Service) CreateStatement(ctx context.Context, input StatementInput) (Statement, error) {
	if err := input.Validate(); err != nil {
		return Statement{}, err
	}
	var created Statement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertStatement(ctx, input)
		return err
	})
	if err != nil {
		return Statement{}, err
	}
	return created, nil
}

// LatestStatement returns the employee's most recent statement by year then
// month.
func (s *Service) LatestStatement(ctx context.Context, employeeID int64) (Statement, error) {
	var statement Statement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		statement, err = tx.LatestStatement(ctx, employeeID)
		return err
	})
	return statement, err
}

// ListStatements returns all statements for one employee, newest first.
func (s *Service) ListStatements(ctx context.Context, employeeID int64) ([]Statement, error) {
	var statements []Statement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		statements, err = tx.ListStatements(ctx, employeeID)
		return err
	})
	return statements, err
}
