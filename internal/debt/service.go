package debt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/payroll"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// LockerPort serialises allocations per debtor.
type LockerPort interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// Service implements the debt settlement waterfall and the deduction fan-out.
type Service struct {
	repo    RepositoryPort
	locker  LockerPort
	metrics *observability.Metrics
	now     func() time.Time
}

// NewService constructs the settlement engine.
func NewService(repo RepositoryPort, locker LockerPort) *Service {
	return &Service{repo: repo, locker: locker, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMetrics attaches allocation counters.
func (s *Service) WithMetrics(m *observability.Metrics) {
	s.metrics = m
}

func (s *Service) markContention() {
	if s.metrics != nil {
		s.metrics.LockContention.Inc()
	}
}

func (s *Service) markAllocated(method PaymentMethod) {
	if s.metrics != nil {
		s.metrics.AllocationsTotal.WithLabelValues(string(method)).Inc()
	}
}

// CreateDebt records a new obligation in ACTIVE status with the full amount
// outstanding.
func (s *Service) CreateDebt(ctx context.Context, input DebtInput) (Debt, error) {
	if err := input.Validate(); err != nil {
		return Debt{}, err
	}
	var created Debt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertDebt(ctx, input)
		return err
	})
	if err != nil {
		return Debt{}, err
	}
	return created, nil
}

// GetDebt retrieves one debt.
func (s *Service) GetDebt(ctx context.Context, id int64) (Debt, error) {
	var debt Debt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		debt, err = tx.GetDebt(ctx, id)
		return err
	})
	return debt, err
}

// ListPayments returns the payment trail for one debt.
func (s *Service) ListPayments(ctx context.Context, debtID int64) ([]Payment, error) {
	var payments []Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		payments, err = tx.ListPayments(ctx, debtID)
		return err
	})
	return payments, err
}

// AllocatePayment distributes amount across the debtor's open debts, oldest
// due date first (FIFO by due date; debts without a due date settle last).
// The per-debtor lock keeps two concurrent allocations from both reading the
// same remaining balances. An unspent remainder is reported, not an error.
func (s *Service) AllocatePayment(ctx context.Context, debtorType DebtorType, debtorID int64, amount decimal.Decimal, method PaymentMethod, notes string) (AllocationResult, error) {
	if !amount.IsPositive() {
		return AllocationResult{}, errors.New("debt: allocation amount must be positive")
	}
	release, err := s.locker.Acquire(ctx, shared.AllocationLockKey(string(debtorType), debtorID))
	if err != nil {
		if errors.Is(err, shared.ErrLockNotAcquired) {
			s.markContention()
		}
		return AllocationResult{}, err
	}
	defer release()

	var result AllocationResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		result, err = s.allocate(ctx, tx, debtorType, debtorID, amount, method, notes)
		return err
	})
	if err != nil {
		return AllocationResult{}, err
	}
	s.markAllocated(method)
	return result, nil
}

// allocate runs the waterfall inside an open transaction.
func (s *Service) allocate(ctx context.Context, tx TxRepository, debtorType DebtorType, debtorID int64, amount decimal.Decimal, method PaymentMethod, notes string) (AllocationResult, error) {
	debts, err := tx.ListOpenDebts(ctx, debtorType, debtorID)
	if err != nil {
		return AllocationResult{}, err
	}
	result := AllocationResult{
		Requested:   amount,
		Allocated:   decimal.Zero,
		Unallocated: amount,
	}
	paidAt := s.now()
	for _, debt := range debts {
		if !result.Unallocated.IsPositive() {
			break
		}
		take := decimal.Min(result.Unallocated, debt.Remaining)
		if !take.IsPositive() {
			continue
		}
		newRemaining := debt.Remaining.Sub(take)
		newStatus := debt.Status
		if newRemaining.IsZero() {
			newStatus = StatusPaid
		}
		if err := tx.ReduceRemaining(ctx, debt.ID, take); err != nil {
			return AllocationResult{}, fmt.Errorf("debt %d: %w", debt.ID, err)
		}
		if _, err := tx.InsertPayment(ctx, Payment{
			DebtID: debt.ID,
			Amount: take,
			PaidAt: paidAt,
			Method: method,
			Notes:  notes,
		}); err != nil {
			return AllocationResult{}, err
		}
		result.Allocations = append(result.Allocations, Allocation{
			DebtID:       debt.ID,
			Allocated:    take,
			NewRemaining: newRemaining,
			NewStatus:    newStatus,
		})
		result.Allocated = result.Allocated.Add(take)
		result.Unallocated = result.Unallocated.Sub(take)
	}
	return result, nil
}

// RecordDeduction records the deduction, adjusts the employee's most recent
// pay-period statement when one exists, and settles the same amount against
// the employee's outstanding debts. All three mutations commit in one
// transaction; a failure leaves both ledgers untouched.
func (s *Service) RecordDeduction(ctx context.Context, input DeductionInput) (DeductionResult, error) {
	if err := input.Validate(); err != nil {
		return DeductionResult{}, err
	}
	if input.Date.IsZero() {
		input.Date = s.now()
	}
	release, err := s.locker.Acquire(ctx, shared.AllocationLockKey(string(DebtorEmployee), input.EmployeeID))
	if err != nil {
		if errors.Is(err, shared.ErrLockNotAcquired) {
			s.markContention()
		}
		return DeductionResult{}, err
	}
	defer release()

	var result DeductionResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		deduction, err := tx.InsertDeduction(ctx, input)
		if err != nil {
			return err
		}
		result.Deduction = deduction

		statement, err := tx.LatestStatement(ctx, input.EmployeeID)
		switch {
		case err == nil:
			if err := tx.ApplyStatementDeduction(ctx, statement.ID, input.Amount); err != nil {
				return err
			}
			result.StatementAdjusted = true
		case errors.Is(err, payroll.ErrStatementNotFound):
			// No statement yet; nothing to adjust and none is fabricated.
		default:
			return err
		}

		notes := fmt.Sprintf("Salary deduction %d", deduction.ID)
		result.Allocation, err = s.allocate(ctx, tx, DebtorEmployee, input.EmployeeID, input.Amount, MethodDeduction, notes)
		return err
	})
	if err != nil {
		return DeductionResult{}, err
	}
	s.markAllocated(MethodDeduction)
	return result, nil
}
