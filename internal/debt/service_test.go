package debt

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/payroll"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryDebtRepo struct {
	debts      map[int64]Debt
	payments   map[int64][]Payment
	deductions map[int64]Deduction
	statements map[int64]payroll.Statement
	nextDebt   int64
	nextPay    int64
	nextDed    int64
	txCount    int
}

func newMemoryDebtRepo() *memoryDebtRepo {
	return &memoryDebtRepo{
		debts:      make(map[int64]Debt),
		payments:   make(map[int64][]Payment),
		deductions: make(map[int64]Deduction),
		statements: make(map[int64]payroll.Statement),
	}
}

func (r *memoryDebtRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.txCount++
	return fn(ctx, r)
}

func (r *memoryDebtRepo) InsertDebt(ctx context.Context, in DebtInput) (Debt, error) {
	r.nextDebt++
	debt := Debt{
		ID:         r.nextDebt,
		DebtorType: in.DebtorType,
		DebtorID:   in.DebtorID,
		Amount:     in.Amount,
		Remaining:  in.Amount,
		DueDate:    in.DueDate,
		Status:     StatusActive,
		Currency:   in.Currency,
		Priority:   in.Priority,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	r.debts[debt.ID] = debt
	return debt, nil
}

func (r *memoryDebtRepo) GetDebt(ctx context.Context, id int64) (Debt, error) {
	debt, ok := r.debts[id]
	if !ok {
		return Debt{}, ErrDebtNotFound
	}
	return debt, nil
}

func (r *memoryDebtRepo) ListOpenDebts(ctx context.Context, debtorType DebtorType, debtorID int64) ([]Debt, error) {
	var out []Debt
	for _, d := range r.debts {
		if d.DebtorType == debtorType && d.DebtorID == debtorID && d.Status == StatusActive && d.Remaining.IsPositive() {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := out[i].DueDate, out[j].DueDate
		switch {
		case di == nil && dj == nil:
			return out[i].ID < out[j].ID
		case di == nil:
			return false
		case dj == nil:
			return true
		case !di.Equal(*dj):
			return di.Before(*dj)
		default:
			return out[i].ID < out[j].ID
		}
	})
	return out, nil
}

func (r *memoryDebtRepo) ReduceRemaining(ctx context.Context, debtID int64, take decimal.Decimal) error {
	debt, ok := r.debts[debtID]
	if !ok {
		return ErrDebtNotFound
	}
	if debt.Remaining.LessThan(take) {
		return ErrOverAllocation
	}
	debt.Remaining = debt.Remaining.Sub(take)
	if debt.Remaining.IsZero() {
		debt.Status = StatusPaid
	}
	r.debts[debtID] = debt
	return nil
}

func (r *memoryDebtRepo) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	r.nextPay++
	p.ID = r.nextPay
	p.CreatedAt = time.Now()
	r.payments[p.DebtID] = append(r.payments[p.DebtID], p)
	return p, nil
}

func (r *memoryDebtRepo) ListPayments(ctx context.Context, debtID int64) ([]Payment, error) {
	return append([]Payment(nil), r.payments[debtID]...), nil
}

func (r *memoryDebtRepo) InsertDeduction(ctx context.Context, in DeductionInput) (Deduction, error) {
	r.nextDed++
	ded := Deduction{
		ID:          r.nextDed,
		EmployeeID:  in.EmployeeID,
		Amount:      in.Amount,
		Type:        in.Type,
		Date:        in.Date,
		Description: in.Description,
		CreatedAt:   time.Now(),
	}
	r.deductions[ded.ID] = ded
	return ded, nil
}

func (r *memoryDebtRepo) LatestStatement(ctx context.Context, employeeID int64) (payroll.Statement, error) {
	var latest payroll.Statement
	found := false
	for _, s := range r.statements {
		if s.EmployeeID != employeeID {
			continue
		}
		if !found || s.Year > latest.Year || (s.Year == latest.Year && s.Month > latest.Month) {
			latest = s
			found = true
		}
	}
	if !found {
		return payroll.Statement{}, payroll.ErrStatementNotFound
	}
	return latest, nil
}

func (r *memoryDebtRepo) ApplyStatementDeduction(ctx context.Context, statementID int64, amount decimal.Decimal) error {
	statement, ok := r.statements[statementID]
	if !ok {
		return payroll.ErrStatementNotFound
	}
	statement.TotalDeductions = statement.TotalDeductions.Add(amount)
	statement.NetSalary = statement.Net()
	r.statements[statementID] = statement
	return nil
}

type fakeLocker struct {
	acquired int
	released int
	fail     bool
}

func (l *fakeLocker) Acquire(ctx context.Context, key string) (func(), error) {
	if l.fail {
		return nil, shared.ErrLockNotAcquired
	}
	l.acquired++
	return func() { l.released++ }, nil
}

func dueOn(year int, month time.Month, day int) *time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &d
}

func seedDebt(t *testing.T, svc *Service, debtorID int64, amount int64, due *time.Time) Debt {
	t.Helper()
	debt, err := svc.CreateDebt(context.Background(), DebtInput{
		DebtorType: DebtorEmployee,
		DebtorID:   debtorID,
		Amount:     decimal.NewFromInt(amount),
		DueDate:    due,
	})
	require.NoError(t, err)
	return debt
}

func TestAllocatePaymentWaterfall(t *testing.T) {
	repo := newMemoryDebtRepo()
	locker := &fakeLocker{}
	svc := NewService(repo, locker)

	d1 := seedDebt(t, svc, 1, 500, dueOn(2025, time.July, 1))
	d2 := seedDebt(t, svc, 1, 300, dueOn(2025, time.August, 1))

	result, err := svc.AllocatePayment(context.Background(), DebtorEmployee, 1, decimal.NewFromInt(600), MethodCash, "")
	require.NoError(t, err)
	require.True(t, result.Allocated.Equal(decimal.NewFromInt(600)))
	require.True(t, result.Unallocated.IsZero())
	require.Len(t, result.Allocations, 2)

	// Oldest due date settles first and in full.
	require.Equal(t, d1.ID, result.Allocations[0].DebtID)
	require.True(t, result.Allocations[0].Allocated.Equal(decimal.NewFromInt(500)))
	require.Equal(t, StatusPaid, result.Allocations[0].NewStatus)
	require.Equal(t, d2.ID, result.Allocations[1].DebtID)
	require.True(t, result.Allocations[1].Allocated.Equal(decimal.NewFromInt(100)))
	require.Equal(t, StatusActive, result.Allocations[1].NewStatus)

	require.Equal(t, StatusPaid, repo.debts[d1.ID].Status)
	require.True(t, repo.debts[d2.ID].Remaining.Equal(decimal.NewFromInt(200)))
	require.Equal(t, 1, locker.acquired)
	require.Equal(t, 1, locker.released)
}

func TestAllocatePaymentOverrunReportsRemainder(t *testing.T) {
	repo := newMemoryDebtRepo()
	svc := NewService(repo, &fakeLocker{})
	d := seedDebt(t, svc, 1, 500, dueOn(2025, time.July, 1))

	result, err := svc.AllocatePayment(context.Background(), DebtorEmployee, 1, decimal.NewFromInt(800), MethodTransfer, "")
	require.NoError(t, err)
	require.True(t, result.Allocated.Equal(decimal.NewFromInt(500)))
	require.True(t, result.Unallocated.Equal(decimal.NewFromInt(300)))
	require.Equal(t, StatusPaid, repo.debts[d.ID].Status)
}

func TestAllocatePaymentUndatedDebtsSettleLast(t *testing.T) {
	repo := newMemoryDebtRepo()
	svc := NewService(repo, &fakeLocker{})

	undated := seedDebt(t, svc, 1, 200, nil)
	dated := seedDebt(t, svc, 1, 200, dueOn(2025, time.September, 1))

	result, err := svc.AllocatePayment(context.Background(), DebtorEmployee, 1, decimal.NewFromInt(250), MethodCash, "")
	require.NoError(t, err)
	require.Equal(t, dated.ID, result.Allocations[0].DebtID)
	require.Equal(t, undated.ID, result.Allocations[1].DebtID)
	require.True(t, result.Allocations[1].Allocated.Equal(decimal.NewFromInt(50)))
}

func TestAllocatePaymentKeepsPaymentSumInvariant(t *testing.T) {
	repo := newMemoryDebtRepo()
	svc := NewService(repo, &fakeLocker{})
	debt := seedDebt(t, svc, 1, 400, dueOn(2025, time.July, 1))

	for _, amount := range []int64{100, 150, 150} {
		_, err := svc.AllocatePayment(context.Background(), DebtorEmployee, 1, decimal.NewFromInt(amount), MethodCash, "")
		require.NoError(t, err)
	}

	payments, err := svc.ListPayments(context.Background(), debt.ID)
	require.NoError(t, err)
	sum := decimal.Zero
	for _, p := range payments {
		sum = sum.Add(p.Amount)
	}
	current := repo.debts[debt.ID]
	require.True(t, sum.Equal(current.Amount.Sub(current.Remaining)))
	require.Equal(t, StatusPaid, current.Status)
}

func TestAllocatePaymentRejectsNonPositiveAmount(t *testing.T) {
	svc := NewService(newMemoryDebtRepo(), &fakeLocker{})
	_, err := svc.AllocatePayment(context.Background(), DebtorEmployee, 1, decimal.Zero, MethodCash, "")
	require.Error(t, err)
}

func TestAllocatePaymentLockContention(t *testing.T) {
	svc := NewService(newMemoryDebtRepo(), &fakeLocker{fail: true})
	_, err := svc.AllocatePayment(context.Background(), DebtorEmployee, 1, decimal.NewFromInt(100), MethodCash, "")
	require.ErrorIs(t, err, shared.ErrLockNotAcquired)
}

func TestRecordDeductionFanOut(t *testing.T) {
	repo := newMemoryDebtRepo()
	svc := NewService(repo, &fakeLocker{})

	repo.statements[1] = payroll.Statement{
		ID:         1,
		EmployeeID: 9,
		Year:       2025,
		Month:      7,
		Base:       decimal.NewFromInt(3000),
		NetSalary:  decimal.NewFromInt(3000),
	}
	seedDebt(t, svc, 9, 150, dueOn(2025, time.June, 1))
	repo.txCount = 0

	result, err := svc.RecordDeduction(context.Background(), DeductionInput{
		EmployeeID:  9,
		Amount:      decimal.NewFromInt(200),
		Type:        "loan",
		Description: "loan repayment",
	})
	require.NoError(t, err)

	// Deduction recorded, statement bumped, debts settled, all in one tx.
	require.Equal(t, 1, repo.txCount)
	require.True(t, result.StatementAdjusted)
	require.True(t, repo.statements[1].TotalDeductions.Equal(decimal.NewFromInt(200)))
	require.True(t, repo.statements[1].NetSalary.Equal(decimal.NewFromInt(2800)))

	require.True(t, result.Allocation.Allocated.Equal(decimal.NewFromInt(150)))
	require.True(t, result.Allocation.Unallocated.Equal(decimal.NewFromInt(50)))
	require.Len(t, result.Allocation.Allocations, 1)
	payments := repo.payments[result.Allocation.Allocations[0].DebtID]
	require.Len(t, payments, 1)
	require.Equal(t, MethodDeduction, payments[0].Method)
}

func TestRecordDeductionWithoutStatement(t *testing.T) {
	repo := newMemoryDebtRepo()
	svc := NewService(repo, &fakeLocker{})
	seedDebt(t, svc, 9, 100, nil)

	result, err := svc.RecordDeduction(context.Background(), DeductionInput{
		EmployeeID: 9,
		Amount:     decimal.NewFromInt(60),
	})
	require.NoError(t, err)
	require.False(t, result.StatementAdjusted)
	require.True(t, result.Allocation.Allocated.Equal(decimal.NewFromInt(60)))
}
