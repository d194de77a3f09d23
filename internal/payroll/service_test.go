package payroll

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryPayrollRepo struct {
	statements map[int64]Statement
	nextID     int64
}

func newMemoryPayrollRepo() *memoryPayrollRepo {
	return &memoryPayrollRepo{statements: make(map[int64]Statement)}
}

func (r *memoryPayrollRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryPayrollRepo) InsertStatement(ctx context.Context, in StatementInput) (Statement, error) {
	for _, s := range r.statements {
		if s.EmployeeID == in.EmployeeID && s.Year == in.Year && s.Month == in.Month {
			return Statement{}, ErrDuplicateStatement
		}
	}
	r.nextID++
	statement := Statement{
		ID:              r.nextID,
		EmployeeID:      in.EmployeeID,
		Year:            in.Year,
		Month:           in.Month,
		Base:            in.Base,
		Overtime:        in.Overtime,
		Bonuses:         in.Bonuses,
		TotalDeductions: decimal.Zero,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	statement.NetSalary = statement.Net()
	r.statements[statement.ID] = statement
	return statement, nil
}

func (r *memoryPayrollRepo) LatestStatement(ctx context.Context, employeeID int64) (Statement, error) {
	var latest Statement
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
		return Statement{}, ErrStatementNotFound
	}
	return latest, nil
}

func (r *memoryPayrollRepo) ListStatements(ctx context.Context, employeeID int64) ([]Statement, error) {
	var out []Statement
	for _, s := range r.statements {
		if s.EmployeeID == employeeID {
			out = append(out, s)
		}
	}
	return out, nil
}

func TestCreateStatementComputesNet(t *testing.T) {
	svc := NewService(newMemoryPayrollRepo())

	statement, err := svc.CreateStatement(context.Background(), StatementInput{
		EmployeeID: 1,
		Year:       2025,
		Month:      7,
		Base:       decimal.NewFromInt(3000),
		Overtime:   decimal.NewFromInt(200),
		Bonuses:    decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	require.True(t, statement.NetSalary.Equal(decimal.NewFromInt(3300)))
}

func TestCreateStatementRejectsDuplicatePeriod(t *testing.T) {
	svc := NewService(newMemoryPayrollRepo())
	input := StatementInput{EmployeeID: 1, Year: 2025, Month: 7, Base: decimal.NewFromInt(3000)}

	_, err := svc.CreateStatement(context.Background(), input)
	require.NoError(t, err)
	_, err = svc.CreateStatement(context.Background(), input)
	require.ErrorIs(t, err, ErrDuplicateStatement)
}

func TestCreateStatementValidatesInput(t *testing.T) {
	svc := NewService(newMemoryPayrollRepo())

	_, err := svc.CreateStatement(context.Background(), StatementInput{EmployeeID: 1, Year: 2025, Month: 13, Base: decimal.NewFromInt(100)})
	require.Error(t, err)

	_, err = svc.CreateStatement(context.Background(), StatementInput{EmployeeID: 1, Year: 2025, Month: 7, Base: decimal.NewFromInt(-1)})
	require.Error(t, err)
}

func TestLatestStatementPicksNewestPeriod(t *testing.T) {
	svc := NewService(newMemoryPayrollRepo())
	for _, period := range []struct{ year, month int }{{2024, 12}, {2025, 7}, {2025, 3}} {
		_, err := svc.CreateStatement(context.Background(), StatementInput{
			EmployeeID: 1,
			Year:       period.year,
			Month:      period.month,
			Base:       decimal.NewFromInt(3000),
		})
		require.NoError(t, err)
	}

	latest, err := svc.LatestStatement(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 2025, latest.Year)
	require.Equal(t, 7, latest.Month)
}

func TestLatestStatementNotFound(t *testing.T) {
	svc := NewService(newMemoryPayrollRepo())
	_, err := svc.LatestStatement(context.Background(), 404)
	require.ErrorIs(t, err, ErrStatementNotFound)
}
