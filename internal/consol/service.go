package consol

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-erp/meridian-erp/internal/coa"
)

// DBRepository defines the required persistence behaviour for the service.
type DBRepository interface {
	BranchFinancials(ctx context.Context, branchID int64, start, end time.Time) (BranchFinancials, error)
	AccountsForBranches(ctx context.Context, branchIDs []int64) ([]AccountRow, error)
	SaveReport(ctx context.Context, report Report) (Report, error)
	GetReport(ctx context.Context, id int64) (Report, error)
	ListReports(ctx context.Context, period string) ([]Report, error)
}

// Service orchestrates consolidation report generation.
type Service struct {
	repo DBRepository
	now  func() time.Time
}

// NewService constructs a consolidation service instance.
func NewService(repo DBRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithClock overrides the clock for deterministic tests.
func (s *Service) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Generate builds and persists a draft consolidation report for the given
// branches. Branch financials are fetched concurrently; any fetch failure
// aborts the whole report.
func (s *Service) Generate(ctx context.Context, input Input) (Report, error) {
	if err := input.Validate(); err != nil {
		return Report{}, err
	}

	summary, err := s.fetchSummary(ctx, input)
	if err != nil {
		return Report{}, err
	}

	rows, err := s.repo.AccountsForBranches(ctx, input.BranchIDs)
	if err != nil {
		return Report{}, fmt.Errorf("%w: account trees: %v", ErrConsolidationFetch, err)
	}
	groups := aggregateGroups(rows)

	debits, credits := decimal.Zero, decimal.Zero
	for _, g := range groups {
		debits = debits.Add(g.TotalDebit)
		credits = credits.Add(g.TotalCredit)
	}

	report := Report{
		Type:        input.ReportType,
		Period:      input.Period,
		Start:       input.Start,
		End:         input.End,
		BranchIDs:   input.BranchIDs,
		Status:      ReportStatusDraft,
		Balanced:    debits.Equal(credits),
		Summary:     summary,
		Groups:      groups,
		GeneratedAt: s.now(),
	}
	saved, err := s.repo.SaveReport(ctx, report)
	if err != nil {
		return Report{}, err
	}
	return saved, nil
}

// ListReports returns persisted reports, newest first, optionally filtered
// by period.
func (s *Service) ListReports(ctx context.Context, period string) ([]Report, error) {
	return s.repo.ListReports(ctx, period)
}

// GetReport retrieves one persisted report.
func (s *Service) GetReport(ctx context.Context, id int64) (Report, error) {
	return s.repo.GetReport(ctx, id)
}

func (s *Service) fetchSummary(ctx context.Context, input Input) (Summary, error) {
	results := make([]BranchFinancials, len(input.BranchIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, branchID := range input.BranchIDs {
		i, branchID := i, branchID
		g.Go(func() error {
			fin, err := s.repo.BranchFinancials(gctx, branchID, input.Start, input.End)
			if err != nil {
				return fmt.Errorf("%w: branch %d: %v", ErrConsolidationFetch, branchID, err)
			}
			results[i] = fin
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	summary := Summary{
		TotalRevenue:  decimal.Zero,
		TotalExpenses: decimal.Zero,
		Branches:      results,
	}
	for _, fin := range results {
		summary.TotalRevenue = summary.TotalRevenue.Add(fin.Revenue)
		summary.TotalExpenses = summary.TotalExpenses.Add(fin.Expenses)
	}
	summary.NetIncome = summary.TotalRevenue.Sub(summary.TotalExpenses)
	return summary, nil
}

// aggregateGroups rolls branch accounts up by their consolidation link.
// Accounts without a link form their own group keyed by their own id. Group
// balance follows the category's normal side.
func aggregateGroups(rows []AccountRow) []GroupBalance {
	byGroup := make(map[int64]*GroupBalance)
	for _, row := range rows {
		groupID := row.AccountID
		code := row.Code
		name := row.Name
		if row.ConsolidationID != nil {
			groupID = *row.ConsolidationID
			if row.GroupCode != nil {
				code = *row.GroupCode
			}
			if row.GroupName != nil {
				name = *row.GroupName
			}
		}
		group, ok := byGroup[groupID]
		if !ok {
			group = &GroupBalance{
				GroupAccountID: groupID,
				Code:           code,
				Name:           name,
				NormalSide:     row.NormalSide,
				TotalDebit:     decimal.Zero,
				TotalCredit:    decimal.Zero,
			}
			byGroup[groupID] = group
		}
		group.TotalDebit = group.TotalDebit.Add(row.Debit)
		group.TotalCredit = group.TotalCredit.Add(row.Credit)
		group.Members = append(group.Members, MemberBalance{
			AccountID: row.AccountID,
			BranchID:  row.BranchID,
			Debit:     row.Debit,
			Credit:    row.Credit,
		})
	}

	groups := make([]GroupBalance, 0, len(byGroup))
	for _, group := range byGroup {
		if group.NormalSide == coa.NormalSideCredit {
			group.Balance = group.TotalCredit.Sub(group.TotalDebit)
		} else {
			group.Balance = group.TotalDebit.Sub(group.TotalCredit)
		}
		groups = append(groups, *group)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Code < groups[j].Code
	})
	return groups
}
